package services

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivolkov/taskvault/internal/common"
	"github.com/ivolkov/taskvault/internal/cryptox"
	"github.com/ivolkov/taskvault/internal/logging"
	"github.com/ivolkov/taskvault/internal/server/models"
	"github.com/ivolkov/taskvault/internal/server/repositories/tasks"
)

type fakeTasksRepo struct {
	tasks.Repository

	created []*models.Task

	pageItems []*models.Task
	pageTotal int64
	gotFilter tasks.Filter
	gotPage   int
	gotLimit  int

	statusCounts  map[models.TaskStatus]int64
	countAllCalls int

	updated      *models.Task
	gotPatch     tasks.Patch
	updateErr    error
	deleteErr    error
	deletedIDs   []string
	deletedOwner string
}

func (f *fakeTasksRepo) Create(ctx context.Context, task *models.Task) (*models.Task, error) {
	now := time.Now()
	task.CreatedAt = now
	task.UpdatedAt = now
	f.created = append(f.created, task)
	return task, nil
}

func (f *fakeTasksRepo) FindPage(ctx context.Context, ownerID string, filter tasks.Filter, page, limit int) ([]*models.Task, int64, error) {
	f.gotFilter = filter
	f.gotPage = page
	f.gotLimit = limit
	return f.pageItems, f.pageTotal, nil
}

func (f *fakeTasksRepo) CountByStatus(ctx context.Context, ownerID string) (map[models.TaskStatus]int64, error) {
	return f.statusCounts, nil
}

func (f *fakeTasksRepo) CountAll(ctx context.Context, ownerID string) (int64, error) {
	f.countAllCalls++
	var total int64
	for _, n := range f.statusCounts {
		total += n
	}
	return total, nil
}

func (f *fakeTasksRepo) UpdateFields(ctx context.Context, ownerID, taskID string, p tasks.Patch) (*models.Task, error) {
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	f.gotPatch = p
	return f.updated, nil
}

func (f *fakeTasksRepo) Delete(ctx context.Context, ownerID, taskID string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deletedIDs = append(f.deletedIDs, taskID)
	f.deletedOwner = ownerID
	return nil
}

func testCodec(t *testing.T) *cryptox.Codec {
	t.Helper()
	codec, err := cryptox.NewCodec([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)
	return codec
}

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func newTaskService(t *testing.T, repo *fakeTasksRepo) *TaskService {
	t.Helper()
	return NewTaskService(nil, &fakeRepoManager{t: repo}, testCodec(t), testLogger(), testConfig())
}

func encrypted(t *testing.T, codec *cryptox.Codec, plaintext string) string {
	t.Helper()
	envelope, err := codec.Encrypt(plaintext)
	require.NoError(t, err)
	return envelope
}

// -------- tests --------

func TestCreateTask_EncryptsAtRestDecryptsInResponse(t *testing.T) {
	t.Parallel()

	repo := &fakeTasksRepo{}
	svc := newTaskService(t, repo)

	view, err := svc.CreateTask(context.Background(), "owner-a", "Buy milk", "2% lowfat", models.StatusPending)
	require.NoError(t, err)

	// response carries plaintext
	assert.Equal(t, "2% lowfat", view.Description)
	assert.Equal(t, "Buy milk", view.Title)
	assert.NotEmpty(t, view.ID)

	// store holds a three-part envelope, not the plaintext
	require.Len(t, repo.created, 1)
	stored := repo.created[0].Description
	assert.NotContains(t, stored, "2% lowfat")
	assert.Len(t, strings.Split(stored, ":"), 3)
	assert.Equal(t, "owner-a", repo.created[0].UserID)
}

func TestListTasks_PaginationMath(t *testing.T) {
	t.Parallel()

	codec := testCodec(t)
	repo := &fakeTasksRepo{
		pageTotal:    25,
		statusCounts: map[models.TaskStatus]int64{models.StatusPending: 25},
	}
	for i := 0; i < 10; i++ {
		repo.pageItems = append(repo.pageItems, &models.Task{
			ID: "t", UserID: "owner-a", Title: "task",
			Description: encrypted(t, codec, "body"),
			Status:      models.StatusPending,
		})
	}
	svc := newTaskService(t, repo)

	res, err := svc.ListTasks(context.Background(), "owner-a", 2, 10, tasks.Filter{})
	require.NoError(t, err)

	assert.Len(t, res.Items, 10)
	assert.Equal(t, 2, res.Pagination.Page)
	assert.Equal(t, 10, res.Pagination.Limit)
	assert.EqualValues(t, 25, res.Pagination.Total)
	assert.EqualValues(t, 3, res.Pagination.TotalPages)
}

func TestListTasks_ClampsNonPositivePageAndLimit(t *testing.T) {
	t.Parallel()

	repo := &fakeTasksRepo{statusCounts: map[models.TaskStatus]int64{}}
	svc := newTaskService(t, repo)

	res, err := svc.ListTasks(context.Background(), "owner-a", -3, 0, tasks.Filter{})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Pagination.Page)
	assert.Equal(t, 1, res.Pagination.Limit)
	assert.Equal(t, 1, repo.gotPage)
	assert.Equal(t, 1, repo.gotLimit)
}

func TestListTasks_StatsIndependentOfFilter(t *testing.T) {
	t.Parallel()

	repo := &fakeTasksRepo{
		pageTotal: 2,
		statusCounts: map[models.TaskStatus]int64{
			models.StatusPending:    2,
			models.StatusInProgress: 1,
			models.StatusCompleted:  4,
		},
	}
	svc := newTaskService(t, repo)

	res, err := svc.ListTasks(context.Background(), "owner-a", 1, 10,
		tasks.Filter{Status: models.StatusPending, Search: "milk"})
	require.NoError(t, err)

	// filter reached the page query...
	assert.Equal(t, models.StatusPending, repo.gotFilter.Status)
	assert.Equal(t, "milk", repo.gotFilter.Search)

	// ...but stats still cover every status
	assert.EqualValues(t, 2, res.Stats.Pending)
	assert.EqualValues(t, 1, res.Stats.InProgress)
	assert.EqualValues(t, 4, res.Stats.Completed)
	assert.EqualValues(t, 7, res.Stats.Total)
	assert.Equal(t, 1, repo.countAllCalls, "total must come from the owner-wide count")
}

func TestListTasks_CorruptedEnvelopeDegradesToEmpty(t *testing.T) {
	t.Parallel()

	codec := testCodec(t)
	repo := &fakeTasksRepo{
		pageTotal: 2,
		pageItems: []*models.Task{
			{ID: "ok", Title: "fine", Description: encrypted(t, codec, "readable"), Status: models.StatusPending},
			{ID: "bad", Title: "corrupted", Description: "legacy-plaintext-row", Status: models.StatusPending},
		},
		statusCounts: map[models.TaskStatus]int64{models.StatusPending: 2},
	}
	svc := newTaskService(t, repo)

	res, err := svc.ListTasks(context.Background(), "owner-a", 1, 10, tasks.Filter{})
	require.NoError(t, err, "one bad row must not fail the page")

	require.Len(t, res.Items, 2)
	assert.Equal(t, "readable", res.Items[0].Description)
	assert.Equal(t, "", res.Items[1].Description)
	assert.Equal(t, "corrupted", res.Items[1].Title, "rest of the task stays intact")
}

func TestUpdateTask_ReencryptsOnlySuppliedDescription(t *testing.T) {
	t.Parallel()

	codec := testCodec(t)
	status := models.StatusCompleted

	repo := &fakeTasksRepo{
		updated: &models.Task{
			ID: "t1", UserID: "owner-a", Title: "a",
			Description: encrypted(t, codec, "new body"),
			Status:      status,
		},
	}
	svc := newTaskService(t, repo)

	newBody := "new body"
	view, err := svc.UpdateTask(context.Background(), "owner-a", "t1", TaskPatch{
		Description: &newBody,
		Status:      &status,
	})
	require.NoError(t, err)
	assert.Equal(t, "new body", view.Description)

	require.NotNil(t, repo.gotPatch.Description)
	assert.NotEqual(t, "new body", *repo.gotPatch.Description, "patch must carry ciphertext")
	require.NotNil(t, repo.gotPatch.Status)
	assert.Nil(t, repo.gotPatch.Title)
}

func TestUpdateTask_WithoutDescriptionLeavesItAlone(t *testing.T) {
	t.Parallel()

	codec := testCodec(t)
	title := "renamed"
	repo := &fakeTasksRepo{
		updated: &models.Task{
			ID: "t1", UserID: "owner-a", Title: title,
			Description: encrypted(t, codec, "old body"),
			Status:      models.StatusPending,
		},
	}
	svc := newTaskService(t, repo)

	view, err := svc.UpdateTask(context.Background(), "owner-a", "t1", TaskPatch{Title: &title})
	require.NoError(t, err)

	assert.Nil(t, repo.gotPatch.Description)
	assert.Equal(t, "old body", view.Description)
}

func TestUpdateTask_NotFound(t *testing.T) {
	t.Parallel()

	repo := &fakeTasksRepo{updateErr: common.ErrorNotFound}
	svc := newTaskService(t, repo)

	title := "x"
	_, err := svc.UpdateTask(context.Background(), "owner-a", "foreign-or-missing", TaskPatch{Title: &title})
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestDeleteTask(t *testing.T) {
	t.Parallel()

	repo := &fakeTasksRepo{}
	svc := newTaskService(t, repo)

	require.NoError(t, svc.DeleteTask(context.Background(), "owner-a", "t1"))
	assert.Equal(t, []string{"t1"}, repo.deletedIDs)
	assert.Equal(t, "owner-a", repo.deletedOwner)
}

func TestDeleteTask_NotFound(t *testing.T) {
	t.Parallel()

	repo := &fakeTasksRepo{deleteErr: common.ErrorNotFound}
	svc := newTaskService(t, repo)

	err := svc.DeleteTask(context.Background(), "owner-a", "missing")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}
