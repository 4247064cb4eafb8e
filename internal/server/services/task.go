package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ivolkov/taskvault/internal/common"
	"github.com/ivolkov/taskvault/internal/cryptox"
	"github.com/ivolkov/taskvault/internal/logging"
	"github.com/ivolkov/taskvault/internal/server/config"
	"github.com/ivolkov/taskvault/internal/server/models"
	"github.com/ivolkov/taskvault/internal/server/repositories/repomanager"
	"github.com/ivolkov/taskvault/internal/server/repositories/tasks"
)

// TaskView is a task as seen by its owner: the description is plaintext,
// never the stored envelope.
type TaskView struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Status      models.TaskStatus `json:"status"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

// Pagination describes the slice of the filtered set that was returned.
type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int64 `json:"totalPages"`
}

// Stats counts all of the owner's tasks by status, independent of the
// filter applied to the current listing.
type Stats struct {
	Pending    int64 `json:"pending"`
	InProgress int64 `json:"inProgress"`
	Completed  int64 `json:"completed"`
	Total      int64 `json:"total"`
}

// ListResult bundles one page of tasks with its pagination metadata and the
// owner-wide status aggregate.
type ListResult struct {
	Items      []*TaskView `json:"tasks"`
	Pagination Pagination  `json:"pagination"`
	Stats      Stats       `json:"stats"`
}

// TaskPatch carries the optional fields of a partial update; Description is
// plaintext here and is encrypted before it reaches the store.
type TaskPatch struct {
	Title       *string
	Description *string
	Status      *models.TaskStatus
}

// TaskService orchestrates the task store and the encryption codec:
// descriptions are encrypted on the way in and decrypted on the way out,
// and every store call is scoped to the owner resolved by the caller.
type TaskService struct {
	db           *sql.DB
	repomanager  repomanager.RepositoryManager
	codec        *cryptox.Codec
	logger       logging.Logger
	storeTimeout time.Duration
}

func NewTaskService(db *sql.DB, m repomanager.RepositoryManager, codec *cryptox.Codec, l logging.Logger, cfg *config.Config) *TaskService {
	return &TaskService{
		db:           db,
		repomanager:  m,
		codec:        codec,
		logger:       l.With("module", "task_service"),
		storeTimeout: cfg.StoreTimeout,
	}
}

// CreateTask encrypts the description, persists the task, and returns the
// stored record with the description decrypted again, so the response never
// echoes ciphertext.
func (s *TaskService) CreateTask(ctx context.Context, ownerID, title, description string, status models.TaskStatus) (*TaskView, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	envelope, err := s.codec.Encrypt(description)
	if err != nil {
		return nil, common.ErrorInternal
	}

	task := &models.Task{
		ID:          uuid.NewString(),
		UserID:      ownerID,
		Title:       title,
		Description: envelope,
		Status:      status,
	}

	task, err = s.repomanager.Tasks(s.db).Create(ctx, task)
	if err != nil {
		return nil, common.ErrorInternal
	}

	return s.toView(ctx, task), nil
}

// ListTasks returns one page of the owner's tasks plus the owner-wide status
// aggregate. The page fetch and the aggregate are independent reads and are
// issued concurrently. A task whose stored envelope fails to decrypt keeps
// its place in the page with an empty description instead of failing the
// whole request.
func (s *TaskService) ListTasks(ctx context.Context, ownerID string, page, limit int, f tasks.Filter) (*ListResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 1
	}

	repo := s.repomanager.Tasks(s.db)

	var (
		items    []*models.Task
		total    int64
		counts   map[models.TaskStatus]int64
		allTasks int64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		items, total, err = repo.FindPage(gctx, ownerID, f, page, limit)
		return err
	})
	g.Go(func() error {
		var err error
		counts, err = repo.CountByStatus(gctx, ownerID)
		return err
	})
	g.Go(func() error {
		var err error
		allTasks, err = repo.CountAll(gctx, ownerID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, common.ErrorInternal
	}

	views := make([]*TaskView, 0, len(items))
	for _, task := range items {
		views = append(views, s.toView(ctx, task))
	}

	stats := Stats{
		Pending:    counts[models.StatusPending],
		InProgress: counts[models.StatusInProgress],
		Completed:  counts[models.StatusCompleted],
		Total:      allTasks,
	}

	return &ListResult{
		Items: views,
		Pagination: Pagination{
			Page:       page,
			Limit:      limit,
			Total:      total,
			TotalPages: (total + int64(limit) - 1) / int64(limit),
		},
		Stats: stats,
	}, nil
}

// UpdateTask applies the supplied fields to the owner's task, re-encrypting
// the description if it is part of the patch. A task that does not exist and
// a task owned by someone else produce the same common.ErrorNotFound.
func (s *TaskService) UpdateTask(ctx context.Context, ownerID, taskID string, patch TaskPatch) (*TaskView, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	stored := tasks.Patch{Title: patch.Title, Status: patch.Status}
	if patch.Description != nil {
		envelope, err := s.codec.Encrypt(*patch.Description)
		if err != nil {
			return nil, common.ErrorInternal
		}
		stored.Description = &envelope
	}

	task, err := s.repomanager.Tasks(s.db).UpdateFields(ctx, ownerID, taskID, stored)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorNotFound
		}
		return nil, common.ErrorInternal
	}

	return s.toView(ctx, task), nil
}

// DeleteTask removes the owner's task, with the same not-found semantics as
// UpdateTask.
func (s *TaskService) DeleteTask(ctx context.Context, ownerID, taskID string) error {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	err := s.repomanager.Tasks(s.db).Delete(ctx, ownerID, taskID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrorNotFound
		}
		return common.ErrorInternal
	}
	return nil
}

// toView decrypts the stored description for the response. Decryption
// failure (legacy record, corruption, rotated key) degrades the field to an
// empty string; the rest of the task remains usable.
func (s *TaskService) toView(ctx context.Context, task *models.Task) *TaskView {
	plaintext, err := s.codec.Decrypt(task.Description)
	if err != nil {
		s.logger.Warn(ctx, "failed to decrypt task description", "task_id", task.ID, "error", err.Error())
		plaintext = ""
	}

	return &TaskView{
		ID:          task.ID,
		Title:       task.Title,
		Description: plaintext,
		Status:      task.Status,
		CreatedAt:   task.CreatedAt,
		UpdatedAt:   task.UpdatedAt,
	}
}
