// Package tasks provides the PostgreSQL-backed task store. Every operation
// except Create carries the owning user in its predicate, so a task id
// belonging to another user behaves exactly like a missing id.
package tasks

import (
	"context"

	"github.com/ivolkov/taskvault/internal/server/models"
)

// Filter restricts a listing. Zero values mean "no restriction": an empty
// Status matches every status, an empty Search matches every title. Search
// is a case-insensitive substring match against the title.
type Filter struct {
	Status models.TaskStatus
	Search string
}

// Patch carries the fields of a partial update; nil pointers leave the
// stored value untouched. Description, when set, must already be encrypted.
type Patch struct {
	Title       *string
	Description *string
	Status      *models.TaskStatus
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && p.Status == nil
}

type Repository interface {
	Create(ctx context.Context, task *models.Task) (*models.Task, error)

	// FindPage returns one page of the owner's tasks matching f, ordered by
	// creation time descending, plus the total number of matching tasks.
	// page and limit are clamped to a minimum of 1.
	FindPage(ctx context.Context, ownerID string, f Filter, page, limit int) ([]*models.Task, int64, error)

	// CountByStatus aggregates over all of the owner's tasks, ignoring any
	// filter. Statuses with no tasks are absent from the result.
	CountByStatus(ctx context.Context, ownerID string) (map[models.TaskStatus]int64, error)

	// CountAll returns the owner's total task count.
	CountAll(ctx context.Context, ownerID string) (int64, error)

	// UpdateFields applies the non-nil fields of p to the owner's task and
	// returns the updated row, or common.ErrorNotFound if no such task
	// exists for this owner.
	UpdateFields(ctx context.Context, ownerID, taskID string, p Patch) (*models.Task, error)

	// Delete removes the owner's task, or returns common.ErrorNotFound.
	Delete(ctx context.Context, ownerID, taskID string) error
}
