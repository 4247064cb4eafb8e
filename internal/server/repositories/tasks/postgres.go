package tasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/ivolkov/taskvault/internal/common"
	"github.com/ivolkov/taskvault/internal/dbx"
	"github.com/ivolkov/taskvault/internal/server/models"
)

// likeEscaper neutralizes LIKE metacharacters in user-supplied search text,
// so the search stays a literal substring match.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// PostgresRepository implements the task store over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, task *models.Task) (*models.Task, error) {

	query :=
		`INSERT INTO tasks (id, user_id, title, description, status)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING created_at, updated_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		task.ID, task.UserID, task.Title, task.Description, task.Status).
		Scan(&task.CreatedAt, &task.UpdatedAt)

	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return task, nil
}

// whereFor builds the WHERE clause and argument list for the owner predicate
// plus the optional filter fields. The owner predicate is always present.
func whereFor(ownerID string, f Filter) (string, []any) {
	clauses := []string{"user_id = $1"}
	args := []any{ownerID}

	if f.Status != "" {
		args = append(args, f.Status)
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.Search != "" {
		args = append(args, "%"+likeEscaper.Replace(f.Search)+"%")
		clauses = append(clauses, fmt.Sprintf("title ILIKE $%d", len(args)))
	}

	return strings.Join(clauses, " AND "), args
}

func (r *PostgresRepository) FindPage(ctx context.Context, ownerID string, f Filter, page, limit int) ([]*models.Task, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 1
	}

	where, args := whereFor(ownerID, f)

	var total int64
	countQuery := `SELECT COUNT(*) FROM tasks WHERE ` + where
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("db error: %w", err)
	}

	pageQuery := fmt.Sprintf(
		`SELECT id, user_id, title, description, status, created_at, updated_at
		 FROM tasks WHERE %s
		 ORDER BY created_at DESC
		 LIMIT $%d OFFSET $%d`,
		where, len(args)+1, len(args)+2)
	args = append(args, limit, (page-1)*limit)

	rows, err := r.db.QueryContext(ctx, pageQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Task
	for rows.Next() {
		var item models.Task
		if err := rows.Scan(
			&item.ID, &item.UserID, &item.Title, &item.Description, &item.Status,
			&item.CreatedAt, &item.UpdatedAt,
		); err != nil {
			return nil, 0, err
		}
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return result, total, nil
}

func (r *PostgresRepository) CountByStatus(ctx context.Context, ownerID string) (map[models.TaskStatus]int64, error) {
	query := `SELECT status, COUNT(*) FROM tasks WHERE user_id = $1 GROUP BY status`

	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.TaskStatus]int64)
	for rows.Next() {
		var status models.TaskStatus
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return counts, nil
}

func (r *PostgresRepository) CountAll(ctx context.Context, ownerID string) (int64, error) {
	var total int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks WHERE user_id = $1`, ownerID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return total, nil
}

func (r *PostgresRepository) UpdateFields(ctx context.Context, ownerID, taskID string, p Patch) (*models.Task, error) {
	if p.IsEmpty() {
		return r.getOwned(ctx, ownerID, taskID)
	}

	sets := []string{}
	args := []any{}

	addSet := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if p.Title != nil {
		addSet("title", *p.Title)
	}
	if p.Description != nil {
		addSet("description", *p.Description)
	}
	if p.Status != nil {
		addSet("status", *p.Status)
	}
	sets = append(sets, "updated_at = now()")

	args = append(args, taskID, ownerID)
	query := fmt.Sprintf(
		`UPDATE tasks SET %s
		 WHERE id = $%d AND user_id = $%d
		 RETURNING id, user_id, title, description, status, created_at, updated_at`,
		strings.Join(sets, ", "), len(args)-1, len(args))

	task := &models.Task{}
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&task.ID, &task.UserID, &task.Title, &task.Description, &task.Status,
		&task.CreatedAt, &task.UpdatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return task, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, ownerID, taskID string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM tasks WHERE id = $1 AND user_id = $2`, taskID, ownerID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}

	return nil
}

func (r *PostgresRepository) getOwned(ctx context.Context, ownerID, taskID string) (*models.Task, error) {
	query :=
		`SELECT id, user_id, title, description, status, created_at, updated_at
		 FROM tasks WHERE id = $1 AND user_id = $2
		 `

	task := &models.Task{}
	err := r.db.QueryRowContext(ctx, query, taskID, ownerID).Scan(
		&task.ID, &task.UserID, &task.Title, &task.Description, &task.Status,
		&task.CreatedAt, &task.UpdatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return task, nil
}
