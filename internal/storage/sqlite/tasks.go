package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sprintlane/sprintlane/internal/storage"
	"github.com/sprintlane/sprintlane/internal/types"
)

const taskColumns = `id, tenant_id, project_id, title, kind, status, created_at, created_by, updated_at`

// CreateTask persists a new task.
func (s *SQLiteStorage) CreateTask(ctx context.Context, task *types.Task) error {
	return createTask(ctx, s.db, task)
}

func createTask(ctx context.Context, q querier, task *types.Task) error {
	now := time.Now()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	if task.UpdatedAt.IsZero() {
		task.UpdatedAt = now
	}
	if task.Status == "" {
		task.Status = types.StatusTodo
	}
	if err := task.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, task.ID, task.TenantID, task.ProjectID, task.Title, task.Kind, task.Status,
		task.CreatedAt, task.CreatedBy, task.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("failed to insert task: %w", err)
	}
	return nil
}

// GetTask retrieves a task by ID, or nil if absent.
func (s *SQLiteStorage) GetTask(ctx context.Context, id string) (*types.Task, error) {
	return getTask(ctx, s.db, id)
}

func getTask(ctx context.Context, q querier, id string) (*types.Task, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+taskColumns+` FROM tasks WHERE id = ?
	`, id)

	task, err := scanTaskRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return task, nil
}

// ListTasks returns the tenant's tasks ordered by creation time.
func (s *SQLiteStorage) ListTasks(ctx context.Context, tenantID string) ([]*types.Task, error) {
	return listTasks(ctx, s.db, tenantID)
}

func listTasks(ctx context.Context, q querier, tenantID string) ([]*types.Task, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+taskColumns+` FROM tasks
		WHERE tenant_id = ?
		ORDER BY created_at ASC, id ASC
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []*types.Task
	for rows.Next() {
		task, err := scanTaskRow(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return tasks, nil
}

// UpdateTaskStatus moves the task to `to`, conditioned on the current status
// still being `from`. The WHERE clause is the optimistic check: zero rows
// affected means either a missing task or a stale expectation, and a
// follow-up existence query tells the two apart.
func (s *SQLiteStorage) UpdateTaskStatus(ctx context.Context, tenantID, id string, from, to types.Status) error {
	return updateTaskStatus(ctx, s.db, tenantID, id, from, to)
}

func updateTaskStatus(ctx context.Context, q querier, tenantID, id string, from, to types.Status) error {
	result, err := q.ExecContext(ctx, `
		UPDATE tasks SET status = ?, updated_at = ?
		WHERE id = ? AND tenant_id = ? AND status = ?
	`, to, time.Now(), id, tenantID, from)
	if err != nil {
		return fmt.Errorf("failed to update task status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected > 0 {
		return nil
	}

	var exists bool
	err = q.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM tasks WHERE id = ? AND tenant_id = ?)
	`, id, tenantID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check task existence: %w", err)
	}
	if !exists {
		return fmt.Errorf("task %s: %w", id, types.ErrTaskNotFound)
	}
	return fmt.Errorf("task %s is no longer in status %q: %w", id, from, types.ErrStaleStatus)
}

// scanner is an interface that both *sql.Row and *sql.Rows satisfy
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTaskRow(row scanner) (*types.Task, error) {
	var task types.Task
	var createdBy sql.NullString
	err := row.Scan(
		&task.ID, &task.TenantID, &task.ProjectID, &task.Title, &task.Kind,
		&task.Status, &task.CreatedAt, &createdBy, &task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if createdBy.Valid {
		task.CreatedBy = createdBy.String
	}
	return &task, nil
}

// isUniqueViolation reports whether the error is a UNIQUE constraint
// failure. String matching keeps this driver-agnostic.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "unique")
}
