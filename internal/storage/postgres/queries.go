package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sprintlane/sprintlane/internal/storage"
	"github.com/sprintlane/sprintlane/internal/types"
)

const taskColumns = `id, tenant_id, project_id, title, kind, status, created_at, created_by, updated_at`

// CreateTask persists a new task.
func (s *PostgresStorage) CreateTask(ctx context.Context, task *types.Task) error {
	return createTask(ctx, s.db, task)
}

func createTask(ctx context.Context, q sqlx.ExtContext, task *types.Task) error {
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
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
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
func (s *PostgresStorage) GetTask(ctx context.Context, id string) (*types.Task, error) {
	return getTask(ctx, s.db, id)
}

func getTask(ctx context.Context, q sqlx.ExtContext, id string) (*types.Task, error) {
	var task types.Task
	err := sqlx.GetContext(ctx, q, &task, `
		SELECT `+taskColumns+` FROM tasks WHERE id = $1
	`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return &task, nil
}

// ListTasks returns the tenant's tasks ordered by creation time.
func (s *PostgresStorage) ListTasks(ctx context.Context, tenantID string) ([]*types.Task, error) {
	return listTasks(ctx, s.db, tenantID)
}

func listTasks(ctx context.Context, q sqlx.ExtContext, tenantID string) ([]*types.Task, error) {
	var tasks []*types.Task
	err := sqlx.SelectContext(ctx, q, &tasks, `
		SELECT `+taskColumns+` FROM tasks
		WHERE tenant_id = $1
		ORDER BY created_at ASC, id ASC
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return tasks, nil
}

// UpdateTaskStatus moves the task to `to`, conditioned on the current status
// still being `from`. The WHERE clause is the optimistic check.
func (s *PostgresStorage) UpdateTaskStatus(ctx context.Context, tenantID, id string, from, to types.Status) error {
	return updateTaskStatus(ctx, s.db, tenantID, id, from, to)
}

func updateTaskStatus(ctx context.Context, q sqlx.ExtContext, tenantID, id string, from, to types.Status) error {
	result, err := q.ExecContext(ctx, `
		UPDATE tasks SET status = $1, updated_at = now()
		WHERE id = $2 AND tenant_id = $3 AND status = $4
	`, to, id, tenantID, from)
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
	err = q.QueryRowxContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM tasks WHERE id = $1 AND tenant_id = $2)
	`, id, tenantID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check task existence: %w", err)
	}
	if !exists {
		return fmt.Errorf("task %s: %w", id, types.ErrTaskNotFound)
	}
	return fmt.Errorf("task %s is no longer in status %q: %w", id, from, types.ErrStaleStatus)
}

const depColumns = `id, tenant_id, source_id, depends_on_id, type, created_at, created_by`

// EdgesFrom returns the outgoing edges of a task, ordered by creation.
func (s *PostgresStorage) EdgesFrom(ctx context.Context, tenantID, taskID string) ([]*types.TaskDependency, error) {
	return edgesFrom(ctx, s.db, tenantID, taskID)
}

func edgesFrom(ctx context.Context, q sqlx.ExtContext, tenantID, taskID string) ([]*types.TaskDependency, error) {
	var deps []*types.TaskDependency
	err := sqlx.SelectContext(ctx, q, &deps, `
		SELECT `+depColumns+` FROM dependencies
		WHERE tenant_id = $1 AND source_id = $2
		ORDER BY id ASC
	`, tenantID, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to get dependencies: %w", err)
	}
	return deps, nil
}

// AllEdges returns every edge in the tenant's graph.
func (s *PostgresStorage) AllEdges(ctx context.Context, tenantID string) ([]*types.TaskDependency, error) {
	return allEdges(ctx, s.db, tenantID)
}

func allEdges(ctx context.Context, q sqlx.ExtContext, tenantID string) ([]*types.TaskDependency, error) {
	var deps []*types.TaskDependency
	err := sqlx.SelectContext(ctx, q, &deps, `
		SELECT `+depColumns+` FROM dependencies
		WHERE tenant_id = $1
		ORDER BY id ASC
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to get dependencies: %w", err)
	}
	return deps, nil
}

// EdgeExists reports whether an identical edge is already present.
func (s *PostgresStorage) EdgeExists(ctx context.Context, tenantID, sourceID, dependsOnID string, depType types.DependencyType) (bool, error) {
	return edgeExists(ctx, s.db, tenantID, sourceID, dependsOnID, depType)
}

func edgeExists(ctx context.Context, q sqlx.ExtContext, tenantID, sourceID, dependsOnID string, depType types.DependencyType) (bool, error) {
	var exists bool
	err := q.QueryRowxContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM dependencies
			WHERE tenant_id = $1 AND source_id = $2 AND depends_on_id = $3 AND type = $4
		)
	`, tenantID, sourceID, dependsOnID, depType).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check dependency: %w", err)
	}
	return exists, nil
}

// InsertEdge persists a new edge and returns its ID.
func (s *PostgresStorage) InsertEdge(ctx context.Context, dep *types.TaskDependency) (int64, error) {
	return insertEdge(ctx, s.db, dep)
}

func insertEdge(ctx context.Context, q sqlx.ExtContext, dep *types.TaskDependency) (int64, error) {
	if dep.CreatedAt.IsZero() {
		dep.CreatedAt = time.Now()
	}
	if err := dep.Validate(); err != nil {
		return 0, fmt.Errorf("validation failed: %w", err)
	}

	var id int64
	err := q.QueryRowxContext(ctx, `
		INSERT INTO dependencies (tenant_id, source_id, depends_on_id, type, created_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, dep.TenantID, dep.SourceID, dep.DependsOnID, dep.Type, dep.CreatedAt, dep.CreatedBy).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%s -[%s]-> %s: %w", dep.SourceID, dep.Type, dep.DependsOnID, types.ErrDuplicateDependency)
		}
		return 0, fmt.Errorf("failed to insert dependency: %w", err)
	}
	dep.ID = id
	return id, nil
}

// RemoveEdge hard-deletes an edge by ID within the tenant.
func (s *PostgresStorage) RemoveEdge(ctx context.Context, tenantID string, id int64) error {
	return removeEdge(ctx, s.db, tenantID, id)
}

func removeEdge(ctx context.Context, q sqlx.ExtContext, tenantID string, id int64) error {
	result, err := q.ExecContext(ctx, `
		DELETE FROM dependencies WHERE tenant_id = $1 AND id = $2
	`, tenantID, id)
	if err != nil {
		return fmt.Errorf("failed to remove dependency: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("dependency %d: %w", id, types.ErrEdgeNotFound)
	}
	return nil
}

// AppendAttempt writes one transition attempt record.
func (s *PostgresStorage) AppendAttempt(ctx context.Context, attempt *types.TransitionAttempt) error {
	if attempt.AttemptedAt.IsZero() {
		attempt.AttemptedAt = time.Now()
	}

	var id int64
	err := s.db.QueryRowxContext(ctx, `
		INSERT INTO transition_attempts
			(tenant_id, project_id, entity_kind, entity_id, from_status, to_status,
			 allowed, acting_role, actor_id, reason, attempted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`, attempt.TenantID, attempt.ProjectID, attempt.EntityKind, attempt.EntityID,
		attempt.FromStatus, attempt.ToStatus, attempt.Allowed, attempt.ActingRole,
		attempt.ActorID, attempt.Reason, attempt.AttemptedAt).Scan(&id)
	if err != nil {
		return fmt.Errorf("failed to record transition attempt: %w", err)
	}
	attempt.ID = id
	return nil
}

// ListAttempts returns the recorded attempts, most recent first. An empty
// entityID returns all attempts for the tenant.
func (s *PostgresStorage) ListAttempts(ctx context.Context, tenantID, entityID string) ([]*types.TransitionAttempt, error) {
	query := `
		SELECT id, tenant_id, project_id, entity_kind, entity_id, from_status, to_status,
		       allowed, acting_role, actor_id, reason, attempted_at
		FROM transition_attempts
		WHERE tenant_id = $1`
	args := []interface{}{tenantID}
	if entityID != "" {
		query += ` AND entity_id = $2`
		args = append(args, entityID)
	}
	query += ` ORDER BY id DESC`

	var attempts []*types.TransitionAttempt
	if err := sqlx.SelectContext(ctx, s.db, &attempts, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list transition attempts: %w", err)
	}
	return attempts, nil
}
