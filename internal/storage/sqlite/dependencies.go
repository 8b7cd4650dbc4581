package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/sprintlane/sprintlane/internal/types"
)

const depColumns = `id, tenant_id, source_id, depends_on_id, type, created_at, created_by`

// EdgesFrom returns the outgoing edges of a task, ordered by creation.
func (s *SQLiteStorage) EdgesFrom(ctx context.Context, tenantID, taskID string) ([]*types.TaskDependency, error) {
	return edgesFrom(ctx, s.db, tenantID, taskID)
}

func edgesFrom(ctx context.Context, q querier, tenantID, taskID string) ([]*types.TaskDependency, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+depColumns+` FROM dependencies
		WHERE tenant_id = ? AND source_id = ?
		ORDER BY id ASC
	`, tenantID, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to get dependencies: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanDependencyRows(rows)
}

// AllEdges returns every edge in the tenant's graph.
func (s *SQLiteStorage) AllEdges(ctx context.Context, tenantID string) ([]*types.TaskDependency, error) {
	return allEdges(ctx, s.db, tenantID)
}

func allEdges(ctx context.Context, q querier, tenantID string) ([]*types.TaskDependency, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+depColumns+` FROM dependencies
		WHERE tenant_id = ?
		ORDER BY id ASC
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to get dependencies: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanDependencyRows(rows)
}

// EdgeExists reports whether an identical edge is already present.
func (s *SQLiteStorage) EdgeExists(ctx context.Context, tenantID, sourceID, dependsOnID string, depType types.DependencyType) (bool, error) {
	return edgeExists(ctx, s.db, tenantID, sourceID, dependsOnID, depType)
}

func edgeExists(ctx context.Context, q querier, tenantID, sourceID, dependsOnID string, depType types.DependencyType) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM dependencies
			WHERE tenant_id = ? AND source_id = ? AND depends_on_id = ? AND type = ?
		)
	`, tenantID, sourceID, dependsOnID, depType).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check dependency: %w", err)
	}
	return exists, nil
}

// InsertEdge persists a new edge and returns its ID.
func (s *SQLiteStorage) InsertEdge(ctx context.Context, dep *types.TaskDependency) (int64, error) {
	return insertEdge(ctx, s.db, dep)
}

func insertEdge(ctx context.Context, q querier, dep *types.TaskDependency) (int64, error) {
	if dep.CreatedAt.IsZero() {
		dep.CreatedAt = time.Now()
	}
	if err := dep.Validate(); err != nil {
		return 0, fmt.Errorf("validation failed: %w", err)
	}

	result, err := q.ExecContext(ctx, `
		INSERT INTO dependencies (tenant_id, source_id, depends_on_id, type, created_at, created_by)
		VALUES (?, ?, ?, ?, ?, ?)
	`, dep.TenantID, dep.SourceID, dep.DependsOnID, dep.Type, dep.CreatedAt, dep.CreatedBy)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%s -[%s]-> %s: %w", dep.SourceID, dep.Type, dep.DependsOnID, types.ErrDuplicateDependency)
		}
		return 0, fmt.Errorf("failed to insert dependency: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get edge ID: %w", err)
	}
	dep.ID = id
	return id, nil
}

// RemoveEdge hard-deletes an edge by ID within the tenant.
func (s *SQLiteStorage) RemoveEdge(ctx context.Context, tenantID string, id int64) error {
	return removeEdge(ctx, s.db, tenantID, id)
}

func removeEdge(ctx context.Context, q querier, tenantID string, id int64) error {
	result, err := q.ExecContext(ctx, `
		DELETE FROM dependencies WHERE tenant_id = ? AND id = ?
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

func scanDependencyRows(rows interface {
	Next() bool
	Err() error
	Scan(dest ...interface{}) error
}) ([]*types.TaskDependency, error) {
	var deps []*types.TaskDependency
	for rows.Next() {
		var dep types.TaskDependency
		if err := rows.Scan(&dep.ID, &dep.TenantID, &dep.SourceID, &dep.DependsOnID,
			&dep.Type, &dep.CreatedAt, &dep.CreatedBy); err != nil {
			return nil, fmt.Errorf("failed to scan dependency: %w", err)
		}
		deps = append(deps, &dep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return deps, nil
}
