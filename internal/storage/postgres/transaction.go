package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/sprintlane/sprintlane/internal/storage"
	"github.com/sprintlane/sprintlane/internal/types"
)

// Verify pgTxStorage implements storage.Transaction at compile time
var _ storage.Transaction = (*pgTxStorage)(nil)

// pgTxStorage implements the storage.Transaction interface over an active
// database transaction.
type pgTxStorage struct {
	tx *sqlx.Tx
}

// RunInTransaction executes a function within a database transaction.
//
// The first statement takes a transaction-scoped advisory lock keyed on the
// tenant ID, so concurrent graph mutations for the same tenant serialize:
// the callback's duplicate and cycle checks observe every edge committed by
// earlier writers. Different tenants proceed in parallel. The lock is
// released automatically at COMMIT or ROLLBACK.
//
// Panic safety: if the callback panics, the transaction is rolled back and
// the panic is re-raised to the caller.
func (s *PostgresStorage) RunInTransaction(ctx context.Context, tenantID string, fn func(tx storage.Transaction) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, tenantID); err != nil {
		return fmt.Errorf("failed to acquire tenant lock: %w", err)
	}

	if err := fn(&pgTxStorage{tx: tx}); err != nil {
		return err // Rollback happens in defer
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true
	return nil
}

// CreateTask creates a task within the transaction.
func (t *pgTxStorage) CreateTask(ctx context.Context, task *types.Task) error {
	return createTask(ctx, t.tx, task)
}

// GetTask retrieves a task within the transaction. This enables
// read-your-writes semantics within the transaction.
func (t *pgTxStorage) GetTask(ctx context.Context, id string) (*types.Task, error) {
	return getTask(ctx, t.tx, id)
}

// ListTasks lists a tenant's tasks within the transaction.
func (t *pgTxStorage) ListTasks(ctx context.Context, tenantID string) ([]*types.Task, error) {
	return listTasks(ctx, t.tx, tenantID)
}

// UpdateTaskStatus performs the optimistic status write within the transaction.
func (t *pgTxStorage) UpdateTaskStatus(ctx context.Context, tenantID, id string, from, to types.Status) error {
	return updateTaskStatus(ctx, t.tx, tenantID, id, from, to)
}

// EdgesFrom returns a task's outgoing edges within the transaction.
func (t *pgTxStorage) EdgesFrom(ctx context.Context, tenantID, taskID string) ([]*types.TaskDependency, error) {
	return edgesFrom(ctx, t.tx, tenantID, taskID)
}

// AllEdges returns the tenant's edge set within the transaction.
func (t *pgTxStorage) AllEdges(ctx context.Context, tenantID string) ([]*types.TaskDependency, error) {
	return allEdges(ctx, t.tx, tenantID)
}

// EdgeExists checks for an identical edge within the transaction.
func (t *pgTxStorage) EdgeExists(ctx context.Context, tenantID, sourceID, dependsOnID string, depType types.DependencyType) (bool, error) {
	return edgeExists(ctx, t.tx, tenantID, sourceID, dependsOnID, depType)
}

// InsertEdge inserts an edge within the transaction.
func (t *pgTxStorage) InsertEdge(ctx context.Context, dep *types.TaskDependency) (int64, error) {
	return insertEdge(ctx, t.tx, dep)
}

// RemoveEdge removes an edge within the transaction.
func (t *pgTxStorage) RemoveEdge(ctx context.Context, tenantID string, id int64) error {
	return removeEdge(ctx, t.tx, tenantID, id)
}
