package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sprintlane/sprintlane/internal/storage"
	"github.com/sprintlane/sprintlane/internal/types"
)

// Verify sqliteTxStorage implements storage.Transaction at compile time
var _ storage.Transaction = (*sqliteTxStorage)(nil)

// sqliteTxStorage implements the storage.Transaction interface for SQLite.
// It wraps a dedicated database connection with an active transaction.
type sqliteTxStorage struct {
	conn *sql.Conn
}

// RunInTransaction executes a function within a database transaction.
//
// The transaction uses BEGIN IMMEDIATE to acquire the write lock up front,
// so the callback's check-then-act sequences (duplicate check, cycle check,
// insert) observe a stable edge set: no other writer can commit between the
// checks and the insert. SQLite's single-writer model already serializes
// across tenants, so tenantID is not used for locking here.
//
// Transaction lifecycle:
//  1. Acquire dedicated connection from pool
//  2. Begin IMMEDIATE transaction with retry on SQLITE_BUSY
//  3. Execute user function with Transaction interface
//  4. On success: COMMIT
//  5. On error or panic: ROLLBACK
//
// Panic safety: if the callback panics, the transaction is rolled back and
// the panic is re-raised to the caller.
func (s *SQLiteStorage) RunInTransaction(ctx context.Context, tenantID string, fn func(tx storage.Transaction) error) error {
	// Acquire a dedicated connection for the transaction. Raw SQL
	// ("BEGIN IMMEDIATE", "COMMIT") must execute on the same connection;
	// database/sql's pool would otherwise spread statements across
	// connections.
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection for transaction: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if err := beginImmediateWithRetry(ctx, conn, 5, 10*time.Millisecond); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	// Track commit state for cleanup. Rollback uses a background context so
	// cleanup completes even if ctx is canceled.
	committed := false
	defer func() {
		if !committed {
			_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
		}
	}()

	if err := fn(&sqliteTxStorage{conn: conn}); err != nil {
		return err // Rollback happens in defer
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true
	return nil
}

// CreateTask creates a task within the transaction.
func (t *sqliteTxStorage) CreateTask(ctx context.Context, task *types.Task) error {
	return createTask(ctx, t.conn, task)
}

// GetTask retrieves a task within the transaction. This enables
// read-your-writes semantics within the transaction.
func (t *sqliteTxStorage) GetTask(ctx context.Context, id string) (*types.Task, error) {
	return getTask(ctx, t.conn, id)
}

// ListTasks lists a tenant's tasks within the transaction.
func (t *sqliteTxStorage) ListTasks(ctx context.Context, tenantID string) ([]*types.Task, error) {
	return listTasks(ctx, t.conn, tenantID)
}

// UpdateTaskStatus performs the optimistic status write within the transaction.
func (t *sqliteTxStorage) UpdateTaskStatus(ctx context.Context, tenantID, id string, from, to types.Status) error {
	return updateTaskStatus(ctx, t.conn, tenantID, id, from, to)
}

// EdgesFrom returns a task's outgoing edges within the transaction.
func (t *sqliteTxStorage) EdgesFrom(ctx context.Context, tenantID, taskID string) ([]*types.TaskDependency, error) {
	return edgesFrom(ctx, t.conn, tenantID, taskID)
}

// AllEdges returns the tenant's edge set within the transaction.
func (t *sqliteTxStorage) AllEdges(ctx context.Context, tenantID string) ([]*types.TaskDependency, error) {
	return allEdges(ctx, t.conn, tenantID)
}

// EdgeExists checks for an identical edge within the transaction.
func (t *sqliteTxStorage) EdgeExists(ctx context.Context, tenantID, sourceID, dependsOnID string, depType types.DependencyType) (bool, error) {
	return edgeExists(ctx, t.conn, tenantID, sourceID, dependsOnID, depType)
}

// InsertEdge inserts an edge within the transaction.
func (t *sqliteTxStorage) InsertEdge(ctx context.Context, dep *types.TaskDependency) (int64, error) {
	return insertEdge(ctx, t.conn, dep)
}

// RemoveEdge removes an edge within the transaction.
func (t *sqliteTxStorage) RemoveEdge(ctx context.Context, tenantID string, id int64) error {
	return removeEdge(ctx, t.conn, tenantID, id)
}
