// Package sqlite implements the storage interface using SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/sprintlane/sprintlane/internal/storage"
)

// Verify interface compliance at compile time
var _ storage.Store = (*SQLiteStorage)(nil)

// schema defines the database schema. Applied idempotently on open.
const schema = `
-- Tasks table
CREATE TABLE IF NOT EXISTS tasks (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    project_id TEXT NOT NULL,
    title TEXT NOT NULL,
    kind TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'todo',
    created_at DATETIME NOT NULL,
    created_by TEXT NOT NULL DEFAULT '',
    updated_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tasks_tenant ON tasks(tenant_id);
CREATE INDEX IF NOT EXISTS idx_tasks_tenant_project ON tasks(tenant_id, project_id);

-- Dependency edges. The UNIQUE constraint backs the duplicate-edge check;
-- the same pair may carry edges of different types.
CREATE TABLE IF NOT EXISTS dependencies (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    tenant_id TEXT NOT NULL,
    source_id TEXT NOT NULL,
    depends_on_id TEXT NOT NULL,
    type TEXT NOT NULL,
    created_at DATETIME NOT NULL,
    created_by TEXT NOT NULL DEFAULT '',
    UNIQUE(tenant_id, source_id, depends_on_id, type)
);
CREATE INDEX IF NOT EXISTS idx_dependencies_tenant ON dependencies(tenant_id);
CREATE INDEX IF NOT EXISTS idx_dependencies_source ON dependencies(tenant_id, source_id);

-- Append-only transition attempt log. Rows are never updated or deleted.
CREATE TABLE IF NOT EXISTS transition_attempts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    tenant_id TEXT NOT NULL,
    project_id TEXT NOT NULL DEFAULT '',
    entity_kind TEXT NOT NULL,
    entity_id TEXT NOT NULL,
    from_status TEXT NOT NULL,
    to_status TEXT NOT NULL,
    allowed INTEGER NOT NULL,
    acting_role TEXT NOT NULL,
    actor_id TEXT NOT NULL DEFAULT '',
    reason TEXT NOT NULL DEFAULT '',
    attempted_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_attempts_tenant_entity ON transition_attempts(tenant_id, entity_id);
`

// SQLiteStorage implements the Store interface backed by a SQLite database.
type SQLiteStorage struct {
	db   *sql.DB
	path string
}

// connString builds the SQLite connection string with the pragmas the
// engine needs: a busy timeout for lock contention and foreign key
// enforcement.
func connString(path string) string {
	return "file:" + path + "?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
}

// New opens (creating if necessary) a SQLite database at the given path and
// applies the schema.
func New(ctx context.Context, path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", connString(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// BEGIN IMMEDIATE requires raw SQL on a dedicated connection, so the
	// pool must hand the same connection back for the whole transaction.
	db.SetMaxOpenConns(4)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStorage{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *SQLiteStorage) Path() string {
	return s.path
}

// Close closes the database connection pool.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// querier is satisfied by *sql.DB and *sql.Conn, so the query helpers serve
// both the pool-backed methods and the transaction wrapper.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// beginImmediateWithRetry starts an IMMEDIATE transaction, retrying with
// exponential backoff when the write lock is held by another connection.
func beginImmediateWithRetry(ctx context.Context, conn *sql.Conn, attempts int, backoff time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		_, err = conn.ExecContext(ctx, "BEGIN IMMEDIATE")
		if err == nil {
			return nil
		}
		if !isBusyErr(err) {
			return err
		}
		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("database busy after %d attempts: %w", attempts, err)
}

// isBusyErr reports whether the error is SQLITE_BUSY or SQLITE_LOCKED.
// String matching keeps this driver-agnostic.
func isBusyErr(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "busy") || strings.Contains(msg, "locked")
}
