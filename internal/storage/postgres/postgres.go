// Package postgres implements the storage interface using PostgreSQL.
// It is the backend for shared multi-tenant deployments, where several API
// nodes write through one database and per-tenant advisory locks serialize
// graph mutations.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/sprintlane/sprintlane/internal/storage"
)

// Verify interface compliance at compile time
var _ storage.Store = (*PostgresStorage)(nil)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// PostgresStorage implements the Store interface backed by PostgreSQL.
type PostgresStorage struct {
	db *sqlx.DB
}

// New connects to the database identified by dsn and verifies the
// connection. Schema management is separate; run Migrate first (or the
// `sl migrate` command).
func New(ctx context.Context, dsn string) (*PostgresStorage, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	db.SetMaxOpenConns(16)
	return &PostgresStorage{db: db}, nil
}

// Migrate applies all pending schema migrations to the database.
func Migrate(dsn string) error {
	source, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", source, dsn)
	if err != nil {
		return fmt.Errorf("failed to initialize migrations: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// Close closes the database connection pool.
func (s *PostgresStorage) Close() error {
	return s.db.Close()
}

// isUniqueViolation reports whether the error is a unique_violation (23505).
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
