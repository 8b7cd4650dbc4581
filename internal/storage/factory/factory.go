// Package factory creates storage backends based on configuration.
package factory

import (
	"context"
	"fmt"

	"github.com/sprintlane/sprintlane/internal/config"
	"github.com/sprintlane/sprintlane/internal/storage"
	"github.com/sprintlane/sprintlane/internal/storage/memory"
	"github.com/sprintlane/sprintlane/internal/storage/postgres"
	"github.com/sprintlane/sprintlane/internal/storage/sqlite"
)

// BackendFactory is a function that creates a storage backend
type BackendFactory func(ctx context.Context, dsn string) (storage.Store, error)

// backendRegistry holds registered backend factories
var backendRegistry = make(map[string]BackendFactory)

// RegisterBackend registers a storage backend factory under a name, for
// deployments that bring their own backend.
func RegisterBackend(name string, factory BackendFactory) {
	backendRegistry[name] = factory
}

// New creates a storage backend based on the backend name.
// For SQLite, dsn is the path of the .db file. For postgres, dsn is the
// connection string. The memory backend ignores dsn.
func New(ctx context.Context, backend, dsn string) (storage.Store, error) {
	switch backend {
	case config.BackendSQLite, "":
		return sqlite.New(ctx, dsn)
	case config.BackendPostgres:
		if dsn == "" {
			return nil, fmt.Errorf("postgres backend requires a connection string")
		}
		return postgres.New(ctx, dsn)
	case config.BackendMemory:
		return memory.New(), nil
	default:
		if factory, ok := backendRegistry[backend]; ok {
			return factory(ctx, dsn)
		}
		return nil, fmt.Errorf("unknown storage backend: %s", backend)
	}
}
