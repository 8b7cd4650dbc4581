// Package storage defines the interfaces for the tracking engine's storage backends.
package storage

import (
	"context"

	"github.com/sprintlane/sprintlane/internal/types"
)

// TaskStore provides access to the task table. GetTask resolves by ID alone
// and reports the owning tenant; callers enforce tenancy on the result.
type TaskStore interface {
	// CreateTask persists a new task. The task must validate.
	CreateTask(ctx context.Context, task *types.Task) error

	// GetTask returns the task with the given ID, or nil if it does not exist.
	GetTask(ctx context.Context, id string) (*types.Task, error)

	// ListTasks returns all tasks belonging to the tenant, ordered by creation.
	ListTasks(ctx context.Context, tenantID string) ([]*types.Task, error)

	// UpdateTaskStatus moves the task to status `to`, conditioned on its
	// status still being `from` at write time. Returns types.ErrStaleStatus
	// when the condition fails and types.ErrTaskNotFound when the task does
	// not exist in the tenant.
	UpdateTaskStatus(ctx context.Context, tenantID, id string, from, to types.Status) error
}

// DependencyStore provides access to the dependency edge table. Every
// operation is scoped to a tenant; no call can observe or mutate another
// tenant's edges.
type DependencyStore interface {
	// EdgesFrom returns the outgoing edges of a task, ordered by creation.
	EdgesFrom(ctx context.Context, tenantID, taskID string) ([]*types.TaskDependency, error)

	// AllEdges returns every edge in the tenant's graph.
	AllEdges(ctx context.Context, tenantID string) ([]*types.TaskDependency, error)

	// EdgeExists reports whether an identical (source, depends-on, type)
	// edge is already present.
	EdgeExists(ctx context.Context, tenantID, sourceID, dependsOnID string, depType types.DependencyType) (bool, error)

	// InsertEdge persists a new edge and returns its storage-assigned ID.
	InsertEdge(ctx context.Context, dep *types.TaskDependency) (int64, error)

	// RemoveEdge hard-deletes an edge by ID. Returns types.ErrEdgeNotFound
	// when the edge does not exist or belongs to another tenant.
	RemoveEdge(ctx context.Context, tenantID string, id int64) error
}

// AuditStore is the append-only transition attempt log. Records are never
// updated or deleted.
type AuditStore interface {
	// AppendAttempt writes one transition attempt record.
	AppendAttempt(ctx context.Context, attempt *types.TransitionAttempt) error

	// ListAttempts returns the attempts recorded for an entity, most recent
	// first. An empty entityID returns all attempts for the tenant.
	ListAttempts(ctx context.Context, tenantID, entityID string) ([]*types.TransitionAttempt, error)
}

// Transaction exposes the task and dependency operations available inside
// an atomic unit of work. The dependency policy runs its check-and-insert
// sequence entirely through this interface so that concurrent requests
// cannot interleave between the cycle check and the edge write.
type Transaction interface {
	TaskStore
	DependencyStore
}

// Store is the full storage backend contract.
type Store interface {
	TaskStore
	DependencyStore
	AuditStore

	// RunInTransaction executes fn within a transaction that observes a
	// consistent snapshot of the tenant's state. On error the transaction
	// is rolled back; otherwise it commits. Backends serialize writers per
	// tenant (or globally) so that check-then-act sequences are atomic.
	RunInTransaction(ctx context.Context, tenantID string, fn func(tx Transaction) error) error

	// Close releases the backend's resources.
	Close() error
}
