// Package memory implements the storage interface using in-memory data
// structures. It backs tests and --no-db mode, where state lives for a
// single process run.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/sprintlane/sprintlane/internal/storage"
	"github.com/sprintlane/sprintlane/internal/types"
)

// Verify interface compliance at compile time
var (
	_ storage.Store       = (*MemoryStorage)(nil)
	_ storage.Transaction = (*memTx)(nil)
)

// MemoryStorage implements the Store interface using mutex-guarded maps.
// A single RWMutex serializes writers, which makes RunInTransaction's
// check-then-act sequences atomic for free.
type MemoryStorage struct {
	mu sync.RWMutex

	tasks    map[string]*types.Task                // task ID -> task
	edges    map[string][]*types.TaskDependency    // tenant ID -> edges, insertion order
	attempts map[string][]*types.TransitionAttempt // tenant ID -> audit records

	nextEdgeID    int64
	nextAttemptID int64
}

// New creates an empty in-memory storage backend.
func New() *MemoryStorage {
	return &MemoryStorage{
		tasks:    make(map[string]*types.Task),
		edges:    make(map[string][]*types.TaskDependency),
		attempts: make(map[string][]*types.TransitionAttempt),
	}
}

// CreateTask persists a new task.
func (m *MemoryStorage) CreateTask(ctx context.Context, task *types.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createTaskLocked(task)
}

func (m *MemoryStorage) createTaskLocked(task *types.Task) error {
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
		return err
	}
	if _, exists := m.tasks[task.ID]; exists {
		return storage.ErrAlreadyExists
	}
	stored := *task
	m.tasks[task.ID] = &stored
	return nil
}

// GetTask returns the task with the given ID, or nil if absent.
func (m *MemoryStorage) GetTask(ctx context.Context, id string) (*types.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getTaskLocked(id), nil
}

func (m *MemoryStorage) getTaskLocked(id string) *types.Task {
	task, ok := m.tasks[id]
	if !ok {
		return nil
	}
	cp := *task
	return &cp
}

// ListTasks returns the tenant's tasks ordered by creation time.
func (m *MemoryStorage) ListTasks(ctx context.Context, tenantID string) ([]*types.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*types.Task
	for _, task := range m.tasks {
		if task.TenantID == tenantID {
			cp := *task
			out = append(out, &cp)
		}
	}
	sortTasksByCreation(out)
	return out, nil
}

func sortTasksByCreation(tasks []*types.Task) {
	for i := 1; i < len(tasks); i++ {
		for j := i; j > 0; j-- {
			a, b := tasks[j-1], tasks[j]
			if a.CreatedAt.After(b.CreatedAt) || (a.CreatedAt.Equal(b.CreatedAt) && a.ID > b.ID) {
				tasks[j-1], tasks[j] = b, a
			} else {
				break
			}
		}
	}
}

// UpdateTaskStatus moves the task to `to`, conditioned on the current
// status still being `from`.
func (m *MemoryStorage) UpdateTaskStatus(ctx context.Context, tenantID, id string, from, to types.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateTaskStatusLocked(tenantID, id, from, to)
}

func (m *MemoryStorage) updateTaskStatusLocked(tenantID, id string, from, to types.Status) error {
	task, ok := m.tasks[id]
	if !ok || task.TenantID != tenantID {
		return types.ErrTaskNotFound
	}
	if task.Status != from {
		return types.ErrStaleStatus
	}
	task.Status = to
	task.UpdatedAt = time.Now()
	return nil
}

// EdgesFrom returns the outgoing edges of a task, in insertion order.
func (m *MemoryStorage) EdgesFrom(ctx context.Context, tenantID, taskID string) ([]*types.TaskDependency, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.edgesFromLocked(tenantID, taskID), nil
}

func (m *MemoryStorage) edgesFromLocked(tenantID, taskID string) []*types.TaskDependency {
	var out []*types.TaskDependency
	for _, e := range m.edges[tenantID] {
		if e.SourceID == taskID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out
}

// AllEdges returns every edge in the tenant's graph.
func (m *MemoryStorage) AllEdges(ctx context.Context, tenantID string) ([]*types.TaskDependency, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.allEdgesLocked(tenantID), nil
}

func (m *MemoryStorage) allEdgesLocked(tenantID string) []*types.TaskDependency {
	edges := m.edges[tenantID]
	out := make([]*types.TaskDependency, 0, len(edges))
	for _, e := range edges {
		cp := *e
		out = append(out, &cp)
	}
	return out
}

// EdgeExists reports whether an identical edge is already present.
func (m *MemoryStorage) EdgeExists(ctx context.Context, tenantID, sourceID, dependsOnID string, depType types.DependencyType) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.edgeExistsLocked(tenantID, sourceID, dependsOnID, depType), nil
}

func (m *MemoryStorage) edgeExistsLocked(tenantID, sourceID, dependsOnID string, depType types.DependencyType) bool {
	for _, e := range m.edges[tenantID] {
		if e.SourceID == sourceID && e.DependsOnID == dependsOnID && e.Type == depType {
			return true
		}
	}
	return false
}

// InsertEdge persists a new edge and returns its ID.
func (m *MemoryStorage) InsertEdge(ctx context.Context, dep *types.TaskDependency) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertEdgeLocked(dep)
}

func (m *MemoryStorage) insertEdgeLocked(dep *types.TaskDependency) (int64, error) {
	if dep.CreatedAt.IsZero() {
		dep.CreatedAt = time.Now()
	}
	if err := dep.Validate(); err != nil {
		return 0, err
	}
	m.nextEdgeID++
	stored := *dep
	stored.ID = m.nextEdgeID
	m.edges[dep.TenantID] = append(m.edges[dep.TenantID], &stored)
	return stored.ID, nil
}

// RemoveEdge hard-deletes an edge by ID within the tenant.
func (m *MemoryStorage) RemoveEdge(ctx context.Context, tenantID string, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.removeEdgeLocked(tenantID, id)
}

func (m *MemoryStorage) removeEdgeLocked(tenantID string, id int64) error {
	edges := m.edges[tenantID]
	for i, e := range edges {
		if e.ID == id {
			m.edges[tenantID] = append(edges[:i], edges[i+1:]...)
			return nil
		}
	}
	return types.ErrEdgeNotFound
}

// AppendAttempt writes one transition attempt record.
func (m *MemoryStorage) AppendAttempt(ctx context.Context, attempt *types.TransitionAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if attempt.AttemptedAt.IsZero() {
		attempt.AttemptedAt = time.Now()
	}
	m.nextAttemptID++
	stored := *attempt
	stored.ID = m.nextAttemptID
	attempt.ID = stored.ID
	m.attempts[attempt.TenantID] = append(m.attempts[attempt.TenantID], &stored)
	return nil
}

// ListAttempts returns the recorded attempts, most recent first. Copies are
// returned so callers cannot mutate the stored records.
func (m *MemoryStorage) ListAttempts(ctx context.Context, tenantID, entityID string) ([]*types.TransitionAttempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*types.TransitionAttempt
	records := m.attempts[tenantID]
	for i := len(records) - 1; i >= 0; i-- {
		if entityID != "" && records[i].EntityID != entityID {
			continue
		}
		cp := *records[i]
		out = append(out, &cp)
	}
	return out, nil
}

// memTx is the Transaction view over a locked MemoryStorage.
type memTx struct {
	m *MemoryStorage
}

func (t *memTx) CreateTask(ctx context.Context, task *types.Task) error {
	return t.m.createTaskLocked(task)
}

func (t *memTx) GetTask(ctx context.Context, id string) (*types.Task, error) {
	return t.m.getTaskLocked(id), nil
}

func (t *memTx) ListTasks(ctx context.Context, tenantID string) ([]*types.Task, error) {
	var out []*types.Task
	for _, task := range t.m.tasks {
		if task.TenantID == tenantID {
			cp := *task
			out = append(out, &cp)
		}
	}
	sortTasksByCreation(out)
	return out, nil
}

func (t *memTx) UpdateTaskStatus(ctx context.Context, tenantID, id string, from, to types.Status) error {
	return t.m.updateTaskStatusLocked(tenantID, id, from, to)
}

func (t *memTx) EdgesFrom(ctx context.Context, tenantID, taskID string) ([]*types.TaskDependency, error) {
	return t.m.edgesFromLocked(tenantID, taskID), nil
}

func (t *memTx) AllEdges(ctx context.Context, tenantID string) ([]*types.TaskDependency, error) {
	return t.m.allEdgesLocked(tenantID), nil
}

func (t *memTx) EdgeExists(ctx context.Context, tenantID, sourceID, dependsOnID string, depType types.DependencyType) (bool, error) {
	return t.m.edgeExistsLocked(tenantID, sourceID, dependsOnID, depType), nil
}

func (t *memTx) InsertEdge(ctx context.Context, dep *types.TaskDependency) (int64, error) {
	return t.m.insertEdgeLocked(dep)
}

func (t *memTx) RemoveEdge(ctx context.Context, tenantID string, id int64) error {
	return t.m.removeEdgeLocked(tenantID, id)
}

// RunInTransaction executes fn while holding the write lock, so the
// callback observes and mutates a consistent snapshot. On error the
// tenant's state is restored from a pre-callback snapshot.
func (m *MemoryStorage) RunInTransaction(ctx context.Context, tenantID string, fn func(tx storage.Transaction) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	// Snapshot for rollback: tenant edge list, edge counter, and task
	// states. Tasks are keyed globally, so snapshot all of them; the map is
	// small in the deployments this backend serves.
	edgeSnapshot := make([]*types.TaskDependency, len(m.edges[tenantID]))
	copy(edgeSnapshot, m.edges[tenantID])
	idSnapshot := m.nextEdgeID
	taskSnapshot := make(map[string]types.Task, len(m.tasks))
	for id, task := range m.tasks {
		taskSnapshot[id] = *task
	}

	if err := fn(&memTx{m: m}); err != nil {
		m.edges[tenantID] = edgeSnapshot
		m.nextEdgeID = idSnapshot
		m.tasks = make(map[string]*types.Task, len(taskSnapshot))
		for id, task := range taskSnapshot {
			stored := task
			m.tasks[id] = &stored
		}
		return err
	}
	return nil
}

// Close releases the backend's resources. No-op for memory.
func (m *MemoryStorage) Close() error {
	return nil
}
