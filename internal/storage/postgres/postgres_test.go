package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/sprintlane/sprintlane/internal/storage"
	"github.com/sprintlane/sprintlane/internal/types"
)

// setupTestDB connects to the database named by TEST_DATABASE_URL and
// applies migrations. Tests are skipped when the variable is unset so the
// suite passes without a running postgres.
func setupTestDB(t *testing.T) (*PostgresStorage, func()) {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set; skipping postgres tests")
	}
	if err := Migrate(dsn); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	store, err := New(context.Background(), dsn)
	if err != nil {
		t.Fatalf("failed to connect to test database: %v", err)
	}
	return store, func() { _ = store.Close() }
}

// testTenant returns a tenant ID unique to this test run, so tests can
// share one database without cleaning up after each other.
func testTenant(t *testing.T) string {
	t.Helper()
	return fmt.Sprintf("test-%s-%d", t.Name(), time.Now().UnixNano())
}

func newTask(id, tenantID string) *types.Task {
	return &types.Task{
		ID:        tenantID + "-" + id,
		TenantID:  tenantID,
		ProjectID: "proj-1",
		Title:     "Task " + id,
		Kind:      types.KindTask,
		Status:    types.StatusTodo,
		CreatedBy: "alice",
	}
}

func TestTaskRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, cleanup := setupTestDB(t)
	defer cleanup()
	tenant := testTenant(t)

	task := newTask("t-1", tenant)
	if err := store.CreateTask(ctx, task); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	got, err := store.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected task, got nil")
	}
	if got.TenantID != tenant {
		t.Errorf("expected tenant %s, got %s", tenant, got.TenantID)
	}

	if err := store.CreateTask(ctx, newTask("t-1", tenant)); !errors.Is(err, storage.ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestUpdateTaskStatusOptimistic(t *testing.T) {
	ctx := context.Background()
	store, cleanup := setupTestDB(t)
	defer cleanup()
	tenant := testTenant(t)

	task := newTask("t-1", tenant)
	if err := store.CreateTask(ctx, task); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	if err := store.UpdateTaskStatus(ctx, tenant, task.ID, types.StatusTodo, types.StatusInProgress); err != nil {
		t.Fatalf("UpdateTaskStatus failed: %v", err)
	}
	err := store.UpdateTaskStatus(ctx, tenant, task.ID, types.StatusTodo, types.StatusDone)
	if !errors.Is(err, types.ErrStaleStatus) {
		t.Errorf("expected ErrStaleStatus, got %v", err)
	}
	err = store.UpdateTaskStatus(ctx, tenant, "nonexistent", types.StatusTodo, types.StatusDone)
	if !errors.Is(err, types.ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestEdgeLifecycle(t *testing.T) {
	ctx := context.Background()
	store, cleanup := setupTestDB(t)
	defer cleanup()
	tenant := testTenant(t)

	a, b := newTask("t-1", tenant), newTask("t-2", tenant)
	for _, task := range []*types.Task{a, b} {
		if err := store.CreateTask(ctx, task); err != nil {
			t.Fatalf("CreateTask failed: %v", err)
		}
	}

	id, err := store.InsertEdge(ctx, &types.TaskDependency{
		TenantID: tenant, SourceID: a.ID, DependsOnID: b.ID,
		Type: types.DepFinishToStart, CreatedBy: "alice",
	})
	if err != nil {
		t.Fatalf("InsertEdge failed: %v", err)
	}

	_, err = store.InsertEdge(ctx, &types.TaskDependency{
		TenantID: tenant, SourceID: a.ID, DependsOnID: b.ID,
		Type: types.DepFinishToStart, CreatedBy: "alice",
	})
	if !errors.Is(err, types.ErrDuplicateDependency) {
		t.Errorf("expected ErrDuplicateDependency, got %v", err)
	}

	exists, err := store.EdgeExists(ctx, tenant, a.ID, b.ID, types.DepFinishToStart)
	if err != nil {
		t.Fatalf("EdgeExists failed: %v", err)
	}
	if !exists {
		t.Error("expected edge to exist")
	}

	all, err := store.AllEdges(ctx, tenant)
	if err != nil {
		t.Fatalf("AllEdges failed: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 edge, got %d", len(all))
	}

	if err := store.RemoveEdge(ctx, tenant, id); err != nil {
		t.Fatalf("RemoveEdge failed: %v", err)
	}
	if err := store.RemoveEdge(ctx, tenant, id); !errors.Is(err, types.ErrEdgeNotFound) {
		t.Errorf("expected ErrEdgeNotFound on double remove, got %v", err)
	}
}

func TestRunInTransactionRollbackOnError(t *testing.T) {
	ctx := context.Background()
	store, cleanup := setupTestDB(t)
	defer cleanup()
	tenant := testTenant(t)

	a, b := newTask("t-1", tenant), newTask("t-2", tenant)
	for _, task := range []*types.Task{a, b} {
		if err := store.CreateTask(ctx, task); err != nil {
			t.Fatalf("CreateTask failed: %v", err)
		}
	}

	boom := errors.New("intentional test error")
	err := store.RunInTransaction(ctx, tenant, func(tx storage.Transaction) error {
		if _, err := tx.InsertEdge(ctx, &types.TaskDependency{
			TenantID: tenant, SourceID: a.ID, DependsOnID: b.ID,
			Type: types.DepFinishToStart, CreatedBy: "alice",
		}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}

	edges, _ := store.AllEdges(ctx, tenant)
	if len(edges) != 0 {
		t.Errorf("expected no edges after rollback, got %d", len(edges))
	}
}

func TestAppendAndListAttempts(t *testing.T) {
	ctx := context.Background()
	store, cleanup := setupTestDB(t)
	defer cleanup()
	tenant := testTenant(t)

	attempt := &types.TransitionAttempt{
		TenantID:   tenant,
		ProjectID:  "proj-1",
		EntityKind: types.KindTask,
		EntityID:   "t-1",
		FromStatus: types.StatusTodo,
		ToStatus:   types.StatusInProgress,
		Allowed:    true,
		ActingRole: types.RoleContributor,
		ActorID:    "alice",
	}
	if err := store.AppendAttempt(ctx, attempt); err != nil {
		t.Fatalf("AppendAttempt failed: %v", err)
	}
	if attempt.ID == 0 {
		t.Error("expected AppendAttempt to assign an ID")
	}

	attempts, err := store.ListAttempts(ctx, tenant, "t-1")
	if err != nil {
		t.Fatalf("ListAttempts failed: %v", err)
	}
	if len(attempts) != 1 {
		t.Fatalf("expected 1 attempt, got %d", len(attempts))
	}
	if !attempts[0].Allowed {
		t.Error("expected the attempt to be allowed")
	}
}
