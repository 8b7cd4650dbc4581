package service

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sprintlane/sprintlane/internal/storage/memory"
	"github.com/sprintlane/sprintlane/internal/types"
	"github.com/sprintlane/sprintlane/internal/workflow"
)

type capturePublisher struct {
	events []Event
	err    error
}

func (p *capturePublisher) Publish(_ context.Context, event Event) error {
	p.events = append(p.events, event)
	return p.err
}

func newTestEngine(t *testing.T, opts ...EngineOption) (*Engine, *memory.MemoryStorage) {
	t.Helper()
	store := memory.New()
	base := []EngineOption{
		WithRoleResolver(&StaticRoleResolver{Default: types.RoleContributor}),
	}
	return NewEngine(store, workflow.DefaultStateMachine(), append(base, opts...)...), store
}

func seedTask(t *testing.T, e *Engine, id, tenantID string, status types.Status) {
	t.Helper()
	err := e.CreateTask(context.Background(), &types.Task{
		ID:        id,
		TenantID:  tenantID,
		ProjectID: "proj-1",
		Title:     "Task " + id,
		Kind:      types.KindTask,
		Status:    status,
		CreatedBy: "alice",
	})
	require.NoError(t, err)
}

func TestGetTaskScopedToTenant(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)
	seedTask(t, e, "t-1", "acme", types.StatusTodo)

	task, err := e.GetTask(ctx, "acme", "t-1")
	require.NoError(t, err)
	assert.Equal(t, "t-1", task.ID)

	// Another tenant cannot tell the task exists.
	_, err = e.GetTask(ctx, "globex", "t-1")
	assert.ErrorIs(t, err, types.ErrTaskNotFound)
}

func TestAddDependencyPublishesEvent(t *testing.T) {
	ctx := context.Background()
	pub := &capturePublisher{}
	e, _ := newTestEngine(t, WithPublisher(pub))
	seedTask(t, e, "t-1", "acme", types.StatusTodo)
	seedTask(t, e, "t-2", "acme", types.StatusTodo)

	edgeID, err := e.AddDependency(ctx, "acme", "t-1", "t-2", types.DepFinishToStart, "alice")
	require.NoError(t, err)
	assert.NotZero(t, edgeID)

	require.Len(t, pub.events, 1)
	assert.Equal(t, EventDependencyAdded, pub.events[0].Type)
	assert.Equal(t, "t-1", pub.events[0].EntityID)
	assert.Equal(t, "t-2", pub.events[0].Fields["depends_on"])
}

func TestAddDependencyRejectionPublishesNothing(t *testing.T) {
	ctx := context.Background()
	pub := &capturePublisher{}
	e, _ := newTestEngine(t, WithPublisher(pub))
	seedTask(t, e, "t-1", "acme", types.StatusTodo)

	_, err := e.AddDependency(ctx, "acme", "t-1", "t-1", types.DepFinishToStart, "alice")
	assert.ErrorIs(t, err, types.ErrSelfDependency)
	assert.Empty(t, pub.events)
}

func TestRemoveDependency(t *testing.T) {
	ctx := context.Background()
	pub := &capturePublisher{}
	e, _ := newTestEngine(t, WithPublisher(pub))
	seedTask(t, e, "t-1", "acme", types.StatusTodo)
	seedTask(t, e, "t-2", "acme", types.StatusTodo)

	edgeID, err := e.AddDependency(ctx, "acme", "t-1", "t-2", types.DepFinishToStart, "alice")
	require.NoError(t, err)

	require.NoError(t, e.RemoveDependency(ctx, "acme", edgeID, "alice"))
	err = e.RemoveDependency(ctx, "acme", edgeID, "alice")
	assert.ErrorIs(t, err, types.ErrEdgeNotFound)

	// An identical edge may be re-added after removal.
	_, err = e.AddDependency(ctx, "acme", "t-1", "t-2", types.DepFinishToStart, "alice")
	assert.NoError(t, err)
}

func TestApplyTransitionAllowed(t *testing.T) {
	ctx := context.Background()
	pub := &capturePublisher{}
	e, store := newTestEngine(t, WithPublisher(pub))
	seedTask(t, e, "t-1", "acme", types.StatusTodo)

	decision, err := e.ApplyTransition(ctx, workflow.TransitionRequest{
		Kind:     types.KindTask,
		EntityID: "t-1",
		From:     types.StatusTodo,
		To:       types.StatusInProgress,
		ActorID:  "alice",
		TenantID: "acme",
	})
	require.NoError(t, err)
	assert.True(t, decision.Allowed)

	task, _ := store.GetTask(ctx, "t-1")
	assert.Equal(t, types.StatusInProgress, task.Status)

	require.Len(t, pub.events, 1)
	assert.Equal(t, EventTaskTransitioned, pub.events[0].Type)

	attempts, err := e.Audit(ctx, "acme", "t-1")
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.True(t, attempts[0].Allowed)
	assert.Equal(t, types.RoleContributor, attempts[0].ActingRole)
}

func TestApplyTransitionDenied(t *testing.T) {
	ctx := context.Background()
	pub := &capturePublisher{}
	e, store := newTestEngine(t, WithPublisher(pub))
	seedTask(t, e, "t-1", "acme", types.StatusTodo)

	// todo -> done is not in the table.
	decision, err := e.ApplyTransition(ctx, workflow.TransitionRequest{
		Kind:     types.KindTask,
		EntityID: "t-1",
		From:     types.StatusTodo,
		To:       types.StatusDone,
		ActorID:  "alice",
		TenantID: "acme",
	})
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, "no such transition defined", decision.Reason)

	// Denied: no mutation, no event, but one audit record.
	task, _ := store.GetTask(ctx, "t-1")
	assert.Equal(t, types.StatusTodo, task.Status)
	assert.Empty(t, pub.events)

	attempts, _ := e.Audit(ctx, "acme", "t-1")
	require.Len(t, attempts, 1)
	assert.False(t, attempts[0].Allowed)
}

func TestApplyTransitionRoleDenied(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t, WithRoleResolver(&StaticRoleResolver{Default: types.RoleViewer}))
	seedTask(t, e, "t-1", "acme", types.StatusTodo)

	decision, err := e.ApplyTransition(ctx, workflow.TransitionRequest{
		Kind:     types.KindTask,
		EntityID: "t-1",
		From:     types.StatusTodo,
		To:       types.StatusInProgress,
		ActorID:  "bob",
		TenantID: "acme",
	})
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.ErrorIs(t, decision.Denial, types.ErrMissingCapability)
	assert.Contains(t, decision.Reason, "edit_tasks")
}

func TestApplyTransitionStaleStatus(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)
	seedTask(t, e, "t-1", "acme", types.StatusInProgress)

	// The caller believes the task is still in todo.
	_, err := e.ApplyTransition(ctx, workflow.TransitionRequest{
		Kind:     types.KindTask,
		EntityID: "t-1",
		From:     types.StatusTodo,
		To:       types.StatusInProgress,
		ActorID:  "alice",
		TenantID: "acme",
	})
	assert.ErrorIs(t, err, types.ErrStaleStatus)
}

func TestApplyTransitionWithCondition(t *testing.T) {
	ctx := context.Background()
	approvals := map[string]bool{}
	evaluator := workflow.ConditionFunc(func(_ context.Context, condition, entityID, _ string) (bool, error) {
		if condition != workflow.ConditionQAApproval {
			return false, nil
		}
		return approvals[entityID], nil
	})
	e, _ := newTestEngine(t,
		WithRoleResolver(&StaticRoleResolver{Default: types.RoleReviewer}),
		WithConditionEvaluator(evaluator),
	)
	seedTask(t, e, "t-1", "acme", types.StatusInReview)

	req := workflow.TransitionRequest{
		Kind:     types.KindTask,
		EntityID: "t-1",
		From:     types.StatusInReview,
		To:       types.StatusDone,
		ActorID:  "rita",
		TenantID: "acme",
	}

	decision, err := e.ApplyTransition(ctx, req)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.ErrorIs(t, decision.Denial, types.ErrConditionNotMet)

	approvals["t-1"] = true
	decision, err = e.ApplyTransition(ctx, req)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)

	// Both attempts are on record.
	attempts, _ := e.Audit(ctx, "acme", "t-1")
	assert.Len(t, attempts, 2)
}

func TestPublisherFailureDoesNotFailOperation(t *testing.T) {
	ctx := context.Background()
	pub := &capturePublisher{err: errors.New("broker down")}
	e, _ := newTestEngine(t, WithPublisher(pub))
	seedTask(t, e, "t-1", "acme", types.StatusTodo)
	seedTask(t, e, "t-2", "acme", types.StatusTodo)

	_, err := e.AddDependency(ctx, "acme", "t-1", "t-2", types.DepFinishToStart, "alice")
	assert.NoError(t, err)
}

func TestTypePredicateAppliesRegardlessOfOptionOrder(t *testing.T) {
	ctx := context.Background()
	onlyFinishToStart := func(_, _ *types.Task, depType types.DependencyType) bool {
		return depType == types.DepFinishToStart
	}
	hookedLog, hook := logtest.NewNullLogger()
	hookedLog.SetLevel(logrus.DebugLevel)

	// The predicate option precedes the logger option; both must still
	// reach the dependency policy.
	e, _ := newTestEngine(t,
		WithTypePredicate(onlyFinishToStart),
		WithLogger(hookedLog),
	)
	seedTask(t, e, "t-1", "acme", types.StatusTodo)
	seedTask(t, e, "t-2", "acme", types.StatusTodo)

	_, err := e.AddDependency(ctx, "acme", "t-1", "t-2", types.DepStartToStart, "alice")
	assert.ErrorIs(t, err, types.ErrInvalidDependencyType)

	_, err = e.AddDependency(ctx, "acme", "t-1", "t-2", types.DepFinishToStart, "alice")
	require.NoError(t, err)

	found := false
	for _, entry := range hook.AllEntries() {
		if entry.Message == "dependency added" {
			found = true
		}
	}
	assert.True(t, found, "policy should log through the injected logger")
}

func TestFindCyclesCleanGraph(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)
	seedTask(t, e, "t-1", "acme", types.StatusTodo)
	seedTask(t, e, "t-2", "acme", types.StatusTodo)
	seedTask(t, e, "t-3", "acme", types.StatusTodo)

	_, err := e.AddDependency(ctx, "acme", "t-1", "t-2", types.DepFinishToStart, "alice")
	require.NoError(t, err)
	_, err = e.AddDependency(ctx, "acme", "t-2", "t-3", types.DepFinishToStart, "alice")
	require.NoError(t, err)

	cycles, err := e.FindCycles(ctx, "acme")
	require.NoError(t, err)
	assert.Empty(t, cycles)
}
