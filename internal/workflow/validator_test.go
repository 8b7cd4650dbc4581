package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sprintlane/sprintlane/internal/storage/memory"
	"github.com/sprintlane/sprintlane/internal/types"
)

func newTestValidator(t *testing.T) (*Validator, *memory.MemoryStorage) {
	t.Helper()
	store := memory.New()
	return NewValidator(DefaultStateMachine(), store), store
}

func request(from, to types.Status, role types.Role) TransitionRequest {
	return TransitionRequest{
		Kind:       types.KindTask,
		EntityID:   "t-1",
		From:       from,
		To:         to,
		ActingRole: role,
		ActorID:    "alice",
		TenantID:   "acme",
		ProjectID:  "proj-1",
	}
}

func TestValidateAllowed(t *testing.T) {
	ctx := context.Background()
	v, store := newTestValidator(t)

	decision, err := v.Validate(ctx, request(types.StatusTodo, types.StatusInProgress, types.RoleContributor), nil)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Empty(t, decision.Reason)
	assert.NoError(t, decision.Denial)

	attempts, err := store.ListAttempts(ctx, "acme", "t-1")
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.True(t, attempts[0].Allowed)
	assert.Equal(t, types.StatusTodo, attempts[0].FromStatus)
	assert.Equal(t, types.StatusInProgress, attempts[0].ToStatus)
	assert.Equal(t, "alice", attempts[0].ActorID)
}

func TestValidateNoSuchTransition(t *testing.T) {
	ctx := context.Background()
	v, store := newTestValidator(t)

	decision, err := v.Validate(ctx, request(types.StatusTodo, types.StatusDone, types.RoleMaintainer), nil)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, "no such transition defined", decision.Reason)
	assert.ErrorIs(t, decision.Denial, types.ErrNoSuchTransition)

	// Denials are audited too.
	attempts, _ := store.ListAttempts(ctx, "acme", "t-1")
	require.Len(t, attempts, 1)
	assert.False(t, attempts[0].Allowed)
	assert.Equal(t, "no such transition defined", attempts[0].Reason)
}

func TestValidateMissingCapability(t *testing.T) {
	ctx := context.Background()
	v, _ := newTestValidator(t)

	// in_review -> done needs review_tasks; a contributor lacks it.
	decision, err := v.Validate(ctx, request(types.StatusInReview, types.StatusDone, types.RoleContributor), nil)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.ErrorIs(t, decision.Denial, types.ErrMissingCapability)
	assert.Contains(t, decision.Reason, "contributor")
	assert.Contains(t, decision.Reason, "review_tasks")
}

func TestValidateCondition(t *testing.T) {
	ctx := context.Background()
	v, _ := newTestValidator(t)

	approved := false
	evaluator := ConditionFunc(func(_ context.Context, condition, _, _ string) (bool, error) {
		assert.Equal(t, ConditionQAApproval, condition)
		return approved, nil
	})

	decision, err := v.Validate(ctx, request(types.StatusInReview, types.StatusDone, types.RoleReviewer), evaluator)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.ErrorIs(t, decision.Denial, types.ErrConditionNotMet)
	assert.Contains(t, decision.Reason, "qa_approval")

	approved = true
	decision, err = v.Validate(ctx, request(types.StatusInReview, types.StatusDone, types.RoleReviewer), evaluator)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestValidateConditionWithoutEvaluator(t *testing.T) {
	ctx := context.Background()
	v, _ := newTestValidator(t)

	// No evaluator supplied means the condition cannot be verified, so the
	// transition is denied rather than waved through.
	decision, err := v.Validate(ctx, request(types.StatusInReview, types.StatusDone, types.RoleReviewer), nil)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.ErrorIs(t, decision.Denial, types.ErrConditionNotMet)
}

func TestValidateEvaluatorError(t *testing.T) {
	ctx := context.Background()
	v, store := newTestValidator(t)

	boom := errors.New("approval service unavailable")
	evaluator := ConditionFunc(func(context.Context, string, string, string) (bool, error) {
		return false, boom
	})

	_, err := v.Validate(ctx, request(types.StatusInReview, types.StatusDone, types.RoleReviewer), evaluator)
	assert.ErrorIs(t, err, boom)

	// Infrastructure failure: no decision was reached, no record written.
	attempts, _ := store.ListAttempts(ctx, "acme", "t-1")
	assert.Empty(t, attempts)
}

func TestValidateCanceledContextWritesNoRecord(t *testing.T) {
	v, store := newTestValidator(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := v.Validate(ctx, request(types.StatusTodo, types.StatusInProgress, types.RoleContributor), nil)
	assert.ErrorIs(t, err, context.Canceled)

	attempts, _ := store.ListAttempts(context.Background(), "acme", "t-1")
	assert.Empty(t, attempts)
}

func TestValidateExactlyOneRecordPerCall(t *testing.T) {
	ctx := context.Background()
	v, store := newTestValidator(t)

	calls := []TransitionRequest{
		request(types.StatusTodo, types.StatusInProgress, types.RoleContributor), // allowed
		request(types.StatusTodo, types.StatusDone, types.RoleContributor),      // no such transition
		request(types.StatusInReview, types.StatusDone, types.RoleViewer),       // missing capability
	}
	for _, req := range calls {
		_, err := v.Validate(ctx, req, nil)
		require.NoError(t, err)
	}

	attempts, err := store.ListAttempts(ctx, "acme", "t-1")
	require.NoError(t, err)
	assert.Len(t, attempts, len(calls))
}

func TestValidateTimestampsFromClock(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	v := NewValidator(DefaultStateMachine(), store)
	fixed := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	v.now = func() time.Time { return fixed }

	_, err := v.Validate(ctx, request(types.StatusTodo, types.StatusInProgress, types.RoleContributor), nil)
	require.NoError(t, err)

	attempts, _ := store.ListAttempts(ctx, "acme", "t-1")
	require.Len(t, attempts, 1)
	assert.Equal(t, fixed, attempts[0].AttemptedAt)
}
