package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/sprintlane/sprintlane/internal/storage"
	"github.com/sprintlane/sprintlane/internal/types"
)

// TransitionRequest carries everything the validator needs to decide a
// status change. The validator itself never mutates entity state; the
// caller applies the new status only when the decision allows it.
type TransitionRequest struct {
	Kind       types.EntityKind
	EntityID   string
	From       types.Status
	To         types.Status
	ActingRole types.Role
	ActorID    string
	TenantID   string
	ProjectID  string
}

// Decision is the outcome of a transition validation. When denied, Reason
// is a human-readable explanation and Denial is the matching sentinel error
// (types.ErrNoSuchTransition, types.ErrMissingCapability or
// types.ErrConditionNotMet).
type Decision struct {
	Allowed bool
	Reason  string
	Denial  error
}

// ConditionEvaluator evaluates a named business condition for an entity.
// Supplied by the caller; the engine owns no condition semantics.
type ConditionEvaluator interface {
	Evaluate(ctx context.Context, condition, entityID, tenantID string) (bool, error)
}

// ConditionFunc adapts a function to the ConditionEvaluator interface.
type ConditionFunc func(ctx context.Context, condition, entityID, tenantID string) (bool, error)

// Evaluate implements ConditionEvaluator.
func (f ConditionFunc) Evaluate(ctx context.Context, condition, entityID, tenantID string) (bool, error) {
	return f(ctx, condition, entityID, tenantID)
}

// Validator decides transition requests against a state machine and records
// every attempt in the audit store.
type Validator struct {
	machine *StateMachine
	audit   storage.AuditStore

	// now is swappable for tests
	now func() time.Time
}

// NewValidator creates a transition validator.
func NewValidator(machine *StateMachine, audit storage.AuditStore) *Validator {
	return &Validator{machine: machine, audit: audit, now: time.Now}
}

// Validate decides whether the requested transition is legal and appends
// exactly one audit record matching the decision.
//
// Decision steps: (1) the (kind, from, to) triple must have a table entry;
// (2) the acting role must hold the entry's required capability; (3) when
// the entry names a condition, the supplied evaluator must return true.
//
// The error return is reserved for infrastructure failures (evaluator
// error, audit write failure, canceled context); a denied transition is a
// successful validation with Allowed=false. If the context is canceled
// before the audit write, the call aborts with no record written — there
// are no partial audit entries.
func (v *Validator) Validate(ctx context.Context, req TransitionRequest, evaluator ConditionEvaluator) (Decision, error) {
	decision := Decision{Allowed: true}

	rule, ok := v.machine.Lookup(req.Kind, req.From, req.To)
	switch {
	case !ok:
		decision = Decision{
			Reason: "no such transition defined",
			Denial: types.ErrNoSuchTransition,
		}
	case !req.ActingRole.Has(rule.Requires):
		decision = Decision{
			Reason: fmt.Sprintf("role %q lacks capability %q", req.ActingRole, rule.Requires),
			Denial: types.ErrMissingCapability,
		}
	case rule.Condition != "":
		met := false
		if evaluator != nil {
			var err error
			met, err = evaluator.Evaluate(ctx, rule.Condition, req.EntityID, req.TenantID)
			if err != nil {
				return Decision{}, fmt.Errorf("evaluate condition %q: %w", rule.Condition, err)
			}
		}
		if !met {
			decision = Decision{
				Reason: fmt.Sprintf("condition %q not met", rule.Condition),
				Denial: types.ErrConditionNotMet,
			}
		}
	}

	// Abort before the audit write on cancellation; never write a partial
	// or post-cancellation record.
	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}

	attempt := &types.TransitionAttempt{
		TenantID:    req.TenantID,
		ProjectID:   req.ProjectID,
		EntityKind:  req.Kind,
		EntityID:    req.EntityID,
		FromStatus:  req.From,
		ToStatus:    req.To,
		Allowed:     decision.Allowed,
		ActingRole:  req.ActingRole,
		ActorID:     req.ActorID,
		Reason:      decision.Reason,
		AttemptedAt: v.now(),
	}
	if err := v.audit.AppendAttempt(ctx, attempt); err != nil {
		return Decision{}, fmt.Errorf("record transition attempt: %w", err)
	}

	return decision, nil
}
