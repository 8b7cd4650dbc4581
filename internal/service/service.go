// Package service exposes the engine façade that callers (the CLI, the
// platform's API handlers) program against. It wires the dependency policy,
// the transition validator and the storage backend together, and publishes
// post-commit events to an injected publisher.
package service

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/sprintlane/sprintlane/internal/graph"
	"github.com/sprintlane/sprintlane/internal/storage"
	"github.com/sprintlane/sprintlane/internal/types"
	"github.com/sprintlane/sprintlane/internal/workflow"
)

// RoleResolver maps an acting user to their role within a tenant's project.
// The platform's membership service implements this; the CLI uses a static
// resolver fed from configuration.
type RoleResolver interface {
	Resolve(ctx context.Context, tenantID, projectID, actorID string) (types.Role, error)
}

// StaticRoleResolver resolves every actor to a fixed role, with optional
// per-actor overrides.
type StaticRoleResolver struct {
	Default   types.Role
	Overrides map[string]types.Role
}

// Resolve implements RoleResolver.
func (r *StaticRoleResolver) Resolve(_ context.Context, _, _, actorID string) (types.Role, error) {
	if role, ok := r.Overrides[actorID]; ok {
		return role, nil
	}
	if r.Default == "" {
		return types.RoleViewer, nil
	}
	return r.Default, nil
}

// Event is a post-commit notification emitted after a successful mutation.
type Event struct {
	Type     string                 `json:"type"`
	TenantID string                 `json:"tenant_id"`
	EntityID string                 `json:"entity_id"`
	Actor    string                 `json:"actor,omitempty"`
	Fields   map[string]interface{} `json:"fields,omitempty"`
}

// Event type constants
const (
	EventDependencyAdded   = "dependency.added"
	EventDependencyRemoved = "dependency.removed"
	EventTaskTransitioned  = "task.transitioned"
)

// Publisher receives post-commit events. Publish failures are logged by the
// engine and never propagated to callers; the state change has already
// committed.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// NopPublisher discards all events.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, Event) error { return nil }

// Engine is the façade over the dependency graph and workflow engines.
type Engine struct {
	store         storage.Store
	policy        *graph.Policy
	validator     *workflow.Validator
	machine       *workflow.StateMachine
	roles         RoleResolver
	conditions    workflow.ConditionEvaluator
	publisher     Publisher
	typePredicate graph.TypePredicate
	log           *logrus.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithRoleResolver sets the role resolver used when a request carries no role.
func WithRoleResolver(r RoleResolver) EngineOption {
	return func(e *Engine) { e.roles = r }
}

// WithConditionEvaluator sets the evaluator for named transition conditions.
func WithConditionEvaluator(ev workflow.ConditionEvaluator) EngineOption {
	return func(e *Engine) { e.conditions = ev }
}

// WithPublisher sets the post-commit event publisher.
func WithPublisher(p Publisher) EngineOption {
	return func(e *Engine) { e.publisher = p }
}

// WithLogger sets the engine's logger.
func WithLogger(l *logrus.Logger) EngineOption {
	return func(e *Engine) { e.log = l }
}

// WithTypePredicate overrides the dependency type validity rule.
func WithTypePredicate(p graph.TypePredicate) EngineOption {
	return func(e *Engine) { e.typePredicate = p }
}

// NewEngine creates an engine over the given store and state machine.
func NewEngine(store storage.Store, machine *workflow.StateMachine, opts ...EngineOption) *Engine {
	e := &Engine{
		store:     store,
		machine:   machine,
		roles:     &StaticRoleResolver{Default: types.RoleViewer},
		publisher: NopPublisher{},
		log:       logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	// Build the policy after all options so it sees the final logger and
	// predicate regardless of option order.
	policyOpts := []graph.Option{graph.WithLogger(e.log)}
	if e.typePredicate != nil {
		policyOpts = append(policyOpts, graph.WithTypePredicate(e.typePredicate))
	}
	e.policy = graph.NewPolicy(store, policyOpts...)
	e.validator = workflow.NewValidator(machine, store)
	return e
}

// CreateTask persists a new task in the tenant.
func (e *Engine) CreateTask(ctx context.Context, task *types.Task) error {
	if err := e.store.CreateTask(ctx, task); err != nil {
		return errors.Wrapf(err, "create task %s", task.ID)
	}
	return nil
}

// GetTask returns a task visible to the tenant. A task owned by another
// tenant is indistinguishable from a missing one.
func (e *Engine) GetTask(ctx context.Context, tenantID, id string) (*types.Task, error) {
	task, err := e.store.GetTask(ctx, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get task %s", id)
	}
	if task == nil || task.TenantID != tenantID {
		return nil, errors.Wrapf(types.ErrTaskNotFound, "task %s", id)
	}
	return task, nil
}

// ListTasks returns the tenant's tasks.
func (e *Engine) ListTasks(ctx context.Context, tenantID string) ([]*types.Task, error) {
	tasks, err := e.store.ListTasks(ctx, tenantID)
	if err != nil {
		return nil, errors.Wrap(err, "list tasks")
	}
	return tasks, nil
}

// AddDependency records that source depends on dependsOn, running the full
// validation sequence (self-loop, existence, tenancy, duplicate, cycle,
// out-degree limit, type validity) atomically.
func (e *Engine) AddDependency(ctx context.Context, tenantID, sourceID, dependsOnID string, depType types.DependencyType, actor string) (int64, error) {
	edgeID, err := e.policy.AddDependency(ctx, tenantID, sourceID, dependsOnID, depType, actor)
	if err != nil {
		return 0, err
	}
	e.publish(ctx, Event{
		Type:     EventDependencyAdded,
		TenantID: tenantID,
		EntityID: sourceID,
		Actor:    actor,
		Fields: map[string]interface{}{
			"depends_on": dependsOnID,
			"dep_type":   string(depType),
			"edge_id":    edgeID,
		},
	})
	return edgeID, nil
}

// RemoveDependency hard-deletes an edge within the tenant.
func (e *Engine) RemoveDependency(ctx context.Context, tenantID string, edgeID int64, actor string) error {
	if err := e.policy.RemoveDependency(ctx, tenantID, edgeID); err != nil {
		return err
	}
	e.publish(ctx, Event{
		Type:     EventDependencyRemoved,
		TenantID: tenantID,
		Actor:    actor,
		Fields:   map[string]interface{}{"edge_id": edgeID},
	})
	return nil
}

// Dependencies returns the outgoing edges of a task.
func (e *Engine) Dependencies(ctx context.Context, tenantID, taskID string) ([]*types.TaskDependency, error) {
	edges, err := e.store.EdgesFrom(ctx, tenantID, taskID)
	if err != nil {
		return nil, errors.Wrapf(err, "list dependencies of %s", taskID)
	}
	return edges, nil
}

// FindCycles reports any dependency cycles in the tenant's graph. The
// engine prevents cycles on insert, so a non-empty result means the data
// was modified outside the engine.
func (e *Engine) FindCycles(ctx context.Context, tenantID string) ([][]string, error) {
	edges, err := e.store.AllEdges(ctx, tenantID)
	if err != nil {
		return nil, errors.Wrap(err, "load edge set")
	}
	return graph.FindCycles(edges), nil
}

// resolveRole fills in the acting role from the resolver when the request
// does not carry one.
func (e *Engine) resolveRole(ctx context.Context, req *workflow.TransitionRequest) error {
	if req.ActingRole != "" {
		return nil
	}
	role, err := e.roles.Resolve(ctx, req.TenantID, req.ProjectID, req.ActorID)
	if err != nil {
		return errors.Wrapf(err, "resolve role of %s", req.ActorID)
	}
	req.ActingRole = role
	return nil
}

// ValidateTransition decides whether the requested status change is legal
// without applying it. Exactly one audit record is written.
func (e *Engine) ValidateTransition(ctx context.Context, req workflow.TransitionRequest) (workflow.Decision, error) {
	if err := e.resolveRole(ctx, &req); err != nil {
		return workflow.Decision{}, err
	}
	return e.validator.Validate(ctx, req, e.conditions)
}

// ApplyTransition validates the status change and, when allowed, applies it
// with an optimistic write conditioned on the entity still being in the From
// status. A stale status fails the whole operation; nothing is silently
// overwritten. The transition event publishes only after the write commits.
func (e *Engine) ApplyTransition(ctx context.Context, req workflow.TransitionRequest) (workflow.Decision, error) {
	if err := e.resolveRole(ctx, &req); err != nil {
		return workflow.Decision{}, err
	}

	decision, err := e.validator.Validate(ctx, req, e.conditions)
	if err != nil {
		return workflow.Decision{}, err
	}
	if !decision.Allowed {
		return decision, nil
	}

	if err := e.store.UpdateTaskStatus(ctx, req.TenantID, req.EntityID, req.From, req.To); err != nil {
		return decision, errors.Wrapf(err, "apply transition %s->%s on %s", req.From, req.To, req.EntityID)
	}

	e.publish(ctx, Event{
		Type:     EventTaskTransitioned,
		TenantID: req.TenantID,
		EntityID: req.EntityID,
		Actor:    req.ActorID,
		Fields: map[string]interface{}{
			"from": string(req.From),
			"to":   string(req.To),
		},
	})
	return decision, nil
}

// Transitions lists the legal transitions out of a status for display.
func (e *Engine) Transitions(kind types.EntityKind, from types.Status) []types.TransitionRule {
	return e.machine.TransitionsFrom(kind, from)
}

// Audit returns the recorded transition attempts, most recent first. An
// empty entityID returns the tenant's full trail.
func (e *Engine) Audit(ctx context.Context, tenantID, entityID string) ([]*types.TransitionAttempt, error) {
	attempts, err := e.store.ListAttempts(ctx, tenantID, entityID)
	if err != nil {
		return nil, errors.Wrap(err, "list transition attempts")
	}
	return attempts, nil
}

// publish sends a post-commit event. Failures are logged and swallowed; the
// mutation has already committed and must not appear to fail.
func (e *Engine) publish(ctx context.Context, event Event) {
	if err := e.publisher.Publish(ctx, event); err != nil {
		e.log.WithError(err).WithFields(logrus.Fields{
			"event":  event.Type,
			"tenant": event.TenantID,
			"entity": event.EntityID,
		}).Warn("failed to publish event")
	}
}
