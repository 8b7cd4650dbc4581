package graph

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/sprintlane/sprintlane/internal/storage"
	"github.com/sprintlane/sprintlane/internal/types"
)

// TypePredicate decides whether a dependency type is semantically valid for
// a given task pair. Both tasks are resolved and tenant-checked before the
// predicate runs. The platform's default accepts all four scheduling types
// for any pair; deployments with stricter scheduling semantics inject their
// own rule.
type TypePredicate func(source, dependsOn *types.Task, depType types.DependencyType) bool

// Policy validates and persists dependency edges. All checks and the final
// insert run inside a single storage transaction so concurrent requests
// cannot jointly create a cycle that neither observes.
type Policy struct {
	store     storage.Store
	validType TypePredicate
	log       *logrus.Logger
}

// Option configures a Policy.
type Option func(*Policy)

// WithTypePredicate overrides the default pair/type validity rule.
func WithTypePredicate(p TypePredicate) Option {
	return func(pol *Policy) { pol.validType = p }
}

// WithLogger sets the policy's logger.
func WithLogger(l *logrus.Logger) Option {
	return func(pol *Policy) { pol.log = l }
}

// NewPolicy creates a dependency policy over the given store.
func NewPolicy(store storage.Store, opts ...Option) *Policy {
	p := &Policy{
		store:     store,
		validType: func(_, _ *types.Task, _ types.DependencyType) bool { return true },
		log:       logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// AddDependency validates the proposed edge sourceID -> dependsOnID and
// persists it when every check passes, returning the new edge's ID.
//
// Checks run in order, short-circuiting on the first failure:
//
//  1. source != dependsOn, else types.ErrSelfDependency
//  2. both tasks resolve and belong to tenantID, else types.ErrTaskNotFound
//     or types.ErrCrossTenant
//  3. no identical (source, depends-on, type) edge, else types.ErrDuplicateDependency
//  4. the edge closes no cycle, else types.ErrCycleDetected
//  5. out-degree of source below types.MaxOutgoingDependencies, else
//     types.ErrDependencyLimit
//  6. the type predicate accepts the pair, else types.ErrInvalidDependencyType
//
// Steps 2-6 and the insert execute against one transactional snapshot of
// the tenant's edge set. Two concurrent requests adding complementary edges
// therefore serialize: the second observes the first's edge and is rejected.
func (p *Policy) AddDependency(ctx context.Context, tenantID, sourceID, dependsOnID string, depType types.DependencyType, actor string) (int64, error) {
	if !depType.IsValid() {
		return 0, fmt.Errorf("dependency type %q: %w", depType, types.ErrInvalidDependencyType)
	}
	if sourceID == dependsOnID {
		return 0, types.ErrSelfDependency
	}

	var edgeID int64
	err := p.store.RunInTransaction(ctx, tenantID, func(tx storage.Transaction) error {
		source, err := tx.GetTask(ctx, sourceID)
		if err != nil {
			return fmt.Errorf("resolve task %s: %w", sourceID, err)
		}
		if source == nil {
			return fmt.Errorf("task %s: %w", sourceID, types.ErrTaskNotFound)
		}
		dependsOn, err := tx.GetTask(ctx, dependsOnID)
		if err != nil {
			return fmt.Errorf("resolve task %s: %w", dependsOnID, err)
		}
		if dependsOn == nil {
			return fmt.Errorf("task %s: %w", dependsOnID, types.ErrTaskNotFound)
		}
		if source.TenantID != tenantID || dependsOn.TenantID != tenantID {
			return fmt.Errorf("linking %s and %s: %w", sourceID, dependsOnID, types.ErrCrossTenant)
		}

		exists, err := tx.EdgeExists(ctx, tenantID, sourceID, dependsOnID, depType)
		if err != nil {
			return fmt.Errorf("check duplicate: %w", err)
		}
		if exists {
			return fmt.Errorf("%s -[%s]-> %s: %w", sourceID, depType, dependsOnID, types.ErrDuplicateDependency)
		}

		edges, err := tx.AllEdges(ctx, tenantID)
		if err != nil {
			return fmt.Errorf("load edge set: %w", err)
		}
		if WouldCreateCycle(edges, sourceID, dependsOnID) {
			return fmt.Errorf("%s -> %s -> ... -> %s: %w", sourceID, dependsOnID, sourceID, types.ErrCycleDetected)
		}
		if OutDegree(edges, sourceID) >= types.MaxOutgoingDependencies {
			return fmt.Errorf("task %s already has %d outgoing dependencies: %w",
				sourceID, types.MaxOutgoingDependencies, types.ErrDependencyLimit)
		}

		if !p.validType(source, dependsOn, depType) {
			return fmt.Errorf("type %q not permitted for %s -> %s: %w",
				depType, sourceID, dependsOnID, types.ErrInvalidDependencyType)
		}

		edgeID, err = tx.InsertEdge(ctx, &types.TaskDependency{
			TenantID:    tenantID,
			SourceID:    sourceID,
			DependsOnID: dependsOnID,
			Type:        depType,
			CreatedBy:   actor,
		})
		if err != nil {
			return fmt.Errorf("insert edge: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	p.log.WithFields(logrus.Fields{
		"tenant":     tenantID,
		"source":     sourceID,
		"depends_on": dependsOnID,
		"type":       depType,
		"edge_id":    edgeID,
	}).Debug("dependency added")
	return edgeID, nil
}

// RemoveDependency hard-deletes the edge with the given ID. The edge must
// belong to the caller's tenant; otherwise types.ErrEdgeNotFound is
// returned. Removal has no cascading side effects, and an identical edge
// may be re-added immediately afterwards.
func (p *Policy) RemoveDependency(ctx context.Context, tenantID string, edgeID int64) error {
	if err := p.store.RemoveEdge(ctx, tenantID, edgeID); err != nil {
		return fmt.Errorf("remove dependency %d: %w", edgeID, err)
	}
	p.log.WithFields(logrus.Fields{
		"tenant":  tenantID,
		"edge_id": edgeID,
	}).Debug("dependency removed")
	return nil
}
