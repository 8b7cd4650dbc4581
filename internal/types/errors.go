package types

import "errors"

// Validation errors returned by the dependency policy and transition
// validator. All are deterministic and non-retryable; check them with
// errors.Is():
//
//	if errors.Is(err, types.ErrCycleDetected) {
//	    // reject the request, nothing was written
//	}
var (
	// ErrTaskNotFound is returned when a referenced task does not exist.
	ErrTaskNotFound = errors.New("task not found")

	// ErrEdgeNotFound is returned when a dependency edge does not exist
	// or is not visible to the caller's tenant.
	ErrEdgeNotFound = errors.New("dependency not found")

	// ErrSelfDependency is returned when a task is linked to itself.
	ErrSelfDependency = errors.New("task cannot depend on itself")

	// ErrDuplicateDependency is returned when an identical
	// (source, depends-on, type) edge already exists.
	ErrDuplicateDependency = errors.New("dependency already exists")

	// ErrCycleDetected is returned when adding the edge would close a
	// directed cycle in the tenant's dependency graph.
	ErrCycleDetected = errors.New("dependency would create a cycle")

	// ErrDependencyLimit is returned when the source task already has the
	// maximum number of outgoing dependencies.
	ErrDependencyLimit = errors.New("dependency limit exceeded")

	// ErrInvalidDependencyType is returned when the dependency type is
	// unknown or not permitted for the given task pair.
	ErrInvalidDependencyType = errors.New("invalid dependency type")

	// ErrCrossTenant is returned when the two tasks belong to different
	// tenants, or to a tenant other than the caller's.
	ErrCrossTenant = errors.New("tasks belong to different tenants")

	// ErrNoSuchTransition is returned when the (kind, from, to) triple has
	// no entry in the workflow transition table.
	ErrNoSuchTransition = errors.New("no such transition defined")

	// ErrMissingCapability is returned when the acting role lacks the
	// capability the transition requires.
	ErrMissingCapability = errors.New("missing required capability")

	// ErrConditionNotMet is returned when the transition's named business
	// condition evaluated false.
	ErrConditionNotMet = errors.New("transition condition not met")

	// ErrStaleStatus is returned when an optimistic status write finds the
	// entity no longer in the expected from-status.
	ErrStaleStatus = errors.New("entity status changed concurrently")
)

// IsValidation returns true if the error is one of the deterministic
// validation failures, as opposed to an infrastructure error.
func IsValidation(err error) bool {
	for _, v := range []error{
		ErrSelfDependency, ErrDuplicateDependency, ErrCycleDetected,
		ErrDependencyLimit, ErrInvalidDependencyType, ErrCrossTenant,
		ErrNoSuchTransition, ErrMissingCapability, ErrConditionNotMet,
	} {
		if errors.Is(err, v) {
			return true
		}
	}
	return false
}
