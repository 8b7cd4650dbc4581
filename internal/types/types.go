// Package types defines core data structures for the Sprintlane tracking engine.
package types

import (
	"fmt"
	"time"
)

// Task is the engine's view of a trackable work item. The full platform
// entity carries far more (estimates, sprint membership, attachments); the
// dependency and workflow engines only need identity, tenancy, kind and
// current status.
type Task struct {
	ID        string     `json:"id" db:"id"`
	TenantID  string     `json:"tenant_id" db:"tenant_id"`
	ProjectID string     `json:"project_id,omitempty" db:"project_id"`
	Title     string     `json:"title" db:"title"`
	Kind      EntityKind `json:"kind" db:"kind"`
	Status    Status     `json:"status" db:"status"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	CreatedBy string     `json:"created_by,omitempty" db:"created_by"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}

// Validate checks if the task has valid field values.
func (t *Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("id is required")
	}
	if t.TenantID == "" {
		return fmt.Errorf("tenant_id is required")
	}
	if len(t.Title) == 0 {
		return fmt.Errorf("title is required")
	}
	if len(t.Title) > 500 {
		return fmt.Errorf("title must be 500 characters or less (got %d)", len(t.Title))
	}
	if !t.Kind.IsValid() {
		return fmt.Errorf("invalid entity kind: %s", t.Kind)
	}
	if !t.Status.IsValid() {
		return fmt.Errorf("invalid status: %s", t.Status)
	}
	return nil
}

// Status represents the current workflow state of a tracked entity
type Status string

// Workflow status constants
const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusInReview   Status = "in_review"
	StatusDone       Status = "done"
	StatusBlocked    Status = "blocked"
)

// IsValid checks if the status value is valid
func (s Status) IsValid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusInReview, StatusDone, StatusBlocked:
		return true
	}
	return false
}

// EntityKind identifies which workflow table governs an entity
type EntityKind string

// Entity kind constants
const (
	KindTask   EntityKind = "task"
	KindDefect EntityKind = "defect"
)

// IsValid checks if the entity kind value is valid
func (k EntityKind) IsValid() bool {
	switch k {
	case KindTask, KindDefect:
		return true
	}
	return false
}

// DependencyType categorizes the scheduling relationship between two tasks.
// The type governs which lifecycle event on the prerequisite unblocks the
// dependent task; interpretation of that event is owned by the caller.
type DependencyType string

// Dependency type constants
const (
	DepFinishToStart  DependencyType = "finish-to-start"
	DepStartToStart   DependencyType = "start-to-start"
	DepFinishToFinish DependencyType = "finish-to-finish"
	DepStartToFinish  DependencyType = "start-to-finish"
)

// IsValid checks if the dependency type value is valid
func (d DependencyType) IsValid() bool {
	switch d {
	case DepFinishToStart, DepStartToStart, DepFinishToFinish, DepStartToFinish:
		return true
	}
	return false
}

// MaxOutgoingDependencies caps the outgoing edges of a single task.
const MaxOutgoingDependencies = 20

// TaskDependency is a directed edge stating that SourceID cannot proceed
// until DependsOnID reaches the state implied by Type.
type TaskDependency struct {
	ID          int64          `json:"id" db:"id"`
	TenantID    string         `json:"tenant_id" db:"tenant_id"`
	SourceID    string         `json:"source_id" db:"source_id"`
	DependsOnID string         `json:"depends_on_id" db:"depends_on_id"`
	Type        DependencyType `json:"type" db:"type"`
	CreatedAt   time.Time      `json:"created_at" db:"created_at"`
	CreatedBy   string         `json:"created_by,omitempty" db:"created_by"`
}

// Validate checks if the dependency has valid field values
func (d *TaskDependency) Validate() error {
	if d.SourceID == "" {
		return fmt.Errorf("source_id is required")
	}
	if d.DependsOnID == "" {
		return fmt.Errorf("depends_on_id is required")
	}
	if d.TenantID == "" {
		return fmt.Errorf("tenant_id is required")
	}
	if d.SourceID == d.DependsOnID {
		return fmt.Errorf("task cannot depend on itself")
	}
	if !d.Type.IsValid() {
		return fmt.Errorf("invalid dependency type: %s", d.Type)
	}
	return nil
}

// Capability names a permission a role may hold
type Capability string

// Capability constants
const (
	CapViewTasks     Capability = "view_tasks"
	CapEditTasks     Capability = "edit_tasks"
	CapReviewTasks   Capability = "review_tasks"
	CapManageProject Capability = "manage_project"
)

// Role is the project-level role of an acting user
type Role string

// Role constants, ordered from least to most privileged
const (
	RoleViewer      Role = "viewer"
	RoleContributor Role = "contributor"
	RoleReviewer    Role = "reviewer"
	RoleMaintainer  Role = "maintainer"
)

// roleCapabilities maps each role to the capabilities it holds.
// Roles are cumulative: every role holds the capabilities of the roles below it.
var roleCapabilities = map[Role][]Capability{
	RoleViewer:      {CapViewTasks},
	RoleContributor: {CapViewTasks, CapEditTasks},
	RoleReviewer:    {CapViewTasks, CapEditTasks, CapReviewTasks},
	RoleMaintainer:  {CapViewTasks, CapEditTasks, CapReviewTasks, CapManageProject},
}

// IsValid checks if the role value is valid
func (r Role) IsValid() bool {
	_, ok := roleCapabilities[r]
	return ok
}

// Has reports whether the role holds the given capability.
func (r Role) Has(c Capability) bool {
	for _, held := range roleCapabilities[r] {
		if held == c {
			return true
		}
	}
	return false
}

// Capabilities returns the capability set of the role.
func (r Role) Capabilities() []Capability {
	caps := roleCapabilities[r]
	out := make([]Capability, len(caps))
	copy(out, caps)
	return out
}

// TransitionRule is one entry of a workflow transition table: the capability
// required to move an entity of Kind from From to To, and an optional named
// business condition that must evaluate true independently of the role.
type TransitionRule struct {
	Kind      EntityKind `json:"kind" yaml:"kind"`
	From      Status     `json:"from" yaml:"from"`
	To        Status     `json:"to" yaml:"to"`
	Requires  Capability `json:"requires" yaml:"requires"`
	Condition string     `json:"condition,omitempty" yaml:"condition,omitempty"`
}

// Validate checks if the rule has valid field values
func (r *TransitionRule) Validate() error {
	if !r.Kind.IsValid() {
		return fmt.Errorf("invalid entity kind: %s", r.Kind)
	}
	if !r.From.IsValid() {
		return fmt.Errorf("invalid from status: %s", r.From)
	}
	if !r.To.IsValid() {
		return fmt.Errorf("invalid to status: %s", r.To)
	}
	if r.From == r.To {
		return fmt.Errorf("transition cannot loop from %s to itself", r.From)
	}
	if r.Requires == "" {
		return fmt.Errorf("required capability is missing for %s %s->%s", r.Kind, r.From, r.To)
	}
	return nil
}

// TransitionAttempt is one immutable audit record of a workflow transition
// validation. Exactly one attempt is written per validation call, whether
// the transition was allowed or denied.
type TransitionAttempt struct {
	ID          int64      `json:"id" db:"id"`
	TenantID    string     `json:"tenant_id" db:"tenant_id"`
	ProjectID   string     `json:"project_id,omitempty" db:"project_id"`
	EntityKind  EntityKind `json:"entity_kind" db:"entity_kind"`
	EntityID    string     `json:"entity_id" db:"entity_id"`
	FromStatus  Status     `json:"from_status" db:"from_status"`
	ToStatus    Status     `json:"to_status" db:"to_status"`
	Allowed     bool       `json:"allowed" db:"allowed"`
	ActingRole  Role       `json:"acting_role" db:"acting_role"`
	ActorID     string     `json:"actor_id" db:"actor_id"`
	Reason      string     `json:"reason,omitempty" db:"reason"`
	AttemptedAt time.Time  `json:"attempted_at" db:"attempted_at"`
}
