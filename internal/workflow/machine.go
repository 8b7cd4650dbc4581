// Package workflow implements the role-and-condition-gated status
// transition engine: a declarative transition table per entity kind and a
// validator that records every attempt in the audit trail.
package workflow

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/sprintlane/sprintlane/internal/types"
)

// ruleKey identifies one transition table entry.
type ruleKey struct {
	kind types.EntityKind
	from types.Status
	to   types.Status
}

// StateMachine is a pure lookup structure over the transition tables of all
// entity kinds. It is built once at process start and never mutated by
// requests; the table contents are the single source of truth for which
// status moves are legal. A (from, to) pair absent from the table is
// illegal regardless of role.
type StateMachine struct {
	rules map[ruleKey]types.TransitionRule
}

// NewStateMachine builds a state machine from a rule list. Duplicate
// (kind, from, to) entries and invalid rules are rejected.
func NewStateMachine(rules []types.TransitionRule) (*StateMachine, error) {
	m := &StateMachine{rules: make(map[ruleKey]types.TransitionRule, len(rules))}
	for i := range rules {
		r := rules[i]
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("transition rule %d: %w", i, err)
		}
		key := ruleKey{kind: r.Kind, from: r.From, to: r.To}
		if _, dup := m.rules[key]; dup {
			return nil, fmt.Errorf("duplicate transition entry %s %s->%s", r.Kind, r.From, r.To)
		}
		m.rules[key] = r
	}
	return m, nil
}

// Lookup returns the rule governing (kind, from, to), if any.
func (m *StateMachine) Lookup(kind types.EntityKind, from, to types.Status) (types.TransitionRule, bool) {
	r, ok := m.rules[ruleKey{kind: kind, from: from, to: to}]
	return r, ok
}

// TransitionsFrom returns the rules leaving a given status, sorted by
// target status for stable display.
func (m *StateMachine) TransitionsFrom(kind types.EntityKind, from types.Status) []types.TransitionRule {
	var out []types.TransitionRule
	for key, r := range m.rules {
		if key.kind == kind && key.from == from {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].To < out[j].To })
	return out
}

// Rules returns all entries, sorted, for display and export.
func (m *StateMachine) Rules() []types.TransitionRule {
	out := make([]types.TransitionRule, 0, len(m.rules))
	for _, r := range m.rules {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		if a.From != b.From {
			return a.From < b.From
		}
		return a.To < b.To
	})
	return out
}

// ConditionQAApproval gates review sign-off: the reviewer's approval must
// be on record before an entity moves from in_review to done.
const ConditionQAApproval = "qa_approval"

// DefaultRules returns the built-in transition tables. The done ->
// in_progress reopen entries are a deliberate configuration choice (done is
// not hard-coded terminal); deployments that want a terminal done status
// supply a workflow file without them.
func DefaultRules() []types.TransitionRule {
	var rules []types.TransitionRule
	for _, kind := range []types.EntityKind{types.KindTask, types.KindDefect} {
		rules = append(rules,
			types.TransitionRule{Kind: kind, From: types.StatusTodo, To: types.StatusInProgress, Requires: types.CapEditTasks},
			types.TransitionRule{Kind: kind, From: types.StatusInProgress, To: types.StatusInReview, Requires: types.CapEditTasks},
			types.TransitionRule{Kind: kind, From: types.StatusInProgress, To: types.StatusBlocked, Requires: types.CapEditTasks},
			types.TransitionRule{Kind: kind, From: types.StatusInProgress, To: types.StatusTodo, Requires: types.CapEditTasks},
			types.TransitionRule{Kind: kind, From: types.StatusBlocked, To: types.StatusInProgress, Requires: types.CapEditTasks},
			types.TransitionRule{Kind: kind, From: types.StatusBlocked, To: types.StatusTodo, Requires: types.CapEditTasks},
			types.TransitionRule{Kind: kind, From: types.StatusInReview, To: types.StatusInProgress, Requires: types.CapReviewTasks},
			types.TransitionRule{Kind: kind, From: types.StatusInReview, To: types.StatusDone, Requires: types.CapReviewTasks, Condition: ConditionQAApproval},
			types.TransitionRule{Kind: kind, From: types.StatusDone, To: types.StatusInProgress, Requires: types.CapManageProject},
		)
	}
	return rules
}

// DefaultStateMachine returns a state machine over the built-in tables.
func DefaultStateMachine() *StateMachine {
	m, err := NewStateMachine(DefaultRules())
	if err != nil {
		// The built-in tables are validated by tests; this is unreachable.
		panic(fmt.Sprintf("invalid built-in transition tables: %v", err))
	}
	return m
}

// workflowFile is the YAML layout of a transition table file:
//
//	transitions:
//	  task:
//	    - {from: todo, to: in_progress, requires: edit_tasks}
//	    - {from: in_review, to: done, requires: review_tasks, condition: qa_approval}
//	  defect:
//	    - ...
type workflowFile struct {
	Transitions map[types.EntityKind][]struct {
		From      types.Status     `yaml:"from"`
		To        types.Status     `yaml:"to"`
		Requires  types.Capability `yaml:"requires"`
		Condition string           `yaml:"condition"`
	} `yaml:"transitions"`
}

// LoadStateMachine reads a transition table file and builds a state
// machine from it. The file fully replaces the built-in tables.
func LoadStateMachine(path string) (*StateMachine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow file: %w", err)
	}

	var file workflowFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse workflow file %s: %w", path, err)
	}
	if len(file.Transitions) == 0 {
		return nil, fmt.Errorf("workflow file %s defines no transitions", path)
	}

	var rules []types.TransitionRule
	for kind, entries := range file.Transitions {
		for _, e := range entries {
			rules = append(rules, types.TransitionRule{
				Kind:      kind,
				From:      e.From,
				To:        e.To,
				Requires:  e.Requires,
				Condition: e.Condition,
			})
		}
	}

	m, err := NewStateMachine(rules)
	if err != nil {
		return nil, fmt.Errorf("invalid workflow file %s: %w", path, err)
	}
	return m, nil
}
