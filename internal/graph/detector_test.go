package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sprintlane/sprintlane/internal/types"
)

func edge(source, dependsOn string) *types.TaskDependency {
	return &types.TaskDependency{
		TenantID:    "acme",
		SourceID:    source,
		DependsOnID: dependsOn,
		Type:        types.DepFinishToStart,
	}
}

func TestWouldCreateCycle(t *testing.T) {
	tests := []struct {
		name      string
		edges     []*types.TaskDependency
		source    string
		dependsOn string
		want      bool
	}{
		{
			name:      "empty graph",
			source:    "a",
			dependsOn: "b",
			want:      false,
		},
		{
			name:      "self loop",
			source:    "a",
			dependsOn: "a",
			want:      true,
		},
		{
			name:      "direct back edge",
			edges:     []*types.TaskDependency{edge("a", "b")},
			source:    "b",
			dependsOn: "a",
			want:      true,
		},
		{
			name:      "transitive back edge",
			edges:     []*types.TaskDependency{edge("a", "b"), edge("b", "c")},
			source:    "c",
			dependsOn: "a",
			want:      true,
		},
		{
			name:      "parallel branches stay acyclic",
			edges:     []*types.TaskDependency{edge("a", "b"), edge("a", "c")},
			source:    "b",
			dependsOn: "c",
			want:      false,
		},
		{
			name:      "diamond join is not a cycle",
			edges:     []*types.TaskDependency{edge("a", "b"), edge("a", "c"), edge("b", "d")},
			source:    "c",
			dependsOn: "d",
			want:      false,
		},
		{
			name:      "unrelated component",
			edges:     []*types.TaskDependency{edge("x", "y")},
			source:    "a",
			dependsOn: "b",
			want:      false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := WouldCreateCycle(tt.edges, tt.source, tt.dependsOn)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOutDegree(t *testing.T) {
	edges := []*types.TaskDependency{
		edge("a", "b"),
		edge("a", "c"),
		edge("b", "c"),
	}
	assert.Equal(t, 2, OutDegree(edges, "a"))
	assert.Equal(t, 1, OutDegree(edges, "b"))
	assert.Equal(t, 0, OutDegree(edges, "c"))
}

func TestFindCyclesNone(t *testing.T) {
	edges := []*types.TaskDependency{
		edge("a", "b"),
		edge("b", "c"),
		edge("a", "c"),
	}
	assert.Empty(t, FindCycles(edges))
}

func TestFindCyclesSimple(t *testing.T) {
	edges := []*types.TaskDependency{
		edge("a", "b"),
		edge("b", "a"),
	}
	cycles := FindCycles(edges)
	assert.Equal(t, [][]string{{"a", "b"}}, cycles)
}

func TestFindCyclesDeduplicated(t *testing.T) {
	// One 3-cycle plus a tail entering it; the cycle must be reported once
	// and rotated to start at its smallest ID.
	edges := []*types.TaskDependency{
		edge("b", "c"),
		edge("c", "d"),
		edge("d", "b"),
		edge("a", "b"),
	}
	cycles := FindCycles(edges)
	assert.Equal(t, [][]string{{"b", "c", "d"}}, cycles)
}
