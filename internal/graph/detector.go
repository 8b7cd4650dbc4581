// Package graph maintains the per-tenant task dependency graph: cycle
// detection over the edge set and the policy that accepts or rejects
// proposed edges.
package graph

import (
	"sort"
	"strings"

	"github.com/sprintlane/sprintlane/internal/types"
)

// adjacency builds a source -> depends-on adjacency list from an edge set.
func adjacency(edges []*types.TaskDependency) map[string][]string {
	adj := make(map[string][]string, len(edges))
	for _, e := range edges {
		adj[e.SourceID] = append(adj[e.SourceID], e.DependsOnID)
	}
	return adj
}

// WouldCreateCycle reports whether adding the edge source -> dependsOn to
// the existing edge set closes a directed cycle.
//
// An edge u -> v means "u is blocked by v". The new edge closes a cycle iff
// source is already reachable from dependsOn along existing edges: the path
// dependsOn -> ... -> source plus the new source -> dependsOn completes the
// loop. The traversal is a visited-set-guarded BFS starting at dependsOn,
// stopping at the first occurrence of source. Cost is linear in the edges
// reachable from dependsOn, bounded by the tenant's graph size.
func WouldCreateCycle(edges []*types.TaskDependency, source, dependsOn string) bool {
	if source == dependsOn {
		return true
	}

	adj := adjacency(edges)
	visited := make(map[string]bool, len(adj))
	queue := []string{dependsOn}

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		if node == source {
			return true
		}
		if visited[node] {
			continue
		}
		visited[node] = true
		for _, next := range adj[node] {
			if !visited[next] {
				queue = append(queue, next)
			}
		}
	}
	return false
}

// OutDegree returns the number of outgoing edges of a task in the edge set.
func OutDegree(edges []*types.TaskDependency, taskID string) int {
	n := 0
	for _, e := range edges {
		if e.SourceID == taskID {
			n++
		}
	}
	return n
}

// FindCycles returns the directed cycles present in an edge set, each as an
// ordered list of task IDs. The policy keeps the graph acyclic, so this is
// a diagnostic for data imported from outside the policy path.
//
// Uses DFS with a recursion stack over the adjacency list, O(V+E). Cycles
// reachable from multiple entry points are deduplicated by rotating each to
// start at its lexicographically smallest ID.
func FindCycles(edges []*types.TaskDependency) [][]string {
	adj := adjacency(edges)

	visited := make(map[string]bool)
	recStack := make(map[string]bool)
	var found [][]string

	var dfs func(node string, path []string)
	dfs = func(node string, path []string) {
		visited[node] = true
		recStack[node] = true
		path = append(path, node)

		for _, next := range adj[node] {
			if !visited[next] {
				dfs(next, path)
			} else if recStack[next] {
				// Found a cycle: extract the portion of the path from next onward
				for i, n := range path {
					if n == next {
						cycle := make([]string, len(path)-i)
						copy(cycle, path[i:])
						found = append(found, cycle)
						break
					}
				}
			}
		}

		recStack[node] = false
	}

	// Deterministic iteration order for stable output
	nodes := make([]string, 0, len(adj))
	for n := range adj {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)

	for _, n := range nodes {
		if !visited[n] {
			dfs(n, nil)
		}
	}

	// Deduplicate: the same cycle is found once per unvisited entry point
	seen := make(map[string]bool)
	var unique [][]string
	for _, cycle := range found {
		normalized := normalizeCycle(cycle)
		key := strings.Join(normalized, ">")
		if !seen[key] {
			seen[key] = true
			unique = append(unique, normalized)
		}
	}
	return unique
}

// normalizeCycle rotates a cycle to start with the lexicographically
// smallest ID so equivalent cycles compare equal.
func normalizeCycle(cycle []string) []string {
	if len(cycle) == 0 {
		return cycle
	}
	minIdx := 0
	for i, id := range cycle {
		if id < cycle[minIdx] {
			minIdx = i
		}
	}
	out := make([]string, len(cycle))
	for i := range cycle {
		out[i] = cycle[(minIdx+i)%len(cycle)]
	}
	return out
}
