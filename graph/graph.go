// Package graph provides the shared directed-graph algorithms used by
// plan validation, rule-based DAG checks, and the execution engine:
// cycle detection, Kahn topological ordering, and root/leaf lookup.
//
// All functions operate on plain node-id slices and (from, to) edge
// pairs so that callers with different node representations share one
// implementation.
package graph

import "fmt"

// Edge is a directed (from, to) pair over node identifiers.
type Edge struct {
	From string
	To   string
}

// Cycle describes one detected cycle in a directed graph.
type Cycle struct {
	// Path lists the node ids along the cycle, ending where it started.
	Path []string
}

func (c *Cycle) String() string {
	out := ""
	for i, id := range c.Path {
		if i > 0 {
			out += " -> "
		}
		out += id
	}
	return out
}

// dfs 三色标记
const (
	colorWhite = 0
	colorGray  = 1
	colorBlack = 2
)

// FindCycle runs a three-color depth-first search over the graph and
// returns the first cycle found, or nil when the graph is acyclic.
// Edges whose endpoints are not in nodes are ignored; such dangling
// references are a validation concern, not a graph-shape concern.
func FindCycle(nodes []string, edges []Edge) *Cycle {
	known := make(map[string]bool, len(nodes))
	for _, id := range nodes {
		known[id] = true
	}

	adj := make(map[string][]string, len(nodes))
	for _, e := range edges {
		if known[e.From] && known[e.To] {
			adj[e.From] = append(adj[e.From], e.To)
		}
	}

	color := make(map[string]int, len(nodes))
	parent := make(map[string]string, len(nodes))

	var found *Cycle
	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = colorGray
		for _, next := range adj[id] {
			switch color[next] {
			case colorWhite:
				parent[next] = id
				if visit(next) {
					return true
				}
			case colorGray:
				// Back edge: reconstruct the cycle path.
				path := []string{next}
				for cur := id; cur != next; cur = parent[cur] {
					path = append(path, cur)
				}
				// Reverse into traversal order and close the loop.
				for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
					path[i], path[j] = path[j], path[i]
				}
				path = append(path, next)
				found = &Cycle{Path: path}
				return true
			}
		}
		color[id] = colorBlack
		return false
	}

	for _, id := range nodes {
		if color[id] == colorWhite {
			if visit(id) {
				return found
			}
		}
	}
	return nil
}

// TopoSort computes a topological order with Kahn's algorithm. The
// zero-in-degree queue is FIFO and seeded in node insertion order, so
// ties between independent nodes resolve to their original order. It
// returns an error when the graph contains a cycle.
func TopoSort(nodes []string, edges []Edge) ([]string, error) {
	known := make(map[string]bool, len(nodes))
	for _, id := range nodes {
		known[id] = true
	}

	inDegree := make(map[string]int, len(nodes))
	adj := make(map[string][]string, len(nodes))
	for _, id := range nodes {
		inDegree[id] = 0
	}
	for _, e := range edges {
		if !known[e.From] || !known[e.To] {
			continue
		}
		adj[e.From] = append(adj[e.From], e.To)
		inDegree[e.To]++
	}

	queue := make([]string, 0, len(nodes))
	for _, id := range nodes {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	order := make([]string, 0, len(nodes))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)
		for _, next := range adj[id] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if len(order) != len(nodes) {
		return nil, fmt.Errorf("graph contains a cycle: ordered %d of %d nodes", len(order), len(nodes))
	}
	return order, nil
}

// KahnDetect runs Kahn's algorithm purely for cycle detection and
// reports the node ids left unvisited when ordering stalls. An empty
// unvisited list means the graph is acyclic.
func KahnDetect(nodes []string, edges []Edge) (bool, []string) {
	order, err := TopoSort(nodes, edges)
	if err == nil {
		return false, nil
	}

	visited := make(map[string]bool, len(order))
	for _, id := range order {
		visited[id] = true
	}
	// TopoSort discards the partial order on error; recompute it here.
	// The recomputation mirrors TopoSort so the unvisited set is exact.
	partial := kahnPartial(nodes, edges)
	for _, id := range partial {
		visited[id] = true
	}

	var unvisited []string
	for _, id := range nodes {
		if !visited[id] {
			unvisited = append(unvisited, id)
		}
	}
	return true, unvisited
}

// kahnPartial returns however much of the topological order Kahn's
// algorithm can produce before stalling on a cycle.
func kahnPartial(nodes []string, edges []Edge) []string {
	known := make(map[string]bool, len(nodes))
	for _, id := range nodes {
		known[id] = true
	}

	inDegree := make(map[string]int, len(nodes))
	adj := make(map[string][]string, len(nodes))
	for _, id := range nodes {
		inDegree[id] = 0
	}
	for _, e := range edges {
		if !known[e.From] || !known[e.To] {
			continue
		}
		adj[e.From] = append(adj[e.From], e.To)
		inDegree[e.To]++
	}

	queue := make([]string, 0, len(nodes))
	for _, id := range nodes {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	order := make([]string, 0, len(nodes))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)
		for _, next := range adj[id] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}
	return order
}

// Roots returns the nodes with no incoming edges, in insertion order.
func Roots(nodes []string, edges []Edge) []string {
	hasIncoming := make(map[string]bool, len(nodes))
	for _, e := range edges {
		hasIncoming[e.To] = true
	}
	var roots []string
	for _, id := range nodes {
		if !hasIncoming[id] {
			roots = append(roots, id)
		}
	}
	return roots
}

// Leaves returns the nodes with no outgoing edges, in insertion order.
func Leaves(nodes []string, edges []Edge) []string {
	hasOutgoing := make(map[string]bool, len(nodes))
	for _, e := range edges {
		hasOutgoing[e.From] = true
	}
	var leaves []string
	for _, id := range nodes {
		if !hasOutgoing[id] {
			leaves = append(leaves, id)
		}
	}
	return leaves
}
