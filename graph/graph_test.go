package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindCycle_Acyclic(t *testing.T) {
	nodes := []string{"a", "b", "c", "d"}
	edges := []Edge{{"a", "b"}, {"b", "c"}, {"a", "d"}}
	assert.Nil(t, FindCycle(nodes, edges))
}

func TestFindCycle_SimpleCycle(t *testing.T) {
	nodes := []string{"a", "b", "c"}
	edges := []Edge{{"a", "b"}, {"b", "c"}, {"c", "a"}}

	cycle := FindCycle(nodes, edges)
	require.NotNil(t, cycle)
	// The cycle path closes on its starting node.
	assert.Equal(t, cycle.Path[0], cycle.Path[len(cycle.Path)-1])
	assert.GreaterOrEqual(t, len(cycle.Path), 4)
}

func TestFindCycle_SelfLoop(t *testing.T) {
	cycle := FindCycle([]string{"a"}, []Edge{{"a", "a"}})
	require.NotNil(t, cycle)
	assert.Equal(t, []string{"a", "a"}, cycle.Path)
}

func TestFindCycle_IgnoresDanglingEdges(t *testing.T) {
	// Edges to unknown nodes are a validation problem, not a cycle.
	nodes := []string{"a", "b"}
	edges := []Edge{{"a", "b"}, {"b", "ghost"}, {"ghost", "a"}}
	assert.Nil(t, FindCycle(nodes, edges))
}

func TestTopoSort_LinearChain(t *testing.T) {
	order, err := TopoSort([]string{"a", "b", "c"}, []Edge{{"a", "b"}, {"b", "c"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestTopoSort_TieBreakIsInsertionOrder(t *testing.T) {
	// Independent nodes must come out in the order they were declared.
	nodes := []string{"z", "m", "a"}
	order, err := TopoSort(nodes, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"z", "m", "a"}, order)
}

func TestTopoSort_Diamond(t *testing.T) {
	nodes := []string{"start", "left", "right", "end"}
	edges := []Edge{{"start", "left"}, {"start", "right"}, {"left", "end"}, {"right", "end"}}

	order, err := TopoSort(nodes, edges)
	require.NoError(t, err)
	require.Len(t, order, 4)

	pos := make(map[string]int, len(order))
	for i, id := range order {
		pos[id] = i
	}
	for _, e := range edges {
		assert.Less(t, pos[e.From], pos[e.To], "edge %s->%s out of order", e.From, e.To)
	}
	// left declared before right, both unblocked together.
	assert.Less(t, pos["left"], pos["right"])
}

func TestTopoSort_CycleFails(t *testing.T) {
	_, err := TopoSort([]string{"a", "b"}, []Edge{{"a", "b"}, {"b", "a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestKahnDetect(t *testing.T) {
	hasCycle, unvisited := KahnDetect([]string{"a", "b", "c"}, []Edge{{"a", "b"}})
	assert.False(t, hasCycle)
	assert.Empty(t, unvisited)

	hasCycle, unvisited = KahnDetect(
		[]string{"pre", "a", "b", "c"},
		[]Edge{{"pre", "a"}, {"a", "b"}, {"b", "c"}, {"c", "a"}},
	)
	assert.True(t, hasCycle)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, unvisited)
}

func TestRootsAndLeaves(t *testing.T) {
	nodes := []string{"a", "b", "c", "d"}
	edges := []Edge{{"a", "b"}, {"b", "c"}, {"d", "c"}}

	assert.Equal(t, []string{"a", "d"}, Roots(nodes, edges))
	assert.Equal(t, []string{"c"}, Leaves(nodes, edges))
}

func TestRootsAndLeaves_NoEdges(t *testing.T) {
	nodes := []string{"x", "y"}
	assert.Equal(t, nodes, Roots(nodes, nil))
	assert.Equal(t, nodes, Leaves(nodes, nil))
}
