package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildRichNode(t *testing.T) *NodeDefinition {
	t.Helper()
	root := NewNodeDefinition("group", NodeTypeGeneric)
	root.ErrorStrategy = &ErrorStrategy{
		OnFailure: OnFailureRetry,
		Retry:     &RetrySpec{MaxAttempts: 3, DelaySeconds: 2.5, Backoff: 2},
	}
	root.ResourceLimits = &ResourceLimits{CPU: 1.5, MemoryMB: 256, TimeoutSeconds: 30, MaxConcurrency: 2}

	child := NewNodeDefinition("fetch", NodeTypeHTTP)
	child.URL = "https://api.example.com/data"
	child.Config["method"] = "GET"
	require.NoError(t, root.AddChild(child))

	grandchild := NewNodeDefinition("review", NodeTypeHuman)
	// Only generic nodes own children; nest through another generic.
	mid := NewNodeDefinition("subgroup", NodeTypeGeneric)
	mid.ErrorStrategy = &ErrorStrategy{OnFailure: OnFailureSkip}
	mid.ResourceLimits = &ResourceLimits{TimeoutSeconds: 10}
	grandchild.Config["prompt"] = "please confirm"
	require.NoError(t, root.AddChild(mid))
	require.NoError(t, mid.AddChild(grandchild))

	return root
}

func TestNodeDefinition_MapRoundTrip(t *testing.T) {
	original := buildRichNode(t)

	restored, err := NodeFromMap(original.ToMap())
	require.NoError(t, err)

	assert.Equal(t, original.ID, restored.ID)
	assert.Equal(t, original.Name, restored.Name)
	assert.Equal(t, original.Type, restored.Type)
	assert.Equal(t, original.ErrorStrategy, restored.ErrorStrategy)
	assert.Equal(t, original.ResourceLimits, restored.ResourceLimits)

	require.Len(t, restored.Children, 2)
	fetch := restored.Children[0]
	assert.Equal(t, NodeTypeHTTP, fetch.Type)
	assert.Equal(t, "https://api.example.com/data", fetch.URL)
	assert.Equal(t, "GET", fetch.Config["method"])
	assert.Equal(t, restored.ID, fetch.ParentID)
	assert.Equal(t, 1, fetch.Depth())

	sub := restored.Children[1]
	require.Len(t, sub.Children, 1)
	assert.Equal(t, NodeTypeHuman, sub.Children[0].Type)
	assert.Equal(t, 2, sub.Children[0].Depth())
}

func TestNodeDefinition_MaxDepthRoundTrip(t *testing.T) {
	root := NewNodeDefinition("d0", NodeTypeGeneric)
	root.ErrorStrategy = &ErrorStrategy{OnFailure: OnFailureAbort}
	root.ResourceLimits = &ResourceLimits{TimeoutSeconds: 5}
	current := root
	for i := 1; i <= MaxNodeDefinitionDepth; i++ {
		next := NewNodeDefinition("level", NodeTypeGeneric)
		next.Name = "d" + string(rune('0'+i))
		next.ErrorStrategy = &ErrorStrategy{OnFailure: OnFailureAbort}
		next.ResourceLimits = &ResourceLimits{TimeoutSeconds: 5}
		require.NoError(t, current.AddChild(next))
		current = next
	}

	restored, err := NodeFromMap(root.ToMap())
	require.NoError(t, err)

	depth := 0
	for n := restored; len(n.Children) > 0; n = n.Children[0] {
		depth++
	}
	assert.Equal(t, MaxNodeDefinitionDepth, depth)
}

func TestNodeFromMap_UnknownType(t *testing.T) {
	_, err := NodeFromMap(map[string]any{"id": "x", "name": "x", "type": "quantum"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown node type")
}

func buildRichPlan(t *testing.T) *WorkflowPlan {
	t.Helper()
	p := NewWorkflowPlan("daily-report", "生成每日数据质量报告")
	p.Description = "collect, check, analyze"
	p.DefaultErrorStrategy = &ErrorStrategy{
		OnFailure: OnFailureRetry,
		Retry:     &RetrySpec{MaxAttempts: 2, DelaySeconds: 1},
	}

	collect := NewNodeDefinition("collect", NodeTypeDatabase)
	collect.Query = "SELECT * FROM events"
	check := NewNodeDefinition("check", NodeTypeCondition)
	check.Config["expression"] = "quality > 0.8"
	analyze := NewNodeDefinition("analyze", NodeTypeLLM)
	analyze.Prompt = "analyze {inputs}"
	clean := NewNodeDefinition("clean", NodeTypeDataProcess)
	clean.Config["type"] = "dedupe"

	for _, n := range []*NodeDefinition{collect, check, analyze, clean} {
		require.NoError(t, p.AddNode(n))
	}
	p.AddEdge("collect", "check", "")
	p.AddEdge("check", "analyze", "true")
	p.AddEdge("check", "clean", "false")
	return p
}

func TestWorkflowPlan_MapRoundTrip(t *testing.T) {
	original := buildRichPlan(t)

	restored, err := FromMap(original.ToMap())
	require.NoError(t, err)

	assert.Equal(t, original.ID, restored.ID)
	assert.Equal(t, original.Name, restored.Name)
	assert.Equal(t, original.Goal, restored.Goal)
	assert.Equal(t, original.DefaultErrorStrategy, restored.DefaultErrorStrategy)
	require.Len(t, restored.Nodes, 4)
	require.Len(t, restored.Edges, 3)
	assert.Equal(t, original.Edges, restored.Edges)
	assert.Equal(t, "quality > 0.8", restored.GetNode("check").Config["expression"])
	assert.Empty(t, restored.Validate())
}

func TestWorkflowPlan_JSONRoundTrip(t *testing.T) {
	original := buildRichPlan(t)

	data, err := original.ToJSON()
	require.NoError(t, err)

	restored, err := PlanFromJSON([]byte(data))
	require.NoError(t, err)
	assert.Equal(t, original.Name, restored.Name)
	assert.Equal(t, original.DefaultErrorStrategy, restored.DefaultErrorStrategy)
	assert.Len(t, restored.Nodes, len(original.Nodes))
	assert.Equal(t, original.Edges, restored.Edges)
}

func TestWorkflowPlan_YAMLRoundTrip(t *testing.T) {
	original := buildRichPlan(t)

	data, err := original.ToYAML()
	require.NoError(t, err)

	restored, err := PlanFromYAML([]byte(data))
	require.NoError(t, err)
	assert.Equal(t, original.Name, restored.Name)
	assert.Len(t, restored.Nodes, 4)
	assert.Equal(t, original.Edges, restored.Edges)
	assert.Equal(t, 2, restored.DefaultErrorStrategy.Retry.MaxAttempts)
}

func TestFactory_NodesAlwaysValidate(t *testing.T) {
	f := NewFactory()

	collection := f.DataCollectionNode("collect", "orders",
		&TimeRange{Start: "2026-01-01", End: "2026-02-01"},
		map[string]string{"status": "paid", "region": "cn"},
	)
	assert.Empty(t, collection.Validate())
	assert.Contains(t, collection.Query, "SELECT * FROM orders")
	assert.Contains(t, collection.Query, "created_at >= '2026-01-01'")
	// Filter keys render in sorted order, so the SQL is deterministic.
	assert.Contains(t, collection.Query, "region = 'cn' AND status = 'paid'")

	metric := f.MetricCalculationNode("avg-amount", "avg", "amount")
	assert.Empty(t, metric.Validate())
	assert.Contains(t, metric.Code, `"avg"`)

	chart := f.ChartGenerationNode("chart", "bar", "Daily Orders")
	assert.Empty(t, chart.Validate())
	assert.Contains(t, chart.Code, "ax.bar")

	analysis := f.AnalysisNode("analyze", "找出下降原因", []string{"转化率", "客单价"})
	assert.Empty(t, analysis.Validate())
	assert.Contains(t, analysis.Prompt, "找出下降原因")
}
