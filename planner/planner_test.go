package planner

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/orchio-ai/orchio/plan"
)

type stubPlanner struct {
	plan *plan.WorkflowPlan
	err  error
}

func (s *stubPlanner) PlanWorkflow(context.Context, string) (*plan.WorkflowPlan, error) {
	return s.plan, s.err
}

func (s *stubPlanner) DecomposeToNodes(context.Context, []string) ([]*plan.NodeDefinition, error) {
	return nil, s.err
}

func (s *stubPlanner) ReplanWorkflow(context.Context, *plan.WorkflowPlan, string) (*plan.WorkflowPlan, error) {
	return s.plan, s.err
}

func TestServicePrefersPrimary(t *testing.T) {
	primary := &stubPlanner{plan: plan.NewWorkflowPlan("from_llm", "goal")}
	s := NewService(primary, nil, zap.NewNop())

	p, err := s.PlanWorkflow(context.Background(), "goal")
	require.NoError(t, err)
	assert.Equal(t, "from_llm", p.Name)
	assert.Equal(t, "llm", p.Metadata["planner_source"])
}

func TestServiceFallsBackOnPrimaryError(t *testing.T) {
	primary := &stubPlanner{err: errors.New("provider unavailable")}
	s := NewService(primary, nil, zap.NewNop())

	p, err := s.PlanWorkflow(context.Background(), "如果数据质量大于0.8，则进行分析，否则进行清洗")
	require.NoError(t, err)
	assert.Equal(t, "rule_based", p.Metadata["planner_source"])
	assert.NotEmpty(t, p.Nodes)
}

func TestServiceWithoutPrimaryUsesFallback(t *testing.T) {
	s := NewService(nil, nil, zap.NewNop())

	p, err := s.PlanWorkflow(context.Background(), "整理数据")
	require.NoError(t, err)
	assert.Equal(t, "rule_based", p.Metadata["planner_source"])
}

func TestRuleBasedPlanWorkflowControlFlow(t *testing.T) {
	r := NewRuleBased()

	p, err := r.PlanWorkflow(context.Background(), "如果数据质量大于0.8，则进行分析，否则进行清洗")
	require.NoError(t, err)

	var conditionCount int
	for _, node := range p.Nodes {
		if node.Type == plan.NodeTypeCondition {
			conditionCount++
		}
	}
	assert.Equal(t, 1, conditionCount)
	assert.Len(t, p.Edges, 2)
	assert.False(t, p.HasCircularDependency())
}

func TestRuleBasedPlanWorkflowPlainGoal(t *testing.T) {
	r := NewRuleBased()

	p, err := r.PlanWorkflow(context.Background(), "整理周报并发送给团队")
	require.NoError(t, err)
	require.Len(t, p.Nodes, 1)
	assert.Equal(t, plan.NodeTypePython, p.Nodes[0].Type)
	assert.NotEmpty(t, p.Nodes[0].Code)
}

func TestRuleBasedPlanWorkflowEmptyGoal(t *testing.T) {
	r := NewRuleBased()
	_, err := r.PlanWorkflow(context.Background(), "")
	assert.Error(t, err)
}

func TestRuleBasedDecomposeToNodes(t *testing.T) {
	r := NewRuleBased()

	nodes, err := r.DecomposeToNodes(context.Background(), []string{"收集数据", "生成报告"})
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.Equal(t, "task_1", nodes[0].Name)
	assert.Equal(t, "收集数据", nodes[0].Description)

	_, err = r.DecomposeToNodes(context.Background(), []string{""})
	assert.Error(t, err)
}

func TestConvertPlanDict(t *testing.T) {
	dict := map[string]any{
		"name": "converted",
		"goal": "分析销售数据",
		"nodes": []any{
			map[string]any{"name": "collect", "type": "python", "code": "print('x')"},
			map[string]any{"name": "check", "type": "condition", "config": map[string]any{"expression": "count > 0"}},
		},
		"edges": []any{
			map[string]any{"source": "collect", "target": "check"},
		},
	}

	p, err := Convert(dict)
	require.NoError(t, err)
	assert.Equal(t, "converted", p.Name)
	require.Len(t, p.Nodes, 2)
	assert.Equal(t, plan.NodeTypeCondition, p.Nodes[1].Type)
	require.Len(t, p.Edges, 1)
	assert.Empty(t, p.Validate())
}

func TestConvertUnknownTypeFallbacks(t *testing.T) {
	dict := map[string]any{
		"name": "fallbacks",
		"nodes": []any{
			map[string]any{"name": "scripted", "type": "ruby", "code": "puts 1"},
			map[string]any{"name": "structural", "type": "phase"},
		},
	}

	p, err := Convert(dict)
	require.NoError(t, err)
	// 未知类型：有代码回退 PYTHON，无代码回退 GENERIC
	assert.Equal(t, plan.NodeTypePython, p.Nodes[0].Type)
	assert.Equal(t, plan.NodeTypeGeneric, p.Nodes[1].Type)
}

func TestConvertErrors(t *testing.T) {
	_, err := Convert(nil)
	assert.Error(t, err)

	_, err = Convert(map[string]any{
		"nodes": []any{map[string]any{"type": "python"}},
	})
	assert.ErrorContains(t, err, "name is required")

	_, err = Convert(map[string]any{
		"edges": []any{map[string]any{"source": "a"}},
	})
	assert.ErrorContains(t, err, "source and target")
}
