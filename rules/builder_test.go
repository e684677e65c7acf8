package rules

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequiredFieldsRule(t *testing.T) {
	b := NewPayloadRuleBuilder()
	rule := b.BuildRequiredFieldsRule("create_workflow_plan", []string{"goal", "nodes"}, 10)

	payload := map[string]any{
		"action_type": "create_workflow_plan",
		"goal":        "分析数据",
		"nodes":       []any{map[string]any{"node_id": "a"}},
	}
	assert.True(t, rule.Condition(payload))

	payload = map[string]any{
		"action_type": "create_workflow_plan",
		"goal":        "   ",
		"nodes":       []any{},
	}
	require.False(t, rule.Condition(payload))
	missing, ok := payload["_missing_fields"].([]string)
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"goal", "nodes"}, missing)
	assert.Contains(t, rule.Message(payload), "goal")
}

func TestRequiredFieldsRuleScopedByAction(t *testing.T) {
	b := NewPayloadRuleBuilder()
	rule := b.BuildRequiredFieldsRule("create_workflow_plan", []string{"goal"}, 10)

	// action_type 不匹配时直接通过
	assert.True(t, rule.Condition(map[string]any{"action_type": "other"}))
	assert.True(t, rule.Condition(map[string]any{}))
}

func TestTypeValidationRule(t *testing.T) {
	b := NewPayloadRuleBuilder()
	rule := b.BuildTypeValidationRule("update_node", map[string]any{
		"name":          TypeString,
		"config.weight": []FieldType{TypeNumber, TypeString},
		"tags":          TypeList,
	}, 5)

	payload := map[string]any{
		"action_type": "update_node",
		"name":        "clean",
		"config":      map[string]any{"weight": 0.5},
		"tags":        []any{"etl"},
	}
	assert.True(t, rule.Condition(payload))

	// 联合类型：字符串形态同样接受
	payload["config"] = map[string]any{"weight": "heavy"}
	assert.True(t, rule.Condition(payload))

	payload["name"] = 42
	require.False(t, rule.Condition(payload))
	assert.Contains(t, rule.Message(payload), "name")
}

func TestTypeValidationRuleSkipsMissingFields(t *testing.T) {
	b := NewPayloadRuleBuilder()
	rule := b.BuildTypeValidationRule("update_node", map[string]any{"name": TypeString}, 5)

	assert.True(t, rule.Condition(map[string]any{"action_type": "update_node"}))
}

func TestRangeValidationRule(t *testing.T) {
	b := NewPayloadRuleBuilder()
	low, high := 1.0, 10.0
	rule := b.BuildRangeValidationRule("update_node", map[string]NumericRange{
		"retry.max_attempts": {Min: &low, Max: &high},
	}, 5)

	payload := map[string]any{
		"action_type": "update_node",
		"retry":       map[string]any{"max_attempts": 3},
	}
	assert.True(t, rule.Condition(payload))

	payload["retry"] = map[string]any{"max_attempts": 11}
	require.False(t, rule.Condition(payload))
	assert.Contains(t, rule.Message(payload), "max_attempts")

	// 非数值与缺失字段静默跳过
	payload = map[string]any{
		"action_type": "update_node",
		"retry":       map[string]any{"max_attempts": "many"},
	}
	assert.True(t, rule.Condition(payload))
	assert.True(t, rule.Condition(map[string]any{"action_type": "update_node"}))
}

func TestEnumValidationRule(t *testing.T) {
	b := NewPayloadRuleBuilder()
	rule := b.BuildEnumValidationRule("update_node", "on_failure", []any{"continue", "terminate", "retry"}, 5)

	payload := map[string]any{"action_type": "update_node", "on_failure": "retry"}
	assert.True(t, rule.Condition(payload))

	payload["on_failure"] = "explode"
	require.False(t, rule.Condition(payload))
	assert.Contains(t, rule.Message(payload), "explode")
	require.NotNil(t, rule.Correction)
	assert.Contains(t, rule.Correction(payload), "on_failure")
}

func TestDagValidationRuleDetectsCycle(t *testing.T) {
	b := NewDagRuleBuilder()
	rule := b.BuildDagValidationRule(100)

	payload := map[string]any{
		"action_type": "create_workflow_plan",
		"nodes": []any{
			map[string]any{"node_id": "a"},
			map[string]any{"node_id": "b"},
			map[string]any{"node_id": "c"},
		},
		"edges": []any{
			map[string]any{"source": "a", "target": "b"},
			map[string]any{"source": "b", "target": "c"},
			map[string]any{"source": "c", "target": "a"},
		},
	}

	require.False(t, rule.Condition(payload))
	dagErrors, ok := payload["_dag_errors"].([]string)
	require.True(t, ok)
	assert.Contains(t, strings.Join(dagErrors, "; "), "循环依赖")
}

func TestDagValidationRuleAccumulatesAllDefects(t *testing.T) {
	b := NewDagRuleBuilder()
	rule := b.BuildDagValidationRule(100)

	payload := map[string]any{
		"action_type": "create_workflow_plan",
		"nodes": []any{
			map[string]any{"node_id": "a"},
			map[string]any{"node_id": "a"},
			map[string]any{"node_id": "b"},
		},
		"edges": []any{
			map[string]any{"source": "a", "target": "ghost"},
		},
	}

	require.False(t, rule.Condition(payload))
	dagErrors := payload["_dag_errors"].([]string)
	joined := strings.Join(dagErrors, "; ")
	// 单次校验报告所有缺陷，不在首个问题处短路
	assert.Contains(t, joined, "节点ID重复")
	assert.Contains(t, joined, "边引用不存在的节点")
}

func TestDagValidationRuleAcceptsValidDAG(t *testing.T) {
	b := NewDagRuleBuilder()
	rule := b.BuildDagValidationRule(100)

	payload := map[string]any{
		"action_type": "create_workflow_plan",
		"nodes": []map[string]any{
			{"node_id": "a"},
			{"node_id": "b"},
		},
		"edges": []map[string]any{
			{"source": "a", "target": "b"},
		},
	}
	assert.True(t, rule.Condition(payload))
	_, stashed := payload["_dag_errors"]
	assert.False(t, stashed)
}

func TestDagValidationRuleScopedByAction(t *testing.T) {
	b := NewDagRuleBuilder()
	rule := b.BuildDagValidationRule(100)

	assert.True(t, rule.Condition(map[string]any{"action_type": "update_node"}))
}
