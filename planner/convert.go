package planner

import (
	"fmt"

	"github.com/orchio-ai/orchio/plan"
)

// Convert 把规划输出的计划字典转换为 WorkflowPlan。节点 type 字符串
// 解析失败时按内容回退：带代码的按 PYTHON，否则按 GENERIC 结构节点。
func Convert(dict map[string]any) (*plan.WorkflowPlan, error) {
	if dict == nil {
		return nil, fmt.Errorf("plan dict is nil")
	}
	name, _ := dict["name"].(string)
	if name == "" {
		name = "generated_plan"
	}
	goal, _ := dict["goal"].(string)

	p := plan.NewWorkflowPlan(name, goal)
	if description, ok := dict["description"].(string); ok {
		p.Description = description
	}

	for i, raw := range itemList(dict["nodes"]) {
		node, err := convertNode(raw)
		if err != nil {
			return nil, fmt.Errorf("node %d: %w", i, err)
		}
		if err := p.AddNode(node); err != nil {
			return nil, err
		}
	}

	for _, raw := range itemList(dict["edges"]) {
		source, _ := raw["source"].(string)
		target, _ := raw["target"].(string)
		condition, _ := raw["condition"].(string)
		if source == "" || target == "" {
			return nil, fmt.Errorf("edge requires source and target, got %v", raw)
		}
		p.AddEdge(source, target, condition)
	}

	return p, nil
}

func convertNode(raw map[string]any) (*plan.NodeDefinition, error) {
	name, _ := raw["name"].(string)
	if name == "" {
		return nil, fmt.Errorf("node name is required")
	}

	code, _ := raw["code"].(string)
	typeTag, _ := raw["type"].(string)
	nodeType, err := plan.ParseNodeType(typeTag)
	if err != nil {
		// 未知类型：可执行内容按 PYTHON，纯结构按 GENERIC
		if code != "" {
			nodeType = plan.NodeTypePython
		} else {
			nodeType = plan.NodeTypeGeneric
		}
	}

	node := plan.NewNodeDefinition(name, nodeType)
	node.Code = code
	if v, ok := raw["description"].(string); ok {
		node.Description = v
	}
	if v, ok := raw["prompt"].(string); ok {
		node.Prompt = v
	}
	if v, ok := raw["url"].(string); ok {
		node.URL = v
	}
	if v, ok := raw["query"].(string); ok {
		node.Query = v
	}
	if cfg, ok := raw["config"].(map[string]any); ok {
		for key, value := range cfg {
			node.Config[key] = value
		}
	}
	return node, nil
}

func itemList(v any) []map[string]any {
	switch t := v.(type) {
	case []map[string]any:
		return t
	case []any:
		out := make([]map[string]any, 0, len(t))
		for _, item := range t {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	}
	return nil
}
