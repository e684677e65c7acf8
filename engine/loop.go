package engine

import (
	"fmt"
	"strings"

	"github.com/orchio-ai/orchio/plan"
)

// executeLoopNode 对绑定集合逐项迭代。for_each 只收集各项，map 对每项
// 求值变换表达式，filter 保留条件为真的项。迭代是顺序的。
func (a *Agent) executeLoopNode(def *plan.NodeDefinition) (map[string]any, error) {
	field, _ := def.Config["collection_field"].(string)
	if field == "" {
		return nil, fmt.Errorf("node %s: loop requires collection_field", def.Name)
	}
	raw, ok := resolvePath(a.vars, field)
	if !ok {
		return nil, fmt.Errorf("node %s: collection %q not found in context", def.Name, field)
	}
	items, ok := anySlice(raw)
	if !ok {
		return nil, fmt.Errorf("node %s: collection %q is not a list", def.Name, field)
	}

	loopType, _ := def.Config["loop_type"].(string)
	if loopType == "" {
		loopType = "for_each"
	}
	loopVar, _ := def.Config["loop_variable"].(string)
	if loopVar == "" {
		loopVar = "item"
	}

	switch loopType {
	case "for_each":
		return map[string]any{"items": items, "count": len(items)}, nil

	case "map":
		expression, _ := def.Config["transform_expression"].(string)
		if expression == "" {
			return nil, fmt.Errorf("node %s: map loop requires transform_expression", def.Name)
		}
		mapped := make([]any, 0, len(items))
		for i, item := range items {
			vars := a.snapshotVars()
			vars[loopVar] = item
			vars["index"] = i
			value, err := a.evaluator.EvaluateValue(expression, vars)
			if err != nil {
				return nil, fmt.Errorf("node %s: item %d: %w", def.Name, i, err)
			}
			mapped = append(mapped, value)
		}
		return map[string]any{"items": mapped, "count": len(mapped)}, nil

	case "filter":
		condition, _ := def.Config["filter_condition"].(string)
		if condition == "" {
			return nil, fmt.Errorf("node %s: filter loop requires filter_condition", def.Name)
		}
		kept := make([]any, 0, len(items))
		for i, item := range items {
			vars := a.snapshotVars()
			vars[loopVar] = item
			vars["index"] = i
			keep, err := a.evaluator.Evaluate(condition, vars)
			if err != nil {
				return nil, fmt.Errorf("node %s: item %d: %w", def.Name, i, err)
			}
			if keep {
				kept = append(kept, item)
			}
		}
		return map[string]any{"items": kept, "count": len(kept)}, nil
	}

	return nil, fmt.Errorf("node %s: unknown loop type %q", def.Name, loopType)
}

// resolvePath 点号路径读取运行上下文
func resolvePath(vars map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var current any = vars
	for _, part := range parts {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func anySlice(v any) ([]any, bool) {
	switch t := v.(type) {
	case []any:
		return t, true
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out, true
	case []int:
		out := make([]any, len(t))
		for i, n := range t {
			out[i] = n
		}
		return out, true
	case []float64:
		out := make([]any, len(t))
		for i, f := range t {
			out[i] = f
		}
		return out, true
	case []map[string]any:
		out := make([]any, len(t))
		for i, m := range t {
			out[i] = m
		}
		return out, true
	}
	return nil, false
}
