package rules

import (
	"fmt"
	"strings"

	"github.com/orchio-ai/orchio/graph"
)

// DagRuleBuilder 构造针对 create_workflow_plan 载荷的图结构校验规则。
// 载荷形态约定：payload["nodes"] 为 []map[string]any，每项带 node_id；
// payload["edges"] 为 []map[string]any，每项带 source/target。
type DagRuleBuilder struct{}

// NewDagRuleBuilder 创建图规则构造器
func NewDagRuleBuilder() *DagRuleBuilder {
	return &DagRuleBuilder{}
}

// BuildDagValidationRule 节点唯一性、边端点存在性与环检测一次性全查，
// 问题累积到 payload["_dag_errors"]，不在首个缺陷处短路。
func (b *DagRuleBuilder) BuildDagValidationRule(priority int) Rule {
	return Rule{
		ID:       "dag_validation",
		Name:     "工作流图结构检查",
		Priority: priority,
		Condition: func(payload map[string]any) bool {
			if actionType(payload) != "create_workflow_plan" {
				return true
			}

			nodes := payloadItems(payload["nodes"])
			edges := payloadItems(payload["edges"])

			var dagErrors []string

			// 节点ID频次统计找重复
			counts := make(map[string]int)
			var ids []string
			for _, node := range nodes {
				id, _ := node["node_id"].(string)
				if id == "" {
					dagErrors = append(dagErrors, "存在缺少 node_id 的节点")
					continue
				}
				counts[id]++
				if counts[id] == 1 {
					ids = append(ids, id)
				}
			}
			for _, id := range ids {
				if counts[id] > 1 {
					dagErrors = append(dagErrors, fmt.Sprintf("节点ID重复: %s (出现 %d 次)", id, counts[id]))
				}
			}

			known := make(map[string]bool, len(ids))
			for _, id := range ids {
				known[id] = true
			}
			var graphEdges []graph.Edge
			for _, edge := range edges {
				source, _ := edge["source"].(string)
				target, _ := edge["target"].(string)
				if !known[source] {
					dagErrors = append(dagErrors, fmt.Sprintf("边引用不存在的节点: %s", source))
				}
				if !known[target] {
					dagErrors = append(dagErrors, fmt.Sprintf("边引用不存在的节点: %s", target))
				}
				graphEdges = append(graphEdges, graph.Edge{From: source, To: target})
			}

			if hasCycle, unvisited := graph.KahnDetect(ids, graphEdges); hasCycle {
				dagErrors = append(dagErrors, fmt.Sprintf("循环依赖: 涉及节点 %s", strings.Join(unvisited, ", ")))
			}

			if len(dagErrors) > 0 {
				payload["_dag_errors"] = dagErrors
				return false
			}
			return true
		},
		Message: func(payload map[string]any) string {
			if dagErrors, ok := payload["_dag_errors"].([]string); ok {
				return fmt.Sprintf("工作流图校验失败: %s", strings.Join(dagErrors, "; "))
			}
			return "工作流图校验失败"
		},
	}
}

// payloadItems 兼容 []map[string]any 与 []any 两种载荷形态
func payloadItems(v any) []map[string]any {
	switch t := v.(type) {
	case []map[string]any:
		return t
	case []any:
		items := make([]map[string]any, 0, len(t))
		for _, item := range t {
			if m, ok := item.(map[string]any); ok {
				items = append(items, m)
			}
		}
		return items
	}
	return nil
}
