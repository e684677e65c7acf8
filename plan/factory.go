package plan

import (
	"fmt"
	"sort"
	"strings"
)

// Factory 预置节点工厂：为常见数据分析场景生成已填充、可直接通过
// Validate 的节点。这些是便利方法，不承载核心不变量。
type Factory struct{}

// NewFactory creates a node factory.
func NewFactory() *Factory {
	return &Factory{}
}

// TimeRange 数据采集的时间范围
type TimeRange struct {
	Start string
	End   string
}

// DataCollectionNode synthesizes a DATABASE node that selects rows
// from a table within a time range, with optional equality filters.
func (f *Factory) DataCollectionNode(name, table string, timeRange *TimeRange, filters map[string]string) *NodeDefinition {
	node := NewNodeDefinition(name, NodeTypeDatabase)

	var conditions []string
	if timeRange != nil {
		conditions = append(conditions,
			fmt.Sprintf("created_at >= '%s'", timeRange.Start),
			fmt.Sprintf("created_at < '%s'", timeRange.End),
		)
	}
	// Filters append in key-sorted order for deterministic SQL.
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		conditions = append(conditions, fmt.Sprintf("%s = '%s'", k, filters[k]))
	}

	query := fmt.Sprintf("SELECT * FROM %s", table)
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	node.Query = query
	node.Config["table"] = table
	return node
}

// MetricCalculationNode synthesizes a PYTHON node computing the named
// aggregate over a field of the upstream rows.
func (f *Factory) MetricCalculationNode(name, metric, field string) *NodeDefinition {
	node := NewNodeDefinition(name, NodeTypePython)
	node.Code = fmt.Sprintf(`rows = inputs.get("rows", [])
values = [row.get(%q) for row in rows if row.get(%q) is not None]
if not values:
    result = {"metric": %q, "value": None}
else:
    total = sum(values)
    if %q == "sum":
        value = total
    elif %q == "avg":
        value = total / len(values)
    elif %q == "max":
        value = max(values)
    elif %q == "min":
        value = min(values)
    else:
        value = len(values)
    result = {"metric": %q, "value": value}
`, field, field, metric, metric, metric, metric, metric, metric)
	node.Config["metric"] = metric
	node.Config["field"] = field
	return node
}

// ChartGenerationNode synthesizes a PYTHON node rendering a chart of
// the upstream metric series.
func (f *Factory) ChartGenerationNode(name, chartType, title string) *NodeDefinition {
	node := NewNodeDefinition(name, NodeTypePython)
	node.Code = fmt.Sprintf(`import matplotlib
matplotlib.use("Agg")
import matplotlib.pyplot as plt

series = inputs.get("series", [])
labels = [point.get("label", str(i)) for i, point in enumerate(series)]
values = [point.get("value", 0) for point in series]

fig, ax = plt.subplots()
if %q == "bar":
    ax.bar(labels, values)
elif %q == "pie":
    ax.pie(values, labels=labels)
else:
    ax.plot(labels, values)
ax.set_title(%q)
fig.savefig("chart.png")
result = {"chart_path": "chart.png"}
`, chartType, chartType, title)
	node.Config["chart_type"] = chartType
	return node
}

// AnalysisNode synthesizes an LLM node that analyzes upstream results
// against the stated goal.
func (f *Factory) AnalysisNode(name, goal string, focusAreas []string) *NodeDefinition {
	node := NewNodeDefinition(name, NodeTypeLLM)

	var sb strings.Builder
	sb.WriteString("你是一名数据分析专家。请根据以下目标分析上游节点的输出：\n")
	sb.WriteString("目标: " + goal + "\n")
	if len(focusAreas) > 0 {
		sb.WriteString("重点关注: " + strings.Join(focusAreas, "、") + "\n")
	}
	sb.WriteString("输入数据: {inputs}\n")
	sb.WriteString("请输出结构化的分析结论与建议。")

	node.Prompt = sb.String()
	return node
}
