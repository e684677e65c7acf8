// Package extract 从自然语言目标里抽取控制流：条件分支与循环描述。
// 这是 LLM 规划不可用时的规则回退路径，抽取结果是一次性的中间表示，
// 由节点合成消费后丢弃。
package extract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/orchio-ai/orchio/plan"
)

// ruleConfidence 规则抽取的固定置信度
const ruleConfidence = 0.6

// DecisionPoint 文本中识别出的一个条件分支
type DecisionPoint struct {
	ID          string   `json:"id"`
	Description string   `json:"description"`
	Expression  string   `json:"expression"`
	Branches    []string `json:"branches"`
	Confidence  float64  `json:"confidence"`
	SourceText  string   `json:"source_text"`
}

// LoopSpec 文本中识别出的一个循环描述
type LoopSpec struct {
	ID           string  `json:"id"`
	Description  string  `json:"description"`
	Collection   string  `json:"collection"`
	LoopVariable string  `json:"loop_variable"`
	LoopType     string  `json:"loop_type"`
	Confidence   float64 `json:"confidence"`
	SourceText   string  `json:"source_text"`
}

// ControlFlowIR 抽取结果
type ControlFlowIR struct {
	Decisions []DecisionPoint `json:"decisions"`
	Loops     []LoopSpec      `json:"loops"`
}

// IsEmpty reports whether nothing was extracted.
func (ir *ControlFlowIR) IsEmpty() bool {
	return len(ir.Decisions) == 0 && len(ir.Loops) == 0
}

// 中文与英文的条件句式。捕获组: 条件 / then 分支 / 可选 else 分支。
var conditionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`如果(.+?)，?\s*则(.+?)(?:，?\s*否则(.+?))?(?:[。；;.]|$)`),
	regexp.MustCompile(`(?i)\bif\s+(.+?)\s*,?\s*then\s+(.+?)(?:\s*,?\s*(?:otherwise|else)\s+(.+?))?(?:[.;]|$)`),
	regexp.MustCompile(`(?i)\bwhen\s+(.+?)\s*,\s*(.+?)(?:\s*,?\s*(?:otherwise|else)\s+(.+?))?(?:[.;]|$)`),
}

// 循环句式。捕获组: 集合描述。
var loopPatterns = []*regexp.Regexp{
	regexp.MustCompile(`对每个(.+?)(?:，|执行|进行|[。；;]|$)`),
	regexp.MustCompile(`遍历(.+?)(?:，|[。；;]|$)`),
	regexp.MustCompile(`循环处理(.+?)(?:，|[。；;]|$)`),
	regexp.MustCompile(`(?i)\bfor\s+each\s+(.+?)(?:\s*,|[.;]|$)`),
	regexp.MustCompile(`(?i)\biterate\s+(?:over\s+)?(.+?)(?:\s*,|[.;]|$)`),
}

// 条件描述到表达式的启发式改写
var comparisonRewrites = []struct {
	pattern *regexp.Regexp
	op      string
}{
	{regexp.MustCompile(`(.+?)大于等于([\d.]+)`), ">="},
	{regexp.MustCompile(`(.+?)小于等于([\d.]+)`), "<="},
	{regexp.MustCompile(`(.+?)大于([\d.]+)`), ">"},
	{regexp.MustCompile(`(.+?)小于([\d.]+)`), "<"},
	{regexp.MustCompile(`(.+?)等于([\d.]+)`), "=="},
	{regexp.MustCompile(`(?i)(.+?)\s+(?:is\s+)?greater\s+than\s+([\d.]+)`), ">"},
	{regexp.MustCompile(`(?i)(.+?)\s+(?:is\s+)?less\s+than\s+([\d.]+)`), "<"},
	{regexp.MustCompile(`(?i)(.+?)\s*>\s*([\d.]+)`), ">"},
	{regexp.MustCompile(`(?i)(.+?)\s*<\s*([\d.]+)`), "<"},
	{regexp.MustCompile(`(?i)(.+?)\s*>=\s*([\d.]+)`), ">="},
	{regexp.MustCompile(`(?i)(.+?)\s*<=\s*([\d.]+)`), "<="},
}

// 常见中文指标名到变量名的映射，长别名优先匹配。
var variableAliases = []struct {
	alias string
	name  string
}{
	{"数据质量", "data_quality"},
	{"错误率", "error_rate"},
	{"准确率", "accuracy"},
	{"质量", "quality"},
	{"数量", "count"},
	{"分数", "score"},
}

// Extractor 规则驱动的控制流抽取器
type Extractor struct{}

// NewExtractor 创建抽取器
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract 对目标文本做一遍规则抽取
func (e *Extractor) Extract(text string) *ControlFlowIR {
	ir := &ControlFlowIR{}
	if strings.TrimSpace(text) == "" {
		return ir
	}

	for _, pattern := range conditionPatterns {
		for _, match := range pattern.FindAllStringSubmatch(text, -1) {
			condition := strings.TrimSpace(match[1])
			thenBranch := strings.TrimSpace(match[2])
			branches := []string{thenBranch}
			if len(match) > 3 && strings.TrimSpace(match[3]) != "" {
				branches = append(branches, strings.TrimSpace(match[3]))
			}
			ir.Decisions = append(ir.Decisions, DecisionPoint{
				ID:          uuid.NewString(),
				Description: condition,
				Expression:  rewriteCondition(condition),
				Branches:    branches,
				Confidence:  ruleConfidence,
				SourceText:  strings.TrimSpace(match[0]),
			})
		}
	}

	for _, pattern := range loopPatterns {
		for _, match := range pattern.FindAllStringSubmatch(text, -1) {
			collection := strings.TrimSpace(match[1])
			if collection == "" {
				continue
			}
			ir.Loops = append(ir.Loops, LoopSpec{
				ID:           uuid.NewString(),
				Description:  collection,
				Collection:   collectionField(collection),
				LoopVariable: "item",
				LoopType:     "for_each",
				Confidence:   ruleConfidence,
				SourceText:   strings.TrimSpace(match[0]),
			})
		}
	}

	return ir
}

// rewriteCondition 把条件描述改写为可求值表达式。识别不了的描述退化
// 为布尔变量引用。
func rewriteCondition(condition string) string {
	for _, rw := range comparisonRewrites {
		if match := rw.pattern.FindStringSubmatch(condition); match != nil {
			return fmt.Sprintf("%s %s %s", variableName(match[1]), rw.op, strings.TrimSpace(match[2]))
		}
	}
	return variableName(condition)
}

// variableName 把自然语言指标描述映射为变量名
func variableName(description string) string {
	description = strings.TrimSpace(description)
	for _, entry := range variableAliases {
		if strings.Contains(description, entry.alias) {
			return entry.name
		}
	}
	name := strings.ToLower(description)
	name = strings.ReplaceAll(name, " ", "_")
	name = strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_' {
			return r
		}
		return -1
	}, name)
	if name == "" {
		name = "condition_value"
	}
	return name
}

// collectionField 把集合描述映射为上下文字段名
func collectionField(description string) string {
	if name := variableName(description); name != "condition_value" && name != "" {
		return name
	}
	return "items"
}

// BuildControlNodes 把抽取结果合成为控制节点与分支边。每个决策点生成
// 一个 CONDITION 节点与 true/false 守卫边目标，每个循环生成一个 LOOP
// 节点。
func BuildControlNodes(ir *ControlFlowIR) ([]*plan.NodeDefinition, []plan.EdgeDefinition) {
	var nodes []*plan.NodeDefinition
	var edges []plan.EdgeDefinition

	for i, decision := range ir.Decisions {
		condNode := plan.NewNodeDefinition(fmt.Sprintf("condition_%d", i+1), plan.NodeTypeCondition)
		condNode.Description = decision.Description
		condNode.Config["expression"] = decision.Expression
		condNode.Config["confidence"] = decision.Confidence
		nodes = append(nodes, condNode)

		for j, branch := range decision.Branches {
			branchNode := plan.NewNodeDefinition(fmt.Sprintf("condition_%d_branch_%d", i+1, j+1), plan.NodeTypePython)
			branchNode.Description = branch
			branchNode.Code = fmt.Sprintf("# %s\n", branch)
			nodes = append(nodes, branchNode)

			guard := "True"
			if j > 0 {
				guard = "False"
			}
			edges = append(edges, plan.EdgeDefinition{
				SourceNode: condNode.Name,
				TargetNode: branchNode.Name,
				Condition:  guard,
			})
		}
	}

	for i, loop := range ir.Loops {
		loopNode := plan.NewNodeDefinition(fmt.Sprintf("loop_%d", i+1), plan.NodeTypeLoop)
		loopNode.Description = loop.Description
		loopNode.Config["collection_field"] = loop.Collection
		loopNode.Config["loop_type"] = loop.LoopType
		loopNode.Config["loop_variable"] = loop.LoopVariable
		loopNode.Config["confidence"] = loop.Confidence
		nodes = append(nodes, loopNode)
	}

	return nodes, edges
}
