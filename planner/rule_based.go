package planner

import (
	"context"
	"fmt"

	"github.com/orchio-ai/orchio/extract"
	"github.com/orchio-ai/orchio/plan"
)

// RuleBased 规则回退规划器：用控制流抽取合成条件与循环节点，目标里
// 没有控制流时退化为单个数据处理节点。
type RuleBased struct {
	extractor *extract.Extractor
}

// NewRuleBased 创建规则规划器
func NewRuleBased() *RuleBased {
	return &RuleBased{extractor: extract.NewExtractor()}
}

// PlanWorkflow 抽取控制流并合成计划
func (r *RuleBased) PlanWorkflow(_ context.Context, goal string) (*plan.WorkflowPlan, error) {
	if goal == "" {
		return nil, fmt.Errorf("goal is empty")
	}

	p := plan.NewWorkflowPlan("rule_based_plan", goal)

	ir := r.extractor.Extract(goal)
	if ir.IsEmpty() {
		node := plan.NewNodeDefinition("execute_goal", plan.NodeTypePython)
		node.Description = goal
		node.Code = fmt.Sprintf("# %s\nresult = {'goal': %q}\n", goal, goal)
		if err := p.AddNode(node); err != nil {
			return nil, err
		}
		return p, nil
	}

	nodes, edges := extract.BuildControlNodes(ir)
	for _, node := range nodes {
		if err := p.AddNode(node); err != nil {
			return nil, err
		}
	}
	p.Edges = append(p.Edges, edges...)
	return p, nil
}

// DecomposeToNodes 每个任务描述一个 PYTHON 节点
func (r *RuleBased) DecomposeToNodes(_ context.Context, tasks []string) ([]*plan.NodeDefinition, error) {
	nodes := make([]*plan.NodeDefinition, 0, len(tasks))
	for i, task := range tasks {
		if task == "" {
			return nil, fmt.Errorf("task %d is empty", i)
		}
		node := plan.NewNodeDefinition(fmt.Sprintf("task_%d", i+1), plan.NodeTypePython)
		node.Description = task
		node.Code = fmt.Sprintf("# %s\n", task)
		nodes = append(nodes, node)
	}
	return nodes, nil
}

// ReplanWorkflow 规则路径没有真正的重规划：附加反馈重新抽取一遍。
func (r *RuleBased) ReplanWorkflow(ctx context.Context, previous *plan.WorkflowPlan, feedback string) (*plan.WorkflowPlan, error) {
	goal := feedback
	if previous != nil && previous.Goal != "" {
		goal = previous.Goal + "。" + feedback
	}
	return r.PlanWorkflow(ctx, goal)
}
