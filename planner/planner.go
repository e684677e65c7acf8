// Package planner 把目标描述转换为工作流计划。LLM 端口是首选路径；
// 端口缺席或出错时回退到基于规则抽取的规划器，来源记录在计划元数据。
package planner

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/orchio-ai/orchio/plan"
)

// Planner 规划端口。实现方可以是 LLM 驱动的，也可以是规则驱动的。
type Planner interface {
	// PlanWorkflow 从目标文本生成完整计划
	PlanWorkflow(ctx context.Context, goal string) (*plan.WorkflowPlan, error)
	// DecomposeToNodes 把子任务描述列表转换为节点定义
	DecomposeToNodes(ctx context.Context, tasks []string) ([]*plan.NodeDefinition, error)
	// ReplanWorkflow 在部分失败后基于反馈重新规划
	ReplanWorkflow(ctx context.Context, previous *plan.WorkflowPlan, feedback string) (*plan.WorkflowPlan, error)
}

// Service 规划服务：首选 primary，出错或缺席时回退 fallback。使用的
// 路径写入 plan.Metadata["planner_source"]。
type Service struct {
	primary  Planner
	fallback Planner
	logger   *zap.Logger
}

// NewService 创建规划服务。primary 可为 nil，此时总是走回退路径。
func NewService(primary, fallback Planner, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if fallback == nil {
		fallback = NewRuleBased()
	}
	return &Service{
		primary:  primary,
		fallback: fallback,
		logger:   logger.With(zap.String("component", "planner")),
	}
}

// PlanWorkflow 尝试首选规划器，失败时回退。
func (s *Service) PlanWorkflow(ctx context.Context, goal string) (*plan.WorkflowPlan, error) {
	if s.primary != nil {
		p, err := s.primary.PlanWorkflow(ctx, goal)
		if err == nil {
			stampSource(p, "llm")
			return p, nil
		}
		s.logger.Warn("primary planner failed, using rule-based fallback",
			zap.String("goal", goal),
			zap.Error(err),
		)
	}
	p, err := s.fallback.PlanWorkflow(ctx, goal)
	if err != nil {
		return nil, fmt.Errorf("fallback planner: %w", err)
	}
	stampSource(p, "rule_based")
	return p, nil
}

func stampSource(p *plan.WorkflowPlan, source string) {
	if p == nil {
		return
	}
	if p.Metadata == nil {
		p.Metadata = make(map[string]any)
	}
	p.Metadata["planner_source"] = source
}
