package ctxkeys

import "context"

// contextKey 用于在 context 中存储值的键类型
type contextKey string

const (
	runIDKey  contextKey = "run_id"
	planIDKey contextKey = "plan_id"
	nodeIDKey contextKey = "node_id"
)

// WithRunID 设置 RunID
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// RunID 获取 RunID
func RunID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(runIDKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithPlanID 设置计划ID
func WithPlanID(ctx context.Context, planID string) context.Context {
	return context.WithValue(ctx, planIDKey, planID)
}

// PlanID 获取计划ID
func PlanID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(planIDKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithNodeID 设置当前执行节点ID
func WithNodeID(ctx context.Context, nodeID string) context.Context {
	return context.WithValue(ctx, nodeIDKey, nodeID)
}

// NodeID 获取当前执行节点ID
func NodeID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(nodeIDKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
