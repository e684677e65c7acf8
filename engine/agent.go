package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/orchio-ai/orchio/event"
	"github.com/orchio-ai/orchio/expr"
	"github.com/orchio-ai/orchio/internal/ctxkeys"
	"github.com/orchio-ai/orchio/plan"
	"github.com/orchio-ai/orchio/safety"
	"github.com/orchio-ai/orchio/types"
)

// 运行整体状态
const (
	RunStatusCompleted    = "completed"
	RunStatusFailed       = "failed"
	RunStatusPendingHuman = "pending_human_input"
)

// Metrics 执行指标端口，空实现可缺省。
type Metrics interface {
	ObserveNodeExecution(nodeType, status string, seconds float64)
	ObserveRun(status string, seconds float64)
}

// Agent 工作流执行引擎。单个 Agent 实例持有一个当前计划与其运行时
// 状态；运行期状态是单写者模型，不支持并发 ExecutePlan。
type Agent struct {
	evaluator *expr.Evaluator
	guard     *safety.Guard
	bus       event.Bus
	executors ExecutorSet
	logger    *zap.Logger
	tracer    trace.Tracer
	metrics   Metrics

	// RunTimeout 为零表示整次运行不设上限，只受节点级超时约束。
	runTimeout time.Duration

	plan  *plan.WorkflowPlan
	nodes map[string]*Node
	vars  map[string]any
	runID string
}

// NewAgent 创建执行引擎。bus 与 guard 可为 nil；guard 为 nil 时使用
// 默认安全策略。
func NewAgent(executors ExecutorSet, guard *safety.Guard, bus event.Bus, logger *zap.Logger) *Agent {
	if logger == nil {
		logger = zap.NewNop()
	}
	if guard == nil {
		guard = safety.NewGuard(logger)
	}
	return &Agent{
		evaluator: expr.New(),
		guard:     guard,
		bus:       bus,
		executors: executors,
		logger:    logger.With(zap.String("component", "workflow_agent")),
		tracer:    otel.Tracer("orchio/engine"),
	}
}

// SetRunTimeout 配置整次运行的时间上限，零值表示无上限。
func (a *Agent) SetRunTimeout(d time.Duration) { a.runTimeout = d }

// SetMetrics 挂接指标采集
func (a *Agent) SetMetrics(m Metrics) { a.metrics = m }

// Plan 返回当前计划
func (a *Agent) Plan() *plan.WorkflowPlan { return a.plan }

// SetPlan 绑定计划并重建运行时节点表
func (a *Agent) SetPlan(p *plan.WorkflowPlan) error {
	if p == nil {
		return fmt.Errorf("plan is nil")
	}
	nodes := make(map[string]*Node, len(p.Nodes))
	for _, def := range p.Nodes {
		node, err := NewNodeFromDefinition(def)
		if err != nil {
			return err
		}
		nodes[def.Name] = node
	}
	a.plan = p
	a.nodes = nodes
	a.vars = make(map[string]any)
	return nil
}

// Node 按名称返回运行时节点，计划未绑定或名称未知时为 nil。
func (a *Agent) Node(name string) *Node {
	return a.nodes[name]
}

// ExecutePlan 按拓扑顺序执行计划。vars 作为初始运行上下文。返回的结
// 果字典总是包含 status；失败的运行保留已完成节点的部分结果。
func (a *Agent) ExecutePlan(ctx context.Context, p *plan.WorkflowPlan, vars map[string]any) (map[string]any, error) {
	if err := a.SetPlan(p); err != nil {
		return nil, err
	}
	for key, value := range vars {
		a.vars[key] = value
	}
	a.runID = uuid.NewString()
	ctx = ctxkeys.WithRunID(ctx, a.runID)
	ctx = ctxkeys.WithPlanID(ctx, p.ID)

	if a.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.runTimeout)
		defer cancel()
	}

	started := time.Now()
	ctx, span := a.tracer.Start(ctx, "workflow.run",
		trace.WithAttributes(
			attribute.String("run.id", a.runID),
			attribute.String("plan.name", p.Name),
		),
	)
	defer span.End()

	result := map[string]any{
		"run_id":        a.runID,
		"nodes_created": len(a.nodes),
		"edges_created": len(p.Edges),
	}
	mapping := make(map[string]string, len(a.nodes))
	for name, node := range a.nodes {
		mapping[name] = node.ID
	}
	result["node_mapping"] = mapping

	order, err := p.GetExecutionOrder()
	if err != nil {
		result["status"] = RunStatusFailed
		result["error"] = err.Error()
		a.finishRun(ctx, p, RunStatusFailed, started)
		return result, nil
	}

	status := a.executeInOrder(ctx, order)

	nodeResults := make(map[string]any, len(a.nodes))
	for name, node := range a.nodes {
		entry := map[string]any{"status": string(node.Status)}
		if node.Result != nil {
			entry["result"] = node.Result
		}
		if node.Error != "" {
			entry["error"] = node.Error
		}
		nodeResults[name] = entry
	}
	result["status"] = status
	result["node_results"] = nodeResults
	result["context"] = a.vars

	a.finishRun(ctx, p, status, started)
	return result, nil
}

func (a *Agent) finishRun(ctx context.Context, p *plan.WorkflowPlan, status string, started time.Time) {
	elapsed := time.Since(started)
	if a.bus != nil {
		_ = a.bus.Publish(ctx, event.NewRunCompletedEvent(a.runID, p.Name, status, elapsed))
	}
	if a.metrics != nil {
		a.metrics.ObserveRun(status, elapsed.Seconds())
	}
	a.logger.Info("run finished",
		zap.String("run_id", a.runID),
		zap.String("plan", p.Name),
		zap.String("status", status),
		zap.Duration("duration", elapsed),
	)
}

// executeInOrder 顺序遍历拓扑序。条件分支未选中的边会阻断下游；一个
// 节点的所有入边都被阻断时该节点整体跳过。
func (a *Agent) executeInOrder(ctx context.Context, order []string) string {
	blocked := make(map[[2]string]bool)
	skipped := make(map[string]bool)
	done := make(map[string]bool)

	for _, name := range order {
		if done[name] {
			continue
		}
		node := a.nodes[name]

		if a.allInboundBlocked(name, blocked, skipped) {
			node.Status = StatusSkipped
			skipped[name] = true
			continue
		}

		switch node.Type {
		case RuntimeCondition:
			taken, err := a.runConditionNode(ctx, node)
			if err != nil {
				node.markFailed(err)
				a.publishNodeEvent(ctx, node, time.Duration(0))
				return RunStatusFailed
			}
			for _, edge := range a.plan.OutgoingEdges(name) {
				if !taken[edge.TargetNode] {
					blocked[[2]string{name, edge.TargetNode}] = true
				}
			}

		case RuntimeParallel:
			node.markRunning()
			branches := a.plan.OutgoingEdges(name)
			node.markSucceeded(map[string]any{"branches": len(branches)})
			a.vars[name] = node.Result
			if status, ok := a.runParallelBranches(ctx, name, branches, done); !ok {
				return status
			}

		default:
			status, result, err := a.runNode(ctx, node)
			switch status {
			case StatusSucceeded:
				a.vars[name] = result
			case StatusPendingHuman:
				return RunStatusPendingHuman
			case StatusFailed:
				if a.shouldAbort(name) {
					a.logger.Warn("node failed, aborting run",
						zap.String("node", name), zap.Error(err))
					return RunStatusFailed
				}
				a.logger.Warn("node failed, continuing per strategy",
					zap.String("node", name), zap.Error(err))
			}
		}
		done[name] = true
	}
	return RunStatusCompleted
}

// runParallelBranches 并行节点的直接后继并发执行，结果在汇合后合并，
// 保持聚合结果与顺序执行一致。仍有未完成前驱的后继不在这里启动，
// 留到它自己的拓扑位置执行，保证不越过依赖偏序。
func (a *Agent) runParallelBranches(ctx context.Context, parallel string, branches []plan.EdgeDefinition, done map[string]bool) (string, bool) {
	type branchResult struct {
		name   string
		status NodeStatus
		result map[string]any
		err    error
	}

	g, gctx := errgroup.WithContext(ctx)
	results := make([]branchResult, len(branches))
	for i, edge := range branches {
		i, target := i, edge.TargetNode
		node := a.nodes[target]
		if node == nil {
			continue
		}
		if !a.predecessorsDone(target, parallel, done) {
			continue
		}
		g.Go(func() error {
			status, result, err := a.runNode(gctx, node)
			results[i] = branchResult{name: target, status: status, result: result, err: err}
			return nil
		})
	}
	_ = g.Wait()

	for _, br := range results {
		if br.name == "" {
			continue
		}
		done[br.name] = true
		switch br.status {
		case StatusSucceeded:
			a.vars[br.name] = br.result
		case StatusPendingHuman:
			return RunStatusPendingHuman, false
		case StatusFailed:
			if a.shouldAbort(br.name) {
				return RunStatusFailed, false
			}
		}
	}
	return "", true
}

// predecessorsDone 目标的所有其它入边来源是否都已执行完
func (a *Agent) predecessorsDone(target, parallel string, done map[string]bool) bool {
	for _, edge := range a.plan.Edges {
		if edge.TargetNode != target || edge.SourceNode == parallel {
			continue
		}
		if !done[edge.SourceNode] {
			return false
		}
	}
	return true
}

// allInboundBlocked 有入边且全部入边被阻断时节点跳过
func (a *Agent) allInboundBlocked(name string, blocked map[[2]string]bool, skipped map[string]bool) bool {
	inbound := 0
	for _, edge := range a.plan.Edges {
		if edge.TargetNode != name {
			continue
		}
		inbound++
		if !blocked[[2]string{edge.SourceNode, name}] && !skipped[edge.SourceNode] {
			return false
		}
	}
	return inbound > 0
}

// shouldAbort 按有效错误策略决定失败节点是否终止运行
func (a *Agent) shouldAbort(nodeName string) bool {
	strategy := a.plan.GetEffectiveErrorStrategy(nodeName)
	if strategy == nil {
		return true
	}
	switch strategy.OnFailure {
	case plan.OnFailureSkip, plan.OnFailureFallback:
		return false
	}
	return true
}

// runConditionNode 求值条件并返回被选中的目标集合。表达式错误向上
// 传播，绝不默认为假。
func (a *Agent) runConditionNode(ctx context.Context, node *Node) (map[string]bool, error) {
	node.markRunning()
	started := time.Now()

	value, err := a.EvaluateConditionNode(node.Name)
	if err != nil {
		return nil, err
	}

	taken := make(map[string]bool)
	var branch string
	for _, edge := range a.plan.OutgoingEdges(node.Name) {
		ok, err := a.edgeTaken(edge.Condition, value)
		if err != nil {
			return nil, err
		}
		if ok {
			taken[edge.TargetNode] = true
			branch = edge.TargetNode
		}
	}

	expression, _ := node.Definition.Config["expression"].(string)
	node.markSucceeded(map[string]any{"result": value, "branch": branch})
	a.vars[node.Name] = node.Result

	if a.bus != nil {
		_ = a.bus.Publish(ctx, event.NewDecisionMadeEvent(a.runID, node.Name, expression, value, branch))
	}
	a.publishNodeEvent(ctx, node, time.Since(started))
	return taken, nil
}

// edgeTaken 判断条件边是否被选中：空条件恒选中，True/False 字面量对照
// 条件结果，其余作为表达式求值。
func (a *Agent) edgeTaken(condition string, condResult bool) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(condition)) {
	case "":
		return true, nil
	case "true":
		return condResult, nil
	case "false":
		return !condResult, nil
	}
	vars := a.snapshotVars()
	vars["result"] = condResult
	return a.evaluator.Evaluate(condition, vars)
}

// EvaluateConditionNode 对命名条件节点求值。*expr.EvaluationError 原样
// 传播。
func (a *Agent) EvaluateConditionNode(nodeName string) (bool, error) {
	if a.plan == nil {
		return false, fmt.Errorf("no plan is set")
	}
	def := a.plan.GetNode(nodeName)
	if def == nil {
		return false, fmt.Errorf("node %q does not exist", nodeName)
	}
	if def.Type != plan.NodeTypeCondition {
		return false, fmt.Errorf("node %q is not a condition node", nodeName)
	}
	expression, _ := def.Config["expression"].(string)
	return a.evaluator.Evaluate(expression, a.snapshotVars())
}

// ExecuteNode 执行单个命名节点。安全门拒绝产生的权限错误从这里直接
// 传播，不被吸收进运行结果。
func (a *Agent) ExecuteNode(ctx context.Context, nodeName string) (map[string]any, error) {
	node := a.nodes[nodeName]
	if node == nil {
		return nil, fmt.Errorf("node %q does not exist", nodeName)
	}
	status, result, err := a.runNode(ctx, node)
	if err != nil {
		return nil, err
	}
	if status == StatusSucceeded {
		a.vars[nodeName] = result
	}
	return result, nil
}

// runNode 执行一个非条件节点：安全门、按有效策略重试、节点级超时、
// 结果事件与指标。
func (a *Agent) runNode(ctx context.Context, node *Node) (NodeStatus, map[string]any, error) {
	def := node.Definition
	node.markRunning()
	started := time.Now()
	ctx = ctxkeys.WithNodeID(ctx, def.ID)

	ctx, span := a.tracer.Start(ctx, "node.execute",
		trace.WithAttributes(
			attribute.String("node.name", node.Name),
			attribute.String("node.type", string(node.Type)),
		),
	)
	defer span.End()

	// 安全门先行
	switch node.Type {
	case RuntimeFile:
		operation, _ := def.Config["operation"].(string)
		path, _ := def.Config["path"].(string)
		if check := a.guard.ValidateFileOperation(node.ID, operation, path, def.Config); !check.Valid {
			err := check.PermissionError(node.ID)
			node.markFailed(err)
			a.publishNodeEvent(ctx, node, time.Since(started))
			return StatusFailed, nil, err
		}
	case RuntimeHTTP:
		method, _ := def.Config["method"].(string)
		if check := a.guard.ValidateAPIRequest(node.ID, def.URL, method, nil, def.Config["body"]); !check.Valid {
			err := types.NewDomainError(types.ErrRunGate, strings.Join(check.Errors, "; ")).WithNode(node.ID)
			node.markFailed(err)
			a.publishNodeEvent(ctx, node, time.Since(started))
			return StatusFailed, nil, err
		}
	case RuntimeHuman:
		return a.runHumanNode(ctx, node, started)
	}

	strategy := a.plan.GetEffectiveErrorStrategy(node.Name)
	attempts := 1
	delay := time.Duration(0)
	backoff := 1.0
	if strategy != nil && strategy.OnFailure == plan.OnFailureRetry && strategy.Retry != nil {
		if strategy.Retry.MaxAttempts > 0 {
			attempts = strategy.Retry.MaxAttempts
		}
		delay = time.Duration(strategy.Retry.DelaySeconds * float64(time.Second))
		if strategy.Retry.Backoff > 0 {
			backoff = strategy.Retry.Backoff
		}
	}

	var result map[string]any
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		node.Attempts = attempt
		result, err = a.executeOnce(ctx, node)
		if err == nil {
			break
		}
		if de, ok := err.(*types.DomainError); ok && de.Level == types.LevelUserAction {
			// 需要用户介入的错误不消耗剩余尝试
			break
		}
		if attempt < attempts {
			a.logger.Debug("node attempt failed, retrying",
				zap.String("node", node.Name),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			if delay > 0 {
				if sleepErr := sleepContext(ctx, delay); sleepErr != nil {
					err = sleepErr
					break
				}
				delay = time.Duration(float64(delay) * backoff)
			}
		}
	}

	elapsed := time.Since(started)
	if err != nil {
		if strategy != nil && strategy.OnFailure == plan.OnFailureFallback && strategy.Fallback != "" {
			node.markSucceeded(map[string]any{"fallback": strategy.Fallback, "error": err.Error()})
			a.publishNodeEvent(ctx, node, elapsed)
			return StatusSucceeded, node.Result, nil
		}
		node.markFailed(err)
		a.publishNodeEvent(ctx, node, elapsed)
		return StatusFailed, nil, err
	}

	node.markSucceeded(result)
	a.publishNodeEvent(ctx, node, elapsed)
	return StatusSucceeded, result, nil
}

// runHumanNode 人工节点：校验提示词后发布介入事件并挂起,不阻塞等待。
func (a *Agent) runHumanNode(ctx context.Context, node *Node, started time.Time) (NodeStatus, map[string]any, error) {
	def := node.Definition
	prompt, _ := def.Config["prompt"].(string)
	expected := stringSlice(def.Config["expected_inputs"])

	if check := a.guard.ValidateHumanInteraction(node.ID, prompt, expected, def.Config); !check.Valid {
		err := types.NewDomainError(types.ErrRunGate, strings.Join(check.Errors, "; ")).WithNode(node.ID)
		node.markFailed(err)
		a.publishNodeEvent(ctx, node, time.Since(started))
		return StatusFailed, nil, err
	}

	node.Status = StatusPendingHuman
	node.Result = map[string]any{"prompt": prompt}
	if a.bus != nil {
		_ = a.bus.Publish(ctx, event.NewHumanInputRequestedEvent(a.runID, node.Name, prompt, expected, def.Config))
	}
	a.publishNodeEvent(ctx, node, time.Since(started))
	return StatusPendingHuman, node.Result, nil
}

// executeOnce 单次执行：应用节点级超时并按类型路由
func (a *Agent) executeOnce(ctx context.Context, node *Node) (map[string]any, error) {
	def := node.Definition
	if def.ResourceLimits != nil && def.ResourceLimits.TimeoutSeconds > 0 {
		timeout := time.Duration(def.ResourceLimits.TimeoutSeconds * float64(time.Second))
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	switch node.Type {
	case RuntimeLoop:
		return a.executeLoopNode(def)
	case RuntimeFile:
		return a.executeFileNode(def)
	case RuntimeGeneric:
		return a.ExecuteHierarchicalNode(ctx, def.ID)
	}

	executor, err := a.executors.forType(node.Type)
	if err != nil {
		return nil, err
	}
	result, err := executor.Execute(ctx, def, a.snapshotVars())
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, types.NewDomainError(types.ErrExecutionTimeout,
				fmt.Sprintf("node %s exceeded its time limit", node.Name)).
				WithNode(node.ID).WithCause(err)
		}
		return nil, err
	}
	return result, nil
}

// ExecuteHierarchicalNode 先执行全部子节点再聚合到父结果。容器子节点
// 经容器后端在声明的资源限制下执行。
func (a *Agent) ExecuteHierarchicalNode(ctx context.Context, parentID string) (map[string]any, error) {
	if a.plan == nil {
		return nil, fmt.Errorf("no plan is set")
	}
	parent := a.findDefinitionByID(parentID)
	if parent == nil {
		return nil, fmt.Errorf("node %q does not exist", parentID)
	}

	childResults := make(map[string]any, len(parent.Children))
	for _, child := range parent.Children {
		childNode, err := NewNodeFromDefinition(child)
		if err != nil {
			return nil, err
		}
		var result map[string]any
		if child.Type == plan.NodeTypeGeneric {
			result, err = a.ExecuteHierarchicalNode(ctx, child.ID)
		} else {
			_, result, err = a.runNode(ctx, childNode)
		}
		if err != nil {
			return nil, fmt.Errorf("child %s: %w", child.Name, err)
		}
		childResults[child.Name] = result
	}

	return map[string]any{
		"children_results": childResults,
		"children_count":   len(parent.Children),
	}, nil
}

// findDefinitionByID 在顶层节点与其子树中按ID查找
func (a *Agent) findDefinitionByID(id string) *plan.NodeDefinition {
	for _, def := range a.plan.Nodes {
		if def.ID == id {
			return def
		}
		if found := def.FindDescendant(id); found != nil {
			return found
		}
	}
	return nil
}

// UpdateEdgeCondition 修改在线计划中指定边的条件表达式
func (a *Agent) UpdateEdgeCondition(sourceNode, targetNode, expression string) error {
	if a.plan == nil {
		return fmt.Errorf("no plan is set")
	}
	for i, edge := range a.plan.Edges {
		if edge.SourceNode == sourceNode && edge.TargetNode == targetNode {
			a.plan.Edges[i].Condition = expression
			return nil
		}
	}
	return fmt.Errorf("no edge from %q to %q", sourceNode, targetNode)
}

// LoopConfigUpdate 循环配置的部分更新，nil 字段不变。
type LoopConfigUpdate struct {
	LoopType            *string
	CollectionField     *string
	TransformExpression *string
	FilterCondition     *string
}

// UpdateLoopConfig 对命名 LOOP 节点做部分更新
func (a *Agent) UpdateLoopConfig(nodeName string, update LoopConfigUpdate) error {
	if a.plan == nil {
		return fmt.Errorf("no plan is set")
	}
	def := a.plan.GetNode(nodeName)
	if def == nil {
		return fmt.Errorf("node %q does not exist", nodeName)
	}
	if def.Type != plan.NodeTypeLoop {
		return fmt.Errorf("node %q is not a loop node", nodeName)
	}
	if def.Config == nil {
		def.Config = make(map[string]any)
	}
	if update.LoopType != nil {
		def.Config["loop_type"] = *update.LoopType
	}
	if update.CollectionField != nil {
		def.Config["collection_field"] = *update.CollectionField
	}
	if update.TransformExpression != nil {
		def.Config["transform_expression"] = *update.TransformExpression
	}
	if update.FilterCondition != nil {
		def.Config["filter_condition"] = *update.FilterCondition
	}
	return nil
}

func (a *Agent) publishNodeEvent(ctx context.Context, node *Node, elapsed time.Duration) {
	if a.bus != nil {
		_ = a.bus.Publish(ctx, event.NewNodeExecutedEvent(
			a.runID, node.Name, string(node.Type), string(node.Status), node.Error, elapsed,
		))
	}
	if a.metrics != nil {
		a.metrics.ObserveNodeExecution(string(node.Type), string(node.Status), elapsed.Seconds())
	}
}

// snapshotVars 返回运行上下文的浅拷贝，保护单写者约束。
func (a *Agent) snapshotVars() map[string]any {
	snapshot := make(map[string]any, len(a.vars))
	for key, value := range a.vars {
		snapshot[key] = value
	}
	return snapshot
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func stringSlice(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
