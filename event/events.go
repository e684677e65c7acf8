package event

import "time"

// baseEvent 提供时间戳与类型字段的公共实现
type baseEvent struct {
	eventType Type
	timestamp time.Time
}

func (e baseEvent) Timestamp() time.Time { return e.timestamp }
func (e baseEvent) Type() Type           { return e.eventType }

func newBase(t Type) baseEvent {
	return baseEvent{eventType: t, timestamp: time.Now()}
}

// DecisionMadeEvent 决策事件：条件节点选择了一条分支
type DecisionMadeEvent struct {
	baseEvent
	RunID      string `json:"run_id"`
	NodeName   string `json:"node_name"`
	Expression string `json:"expression"`
	Result     bool   `json:"result"`
	Branch     string `json:"branch"`
}

// NewDecisionMadeEvent creates a decision event for a condition node.
func NewDecisionMadeEvent(runID, nodeName, expression string, result bool, branch string) *DecisionMadeEvent {
	return &DecisionMadeEvent{
		baseEvent:  newBase(TypeDecisionMade),
		RunID:      runID,
		NodeName:   nodeName,
		Expression: expression,
		Result:     result,
		Branch:     branch,
	}
}

// HumanInputRequestedEvent 人工介入事件：HUMAN 节点等待输入
type HumanInputRequestedEvent struct {
	baseEvent
	RunID          string         `json:"run_id"`
	NodeName       string         `json:"node_name"`
	Prompt         string         `json:"prompt"`
	ExpectedInputs []string       `json:"expected_inputs,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// NewHumanInputRequestedEvent creates a human-input request event.
func NewHumanInputRequestedEvent(runID, nodeName, prompt string, expectedInputs []string, metadata map[string]any) *HumanInputRequestedEvent {
	return &HumanInputRequestedEvent{
		baseEvent:      newBase(TypeHumanInputRequested),
		RunID:          runID,
		NodeName:       nodeName,
		Prompt:         prompt,
		ExpectedInputs: expectedInputs,
		Metadata:       metadata,
	}
}

// NodeExecutedEvent 节点执行结果事件
type NodeExecutedEvent struct {
	baseEvent
	RunID    string        `json:"run_id"`
	NodeName string        `json:"node_name"`
	NodeType string        `json:"node_type"`
	Status   string        `json:"status"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// NewNodeExecutedEvent creates a node execution result event.
func NewNodeExecutedEvent(runID, nodeName, nodeType, status, errMsg string, duration time.Duration) *NodeExecutedEvent {
	return &NodeExecutedEvent{
		baseEvent: newBase(TypeNodeExecuted),
		RunID:     runID,
		NodeName:  nodeName,
		NodeType:  nodeType,
		Status:    status,
		Error:     errMsg,
		Duration:  duration,
	}
}

// RunCompletedEvent 运行完成事件
type RunCompletedEvent struct {
	baseEvent
	RunID    string        `json:"run_id"`
	PlanName string        `json:"plan_name"`
	Status   string        `json:"status"`
	Duration time.Duration `json:"duration"`
}

// NewRunCompletedEvent creates a run completion event.
func NewRunCompletedEvent(runID, planName, status string, duration time.Duration) *RunCompletedEvent {
	return &RunCompletedEvent{
		baseEvent: newBase(TypeRunCompleted),
		RunID:     runID,
		PlanName:  planName,
		Status:    status,
		Duration:  duration,
	}
}
