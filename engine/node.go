package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/orchio-ai/orchio/plan"
)

// NodeType 运行时节点类型。与计划层的类型标签分离：执行器按运行时
// 类型路由，DATA_PROCESS 在运行时归入 TRANSFORM。
type NodeType string

const (
	RuntimePython    NodeType = "PYTHON"
	RuntimeLLM       NodeType = "LLM"
	RuntimeHTTP      NodeType = "HTTP"
	RuntimeDatabase  NodeType = "DATABASE"
	RuntimeGeneric   NodeType = "GENERIC"
	RuntimeCondition NodeType = "CONDITION"
	RuntimeLoop      NodeType = "LOOP"
	RuntimeParallel  NodeType = "PARALLEL"
	RuntimeContainer NodeType = "CONTAINER"
	RuntimeFile      NodeType = "FILE"
	RuntimeTransform NodeType = "TRANSFORM"
	RuntimeHuman     NodeType = "HUMAN"
)

// NodeStatus 运行时节点状态
type NodeStatus string

const (
	StatusPending      NodeStatus = "pending"
	StatusRunning      NodeStatus = "running"
	StatusSucceeded    NodeStatus = "succeeded"
	StatusFailed       NodeStatus = "failed"
	StatusSkipped      NodeStatus = "skipped"
	StatusPendingHuman NodeStatus = "pending_human_input"
)

// Node 运行时节点：计划定义的执行侧影子，携带状态与结果。
type Node struct {
	ID         string
	Name       string
	Type       NodeType
	Definition *plan.NodeDefinition

	ParentID  string
	Children  []string
	Collapsed bool

	Status     NodeStatus
	Result     map[string]any
	Error      string
	Attempts   int
	StartedAt  time.Time
	FinishedAt time.Time
}

// RuntimeTypeOf 将计划层类型映射为运行时类型。映射表是封闭的：新增
// 计划类型必须同时扩展这里，不存在缺省分支。
func RuntimeTypeOf(t plan.NodeType) (NodeType, error) {
	switch t {
	case plan.NodeTypePython:
		return RuntimePython, nil
	case plan.NodeTypeLLM:
		return RuntimeLLM, nil
	case plan.NodeTypeHTTP:
		return RuntimeHTTP, nil
	case plan.NodeTypeDatabase:
		return RuntimeDatabase, nil
	case plan.NodeTypeGeneric:
		return RuntimeGeneric, nil
	case plan.NodeTypeCondition:
		return RuntimeCondition, nil
	case plan.NodeTypeLoop:
		return RuntimeLoop, nil
	case plan.NodeTypeParallel:
		return RuntimeParallel, nil
	case plan.NodeTypeContainer:
		return RuntimeContainer, nil
	case plan.NodeTypeFile:
		return RuntimeFile, nil
	case plan.NodeTypeDataProcess:
		return RuntimeTransform, nil
	case plan.NodeTypeHuman:
		return RuntimeHuman, nil
	}
	return "", fmt.Errorf("no runtime type for plan node type %q", t)
}

// NewNodeFromDefinition 从计划定义创建运行时节点，保留层级关系。
func NewNodeFromDefinition(def *plan.NodeDefinition) (*Node, error) {
	if def == nil {
		return nil, fmt.Errorf("node definition is nil")
	}
	runtimeType, err := RuntimeTypeOf(def.Type)
	if err != nil {
		return nil, fmt.Errorf("node %s: %w", def.Name, err)
	}
	node := &Node{
		ID:         uuid.NewString(),
		Name:       def.Name,
		Type:       runtimeType,
		Definition: def,
		ParentID:   def.ParentID,
		Collapsed:  def.Collapsed,
		Status:     StatusPending,
	}
	for _, child := range def.Children {
		node.Children = append(node.Children, child.ID)
	}
	return node, nil
}

// markRunning / markSucceeded / markFailed 统一维护时间戳
func (n *Node) markRunning() {
	n.Status = StatusRunning
	n.StartedAt = time.Now()
}

func (n *Node) markSucceeded(result map[string]any) {
	n.Status = StatusSucceeded
	n.Result = result
	n.FinishedAt = time.Now()
}

func (n *Node) markFailed(err error) {
	n.Status = StatusFailed
	n.Error = err.Error()
	n.FinishedAt = time.Now()
}
