package plan

import (
	"fmt"

	"github.com/google/uuid"
)

// NodeType 节点类型标签
type NodeType string

const (
	NodeTypePython      NodeType = "python"
	NodeTypeLLM         NodeType = "llm"
	NodeTypeHTTP        NodeType = "http"
	NodeTypeDatabase    NodeType = "database"
	NodeTypeGeneric     NodeType = "generic"
	NodeTypeCondition   NodeType = "condition"
	NodeTypeLoop        NodeType = "loop"
	NodeTypeParallel    NodeType = "parallel"
	NodeTypeContainer   NodeType = "container"
	NodeTypeFile        NodeType = "file"
	NodeTypeDataProcess NodeType = "data_process"
	NodeTypeHuman       NodeType = "human"
)

// allNodeTypes 用于解析与校验
var allNodeTypes = map[NodeType]bool{
	NodeTypePython:      true,
	NodeTypeLLM:         true,
	NodeTypeHTTP:        true,
	NodeTypeDatabase:    true,
	NodeTypeGeneric:     true,
	NodeTypeCondition:   true,
	NodeTypeLoop:        true,
	NodeTypeParallel:    true,
	NodeTypeContainer:   true,
	NodeTypeFile:        true,
	NodeTypeDataProcess: true,
	NodeTypeHuman:       true,
}

// ParseNodeType parses a type tag string. Unknown tags are an error;
// the planner layer decides fallback behavior for untrusted input.
func ParseNodeType(s string) (NodeType, error) {
	t := NodeType(s)
	if !allNodeTypes[t] {
		return "", fmt.Errorf("unknown node type %q", s)
	}
	return t, nil
}

// MaxNodeDefinitionDepth bounds the parent/child hierarchy. The root
// of a tree sits at depth 0.
const MaxNodeDefinitionDepth = 5

// OnFailure 节点失败后的处理动作
type OnFailure string

const (
	OnFailureRetry    OnFailure = "retry"
	OnFailureSkip     OnFailure = "skip"
	OnFailureAbort    OnFailure = "abort"
	OnFailureReplan   OnFailure = "replan"
	OnFailureFallback OnFailure = "fallback"
)

// ValidOnFailure reports whether the action is one of the allowed
// failure strategies.
func ValidOnFailure(a OnFailure) bool {
	switch a {
	case OnFailureRetry, OnFailureSkip, OnFailureAbort, OnFailureReplan, OnFailureFallback:
		return true
	}
	return false
}

// RetrySpec 重试配置
type RetrySpec struct {
	MaxAttempts  int     `json:"max_attempts" yaml:"max_attempts"`
	DelaySeconds float64 `json:"delay_seconds,omitempty" yaml:"delay_seconds,omitempty"`
	Backoff      float64 `json:"backoff,omitempty" yaml:"backoff,omitempty"`
}

// ErrorStrategy 错误处理策略。字段级合并：计划默认策略作为基底，
// 节点本地字段按键覆盖。
type ErrorStrategy struct {
	OnFailure OnFailure  `json:"on_failure,omitempty" yaml:"on_failure,omitempty"`
	Retry     *RetrySpec `json:"retry,omitempty" yaml:"retry,omitempty"`
	Fallback  string     `json:"fallback,omitempty" yaml:"fallback,omitempty"`
}

// Clone deep-copies the strategy.
func (s *ErrorStrategy) Clone() *ErrorStrategy {
	if s == nil {
		return nil
	}
	out := &ErrorStrategy{OnFailure: s.OnFailure, Fallback: s.Fallback}
	if s.Retry != nil {
		r := *s.Retry
		out.Retry = &r
	}
	return out
}

// ResourceLimits 节点资源限制
type ResourceLimits struct {
	CPU            float64 `json:"cpu,omitempty" yaml:"cpu,omitempty"`
	MemoryMB       int     `json:"memory_mb,omitempty" yaml:"memory_mb,omitempty"`
	TimeoutSeconds float64 `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty"`
	MaxConcurrency int     `json:"max_concurrency,omitempty" yaml:"max_concurrency,omitempty"`
}

// IsZero reports whether no limit is set.
func (r *ResourceLimits) IsZero() bool {
	return r == nil || (r.CPU == 0 && r.MemoryMB == 0 && r.TimeoutSeconds == 0 && r.MaxConcurrency == 0)
}

// Clone deep-copies the limits.
func (r *ResourceLimits) Clone() *ResourceLimits {
	if r == nil {
		return nil
	}
	out := *r
	return &out
}

// ContainerConfig 容器执行配置
type ContainerConfig struct {
	Image          string            `json:"image,omitempty" yaml:"image,omitempty"`
	TimeoutSeconds float64           `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty"`
	MemoryLimit    string            `json:"memory_limit,omitempty" yaml:"memory_limit,omitempty"`
	PipPackages    []string          `json:"pip_packages,omitempty" yaml:"pip_packages,omitempty"`
	Environment    map[string]string `json:"environment,omitempty" yaml:"environment,omitempty"`
}

// FileOperation 文件节点允许的操作
var validFileOperations = map[string]bool{
	"read":   true,
	"write":  true,
	"append": true,
	"delete": true,
	"list":   true,
}

// NodeDefinition 是工作流节点的声明式定义：类型标签、类型相关字段、
// 父子层级与执行策略。运行时节点由执行引擎另行创建。
type NodeDefinition struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Type        NodeType `json:"type"`
	Description string   `json:"description,omitempty"`

	// 类型相关字段
	Code   string         `json:"code,omitempty"`
	Prompt string         `json:"prompt,omitempty"`
	URL    string         `json:"url,omitempty"`
	Query  string         `json:"query,omitempty"`
	Config map[string]any `json:"config,omitempty"`

	// 层级关系。ParentID 是弱反向引用，Children 由父节点独占持有。
	ParentID  string            `json:"parent_id,omitempty"`
	Children  []*NodeDefinition `json:"children,omitempty"`
	Collapsed bool              `json:"collapsed"`

	// 执行策略
	ErrorStrategy     *ErrorStrategy  `json:"error_strategy,omitempty"`
	ResourceLimits    *ResourceLimits `json:"resource_limits,omitempty"`
	InheritedStrategy bool            `json:"inherited_strategy,omitempty"`

	// 容器配置
	IsContainer     bool             `json:"is_container,omitempty"`
	ContainerConfig *ContainerConfig `json:"container_config,omitempty"`

	depth int
}

// NewNodeDefinition creates a node with a generated ID. GENERIC nodes
// start collapsed.
func NewNodeDefinition(name string, nodeType NodeType) *NodeDefinition {
	return &NodeDefinition{
		ID:        uuid.NewString(),
		Name:      name,
		Type:      nodeType,
		Config:    make(map[string]any),
		Collapsed: nodeType == NodeTypeGeneric,
	}
}

// Depth returns the node's depth in its hierarchy (root = 0).
func (n *NodeDefinition) Depth() int {
	return n.depth
}

// configString 读取 config 中的字符串字段
func (n *NodeDefinition) configString(key string) string {
	if n.Config == nil {
		return ""
	}
	if s, ok := n.Config[key].(string); ok {
		return s
	}
	return ""
}

// Validate returns all validation errors found; an empty slice means
// the definition is valid. Expected shape problems are reported, never
// raised.
func (n *NodeDefinition) Validate() []string {
	var errs []string

	if n.Name == "" {
		errs = append(errs, "node name is required")
	}
	if !allNodeTypes[n.Type] {
		errs = append(errs, fmt.Sprintf("unknown node type %q", string(n.Type)))
		return errs
	}

	switch n.Type {
	case NodeTypePython, NodeTypeContainer:
		if n.Code == "" {
			errs = append(errs, fmt.Sprintf("%s node requires code", n.Type))
		}
	case NodeTypeLLM:
		if n.Prompt == "" {
			errs = append(errs, "llm node requires prompt")
		}
	case NodeTypeHTTP:
		if n.URL == "" {
			errs = append(errs, "http node requires url")
		}
	case NodeTypeDatabase:
		if n.Query == "" {
			errs = append(errs, "database node requires query")
		}
	case NodeTypeCondition:
		if n.configString("expression") == "" {
			errs = append(errs, "condition node requires config.expression")
		}
	case NodeTypeLoop:
		errs = append(errs, n.validateLoopConfig()...)
	case NodeTypeFile:
		op := n.configString("operation")
		if op == "" {
			errs = append(errs, "file node requires config.operation")
		} else if !validFileOperations[op] {
			errs = append(errs, fmt.Sprintf("file node has invalid operation %q", op))
		}
		if n.configString("path") == "" {
			errs = append(errs, "file node requires config.path")
		}
	case NodeTypeDataProcess:
		if n.configString("type") == "" {
			errs = append(errs, "data_process node requires config.type")
		}
	case NodeTypeHuman:
		if n.configString("prompt") == "" {
			errs = append(errs, "human node requires config.prompt")
		}
	}

	// 只有 GENERIC 节点可以拥有子节点
	if len(n.Children) > 0 {
		if n.Type != NodeTypeGeneric {
			errs = append(errs, fmt.Sprintf("%s node cannot have children, only generic nodes can", n.Type))
		} else {
			// 作为父节点的 GENERIC 必须定义错误策略与资源限制
			if n.ErrorStrategy == nil {
				errs = append(errs, "parent node requires error_strategy")
			}
			if n.ResourceLimits.IsZero() {
				errs = append(errs, "parent node requires non-empty resource_limits")
			}
		}
		for _, child := range n.Children {
			for _, childErr := range child.Validate() {
				errs = append(errs, fmt.Sprintf("child %s: %s", child.Name, childErr))
			}
		}
	}

	if n.ErrorStrategy != nil && n.ErrorStrategy.OnFailure != "" && !ValidOnFailure(n.ErrorStrategy.OnFailure) {
		errs = append(errs, fmt.Sprintf("invalid on_failure action %q", n.ErrorStrategy.OnFailure))
	}

	return errs
}

func (n *NodeDefinition) validateLoopConfig() []string {
	var errs []string
	if n.configString("collection_field") == "" {
		errs = append(errs, "loop node requires config.collection_field")
	}
	switch n.configString("loop_type") {
	case "map":
		if n.configString("transform_expression") == "" {
			errs = append(errs, "map loop requires config.transform_expression")
		}
	case "filter":
		if n.configString("filter_condition") == "" {
			errs = append(errs, "filter loop requires config.filter_condition")
		}
	}
	return errs
}

// AddChild attaches a child node. Only GENERIC nodes may own children,
// and the resulting depth must stay within MaxNodeDefinitionDepth.
func (n *NodeDefinition) AddChild(child *NodeDefinition) error {
	if n.Type != NodeTypeGeneric {
		return fmt.Errorf("cannot add child to %s node: only generic nodes can have children", n.Type)
	}
	// 挂接的是整棵子树，最深叶子不得越界
	if n.depth+1+child.height() > MaxNodeDefinitionDepth {
		return fmt.Errorf("max depth %d exceeded", MaxNodeDefinitionDepth)
	}
	child.ParentID = n.ID
	child.setDepth(n.depth + 1)
	n.Children = append(n.Children, child)
	return nil
}

// height 子树高度，叶子为 0
func (n *NodeDefinition) height() int {
	h := 0
	for _, child := range n.Children {
		if ch := child.height() + 1; ch > h {
			h = ch
		}
	}
	return h
}

// setDepth updates the node's depth and re-levels its subtree.
func (n *NodeDefinition) setDepth(depth int) {
	n.depth = depth
	for _, child := range n.Children {
		child.setDepth(depth + 1)
	}
}

// RemoveChild detaches the child with the given id, clearing its
// parent back-reference. Removing an unknown id is a no-op.
func (n *NodeDefinition) RemoveChild(childID string) {
	for i, child := range n.Children {
		if child.ID == childID {
			child.ParentID = ""
			child.setDepth(0)
			n.Children = append(n.Children[:i], n.Children[i+1:]...)
			return
		}
	}
}

// Expand marks the node as expanded in hierarchy views.
func (n *NodeDefinition) Expand() {
	n.Collapsed = false
}

// Collapse marks the node as collapsed in hierarchy views.
func (n *NodeDefinition) Collapse() {
	n.Collapsed = true
}

// PropagateStrategyToChildren copies the node's error strategy and
// resource limits into every descendant. Each descendant gets its own
// deep copy and is flagged inherited; a locally divergent strategy on
// a descendant is overwritten.
func (n *NodeDefinition) PropagateStrategyToChildren() {
	for _, child := range n.Children {
		if n.ErrorStrategy != nil {
			child.ErrorStrategy = n.ErrorStrategy.Clone()
			child.InheritedStrategy = true
		}
		if !n.ResourceLimits.IsZero() {
			child.ResourceLimits = n.ResourceLimits.Clone()
			child.InheritedStrategy = true
		}
		child.PropagateStrategyToChildren()
	}
}

// FindDescendant looks up a node by id anywhere in the subtree,
// including the receiver itself.
func (n *NodeDefinition) FindDescendant(id string) *NodeDefinition {
	if n.ID == id {
		return n
	}
	for _, child := range n.Children {
		if found := child.FindDescendant(id); found != nil {
			return found
		}
	}
	return nil
}
