package plan

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/orchio-ai/orchio/graph"
)

// EdgeDefinition 有向依赖：source -> target，可附带条件表达式。
// 边没有独立身份，生命周期随所属 WorkflowPlan。
type EdgeDefinition struct {
	SourceNode string `json:"source_node"`
	TargetNode string `json:"target_node"`
	Condition  string `json:"condition,omitempty"`
}

// WorkflowPlan 是聚合根：一个命名的节点/边图，携带目标描述与默认错误
// 策略。节点名在计划内必须唯一，所有按名查找都依赖这一点。
type WorkflowPlan struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Goal        string            `json:"goal,omitempty"`
	Description string            `json:"description,omitempty"`
	Nodes       []*NodeDefinition `json:"nodes"`
	Edges       []EdgeDefinition  `json:"edges"`

	DefaultErrorStrategy *ErrorStrategy `json:"default_error_strategy,omitempty"`

	Metadata map[string]any `json:"metadata,omitempty"`
}

// NewWorkflowPlan creates an empty plan with a generated ID.
func NewWorkflowPlan(name, goal string) *WorkflowPlan {
	return &WorkflowPlan{
		ID:   uuid.NewString(),
		Name: name,
		Goal: goal,
	}
}

// AddNode appends a node. Returns an error when the name is already
// taken; name-keyed lookups require uniqueness.
func (p *WorkflowPlan) AddNode(node *NodeDefinition) error {
	if node == nil {
		return fmt.Errorf("node is nil")
	}
	if p.GetNode(node.Name) != nil {
		return fmt.Errorf("node name %q already exists in plan", node.Name)
	}
	p.Nodes = append(p.Nodes, node)
	return nil
}

// AddEdge appends a directed edge between two node names.
func (p *WorkflowPlan) AddEdge(source, target, condition string) {
	p.Edges = append(p.Edges, EdgeDefinition{
		SourceNode: source,
		TargetNode: target,
		Condition:  condition,
	})
}

// GetNode looks a node up by name; nil when absent.
func (p *WorkflowPlan) GetNode(name string) *NodeDefinition {
	for _, n := range p.Nodes {
		if n.Name == name {
			return n
		}
	}
	return nil
}

// nodeNames returns the top-level node names in insertion order.
func (p *WorkflowPlan) nodeNames() []string {
	names := make([]string, len(p.Nodes))
	for i, n := range p.Nodes {
		names[i] = n.Name
	}
	return names
}

// graphEdges converts edge definitions to graph edges.
func (p *WorkflowPlan) graphEdges() []graph.Edge {
	edges := make([]graph.Edge, len(p.Edges))
	for i, e := range p.Edges {
		edges[i] = graph.Edge{From: e.SourceNode, To: e.TargetNode}
	}
	return edges
}

// Validate aggregates every problem found in one pass: each node's own
// validation (prefixed with the node name), duplicate node names, edge
// endpoint existence, cyclic structure, and the default error strategy.
// A cyclic graph is reported here; construction itself is not blocked.
func (p *WorkflowPlan) Validate() []string {
	var errs []string

	seen := make(map[string]bool, len(p.Nodes))
	for _, n := range p.Nodes {
		if seen[n.Name] {
			errs = append(errs, fmt.Sprintf("duplicate node name %q", n.Name))
		}
		seen[n.Name] = true
		for _, nodeErr := range n.Validate() {
			errs = append(errs, fmt.Sprintf("node %s: %s", n.Name, nodeErr))
		}
	}

	for _, e := range p.Edges {
		if !seen[e.SourceNode] {
			errs = append(errs, fmt.Sprintf("edge references unknown source node %q", e.SourceNode))
		}
		if !seen[e.TargetNode] {
			errs = append(errs, fmt.Sprintf("edge references unknown target node %q", e.TargetNode))
		}
	}

	if cycle := graph.FindCycle(p.nodeNames(), p.graphEdges()); cycle != nil {
		errs = append(errs, fmt.Sprintf("plan contains a circular dependency: %s", cycle))
	}

	if p.DefaultErrorStrategy != nil {
		errs = append(errs, validateStrategy(p.DefaultErrorStrategy, "default_error_strategy")...)
	}

	return errs
}

// validateStrategy checks an error strategy's action and retry bounds.
// max_attempts outside [1, 10] is rejected: retries beyond ten are a
// configuration mistake, not resilience.
func validateStrategy(s *ErrorStrategy, prefix string) []string {
	var errs []string
	if s.OnFailure != "" && !ValidOnFailure(s.OnFailure) {
		errs = append(errs, fmt.Sprintf("%s: invalid on_failure action %q", prefix, s.OnFailure))
	}
	if s.Retry != nil {
		if s.Retry.MaxAttempts < 1 || s.Retry.MaxAttempts > 10 {
			errs = append(errs, fmt.Sprintf("%s: retry.max_attempts must be between 1 and 10, got %d", prefix, s.Retry.MaxAttempts))
		}
	}
	return errs
}

// HasCircularDependency reports whether the node-name graph built from
// the edges contains a cycle.
func (p *WorkflowPlan) HasCircularDependency() bool {
	return graph.FindCycle(p.nodeNames(), p.graphEdges()) != nil
}

// GetExecutionOrder computes the topological execution order with
// Kahn's algorithm. Ties between independent nodes resolve to node
// insertion order. Returns an error when the plan is cyclic.
func (p *WorkflowPlan) GetExecutionOrder() ([]string, error) {
	order, err := graph.TopoSort(p.nodeNames(), p.graphEdges())
	if err != nil {
		return nil, fmt.Errorf("plan %q: %w", p.Name, err)
	}
	return order, nil
}

// GetRootNodes returns the node names with no incoming edges.
func (p *WorkflowPlan) GetRootNodes() []string {
	return graph.Roots(p.nodeNames(), p.graphEdges())
}

// GetLeafNodes returns the node names with no outgoing edges.
func (p *WorkflowPlan) GetLeafNodes() []string {
	return graph.Leaves(p.nodeNames(), p.graphEdges())
}

// OutgoingEdges returns the edges leaving the named node, in
// declaration order.
func (p *WorkflowPlan) OutgoingEdges(nodeName string) []EdgeDefinition {
	var out []EdgeDefinition
	for _, e := range p.Edges {
		if e.SourceNode == nodeName {
			out = append(out, e)
		}
	}
	return out
}

// GetEffectiveErrorStrategy resolves the strategy for a node by
// deep-merging the plan default (base) with the node's local strategy
// (per-field override). Nil when neither defines anything. The nested
// retry spec merges field-by-field too, so max_attempts can come from
// the default while on_failure comes from the node.
func (p *WorkflowPlan) GetEffectiveErrorStrategy(nodeName string) *ErrorStrategy {
	node := p.GetNode(nodeName)
	if node == nil {
		return nil
	}
	local := node.ErrorStrategy
	base := p.DefaultErrorStrategy

	if local == nil && base == nil {
		return nil
	}
	if base == nil {
		return local.Clone()
	}
	if local == nil {
		return base.Clone()
	}

	merged := base.Clone()
	if local.OnFailure != "" {
		merged.OnFailure = local.OnFailure
	}
	if local.Fallback != "" {
		merged.Fallback = local.Fallback
	}
	if local.Retry != nil {
		if merged.Retry == nil {
			merged.Retry = &RetrySpec{}
		}
		if local.Retry.MaxAttempts != 0 {
			merged.Retry.MaxAttempts = local.Retry.MaxAttempts
		}
		if local.Retry.DelaySeconds != 0 {
			merged.Retry.DelaySeconds = local.Retry.DelaySeconds
		}
		if local.Retry.Backoff != 0 {
			merged.Retry.Backoff = local.Retry.Backoff
		}
	}
	return merged
}
