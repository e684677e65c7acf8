package plan

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ToMap serializes the node definition, including its children
// subtree, hierarchy metadata, and policy fields, into a plain map.
func (n *NodeDefinition) ToMap() map[string]any {
	m := map[string]any{
		"id":        n.ID,
		"name":      n.Name,
		"type":      string(n.Type),
		"collapsed": n.Collapsed,
		"depth":     n.depth,
	}
	if n.Description != "" {
		m["description"] = n.Description
	}
	if n.Code != "" {
		m["code"] = n.Code
	}
	if n.Prompt != "" {
		m["prompt"] = n.Prompt
	}
	if n.URL != "" {
		m["url"] = n.URL
	}
	if n.Query != "" {
		m["query"] = n.Query
	}
	if len(n.Config) > 0 {
		cfg := make(map[string]any, len(n.Config))
		for k, v := range n.Config {
			cfg[k] = v
		}
		m["config"] = cfg
	}
	if n.ParentID != "" {
		m["parent_id"] = n.ParentID
	}
	if len(n.Children) > 0 {
		children := make([]map[string]any, len(n.Children))
		for i, child := range n.Children {
			children[i] = child.ToMap()
		}
		m["children"] = children
	}
	if n.ErrorStrategy != nil {
		m["error_strategy"] = strategyToMap(n.ErrorStrategy)
	}
	if !n.ResourceLimits.IsZero() {
		m["resource_limits"] = limitsToMap(n.ResourceLimits)
	}
	if n.InheritedStrategy {
		m["inherited_strategy"] = true
	}
	if n.IsContainer {
		m["is_container"] = true
	}
	if n.ContainerConfig != nil {
		m["container_config"] = containerToMap(n.ContainerConfig)
	}
	return m
}

// NodeFromMap rebuilds a node definition, children included, from its
// map form. The inverse of ToMap.
func NodeFromMap(m map[string]any) (*NodeDefinition, error) {
	typeStr, _ := m["type"].(string)
	nodeType, err := ParseNodeType(typeStr)
	if err != nil {
		return nil, err
	}

	n := &NodeDefinition{
		ID:     asString(m["id"]),
		Name:   asString(m["name"]),
		Type:   nodeType,
		Config: make(map[string]any),
	}
	n.Description = asString(m["description"])
	n.Code = asString(m["code"])
	n.Prompt = asString(m["prompt"])
	n.URL = asString(m["url"])
	n.Query = asString(m["query"])
	n.ParentID = asString(m["parent_id"])
	if collapsed, ok := m["collapsed"].(bool); ok {
		n.Collapsed = collapsed
	}
	if depth, ok := asInt(m["depth"]); ok {
		n.depth = depth
	}
	if cfg, ok := m["config"].(map[string]any); ok {
		for k, v := range cfg {
			n.Config[k] = v
		}
	}
	if inherited, ok := m["inherited_strategy"].(bool); ok {
		n.InheritedStrategy = inherited
	}
	if isContainer, ok := m["is_container"].(bool); ok {
		n.IsContainer = isContainer
	}
	if es, ok := m["error_strategy"].(map[string]any); ok {
		n.ErrorStrategy = strategyFromMap(es)
	}
	if rl, ok := m["resource_limits"].(map[string]any); ok {
		n.ResourceLimits = limitsFromMap(rl)
	}
	if cc, ok := m["container_config"].(map[string]any); ok {
		n.ContainerConfig = containerFromMap(cc)
	}

	if rawChildren, ok := m["children"].([]any); ok {
		for _, raw := range rawChildren {
			childMap, ok := raw.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("node %s: child is not a map", n.Name)
			}
			child, err := NodeFromMap(childMap)
			if err != nil {
				return nil, fmt.Errorf("node %s: %w", n.Name, err)
			}
			n.Children = append(n.Children, child)
		}
	} else if rawChildren, ok := m["children"].([]map[string]any); ok {
		for _, childMap := range rawChildren {
			child, err := NodeFromMap(childMap)
			if err != nil {
				return nil, fmt.Errorf("node %s: %w", n.Name, err)
			}
			n.Children = append(n.Children, child)
		}
	}
	// Re-level the subtree so depths stay consistent regardless of
	// what the serialized form carried.
	n.setDepth(n.depth)
	return n, nil
}

// ToMap serializes the plan with stable keys: id, name, description,
// goal, nodes, edges, default_error_strategy. This is the persisted
// JSON shape the repository layer stores as an opaque blob.
func (p *WorkflowPlan) ToMap() map[string]any {
	nodes := make([]map[string]any, len(p.Nodes))
	for i, n := range p.Nodes {
		nodes[i] = n.ToMap()
	}
	edges := make([]map[string]any, len(p.Edges))
	for i, e := range p.Edges {
		edge := map[string]any{
			"source_node": e.SourceNode,
			"target_node": e.TargetNode,
		}
		if e.Condition != "" {
			edge["condition"] = e.Condition
		}
		edges[i] = edge
	}

	m := map[string]any{
		"id":          p.ID,
		"name":        p.Name,
		"description": p.Description,
		"goal":        p.Goal,
		"nodes":       nodes,
		"edges":       edges,
	}
	if p.DefaultErrorStrategy != nil {
		m["default_error_strategy"] = strategyToMap(p.DefaultErrorStrategy)
	}
	if len(p.Metadata) > 0 {
		m["metadata"] = p.Metadata
	}
	return m
}

// FromMap rebuilds a plan from its map form. The inverse of ToMap.
func FromMap(m map[string]any) (*WorkflowPlan, error) {
	p := &WorkflowPlan{
		ID:          asString(m["id"]),
		Name:        asString(m["name"]),
		Goal:        asString(m["goal"]),
		Description: asString(m["description"]),
	}

	switch rawNodes := m["nodes"].(type) {
	case []any:
		for _, raw := range rawNodes {
			nodeMap, ok := raw.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("plan %s: node entry is not a map", p.Name)
			}
			node, err := NodeFromMap(nodeMap)
			if err != nil {
				return nil, fmt.Errorf("plan %s: %w", p.Name, err)
			}
			p.Nodes = append(p.Nodes, node)
		}
	case []map[string]any:
		for _, nodeMap := range rawNodes {
			node, err := NodeFromMap(nodeMap)
			if err != nil {
				return nil, fmt.Errorf("plan %s: %w", p.Name, err)
			}
			p.Nodes = append(p.Nodes, node)
		}
	}

	switch rawEdges := m["edges"].(type) {
	case []any:
		for _, raw := range rawEdges {
			edgeMap, ok := raw.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("plan %s: edge entry is not a map", p.Name)
			}
			p.Edges = append(p.Edges, edgeFromMap(edgeMap))
		}
	case []map[string]any:
		for _, edgeMap := range rawEdges {
			p.Edges = append(p.Edges, edgeFromMap(edgeMap))
		}
	}

	if des, ok := m["default_error_strategy"].(map[string]any); ok {
		p.DefaultErrorStrategy = strategyFromMap(des)
	}
	if meta, ok := m["metadata"].(map[string]any); ok {
		p.Metadata = meta
	}
	return p, nil
}

func edgeFromMap(m map[string]any) EdgeDefinition {
	return EdgeDefinition{
		SourceNode: asString(m["source_node"]),
		TargetNode: asString(m["target_node"]),
		Condition:  asString(m["condition"]),
	}
}

// ToJSON serializes the plan to indented JSON.
func (p *WorkflowPlan) ToJSON() (string, error) {
	data, err := json.MarshalIndent(p.ToMap(), "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal plan to JSON: %w", err)
	}
	return string(data), nil
}

// PlanFromJSON deserializes a plan from JSON.
func PlanFromJSON(data []byte) (*WorkflowPlan, error) {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal plan JSON: %w", err)
	}
	return FromMap(m)
}

// ToYAML serializes the plan to YAML.
func (p *WorkflowPlan) ToYAML() (string, error) {
	data, err := yaml.Marshal(p.ToMap())
	if err != nil {
		return "", fmt.Errorf("marshal plan to YAML: %w", err)
	}
	return string(data), nil
}

// PlanFromYAML deserializes a plan from YAML.
func PlanFromYAML(data []byte) (*WorkflowPlan, error) {
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal plan YAML: %w", err)
	}
	return FromMap(normalizeYAMLMap(m))
}

// LoadFromFile loads a plan from a JSON or YAML file. Content starting
// with a JSON object or array parses as JSON, anything else as YAML.
func LoadFromFile(filename string) (*WorkflowPlan, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read plan file: %w", err)
	}
	if len(data) > 0 && (data[0] == '{' || data[0] == '[') {
		return PlanFromJSON(data)
	}
	return PlanFromYAML(data)
}

// --- map field helpers ---

func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func strategyToMap(s *ErrorStrategy) map[string]any {
	m := map[string]any{}
	if s.OnFailure != "" {
		m["on_failure"] = string(s.OnFailure)
	}
	if s.Fallback != "" {
		m["fallback"] = s.Fallback
	}
	if s.Retry != nil {
		retry := map[string]any{"max_attempts": s.Retry.MaxAttempts}
		if s.Retry.DelaySeconds != 0 {
			retry["delay_seconds"] = s.Retry.DelaySeconds
		}
		if s.Retry.Backoff != 0 {
			retry["backoff"] = s.Retry.Backoff
		}
		m["retry"] = retry
	}
	return m
}

func strategyFromMap(m map[string]any) *ErrorStrategy {
	s := &ErrorStrategy{
		OnFailure: OnFailure(asString(m["on_failure"])),
		Fallback:  asString(m["fallback"]),
	}
	if retry, ok := m["retry"].(map[string]any); ok {
		spec := &RetrySpec{}
		if attempts, ok := asInt(retry["max_attempts"]); ok {
			spec.MaxAttempts = attempts
		}
		if delay, ok := asFloat(retry["delay_seconds"]); ok {
			spec.DelaySeconds = delay
		}
		if backoff, ok := asFloat(retry["backoff"]); ok {
			spec.Backoff = backoff
		}
		s.Retry = spec
	}
	return s
}

func limitsToMap(r *ResourceLimits) map[string]any {
	m := map[string]any{}
	if r.CPU != 0 {
		m["cpu"] = r.CPU
	}
	if r.MemoryMB != 0 {
		m["memory_mb"] = r.MemoryMB
	}
	if r.TimeoutSeconds != 0 {
		m["timeout_seconds"] = r.TimeoutSeconds
	}
	if r.MaxConcurrency != 0 {
		m["max_concurrency"] = r.MaxConcurrency
	}
	return m
}

func limitsFromMap(m map[string]any) *ResourceLimits {
	r := &ResourceLimits{}
	if cpu, ok := asFloat(m["cpu"]); ok {
		r.CPU = cpu
	}
	if mem, ok := asInt(m["memory_mb"]); ok {
		r.MemoryMB = mem
	}
	if timeout, ok := asFloat(m["timeout_seconds"]); ok {
		r.TimeoutSeconds = timeout
	}
	if conc, ok := asInt(m["max_concurrency"]); ok {
		r.MaxConcurrency = conc
	}
	return r
}

func containerToMap(c *ContainerConfig) map[string]any {
	m := map[string]any{}
	if c.Image != "" {
		m["image"] = c.Image
	}
	if c.TimeoutSeconds != 0 {
		m["timeout_seconds"] = c.TimeoutSeconds
	}
	if c.MemoryLimit != "" {
		m["memory_limit"] = c.MemoryLimit
	}
	if len(c.PipPackages) > 0 {
		m["pip_packages"] = append([]string(nil), c.PipPackages...)
	}
	if len(c.Environment) > 0 {
		env := make(map[string]string, len(c.Environment))
		for k, v := range c.Environment {
			env[k] = v
		}
		m["environment"] = env
	}
	return m
}

func containerFromMap(m map[string]any) *ContainerConfig {
	c := &ContainerConfig{
		Image:       asString(m["image"]),
		MemoryLimit: asString(m["memory_limit"]),
	}
	if timeout, ok := asFloat(m["timeout_seconds"]); ok {
		c.TimeoutSeconds = timeout
	}
	switch pkgs := m["pip_packages"].(type) {
	case []string:
		c.PipPackages = append([]string(nil), pkgs...)
	case []any:
		for _, p := range pkgs {
			c.PipPackages = append(c.PipPackages, asString(p))
		}
	}
	switch env := m["environment"].(type) {
	case map[string]string:
		c.Environment = make(map[string]string, len(env))
		for k, v := range env {
			c.Environment[k] = v
		}
	case map[string]any:
		c.Environment = make(map[string]string, len(env))
		for k, v := range env {
			c.Environment[k] = asString(v)
		}
	}
	return c
}

// normalizeYAMLMap converts nested map[any]any values produced by
// YAML decoding into map[string]any so FromMap sees one shape.
func normalizeYAMLMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = normalizeYAMLValue(v)
	}
	return out
}

func normalizeYAMLValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return normalizeYAMLMap(val)
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[fmt.Sprintf("%v", k)] = normalizeYAMLValue(inner)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalizeYAMLValue(item)
		}
		return out
	default:
		return v
	}
}
