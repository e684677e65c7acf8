package plan

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeDefinition_ValidateTypeFields(t *testing.T) {
	tests := []struct {
		name    string
		build   func() *NodeDefinition
		wantErr string
	}{
		{
			name: "python without code",
			build: func() *NodeDefinition {
				return NewNodeDefinition("calc", NodeTypePython)
			},
			wantErr: "requires code",
		},
		{
			name: "llm without prompt",
			build: func() *NodeDefinition {
				return NewNodeDefinition("analyze", NodeTypeLLM)
			},
			wantErr: "requires prompt",
		},
		{
			name: "http without url",
			build: func() *NodeDefinition {
				return NewNodeDefinition("fetch", NodeTypeHTTP)
			},
			wantErr: "requires url",
		},
		{
			name: "database without query",
			build: func() *NodeDefinition {
				return NewNodeDefinition("load", NodeTypeDatabase)
			},
			wantErr: "requires query",
		},
		{
			name: "condition without expression",
			build: func() *NodeDefinition {
				return NewNodeDefinition("check", NodeTypeCondition)
			},
			wantErr: "requires config.expression",
		},
		{
			name: "loop without collection field",
			build: func() *NodeDefinition {
				return NewNodeDefinition("iterate", NodeTypeLoop)
			},
			wantErr: "requires config.collection_field",
		},
		{
			name: "map loop without transform",
			build: func() *NodeDefinition {
				n := NewNodeDefinition("transform", NodeTypeLoop)
				n.Config["collection_field"] = "items"
				n.Config["loop_type"] = "map"
				return n
			},
			wantErr: "requires config.transform_expression",
		},
		{
			name: "filter loop without condition",
			build: func() *NodeDefinition {
				n := NewNodeDefinition("select", NodeTypeLoop)
				n.Config["collection_field"] = "items"
				n.Config["loop_type"] = "filter"
				return n
			},
			wantErr: "requires config.filter_condition",
		},
		{
			name: "file without operation",
			build: func() *NodeDefinition {
				n := NewNodeDefinition("save", NodeTypeFile)
				n.Config["path"] = "/tmp/out.txt"
				return n
			},
			wantErr: "requires config.operation",
		},
		{
			name: "file with bad operation",
			build: func() *NodeDefinition {
				n := NewNodeDefinition("save", NodeTypeFile)
				n.Config["operation"] = "truncate"
				n.Config["path"] = "/tmp/out.txt"
				return n
			},
			wantErr: "invalid operation",
		},
		{
			name: "data_process without type",
			build: func() *NodeDefinition {
				return NewNodeDefinition("clean", NodeTypeDataProcess)
			},
			wantErr: "requires config.type",
		},
		{
			name: "human without prompt",
			build: func() *NodeDefinition {
				return NewNodeDefinition("review", NodeTypeHuman)
			},
			wantErr: "requires config.prompt",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := tt.build().Validate()
			require.NotEmpty(t, errs)
			joined := fmt.Sprint(errs)
			assert.Contains(t, joined, tt.wantErr)
		})
	}
}

func TestNodeDefinition_ValidateValidNodes(t *testing.T) {
	python := NewNodeDefinition("calc", NodeTypePython)
	python.Code = "result = 1"
	assert.Empty(t, python.Validate())

	file := NewNodeDefinition("read", NodeTypeFile)
	file.Config["operation"] = "read"
	file.Config["path"] = "/data/in.csv"
	assert.Empty(t, file.Validate())

	generic := NewNodeDefinition("group", NodeTypeGeneric)
	assert.Empty(t, generic.Validate(), "generic leaf needs no strategy")
	assert.True(t, generic.Collapsed, "generic nodes start collapsed")
}

func TestNodeDefinition_NameRequired(t *testing.T) {
	n := NewNodeDefinition("", NodeTypePython)
	n.Code = "result = 1"
	errs := n.Validate()
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "name is required")
}

func TestNodeDefinition_ParentInvariant(t *testing.T) {
	parent := NewNodeDefinition("group", NodeTypeGeneric)
	child := NewNodeDefinition("step", NodeTypePython)
	child.Code = "result = 1"
	require.NoError(t, parent.AddChild(child))

	// A generic node with children must carry strategy and limits.
	errs := parent.Validate()
	joined := fmt.Sprint(errs)
	assert.Contains(t, joined, "requires error_strategy")
	assert.Contains(t, joined, "resource_limits")

	parent.ErrorStrategy = &ErrorStrategy{OnFailure: OnFailureRetry, Retry: &RetrySpec{MaxAttempts: 3}}
	parent.ResourceLimits = &ResourceLimits{TimeoutSeconds: 30}
	assert.Empty(t, parent.Validate())
}

func TestNodeDefinition_OnlyGenericMayHaveChildren(t *testing.T) {
	python := NewNodeDefinition("calc", NodeTypePython)
	python.Code = "result = 1"
	child := NewNodeDefinition("sub", NodeTypePython)

	err := python.AddChild(child)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "only generic nodes")
}

func TestNodeDefinition_AddChildSetsHierarchy(t *testing.T) {
	parent := NewNodeDefinition("group", NodeTypeGeneric)
	child := NewNodeDefinition("step", NodeTypePython)
	child.Code = "result = 1"

	require.NoError(t, parent.AddChild(child))
	assert.Equal(t, parent.ID, child.ParentID)
	assert.Equal(t, 1, child.Depth())
	require.Len(t, parent.Children, 1)
}

func TestNodeDefinition_DepthBoundary(t *testing.T) {
	// Build a chain of generics down to the maximum depth.
	root := NewNodeDefinition("d0", NodeTypeGeneric)
	current := root
	for i := 1; i <= MaxNodeDefinitionDepth; i++ {
		next := NewNodeDefinition(fmt.Sprintf("d%d", i), NodeTypeGeneric)
		require.NoError(t, current.AddChild(next), "depth %d must be allowed", i)
		current = next
	}
	assert.Equal(t, MaxNodeDefinitionDepth, current.Depth())

	// One level beyond the maximum fails.
	overflow := NewNodeDefinition("overflow", NodeTypeGeneric)
	err := current.AddChild(overflow)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max depth")
}

func TestNodeDefinition_DepthBoundsAttachedSubtree(t *testing.T) {
	root := NewNodeDefinition("d0", NodeTypeGeneric)
	current := root
	for i := 1; i < MaxNodeDefinitionDepth; i++ {
		next := NewNodeDefinition(fmt.Sprintf("d%d", i), NodeTypeGeneric)
		require.NoError(t, current.AddChild(next))
		current = next
	}

	// 被挂接的子树自带后代，按最深叶子判断越界。
	sub := NewNodeDefinition("sub", NodeTypeGeneric)
	grand := NewNodeDefinition("grand", NodeTypePython)
	require.NoError(t, sub.AddChild(grand))

	err := current.AddChild(sub)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max depth")
	assert.Empty(t, current.Children)

	// A bare leaf at the same spot still fits.
	leaf := NewNodeDefinition("leaf", NodeTypePython)
	require.NoError(t, current.AddChild(leaf))
	assert.Equal(t, MaxNodeDefinitionDepth, leaf.Depth())
}

func TestNodeDefinition_RemoveChild(t *testing.T) {
	parent := NewNodeDefinition("group", NodeTypeGeneric)
	child := NewNodeDefinition("step", NodeTypePython)
	require.NoError(t, parent.AddChild(child))

	parent.RemoveChild(child.ID)
	assert.Empty(t, parent.Children)
	assert.Empty(t, child.ParentID)

	// Unknown id is a no-op, not an error.
	parent.RemoveChild("does-not-exist")
}

func TestNodeDefinition_PropagateStrategy(t *testing.T) {
	parent := NewNodeDefinition("group", NodeTypeGeneric)
	parent.ErrorStrategy = &ErrorStrategy{OnFailure: OnFailureRetry, Retry: &RetrySpec{MaxAttempts: 3}}
	parent.ResourceLimits = &ResourceLimits{TimeoutSeconds: 60, MemoryMB: 512}

	mid := NewNodeDefinition("mid", NodeTypeGeneric)
	mid.ErrorStrategy = &ErrorStrategy{OnFailure: OnFailureAbort} // divergent, will be overwritten
	leaf := NewNodeDefinition("leaf", NodeTypePython)
	leaf.Code = "result = 1"

	require.NoError(t, parent.AddChild(mid))
	require.NoError(t, mid.AddChild(leaf))

	parent.PropagateStrategyToChildren()

	for _, n := range []*NodeDefinition{mid, leaf} {
		require.NotNil(t, n.ErrorStrategy, n.Name)
		assert.Equal(t, OnFailureRetry, n.ErrorStrategy.OnFailure, n.Name)
		assert.Equal(t, 3, n.ErrorStrategy.Retry.MaxAttempts, n.Name)
		assert.True(t, n.InheritedStrategy, n.Name)
		require.NotNil(t, n.ResourceLimits, n.Name)
		assert.Equal(t, 512, n.ResourceLimits.MemoryMB, n.Name)
	}

	// Deep copies, not shared references.
	mid.ResourceLimits.MemoryMB = 128
	assert.Equal(t, 512, parent.ResourceLimits.MemoryMB)
	assert.Equal(t, 512, leaf.ResourceLimits.MemoryMB)
}

func TestNodeDefinition_PropagateStrategyIdempotent(t *testing.T) {
	parent := NewNodeDefinition("group", NodeTypeGeneric)
	parent.ErrorStrategy = &ErrorStrategy{OnFailure: OnFailureSkip}
	parent.ResourceLimits = &ResourceLimits{TimeoutSeconds: 10}

	child := NewNodeDefinition("step", NodeTypePython)
	child.Code = "result = 1"
	require.NoError(t, parent.AddChild(child))

	parent.PropagateStrategyToChildren()
	first := child.ErrorStrategy.Clone()

	parent.PropagateStrategyToChildren()
	assert.Equal(t, first, child.ErrorStrategy)
	assert.True(t, child.InheritedStrategy)
}

func TestParseNodeType(t *testing.T) {
	for _, s := range []string{"python", "llm", "http", "database", "generic", "condition", "loop", "parallel", "container", "file", "data_process", "human"} {
		nt, err := ParseNodeType(s)
		require.NoError(t, err)
		assert.Equal(t, NodeType(s), nt)
	}

	_, err := ParseNodeType("quantum")
	assert.Error(t, err)
}
