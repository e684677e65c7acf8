package main

import (
	"context"

	"github.com/orchio-ai/orchio/engine"
	"github.com/orchio-ai/orchio/plan"
)

// localStubExecutor 本地桩后端：没有接入真实 Python/LLM/数据库运行时
// 时使用，回显节点定义便于演练计划结构。
func localStubExecutor(backend string) engine.Executor {
	return engine.ExecutorFunc(func(_ context.Context, def *plan.NodeDefinition, _ map[string]any) (map[string]any, error) {
		result := map[string]any{
			"backend": backend,
			"node":    def.Name,
			"type":    string(def.Type),
		}
		if def.Code != "" {
			result["code_size"] = len(def.Code)
		}
		if def.Prompt != "" {
			result["prompt_size"] = len(def.Prompt)
		}
		if def.Query != "" {
			result["query"] = def.Query
		}
		return result, nil
	})
}
