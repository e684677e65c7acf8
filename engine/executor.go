package engine

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/orchio-ai/orchio/plan"
)

// Executor 后端执行端口。每种运行时类型对应一个后端；节点配置与运行
// 上下文作为入参，输出以字典返回。
type Executor interface {
	Execute(ctx context.Context, def *plan.NodeDefinition, vars map[string]any) (map[string]any, error)
}

// ExecutorSet 按后端聚合执行器。缺失的后端在执行对应类型节点时报错。
type ExecutorSet struct {
	Python    Executor
	LLM       Executor
	HTTP      Executor
	Database  Executor
	Container Executor
}

func (s ExecutorSet) forType(t NodeType) (Executor, error) {
	var exec Executor
	switch t {
	case RuntimePython, RuntimeTransform:
		exec = s.Python
	case RuntimeLLM:
		exec = s.LLM
	case RuntimeHTTP:
		exec = s.HTTP
	case RuntimeDatabase:
		exec = s.Database
	case RuntimeContainer:
		exec = s.Container
	default:
		return nil, fmt.Errorf("node type %s has no backend executor", t)
	}
	if exec == nil {
		return nil, fmt.Errorf("no executor configured for node type %s", t)
	}
	return exec, nil
}

// HTTPExecutor HTTP 节点的默认执行后端，带全局速率限制。
type HTTPExecutor struct {
	client  *http.Client
	limiter *rate.Limiter
	tracer  trace.Tracer
}

// NewHTTPExecutor creates the default HTTP backend. qps <= 0 disables
// rate limiting.
func NewHTTPExecutor(client *http.Client, qps float64) *HTTPExecutor {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	e := &HTTPExecutor{
		client: client,
		tracer: otel.Tracer("orchio/engine"),
	}
	if qps > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(qps), int(qps)+1)
	}
	return e
}

// Execute 发送节点配置描述的请求并返回 status_code/body。
func (e *HTTPExecutor) Execute(ctx context.Context, def *plan.NodeDefinition, vars map[string]any) (map[string]any, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("node %s: rate limit wait: %w", def.Name, err)
		}
	}

	method := "GET"
	if m, ok := def.Config["method"].(string); ok && m != "" {
		method = strings.ToUpper(m)
	}
	var body io.Reader
	if payload, ok := def.Config["body"].(string); ok && payload != "" {
		body = strings.NewReader(payload)
	}

	ctx, span := e.tracer.Start(ctx, "http.execute",
		trace.WithAttributes(
			attribute.String("node.name", def.Name),
			attribute.String("http.method", method),
		),
	)
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, method, def.URL, body)
	if err != nil {
		return nil, fmt.Errorf("node %s: build request: %w", def.Name, err)
	}
	if headers, ok := def.Config["headers"].(map[string]any); ok {
		for key, value := range headers {
			if s, ok := value.(string); ok {
				req.Header.Set(key, s)
			}
		}
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("node %s: request failed: %w", def.Name, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4*1024*1024))
	if err != nil {
		return nil, fmt.Errorf("node %s: read response: %w", def.Name, err)
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	return map[string]any{
		"status_code": resp.StatusCode,
		"body":        string(data),
	}, nil
}

// ExecutorFunc 函数适配器，测试与桩实现用。
type ExecutorFunc func(ctx context.Context, def *plan.NodeDefinition, vars map[string]any) (map[string]any, error)

func (f ExecutorFunc) Execute(ctx context.Context, def *plan.NodeDefinition, vars map[string]any) (map[string]any, error) {
	return f(ctx, def, vars)
}
