package safety

import (
	"sync"

	"go.uber.org/zap"
)

// Guard 安全门：文件操作、出站请求与人工交互的验证层。每次验证都是
// 无状态调用；配置通过 Configure* 设定一次，之后只读。
type Guard struct {
	mu     sync.RWMutex
	file   FileAccessConfig
	api    APIAccessConfig
	logger *zap.Logger
}

// NewGuard creates a guard with default file and API policies.
func NewGuard(logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{
		file:   DefaultFileAccessConfig(),
		api:    DefaultAPIAccessConfig(),
		logger: logger.With(zap.String("component", "safety_guard")),
	}
}

// ConfigureFileAccess replaces the file access policy. Empty blacklist
// keeps the default system roots.
func (g *Guard) ConfigureFileAccess(cfg FileAccessConfig) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(cfg.BlacklistRoots) == 0 {
		cfg.BlacklistRoots = DefaultFileAccessConfig().BlacklistRoots
	}
	if cfg.MaxContentBytes == 0 {
		cfg.MaxContentBytes = DefaultFileAccessConfig().MaxContentBytes
	}
	g.file = cfg
}

// ConfigureAPIAccess replaces the outbound request policy.
func (g *Guard) ConfigureAPIAccess(cfg APIAccessConfig) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(cfg.AllowedSchemes) == 0 {
		cfg.AllowedSchemes = DefaultAPIAccessConfig().AllowedSchemes
	}
	g.api = cfg
}

// ValidateFileOperation validates a FILE node operation against the
// configured path policies.
func (g *Guard) ValidateFileOperation(nodeID, operation, path string, config map[string]any) *Result {
	g.mu.RLock()
	cfg := g.file
	g.mu.RUnlock()

	result := validateFileOperation(cfg, nodeID, operation, path, config)
	if !result.Valid {
		g.logger.Warn("file operation rejected",
			zap.String("node_id", nodeID),
			zap.String("operation", operation),
			zap.String("path", path),
			zap.Strings("errors", result.Errors),
		)
	}
	return result
}

// ValidateAPIRequest validates an HTTP node request against scheme,
// domain, and SSRF policies.
func (g *Guard) ValidateAPIRequest(nodeID, url, method string, headers map[string]string, body any) *Result {
	g.mu.RLock()
	cfg := g.api
	g.mu.RUnlock()

	result := validateAPIRequest(cfg, nodeID, url, method, headers, body)
	if !result.Valid {
		g.logger.Warn("api request rejected",
			zap.String("node_id", nodeID),
			zap.String("url", url),
			zap.Strings("errors", result.Errors),
		)
	}
	return result
}

// ValidateHumanInteraction validates a HUMAN node prompt for length,
// injection phrases, and sensitive content.
func (g *Guard) ValidateHumanInteraction(nodeID, prompt string, expectedInputs []string, metadata map[string]any) *Result {
	result := validateHumanInteraction(nodeID, prompt, expectedInputs, metadata)
	if !result.Valid {
		g.logger.Warn("human interaction rejected",
			zap.String("node_id", nodeID),
			zap.Strings("errors", result.Errors),
		)
	}
	return result
}
