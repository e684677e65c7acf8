package safety

import (
	"fmt"
	"path/filepath"
	"strings"
)

// FileAccessConfig 文件操作校验配置
type FileAccessConfig struct {
	// WhitelistRoots 为空时不做白名单限制；非空时路径必须落在某个根下
	WhitelistRoots []string `yaml:"whitelist_roots" json:"whitelist_roots"`
	// BlacklistRoots 黑名单优先于白名单
	BlacklistRoots []string `yaml:"blacklist_roots" json:"blacklist_roots"`
	// MaxContentBytes 写入内容的大小上限
	MaxContentBytes int `yaml:"max_content_bytes" json:"max_content_bytes"`
}

// DefaultFileAccessConfig 返回默认配置：系统敏感目录全部列入黑名单。
func DefaultFileAccessConfig() FileAccessConfig {
	return FileAccessConfig{
		BlacklistRoots: []string{
			"/etc", "/sys", "/proc", "/dev", "/boot", "/root/.ssh",
			"/var/run", "/usr/bin", "/usr/sbin", "/bin", "/sbin",
		},
		MaxContentBytes: 10 * 1024 * 1024,
	}
}

var fileOperations = map[string]bool{
	"read":   true,
	"write":  true,
	"append": true,
	"delete": true,
	"list":   true,
}

var writeOperations = map[string]bool{
	"write":  true,
	"append": true,
}

// validateFileOperation 按以下顺序检查：操作合法性、路径存在、路径穿越、
// 黑名单（先于白名单，黑名单命中即拒绝）、白名单、写入内容。
func validateFileOperation(cfg FileAccessConfig, nodeID, operation, path string, config map[string]any) *Result {
	result := NewResult()

	if !fileOperations[operation] {
		result.AddError(fmt.Sprintf("node %s: unknown file operation %q", nodeID, operation))
		return result.WithCorrection(map[string]any{
			"allowed_operations": []string{"read", "write", "append", "delete", "list"},
		})
	}
	if path == "" {
		result.AddError(fmt.Sprintf("node %s: file path is required", nodeID))
		return result
	}

	// 路径穿越先于解析检查：任何 ".." 片段都直接拒绝，与白名单无关。
	for _, segment := range strings.Split(filepath.ToSlash(path), "/") {
		if segment == ".." {
			result.AddError(fmt.Sprintf("node %s: path %q contains a traversal segment", nodeID, path))
			return result
		}
	}

	resolved := filepath.Clean(path)
	if !filepath.IsAbs(resolved) {
		resolved = "/" + resolved
	}

	for _, root := range cfg.BlacklistRoots {
		if pathUnder(resolved, root) {
			result.AddError(fmt.Sprintf("node %s: path %q falls under blacklisted root %q", nodeID, path, root))
			return result
		}
	}

	if len(cfg.WhitelistRoots) > 0 {
		allowed := false
		for _, root := range cfg.WhitelistRoots {
			if pathUnder(resolved, root) {
				allowed = true
				break
			}
		}
		if !allowed {
			result.AddError(fmt.Sprintf("node %s: path %q is outside every whitelisted root", nodeID, path))
			result.WithCorrection(map[string]any{"whitelist_roots": cfg.WhitelistRoots})
			return result
		}
	}

	if writeOperations[operation] {
		content, ok := config["content"].(string)
		if !ok || content == "" {
			result.AddError(fmt.Sprintf("node %s: %s operation requires content", nodeID, operation))
			return result
		}
		maxBytes := cfg.MaxContentBytes
		if maxBytes > 0 && len(content) > maxBytes {
			result.AddError(fmt.Sprintf("node %s: content size %d exceeds limit %d", nodeID, len(content), maxBytes))
			return result
		}
		for _, finding := range scanSensitiveContent(content) {
			result.AddError(fmt.Sprintf("node %s: %s", nodeID, finding))
		}
	}

	return result
}

// pathUnder reports whether path is root itself or inside it.
func pathUnder(path, root string) bool {
	root = filepath.Clean(root)
	if path == root {
		return true
	}
	return strings.HasPrefix(path, root+string(filepath.Separator))
}
