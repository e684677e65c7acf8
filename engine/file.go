package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/orchio-ai/orchio/plan"
)

// executeFileNode 执行已通过安全门的文件操作。安全校验在 runNode 完成,
// 这里只做IO本身。
func (a *Agent) executeFileNode(def *plan.NodeDefinition) (map[string]any, error) {
	operation, _ := def.Config["operation"].(string)
	path, _ := def.Config["path"].(string)

	switch operation {
	case "read":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("node %s: read %s: %w", def.Name, path, err)
		}
		return map[string]any{"content": string(data), "size": len(data)}, nil

	case "write", "append":
		content, _ := def.Config["content"].(string)
		flags := os.O_CREATE | os.O_WRONLY
		if operation == "append" {
			flags |= os.O_APPEND
		} else {
			flags |= os.O_TRUNC
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("node %s: prepare %s: %w", def.Name, path, err)
		}
		f, err := os.OpenFile(path, flags, 0o644)
		if err != nil {
			return nil, fmt.Errorf("node %s: open %s: %w", def.Name, path, err)
		}
		defer f.Close()
		n, err := f.WriteString(content)
		if err != nil {
			return nil, fmt.Errorf("node %s: %s %s: %w", def.Name, operation, path, err)
		}
		return map[string]any{"written": n, "path": path}, nil

	case "delete":
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("node %s: delete %s: %w", def.Name, path, err)
		}
		return map[string]any{"deleted": path}, nil

	case "list":
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, fmt.Errorf("node %s: list %s: %w", def.Name, path, err)
		}
		names := make([]string, 0, len(entries))
		for _, entry := range entries {
			names = append(names, entry.Name())
		}
		sort.Strings(names)
		return map[string]any{"entries": names, "count": len(names)}, nil
	}

	return nil, fmt.Errorf("node %s: unknown file operation %q", def.Name, operation)
}
