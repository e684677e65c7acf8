package rules

// Condition 对决策载荷求值，true 表示通过。
type Condition func(payload map[string]any) bool

// Message 生成规则失败时的错误说明。
type Message func(payload map[string]any) string

// Correction 生成修正建议，可为 nil。
type Correction func(payload map[string]any) map[string]any

// Rule 决策规则。Priority 越大越先执行；同优先级按加入顺序。
type Rule struct {
	ID          string
	Name        string
	Description string
	Priority    int
	Condition   Condition
	Message     Message
	Correction  Correction
}

// StaticMessage 将字面错误文案包装为 Message。
func StaticMessage(text string) Message {
	return func(map[string]any) string { return text }
}

// ValidationResult 一次 ValidateDecision 的聚合结果。
type ValidationResult struct {
	Valid       bool             `json:"valid"`
	Errors      []string         `json:"errors,omitempty"`
	Corrections []map[string]any `json:"corrections,omitempty"`
	SessionID   string           `json:"session_id,omitempty"`
}

// actionType 读取载荷的 action_type 字段，缺失时返回空串。
func actionType(payload map[string]any) string {
	v, _ := payload["action_type"].(string)
	return v
}
