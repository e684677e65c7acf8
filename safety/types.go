package safety

import "github.com/orchio-ai/orchio/types"

// Result 验证结果。三个验证器都只做纯验证：没有副作用，调用之间不保留
// 状态。
type Result struct {
	Valid      bool           `json:"valid"`
	Errors     []string       `json:"errors,omitempty"`
	Correction map[string]any `json:"correction,omitempty"`
}

// NewResult 创建一个通过的验证结果
func NewResult() *Result {
	return &Result{Valid: true}
}

// AddError 添加错误并将结果标记为无效
func (r *Result) AddError(msg string) {
	r.Valid = false
	r.Errors = append(r.Errors, msg)
}

// WithCorrection 附加修正建议
func (r *Result) WithCorrection(correction map[string]any) *Result {
	r.Correction = correction
	return r
}

// PermissionError converts a failed result into the domain error the
// execution engine propagates for rejected FILE operations. Never
// retried automatically.
func (r *Result) PermissionError(nodeID string) error {
	if r.Valid {
		return nil
	}
	msg := "operation rejected by safety rules"
	if len(r.Errors) > 0 {
		msg = r.Errors[0]
	}
	return types.NewDomainError(types.ErrPermissionDenied, msg).
		WithLevel(types.LevelUserAction).
		WithNode(nodeID)
}
