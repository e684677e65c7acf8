package types

import "fmt"

// ErrorCode represents a unified error code across the engine.
type ErrorCode string

// Plan and graph error codes
const (
	ErrPlanInvalid     ErrorCode = "PLAN_INVALID"
	ErrCircularGraph   ErrorCode = "CIRCULAR_GRAPH"
	ErrNodeNotFound    ErrorCode = "NODE_NOT_FOUND"
	ErrEdgeNotFound    ErrorCode = "EDGE_NOT_FOUND"
	ErrMaxDepth        ErrorCode = "MAX_DEPTH"
	ErrSerialization   ErrorCode = "SERIALIZATION"
	ErrPlannerUnusable ErrorCode = "PLANNER_UNUSABLE"
)

// Execution error codes
const (
	ErrRunGate          ErrorCode = "RUN_GATE"
	ErrToolNotFound     ErrorCode = "TOOL_NOT_FOUND"
	ErrToolExecution    ErrorCode = "TOOL_EXECUTION"
	ErrExecutionTimeout ErrorCode = "EXECUTION_TIMEOUT"
	ErrExpressionEval   ErrorCode = "EXPRESSION_EVAL"
	ErrPermissionDenied ErrorCode = "PERMISSION_DENIED"
	ErrExecutorMissing  ErrorCode = "EXECUTOR_MISSING"
	ErrHumanInputNeeded ErrorCode = "HUMAN_INPUT_NEEDED"
)

// ErrorLevel 错误级别，调用方据此决定是否自动重试
type ErrorLevel string

const (
	// LevelRetryable 可自动重试的瞬时故障
	LevelRetryable ErrorLevel = "retryable"
	// LevelUserAction 需要用户介入修正后才能继续
	LevelUserAction ErrorLevel = "user_action_required"
	// LevelSystem 系统内部错误
	LevelSystem ErrorLevel = "system_error"
)

// DomainError represents a structured business-rule violation with
// code, level, and retryability metadata.
type DomainError struct {
	Code      ErrorCode  `json:"code"`
	Message   string     `json:"message"`
	Level     ErrorLevel `json:"level"`
	Retryable bool       `json:"retryable"`
	NodeID    string     `json:"node_id,omitempty"`
	Cause     error      `json:"-"`
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// NewDomainError creates a new DomainError with the given code and message.
// The level defaults to system_error.
func NewDomainError(code ErrorCode, message string) *DomainError {
	return &DomainError{Code: code, Message: message, Level: LevelSystem}
}

// WithCause adds a cause to the error.
func (e *DomainError) WithCause(cause error) *DomainError {
	e.Cause = cause
	return e
}

// WithLevel sets the error level. Setting LevelRetryable also marks the
// error retryable.
func (e *DomainError) WithLevel(level ErrorLevel) *DomainError {
	e.Level = level
	if level == LevelRetryable {
		e.Retryable = true
	}
	return e
}

// WithRetryable marks the error as retryable.
func (e *DomainError) WithRetryable(retryable bool) *DomainError {
	e.Retryable = retryable
	return e
}

// WithNode attaches the offending node ID.
func (e *DomainError) WithNode(nodeID string) *DomainError {
	e.NodeID = nodeID
	return e
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := err.(*DomainError); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := err.(*DomainError); ok {
		return e.Code
	}
	return ""
}
