package types

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_ErrorMessage(t *testing.T) {
	err := NewDomainError(ErrToolExecution, "python executor crashed")
	assert.Equal(t, "[TOOL_EXECUTION] python executor crashed", err.Error())

	cause := errors.New("exit status 1")
	err = err.WithCause(cause)
	assert.Contains(t, err.Error(), "exit status 1")
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestDomainError_Levels(t *testing.T) {
	err := NewDomainError(ErrExecutionTimeout, "node timed out").WithLevel(LevelRetryable)
	assert.True(t, err.Retryable)
	assert.True(t, IsRetryable(err))

	err = NewDomainError(ErrPermissionDenied, "blocked by safety rules").WithLevel(LevelUserAction)
	assert.False(t, err.Retryable)
	assert.False(t, IsRetryable(err))

	assert.False(t, IsRetryable(errors.New("plain error")))
}

func TestGetErrorCode(t *testing.T) {
	assert.Equal(t, ErrRunGate, GetErrorCode(NewDomainError(ErrRunGate, "gated")))
	assert.Equal(t, ErrorCode(""), GetErrorCode(errors.New("plain")))
}
