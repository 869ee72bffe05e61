package engine

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRuntimeError_Format(t *testing.T) {
	err := NewReplayMismatch(7, "buy", "OK", "NotListed")
	assert.Equal(t, "REPLAY_MISMATCH: buy replayed to a different receipt (seq=7)", err.Error())
	assert.Equal(t, "NotListed", err.Details["actual"])

	assert.Equal(t, "ENGINE_STOPPED: engine stopped", ErrStopped.Error())
}

func TestRuntimeError_Helpers(t *testing.T) {
	wrapped := fmt.Errorf("cli: %w", ErrStopped)
	assert.True(t, IsStopped(wrapped))
	assert.False(t, IsReplayMismatch(wrapped))

	assert.True(t, IsReplayMismatch(fmt.Errorf("x: %w", NewReplayMismatch(1, "mint", "a", "b"))))
	assert.True(t, IsReplayMismatch(&RuntimeError{Code: ErrCodeStateMismatch}))
	assert.False(t, IsStopped(fmt.Errorf("plain")))
}
