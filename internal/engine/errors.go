package engine

import (
	"errors"
	"fmt"
)

// RuntimeError is an engine failure, as opposed to a marketplace rejection
// (those become failed receipts, not errors).
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Seq is the affected log position, zero when not applicable.
	Seq int64

	// Details contains additional context.
	Details map[string]string
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeStopped indicates the engine loop is not accepting calls.
	ErrCodeStopped RuntimeErrorCode = "ENGINE_STOPPED"

	// ErrCodeWrongKind indicates a view sent to Execute or a write sent to Query.
	ErrCodeWrongKind RuntimeErrorCode = "WRONG_METHOD_KIND"

	// ErrCodeReplayMismatch indicates a replayed receipt differs from the log.
	ErrCodeReplayMismatch RuntimeErrorCode = "REPLAY_MISMATCH"

	// ErrCodeStateMismatch indicates the replayed state differs from the store.
	ErrCodeStateMismatch RuntimeErrorCode = "STATE_MISMATCH"
)

// ErrStopped is returned for calls made after Stop.
var ErrStopped = &RuntimeError{Code: ErrCodeStopped, Message: "engine stopped"}

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.Seq != 0 {
		return fmt.Sprintf("%s: %s (seq=%d)", e.Code, e.Message, e.Seq)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsStopped reports whether err came from a stopped engine.
func IsStopped(err error) bool {
	return hasCode(err, ErrCodeStopped)
}

// IsReplayMismatch reports whether replay diverged from the log, either
// per receipt or in the final state.
func IsReplayMismatch(err error) bool {
	return hasCode(err, ErrCodeReplayMismatch) || hasCode(err, ErrCodeStateMismatch)
}

func hasCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

func newKindError(method, want string) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeWrongKind,
		Message: fmt.Sprintf("%s is not a %s method", method, want),
	}
}

// NewReplayMismatch reports a receipt that replayed differently.
func NewReplayMismatch(seq int64, method, want, got string) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeReplayMismatch,
		Message: fmt.Sprintf("%s replayed to a different receipt", method),
		Seq:     seq,
		Details: map[string]string{
			"expected": want,
			"actual":   got,
		},
	}
}
