package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/simbridge/internal/model"
)

// RuntimeError is a recoverable failure inside one dispatch cycle.
//
// None of these stop the Dispatcher: the cycle logs the error, records it,
// and the loop carries on with the next token.
type RuntimeError struct {
	Code    RuntimeErrorCode
	Message string

	// Token is the token being dispatched, if any.
	Token model.Token

	// Action is the symbolic action involved, if any.
	Action model.Action

	// Err is the underlying cause.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeUnmatchedToken: the token matches neither table.
	ErrCodeUnmatchedToken RuntimeErrorCode = "UNMATCHED_TOKEN"

	// ErrCodeUnresolvedAction: the simulator has no event for the action.
	ErrCodeUnresolvedAction RuntimeErrorCode = "UNRESOLVED_ACTION"

	// ErrCodeTriggerFailed: the event exists but invoking it failed.
	ErrCodeTriggerFailed RuntimeErrorCode = "TRIGGER_FAILED"

	// ErrCodeSnapshotRead: a mode-flag refresh could not read the simulator.
	ErrCodeSnapshotRead RuntimeErrorCode = "SNAPSHOT_READ_FAILED"

	// ErrCodeSyncRead: a sync token could not read its live value.
	ErrCodeSyncRead RuntimeErrorCode = "SYNC_READ_FAILED"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Token != "" {
		msg += fmt.Sprintf(" (token=%q)", string(e.Token))
	}
	if e.Action != "" {
		msg += fmt.Sprintf(" (action=%s)", e.Action)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// HasCode reports whether err is (or wraps) a RuntimeError with the given code.
func HasCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// IsUnmatchedError returns true for tokens that matched no table entry.
func IsUnmatchedError(err error) bool {
	return HasCode(err, ErrCodeUnmatchedToken)
}

// IsUnresolvedError returns true when the simulator did not know the action.
func IsUnresolvedError(err error) bool {
	return HasCode(err, ErrCodeUnresolvedAction)
}

// NewUnmatchedError creates a RuntimeError for a token no table knows.
func NewUnmatchedError(stream model.Stream, tok model.Token) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeUnmatchedToken,
		Message: fmt.Sprintf("no %s entry", stream),
		Token:   tok,
	}
}

// NewSnapshotError wraps a failed mode-flag read.
func NewSnapshotError(v model.Var, err error) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeSnapshotRead,
		Message: fmt.Sprintf("read %s", v),
		Err:     err,
	}
}
