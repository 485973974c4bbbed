package domain

import (
	"errors"
	"fmt"
)

// Bridge failure kinds. The core never looks further than these three.
var (
	ErrBridgeUnavailable = errors.New("player unavailable")
	ErrPermissionDenied  = errors.New("automation permission denied")
	ErrExecutionFailed   = errors.New("command execution failed")
)

// BridgeError wraps a bridge failure with its kind and the command that caused it
type BridgeError struct {
	Kind    error
	Command Command
	Err     error
}

// NewBridgeError builds a BridgeError of the given kind
func NewBridgeError(kind error, cmd Command, err error) *BridgeError {
	return &BridgeError{Kind: kind, Command: cmd, Err: err}
}

func (e *BridgeError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Command, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Command, e.Kind, e.Err)
}

// Is matches the error kind so callers can use errors.Is(err, ErrPermissionDenied)
func (e *BridgeError) Is(target error) bool {
	return target == e.Kind
}

func (e *BridgeError) Unwrap() error {
	return e.Err
}

// Suggestion returns a user-facing hint for a bridge error, or "" if none applies
func Suggestion(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPermissionDenied):
		return "Allow this app to control Spotify in System Settings > Privacy & Security > Automation"
	case errors.Is(err, ErrBridgeUnavailable):
		return "Start Spotify and try again"
	case errors.Is(err, ErrExecutionFailed):
		return "The player rejected the command, check that a track is loaded"
	}
	return ""
}
