package fault

import (
	"errors"
	"fmt"
)

// Kind classifies client-side failures into the small set the UI layer
// knows how to present.
type Kind string

const (
	KindPermissionDenied   Kind = "permission_denied"
	KindDeviceBusy         Kind = "device_busy"
	KindNoActiveRecording  Kind = "no_active_recording"
	KindPlaybackFailed     Kind = "playback_failed"
	KindNetworkUnavailable Kind = "network_unavailable"
	KindServerError        Kind = "server_error"
	KindInvalidState       Kind = "invalid_state"
)

// Error carries a kind, a human-readable message and an optional cause.
type Error struct {
	Kind      Kind
	Message   string
	Retryable bool
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds a fault error with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds a fault error around an underlying cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// WithRetryable marks the error as retryable by user action.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// KindOf extracts the fault kind from err, walking the wrap chain.
func KindOf(err error) (Kind, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	return "", false
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// IsRetryable reports whether err is marked retryable.
func IsRetryable(err error) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Retryable
	}
	return false
}
