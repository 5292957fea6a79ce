package attendance

import (
	"errors"
	"fmt"
)

// Kind classifies a failed attendance operation.
type Kind string

const (
	KindNotFound           Kind = "NotFound"
	KindNotApproved        Kind = "NotApproved"
	KindInvalidCredential  Kind = "InvalidCredential"
	KindNoSessionScheduled Kind = "NoSessionScheduled"
	KindOutsideWindow      Kind = "OutsideWindow"
	KindDuplicateCheckIn   Kind = "DuplicateCheckIn"
	KindDuplicateCheckOut  Kind = "DuplicateCheckOut"
	KindNoOpenSession      Kind = "NoOpenSession"
	KindCheckoutTooEarly   Kind = "CheckoutTooEarly"
	KindStoreUnavailable   Kind = "StoreUnavailable"
	KindBadRequest         Kind = "BadRequest"
	KindInternal           Kind = "Internal"
)

// Error is a classified failure. Reason is safe to show to callers; Err
// keeps the underlying cause for logs.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches errors of the same kind, so errors.Is(err, ErrDuplicateCheckIn)
// works regardless of reason.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && t.Reason == "" && t.Err == nil
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// unavailable wraps an infrastructure failure as a retryable error.
func unavailable(err error) *Error {
	return &Error{Kind: KindStoreUnavailable, Reason: "attendance store unavailable, retry later", Err: err}
}

// Sentinels for errors.Is checks.
var (
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrDuplicateCheckIn  = &Error{Kind: KindDuplicateCheckIn}
	ErrDuplicateCheckOut = &Error{Kind: KindDuplicateCheckOut}
	ErrNoOpenSession     = &Error{Kind: KindNoOpenSession}
	ErrCheckoutTooEarly  = &Error{Kind: KindCheckoutTooEarly}
	ErrStoreUnavailable  = &Error{Kind: KindStoreUnavailable}
)

// KindOf extracts the kind of err. Unclassified errors are Internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Retryable reports whether the caller may retry the operation.
func Retryable(err error) bool {
	return KindOf(err) == KindStoreUnavailable
}

// ReasonOf returns the caller-facing reason for err.
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Reason != "" {
			return e.Reason
		}
		return string(e.Kind)
	}
	return "internal error"
}
