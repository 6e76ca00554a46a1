package convert

import (
	"fmt"
	"time"
)

// Kind classifies conversion failures for transport mapping and retry
// policy.
type Kind int

const (
	// KindBadRequest: malformed request; the caller must fix it.
	KindBadRequest Kind = iota
	// KindPayloadTooLarge: declared or actual byte size exceeds limits.
	KindPayloadTooLarge
	// KindUnsupportedMedia: MIME type or pixel dimensions outside limits.
	KindUnsupportedMedia
	// KindBusy: the gate is saturated; expected backpressure, retried once
	// by the caller after RetryAfter.
	KindBusy
	// KindInternal: unexpected preprocessing or tracing failure; retrying
	// the same bytes is unlikely to succeed.
	KindInternal
)

// Error is the conversion failure type. Every user-visible message is short
// and actionable; Busy additionally carries a concrete wait hint.
type Error struct {
	Kind       Kind
	Msg        string
	RetryAfter time.Duration
	cause      error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.cause)
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.cause
}

func badRequestf(format string, args ...any) *Error {
	return &Error{Kind: KindBadRequest, Msg: fmt.Sprintf(format, args...)}
}

func payloadTooLargef(format string, args ...any) *Error {
	return &Error{Kind: KindPayloadTooLarge, Msg: fmt.Sprintf(format, args...)}
}

func unsupportedf(format string, args ...any) *Error {
	return &Error{Kind: KindUnsupportedMedia, Msg: fmt.Sprintf(format, args...)}
}

func busyError(retryAfter time.Duration) *Error {
	return &Error{
		Kind:       KindBusy,
		Msg:        "converter is busy, please retry shortly",
		RetryAfter: retryAfter,
	}
}

func internalError(msg string, cause error) *Error {
	return &Error{Kind: KindInternal, Msg: msg, cause: cause}
}
