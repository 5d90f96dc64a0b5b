// Package errs defines the typed error vocabulary that crosses every
// component boundary in this server. Nothing below the tool dispatcher is
// allowed to hand a caller a bare Go error: every failure that reaches
// internal/mcpserver is either already an *Error or gets wrapped as Internal.
package errs

import "fmt"

// Kind classifies a failure at the tool boundary.
type Kind string

const (
	NotInitialized     Kind = "NOT_INITIALIZED"
	InvalidArgument    Kind = "INVALID_ARGUMENT"
	NotFound           Kind = "NOT_FOUND"
	PermissionDenied   Kind = "PERMISSION_DENIED"
	AuthRequired       Kind = "AUTH_REQUIRED"
	AuthInvalid        Kind = "AUTH_INVALID"
	ExtractionFailed   Kind = "EXTRACTION_FAILED"
	BackendUnavailable Kind = "BACKEND_UNAVAILABLE"
	Internal           Kind = "INTERNAL"
)

// Error is the typed error every tool handler returns. Detail carries
// structured context (e.g. a schema field path for ExtractionFailed, the
// current code for AuthRequired, or the rotated code for AuthInvalid); it is
// optional.
type Error struct {
	Kind    Kind
	Message string
	Detail  map[string]any
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds an *Error with no detail or cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf builds an *Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a Kind and message to an underlying cause, preserving it
// for %w-style unwrapping and logging.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// WithDetail returns a copy of e carrying the given structured detail.
func (e *Error) WithDetail(detail map[string]any) *Error {
	cp := *e
	cp.Detail = detail
	return &cp
}

// As reports whether err is an *Error, and returns it if so — a small
// hand-rolled counterpart of errors.As for call sites that don't want to
// import errors just to unwrap one type. It follows single-error Unwrap
// chains only.
func As(err error) (*Error, bool) {
	e, ok := err.(*Error)
	if ok {
		return e, true
	}
	type wrapper interface{ Unwrap() error }
	if w, ok := err.(wrapper); ok {
		return As(w.Unwrap())
	}
	return nil, false
}

// Classify coerces any error into an *Error, wrapping unrecognized errors
// as Internal so nothing unclassified reaches the wire.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := As(err); ok {
		return e
	}
	return Wrap(Internal, "unexpected error", err)
}
