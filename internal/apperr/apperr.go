// Package apperr defines the error kinds returned by the poll registry and
// the ballot engine. Handlers translate a Kind into an HTTP status.
package apperr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies an error for the caller.
type Kind int

const (
	// KindInternal is anything that is not one of the kinds below.
	KindInternal Kind = iota
	// KindValidation is malformed or missing input. Do not retry unmodified.
	KindValidation
	// KindNotFound is an unknown token or poll.
	KindNotFound
	// KindForbidden means the caller is not the poll owner.
	KindForbidden
	// KindConflict is a request incompatible with current state.
	KindConflict
	// KindTransient means the store was unavailable or timed out.
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	case KindTransient:
		return "transient"
	default:
		return "internal"
	}
}

// Error is a classified error with a caller-facing message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Validation returns a KindValidation error.
func Validation(msg string) error { return &Error{Kind: KindValidation, Message: msg} }

// NotFound returns a KindNotFound error.
func NotFound(msg string) error { return &Error{Kind: KindNotFound, Message: msg} }

// Forbidden returns a KindForbidden error.
func Forbidden(msg string) error { return &Error{Kind: KindForbidden, Message: msg} }

// Conflict returns a KindConflict error.
func Conflict(msg string) error { return &Error{Kind: KindConflict, Message: msg} }

// Transient wraps a storage failure that is safe to retry with backoff
// (reads) or requires a fresh duplicate check (ballot submission).
func Transient(msg string, err error) error {
	return &Error{Kind: KindTransient, Message: msg, Err: err}
}

// KindOf returns the Kind of err, or KindInternal if err is not classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message returns the caller-facing message of err, or fallback for
// unclassified errors.
func Message(err error, fallback string) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return fallback
}
