// Package apperr defines the error taxonomy shared across the tutor core.
//
// Every failure that crosses a component boundary carries a Kind so that
// callers (and the HTTP layer) can branch on the category programmatically
// instead of matching message strings. Errors are checked with errors.As:
//
//	if apperr.KindOf(err) == apperr.NotFound { ... }
//
// Components still wrap underlying causes with fmt.Errorf("...: %w", err);
// the Kind survives wrapping because KindOf walks the chain.
package apperr

import (
	"errors"
	"fmt"
)

// Kind categorizes an error for programmatic handling.
type Kind int

const (
	// Unknown is the zero Kind; errors without a taxonomy classification.
	Unknown Kind = iota

	// NotFound indicates a referenced entity is absent.
	NotFound

	// Unauthorized indicates the caller lacks the required role or ownership.
	Unauthorized

	// InvalidInput indicates a schema or range violation in caller input.
	InvalidInput

	// Unavailable indicates a dependent service (embedding or generation
	// model) failed after retries were exhausted.
	Unavailable

	// Conflict indicates the operation conflicts with current state,
	// e.g. recording against a session that is already terminal.
	Conflict

	// Infeasible indicates no valid solution exists for the request,
	// e.g. an unreachable learning objective or cyclic prerequisites.
	Infeasible
)

// String returns the wire name of the kind, used in API responses.
func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case Unauthorized:
		return "unauthorized"
	case InvalidInput:
		return "invalid_input"
	case Unavailable:
		return "unavailable"
	case Conflict:
		return "conflict"
	case Infeasible:
		return "infeasible"
	default:
		return "unknown"
	}
}

// Error is a classified error. The zero value is not useful; construct with
// New or Wrap.
type Error struct {
	Kind    Kind
	Message string
	Err     error // optional underlying cause
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap exposes the underlying cause for errors.Is/errors.As chains.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error. The message should describe the
// operation that failed, not repeat the cause.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the Kind of the first classified error in the chain,
// or Unknown if none is found.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
