// Package errs classifies domain failures so the transport layer can map
// them to client-facing statuses without knowing every concrete error type.
package errs

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Kind is the category of a domain failure.
type Kind uint8

const (
	// KindInternal is any failure that is not a classified domain error.
	KindInternal Kind = iota
	// KindValidation marks malformed input: non-positive IDs, empty lists,
	// missing required fields.
	KindValidation
	// KindNotFound marks an absent product, order, cart, coupon or grant.
	KindNotFound
	// KindConflict marks a request that is well-formed but cannot be applied
	// to the current state: insufficient stock, illegal status transition,
	// unusable coupon.
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Classified is implemented by every domain error that carries a Kind and a
// stable machine-readable code.
type Classified interface {
	error
	Kind() Kind
	Code() string
}

// Error is a classified domain error. Sentinel values are compared by
// identity with errors.Is.
type Error struct {
	kind Kind
	code string
	msg  string
}

var _ Classified = (*Error)(nil)

// New returns a classified error.
func New(kind Kind, code, msg string) *Error {
	return &Error{kind: kind, code: code, msg: msg}
}

// Validation returns a KindValidation error.
func Validation(code, format string, args ...any) *Error {
	return New(KindValidation, code, fmt.Sprintf(format, args...))
}

// NotFound returns a KindNotFound error.
func NotFound(code, format string, args ...any) *Error {
	return New(KindNotFound, code, fmt.Sprintf(format, args...))
}

// Conflict returns a KindConflict error.
func Conflict(code, format string, args ...any) *Error {
	return New(KindConflict, code, fmt.Sprintf(format, args...))
}

func (e *Error) Error() string { return e.msg }

// Kind reports the failure category.
func (e *Error) Kind() Kind { return e.kind }

// Code reports the machine-readable error code, e.g. "INSUFFICIENT_STOCK".
func (e *Error) Code() string { return e.code }

// As finds the first Classified error in err's chain.
func As(err error) (Classified, bool) {
	var c Classified
	if errors.As(err, &c) {
		return c, true
	}
	return nil, false
}

// KindOf returns the Kind of the first classified error in err's chain, or
// KindInternal when there is none.
func KindOf(err error) Kind {
	if c, ok := As(err); ok {
		return c.Kind()
	}
	return KindInternal
}

// CodeOf returns the code of the first classified error in err's chain, or
// "INTERNAL_ERROR".
func CodeOf(err error) string {
	if c, ok := As(err); ok {
		return c.Code()
	}
	return "INTERNAL_ERROR"
}
