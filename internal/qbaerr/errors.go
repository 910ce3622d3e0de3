// Package qbaerr classifies the failures of the bias-analysis engine.
//
// Every engine package returns *Error values carrying a Kind, so callers can
// branch with errors.Is against the Kind sentinels without importing the
// package that produced the error.
package qbaerr

import (
	"errors"
	"fmt"
)

// Kind is a coarse-grained categorization for errors.
type Kind string

const (
	KindSchema               Kind = "schema"
	KindUndefinedAdjustment  Kind = "undefined_adjustment"
	KindDegenerateCorrection Kind = "degenerate_correction"
	KindUndefinedPooling     Kind = "undefined_pooling"
	KindDivisionByZero       Kind = "division_by_zero"
	KindInvalidParameter     Kind = "invalid_parameter"
)

// Sentinel errors for broad classification. errors.Is(err, ErrX) is true for
// any *Error of the matching Kind.
var (
	ErrSchema               = &Error{Kind: KindSchema}
	ErrUndefinedAdjustment  = &Error{Kind: KindUndefinedAdjustment}
	ErrDegenerateCorrection = &Error{Kind: KindDegenerateCorrection}
	ErrUndefinedPooling     = &Error{Kind: KindUndefinedPooling}
	ErrDivisionByZero       = &Error{Kind: KindDivisionByZero}
	ErrInvalidParameter     = &Error{Kind: KindInvalidParameter}
)

// Error wraps an underlying error with operation context and a kind.
type Error struct {
	Op     string
	Kind   Kind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	base := string(e.Kind)
	if e.Op != "" {
		base = e.Op + ": " + base
	}
	if e.Detail != "" {
		base += ": " + e.Detail
	}
	if e.Err != nil {
		base += fmt.Sprintf(": %v", e.Err)
	}
	return base
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether target is an *Error of the same Kind.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New returns an *Error of kind k for operation op.
func New(op string, k Kind, detail string) *Error {
	return &Error{Op: op, Kind: k, Detail: detail}
}

// Newf is New with a formatted detail.
func Newf(op string, k Kind, format string, a ...any) *Error {
	return &Error{Op: op, Kind: k, Detail: fmt.Sprintf(format, a...)}
}

// Wrap returns an *Error of kind k that wraps cause.
func Wrap(op string, k Kind, cause error) *Error {
	return &Error{Op: op, Kind: k, Err: cause}
}

// KindOf returns the Kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind helps callers classify errors without depending on engine packages.
func IsKind(err error, k Kind) bool {
	return KindOf(err) == k
}

// IsTrialLevel reports whether k describes bias parameters that are
// inconsistent with one particular draw or resample, as opposed to malformed
// input that would fail every trial identically.
func IsTrialLevel(k Kind) bool {
	switch k {
	case KindUndefinedAdjustment, KindDegenerateCorrection, KindUndefinedPooling,
		KindDivisionByZero, KindInvalidParameter:
		return true
	default:
		return false
	}
}
