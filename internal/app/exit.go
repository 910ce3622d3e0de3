package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"qba/internal/qbaerr"
)

const (
	exitOK        = 0
	exitUsage     = 2
	exitRuntime   = 3
	exitUndefined = 4
	exitCancelled = 130
)

// usageError marks bad flags, arguments or flag combinations.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func usagef(format string, a ...any) error {
	return usageError{err: fmt.Errorf(format, a...)}
}

// exitCode maps err to a process exit code. Errors returned before any
// command started (unknown commands, flag parsing) are usage errors.
func exitCode(err error, started bool) int {
	if err == nil {
		return exitOK
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return exitCancelled
	}
	var ue usageError
	if errors.As(err, &ue) || !started {
		return exitUsage
	}
	switch qbaerr.KindOf(err) {
	case qbaerr.KindSchema, qbaerr.KindInvalidParameter:
		return exitUsage
	case qbaerr.KindUndefinedAdjustment, qbaerr.KindDegenerateCorrection,
		qbaerr.KindUndefinedPooling, qbaerr.KindDivisionByZero:
		return exitUndefined
	}
	var pe *fs.PathError
	if errors.As(err, &pe) && errors.Is(err, fs.ErrNotExist) {
		return exitUsage
	}
	return exitRuntime
}
