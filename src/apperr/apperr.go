// Package apperr defines the error kinds surfaced to the operator and the
// process exit codes they map to.
package apperr

import (
	"github.com/juju/errors"
)

// Error kinds. Attach one to an error with the helpers below and test for it
// with errors.Is.
const (
	// ErrConnection means the MongoDB server could not be reached.
	ErrConnection = errors.ConstError("connection error")
	// ErrIO means the filesystem could not be read or written.
	ErrIO = errors.ConstError("i/o error")
	// ErrFormat means backup content is malformed.
	ErrFormat = errors.ConstError("format error")
	// ErrConflict means a restore target already holds documents.
	ErrConflict = errors.ConstError("conflict")
)

// Exit codes returned by the command layer.
const (
	ExitOK         = 0
	ExitFailure    = 1
	ExitConnection = 2
	ExitIO         = 3
	ExitFormat     = 4
	ExitConflict   = 5
)

// Connection annotates err and marks it as a connection error.
func Connection(err error, format string, args ...any) error {
	return mark(err, ErrConnection, format, args...)
}

// IO annotates err and marks it as a filesystem error.
func IO(err error, format string, args ...any) error {
	return mark(err, ErrIO, format, args...)
}

// Format annotates err and marks it as a format error.
func Format(err error, format string, args ...any) error {
	return mark(err, ErrFormat, format, args...)
}

// Formatf creates a new format error.
func Formatf(format string, args ...any) error {
	return errors.WithType(errors.Errorf(format, args...), ErrFormat)
}

// Conflictf creates a new conflict error.
func Conflictf(format string, args ...any) error {
	return errors.WithType(errors.Errorf(format, args...), ErrConflict)
}

func mark(err error, kind errors.ConstError, format string, args ...any) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, kind) {
		return errors.Annotatef(err, format, args...)
	}
	return errors.WithType(errors.Annotatef(err, format, args...), kind)
}

// ExitCode maps an error to the process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrConnection):
		return ExitConnection
	case errors.Is(err, ErrConflict):
		return ExitConflict
	case errors.Is(err, ErrFormat):
		return ExitFormat
	case errors.Is(err, ErrIO):
		return ExitIO
	default:
		return ExitFailure
	}
}
