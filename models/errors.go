package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidArgument indicates a bad caller-supplied value. The request
	// is rejected with no partial side effects.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound indicates a missing index, trace, model, or replay artifact.
	ErrNotFound = errors.New("not found")

	// ErrCorrupt indicates a persisted artifact exists but its JSON is
	// malformed or has the wrong shape. Distinct from ErrNotFound so callers
	// can tell "never existed" from "exists but unreadable".
	ErrCorrupt = errors.New("corrupt artifact")

	// ErrDimensionMismatch indicates two embedding vectors of unequal length.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrInvalidConfiguration indicates a programmer/config error such as an
	// overlap larger than the chunk size. Fatal to the call, never retried.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrWriteConflict indicates the evidence index file changed between the
	// read and the write of a mutation.
	ErrWriteConflict = errors.New("index write conflict")
)

// MissingFieldsError reports every required feature key absent from a
// payload, not just the first one found.
type MissingFieldsError struct {
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	return "missing required keys: " + strings.Join(e.Fields, ", ")
}

// NewMissingFieldsError builds a MissingFieldsError from already-sorted keys.
func NewMissingFieldsError(fields []string) error {
	return &MissingFieldsError{Fields: fields}
}

// IsMissingFields reports whether err is a MissingFieldsError.
func IsMissingFields(err error) bool {
	var target *MissingFieldsError
	return errors.As(err, &target)
}

// WrapCorrupt annotates err as a corrupt-artifact failure.
func WrapCorrupt(context string, err error) error {
	return fmt.Errorf("%s: %w: %v", context, ErrCorrupt, err)
}
