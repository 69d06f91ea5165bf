package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Not found errors
	ErrNotFound         = errors.New("resource not found")
	ErrRunNotFound      = fmt.Errorf("%w: run", ErrNotFound)
	ErrArtifactNotFound = fmt.Errorf("%w: artifact", ErrNotFound)
	ErrMontageNotFound  = fmt.Errorf("%w: montage", ErrNotFound)

	// Input errors
	ErrEmptyInput        = errors.New("empty input")
	ErrInvalidParameter  = errors.New("invalid parameter")
	ErrInvalidChannel    = errors.New("invalid channel reference")
	ErrShapeMismatch     = errors.New("shape mismatch")
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// Determinism errors
	ErrNonDeterministic = errors.New("non-deterministic result")
	ErrSeedMismatch     = errors.New("seed mismatch")
)

// Error constructors with context
func NewNotFoundError(resource string, id string) error {
	return fmt.Errorf("%w: %s with id %s", ErrNotFound, resource, id)
}

func NewValidationError(field string, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidParameter, field, reason)
}

// NewParameterError names the offending parameter and the value it was given.
func NewParameterError(param string, value interface{}, reason string) error {
	return fmt.Errorf("%w: %s=%v: %s", ErrInvalidParameter, param, value, reason)
}

func NewChannelError(name string, reason string) error {
	return fmt.Errorf("%w: %q: %s", ErrInvalidChannel, name, reason)
}

func NewShapeError(what string, want, got int) error {
	return fmt.Errorf("%w: %s: want %d, got %d", ErrShapeMismatch, what, want, got)
}

func NewEmptyInputError(what string) error {
	return fmt.Errorf("%w: %s", ErrEmptyInput, what)
}

func NewFormatError(path string, format string) error {
	return fmt.Errorf("%w: %s (%s)", ErrUnsupportedFormat, path, format)
}

// Error checking helpers
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsInputError(err error) bool {
	return errors.Is(err, ErrEmptyInput) ||
		errors.Is(err, ErrInvalidParameter) ||
		errors.Is(err, ErrInvalidChannel) ||
		errors.Is(err, ErrShapeMismatch) ||
		errors.Is(err, ErrUnsupportedFormat)
}

func IsDeterminismError(err error) bool {
	return errors.Is(err, ErrNonDeterministic) ||
		errors.Is(err, ErrSeedMismatch)
}
