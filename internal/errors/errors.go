package errors

import (
	stderrors "errors"
	"fmt"

	"eegprep/domain/core"
)

// AppError represents a structured application error
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates a new AppError
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return &AppError{
			Code:    appErr.Code,
			Message: message,
			Cause:   appErr,
		}
	}
	return &AppError{
		Code:    "INTERNAL_ERROR",
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an error with formatted additional context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// WithCode adds an error code to an existing error
func WithCode(code string, err error) error {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return &AppError{
			Code:    code,
			Message: appErr.Message,
			Cause:   appErr.Cause,
		}
	}
	return &AppError{
		Code:    code,
		Message: err.Error(),
		Cause:   err,
	}
}

// GetCode returns the outermost AppError code in the chain, falling back to
// the code of a wrapped domain sentinel, otherwise "UNKNOWN".
func GetCode(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	if code := CodeFor(err); code != "" {
		return code
	}
	return "UNKNOWN"
}

// CodeFor maps domain sentinels to error codes. Unknown errors map to "".
func CodeFor(err error) string {
	switch {
	case err == nil:
		return ""
	case stderrors.Is(err, core.ErrNotFound):
		return CodeNotFound
	case stderrors.Is(err, core.ErrEmptyInput):
		return CodeEmptyInput
	case stderrors.Is(err, core.ErrInvalidParameter):
		return CodeInvalidParameter
	case stderrors.Is(err, core.ErrInvalidChannel):
		return CodeInvalidChannel
	case stderrors.Is(err, core.ErrShapeMismatch):
		return CodeShapeMismatch
	case stderrors.Is(err, core.ErrUnsupportedFormat):
		return CodeUnsupportedFormat
	case core.IsDeterminismError(err):
		return CodeNonDeterministic
	}
	return ""
}

// Predefined error codes
const (
	CodeConfigInvalid = "CONFIG_INVALID"
	CodeDatabaseError = "DATABASE_ERROR"
	CodeNotFound      = "NOT_FOUND"
	CodeInvalidInput  = "INVALID_INPUT"

	CodeStageFailed       = "STAGE_FAILED"
	CodeEmptyInput        = "EMPTY_INPUT"
	CodeInvalidParameter  = "INVALID_PARAMETER"
	CodeInvalidChannel    = "INVALID_CHANNEL"
	CodeShapeMismatch     = "SHAPE_MISMATCH"
	CodeUnsupportedFormat = "UNSUPPORTED_FORMAT"
	CodeNonDeterministic  = "NON_DETERMINISTIC"
)

// Common error constructors
func ConfigInvalid(message string) *AppError {
	return New(CodeConfigInvalid, message)
}

func InvalidInput(message string) *AppError {
	return New(CodeInvalidInput, message)
}

// StageFailed wraps a pipeline stage failure. The message names the stage and
// the cause keeps the domain sentinel reachable through errors.Is.
func StageFailed(stage string, cause error) *AppError {
	return &AppError{
		Code:    CodeStageFailed,
		Message: fmt.Sprintf("stage %s failed", stage),
		Cause:   cause,
	}
}
