package errors

import (
	"context"
	"errors"
	"fmt"
)

// ErrorCode represents a unique error code for each error type
type ErrorCode string

const (
	// General errors
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	ErrCodeCanceled ErrorCode = "CANCELED"

	// Run errors. Each ingestion ends in exactly one of these or success.
	ErrCodeStructural    ErrorCode = "STRUCTURAL_ERROR"
	ErrCodeStorage       ErrorCode = "STORAGE_ERROR"
	ErrCodeConfiguration ErrorCode = "CONFIGURATION_ERROR"

	// Source errors
	ErrCodeSourceNotFound    ErrorCode = "SOURCE_NOT_FOUND"
	ErrCodeFileTooLarge      ErrorCode = "FILE_TOO_LARGE"
	ErrCodeUnsupportedFormat ErrorCode = "UNSUPPORTED_FORMAT"

	// Queue errors
	ErrCodeQueueError ErrorCode = "QUEUE_ERROR"
)

// Process exit statuses used by the CLI.
const (
	ExitFailure       = 1
	ExitConfiguration = 2
	ExitStructural    = 3
	ExitStorage       = 4
	ExitCanceled      = 130
)

// AppError represents a structured application error
type AppError struct {
	Code     ErrorCode              `json:"code"`
	Message  string                 `json:"message"`
	ExitCode int                    `json:"-"`
	Details  map[string]interface{} `json:"details,omitempty"`
	Err      error                  `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s - %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetails adds additional context to the error
func (e *AppError) WithDetails(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new AppError
func New(code ErrorCode, message string, exitCode int) *AppError {
	return &AppError{
		Code:     code,
		Message:  message,
		ExitCode: exitCode,
	}
}

// Wrap wraps an existing error with AppError context
func Wrap(err error, code ErrorCode, message string, exitCode int) *AppError {
	return &AppError{
		Code:     code,
		Message:  message,
		ExitCode: exitCode,
		Err:      err,
	}
}

// Common error constructors

func Internal(message string) *AppError {
	return New(ErrCodeInternal, message, ExitFailure)
}

func InternalWrap(err error, message string) *AppError {
	return Wrap(err, ErrCodeInternal, message, ExitFailure)
}

func NotFound(message string) *AppError {
	return New(ErrCodeNotFound, message, ExitFailure)
}

func Canceled(err error) *AppError {
	return Wrap(err, ErrCodeCanceled, "ingestion canceled", ExitCanceled)
}

// Run errors

// Structural reports a source that is not a well-formed report.
func Structural(err error) *AppError {
	return Wrap(err, ErrCodeStructural, "source is not a well-formed report", ExitStructural)
}

func StructuralMessage(message string) *AppError {
	return New(ErrCodeStructural, message, ExitStructural)
}

// Storage reports a failure opening, writing or committing the target store.
func Storage(err error, message string) *AppError {
	return Wrap(err, ErrCodeStorage, message, ExitStorage)
}

// Configuration reports invalid settings; raised before any I/O.
func Configuration(message string) *AppError {
	return New(ErrCodeConfiguration, message, ExitConfiguration)
}

// Source errors

func SourceNotFound(path string) *AppError {
	return New(ErrCodeSourceNotFound,
		fmt.Sprintf("source not found: %s", path),
		ExitFailure)
}

func FileTooLarge(maxSize int64) *AppError {
	return New(ErrCodeFileTooLarge,
		fmt.Sprintf("file size exceeds maximum allowed size of %d MB", maxSize),
		ExitFailure)
}

func UnsupportedFormat(format string) *AppError {
	return New(ErrCodeUnsupportedFormat,
		fmt.Sprintf("unsupported file format: %s", format),
		ExitFailure)
}

// Queue errors

func QueueError(err error, message string) *AppError {
	return Wrap(err, ErrCodeQueueError, message, ExitFailure)
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// GetAppError extracts AppError from error chain
func GetAppError(err error) (*AppError, bool) {
	var appErr *AppError
	ok := errors.As(err, &appErr)
	return appErr, ok
}

// CodeOf returns the code of the first AppError in the chain, or
// ErrCodeInternal when there is none.
func CodeOf(err error) ErrorCode {
	if appErr, ok := GetAppError(err); ok {
		return appErr.Code
	}
	return ErrCodeInternal
}

// ExitCodeOf maps an error to a process exit status.
func ExitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	if appErr, ok := GetAppError(err); ok && appErr.ExitCode != 0 {
		return appErr.ExitCode
	}
	if errors.Is(err, context.Canceled) {
		return ExitCanceled
	}
	return ExitFailure
}

// Is reports whether err carries an AppError with the given code.
func Is(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}
