package errors

import (
	"errors"
	"fmt"
)

// ErrorCode is a stable, machine-matchable error category.
type ErrorCode string

const (
	CodeInvalidInput   ErrorCode = "INVALID_INPUT"
	CodeNotFound       ErrorCode = "NOT_FOUND"
	CodeAlreadyExists  ErrorCode = "ALREADY_EXISTS"
	CodeUnauthorized   ErrorCode = "UNAUTHORIZED"
	CodeForbidden      ErrorCode = "FORBIDDEN"
	CodeInternal       ErrorCode = "INTERNAL_ERROR"
	CodeServiceUnavail ErrorCode = "SERVICE_UNAVAILABLE"

	// Execution-brain specific codes (spec §7 taxonomy).
	CodeSchemaError           ErrorCode = "SCHEMA_ERROR"
	CodeTranslationError      ErrorCode = "TRANSLATION_ERROR"
	CodeSandboxViolation      ErrorCode = "SANDBOX_VIOLATION"
	CodeToolError             ErrorCode = "TOOL_ERROR"
	CodeTransactionInProgress ErrorCode = "TRANSACTION_IN_PROGRESS"
	CodeRollbackError         ErrorCode = "ROLLBACK_ERROR"
	CodeUserAbort             ErrorCode = "USER_ABORT"
)

// AppError is the application's boundary error type: a stable code, a
// human message, and an optional wrapped cause.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements errors.Unwrap.
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewInvalidInputError constructs an invalid-input AppError.
func NewInvalidInputError(message string) *AppError {
	return &AppError{
		Code:    CodeInvalidInput,
		Message: message,
	}
}

// NewNotFoundError constructs a not-found AppError.
func NewNotFoundError(message string) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: message,
	}
}

// NewAlreadyExistsError constructs an already-exists AppError.
func NewAlreadyExistsError(message string) *AppError {
	return &AppError{
		Code:    CodeAlreadyExists,
		Message: message,
	}
}

// NewInternalError constructs an internal-error AppError.
func NewInternalError(message string) *AppError {
	return &AppError{
		Code:    CodeInternal,
		Message: message,
	}
}

// NewInternalErrorWithCause constructs an internal-error AppError wrapping cause.
func NewInternalErrorWithCause(message string, cause error) *AppError {
	return &AppError{
		Code:    CodeInternal,
		Message: message,
		Err:     cause,
	}
}

// IsNotFound reports whether err is a not-found AppError.
func IsNotFound(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == CodeNotFound
	}
	return false
}

// IsInvalidInput reports whether err is an invalid-input AppError.
func IsInvalidInput(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == CodeInvalidInput
	}
	return false
}

// NewSchemaError wraps a malformed oracle output or unknown tool/action reference.
// Never retried — surfaces immediately (spec §7).
func NewSchemaError(message string) *AppError {
	return &AppError{Code: CodeSchemaError, Message: message}
}

// NewTranslationError wraps an unreachable or repeatedly-invalid oracle call.
// The router's fallback cascade (C12) is attempted before this surfaces.
func NewTranslationError(message string, cause error) *AppError {
	return &AppError{Code: CodeTranslationError, Message: message, Err: cause}
}

// NewSandboxViolation wraps a breached sandbox boundary (path outside the allowed
// roots, write under a read-only root, disallowed binary). A subprocess timeout
// is reported as a plain error, not as a sandbox violation.
// Never retried; propagates as a fatal exit (code 3).
func NewSandboxViolation(message string) *AppError {
	return &AppError{Code: CodeSandboxViolation, Message: message}
}

// NewSandboxViolationError is an alias for NewSandboxViolation.
func NewSandboxViolationError(message string) *AppError {
	return NewSandboxViolation(message)
}

// NewToolError wraps a categorized tool-invocation failure (see failure package taxonomy).
func NewToolError(message string, cause error) *AppError {
	return &AppError{Code: CodeToolError, Message: message, Err: cause}
}

// NewTransactionInProgressError signals orchestrator misuse: a second transaction
// was opened while one was already in_progress.
func NewTransactionInProgressError(txnID string) *AppError {
	return &AppError{Code: CodeTransactionInProgress, Message: fmt.Sprintf("transaction %s already in progress", txnID)}
}

// NewRollbackError wraps a failed inverse operation. Collected, never raised mid-rollback.
func NewRollbackError(message string, cause error) *AppError {
	return &AppError{Code: CodeRollbackError, Message: message, Err: cause}
}

// NewUserAbortError signals the user refused a confirmation or stopped an iteration.
// Maps to exit code 4.
func NewUserAbortError(message string) *AppError {
	return &AppError{Code: CodeUserAbort, Message: message}
}

// IsSandboxViolation reports whether err is a sandbox boundary violation.
func IsSandboxViolation(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == CodeSandboxViolation
	}
	return false
}

// IsUserAbort reports whether err represents a user-initiated abort.
func IsUserAbort(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == CodeUserAbort
	}
	return false
}
