package errors

import (
	"errors"
	"fmt"
)

// Error codes for programmatic handling.
const (
	CodeConfigInvalid       = "CONFIG_INVALID"
	CodeProtectedBranch     = "PROTECTED_BRANCH"
	CodeUnknownNamespace    = "UNKNOWN_NAMESPACE"
	CodeNotFound            = "NOT_FOUND"
	CodeValidation          = "VALIDATION_FAILED"
	CodeTransientConnection = "TRANSIENT_CONNECTION"
	CodeBranchNotFound      = "BRANCH_NOT_FOUND"
	CodeInconsistentState   = "INCONSISTENT_STATE"
	CodeMigration           = "MIGRATION_FAILED"
	CodeMigrationApplied    = "MIGRATION_APPLIED"
	CodeIndexUnavailable    = "INDEX_UNAVAILABLE"
)

// MemgitError is a structured error with a code and actionable suggestion.
type MemgitError struct {
	Code       string // machine-readable code (e.g. PROTECTED_BRANCH)
	Message    string // human-readable description
	Suggestion string // actionable fix
	Err        error  // wrapped underlying error
}

// Error implements the error interface.
func (e *MemgitError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap supports errors.Is / errors.As.
func (e *MemgitError) Unwrap() error {
	return e.Err
}

// New creates a MemgitError with the given code and message.
func New(code, message string) *MemgitError {
	return &MemgitError{Code: code, Message: message}
}

// Newf creates a MemgitError with a formatted message.
func Newf(code, format string, args ...interface{}) *MemgitError {
	return &MemgitError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a MemgitError wrapping an existing error.
func Wrap(code, message string, err error) *MemgitError {
	return &MemgitError{Code: code, Message: message, Err: err}
}

// WithSuggestion returns the error with the suggestion set.
func (e *MemgitError) WithSuggestion(suggestion string) *MemgitError {
	e.Suggestion = suggestion
	return e
}

// Is checks whether target matches this error's code.
func (e *MemgitError) Is(target error) bool {
	var me *MemgitError
	if errors.As(target, &me) {
		return e.Code == me.Code
	}
	return false
}

// AsCode extracts the MemgitError code from an error, or "" if not a MemgitError.
func AsCode(err error) string {
	var me *MemgitError
	if errors.As(err, &me) {
		return me.Code
	}
	return ""
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code string) bool {
	var me *MemgitError
	if errors.As(err, &me) {
		return me.Code == code
	}
	return false
}

// Suggestion extracts the suggestion from an error, or "" if not a MemgitError.
func Suggestion(err error) string {
	var me *MemgitError
	if errors.As(err, &me) {
		return me.Suggestion
	}
	return ""
}
