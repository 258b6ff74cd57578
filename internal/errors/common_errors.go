package errors

import (
	"errors"
	"fmt"
)

// ErrorType represents the type of error
type ErrorType string

const (
	ErrTypeSchema       ErrorType = "SCHEMA"
	ErrTypeUnresolvable ErrorType = "UNRESOLVABLE_INDEX"
	ErrTypeInvariant    ErrorType = "INVARIANT"
	ErrTypeEmptyInput   ErrorType = "EMPTY_INPUT"
	ErrTypeParsing      ErrorType = "PARSING"
	ErrTypeStorage      ErrorType = "STORAGE"
	ErrTypeValidation   ErrorType = "VALIDATION"
	ErrTypeNotFound     ErrorType = "NOT_FOUND"
	ErrTypeConfig       ErrorType = "CONFIG"
)

// AppError represents an application-specific error
type AppError struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap allows errors.Is and errors.As to work with AppError
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewAppError creates a new application error
func NewAppError(errType ErrorType, message string, cause error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// Helper functions for common error types

// NewSchemaError reports a detector input missing required columns
func NewSchemaError(message string) *AppError {
	return NewAppError(ErrTypeSchema, message, nil)
}

// NewUnresolvableError reports a record that does not map onto a panel row
func NewUnresolvableError(message string) *AppError {
	return NewAppError(ErrTypeUnresolvable, message, nil)
}

// NewInvariantViolation reports a broken panel invariant. It is run-fatal.
func NewInvariantViolation(message string) *AppError {
	return NewAppError(ErrTypeInvariant, message, nil)
}

// NewEmptyInputWarning reports a missing or unreadable detector source
func NewEmptyInputWarning(message string, cause error) *AppError {
	return NewAppError(ErrTypeEmptyInput, message, cause)
}

// NewParsingError creates a parsing-related error
func NewParsingError(message string, cause error) *AppError {
	return NewAppError(ErrTypeParsing, message, cause)
}

// NewStorageError creates a storage-related error
func NewStorageError(message string, cause error) *AppError {
	return NewAppError(ErrTypeStorage, message, cause)
}

// NewAppValidationError creates a validation error for AppError type
func NewAppValidationError(message string) *AppError {
	return NewAppError(ErrTypeValidation, message, nil)
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string) *AppError {
	return NewAppError(ErrTypeNotFound, fmt.Sprintf("%s not found", resource), nil)
}

// NewConfigError creates a configuration error
func NewConfigError(message string, cause error) *AppError {
	return NewAppError(ErrTypeConfig, message, cause)
}

// IsType reports whether err wraps an AppError of the given type
func IsType(err error, errType ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == errType
	}
	return false
}

// IsInvariantViolation reports whether err is a run-fatal invariant violation
func IsInvariantViolation(err error) bool {
	return IsType(err, ErrTypeInvariant)
}

// TypeOf returns the AppError type of err, or an empty type
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ""
}
