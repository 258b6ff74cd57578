package operations

import (
	"errors"
	"fmt"

	apperrors "panelrecon/internal/errors"
)

// ErrorType represents the type of operation error
type ErrorType string

const (
	ErrorTypeDependency   ErrorType = "dependency"
	ErrorTypeExecution    ErrorType = "execution"
	ErrorTypeCancellation ErrorType = "cancellation"
	ErrorTypeFatal        ErrorType = "fatal"
	ErrorTypeInvalidState ErrorType = "invalid_state"
)

// OperationError is an error raised while running a step
type OperationError struct {
	Type    ErrorType              `json:"type"`
	Step    string                 `json:"step,omitempty"`
	Message string                 `json:"message"`
	Cause   error                  `json:"-"`
	Context map[string]interface{} `json:"context,omitempty"`
}

func (e *OperationError) Error() string {
	if e == nil {
		return "unknown operation error"
	}
	msg := e.Message
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	if e.Step != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Type, e.Step, msg)
	}
	return fmt.Sprintf("[%s] %s", e.Type, msg)
}

func (e *OperationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// NewDependencyError creates a new dependency error
func NewDependencyError(step, dependsOn, message string) *OperationError {
	return &OperationError{
		Type:    ErrorTypeDependency,
		Step:    step,
		Message: message,
		Context: map[string]interface{}{
			"depends_on": dependsOn,
		},
	}
}

// NewExecutionError creates a new execution error
func NewExecutionError(step string, cause error) *OperationError {
	return &OperationError{
		Type:    ErrorTypeExecution,
		Step:    step,
		Message: "step execution failed",
		Cause:   cause,
	}
}

// NewCancellationError creates a new cancellation error
func NewCancellationError(step string, cause error) *OperationError {
	return &OperationError{
		Type:    ErrorTypeCancellation,
		Step:    step,
		Message: "run was cancelled",
		Cause:   cause,
	}
}

// NewFatalError creates an error that aborts the whole run
func NewFatalError(step, message string, cause error) *OperationError {
	return &OperationError{
		Type:    ErrorTypeFatal,
		Step:    step,
		Message: message,
		Cause:   cause,
	}
}

// NewInvalidStateError reports a step running without its inputs
func NewInvalidStateError(step, message string) *OperationError {
	return &OperationError{
		Type:    ErrorTypeInvalidState,
		Step:    step,
		Message: message,
	}
}

// GetErrorType returns the operation error type of err
func GetErrorType(err error) ErrorType {
	var opErr *OperationError
	if errors.As(err, &opErr) {
		return opErr.Type
	}
	if err == nil {
		return ""
	}
	return ErrorTypeExecution
}

// IsFatal reports whether err must abort the run, either because a step
// declared it fatal or because it carries a panel invariant violation
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	return GetErrorType(err) == ErrorTypeFatal || apperrors.IsInvariantViolation(err)
}

// WrapError attaches a step ID to err, preserving existing operation errors
func WrapError(err error, step string) error {
	if err == nil {
		return nil
	}
	var opErr *OperationError
	if errors.As(err, &opErr) {
		if opErr.Step == "" {
			opErr.Step = step
		}
		return err
	}
	if IsFatal(err) {
		return NewFatalError(step, "fatal step error", err)
	}
	return NewExecutionError(step, err)
}
