package schema

import (
	"errors"
	"fmt"
)

// Error codes for structured error reporting.
const (
	ErrCodeValidation          = "VALIDATION_ERROR"
	ErrCodeExecution           = "EXECUTION_ERROR"
	ErrCodeMissingBinding      = "MISSING_BINDING"
	ErrCodeMissingContextValue = "MISSING_CONTEXT_VALUE"
	ErrCodeResourceCreation    = "RESOURCE_CREATION"
	ErrCodeUnregisteredStep    = "UNREGISTERED_STEP"
	ErrCodeIO                  = "IO_ERROR"
)

// EngineError is the structured error type for all engine operations.
type EngineError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	StepID  string         `json:"step_id,omitempty"`
	Plugin  string         `json:"plugin,omitempty"`
	Cause   error          `json:"-"`
}

func (e *EngineError) Error() string {
	switch {
	case e.StepID != "" && e.Plugin != "":
		return fmt.Sprintf("[%s] step %s (%s): %s", e.Code, e.StepID, e.Plugin, e.Message)
	case e.Plugin != "":
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Plugin, e.Message)
	case e.StepID != "":
		return fmt.Sprintf("[%s] step %s: %s", e.Code, e.StepID, e.Message)
	default:
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
}

func (e *EngineError) Unwrap() error {
	return e.Cause
}

// NewError creates a new EngineError.
func NewError(code, message string) *EngineError {
	return &EngineError{Code: code, Message: message}
}

// NewErrorf creates a new EngineError with a formatted message.
func NewErrorf(code, format string, args ...any) *EngineError {
	return &EngineError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithStep attaches a step ID to the error.
func (e *EngineError) WithStep(stepID string) *EngineError {
	e.StepID = stepID
	return e
}

// WithPlugin attaches the plugin id of the failing step.
func (e *EngineError) WithPlugin(plugin string) *EngineError {
	e.Plugin = plugin
	return e
}

// WithCause attaches an underlying cause.
func (e *EngineError) WithCause(err error) *EngineError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *EngineError) WithDetails(details map[string]any) *EngineError {
	e.Details = details
	return e
}

// IsCode reports whether err is an EngineError with the given code,
// at any depth of the unwrap chain.
func IsCode(err error, code string) bool {
	var ee *EngineError
	for errors.As(err, &ee) {
		if ee.Code == code {
			return true
		}
		err = ee.Cause
		if err == nil {
			return false
		}
		ee = nil
	}
	return false
}
