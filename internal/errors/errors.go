package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorType represents the category of a load failure
type ErrorType string

const (
	// ErrorTypeSchema means a required column is missing
	ErrorTypeSchema ErrorType = "schema"
	// ErrorTypeType means a value does not match its declared type
	ErrorTypeType ErrorType = "type"
	// ErrorTypeCalendarRange means a requested day is not a trading day
	ErrorTypeCalendarRange ErrorType = "calendar_range"
	// ErrorTypeSourceResolution means a deferred source could not be bound or executed
	ErrorTypeSourceResolution ErrorType = "source_resolution"
)

// LoadError is the single error type returned by the loader core.
// Every LoadError is fatal: loads are never retried or partially returned.
type LoadError struct {
	Type    ErrorType              `json:"type"`
	Column  string                 `json:"column,omitempty"`
	Message string                 `json:"message"`
	Cause   error                  `json:"-"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface
func (e *LoadError) Error() string {
	if e == nil {
		return "unknown load error"
	}
	msg := fmt.Sprintf("[%s] %s", e.Type, e.Message)
	if e.Column != "" {
		msg = fmt.Sprintf("[%s] column %q: %s", e.Type, e.Column, e.Message)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying error
func (e *LoadError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is matches any LoadError of the same type, so the package sentinels work
// with errors.Is.
func (e *LoadError) Is(target error) bool {
	t, ok := target.(*LoadError)
	if !ok || e == nil || t == nil {
		return false
	}
	return t.Message == "" && t.Type == e.Type
}

// WithContext adds context to the error
func (e *LoadError) WithContext(key string, value interface{}) *LoadError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// Sentinels for errors.Is
var (
	ErrSchema           = &LoadError{Type: ErrorTypeSchema}
	ErrType             = &LoadError{Type: ErrorTypeType}
	ErrCalendarRange    = &LoadError{Type: ErrorTypeCalendarRange}
	ErrSourceResolution = &LoadError{Type: ErrorTypeSourceResolution}
)

// NewSchemaError creates a missing-column error
func NewSchemaError(column, message string) *LoadError {
	return &LoadError{
		Type:    ErrorTypeSchema,
		Column:  column,
		Message: message,
	}
}

// NewTypeError creates a type mismatch error
func NewTypeError(column, message string, cause error) *LoadError {
	return &LoadError{
		Type:    ErrorTypeType,
		Column:  column,
		Message: message,
		Cause:   cause,
	}
}

// NewCalendarRangeError creates an invalid calendar range error
func NewCalendarRangeError(message string) *LoadError {
	return &LoadError{
		Type:    ErrorTypeCalendarRange,
		Message: message,
	}
}

// NewSourceResolutionError wraps a failure to bind or run a deferred source
func NewSourceResolutionError(message string, cause error) *LoadError {
	return &LoadError{
		Type:    ErrorTypeSourceResolution,
		Message: message,
		Cause:   cause,
	}
}

// GetErrorType returns the type of the error, or "" if it is not a LoadError
func GetErrorType(err error) ErrorType {
	var lErr *LoadError
	if stderrors.As(err, &lErr) {
		return lErr.Type
	}
	return ""
}

// IsSchemaError reports whether err is a SchemaError
func IsSchemaError(err error) bool { return GetErrorType(err) == ErrorTypeSchema }

// IsTypeError reports whether err is a TypeError
func IsTypeError(err error) bool { return GetErrorType(err) == ErrorTypeType }

// IsCalendarRangeError reports whether err is an InvalidCalendarRangeError
func IsCalendarRangeError(err error) bool { return GetErrorType(err) == ErrorTypeCalendarRange }

// IsSourceResolutionError reports whether err is a SourceResolutionError
func IsSourceResolutionError(err error) bool {
	return GetErrorType(err) == ErrorTypeSourceResolution
}
