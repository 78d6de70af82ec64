package errors

import (
	"fmt"
)

// Category represents the type of error.
type Category string

const (
	CategoryTransport     Category = "transport"
	CategoryFrame         Category = "frame"
	CategoryCipher        Category = "cipher"
	CategorySerialization Category = "serialization"
	CategoryHandshake     Category = "handshake"
	CategoryPaint         Category = "paint"
	CategoryConfig        Category = "config"
	CategoryCLI           Category = "cli"
)

// MiradaError is a structured error with a stable code, a suggestion and
// a documentation link.
type MiradaError struct {
	// Code is a unique error identifier (e.g., "E061").
	Code string

	// Category is the error type (transport, handshake, etc.).
	Category Category

	// Message is a short description of the error.
	Message string

	// Detail is a longer explanation of the error.
	Detail string

	// Suggestion is a hint on how to fix the error.
	Suggestion string

	// DocURL is a link to documentation about this error.
	DocURL string

	// Wrapped is the underlying error, if any.
	Wrapped error
}

// Error implements the error interface.
func (e *MiradaError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Message
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *MiradaError) Unwrap() error {
	return e.Wrapped
}

// WithSuggestion adds a fix suggestion to the error.
func (e *MiradaError) WithSuggestion(s string) *MiradaError {
	e.Suggestion = s
	return e
}

// WithDetail adds a detailed explanation to the error.
func (e *MiradaError) WithDetail(d string) *MiradaError {
	e.Detail = d
	return e
}

// WithDetailf adds a formatted detailed explanation to the error.
func (e *MiradaError) WithDetailf(format string, args ...any) *MiradaError {
	e.Detail = fmt.Sprintf(format, args...)
	return e
}

// Wrap wraps another error.
func (e *MiradaError) Wrap(err error) *MiradaError {
	e.Wrapped = err
	return e
}

// Fatal reports whether the error terminates the connection. Frame,
// cipher and handshake faults cannot be recovered mid-stream;
// serialization and paint faults are scoped to a single packet.
func (e *MiradaError) Fatal() bool {
	switch e.Category {
	case CategorySerialization, CategoryPaint:
		return false
	default:
		return true
	}
}

// New creates a MiradaError from a registered error code.
func New(code string) *MiradaError {
	template, ok := registry[code]
	if !ok {
		return &MiradaError{
			Code:    code,
			Message: "Unknown error",
		}
	}
	return &MiradaError{
		Code:     code,
		Category: template.Category,
		Message:  template.Message,
		Detail:   template.Detail,
		DocURL:   template.DocURL,
	}
}

// Newf creates a new MiradaError with a formatted message (no code).
func Newf(category Category, format string, args ...any) *MiradaError {
	return &MiradaError{
		Category: category,
		Message:  fmt.Sprintf(format, args...),
	}
}

// FromError wraps a standard error in a MiradaError.
func FromError(err error, code string) *MiradaError {
	if err == nil {
		return nil
	}
	if me, ok := err.(*MiradaError); ok {
		return me
	}
	return New(code).Wrap(err)
}
