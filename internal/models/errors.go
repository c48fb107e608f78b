package models

import (
	"errors"
	"fmt"
)

// Common errors used throughout the application
var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrOrderNotFound     = errors.New("order not found")
	ErrBatchNotFound     = errors.New("batch not found")
	ErrSessionClosed     = errors.New("session is ended or cancelled")
	ErrInsufficientStock = errors.New("insufficient batch stock")
)

// ValidationError indicates bad input. No mutation is applied when it is returned.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError creates a validation error for a named input field
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// InvalidTransitionError indicates an illegal session status change.
type InvalidTransitionError struct {
	From SessionStatus
	To   SessionStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid session transition: %s -> %s", e.From, e.To)
}

// ConversionError indicates that order creation failed inside session
// conversion. The session stays ENDED but unconverted and the operation
// can be retried.
type ConversionError struct {
	SessionID int64
	Err       error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("failed to convert session %d to order: %v", e.SessionID, e.Err)
}

func (e *ConversionError) Unwrap() error {
	return e.Err
}
