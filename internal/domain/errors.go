package domain

import (
	"errors"
	"fmt"
)

// Directory and credential errors
var (
	ErrValidation         = errors.New("validation failed")
	ErrDuplicateEmail     = errors.New("email already registered")
	ErrNotFound           = errors.New("not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Reset and rate limit errors
var (
	ErrInvalidReset       = errors.New("invalid password reset")
	ErrRateLimitExceeded  = errors.New("rate limit exceeded")
	ErrResetUndeliverable = errors.New("password reset code could not be delivered")
)

// Access errors
var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("not a member")
	ErrSlugTaken       = errors.New("slug already taken")
)

// ValidationError carries a message that is safe to show to the user.
type ValidationError struct {
	Field   string
	Message string
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// RateLimitError reports a breached daily budget for one event kind.
type RateLimitError struct {
	Event string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("Sorry, too many %s errors. Please try again tomorrow.", e.Event)
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimitExceeded
}

// UndeliverableResetError is returned when a reset ticket was created but
// its code could not be sent.
type UndeliverableResetError struct {
	TicketID string
	Err      error
}

func (e *UndeliverableResetError) Error() string {
	if e.Err == nil {
		return ErrResetUndeliverable.Error()
	}
	return fmt.Sprintf("%s: %v", ErrResetUndeliverable, e.Err)
}

func (e *UndeliverableResetError) Is(target error) bool {
	return target == ErrResetUndeliverable
}

func (e *UndeliverableResetError) Unwrap() error {
	return e.Err
}
