package errors

import (
	"errors"
	"fmt"
)

// Common error types for the movie ratings client
var (
	// Authentication errors
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSessionMissing     = errors.New("no active session")
	ErrEmailNotConfirmed  = errors.New("email not confirmed")

	// Request errors
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrDenied     = errors.New("denied by backend policy")
	ErrConflict   = errors.New("conflict")

	// Transport errors
	ErrTransport = errors.New("backend unreachable")

	// General errors
	ErrInternal    = errors.New("internal error")
	ErrUnsupported = errors.New("unsupported operation")
)

// ErrorKind groups errors into the categories the UI treats differently.
type ErrorKind string

const (
	KindNone        ErrorKind = ""
	KindTransport   ErrorKind = "transport"
	KindNotFound    ErrorKind = "not_found"
	KindValidation  ErrorKind = "validation"
	KindDenied      ErrorKind = "denied"
	KindConflict    ErrorKind = "conflict"
	KindCredentials ErrorKind = "credentials"
	KindInternal    ErrorKind = "internal"
)

// ValidationError names the field that failed local validation.
type ValidationError struct {
	Field   string
	Message string
}

func (v *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

func (v *ValidationError) Unwrap() error {
	return ErrValidation
}

// NewValidationError creates a ValidationError for field
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// Kind classifies err
func Kind(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrEmailNotConfirmed):
		return KindCredentials
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrDenied), errors.Is(err, ErrSessionMissing):
		return KindDenied
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrTransport):
		return KindTransport
	default:
		return KindInternal
	}
}

// UserMessage returns the text shown to the user for a failed action
func UserMessage(err error) string {
	switch Kind(err) {
	case KindNone:
		return ""
	case KindValidation:
		var v *ValidationError
		if errors.As(err, &v) {
			return v.Message
		}
		return "Please check the form and try again"
	case KindCredentials:
		if errors.Is(err, ErrEmailNotConfirmed) {
			return "Please confirm your email address before signing in"
		}
		return "Invalid email or password"
	case KindNotFound:
		return "The requested item does not exist"
	case KindDenied:
		return "You are not allowed to perform this action"
	case KindConflict:
		return "That already exists"
	case KindTransport:
		return "The service is unreachable right now, please try again"
	default:
		return "Something went wrong, please try again"
	}
}

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
