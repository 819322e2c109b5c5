package errors

import (
	"fmt"
)

// Error types
const (
	// ErrInvalidGrant is returned when an authorization code or refresh token
	// is unknown, expired, bound to a different client, or when a refresh
	// requests a scope outside the originally granted set
	ErrInvalidGrant = "invalid_grant"

	// ErrInvalidToken is returned when an access token is unknown, expired,
	// or fails the resource-indicator check during verification
	ErrInvalidToken = "invalid_token"

	// ErrInvalidTarget is returned when a resource indicator is missing or
	// does not match the value bound earlier in the grant
	ErrInvalidTarget = "invalid_target"

	// ErrInvalidClient is returned when a client id is unknown to the registry
	ErrInvalidClient = "invalid_client"

	// ErrConfiguration is returned when required configuration is missing or
	// malformed, such as an absent encryption key for an encrypted record
	ErrConfiguration = "configuration"

	// ErrIO is returned when a registry or vault read/write fails
	ErrIO = "io"
)

// Error represents an error in the application
type Error struct {
	// Type is the error type
	Type string

	// Message is the error message
	Message string

	// Cause is the underlying error
	Cause error
}

// Error returns the error message
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new error
func NewError(errorType, message string, cause error) *Error {
	return &Error{
		Type:    errorType,
		Message: message,
		Cause:   cause,
	}
}

// NewInvalidGrantError creates a new invalid grant error
func NewInvalidGrantError(message string, cause error) *Error {
	return NewError(ErrInvalidGrant, message, cause)
}

// NewInvalidTokenError creates a new invalid token error
func NewInvalidTokenError(message string, cause error) *Error {
	return NewError(ErrInvalidToken, message, cause)
}

// NewInvalidTargetError creates a new invalid target error
func NewInvalidTargetError(message string, cause error) *Error {
	return NewError(ErrInvalidTarget, message, cause)
}

// NewInvalidClientError creates a new invalid client error
func NewInvalidClientError(message string, cause error) *Error {
	return NewError(ErrInvalidClient, message, cause)
}

// NewConfigurationError creates a new configuration error
func NewConfigurationError(message string, cause error) *Error {
	return NewError(ErrConfiguration, message, cause)
}

// NewIOError creates a new I/O error
func NewIOError(message string, cause error) *Error {
	return NewError(ErrIO, message, cause)
}

// IsInvalidGrant checks if the error is an invalid grant error
func IsInvalidGrant(err error) bool {
	e, ok := err.(*Error)
	return ok && e.Type == ErrInvalidGrant
}

// IsInvalidToken checks if the error is an invalid token error
func IsInvalidToken(err error) bool {
	e, ok := err.(*Error)
	return ok && e.Type == ErrInvalidToken
}

// IsInvalidTarget checks if the error is an invalid target error
func IsInvalidTarget(err error) bool {
	e, ok := err.(*Error)
	return ok && e.Type == ErrInvalidTarget
}

// IsInvalidClient checks if the error is an invalid client error
func IsInvalidClient(err error) bool {
	e, ok := err.(*Error)
	return ok && e.Type == ErrInvalidClient
}

// IsConfiguration checks if the error is a configuration error
func IsConfiguration(err error) bool {
	e, ok := err.(*Error)
	return ok && e.Type == ErrConfiguration
}

// IsIO checks if the error is an I/O error
func IsIO(err error) bool {
	e, ok := err.(*Error)
	return ok && e.Type == ErrIO
}
