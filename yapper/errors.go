package yapper

import (
	"errors"
	"fmt"
)

// ErrorCode represents a categorized error type.
type ErrorCode int

const (
	ErrorUnknown ErrorCode = iota

	// Protocol errors carried by server "error" frames
	ErrorUnauthorized
	ErrorBadRequest
	ErrorNotFound
	ErrorRateLimited
	ErrorInternalServer

	// Client-side errors
	ErrorAuthMissing
	ErrorConnection
	ErrorDisconnected
	ErrorFetch
	ErrorEmitDropped
	ErrorTimeout
	ErrorInvalidConfig
	ErrorSerialization
	ErrorClosed
)

// String returns the string representation of an ErrorCode.
func (e ErrorCode) String() string {
	switch e {
	case ErrorUnknown:
		return "unknown"
	case ErrorUnauthorized:
		return "unauthorized"
	case ErrorBadRequest:
		return "bad_request"
	case ErrorNotFound:
		return "not_found"
	case ErrorRateLimited:
		return "rate_limited"
	case ErrorInternalServer:
		return "internal_error"
	case ErrorAuthMissing:
		return "auth_missing"
	case ErrorConnection:
		return "connection_error"
	case ErrorDisconnected:
		return "disconnected"
	case ErrorFetch:
		return "fetch_error"
	case ErrorEmitDropped:
		return "emit_dropped"
	case ErrorTimeout:
		return "timeout"
	case ErrorInvalidConfig:
		return "invalid_config"
	case ErrorSerialization:
		return "serialization_error"
	case ErrorClosed:
		return "closed"
	default:
		return fmt.Sprintf("unknown_code_%d", e)
	}
}

// ParseErrorCode converts a protocol error code string to ErrorCode.
func ParseErrorCode(code string) ErrorCode {
	switch code {
	case "unauthorized":
		return ErrorUnauthorized
	case "bad_request":
		return ErrorBadRequest
	case "not_found":
		return ErrorNotFound
	case "rate_limited":
		return ErrorRateLimited
	case "internal_error":
		return ErrorInternalServer
	default:
		return ErrorUnknown
	}
}

// YapperError is a structured error with code and context.
type YapperError struct {
	Code    ErrorCode
	Message string
	Wrapped error
}

// Error implements the error interface.
func (e *YapperError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: %s (wrapped: %v)", e.Code, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error for errors.Unwrap support.
func (e *YapperError) Unwrap() error {
	return e.Wrapped
}

// Is reports whether target is a YapperError with the same code.
func (e *YapperError) Is(target error) bool {
	t, ok := target.(*YapperError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

var (
	// ErrAuthMissing is returned by Connect when no token is available.
	ErrAuthMissing = NewError(ErrorAuthMissing, "no auth token available")
	// ErrClosed is returned when using a session or view after Close.
	ErrClosed = NewError(ErrorClosed, "closed")
)

// NewError creates a new YapperError with the given code and message.
func NewError(code ErrorCode, message string) *YapperError {
	return &YapperError{
		Code:    code,
		Message: message,
	}
}

// WrapError wraps an existing error with a YapperError.
func WrapError(code ErrorCode, message string, err error) *YapperError {
	return &YapperError{
		Code:    code,
		Message: message,
		Wrapped: err,
	}
}

// FromProtocolError converts a server error payload to YapperError.
func FromProtocolError(e *ProtocolError) *YapperError {
	if e == nil {
		return nil
	}
	return &YapperError{
		Code:    ParseErrorCode(e.Code),
		Message: e.Message,
	}
}

// IsProtocolError checks if an error came from the server.
func IsProtocolError(err error) bool {
	var ye *YapperError
	if !errors.As(err, &ye) {
		return false
	}
	return ye.Code >= ErrorUnauthorized && ye.Code <= ErrorInternalServer
}

// IsConnectionError checks if an error is a connection-related error.
func IsConnectionError(err error) bool {
	var ye *YapperError
	if !errors.As(err, &ye) {
		return false
	}
	return ye.Code == ErrorConnection || ye.Code == ErrorDisconnected || ye.Code == ErrorTimeout
}

// IsFetchError checks if an error is a failed page fetch.
func IsFetchError(err error) bool {
	var ye *YapperError
	return errors.As(err, &ye) && ye.Code == ErrorFetch
}
