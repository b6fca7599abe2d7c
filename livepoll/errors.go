package livepoll

import (
	"errors"
	"fmt"
)

// ErrorCode represents a categorized error type.
type ErrorCode int

const (
	ErrorUnknown ErrorCode = iota

	// Protocol errors (typed error pushes from the hub)
	ErrorWrongPassword
	ErrorRoomNotFound
	ErrorBadRequest
	ErrorInternalServer

	// Client-side errors
	ErrorConnection
	ErrorDisconnected
	ErrorTimeout
	ErrorNotConnected
	ErrorInvalidConfig
	ErrorSerialization
	ErrorVoteLocked
	ErrorJoinInProgress
	ErrorInvalidState
	ErrorSessionClosed
)

// String returns the string representation of an ErrorCode.
func (e ErrorCode) String() string {
	switch e {
	case ErrorUnknown:
		return "unknown"
	case ErrorWrongPassword:
		return "wrong_password"
	case ErrorRoomNotFound:
		return "room_not_found"
	case ErrorBadRequest:
		return "bad_request"
	case ErrorInternalServer:
		return "internal_error"
	case ErrorConnection:
		return "connection_error"
	case ErrorDisconnected:
		return "disconnected"
	case ErrorTimeout:
		return "timeout"
	case ErrorNotConnected:
		return "not_connected"
	case ErrorInvalidConfig:
		return "invalid_config"
	case ErrorSerialization:
		return "serialization_error"
	case ErrorVoteLocked:
		return "vote_locked"
	case ErrorJoinInProgress:
		return "join_in_progress"
	case ErrorInvalidState:
		return "invalid_state"
	case ErrorSessionClosed:
		return "session_closed"
	default:
		return fmt.Sprintf("unknown_code_%d", e)
	}
}

// ParseErrorCode converts a hub error code string to ErrorCode. Codes the
// client does not know map to ErrorUnknown and surface their message
// verbatim.
func ParseErrorCode(code string) ErrorCode {
	switch code {
	case "WRONG_PASSWORD":
		return ErrorWrongPassword
	case "ROOM_NOT_FOUND":
		return ErrorRoomNotFound
	case "BAD_REQUEST":
		return ErrorBadRequest
	case "INTERNAL_ERROR":
		return ErrorInternalServer
	default:
		return ErrorUnknown
	}
}

// PollError is a structured error with code and context.
type PollError struct {
	Code    ErrorCode
	Message string
	Wrapped error
}

// Error implements the error interface.
func (e *PollError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: %s (wrapped: %v)", e.Code, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error for errors.Unwrap support.
func (e *PollError) Unwrap() error {
	return e.Wrapped
}

// Is implements errors.Is support; two PollErrors match on Code.
func (e *PollError) Is(target error) bool {
	t, ok := target.(*PollError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewError creates a new PollError with the given code and message.
func NewError(code ErrorCode, message string) *PollError {
	return &PollError{
		Code:    code,
		Message: message,
	}
}

// WrapError wraps an existing error with a PollError.
func WrapError(code ErrorCode, message string, err error) *PollError {
	return &PollError{
		Code:    code,
		Message: message,
		Wrapped: err,
	}
}

// FromWireError converts a protocol-level WireError to PollError.
func FromWireError(e *WireError) *PollError {
	if e == nil {
		return nil
	}
	return &PollError{
		Code:    ParseErrorCode(e.Code),
		Message: e.Msg,
	}
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code ErrorCode) bool {
	var pe *PollError
	return errors.As(err, &pe) && pe.Code == code
}

// NeedsPassword reports whether err is a join rejection that a password
// retry can recover from.
func NeedsPassword(err error) bool {
	return HasCode(err, ErrorWrongPassword)
}

// IsProtocolError checks if an error originated as a typed hub error push.
func IsProtocolError(err error) bool {
	var pe *PollError
	if !errors.As(err, &pe) {
		return false
	}
	return pe.Code >= ErrorWrongPassword && pe.Code <= ErrorInternalServer
}

// IsConnectionError checks if an error is a connection-related error.
func IsConnectionError(err error) bool {
	var pe *PollError
	if !errors.As(err, &pe) {
		return false
	}
	return pe.Code == ErrorConnection || pe.Code == ErrorDisconnected ||
		pe.Code == ErrorTimeout || pe.Code == ErrorNotConnected
}
