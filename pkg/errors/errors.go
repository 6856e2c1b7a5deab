package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents application error codes
type ErrorCode string

const (
	ErrCodeValidation   ErrorCode = "VALIDATION_ERROR"
	ErrCodeNegotiation  ErrorCode = "NEGOTIATION_ERROR"
	ErrCodeInvalidState ErrorCode = "INVALID_STATE"
	ErrCodeTransport    ErrorCode = "TRANSPORT_ERROR"
	ErrCodeProtocol     ErrorCode = "PROTOCOL_ERROR"
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
)

// AppError represents an application error with code and context
type AppError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Cause      error
	Context    map[string]interface{}
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an AppError with the same code, so that
// errors.Is(err, ErrNegotiation) matches any negotiation failure.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Message == "" && t.Code == e.Code
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewAppError creates a new application error
func NewAppError(code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Context:    make(map[string]interface{}),
	}
}

// WrapError wraps an existing error with application error
func WrapError(err error, code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Cause:      err,
		Context:    make(map[string]interface{}),
	}
}

// Code-only targets for errors.Is.
var (
	ErrValidation   = &AppError{Code: ErrCodeValidation}
	ErrNegotiation  = &AppError{Code: ErrCodeNegotiation}
	ErrInvalidState = &AppError{Code: ErrCodeInvalidState}
	ErrTransport    = &AppError{Code: ErrCodeTransport}
	ErrProtocol     = &AppError{Code: ErrCodeProtocol}
)

// NewValidationError reports malformed construction input.
func NewValidationError(format string, args ...interface{}) *AppError {
	return NewAppError(ErrCodeValidation, fmt.Sprintf(format, args...), http.StatusBadRequest)
}

// NewNegotiationError reports a constraint the remote side does not advertise.
func NewNegotiationError(field string, value interface{}) *AppError {
	return NewAppError(ErrCodeNegotiation,
		fmt.Sprintf("%s %v is not supported by remote endpoint", field, value),
		http.StatusUnprocessableEntity,
	).WithContext("field", field).WithContext("value", value)
}

// NewInvalidStateError reports an operation on a terminated entity.
func NewInvalidStateError(operation, state string) *AppError {
	return NewAppError(ErrCodeInvalidState,
		fmt.Sprintf("cannot %s in state %s", operation, state),
		http.StatusConflict,
	).WithContext("operation", operation).WithContext("state", state)
}

// NewTransportError wraps a failure reported by the signaling or transport layer.
func NewTransportError(err error, operation string) *AppError {
	return WrapError(err, ErrCodeTransport, operation+" failed", http.StatusBadGateway).
		WithContext("operation", operation)
}

// NewProtocolError reports an out-of-contract notification.
func NewProtocolError(format string, args ...interface{}) *AppError {
	return NewAppError(ErrCodeProtocol, fmt.Sprintf(format, args...), http.StatusBadGateway)
}

func NewNotFoundError(resource string) *AppError {
	return NewAppError(ErrCodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

func NewUnauthorizedError(message string) *AppError {
	return NewAppError(ErrCodeUnauthorized, message, http.StatusUnauthorized)
}

func NewInternalError(message string) *AppError {
	return NewAppError(ErrCodeInternal, message, http.StatusInternalServerError)
}

// IsAppError checks if error is an AppError
func IsAppError(err error) bool {
	_, ok := err.(*AppError)
	return ok
}

// GetAppError extracts AppError from error chain
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// HasCode reports whether any AppError in err's chain carries code.
func HasCode(err error, code ErrorCode) bool {
	appErr := GetAppError(err)
	return appErr != nil && appErr.Code == code
}
