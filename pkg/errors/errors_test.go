package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	err := NewAppError(ErrCodeValidation, "test error", 400)
	expected := "VALIDATION_ERROR: test error"
	if err.Error() != expected {
		t.Errorf("Error() = %v, want %v", err.Error(), expected)
	}
}

func TestAppError_WithCause(t *testing.T) {
	originalErr := errors.New("original error")
	err := WrapError(originalErr, ErrCodeInternal, "wrapped error", 500)

	if err.Cause != originalErr {
		t.Errorf("Cause = %v, want %v", err.Cause, originalErr)
	}
	assert.Contains(t, err.Error(), "original error")
	assert.True(t, errors.Is(err, originalErr))
}

func TestAppError_WithContext(t *testing.T) {
	err := NewAppError(ErrCodeValidation, "test error", 400)
	err.WithContext("field", "value").WithContext("count", 42)

	if err.Context["field"] != "value" {
		t.Errorf("Context[field] = %v, want 'value'", err.Context["field"])
	}
	if err.Context["count"] != 42 {
		t.Errorf("Context[count] = %v, want 42", err.Context["count"])
	}
}

func TestNewNegotiationError(t *testing.T) {
	err := NewNegotiationError("video.codec", "vp9")
	assert.Equal(t, ErrCodeNegotiation, err.Code)
	assert.Equal(t, 422, err.HTTPStatus)
	assert.Equal(t, "video.codec", err.Context["field"])
	assert.Contains(t, err.Error(), "vp9")
}

func TestNewTransportError(t *testing.T) {
	cause := errors.New("socket closed")
	err := NewTransportError(cause, "mute")
	assert.Equal(t, ErrCodeTransport, err.Code)
	assert.ErrorIs(t, err, cause)
}

func TestIs_MatchesByCode(t *testing.T) {
	wrapped := fmt.Errorf("subscribe: %w", NewNegotiationError("audio.codec", "opus"))

	assert.True(t, errors.Is(wrapped, ErrNegotiation))
	assert.False(t, errors.Is(wrapped, ErrValidation))
	assert.True(t, HasCode(wrapped, ErrCodeNegotiation))
	assert.False(t, HasCode(errors.New("plain"), ErrCodeNegotiation))
}

func TestIsAppError(t *testing.T) {
	appErr := NewAppError(ErrCodeValidation, "test", 400)
	regularErr := errors.New("regular error")

	if !IsAppError(appErr) {
		t.Error("IsAppError() should return true for AppError")
	}
	if IsAppError(regularErr) {
		t.Error("IsAppError() should return false for regular error")
	}
}

func TestGetAppError(t *testing.T) {
	appErr := NewAppError(ErrCodeValidation, "test", 400)

	// Direct AppError
	result := GetAppError(appErr)
	if result != appErr {
		t.Errorf("GetAppError() = %v, want %v", result, appErr)
	}

	// Wrapped with fmt.Errorf
	result = GetAppError(fmt.Errorf("outer: %w", appErr))
	if result != appErr {
		t.Error("GetAppError() should extract AppError from wrapped error")
	}

	// Regular error
	regularErr := errors.New("regular error")
	result = GetAppError(regularErr)
	if result != nil {
		t.Error("GetAppError() should return nil for regular error")
	}
}
