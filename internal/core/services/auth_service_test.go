package services

import (
	"testing"
	"time"

	"rillconf/internal/core/domain"
	apperrors "rillconf/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthService_GenerateAndValidate(t *testing.T) {
	auth := NewAuthService("secret")
	require.True(t, auth.Enabled())

	token, err := auth.GenerateToken("ops", time.Minute)
	require.NoError(t, err)

	claims, err := auth.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Subject)
}

func TestAuthService_RejectsForeignSignature(t *testing.T) {
	token, err := NewAuthService("other").GenerateToken("ops", time.Minute)
	require.NoError(t, err)

	_, err = NewAuthService("secret").ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthService_Expired(t *testing.T) {
	auth := NewAuthService("secret")
	token, err := auth.GenerateToken("ops", -time.Minute)
	require.NoError(t, err)

	_, err = auth.ValidateToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestAuthService_DisabledCannotSign(t *testing.T) {
	auth := NewAuthService("")
	assert.False(t, auth.Enabled())

	_, err := auth.GenerateToken("ops", time.Minute)
	assert.Error(t, err)
}

func TestParseJoinToken(t *testing.T) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &JoinClaims{
		Room:   "room-1",
		UserID: "alice",
		Role:   domain.RolePresenter,
	}).SignedString([]byte("server-only-secret"))
	require.NoError(t, err)

	claims, err := ParseJoinToken(signed)
	require.NoError(t, err)
	assert.Equal(t, domain.ConferenceID("room-1"), claims.Room)
	assert.Equal(t, domain.UserID("alice"), claims.UserID)
	assert.Equal(t, domain.RolePresenter, claims.Role)

	_, err = ParseJoinToken("opaque-token")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidation))
}
