package services

import (
	"errors"
	"time"

	"rillconf/internal/core/domain"
	apperrors "rillconf/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// AuthService checks bearer tokens for the inspection API and reads the
// claims of conference join tokens.
type AuthService interface {
	GenerateToken(subject string, ttl time.Duration) (string, error)
	ValidateToken(tokenString string) (*Claims, error)
	Enabled() bool
}

// Claims are carried by inspection API tokens.
type Claims struct {
	jwt.RegisteredClaims
}

// JoinClaims are the fields of a join token the client can read. Join
// tokens are signed by the conference server; the client never verifies
// them and only uses the claims for logging and diagnostics.
type JoinClaims struct {
	Room   domain.ConferenceID `json:"room"`
	UserID domain.UserID       `json:"user"`
	Role   domain.Role         `json:"role"`
	jwt.RegisteredClaims
}

type authService struct {
	jwtSecret []byte
}

// NewAuthService returns an AuthService signing with HS256. An empty secret
// disables verification.
func NewAuthService(jwtSecret string) AuthService {
	return &authService{jwtSecret: []byte(jwtSecret)}
}

func (s *authService) Enabled() bool {
	return len(s.jwtSecret) > 0
}

func (s *authService) GenerateToken(subject string, ttl time.Duration) (string, error) {
	if !s.Enabled() {
		return "", apperrors.NewInternalError("token signing is disabled")
	}
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

func (s *authService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.jwtSecret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, ErrInvalidToken
}

// ParseJoinToken reads the claims of a join token without checking its
// signature. Opaque tokens that are not JWTs yield a validation error.
func ParseJoinToken(tokenString string) (*JoinClaims, error) {
	claims := &JoinClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return nil, apperrors.NewValidationError("join token is not a JWT: %v", err)
	}
	return claims, nil
}
