// Package auth issues and verifies identity tokens and runs the email
// verification-code login flow.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"taskboard/apperr"
	"taskboard/models"
)

// Identity is the authenticated caller.
type Identity struct {
	UserID        string `json:"userId"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"emailVerified"`
}

// Verifier turns a bearer token into an Identity. Failures are apperr
// unauthorized errors whose reason tells missing, malformed and expired
// tokens apart.
type Verifier interface {
	VerifyToken(token string) (Identity, error)
}

type Claims struct {
	UserID        string `json:"user_id"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	jwt.RegisteredClaims
}

type JWTManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewJWTManager(secret string, ttl time.Duration) *JWTManager {
	return &JWTManager{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// WithClock overrides the time source used for issuing and validation.
func (m *JWTManager) WithClock(now func() time.Time) *JWTManager {
	m.now = now
	return m
}

// Issue signs an access token for user.
func (m *JWTManager) Issue(user models.User) (string, time.Time, error) {
	now := m.now()
	expiresAt := now.Add(m.ttl)
	claims := &Claims{
		UserID:        user.ID,
		Email:         user.Email,
		EmailVerified: user.EmailVerified,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, apperr.Internal("failed to sign token", err)
	}
	return signed, expiresAt, nil
}

func (m *JWTManager) VerifyToken(tokenString string) (Identity, error) {
	if tokenString == "" {
		return Identity{}, apperr.Unauthorized(apperr.ReasonTokenMissing, "authorization required")
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(m.now), jwt.WithExpirationRequired())

	switch {
	case err == nil && token.Valid && claims.UserID != "":
		return Identity{
			UserID:        claims.UserID,
			Email:         claims.Email,
			EmailVerified: claims.EmailVerified,
		}, nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return Identity{}, apperr.Unauthorized(apperr.ReasonTokenExpired, "token expired")
	case errors.Is(err, jwt.ErrTokenMalformed):
		return Identity{}, apperr.Unauthorized(apperr.ReasonTokenMalformed, "malformed token")
	default:
		return Identity{}, apperr.Unauthorized(apperr.ReasonTokenInvalid, "invalid token")
	}
}
