package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskboard/apperr"
	"taskboard/models"
)

func reasonOf(t *testing.T, err error) string {
	t.Helper()
	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, apperr.KindUnauthorized, ae.Kind)
	return ae.Reason
}

func TestJWTManager(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	m := NewJWTManager("test-secret", time.Hour).WithClock(func() time.Time { return now })
	user := models.User{ID: "u1", Email: "alice@example.com", EmailVerified: true}

	t.Run("round trip", func(t *testing.T) {
		token, expiresAt, err := m.Issue(user)
		require.NoError(t, err)
		assert.Equal(t, now.Add(time.Hour), expiresAt)

		id, err := m.VerifyToken(token)
		require.NoError(t, err)
		assert.Equal(t, Identity{UserID: "u1", Email: "alice@example.com", EmailVerified: true}, id)
	})

	t.Run("missing token", func(t *testing.T) {
		_, err := m.VerifyToken("")
		assert.Equal(t, apperr.ReasonTokenMissing, reasonOf(t, err))
	})

	t.Run("malformed token", func(t *testing.T) {
		_, err := m.VerifyToken("not-a-jwt")
		assert.Equal(t, apperr.ReasonTokenMalformed, reasonOf(t, err))
	})

	t.Run("expired token", func(t *testing.T) {
		token, _, err := m.Issue(user)
		require.NoError(t, err)

		later := NewJWTManager("test-secret", time.Hour).WithClock(func() time.Time { return now.Add(2 * time.Hour) })
		_, err = later.VerifyToken(token)
		assert.Equal(t, apperr.ReasonTokenExpired, reasonOf(t, err))
	})

	t.Run("wrong secret", func(t *testing.T) {
		token, _, err := NewJWTManager("other", time.Hour).WithClock(func() time.Time { return now }).Issue(user)
		require.NoError(t, err)
		_, err = m.VerifyToken(token)
		assert.Equal(t, apperr.ReasonTokenInvalid, reasonOf(t, err))
	})

	t.Run("rejects none algorithm", func(t *testing.T) {
		claims := &Claims{UserID: "u1", RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour))}}
		token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = m.VerifyToken(token)
		assert.Equal(t, apperr.ReasonTokenInvalid, reasonOf(t, err))
	})
}
