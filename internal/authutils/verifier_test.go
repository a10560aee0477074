package authutils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"illustrator-server/internal/models"
)

const testSecret = "test-secret"

func signToken(t *testing.T, userID uuid.UUID, expiresAt time.Time, secret string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestVerifyToken(t *testing.T) {
	verifier, err := NewJWTVerifier(testSecret, nil)
	require.NoError(t, err)
	userID := uuid.New()

	t.Run("Valid token", func(t *testing.T) {
		claims, err := verifier.VerifyToken(signToken(t, userID, time.Now().Add(time.Hour), testSecret))
		require.NoError(t, err)
		assert.Equal(t, userID, claims.UserID)
	})

	t.Run("Expired token", func(t *testing.T) {
		_, err := verifier.VerifyToken(signToken(t, userID, time.Now().Add(-time.Hour), testSecret))
		assert.ErrorIs(t, err, models.ErrTokenExpired)
	})

	t.Run("Wrong secret", func(t *testing.T) {
		_, err := verifier.VerifyToken(signToken(t, userID, time.Now().Add(time.Hour), "other-secret"))
		assert.ErrorIs(t, err, models.ErrTokenInvalid)
	})

	t.Run("Malformed token", func(t *testing.T) {
		_, err := verifier.VerifyToken("not-a-token")
		assert.ErrorIs(t, err, models.ErrTokenMalformed)
	})

	t.Run("Missing user id", func(t *testing.T) {
		_, err := verifier.VerifyToken(signToken(t, uuid.Nil, time.Now().Add(time.Hour), testSecret))
		assert.ErrorIs(t, err, models.ErrTokenInvalid)
	})
}

func TestNewJWTVerifierRequiresSecret(t *testing.T) {
	_, err := NewJWTVerifier("", nil)
	assert.Error(t, err)
}
