package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWT(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		s := NewJWTService("secret", 1)
		id := uuid.New()
		token, err := s.Generate(id, "dana@example.com")
		require.NoError(t, err)

		claims, err := s.Validate(token)
		require.NoError(t, err)
		assert.Equal(t, id, claims.UserID)
		assert.Equal(t, "dana@example.com", claims.Email)
	})
	t.Run("wrong secret", func(t *testing.T) {
		token, err := NewJWTService("secret", 1).Generate(uuid.New(), "a@b.c")
		require.NoError(t, err)
		_, err = NewJWTService("other", 1).Validate(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
	t.Run("expired", func(t *testing.T) {
		s := NewJWTService("secret", 1)
		s.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
		token, err := s.Generate(uuid.New(), "a@b.c")
		require.NoError(t, err)

		_, err = NewJWTService("secret", 1).Validate(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
	t.Run("garbage", func(t *testing.T) {
		_, err := NewJWTService("secret", 1).Validate("not.a.token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}
