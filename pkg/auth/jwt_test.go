package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTManager_GenerateToken(t *testing.T) {
	manager := NewJWTManager("testsecret123", 15*time.Minute, SupabaseAudience)

	t.Run("generates valid token for user ID", func(t *testing.T) {
		token, err := manager.GenerateToken("9f1c2b8e-7a43-4d1e-9a55-0c1f3b7e2d10")

		require.NoError(t, err)
		// Token should be a valid JWT format (3 parts separated by dots)
		assert.Regexp(t, `^[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+$`, token)
	})

	t.Run("token carries the user in sub", func(t *testing.T) {
		token, _ := manager.GenerateToken("test-user-123")
		claims, err := manager.ValidateToken(token)

		require.NoError(t, err)
		assert.Equal(t, "test-user-123", claims.UserID())
		assert.Equal(t, "test-user-123", claims.Subject)
		assert.Equal(t, SupabaseAudience, claims.Role)
		assert.Equal(t, jwt.ClaimStrings{SupabaseAudience}, claims.Audience)
	})
}

func TestJWTManager_ValidateToken(t *testing.T) {
	manager := NewJWTManager("testsecret123", 15*time.Minute, SupabaseAudience)

	t.Run("returns error for expired token", func(t *testing.T) {
		shortManager := NewJWTManager("testsecret123", 1*time.Millisecond, SupabaseAudience)
		token, _ := shortManager.GenerateToken("user123")

		time.Sleep(10 * time.Millisecond)

		claims, err := shortManager.ValidateToken(token)

		assert.Nil(t, claims)
		assert.ErrorIs(t, err, jwt.ErrTokenExpired)
	})

	t.Run("returns error for wrong secret", func(t *testing.T) {
		other := NewJWTManager("secret2", 15*time.Minute, SupabaseAudience)
		token, _ := other.GenerateToken("user123")

		claims, err := manager.ValidateToken(token)

		assert.Error(t, err)
		assert.Nil(t, claims)
	})

	t.Run("returns error for wrong audience", func(t *testing.T) {
		other := NewJWTManager("testsecret123", 15*time.Minute, "anon")
		token, _ := other.GenerateToken("user123")

		claims, err := manager.ValidateToken(token)

		assert.ErrorIs(t, err, jwt.ErrTokenInvalidAudience)
		assert.Nil(t, claims)
	})

	t.Run("skips audience check when unset", func(t *testing.T) {
		lenient := NewJWTManager("testsecret123", 15*time.Minute, "")
		token, _ := manager.GenerateToken("user123")

		claims, err := lenient.ValidateToken(token)

		require.NoError(t, err)
		assert.Equal(t, "user123", claims.UserID())
	})

	t.Run("rejects unexpected signing method", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS512, &Claims{RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user123",
			Audience:  jwt.ClaimStrings{SupabaseAudience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		}})
		signed, err := token.SignedString([]byte("testsecret123"))
		require.NoError(t, err)

		claims, err := manager.ValidateToken(signed)

		assert.Error(t, err)
		assert.Nil(t, claims)
	})

	t.Run("rejects token without subject", func(t *testing.T) {
		token, _ := manager.GenerateToken("")

		claims, err := manager.ValidateToken(token)

		assert.ErrorIs(t, err, jwt.ErrTokenRequiredClaimMissing)
		assert.Nil(t, claims)
	})

	t.Run("returns error for invalid token format", func(t *testing.T) {
		claims, err := manager.ValidateToken("not.a.valid.token")

		assert.Error(t, err)
		assert.Nil(t, claims)
	})

	t.Run("returns error for tampered token", func(t *testing.T) {
		token, _ := manager.GenerateToken("user123")
		tamperedToken := token[:len(token)-5] + "XXXXX"

		claims, err := manager.ValidateToken(tamperedToken)

		assert.Error(t, err)
		assert.Nil(t, claims)
	})

	t.Run("validates token expiry time is set correctly", func(t *testing.T) {
		expiry := 30 * time.Minute
		manager := NewJWTManager("secret", expiry, SupabaseAudience)
		beforeGeneration := time.Now()

		token, _ := manager.GenerateToken("user123")
		claims, err := manager.ValidateToken(token)

		require.NoError(t, err)
		assert.WithinDuration(t, beforeGeneration.Add(expiry), claims.ExpiresAt.Time, 2*time.Second)
	})
}

func TestTokenContext(t *testing.T) {
	_, ok := TokenFromContext(context.Background())
	assert.False(t, ok)

	_, ok = TokenFromContext(WithToken(context.Background(), ""))
	assert.False(t, ok)

	token, ok := TokenFromContext(WithToken(context.Background(), "abc"))
	assert.True(t, ok)
	assert.Equal(t, "abc", token)
}

func BenchmarkJWTManager_ValidateToken(b *testing.B) {
	manager := NewJWTManager("benchmarksecret", 15*time.Minute, SupabaseAudience)
	token, _ := manager.GenerateToken("user123")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = manager.ValidateToken(token)
	}
}
