// Package middleware provides HTTP middleware for the recorder API.
package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"solace-voice/pkg/auth"
	"solace-voice/pkg/response"
)

// Context keys for storing user data
const (
	UserIDKey = "userID"
)

// AccessTokenQueryParam carries the token on websocket upgrades, where
// browsers cannot set an Authorization header.
const AccessTokenQueryParam = "access_token"

// Auth returns a middleware that validates Supabase access tokens. The raw
// token is kept on the request context so uploads can forward it.
func Auth(tokens auth.TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			return
		}

		claims, err := tokens.ValidateToken(token)
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}

		c.Set(UserIDKey, claims.UserID())
		c.Request = c.Request.WithContext(auth.WithToken(c.Request.Context(), token))

		c.Next()
	}
}

// bearerToken extracts the token or aborts the request.
func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		if token := c.Query(AccessTokenQueryParam); token != "" && isUpgrade(c) {
			return token, true
		}
		response.Unauthorized(c, "missing authorization header")
		c.Abort()
		return "", false
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		response.Unauthorized(c, "invalid authorization header format")
		c.Abort()
		return "", false
	}
	return parts[1], true
}

func isUpgrade(c *gin.Context) bool {
	return strings.EqualFold(c.GetHeader("Upgrade"), "websocket")
}

// GetUserID retrieves the user ID from the context.
// Returns empty string if not found.
func GetUserID(c *gin.Context) string {
	userID, exists := c.Get(UserIDKey)
	if !exists {
		return ""
	}
	return userID.(string)
}
