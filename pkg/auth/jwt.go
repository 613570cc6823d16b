package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SupabaseAudience is the audience Supabase puts in user access tokens.
const SupabaseAudience = "authenticated"

// Claims is the subset of a Supabase access token the recorder reads. The
// user id lives in the standard "sub" claim.
type Claims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// UserID returns the authenticated user id.
func (c *Claims) UserID() string {
	return c.Subject
}

// TokenManager issues and validates access tokens.
type TokenManager interface {
	GenerateToken(userID string) (string, error)
	// ValidateToken returns the claims of a valid, unexpired token.
	ValidateToken(tokenString string) (*Claims, error)
}

var _ TokenManager = (*JWTManager)(nil)

// JWTManager validates HS256 access tokens signed with the project JWT secret.
type JWTManager struct {
	secret   []byte
	expiry   time.Duration
	audience string
}

// NewJWTManager creates a new JWT manager. An empty audience disables the
// audience check.
func NewJWTManager(secret string, expiry time.Duration, audience string) *JWTManager {
	return &JWTManager{
		secret:   []byte(secret),
		expiry:   expiry,
		audience: audience,
	}
}

// GenerateToken issues a token shaped like a Supabase access token, for tests
// and local development against a shared secret.
func (j *JWTManager) GenerateToken(userID string) (string, error) {
	now := time.Now()
	claims := &Claims{
		Role: SupabaseAudience,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(j.expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	if j.audience != "" {
		claims.Audience = jwt.ClaimStrings{j.audience}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.secret)
}

// ValidateToken parses and validates a JWT token, returning the claims if valid.
func (j *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if j.audience != "" {
		opts = append(opts, jwt.WithAudience(j.audience))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return j.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, jwt.ErrSignatureInvalid
	}
	if claims.Subject == "" {
		return nil, jwt.ErrTokenRequiredClaimMissing
	}

	return claims, nil
}
