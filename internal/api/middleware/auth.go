package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/timmy/lenscat/internal/logger"
)

// Gin context keys set by RequireRole.
const (
	ContextUserID = "user_id"
	ContextRole   = "role"
)

var errInvalidToken = errors.New("invalid token")

// Claims are the admin token claims. Subject carries the user reference.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// JWTAuth signs and verifies HS256 admin tokens.
type JWTAuth struct {
	secret []byte
}

// NewJWTAuth creates a token verifier for secret.
func NewJWTAuth(secret string) *JWTAuth {
	return &JWTAuth{secret: []byte(secret)}
}

// Sign issues a token for userID with role, valid for ttl.
func (a *JWTAuth) Sign(userID, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Verify parses tokenStr and returns its claims.
func (a *JWTAuth) Verify(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	t, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (any, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	})
	if err != nil || !t.Valid {
		return nil, errInvalidToken
	}
	if claims.Subject == "" {
		return nil, errors.New("missing sub")
	}
	return claims, nil
}

// RequireRole rejects requests without a valid bearer token (401) or whose
// token carries a different role (403).
// Parameters:
//   - auth: token verifier.
//   - role: role required to pass.
// Returns:
//   - gin.HandlerFunc: middleware handler.
func RequireRole(auth *JWTAuth, role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if h == "" || !strings.HasPrefix(h, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		claims, err := auth.Verify(strings.TrimPrefix(h, "Bearer "))
		if err != nil {
			logger.CtxWarn(c.Request.Context(), "Rejected token: client_ip=%s, error=%v", c.ClientIP(), err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		if claims.Role != role {
			logger.CtxWarn(c.Request.Context(), "Forbidden: user=%s, role=%s", claims.Subject, claims.Role)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}

		ctx := logger.WithField(c.Request.Context(), logger.FieldUserID, claims.Subject)
		c.Request = c.Request.WithContext(ctx)
		c.Set(ContextUserID, claims.Subject)
		c.Set(ContextRole, claims.Role)
		c.Next()
	}
}

// UserID returns the authenticated user reference, if any.
func UserID(c *gin.Context) string {
	return c.GetString(ContextUserID)
}
