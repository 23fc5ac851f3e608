package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"courier/internal/domain"
	"courier/internal/service"
)

const (
	userIDKey = "user_id"
	roleKey   = "role"
)

// TokenParser validates bearer tokens.
type TokenParser interface {
	ParseToken(raw string) (*service.Claims, error)
}

// RequireAuth rejects requests without a valid bearer token and stores the
// caller's id and role in the context.
func RequireAuth(parser TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid Authorization header"})
			return
		}

		claims, err := parser.ParseToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}

		c.Set(userIDKey, claims.UserID)
		c.Set(roleKey, claims.Role)
		c.Next()
	}
}

// RequireRole allows only callers with one of roles. Must run after RequireAuth.
func RequireRole(roles ...domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := GetRole(c)
		for _, allowed := range roles {
			if role == allowed {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient permissions"})
	}
}

// GetUserID returns the authenticated caller's id, or "".
func GetUserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}

// GetRole returns the authenticated caller's role, or "".
func GetRole(c *gin.Context) domain.Role {
	role, _ := c.Get(roleKey)
	r, _ := role.(domain.Role)
	return r
}
