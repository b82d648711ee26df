package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"seatbridge/internal/pkg/jwt"

	"github.com/gin-gonic/gin"
)

const ctxClientIDKey = "client_id"

// TokenValidator checks service credentials. Callers of this API are
// booking frontends, not end users; the token identifies the client
// system only.
type TokenValidator interface {
	ValidateToken(token string) (*jwt.Claims, error)
}

type AuthMiddleware struct {
	tokenValidator TokenValidator
}

func NewAuthMiddleware(tokenValidator TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{
		tokenValidator: tokenValidator,
	}
}

func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		var token string
		authHeader := c.GetHeader("Authorization")
		if authHeader != "" && strings.HasPrefix(authHeader, "Bearer ") {
			token = strings.TrimSpace(authHeader[len("Bearer "):])
		}

		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{"message": "Access token required"},
			})
			c.Abort()
			return
		}

		claims, err := m.tokenValidator.ValidateToken(token)
		if err != nil {
			slog.Warn("token validation failed in auth middleware", "error", err.Error())
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{"message": "Invalid or expired token"},
			})
			c.Abort()
			return
		}

		c.Set(ctxClientIDKey, claims.ClientID)
		c.Next()
	}
}

func GetClientID(c *gin.Context) (string, bool) {
	clientID, exists := c.Get(ctxClientIDKey)
	if !exists {
		return "", false
	}

	id, ok := clientID.(string)
	return id, ok
}
