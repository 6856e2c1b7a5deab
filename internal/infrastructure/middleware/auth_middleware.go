package middleware

import (
	"net/http"
	"strings"

	"rillconf/internal/core/services"

	"github.com/gin-gonic/gin"
)

// SubjectKey is the gin context key holding the token subject of an
// authenticated request.
const SubjectKey = "subject"

// AuthMiddleware requires a valid bearer token when authService is enabled.
// With an empty secret the inspection API is open.
func AuthMiddleware(authService services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !authService.Enabled() {
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization header required"})
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header format"})
			c.Abort()
			return
		}

		claims, err := authService.ValidateToken(parts[1])
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			c.Abort()
			return
		}

		c.Set(SubjectKey, claims.Subject)
		c.Next()
	}
}
