package http

import (
	"net/http"
	"time"

	"rillconf/internal/core/services"
	"rillconf/internal/infrastructure/middleware"
	apperrors "rillconf/pkg/errors"

	"github.com/gin-gonic/gin"
)

const accessTokenTTL = 15 * time.Minute

// AuthHandler lets an operator holding a valid inspection token renew it
// before it expires. Routes must sit behind AuthMiddleware.
type AuthHandler struct {
	authService services.AuthService
}

func NewAuthHandler(authService services.AuthService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
	}
}

func (h *AuthHandler) SetupRoutes(router gin.IRouter) {
	api := router.Group("/api/v1/auth")
	{
		api.POST("/refresh", h.RefreshToken)
	}
}

func (h *AuthHandler) RefreshToken(c *gin.Context) {
	if !h.authService.Enabled() {
		_ = c.Error(apperrors.NewNotFoundError("token endpoint"))
		return
	}

	subject := c.GetString(middleware.SubjectKey)
	if subject == "" {
		_ = c.Error(apperrors.NewUnauthorizedError("token has no subject"))
		return
	}

	accessToken, err := h.authService.GenerateToken(subject, accessTokenTTL)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token": accessToken,
		"expires_in":   int(accessTokenTTL / time.Second),
	})
}
