package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"rillconf/internal/core/services"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuthRouter(auth services.AuthService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(AuthMiddleware(auth))
	router.GET("/test", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(SubjectKey))
	})
	return router
}

func TestAuthMiddleware_DisabledAllowsAnonymous(t *testing.T) {
	router := newAuthRouter(services.NewAuthService(""))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/test", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthMiddleware_Enabled(t *testing.T) {
	auth := services.NewAuthService("secret")
	router := newAuthRouter(auth)

	token, err := auth.GenerateToken("ops", time.Minute)
	require.NoError(t, err)

	cases := []struct {
		name   string
		header string
		code   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + token, http.StatusUnauthorized},
		{"bad token", "Bearer garbage", http.StatusUnauthorized},
		{"valid token", "Bearer " + token, http.StatusOK},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest(http.MethodGet, "/test", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			router.ServeHTTP(w, req)
			assert.Equal(t, tc.code, w.Code)
			if tc.code == http.StatusOK {
				assert.Equal(t, "ops", w.Body.String())
			}
		})
	}
}
