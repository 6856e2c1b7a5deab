package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	apperrors "rillconf/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestErrorHandlerMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RecoveryMiddleware(zap.NewNop().Sugar()), ErrorHandlerMiddleware(zap.NewNop().Sugar()))
	router.GET("/app", func(c *gin.Context) {
		_ = c.Error(apperrors.NewInvalidStateError("mute", "ended"))
	})
	router.GET("/plain", func(c *gin.Context) {
		_ = c.Error(errors.New("boom"))
	})
	router.GET("/panic", func(c *gin.Context) {
		panic("unexpected")
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/app", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusConflict, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, string(apperrors.ErrCodeInvalidState), body["error"])

	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodGet, "/plain", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodGet, "/panic", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestErrorHandlerMiddleware_LogsTraceID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.DebugLevel)

	router := gin.New()
	router.Use(TracingMiddleware(), ErrorHandlerMiddleware(zap.New(core).Sugar()))
	router.GET("/missing", func(c *gin.Context) {
		_ = c.Error(apperrors.NewNotFoundError("session"))
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/missing", nil)
	req.Header.Set("X-Request-ID", "req-1")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "req-1", w.Header().Get("X-Request-ID"))
	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "req-1", entries[0].ContextMap()["trace_id"])
}
