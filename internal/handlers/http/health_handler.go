package http

import (
	"net/http"

	"rillconf/internal/infrastructure/monitoring"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HealthHandler struct {
	checker  *monitoring.HealthChecker
	gatherer prometheus.Gatherer
}

// NewHealthHandler serves /health, /ready and, when gatherer is non-nil,
// /metrics.
func NewHealthHandler(checker *monitoring.HealthChecker, gatherer prometheus.Gatherer) *HealthHandler {
	return &HealthHandler{checker: checker, gatherer: gatherer}
}

func (h *HealthHandler) SetupRoutes(router gin.IRouter) {
	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)
	if h.gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))
	}
}

// Health reports every check. A degraded client still answers 200.
func (h *HealthHandler) Health(c *gin.Context) {
	status := h.checker.CheckAll(c.Request.Context())
	code := http.StatusOK
	if status.Status == monitoring.StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}

func (h *HealthHandler) Ready(c *gin.Context) {
	if !h.checker.IsReady(c.Request.Context()) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ready": true})
}
