package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"rillconf/pkg/config"

	"github.com/gin-gonic/gin"
)

// Test that when rate limiting is disabled, middleware lets all requests through.
func TestHTTPRateLimitMiddleware_Disabled_AllowsRequests(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cfg := config.DefaultConfig()
	cfg.RateLimiting.Enabled = false

	router := gin.New()
	router.Use(NewHTTPRateLimitMiddleware(cfg))
	router.GET("/test", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w1 := httptest.NewRecorder()
	req1, _ := http.NewRequest(http.MethodGet, "/test", nil)
	router.ServeHTTP(w1, req1)
	if w1.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w1.Code)
	}

	w2 := httptest.NewRecorder()
	req2, _ := http.NewRequest(http.MethodGet, "/test", nil)
	router.ServeHTTP(w2, req2)
	if w2.Code != http.StatusOK {
		t.Fatalf("expected status 200 on second request, got %d", w2.Code)
	}
}

// Anonymous callers are limited per client address.
func TestHTTPRateLimitMiddleware_Enabled_RateLimited(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cfg := config.DefaultConfig()
	cfg.RateLimiting.Enabled = true
	cfg.RateLimiting.HTTP.RequestsPerSecond = 1
	cfg.RateLimiting.HTTP.Burst = 1
	cfg.RateLimiting.HTTP.MaxConcurrent = 0

	router := gin.New()
	router.Use(NewHTTPRateLimitMiddleware(cfg))
	router.GET("/test", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	// First request should pass.
	w1 := httptest.NewRecorder()
	req1, _ := http.NewRequest(http.MethodGet, "/test", nil)
	router.ServeHTTP(w1, req1)
	if w1.Code != http.StatusOK {
		t.Fatalf("expected status 200 for first request, got %d", w1.Code)
	}

	// Second immediate request from the same address is limited.
	w2 := httptest.NewRecorder()
	req2, _ := http.NewRequest(http.MethodGet, "/test", nil)
	router.ServeHTTP(w2, req2)
	if w2.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status 429 for second request, got %d", w2.Code)
	}
	if got := w2.Header().Get("Retry-After"); got != "1" {
		t.Fatalf("expected Retry-After 1, got %q", got)
	}

	// A different forwarded client has its own bucket.
	w3 := httptest.NewRecorder()
	req3, _ := http.NewRequest(http.MethodGet, "/test", nil)
	req3.Header.Set("X-Forwarded-For", "10.0.0.7, 192.168.1.1")
	router.ServeHTTP(w3, req3)
	if w3.Code != http.StatusOK {
		t.Fatalf("expected status 200 for another client, got %d", w3.Code)
	}
}

func TestClientIP(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "127.0.0.1:5555"
	if got := clientIP(req); got != "127.0.0.1" {
		t.Fatalf("expected remote host, got %q", got)
	}

	req.Header.Set("X-Forwarded-For", "10.0.0.7, 192.168.1.1")
	if got := clientIP(req); got != "10.0.0.7" {
		t.Fatalf("expected first forwarded hop, got %q", got)
	}
}

// Authenticated operators behind one address get separate budgets.
func TestHTTPRateLimitMiddleware_PerSubject(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cfg := config.DefaultConfig()
	cfg.RateLimiting.Enabled = true
	cfg.RateLimiting.HTTP.RequestsPerSecond = 1
	cfg.RateLimiting.HTTP.Burst = 1

	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set(SubjectKey, c.GetHeader("X-Test-Subject"))
		c.Next()
	})
	router.Use(NewHTTPRateLimitMiddleware(cfg))
	router.GET("/conference", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	serve := func(subject string) int {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, "/conference", nil)
		req.RemoteAddr = "10.0.0.1:4000"
		req.Header.Set("X-Test-Subject", subject)
		router.ServeHTTP(w, req)
		return w.Code
	}

	if code := serve("alice"); code != http.StatusOK {
		t.Fatalf("expected 200 for alice, got %d", code)
	}
	if code := serve("alice"); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 for alice's second request, got %d", code)
	}
	if code := serve("bob"); code != http.StatusOK {
		t.Fatalf("expected 200 for bob from the same address, got %d", code)
	}
}

func TestCallerLimiters_EvictsIdle(t *testing.T) {
	now := time.Unix(1000, 0)
	callers := newCallerLimiters(1, 1)
	callers.now = func() time.Time { return now }

	callers.get("subject:alice")
	now = now.Add(idleLimiterTTL / 2)
	callers.get("subject:bob")
	if n := callers.len(); n != 2 {
		t.Fatalf("expected 2 limiters, got %d", n)
	}

	now = now.Add(idleLimiterTTL + time.Second)
	callers.get("subject:carol")
	if n := callers.len(); n != 1 {
		t.Fatalf("expected idle limiters evicted, got %d", n)
	}
}
