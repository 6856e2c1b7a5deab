package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"rillconf/pkg/config"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// idleLimiterTTL is how long a caller's bucket survives without requests.
const idleLimiterTTL = 10 * time.Minute

type callerLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// callerLimiters holds one token bucket per caller of the inspection API.
type callerLimiters struct {
	mu        sync.Mutex
	limiters  map[string]*callerLimiter
	rate      rate.Limit
	burst     int
	lastSweep time.Time
	now       func() time.Time
}

func newCallerLimiters(r rate.Limit, burst int) *callerLimiters {
	return &callerLimiters{
		limiters: make(map[string]*callerLimiter),
		rate:     r,
		burst:    burst,
		now:      time.Now,
	}
}

func (s *callerLimiters) get(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if now.Sub(s.lastSweep) > idleLimiterTTL {
		for k, l := range s.limiters {
			if now.Sub(l.lastSeen) > idleLimiterTTL {
				delete(s.limiters, k)
			}
		}
		s.lastSweep = now
	}

	l, ok := s.limiters[key]
	if !ok {
		l = &callerLimiter{limiter: rate.NewLimiter(s.rate, s.burst)}
		s.limiters[key] = l
	}
	l.lastSeen = now
	return l.limiter
}

func (s *callerLimiters) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.limiters)
}

// callerKey identifies who is calling: the token subject once
// AuthMiddleware has run, otherwise the client address.
func callerKey(c *gin.Context) string {
	if subject := c.GetString(SubjectKey); subject != "" {
		return "subject:" + subject
	}
	return "ip:" + clientIP(c.Request)
}

// clientIP extracts the IP part from the request's remote address. The
// first X-Forwarded-For hop wins when present.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
			return ip.String()
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// NewHTTPRateLimitMiddleware throttles the inspection API per caller and,
// when configured, caps concurrent requests. Mount it after AuthMiddleware
// so operators sharing an address get separate budgets.
func NewHTTPRateLimitMiddleware(cfg *config.Config) gin.HandlerFunc {
	if !cfg.RateLimiting.Enabled {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	rps := cfg.RateLimiting.HTTP.RequestsPerSecond
	retryAfter := int(math.Ceil(1 / rps))
	callers := newCallerLimiters(rate.Limit(rps), cfg.RateLimiting.HTTP.Burst)

	var inflight chan struct{}
	if cfg.RateLimiting.HTTP.MaxConcurrent > 0 {
		inflight = make(chan struct{}, cfg.RateLimiting.HTTP.MaxConcurrent)
	}

	return func(c *gin.Context) {
		if inflight != nil {
			select {
			case inflight <- struct{}{}:
				defer func() { <-inflight }()
			default:
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
					"error": "too many concurrent requests",
				})
				return
			}
		}

		if !callers.get(callerKey(c)).Allow() {
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"retry_after": retryAfter,
			})
			return
		}
		c.Next()
	}
}
