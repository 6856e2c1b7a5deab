package monitoring

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Status is the outcome of one check or of the client as a whole.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Check tests one dependency of the conference client. A failing critical
// check makes the client unhealthy; any other failure only degrades it.
type Check struct {
	Name     string
	Critical bool
	Run      func(ctx context.Context) error
	Interval time.Duration
	Timeout  time.Duration
}

type CheckResult struct {
	Status    Status        `json:"status"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration_ns"`
	CheckedAt time.Time     `json:"checked_at"`
}

type HealthStatus struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks"`
}

type HealthChecker struct {
	mu     sync.RWMutex
	checks []Check
	last   map[string]Status
	logger *zap.SugaredLogger
}

func NewHealthChecker(logger *zap.SugaredLogger) *HealthChecker {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &HealthChecker{
		last:   make(map[string]Status),
		logger: logger,
	}
}

func (h *HealthChecker) AddCheck(check Check) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, check)
}

// CheckAll runs every check concurrently and folds the results.
func (h *HealthChecker) CheckAll(ctx context.Context) HealthStatus {
	h.mu.RLock()
	checks := append([]Check(nil), h.checks...)
	h.mu.RUnlock()

	results := make([]CheckResult, len(checks))
	var wg sync.WaitGroup
	for i, check := range checks {
		wg.Add(1)
		go func(i int, check Check) {
			defer wg.Done()
			results[i] = h.run(ctx, check)
		}(i, check)
	}
	wg.Wait()

	status := HealthStatus{
		Status:    StatusHealthy,
		Timestamp: time.Now(),
		Checks:    make(map[string]CheckResult, len(checks)),
	}
	for i, check := range checks {
		status.Checks[check.Name] = results[i]
		if results[i].Status == StatusHealthy {
			continue
		}
		if check.Critical {
			status.Status = StatusUnhealthy
		} else if status.Status == StatusHealthy {
			status.Status = StatusDegraded
		}
	}
	return status
}

// IsReady reports whether every critical check passes.
func (h *HealthChecker) IsReady(ctx context.Context) bool {
	return h.CheckAll(ctx).Status != StatusUnhealthy
}

// StartBackgroundChecks runs each check on its own interval until ctx is
// cancelled, logging when a check starts failing or recovers.
func (h *HealthChecker) StartBackgroundChecks(ctx context.Context) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, check := range h.checks {
		if check.Interval <= 0 {
			continue
		}
		go h.runCheckPeriodically(ctx, check)
	}
}

func (h *HealthChecker) runCheckPeriodically(ctx context.Context, check Check) {
	ticker := time.NewTicker(check.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.run(ctx, check)
		}
	}
}

func (h *HealthChecker) run(ctx context.Context, check Check) CheckResult {
	checkCtx := ctx
	if check.Timeout > 0 {
		var cancel context.CancelFunc
		checkCtx, cancel = context.WithTimeout(ctx, check.Timeout)
		defer cancel()
	}

	start := time.Now()
	err := check.Run(checkCtx)
	result := CheckResult{
		Status:    StatusHealthy,
		Duration:  time.Since(start),
		CheckedAt: start,
	}
	if err != nil {
		result.Status = StatusUnhealthy
		result.Error = err.Error()
	}
	h.record(check, result)
	return result
}

func (h *HealthChecker) record(check Check, result CheckResult) {
	h.mu.Lock()
	prev, seen := h.last[check.Name]
	h.last[check.Name] = result.Status
	h.mu.Unlock()

	switch {
	case result.Status != StatusHealthy && prev != result.Status:
		h.logger.Warnw("health check failing",
			"check", check.Name,
			"critical", check.Critical,
			"error", result.Error,
		)
	case result.Status == StatusHealthy && seen && prev != StatusHealthy:
		h.logger.Infow("health check recovered", "check", check.Name, "duration", result.Duration)
	}
}
