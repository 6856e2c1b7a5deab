// Package reliability guards remote stores with retries and a circuit
// breaker so a flapping Redis never stalls roster updates.
package reliability

import (
	"context"
	"errors"
	"time"

	"rillconf/internal/core/domain"
	"rillconf/internal/core/ports"
	"rillconf/pkg/circuitbreaker"
	"rillconf/pkg/retry"

	"go.uber.org/zap"
)

// RosterRepositoryWrapper wraps a RosterRepository with retry logic and a
// circuit breaker. A missing conference is an answer, not a failure: it is
// neither retried nor counted by the breaker.
type RosterRepositoryWrapper struct {
	repo   ports.RosterRepository
	logger *zap.SugaredLogger

	retryConfig    retry.Config
	circuitBreaker *circuitbreaker.CircuitBreaker
}

var _ ports.RosterRepository = (*RosterRepositoryWrapper)(nil)

// NewRosterRepositoryWrapper creates a new wrapper with retry and circuit breaker
func NewRosterRepositoryWrapper(
	repo ports.RosterRepository,
	retryConfig retry.Config,
	cbConfig circuitbreaker.Config,
	logger *zap.SugaredLogger,
) *RosterRepositoryWrapper {
	cbConfig.IsFailure = func(err error) bool {
		return !errors.Is(err, domain.ErrConferenceNotFound)
	}
	retryConfig.NonRetryableErrors = append(append([]error(nil), retryConfig.NonRetryableErrors...),
		domain.ErrConferenceNotFound,
		circuitbreaker.ErrOpen,
		context.Canceled,
		context.DeadlineExceeded,
	)
	retryConfig.OnRetry = func(attempt int, err error, delay time.Duration) {
		logger.Debugw("retrying roster store call", "attempt", attempt, "retry_in", delay, "error", err)
	}

	wrapper := &RosterRepositoryWrapper{
		repo:           repo,
		logger:         logger,
		retryConfig:    retryConfig,
		circuitBreaker: circuitbreaker.New(cbConfig),
	}

	wrapper.circuitBreaker.OnStateChange(func(from, to circuitbreaker.State) {
		logger.Infow("roster store circuit breaker state changed",
			"from", from.String(),
			"to", to.String(),
		)
	})

	return wrapper
}

// Save stores a snapshot with retry logic
func (w *RosterRepositoryWrapper) Save(ctx context.Context, snapshot *domain.RosterSnapshot) error {
	return w.do(ctx, func() error {
		return w.repo.Save(ctx, snapshot)
	})
}

// Load reads a snapshot with retry logic
func (w *RosterRepositoryWrapper) Load(ctx context.Context, id domain.ConferenceID) (*domain.RosterSnapshot, error) {
	var snapshot *domain.RosterSnapshot
	err := w.do(ctx, func() error {
		var err error
		snapshot, err = w.repo.Load(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

// Delete removes a snapshot with retry logic
func (w *RosterRepositoryWrapper) Delete(ctx context.Context, id domain.ConferenceID) error {
	return w.do(ctx, func() error {
		return w.repo.Delete(ctx, id)
	})
}

// GetCircuitBreakerStats returns circuit breaker statistics
func (w *RosterRepositoryWrapper) GetCircuitBreakerStats() circuitbreaker.Stats {
	return w.circuitBreaker.GetStats()
}

func (w *RosterRepositoryWrapper) do(ctx context.Context, fn func() error) error {
	call := func() error {
		return w.circuitBreaker.Execute(ctx, fn)
	}
	if !w.retryConfig.Enabled {
		return call()
	}
	return retry.Retry(ctx, w.retryConfig, call)
}
