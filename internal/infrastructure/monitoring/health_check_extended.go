package monitoring

import (
	"context"
	"errors"
	"time"

	"rillconf/internal/core/domain"
	"rillconf/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

var errSignalingDown = errors.New("signaling connection is not open")

// AddRedisCheck pings the event bus and roster store backend. Losing Redis
// only degrades the client; the conference itself keeps running.
func (h *HealthChecker) AddRedisCheck(client *redis.Client, interval, timeout time.Duration) {
	h.AddCheck(Check{
		Name:     "redis",
		Interval: interval,
		Timeout:  timeout,
		Run: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
	})
}

// AddSignalingCheck reports the signaling connection state. Without it no
// session can change, so it is critical.
func (h *HealthChecker) AddSignalingCheck(connected func() bool, interval, timeout time.Duration) {
	h.AddCheck(Check{
		Name:     "signaling",
		Critical: true,
		Interval: interval,
		Timeout:  timeout,
		Run: func(context.Context) error {
			if !connected() {
				return errSignalingDown
			}
			return nil
		},
	})
}

// AddRosterCheck verifies the roster store can be read for the conference
// returned by current. An empty id means not joined yet, which is healthy.
func (h *HealthChecker) AddRosterCheck(repo ports.RosterRepository, current func() domain.ConferenceID, interval, timeout time.Duration) {
	h.AddCheck(Check{
		Name:     "roster",
		Interval: interval,
		Timeout:  timeout,
		Run: func(ctx context.Context) error {
			id := current()
			if id == "" {
				return nil
			}
			if _, err := repo.Load(ctx, id); err != nil && !errors.Is(err, domain.ErrConferenceNotFound) {
				return err
			}
			return nil
		},
	})
}
