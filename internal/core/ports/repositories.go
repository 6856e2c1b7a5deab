package ports

import (
	"context"

	"rillconf/internal/core/domain"
)

// RosterRepository persists the last roster snapshot seen for a conference
// so that inspection tools and restarted clients can read it.
type RosterRepository interface {
	Save(ctx context.Context, snapshot *domain.RosterSnapshot) error
	Load(ctx context.Context, id domain.ConferenceID) (*domain.RosterSnapshot, error)
	Delete(ctx context.Context, id domain.ConferenceID) error
}
