package session

import (
	"rillconf/internal/core/domain"
	"rillconf/internal/core/ports"
	apperrors "rillconf/pkg/errors"

	"go.uber.org/zap"
)

// PublicationConfig carries what the conference service learned while
// publishing. Handle may be nil when no media transport is attached.
type PublicationConfig struct {
	ID        domain.SessionID
	Stream    *domain.LocalStream
	Settings  domain.PublicationSettings
	Transport domain.TransportSettings
	Control   ports.SessionControl
	Handle    ports.TransportHandle
	Logger    *zap.SugaredLogger
}

// Publication is a LocalStream being sent to the conference.
type Publication struct {
	lifecycle
	stream   *domain.LocalStream
	settings domain.PublicationSettings
}

// NewPublication creates an active publication. An empty id is not
// accepted: ids come from the signaling layer.
func NewPublication(cfg PublicationConfig) (*Publication, error) {
	if cfg.ID == "" {
		return nil, apperrors.NewValidationError("publication id is required")
	}
	if cfg.Stream == nil {
		return nil, apperrors.NewValidationError("publication stream is required")
	}
	if cfg.Control == nil {
		return nil, apperrors.NewValidationError("publication control is required")
	}
	p := &Publication{stream: cfg.Stream, settings: cfg.Settings}
	p.lifecycle.init(cfg.ID, cfg.Transport, cfg.Control, cfg.Handle, phaseActive, cfg.Logger)
	return p, nil
}

func (p *Publication) Stream() *domain.LocalStream { return p.stream }

// Settings returns the settings negotiated when publishing.
func (p *Publication) Settings() domain.PublicationSettings { return p.settings }
