package session

import (
	"context"
	"net/http"
	"sync"

	"rillconf/internal/core/domain"
	"rillconf/internal/core/negotiation"
	"rillconf/internal/core/ports"
	apperrors "rillconf/pkg/errors"

	"go.uber.org/zap"
)

// SubscriptionConfig carries what the conference service learned while
// subscribing.
type SubscriptionConfig struct {
	ID           domain.SessionID
	Source       *domain.RemoteStream
	Capabilities domain.SubscriptionCapabilities
	Resolved     domain.ResolvedSubscription
	Transport    domain.TransportSettings
	Control      ports.SessionControl
	Handle       ports.TransportHandle
	Logger       *zap.SugaredLogger
}

// Subscription is a RemoteStream being received. It starts Initializing
// and becomes Active once its media is fulfilled.
type Subscription struct {
	lifecycle
	source       *domain.RemoteStream
	capabilities domain.SubscriptionCapabilities

	dataMu    sync.RWMutex
	resolved  domain.ResolvedSubscription
	media     domain.Media
	fulfilled bool
	ready     chan struct{}
}

func NewSubscription(cfg SubscriptionConfig) (*Subscription, error) {
	if cfg.ID == "" {
		return nil, apperrors.NewValidationError("subscription id is required")
	}
	if cfg.Control == nil {
		return nil, apperrors.NewValidationError("subscription control is required")
	}
	s := &Subscription{
		source:       cfg.Source,
		capabilities: cfg.Capabilities,
		resolved:     cfg.Resolved,
		ready:        make(chan struct{}),
	}
	s.lifecycle.init(cfg.ID, cfg.Transport, cfg.Control, cfg.Handle, phaseInitializing, cfg.Logger)
	return s, nil
}

// Source is the remote stream this subscription receives. It is nil for
// subscriptions restored without roster information.
func (s *Subscription) Source() *domain.RemoteStream { return s.source }

// Capabilities returns the menu recorded when the subscription was created.
func (s *Subscription) Capabilities() domain.SubscriptionCapabilities { return s.capabilities }

// Resolved returns the constraints currently in effect.
func (s *Subscription) Resolved() domain.ResolvedSubscription {
	s.dataMu.RLock()
	defer s.dataMu.RUnlock()
	return s.resolved
}

// Media returns the received media, or nil before Fulfill.
func (s *Subscription) Media() domain.Media {
	s.dataMu.RLock()
	defer s.dataMu.RUnlock()
	return s.media
}

// Ready is closed once Fulfill succeeds. It stays open when the
// subscription ends before its media arrives; wait on Done as well.
func (s *Subscription) Ready() <-chan struct{} { return s.ready }

// Fulfill sets the received media and activates the subscription. It
// succeeds once.
func (s *Subscription) Fulfill(media domain.Media) error {
	if media == nil {
		return apperrors.NewValidationError("subscription media cannot be nil")
	}
	if err := s.checkLive("fulfill"); err != nil {
		return err
	}

	s.dataMu.Lock()
	if s.fulfilled {
		s.dataMu.Unlock()
		return apperrors.WrapError(domain.ErrAlreadyFulfilled, apperrors.ErrCodeInvalidState, "subscription media already set", http.StatusConflict)
	}
	s.fulfilled = true
	s.media = media
	s.dataMu.Unlock()

	s.activate()
	close(s.ready)
	s.logger.Debugw("subscription fulfilled")
	return nil
}

// FulfillFromTransport fulfills the subscription with the media its
// transport handle is receiving.
func (s *Subscription) FulfillFromTransport() error {
	if s.handle == nil {
		return apperrors.NewTransportError(errNoTransport, "fulfill")
	}
	media := s.handle.Media()
	if media == nil {
		return apperrors.NewProtocolError("session %s is ready but its transport has no media", s.id)
	}
	return s.Fulfill(media)
}

// ApplyOptions changes the video parameters of a live subscription. The
// update is checked against the recorded capabilities before anything is
// sent; failures are returned, never emitted.
func (s *Subscription) ApplyOptions(ctx context.Context, update domain.SubscriptionUpdateOptions) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if err := s.checkLive("applyOptions"); err != nil {
		return err
	}
	if err := negotiation.ValidateUpdate(s.capabilities, update); err != nil {
		return err
	}
	if err := s.control.RequestUpdate(ctx, s.id, update); err != nil {
		return apperrors.NewTransportError(err, "applyOptions")
	}

	if update.Video != nil {
		s.dataMu.Lock()
		video := domain.VideoSubscriptionConstraints{}
		if s.resolved.Video != nil {
			video = *s.resolved.Video
		}
		if update.Video.Resolution != nil || update.Video.FrameRate != nil ||
			update.Video.BitrateMultiplier != nil || update.Video.KeyFrameInterval != nil {
			// Explicit fields replace a rid selection.
			video.RID = nil
		}
		if update.Video.Resolution != nil {
			video.Resolution = domain.Ptr(*update.Video.Resolution)
		}
		if update.Video.FrameRate != nil {
			video.FrameRate = domain.Ptr(*update.Video.FrameRate)
		}
		if update.Video.BitrateMultiplier != nil {
			video.BitrateMultiplier = domain.Ptr(*update.Video.BitrateMultiplier)
		}
		if update.Video.KeyFrameInterval != nil {
			video.KeyFrameInterval = domain.Ptr(*update.Video.KeyFrameInterval)
		}
		s.resolved.Video = &video
		s.dataMu.Unlock()
	}

	s.logger.Debugw("subscription options applied")
	return nil
}
