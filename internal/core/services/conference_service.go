package services

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"rillconf/internal/core/domain"
	"rillconf/internal/core/negotiation"
	"rillconf/internal/core/ports"
	"rillconf/internal/core/session"
	"rillconf/pkg/events"
	apperrors "rillconf/pkg/errors"
	"rillconf/pkg/tracing"
	"rillconf/pkg/utils"

	"go.uber.org/zap"
)

// maxReasonLength bounds server supplied error reasons kept on sessions.
const maxReasonLength = 256

var errNotJoined = apperrors.WrapError(domain.ErrNotJoined, apperrors.ErrCodeInvalidState, "not joined to a conference", http.StatusConflict)

// ConferenceService is the client's entry point: it joins a conference,
// negotiates publish and subscribe requests, owns the registry used to route
// push notifications, and keeps the roster current.
type ConferenceService struct {
	signaling  ports.SignalingClient
	transports ports.TransportFactory
	roster     *Roster
	metrics    ports.MetricsRecorder
	logger     *zap.SugaredLogger

	mu            sync.RWMutex
	joined        bool
	publications  map[domain.SessionID]*session.Publication
	subscriptions map[domain.SessionID]*session.Subscription

	// Notifications can overtake the entity they address: the server may
	// report ready or ended while the grant is still being attached. They
	// are held in pending (grant known) or orphans (request still in
	// flight) and replayed in order once the entity exists.
	inflight int
	pending  map[domain.SessionID][]ports.Notification
	orphans  map[domain.SessionID][]ports.Notification
}

func NewConferenceService(
	signaling ports.SignalingClient,
	transports ports.TransportFactory,
	roster *Roster,
	metrics ports.MetricsRecorder,
	logger *zap.SugaredLogger,
) *ConferenceService {
	return &ConferenceService{
		signaling:     signaling,
		transports:    transports,
		roster:        roster,
		metrics:       metrics,
		logger:        logger,
		publications:  make(map[domain.SessionID]*session.Publication),
		subscriptions: make(map[domain.SessionID]*session.Subscription),
		pending:       make(map[domain.SessionID][]ports.Notification),
		orphans:       make(map[domain.SessionID][]ports.Notification),
	}
}

func (s *ConferenceService) Roster() *Roster { return s.roster }

// Join enters the conference identified by token and builds the roster from
// the server's answer.
func (s *ConferenceService) Join(ctx context.Context, token string) (domain.ConferenceInfo, error) {
	if token == "" {
		return domain.ConferenceInfo{}, apperrors.NewValidationError("join token is required")
	}

	if claims, err := ParseJoinToken(token); err == nil {
		s.logger.Debugw("joining conference", "room", claims.Room, "user_id", claims.UserID, "role", claims.Role)
	}

	snapshot, err := s.signaling.Join(ctx, token)
	if err != nil {
		return domain.ConferenceInfo{}, apperrors.NewTransportError(err, "join")
	}
	if err := s.roster.Rebuild(ctx, snapshot); err != nil {
		return domain.ConferenceInfo{}, err
	}

	s.mu.Lock()
	s.joined = true
	s.mu.Unlock()

	info := s.roster.Info()
	s.logger.Infow("joined conference",
		"conference_id", info.ID,
		"participant_id", info.Self.ID(),
		"participants", len(info.Participants),
		"streams", len(info.RemoteStreams),
	)
	return info, nil
}

// Publish negotiates opts against the server's publication capabilities and
// sends stream. Nothing is created when negotiation fails.
func (s *ConferenceService) Publish(ctx context.Context, stream *domain.LocalStream, opts domain.PublishOptions) (*session.Publication, error) {
	if stream == nil {
		return nil, apperrors.NewValidationError("stream is required")
	}
	if !s.isJoined() {
		return nil, errNotJoined
	}
	transport, err := transportConstraints(opts.Transport)
	if err != nil {
		return nil, err
	}

	caps, err := s.signaling.PublicationCapabilities(ctx)
	if err != nil {
		return nil, apperrors.NewTransportError(err, "publish")
	}

	nctx, span := tracing.TraceNegotiation(ctx, string(domain.SessionKindPublication), string(stream.ID()))
	tracing.AddSpanAttributes(nctx, tracing.TransportKey.String(string(transport.Type)))
	settings, err := negotiation.ResolvePublication(caps, opts)
	s.metrics.NegotiationResult(domain.SessionKindPublication, err)
	if err != nil {
		tracing.RecordError(nctx, err)
		span.End()
		return nil, err
	}
	span.End()

	defer s.beginRequest()()
	grant, err := s.signaling.RequestPublish(ctx, ports.PublishRequest{
		StreamID:   stream.ID(),
		Source:     stream.Source(),
		Attributes: stream.Attributes(),
		Settings:   settings,
		Transport:  transport,
	})
	if err != nil {
		return nil, apperrors.NewTransportError(err, "publish")
	}
	if err := s.acceptGrant(ctx, grant, transport); err != nil {
		return nil, err
	}

	handle, err := s.transports.AttachPublication(ctx, *grant, stream, settings)
	if err != nil {
		s.abandon(ctx, grant.ID)
		return nil, apperrors.NewTransportError(err, "attach publication")
	}

	pub, err := session.NewPublication(session.PublicationConfig{
		ID:        grant.ID,
		Stream:    stream,
		Settings:  settings,
		Transport: grant.Transport,
		Control:   s.signaling,
		Handle:    handle,
		Logger:    s.logger,
	})
	if err != nil {
		_ = handle.Close()
		s.abandon(ctx, grant.ID)
		return nil, err
	}

	s.track(domain.SessionKindPublication, pub)
	s.register(pub)

	s.logger.Infow("stream published",
		"session_id", pub.ID(),
		"stream_id", stream.ID(),
		"transport", grant.Transport.Type,
	)
	return pub, nil
}

// Subscribe negotiates opts against what stream offers and asks the server
// to send it. The subscription starts Initializing; Ready is closed once
// media arrives. Notifications the server sent while the transport was being
// attached are applied before Subscribe returns, so the subscription may
// already be Active or terminal.
func (s *ConferenceService) Subscribe(ctx context.Context, stream *domain.RemoteStream, opts domain.SubscribeOptions) (*session.Subscription, error) {
	if stream == nil {
		return nil, apperrors.NewValidationError("stream is required")
	}
	if opts.Audio == nil && opts.Video == nil {
		return nil, apperrors.NewValidationError("audio and video cannot both be disabled")
	}
	if !s.isJoined() {
		return nil, errNotJoined
	}
	if stream.Ended() {
		return nil, apperrors.NewInvalidStateError("subscribe", "ended")
	}
	transport, err := transportConstraints(opts.Transport)
	if err != nil {
		return nil, err
	}

	caps := domain.CapabilitiesOf(stream)
	nctx, span := tracing.TraceNegotiation(ctx, string(domain.SessionKindSubscription), string(stream.ID()))
	tracing.AddSpanAttributes(nctx,
		tracing.TransportKey.String(string(transport.Type)),
		tracing.ParticipantIDKey.String(string(stream.Origin())),
	)
	resolved, err := negotiation.ResolveSubscription(caps, opts)
	s.metrics.NegotiationResult(domain.SessionKindSubscription, err)
	if err != nil {
		tracing.RecordError(nctx, err)
		span.End()
		return nil, err
	}
	span.End()

	defer s.beginRequest()()
	grant, err := s.signaling.RequestSubscribe(ctx, ports.SubscribeRequest{
		StreamID:  stream.ID(),
		Media:     resolved,
		Transport: transport,
	})
	if err != nil {
		return nil, apperrors.NewTransportError(err, "subscribe")
	}
	if err := s.acceptGrant(ctx, grant, transport); err != nil {
		return nil, err
	}

	handle, err := s.transports.AttachSubscription(ctx, *grant, resolved)
	if err != nil {
		s.abandon(ctx, grant.ID)
		return nil, apperrors.NewTransportError(err, "attach subscription")
	}

	sub, err := session.NewSubscription(session.SubscriptionConfig{
		ID:           grant.ID,
		Source:       stream,
		Capabilities: caps,
		Resolved:     resolved,
		Transport:    grant.Transport,
		Control:      s.signaling,
		Handle:       handle,
		Logger:       s.logger,
	})
	if err != nil {
		_ = handle.Close()
		s.abandon(ctx, grant.ID)
		return nil, err
	}

	s.track(domain.SessionKindSubscription, sub)
	s.register(sub)

	s.logger.Infow("stream subscribed",
		"session_id", sub.ID(),
		"stream_id", stream.ID(),
		"origin", stream.Origin(),
		"transport", grant.Transport.Type,
	)
	return sub, nil
}

// HandleNotification applies one push notification. Notifications for
// unknown sessions are protocol errors: they are logged, counted and
// dropped, and never affect other sessions.
func (s *ConferenceService) HandleNotification(ctx context.Context, n ports.Notification) error {
	if n.Type == ports.NotificationRoster {
		if err := s.roster.Rebuild(ctx, n.Roster); err != nil {
			return s.protocolError("bad_roster", err)
		}
		return nil
	}

	target, held := s.route(n)
	if held {
		return nil
	}
	if target == nil {
		return s.protocolError("unknown_session",
			apperrors.NewProtocolError("%s notification for unknown session %q", n.Type, n.SessionID))
	}
	return s.apply(target, n)
}

// apply delivers a session notification to target.
func (s *ConferenceService) apply(target Session, n ports.Notification) error {
	switch n.Type {
	case ports.NotificationSessionReady:
		sub, ok := target.(*session.Subscription)
		if !ok {
			return nil
		}
		if err := sub.FulfillFromTransport(); err != nil {
			if apperrors.HasCode(err, apperrors.ErrCodeProtocol) {
				return s.protocolError("ready_without_media", err)
			}
			s.logger.Debugw("ignoring ready notification", "session_id", n.SessionID, "error", err)
		}
	case ports.NotificationSessionEnded:
		target.HandleEnded()
	case ports.NotificationSessionError:
		target.HandleError(utils.TruncateString(utils.SanitizeString(n.Reason), maxReasonLength))
	case ports.NotificationSessionMute, ports.NotificationSessionUnmute:
		if !n.Kind.Valid() {
			return s.protocolError("bad_track_kind",
				apperrors.NewProtocolError("%s notification with invalid kind %q", n.Type, n.Kind))
		}
		if n.Type == ports.NotificationSessionMute {
			target.HandleMute(n.Kind)
		} else {
			target.HandleUnmute(n.Kind)
		}
	default:
		return s.protocolError("unknown_notification",
			apperrors.NewProtocolError("unknown notification type %q", n.Type))
	}
	return nil
}

// Run applies notifications until ctx is done or the signaling connection
// closes. A closed connection fails every live session.
func (s *ConferenceService) Run(ctx context.Context) error {
	ch := s.signaling.Notifications()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n, ok := <-ch:
			if !ok {
				s.logger.Warnw("signaling connection closed")
				for _, t := range s.live() {
					t.HandleError("signaling connection closed")
				}
				return nil
			}
			// Errors are already logged and counted.
			_ = s.HandleNotification(ctx, n)
		}
	}
}

// Leave stops every live session, leaves the conference and clears the
// roster. Stop failures are joined into the returned error.
func (s *ConferenceService) Leave(ctx context.Context) error {
	var errs []error
	for _, t := range s.live() {
		if err := t.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	s.mu.Lock()
	joined := s.joined
	s.joined = false
	s.mu.Unlock()

	if joined {
		if err := s.signaling.Leave(ctx); err != nil {
			errs = append(errs, apperrors.NewTransportError(err, "leave"))
		}
	}
	s.roster.Clear(ctx)

	s.logger.Infow("left conference", "errors", len(errs))
	return errors.Join(errs...)
}

// Publications returns the live publications.
func (s *ConferenceService) Publications() []*session.Publication {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*session.Publication, 0, len(s.publications))
	for _, p := range s.publications {
		out = append(out, p)
	}
	return out
}

// Subscriptions returns the live subscriptions.
func (s *ConferenceService) Subscriptions() []*session.Subscription {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*session.Subscription, 0, len(s.subscriptions))
	for _, sub := range s.subscriptions {
		out = append(out, sub)
	}
	return out
}

// Session looks up a live publication or subscription by id.
func (s *ConferenceService) Session(id domain.SessionID) (Session, error) {
	t := s.lookup(id)
	if t == nil {
		return nil, domain.ErrSessionNotFound
	}
	return t, nil
}

// Session is the behaviour shared by publications and subscriptions.
type Session interface {
	ID() domain.SessionID
	Transport() domain.TransportSettings
	State() session.State
	Muted(kind domain.TrackKind) bool
	Stop(ctx context.Context) error
	Mute(ctx context.Context, kind domain.TrackKind) error
	Unmute(ctx context.Context, kind domain.TrackKind) error
	GetStats(ctx context.Context) (*domain.Stats, error)
	On(t events.Type, h events.Handler[session.Event]) events.Token
	Off(tok events.Token) bool
	HandleEnded()
	HandleError(reason string)
	HandleMute(kind domain.TrackKind)
	HandleUnmute(kind domain.TrackKind)
}

var (
	_ Session = (*session.Publication)(nil)
	_ Session = (*session.Subscription)(nil)
)

func (s *ConferenceService) track(kind domain.SessionKind, t Session) {
	s.metrics.SessionStarted(kind)

	done := func(errored bool) func(session.Event) {
		return func(session.Event) {
			s.mu.Lock()
			delete(s.publications, t.ID())
			delete(s.subscriptions, t.ID())
			s.mu.Unlock()
			s.metrics.SessionEnded(kind, errored)
		}
	}
	t.On(session.EventEnded, done(false))
	t.On(session.EventError, done(true))
	t.On(session.EventMute, func(e session.Event) { s.metrics.MuteToggled(e.Kind, true) })
	t.On(session.EventUnmute, func(e session.Event) { s.metrics.MuteToggled(e.Kind, false) })
}

// route returns the live session n addresses. When the session is still
// being created, n is queued for it instead and held is true.
func (s *ConferenceService) route(n ports.Notification) (target Session, held bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.publications[n.SessionID]; ok {
		return p, false
	}
	if sub, ok := s.subscriptions[n.SessionID]; ok {
		return sub, false
	}
	if queued, ok := s.pending[n.SessionID]; ok {
		s.pending[n.SessionID] = append(queued, n)
		return nil, true
	}
	if s.inflight > 0 && n.SessionID != "" {
		s.orphans[n.SessionID] = append(s.orphans[n.SessionID], n)
		return nil, true
	}
	return nil, false
}

// beginRequest marks a publish or subscribe request as in flight. The
// returned func ends it; once none are left, notifications no grant
// claimed are reported as unknown.
func (s *ConferenceService) beginRequest() func() {
	s.mu.Lock()
	s.inflight++
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		s.inflight--
		var unclaimed []ports.Notification
		if s.inflight == 0 {
			for id, queued := range s.orphans {
				unclaimed = append(unclaimed, queued...)
				delete(s.orphans, id)
			}
		}
		s.mu.Unlock()

		for _, n := range unclaimed {
			_ = s.protocolError("unknown_session",
				apperrors.NewProtocolError("%s notification for unknown session %q", n.Type, n.SessionID))
		}
	}
}

// acceptGrant claims notifications already received for grant and checks
// it against the requested transport. A rejected grant is released.
func (s *ConferenceService) acceptGrant(ctx context.Context, grant *domain.SessionGrant, requested domain.TransportConstraints) error {
	if grant != nil && grant.ID != "" {
		s.mu.Lock()
		s.pending[grant.ID] = append([]ports.Notification(nil), s.orphans[grant.ID]...)
		delete(s.orphans, grant.ID)
		s.mu.Unlock()
	}
	if err := checkGrant(grant, requested); err != nil {
		if grant != nil && grant.ID != "" {
			s.abandon(ctx, grant.ID)
		}
		return err
	}
	return nil
}

// abandon drops notifications queued for a grant that will not become a
// session and releases it on the server.
func (s *ConferenceService) abandon(ctx context.Context, id domain.SessionID) {
	s.mu.Lock()
	dropped := len(s.pending[id])
	delete(s.pending, id)
	s.mu.Unlock()

	if dropped > 0 {
		s.logger.Debugw("dropping notifications for abandoned session", "session_id", id, "count", dropped)
	}
	s.release(ctx, id)
}

// register replays notifications queued for t, then makes it visible to
// routing. Queue and registry change under one lock so nothing is lost or
// reordered. A session the replay terminated is not registered.
func (s *ConferenceService) register(t Session) {
	for {
		s.mu.Lock()
		queued := s.pending[t.ID()]
		if len(queued) == 0 {
			delete(s.pending, t.ID())
			if !t.State().Terminal() {
				switch v := t.(type) {
				case *session.Publication:
					s.publications[v.ID()] = v
				case *session.Subscription:
					s.subscriptions[v.ID()] = v
				}
			}
			s.mu.Unlock()
			return
		}
		s.pending[t.ID()] = nil
		s.mu.Unlock()

		for _, n := range queued {
			// Errors are already logged and counted.
			_ = s.apply(t, n)
		}
	}
}

func (s *ConferenceService) lookup(id domain.SessionID) Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.publications[id]; ok {
		return p
	}
	if sub, ok := s.subscriptions[id]; ok {
		return sub
	}
	return nil
}

func (s *ConferenceService) live() []Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Session, 0, len(s.publications)+len(s.subscriptions))
	for _, p := range s.publications {
		out = append(out, p)
	}
	for _, sub := range s.subscriptions {
		out = append(out, sub)
	}
	return out
}

func (s *ConferenceService) isJoined() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.joined
}

// release asks the server to drop a session that could not be completed
// locally.
func (s *ConferenceService) release(ctx context.Context, id domain.SessionID) {
	if err := s.signaling.RequestStop(ctx, id); err != nil {
		s.logger.Warnw("failed to release session", "session_id", id, "error", err)
	}
}

func (s *ConferenceService) protocolError(reason string, err error) error {
	s.metrics.ProtocolError(reason)
	s.logger.Warnw("dropping notification", "reason", reason, "error", err)
	return err
}

func transportConstraints(c *domain.TransportConstraints) (domain.TransportConstraints, error) {
	if c == nil {
		return domain.DefaultTransportConstraints(), nil
	}
	if err := c.Validate(); err != nil {
		return domain.TransportConstraints{}, err
	}
	return *c, nil
}

// checkGrant verifies the server honoured the requested transport.
func checkGrant(grant *domain.SessionGrant, requested domain.TransportConstraints) error {
	if grant == nil || grant.ID == "" {
		return apperrors.NewProtocolError("server granted a session without id")
	}
	if grant.Transport.Type == "" {
		grant.Transport.Type = requested.Type
	}
	if grant.Transport.Type != requested.Type {
		return apperrors.NewProtocolError("requested %s transport, got %s", requested.Type, grant.Transport.Type)
	}
	if requested.ID != "" && grant.Transport.ID != requested.ID {
		return apperrors.NewProtocolError("requested transport %s, got %s", requested.ID, grant.Transport.ID)
	}
	return nil
}
