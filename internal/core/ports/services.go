package ports

import (
	"context"

	"rillconf/internal/core/domain"
)

// NotificationType names a push message from the signaling layer.
type NotificationType string

const (
	NotificationSessionReady  NotificationType = "ready"
	NotificationSessionEnded  NotificationType = "ended"
	NotificationSessionError  NotificationType = "error"
	NotificationSessionMute   NotificationType = "mute"
	NotificationSessionUnmute NotificationType = "unmute"
	NotificationRoster        NotificationType = "roster"
)

// Notification is an asynchronous event pushed by the signaling layer.
// SessionID is empty for roster notifications; Roster is nil otherwise.
type Notification struct {
	Type      NotificationType       `json:"type"`
	SessionID domain.SessionID       `json:"id,omitempty"`
	Kind      domain.TrackKind       `json:"kind,omitempty"`
	Reason    string                 `json:"reason,omitempty"`
	Roster    *domain.RosterSnapshot `json:"roster,omitempty"`
}

// PublishRequest is sent to the signaling layer after local negotiation.
type PublishRequest struct {
	StreamID   domain.StreamID             `json:"stream"`
	Source     domain.StreamSourceInfo     `json:"source"`
	Attributes map[string]string           `json:"attributes,omitempty"`
	Settings   domain.PublicationSettings  `json:"settings"`
	Transport  domain.TransportConstraints `json:"transport"`
}

// SubscribeRequest is sent to the signaling layer after local negotiation.
type SubscribeRequest struct {
	StreamID  domain.StreamID             `json:"stream"`
	Media     domain.ResolvedSubscription `json:"media"`
	Transport domain.TransportConstraints `json:"transport"`
}

// SessionControl is the part of signaling a live session talks to.
type SessionControl interface {
	RequestStop(ctx context.Context, id domain.SessionID) error
	RequestMute(ctx context.Context, id domain.SessionID, kind domain.TrackKind) error
	RequestUnmute(ctx context.Context, id domain.SessionID, kind domain.TrackKind) error
	RequestUpdate(ctx context.Context, id domain.SessionID, update domain.SubscriptionUpdateOptions) error
}

// SignalingClient carries control messages between this endpoint and the
// conference server. Notifications is closed when the connection ends.
type SignalingClient interface {
	SessionControl
	Join(ctx context.Context, token string) (*domain.RosterSnapshot, error)
	RequestPublish(ctx context.Context, req PublishRequest) (*domain.SessionGrant, error)
	// PublicationCapabilities reports the codecs the server accepts from
	// publishers.
	PublicationCapabilities(ctx context.Context) (domain.PublicationCapabilities, error)
	RequestSubscribe(ctx context.Context, req SubscribeRequest) (*domain.SessionGrant, error)
	Leave(ctx context.Context) error
	Notifications() <-chan Notification
}

// TransportHandle is the media plumbing behind one session.
type TransportHandle interface {
	GetStats(ctx context.Context) (*domain.Stats, error)
	SetMuted(kind domain.TrackKind, muted bool) error
	// Media returns the received media for subscriptions and the sent media
	// for publications. It may be nil until media starts flowing.
	Media() domain.Media
	Close() error
}

// TransportFactory binds granted sessions to media transports.
type TransportFactory interface {
	AttachPublication(ctx context.Context, grant domain.SessionGrant, stream *domain.LocalStream, settings domain.PublicationSettings) (TransportHandle, error)
	AttachSubscription(ctx context.Context, grant domain.SessionGrant, resolved domain.ResolvedSubscription) (TransportHandle, error)
}

// MetricsRecorder receives conference client measurements.
type MetricsRecorder interface {
	SessionStarted(kind domain.SessionKind)
	SessionEnded(kind domain.SessionKind, errored bool)
	NegotiationResult(kind domain.SessionKind, err error)
	ProtocolError(reason string)
	MuteToggled(kind domain.TrackKind, muted bool)
	RosterChanged(participants, streams int)
}
