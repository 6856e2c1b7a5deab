package domain

type SessionID string

// SessionKind distinguishes publications from subscriptions.
type SessionKind string

const (
	SessionKindPublication  SessionKind = "publication"
	SessionKindSubscription SessionKind = "subscription"
)

// SessionGrant is the signaling layer's answer to a publish or subscribe
// request: the session id and the transport it was bound to.
type SessionGrant struct {
	ID        SessionID         `json:"id"`
	Transport TransportSettings `json:"transport"`
}
