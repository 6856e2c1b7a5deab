package domain

import (
	apperrors "rillconf/pkg/errors"
)

type TransportType string

const (
	// TransportTypeWebRTC binds each publication or subscription to its own
	// peer connection; the server side cannot multiplex them.
	TransportTypeWebRTC TransportType = "webrtc"
	// TransportTypeQUIC carries several sessions over one transport
	// identified by id.
	TransportTypeQUIC TransportType = "quic"
)

func (t TransportType) Valid() bool {
	return t == TransportTypeWebRTC || t == TransportTypeQUIC
}

// Multiplexed reports whether several sessions may share one transport id.
func (t TransportType) Multiplexed() bool {
	return t == TransportTypeQUIC
}

// TransportConstraints is what a client asks for when publishing or
// subscribing. An empty ID asks the remote side to allocate a transport.
type TransportConstraints struct {
	Type TransportType `json:"type"`
	ID   string        `json:"id,omitempty"`
}

func (c TransportConstraints) Validate() error {
	if !c.Type.Valid() {
		return apperrors.NewValidationError("unknown transport type %q", c.Type)
	}
	if c.ID != "" && !c.Type.Multiplexed() {
		return apperrors.NewValidationError("transport id must be empty for %s transport", c.Type)
	}
	return nil
}

// TransportSettings is the transport a session was bound to.
type TransportSettings struct {
	Type TransportType `json:"type"`
	ID   string        `json:"id"`
}

// DefaultTransportConstraints requests a dedicated WebRTC transport.
func DefaultTransportConstraints() TransportConstraints {
	return TransportConstraints{Type: TransportTypeWebRTC}
}
