package signal

import (
	"encoding/json"
	"fmt"

	"rillconf/internal/core/domain"

	"github.com/pion/webrtc/v3"
)

// Message kinds on the wire.
const (
	MessageRequest      = "request"
	MessageResponse     = "response"
	MessageNotification = "notification"
)

// Request methods understood by the conference server.
const (
	MethodJoin         = "join"
	MethodLeave        = "leave"
	MethodPublish      = "publish"
	MethodCapabilities = "publication-capabilities"
	MethodSubscribe    = "subscribe"
	MethodStop         = "stop"
	MethodMute         = "mute"
	MethodUnmute       = "unmute"
	MethodUpdate       = "update"
	MethodSDP          = "sdp"
)

// Message is the single envelope for every frame. Requests carry ID and
// Method; responses echo ID and carry either Data or Error; notifications
// carry only Data.
type Message struct {
	Type   string          `json:"type"`
	ID     string          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
	Error  *ErrorPayload   `json:"error,omitempty"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RemoteError is a request the server answered with an error.
type RemoteError struct {
	Method  string
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s rejected by server: %s (%s)", e.Method, e.Message, e.Code)
}

type joinPayload struct {
	Token string `json:"token"`
}

type sessionPayload struct {
	ID   domain.SessionID `json:"id"`
	Kind domain.TrackKind `json:"kind,omitempty"`
}

type updatePayload struct {
	ID     domain.SessionID                 `json:"id"`
	Update domain.SubscriptionUpdateOptions `json:"update"`
}

type sdpPayload struct {
	ID          domain.SessionID          `json:"id"`
	Description webrtc.SessionDescription `json:"description"`
}
