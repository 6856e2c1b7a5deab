package domain

// AudioPublicationSettings is the resolved audio side of a publication.
type AudioPublicationSettings struct {
	Codec *AudioCodecParameters `json:"codec,omitempty"`
}

// VideoPublicationSettings is the resolved video side of one publication
// layer. FrameRate is in fps, Bitrate in kbps and KeyFrameInterval in seconds.
type VideoPublicationSettings struct {
	Codec            *VideoCodecParameters `json:"codec,omitempty"`
	Resolution       *Resolution           `json:"resolution,omitempty"`
	FrameRate        *int                  `json:"frameRate,omitempty"`
	Bitrate          *int                  `json:"bitrate,omitempty"`
	KeyFrameInterval *int                  `json:"keyFrameInterval,omitempty"`
	RID              *string               `json:"rid,omitempty"`
}

type PublicationSettings struct {
	Audio []AudioPublicationSettings `json:"audio,omitempty"`
	Video []VideoPublicationSettings `json:"video,omitempty"`
}

// PublishOptions configures publishing a LocalStream. Empty encoding lists
// leave the choice to the remote side.
type PublishOptions struct {
	Audio     []AudioEncodingParameters `json:"audio,omitempty"`
	Video     []VideoEncodingParameters `json:"video,omitempty"`
	Transport *TransportConstraints     `json:"transport,omitempty"`
}

// SubscribeOptions configures subscribing a RemoteStream. A nil Audio or
// Video skips that kind.
type SubscribeOptions struct {
	Audio     *AudioSubscriptionConstraints `json:"audio,omitempty"`
	Video     *VideoSubscriptionConstraints `json:"video,omitempty"`
	Transport *TransportConstraints         `json:"transport,omitempty"`
}

// VideoSubscriptionUpdateOptions changes the video side of a live
// subscription. Nil fields stay unchanged.
type VideoSubscriptionUpdateOptions struct {
	Resolution        *Resolution `json:"resolution,omitempty"`
	FrameRate         *int        `json:"frameRate,omitempty"`
	BitrateMultiplier *float64    `json:"bitrateMultiplier,omitempty"`
	KeyFrameInterval  *int        `json:"keyFrameInterval,omitempty"`
}

type SubscriptionUpdateOptions struct {
	Video *VideoSubscriptionUpdateOptions `json:"video,omitempty"`
}

// ResolvedSubscription is the validated outcome of subscription
// negotiation. Unset fields are left for the remote side to choose.
type ResolvedSubscription struct {
	Audio *AudioSubscriptionConstraints `json:"audio,omitempty"`
	Video *VideoSubscriptionConstraints `json:"video,omitempty"`
}
