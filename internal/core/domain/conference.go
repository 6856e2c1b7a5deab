package domain

type ConferenceID string

// ConferenceInfo is a read-only snapshot of a conference. RemoteStreams
// includes streams published by the current participant.
type ConferenceInfo struct {
	ID            ConferenceID
	Participants  []Participant
	RemoteStreams []*RemoteStream
	Self          Participant
}

// ParticipantDescription is how the signaling layer describes a member.
type ParticipantDescription struct {
	ID     ParticipantID `json:"id"`
	Role   Role          `json:"role"`
	UserID UserID        `json:"user"`
}

// StreamDescription is how the signaling layer describes a published stream.
type StreamDescription struct {
	ID                StreamID                 `json:"id"`
	Origin            ParticipantID            `json:"owner"`
	Source            StreamSourceInfo         `json:"source"`
	Attributes        map[string]string        `json:"attributes,omitempty"`
	Settings          PublicationSettings      `json:"settings"`
	ExtraCapabilities SubscriptionCapabilities `json:"extraCapabilities"`
}

// RosterSnapshot is the authoritative member and stream list of a
// conference as reported by the signaling layer.
type RosterSnapshot struct {
	ConferenceID ConferenceID             `json:"id"`
	Self         ParticipantDescription   `json:"self"`
	Participants []ParticipantDescription `json:"participants"`
	Streams      []StreamDescription      `json:"streams"`
}
