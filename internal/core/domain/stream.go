package domain

import (
	"sync"

	"rillconf/pkg/events"
	apperrors "rillconf/pkg/errors"

	"github.com/google/uuid"
)

type StreamID string

type AudioSourceInfo string

const (
	AudioSourceNone       AudioSourceInfo = ""
	AudioSourceMic        AudioSourceInfo = "mic"
	AudioSourceScreenCast AudioSourceInfo = "screen-cast"
	AudioSourceFile       AudioSourceInfo = "file"
	AudioSourceMixed      AudioSourceInfo = "mixed"
)

type VideoSourceInfo string

const (
	VideoSourceNone        VideoSourceInfo = ""
	VideoSourceCamera      VideoSourceInfo = "camera"
	VideoSourceScreenCast  VideoSourceInfo = "screen-cast"
	VideoSourceFile        VideoSourceInfo = "file"
	VideoSourceEncodedFile VideoSourceInfo = "encoded-file"
	VideoSourceRawFile     VideoSourceInfo = "raw-file"
	VideoSourceMixed       VideoSourceInfo = "mixed"
)

var (
	audioSources = map[AudioSourceInfo]bool{
		AudioSourceNone: true, AudioSourceMic: true, AudioSourceScreenCast: true,
		AudioSourceFile: true, AudioSourceMixed: true,
	}
	videoSources = map[VideoSourceInfo]bool{
		VideoSourceNone: true, VideoSourceCamera: true, VideoSourceScreenCast: true,
		VideoSourceFile: true, VideoSourceEncodedFile: true, VideoSourceRawFile: true,
		VideoSourceMixed: true,
	}
)

// StreamSourceInfo declares where a stream's media comes from. Audio or
// Video is empty when the stream has no such track.
type StreamSourceInfo struct {
	Audio AudioSourceInfo `json:"audio,omitempty"`
	Video VideoSourceInfo `json:"video,omitempty"`
	Data  bool            `json:"data"`
}

// NewStreamSourceInfo validates audio and video against the enumerated
// source values.
func NewStreamSourceInfo(audio, video string, data bool) (StreamSourceInfo, error) {
	info := StreamSourceInfo{Audio: AudioSourceInfo(audio), Video: VideoSourceInfo(video), Data: data}
	if err := info.Validate(); err != nil {
		return StreamSourceInfo{}, err
	}
	return info, nil
}

func (s StreamSourceInfo) Validate() error {
	if !audioSources[s.Audio] {
		return apperrors.NewValidationError("incorrect value for audio source: %q", s.Audio)
	}
	if !videoSources[s.Video] {
		return apperrors.NewValidationError("incorrect value for video source: %q", s.Video)
	}
	return nil
}

// Media is the underlying media handle of a stream. Transport adapters
// provide concrete implementations.
type Media interface {
	HasAudio() bool
	HasVideo() bool
}

const (
	StreamEventEnded   events.Type = "ended"
	StreamEventUpdated events.Type = "updated"
)

type StreamEvent struct {
	Type   events.Type
	Stream Stream
}

// Stream is implemented only by *LocalStream and *RemoteStream.
type Stream interface {
	ID() StreamID
	Source() StreamSourceInfo
	Attributes() map[string]string
	Media() Media
	On(t events.Type, h events.Handler[StreamEvent]) events.Token
	Off(tok events.Token) bool
	sealed()
}

type streamBase struct {
	id         StreamID
	source     StreamSourceInfo
	attributes map[string]string
	dispatcher *events.Dispatcher[StreamEvent]

	mu    sync.RWMutex
	media Media
}

func (s *streamBase) init(id StreamID, media Media, source StreamSourceInfo, attrs map[string]string) error {
	if err := source.Validate(); err != nil {
		return err
	}
	if err := checkMediaSource(media, source); err != nil {
		return err
	}
	if id == "" {
		id = StreamID(uuid.NewString())
	}
	s.id = id
	s.source = source
	s.attributes = make(map[string]string, len(attrs))
	for k, v := range attrs {
		s.attributes[k] = v
	}
	s.dispatcher = events.NewDispatcher[StreamEvent](nil)
	s.media = media
	return nil
}

func checkMediaSource(media Media, source StreamSourceInfo) error {
	if media == nil {
		return nil
	}
	if media.HasAudio() && source.Audio == AudioSourceNone {
		return apperrors.NewValidationError("missing audio source info")
	}
	if media.HasVideo() && source.Video == VideoSourceNone {
		return apperrors.NewValidationError("missing video source info")
	}
	return nil
}

func (s *streamBase) ID() StreamID             { return s.id }
func (s *streamBase) Source() StreamSourceInfo { return s.source }

// Attributes returns a copy of the stream's custom attributes.
func (s *streamBase) Attributes() map[string]string {
	out := make(map[string]string, len(s.attributes))
	for k, v := range s.attributes {
		out[k] = v
	}
	return out
}

func (s *streamBase) Media() Media {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.media
}

// ReplaceMedia swaps the underlying media handle. The new handle must be
// consistent with the stream's source info.
func (s *streamBase) ReplaceMedia(m Media) error {
	if err := checkMediaSource(m, s.source); err != nil {
		return err
	}
	s.mu.Lock()
	s.media = m
	s.mu.Unlock()
	return nil
}

func (s *streamBase) On(t events.Type, h events.Handler[StreamEvent]) events.Token {
	return s.dispatcher.On(t, h)
}

func (s *streamBase) Off(tok events.Token) bool {
	return s.dispatcher.Off(tok)
}

func (s *streamBase) sealed() {}

// LocalStream is media captured on this endpoint.
type LocalStream struct {
	streamBase
}

// NewLocalStream requires a non-nil media handle.
func NewLocalStream(media Media, source StreamSourceInfo, attrs map[string]string) (*LocalStream, error) {
	if media == nil {
		return nil, apperrors.NewValidationError("local stream media cannot be nil")
	}
	s := &LocalStream{}
	if err := s.init("", media, source, attrs); err != nil {
		return nil, err
	}
	return s, nil
}

// RemoteStream is media published by another endpoint. In routed sessions
// its Media is normally nil; subscriptions carry the received media.
type RemoteStream struct {
	streamBase
	origin ParticipantID

	descMu   sync.RWMutex
	settings PublicationSettings
	extra    SubscriptionCapabilities
	ended    bool
}

// NewRemoteStream builds a remote stream. An empty id is replaced by a
// generated one.
func NewRemoteStream(id StreamID, origin ParticipantID, media Media, source StreamSourceInfo, attrs map[string]string) (*RemoteStream, error) {
	s := &RemoteStream{origin: origin}
	if err := s.init(id, media, source, attrs); err != nil {
		return nil, err
	}
	return s, nil
}

// Origin is the participant that published the stream.
func (s *RemoteStream) Origin() ParticipantID { return s.origin }

// Settings returns the settings the stream was originally published with.
func (s *RemoteStream) Settings() PublicationSettings {
	s.descMu.RLock()
	defer s.descMu.RUnlock()
	return s.settings
}

// ExtraCapabilities returns what the remote side offers beyond the
// original settings.
func (s *RemoteStream) ExtraCapabilities() SubscriptionCapabilities {
	s.descMu.RLock()
	defer s.descMu.RUnlock()
	return s.extra
}

// UpdateDescription replaces the settings and extra capabilities snapshot
// and emits "updated".
func (s *RemoteStream) UpdateDescription(settings PublicationSettings, extra SubscriptionCapabilities) {
	s.descMu.Lock()
	if s.ended {
		s.descMu.Unlock()
		return
	}
	s.settings = settings
	s.extra = extra
	s.descMu.Unlock()

	s.dispatcher.Emit(StreamEventUpdated, StreamEvent{Type: StreamEventUpdated, Stream: s})
}

// End marks the stream unavailable and emits "ended" once.
func (s *RemoteStream) End() {
	s.descMu.Lock()
	if s.ended {
		s.descMu.Unlock()
		return
	}
	s.ended = true
	s.descMu.Unlock()

	s.dispatcher.Emit(StreamEventEnded, StreamEvent{Type: StreamEventEnded, Stream: s})
}

// Ended reports whether End has been called.
func (s *RemoteStream) Ended() bool {
	s.descMu.RLock()
	defer s.descMu.RUnlock()
	return s.ended
}
