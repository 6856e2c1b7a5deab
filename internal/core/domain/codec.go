package domain

import (
	"fmt"

	apperrors "rillconf/pkg/errors"
)

type AudioCodec string

const (
	AudioCodecPCMU       AudioCodec = "pcmu"
	AudioCodecPCMA       AudioCodec = "pcma"
	AudioCodecOpus       AudioCodec = "opus"
	AudioCodecG722       AudioCodec = "g722"
	AudioCodecISAC       AudioCodec = "iSAC"
	AudioCodecILBC       AudioCodec = "iLBC"
	AudioCodecAAC        AudioCodec = "aac"
	AudioCodecAC3        AudioCodec = "ac3"
	AudioCodecNellymoser AudioCodec = "nellymoser"
)

var audioCodecs = map[AudioCodec]bool{
	AudioCodecPCMU: true, AudioCodecPCMA: true, AudioCodecOpus: true,
	AudioCodecG722: true, AudioCodecISAC: true, AudioCodecILBC: true,
	AudioCodecAAC: true, AudioCodecAC3: true, AudioCodecNellymoser: true,
}

// Valid reports whether c is a recognised audio codec identifier.
func (c AudioCodec) Valid() bool { return audioCodecs[c] }

type VideoCodec string

const (
	VideoCodecVP8  VideoCodec = "vp8"
	VideoCodecVP9  VideoCodec = "vp9"
	VideoCodecH264 VideoCodec = "h264"
	VideoCodecH265 VideoCodec = "h265"
	VideoCodecAV1  VideoCodec = "av1"
	// Non-standard AV1 name still sent by some endpoints.
	VideoCodecAV1X VideoCodec = "av1x"
)

var videoCodecs = map[VideoCodec]bool{
	VideoCodecVP8: true, VideoCodecVP9: true, VideoCodecH264: true,
	VideoCodecH265: true, VideoCodecAV1: true, VideoCodecAV1X: true,
}

// Valid reports whether c is a recognised video codec identifier.
func (c VideoCodec) Valid() bool { return videoCodecs[c] }

// AudioCodecParameters describes the codec of an audio track. ChannelCount
// and ClockRate (Hz) are optional.
type AudioCodecParameters struct {
	Name         AudioCodec `json:"name"`
	ChannelCount *int       `json:"channelCount,omitempty"`
	ClockRate    *int       `json:"clockRate,omitempty"`
}

func (p AudioCodecParameters) Validate() error {
	if !p.Name.Valid() {
		return apperrors.NewValidationError("unknown audio codec %q", p.Name)
	}
	return nil
}

// Matches reports whether the requested parameters p are satisfied by the
// advertised parameters offered: names must be equal, and every optional
// field p sets must equal the advertised value.
func (p AudioCodecParameters) Matches(offered AudioCodecParameters) bool {
	if p.Name != offered.Name {
		return false
	}
	if p.ChannelCount != nil && (offered.ChannelCount == nil || *p.ChannelCount != *offered.ChannelCount) {
		return false
	}
	if p.ClockRate != nil && (offered.ClockRate == nil || *p.ClockRate != *offered.ClockRate) {
		return false
	}
	return true
}

func (p AudioCodecParameters) String() string {
	s := string(p.Name)
	if p.ClockRate != nil {
		s += fmt.Sprintf("/%d", *p.ClockRate)
	}
	if p.ChannelCount != nil {
		s += fmt.Sprintf("/%d", *p.ChannelCount)
	}
	return s
}

// VideoCodecParameters describes the codec of a video track. Profile does
// not apply to every codec.
type VideoCodecParameters struct {
	Name    VideoCodec `json:"name"`
	Profile *string    `json:"profile,omitempty"`
}

func (p VideoCodecParameters) Validate() error {
	if !p.Name.Valid() {
		return apperrors.NewValidationError("unknown video codec %q", p.Name)
	}
	return nil
}

// Matches follows the same rule as AudioCodecParameters.Matches.
func (p VideoCodecParameters) Matches(offered VideoCodecParameters) bool {
	if p.Name != offered.Name {
		return false
	}
	if p.Profile != nil && (offered.Profile == nil || *p.Profile != *offered.Profile) {
		return false
	}
	return true
}

func (p VideoCodecParameters) String() string {
	if p.Profile != nil {
		return string(p.Name) + "/" + *p.Profile
	}
	return string(p.Name)
}

// AudioEncodingParameters is one encoding layer for sending audio.
// MaxBitrate is in kbps.
type AudioEncodingParameters struct {
	Codec      *AudioCodecParameters `json:"codec,omitempty"`
	MaxBitrate *int                  `json:"maxBitrate,omitempty"`
}

func (p AudioEncodingParameters) Validate() error {
	if p.Codec != nil {
		if err := p.Codec.Validate(); err != nil {
			return err
		}
	}
	if p.MaxBitrate != nil && *p.MaxBitrate <= 0 {
		return apperrors.NewValidationError("audio maxBitrate must be positive, got %d", *p.MaxBitrate)
	}
	return nil
}

// VideoEncodingParameters is one encoding layer for sending video.
// MaxBitrate is in kbps.
type VideoEncodingParameters struct {
	Codec      *VideoCodecParameters `json:"codec,omitempty"`
	MaxBitrate *int                  `json:"maxBitrate,omitempty"`
}

func (p VideoEncodingParameters) Validate() error {
	if p.Codec != nil {
		if err := p.Codec.Validate(); err != nil {
			return err
		}
	}
	if p.MaxBitrate != nil && *p.MaxBitrate <= 0 {
		return apperrors.NewValidationError("video maxBitrate must be positive, got %d", *p.MaxBitrate)
	}
	return nil
}

type Resolution struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// TrackKind selects which tracks mute and unmute act on.
type TrackKind string

const (
	TrackKindAudio         TrackKind = "audio"
	TrackKindVideo         TrackKind = "video"
	TrackKindAudioAndVideo TrackKind = "av"
)

func (k TrackKind) Valid() bool {
	return k == TrackKindAudio || k == TrackKindVideo || k == TrackKindAudioAndVideo
}

// IncludesAudio reports whether k covers the audio track.
func (k TrackKind) IncludesAudio() bool {
	return k == TrackKindAudio || k == TrackKindAudioAndVideo
}

// IncludesVideo reports whether k covers the video track.
func (k TrackKind) IncludesVideo() bool {
	return k == TrackKindVideo || k == TrackKindAudioAndVideo
}

// Ptr returns a pointer to v. It keeps optional-field literals short.
func Ptr[T any](v T) *T {
	return &v
}
