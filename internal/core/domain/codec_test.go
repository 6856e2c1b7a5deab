package domain

import (
	"testing"

	apperrors "rillconf/pkg/errors"

	"github.com/stretchr/testify/assert"
)

func TestCodecNames(t *testing.T) {
	assert.True(t, AudioCodecOpus.Valid())
	assert.True(t, VideoCodecAV1X.Valid())
	assert.False(t, AudioCodec("speex").Valid())
	assert.False(t, VideoCodec("theora").Valid())
}

func TestAudioCodecParameters_Matches(t *testing.T) {
	offered := AudioCodecParameters{Name: AudioCodecOpus, ChannelCount: Ptr(2), ClockRate: Ptr(48000)}

	assert.True(t, AudioCodecParameters{Name: AudioCodecOpus}.Matches(offered))
	assert.True(t, AudioCodecParameters{Name: AudioCodecOpus, ClockRate: Ptr(48000)}.Matches(offered))
	assert.False(t, AudioCodecParameters{Name: AudioCodecOpus, ChannelCount: Ptr(1)}.Matches(offered))
	assert.False(t, AudioCodecParameters{Name: AudioCodecPCMU}.Matches(offered))
	assert.False(t, AudioCodecParameters{Name: AudioCodecPCMU, ClockRate: Ptr(8000)}.Matches(AudioCodecParameters{Name: AudioCodecPCMU}))
}

func TestVideoCodecParameters_Matches(t *testing.T) {
	offered := VideoCodecParameters{Name: VideoCodecH264, Profile: Ptr("CB")}

	assert.True(t, VideoCodecParameters{Name: VideoCodecH264}.Matches(offered))
	assert.True(t, VideoCodecParameters{Name: VideoCodecH264, Profile: Ptr("CB")}.Matches(offered))
	assert.False(t, VideoCodecParameters{Name: VideoCodecH264, Profile: Ptr("H")}.Matches(offered))
	assert.Equal(t, "h264/CB", offered.String())
}

func TestEncodingParameters_Validate(t *testing.T) {
	assert.NoError(t, AudioEncodingParameters{}.Validate())
	assert.NoError(t, VideoEncodingParameters{MaxBitrate: Ptr(800)}.Validate())

	err := VideoEncodingParameters{MaxBitrate: Ptr(-1)}.Validate()
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidation))

	err = AudioEncodingParameters{Codec: &AudioCodecParameters{Name: "speex"}}.Validate()
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidation))
}

func TestTrackKind(t *testing.T) {
	assert.True(t, TrackKindAudioAndVideo.IncludesAudio())
	assert.True(t, TrackKindAudioAndVideo.IncludesVideo())
	assert.False(t, TrackKindAudio.IncludesVideo())
	assert.False(t, TrackKind("").Valid())
}
