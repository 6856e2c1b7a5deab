package domain

import (
	"testing"

	apperrors "rillconf/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testMedia struct {
	audio, video bool
}

func (m testMedia) HasAudio() bool { return m.audio }
func (m testMedia) HasVideo() bool { return m.video }

func TestNewStreamSourceInfo(t *testing.T) {
	info, err := NewStreamSourceInfo("mic", "camera", false)
	require.NoError(t, err)
	assert.Equal(t, AudioSourceMic, info.Audio)
	assert.Equal(t, VideoSourceCamera, info.Video)

	_, err = NewStreamSourceInfo("mic", "webcam", false)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidation))

	_, err = NewStreamSourceInfo("speaker", "", false)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidation))

	_, err = NewStreamSourceInfo("", "", true)
	assert.NoError(t, err)
}

func TestNewLocalStream(t *testing.T) {
	source := StreamSourceInfo{Audio: AudioSourceMic, Video: VideoSourceCamera}

	s, err := NewLocalStream(testMedia{audio: true, video: true}, source, map[string]string{"name": "cam"})
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID())
	assert.Equal(t, "cam", s.Attributes()["name"])

	attrs := s.Attributes()
	attrs["name"] = "changed"
	assert.Equal(t, "cam", s.Attributes()["name"])

	_, err = NewLocalStream(nil, source, nil)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidation))

	_, err = NewLocalStream(testMedia{video: true}, StreamSourceInfo{Audio: AudioSourceMic}, nil)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidation))
}

func TestLocalStream_ReplaceMedia(t *testing.T) {
	s, err := NewLocalStream(testMedia{audio: true}, StreamSourceInfo{Audio: AudioSourceMic}, nil)
	require.NoError(t, err)

	err = s.ReplaceMedia(testMedia{audio: true, video: true})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidation))

	require.NoError(t, s.ReplaceMedia(testMedia{audio: true}))
}

func TestRemoteStream_Lifecycle(t *testing.T) {
	s, err := NewRemoteStream("s1", "p1", nil, StreamSourceInfo{Video: VideoSourceScreenCast}, nil)
	require.NoError(t, err)
	assert.Equal(t, StreamID("s1"), s.ID())
	assert.Equal(t, ParticipantID("p1"), s.Origin())
	assert.Nil(t, s.Media())

	var got []StreamEvent
	s.On(StreamEventUpdated, func(e StreamEvent) { got = append(got, e) })
	s.On(StreamEventEnded, func(e StreamEvent) { got = append(got, e) })

	settings := PublicationSettings{Video: []VideoPublicationSettings{{FrameRate: Ptr(30)}}}
	s.UpdateDescription(settings, SubscriptionCapabilities{})
	assert.Equal(t, settings, s.Settings())

	s.End()
	s.End()
	s.UpdateDescription(PublicationSettings{}, SubscriptionCapabilities{})

	require.Len(t, got, 2)
	assert.Equal(t, StreamEventUpdated, got[0].Type)
	assert.Equal(t, StreamEventEnded, got[1].Type)
	assert.True(t, s.Ended())
	assert.Equal(t, settings, s.Settings())
}

func TestCapabilitiesOf(t *testing.T) {
	s, err := NewRemoteStream("s1", "p1", nil, StreamSourceInfo{Audio: AudioSourceMic, Video: VideoSourceCamera}, nil)
	require.NoError(t, err)

	s.UpdateDescription(PublicationSettings{
		Audio: []AudioPublicationSettings{{Codec: &AudioCodecParameters{Name: AudioCodecOpus}}},
		Video: []VideoPublicationSettings{
			{Codec: &VideoCodecParameters{Name: VideoCodecVP8}, Resolution: &Resolution{1280, 720}, FrameRate: Ptr(30), RID: Ptr("f")},
			{Codec: &VideoCodecParameters{Name: VideoCodecVP8}, Resolution: &Resolution{640, 360}, FrameRate: Ptr(30), RID: Ptr("h")},
		},
	}, SubscriptionCapabilities{
		Video: &VideoSubscriptionCapabilities{
			Codecs:             []VideoCodecParameters{{Name: VideoCodecH264}},
			Resolutions:        []Resolution{{640, 360}, {320, 180}},
			BitrateMultipliers: []float64{0.5},
		},
	})

	caps := CapabilitiesOf(s)
	require.NotNil(t, caps.Audio)
	require.NotNil(t, caps.Video)
	assert.Len(t, caps.Audio.Codecs, 1)
	assert.Equal(t, []VideoCodecParameters{{Name: VideoCodecVP8}, {Name: VideoCodecH264}}, caps.Video.Codecs)
	assert.Equal(t, []Resolution{{1280, 720}, {640, 360}, {320, 180}}, caps.Video.Resolutions)
	assert.Equal(t, []int{30}, caps.Video.FrameRates)
	assert.Equal(t, []float64{0.5}, caps.Video.BitrateMultipliers)
	assert.Equal(t, []string{"f", "h"}, caps.Video.RIDs)
}

func TestCapabilitiesOf_AudioOnly(t *testing.T) {
	s, err := NewRemoteStream("s2", "p1", nil, StreamSourceInfo{Audio: AudioSourceMic}, nil)
	require.NoError(t, err)
	s.UpdateDescription(PublicationSettings{
		Audio: []AudioPublicationSettings{{Codec: &AudioCodecParameters{Name: AudioCodecOpus}}},
	}, SubscriptionCapabilities{})

	caps := CapabilitiesOf(s)
	assert.NotNil(t, caps.Audio)
	assert.Nil(t, caps.Video)
}
