package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"rillconf/internal/core/domain"
	"rillconf/internal/testutils"
	apperrors "rillconf/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestPublication(t *testing.T) (*Publication, *testutils.MockSessionControl, *testutils.MockTransportHandle) {
	t.Helper()

	media := testutils.FakeMedia{Audio: true, Video: true}
	stream, err := domain.NewLocalStream(media, domain.StreamSourceInfo{
		Audio: domain.AudioSourceMic,
		Video: domain.VideoSourceCamera,
	}, nil)
	require.NoError(t, err)

	control := &testutils.MockSessionControl{}
	handle := &testutils.MockTransportHandle{}
	pub, err := NewPublication(PublicationConfig{
		ID:        "pub-1",
		Stream:    stream,
		Transport: domain.TransportSettings{Type: domain.TransportTypeWebRTC},
		Control:   control,
		Handle:    handle,
	})
	require.NoError(t, err)
	return pub, control, handle
}

func TestNewPublication_RequiresID(t *testing.T) {
	_, err := NewPublication(PublicationConfig{Control: &testutils.MockSessionControl{}})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidation))
}

func TestPublication_StopTwice(t *testing.T) {
	pub, control, handle := newTestPublication(t)
	ctx := context.Background()

	control.On("RequestStop", ctx, domain.SessionID("pub-1")).Return(nil).Once()
	handle.On("Close").Return(nil).Once()

	ended := 0
	pub.On(EventEnded, func(Event) { ended++ })

	require.NoError(t, pub.Stop(ctx))
	assert.Equal(t, StateEnded, pub.State())

	require.NoError(t, pub.Stop(ctx))
	assert.Equal(t, 1, ended)
	control.AssertNumberOfCalls(t, "RequestStop", 1)
	handle.AssertNumberOfCalls(t, "Close", 1)
}

func TestPublication_StopReportsRemoteFailure(t *testing.T) {
	pub, control, handle := newTestPublication(t)
	ctx := context.Background()

	control.On("RequestStop", ctx, domain.SessionID("pub-1")).Return(errors.New("socket closed"))
	handle.On("Close").Return(nil)

	err := pub.Stop(ctx)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeTransport))
	assert.Equal(t, StateEnded, pub.State())
}

func TestPublication_MuteAndUnmute(t *testing.T) {
	pub, control, handle := newTestPublication(t)
	ctx := context.Background()

	control.On("RequestMute", ctx, domain.SessionID("pub-1"), domain.TrackKindVideo).Return(nil)
	control.On("RequestUnmute", ctx, domain.SessionID("pub-1"), domain.TrackKindVideo).Return(nil)
	handle.On("SetMuted", domain.TrackKindVideo, mock.Anything).Return(nil)

	var got []Event
	pub.On(EventMute, func(e Event) { got = append(got, e) })
	pub.On(EventUnmute, func(e Event) { got = append(got, e) })

	require.NoError(t, pub.Mute(ctx, domain.TrackKindVideo))
	assert.Equal(t, StateMutedVideo, pub.State())
	assert.True(t, pub.Muted(domain.TrackKindVideo))
	assert.False(t, pub.Muted(domain.TrackKindAudio))

	require.NoError(t, pub.Unmute(ctx, domain.TrackKindVideo))
	assert.Equal(t, StateActive, pub.State())

	require.Len(t, got, 2)
	assert.Equal(t, EventMute, got[0].Type)
	assert.Equal(t, domain.TrackKindVideo, got[0].Kind)
	assert.Equal(t, EventUnmute, got[1].Type)
	handle.AssertCalled(t, "SetMuted", domain.TrackKindVideo, true)
	handle.AssertCalled(t, "SetMuted", domain.TrackKindVideo, false)
}

func TestPublication_MuteRevertedWhenTransportFails(t *testing.T) {
	pub, control, handle := newTestPublication(t)
	ctx := context.Background()

	control.On("RequestMute", ctx, domain.SessionID("pub-1"), domain.TrackKindAudio).Return(nil).Once()
	control.On("RequestUnmute", ctx, domain.SessionID("pub-1"), domain.TrackKindAudio).Return(nil).Once()
	handle.On("SetMuted", domain.TrackKindAudio, true).Return(errors.New("sender gone"))

	muted := false
	pub.On(EventMute, func(Event) { muted = true })

	err := pub.Mute(ctx, domain.TrackKindAudio)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeTransport))
	assert.Equal(t, StateActive, pub.State())
	assert.False(t, pub.Muted(domain.TrackKindAudio))
	assert.False(t, muted)
	control.AssertCalled(t, "RequestUnmute", ctx, domain.SessionID("pub-1"), domain.TrackKindAudio)
}

func TestPublication_MuteBothKinds(t *testing.T) {
	pub, control, handle := newTestPublication(t)
	ctx := context.Background()

	control.On("RequestMute", ctx, domain.SessionID("pub-1"), domain.TrackKindAudioAndVideo).Return(nil)
	handle.On("SetMuted", domain.TrackKindAudioAndVideo, true).Return(nil)

	require.NoError(t, pub.Mute(ctx, domain.TrackKindAudioAndVideo))
	assert.Equal(t, StateMuted, pub.State())
	assert.True(t, pub.Muted(domain.TrackKindAudioAndVideo))
}

func TestPublication_MuteFailureLeavesState(t *testing.T) {
	pub, control, _ := newTestPublication(t)
	ctx := context.Background()

	control.On("RequestMute", ctx, domain.SessionID("pub-1"), domain.TrackKindAudio).Return(errors.New("timeout"))

	muted := false
	pub.On(EventMute, func(Event) { muted = true })

	err := pub.Mute(ctx, domain.TrackKindAudio)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeTransport))
	assert.False(t, muted)
	assert.Equal(t, StateActive, pub.State())
}

func TestPublication_InvalidKind(t *testing.T) {
	pub, _, _ := newTestPublication(t)
	err := pub.Mute(context.Background(), domain.TrackKind("data"))
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidation))
}

func TestPublication_OperationsAfterStop(t *testing.T) {
	pub, control, handle := newTestPublication(t)
	ctx := context.Background()

	control.On("RequestStop", ctx, domain.SessionID("pub-1")).Return(nil)
	handle.On("Close").Return(nil)
	require.NoError(t, pub.Stop(ctx))

	muted := false
	pub.On(EventMute, func(Event) { muted = true })

	err := pub.Mute(ctx, domain.TrackKindAudio)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidState))
	assert.False(t, muted)

	_, err = pub.GetStats(ctx)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidState))
	control.AssertNotCalled(t, "RequestMute", mock.Anything, mock.Anything, mock.Anything)
}

func TestPublication_RemoteEndAfterError(t *testing.T) {
	pub, _, handle := newTestPublication(t)
	handle.On("Close").Return(nil)

	var got []Event
	pub.On(EventError, func(e Event) { got = append(got, e) })
	pub.On(EventEnded, func(e Event) { got = append(got, e) })

	pub.HandleError("ice failed")
	pub.HandleEnded()
	pub.HandleError("again")

	require.Len(t, got, 1)
	assert.Equal(t, EventError, got[0].Type)
	assert.True(t, apperrors.HasCode(got[0].Err, apperrors.ErrCodeTransport))
	assert.Equal(t, StateErrored, pub.State())
	handle.AssertNumberOfCalls(t, "Close", 1)
}

func TestPublication_StopAfterRemoteEnd(t *testing.T) {
	pub, control, handle := newTestPublication(t)
	handle.On("Close").Return(nil)

	pub.HandleEnded()
	require.NoError(t, pub.Stop(context.Background()))
	control.AssertNotCalled(t, "RequestStop", mock.Anything, mock.Anything)
}

func TestPublication_ConcurrentStop(t *testing.T) {
	pub, control, handle := newTestPublication(t)
	control.On("RequestStop", mock.Anything, domain.SessionID("pub-1")).Return(nil)
	handle.On("Close").Return(nil)

	var mu sync.Mutex
	ended := 0
	pub.On(EventEnded, func(Event) {
		mu.Lock()
		ended++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = pub.Stop(context.Background())
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ended)
	control.AssertNumberOfCalls(t, "RequestStop", 1)
}

func TestPublication_GetStats(t *testing.T) {
	pub, _, handle := newTestPublication(t)
	ctx := context.Background()

	stats := &domain.Stats{BytesSent: 1200}
	handle.On("GetStats", ctx).Return(stats, nil)

	got, err := pub.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1200), got.BytesSent)
}
