package services

import (
	"context"
	"errors"
	"testing"

	"rillconf/internal/core/domain"
	"rillconf/internal/testutils"
	apperrors "rillconf/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func rosterSnapshot() *domain.RosterSnapshot {
	return &domain.RosterSnapshot{
		ConferenceID: "room-1",
		Self:         domain.ParticipantDescription{ID: "p-self", Role: domain.RolePresenter, UserID: "alice"},
		Participants: []domain.ParticipantDescription{
			{ID: "p-self", Role: domain.RolePresenter, UserID: "alice"},
			{ID: "p-2", Role: domain.RoleViewer, UserID: "bob"},
		},
		Streams: []domain.StreamDescription{
			{
				ID:     "s-1",
				Origin: "p-2",
				Source: domain.StreamSourceInfo{Audio: domain.AudioSourceMic, Video: domain.VideoSourceCamera},
				Settings: domain.PublicationSettings{
					Audio: []domain.AudioPublicationSettings{{Codec: &domain.AudioCodecParameters{Name: domain.AudioCodecOpus}}},
					Video: []domain.VideoPublicationSettings{{
						Codec:      &domain.VideoCodecParameters{Name: domain.VideoCodecVP8},
						Resolution: &domain.Resolution{Width: 640, Height: 480},
						FrameRate:  domain.Ptr(30),
					}},
				},
			},
		},
	}
}

func newTestRoster(repo *testutils.MockRosterRepository) *Roster {
	if repo == nil {
		return NewRoster(nil, testutils.NopMetrics{}, zap.NewNop().Sugar())
	}
	return NewRoster(repo, testutils.NopMetrics{}, zap.NewNop().Sugar())
}

func TestRoster_Rebuild(t *testing.T) {
	repo := &testutils.MockRosterRepository{}
	repo.On("Save", mock.Anything, mock.AnythingOfType("*domain.RosterSnapshot")).Return(nil)
	r := newTestRoster(repo)

	require.NoError(t, r.Rebuild(context.Background(), rosterSnapshot()))

	info := r.Info()
	assert.Equal(t, domain.ConferenceID("room-1"), info.ID)
	assert.Equal(t, domain.ParticipantID("p-self"), info.Self.ID())
	assert.Len(t, info.Participants, 2)
	require.Len(t, info.RemoteStreams, 1)
	assert.Equal(t, 30, *info.RemoteStreams[0].Settings().Video[0].FrameRate)

	origin, err := r.OriginOf("s-1")
	require.NoError(t, err)
	assert.Equal(t, domain.UserID("bob"), origin.UserID())

	_, err = r.RemoteStream("missing")
	assert.ErrorIs(t, err, domain.ErrStreamNotFound)
	repo.AssertCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestRoster_DiffEvents(t *testing.T) {
	r := newTestRoster(nil)
	ctx := context.Background()
	require.NoError(t, r.Rebuild(ctx, rosterSnapshot()))

	first, err := r.RemoteStream("s-1")
	require.NoError(t, err)

	var joined, left []domain.ParticipantID
	var added []domain.StreamID
	r.On(RosterEventParticipantJoined, func(e RosterEvent) { joined = append(joined, e.Participant.ID()) })
	r.On(RosterEventParticipantLeft, func(e RosterEvent) { left = append(left, e.Participant.ID()) })
	r.On(RosterEventStreamAdded, func(e RosterEvent) { added = append(added, e.Stream.ID()) })

	streamEnded := false
	first.On(domain.StreamEventEnded, func(domain.StreamEvent) { streamEnded = true })

	next := rosterSnapshot()
	next.Participants = []domain.ParticipantDescription{
		next.Participants[0],
		{ID: "p-3", Role: domain.RoleGuest, UserID: "carol"},
	}
	next.Streams = []domain.StreamDescription{{
		ID:     "s-2",
		Origin: "p-3",
		Source: domain.StreamSourceInfo{Video: domain.VideoSourceScreenCast},
	}}
	require.NoError(t, r.Rebuild(ctx, next))

	assert.Equal(t, []domain.ParticipantID{"p-3"}, joined)
	assert.Equal(t, []domain.ParticipantID{"p-2"}, left)
	assert.Equal(t, []domain.StreamID{"s-2"}, added)
	assert.True(t, streamEnded)
	assert.True(t, first.Ended())
}

func TestRoster_KeepsStreamIdentity(t *testing.T) {
	r := newTestRoster(nil)
	ctx := context.Background()
	require.NoError(t, r.Rebuild(ctx, rosterSnapshot()))
	before, _ := r.RemoteStream("s-1")

	updates := 0
	before.On(domain.StreamEventUpdated, func(domain.StreamEvent) { updates++ })

	require.NoError(t, r.Rebuild(ctx, rosterSnapshot()))
	assert.Equal(t, 0, updates)

	changed := rosterSnapshot()
	changed.Streams[0].Settings.Video[0].FrameRate = domain.Ptr(15)
	require.NoError(t, r.Rebuild(ctx, changed))

	after, _ := r.RemoteStream("s-1")
	assert.Same(t, before, after)
	assert.Equal(t, 1, updates)
	assert.Equal(t, 15, *after.Settings().Video[0].FrameRate)
}

func TestRoster_RejectsBadSnapshot(t *testing.T) {
	r := newTestRoster(nil)

	err := r.Rebuild(context.Background(), nil)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeProtocol))

	bad := rosterSnapshot()
	bad.Streams = append(bad.Streams, bad.Streams[0])
	err = r.Rebuild(context.Background(), bad)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeProtocol))

	bad = rosterSnapshot()
	bad.Streams[0].Source.Video = "webcam"
	err = r.Rebuild(context.Background(), bad)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidation))
	assert.Empty(t, r.ConferenceID())
}

func TestRoster_PersistFailureIsNotFatal(t *testing.T) {
	repo := &testutils.MockRosterRepository{}
	repo.On("Save", mock.Anything, mock.Anything).Return(errors.New("redis down"))
	r := newTestRoster(repo)

	require.NoError(t, r.Rebuild(context.Background(), rosterSnapshot()))
	assert.Equal(t, domain.ConferenceID("room-1"), r.ConferenceID())
}

func TestRoster_Clear(t *testing.T) {
	repo := &testutils.MockRosterRepository{}
	repo.On("Save", mock.Anything, mock.Anything).Return(nil)
	repo.On("Delete", mock.Anything, domain.ConferenceID("room-1")).Return(nil)
	r := newTestRoster(repo)
	ctx := context.Background()

	require.NoError(t, r.Rebuild(ctx, rosterSnapshot()))
	s, _ := r.RemoteStream("s-1")

	r.Clear(ctx)
	assert.True(t, s.Ended())
	assert.Empty(t, r.Info().RemoteStreams)
	repo.AssertCalled(t, "Delete", mock.Anything, domain.ConferenceID("room-1"))
}
