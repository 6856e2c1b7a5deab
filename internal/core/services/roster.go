package services

import (
	"context"
	"reflect"
	"sync"

	"rillconf/internal/core/domain"
	"rillconf/internal/core/ports"
	"rillconf/pkg/events"
	apperrors "rillconf/pkg/errors"

	"go.uber.org/zap"
)

const (
	RosterEventParticipantJoined events.Type = "participantjoined"
	RosterEventParticipantLeft   events.Type = "participantleft"
	RosterEventStreamAdded       events.Type = "streamadded"
)

// RosterEvent reports a membership change found while rebuilding the
// roster. Stream removals and updates are reported on the stream itself.
type RosterEvent struct {
	Type        events.Type
	Participant domain.Participant
	Stream      *domain.RemoteStream
}

// Roster is the read model of the joined conference. It is replaced
// wholesale from signaling snapshots and never edited piecemeal. It only
// references remote streams; subscriptions stay owned by the caller.
type Roster struct {
	repo    ports.RosterRepository
	metrics ports.MetricsRecorder
	logger  *zap.SugaredLogger
	events  *events.Dispatcher[RosterEvent]

	mu           sync.RWMutex
	id           domain.ConferenceID
	self         domain.Participant
	participants []domain.Participant
	streams      []*domain.RemoteStream
	byStream     map[domain.StreamID]*domain.RemoteStream
	descriptions map[domain.StreamID]domain.StreamDescription
}

// NewRoster creates an empty roster. repo may be nil to skip persistence.
func NewRoster(repo ports.RosterRepository, metrics ports.MetricsRecorder, logger *zap.SugaredLogger) *Roster {
	return &Roster{
		repo:         repo,
		metrics:      metrics,
		logger:       logger,
		events:       events.NewDispatcher[RosterEvent](logger),
		byStream:     make(map[domain.StreamID]*domain.RemoteStream),
		descriptions: make(map[domain.StreamID]domain.StreamDescription),
	}
}

func (r *Roster) On(t events.Type, h events.Handler[RosterEvent]) events.Token {
	return r.events.On(t, h)
}

func (r *Roster) Off(tok events.Token) bool {
	return r.events.Off(tok)
}

// Rebuild replaces the roster with snapshot. Streams that keep their id
// keep their identity; streams missing from snapshot are ended and
// participants missing from it are reported as left.
func (r *Roster) Rebuild(ctx context.Context, snapshot *domain.RosterSnapshot) error {
	if err := validateSnapshot(snapshot); err != nil {
		return err
	}

	participants := make([]domain.Participant, 0, len(snapshot.Participants))
	for _, p := range snapshot.Participants {
		participants = append(participants, domain.NewParticipant(p.ID, p.Role, p.UserID))
	}

	r.mu.Lock()
	sameConference := r.id == snapshot.ConferenceID

	streams := make([]*domain.RemoteStream, 0, len(snapshot.Streams))
	byStream := make(map[domain.StreamID]*domain.RemoteStream, len(snapshot.Streams))
	descriptions := make(map[domain.StreamID]domain.StreamDescription, len(snapshot.Streams))
	var added, updated []*domain.RemoteStream

	for _, desc := range snapshot.Streams {
		existing, ok := r.byStream[desc.ID]
		if ok && sameConference {
			if !reflect.DeepEqual(r.descriptions[desc.ID], desc) {
				updated = append(updated, existing)
			}
			streams = append(streams, existing)
			byStream[desc.ID] = existing
			descriptions[desc.ID] = desc
			continue
		}
		s, err := domain.NewRemoteStream(desc.ID, desc.Origin, nil, desc.Source, desc.Attributes)
		if err != nil {
			r.mu.Unlock()
			return err
		}
		s.UpdateDescription(desc.Settings, desc.ExtraCapabilities)
		streams = append(streams, s)
		byStream[desc.ID] = s
		descriptions[desc.ID] = desc
		added = append(added, s)
	}

	var ended []*domain.RemoteStream
	for id, s := range r.byStream {
		if kept, ok := byStream[id]; !ok || kept != s {
			ended = append(ended, s)
		}
	}

	var joined, left []domain.Participant
	previous := make(map[domain.ParticipantID]bool, len(r.participants))
	if sameConference {
		for _, p := range r.participants {
			previous[p.ID()] = true
		}
	}
	current := make(map[domain.ParticipantID]bool, len(participants))
	for _, p := range participants {
		current[p.ID()] = true
		if !previous[p.ID()] {
			joined = append(joined, p)
		}
	}
	for _, p := range r.participants {
		if !sameConference || !current[p.ID()] {
			left = append(left, p)
		}
	}

	r.id = snapshot.ConferenceID
	r.self = domain.NewParticipant(snapshot.Self.ID, snapshot.Self.Role, snapshot.Self.UserID)
	r.participants = participants
	r.streams = streams
	r.byStream = byStream
	r.descriptions = descriptions
	r.mu.Unlock()

	for _, s := range updated {
		desc := descriptions[s.ID()]
		s.UpdateDescription(desc.Settings, desc.ExtraCapabilities)
	}
	for _, s := range ended {
		s.End()
	}
	for _, p := range left {
		r.events.Emit(RosterEventParticipantLeft, RosterEvent{Type: RosterEventParticipantLeft, Participant: p})
	}
	for _, p := range joined {
		r.events.Emit(RosterEventParticipantJoined, RosterEvent{Type: RosterEventParticipantJoined, Participant: p})
	}
	for _, s := range added {
		r.events.Emit(RosterEventStreamAdded, RosterEvent{Type: RosterEventStreamAdded, Stream: s})
	}

	r.metrics.RosterChanged(len(participants), len(streams))
	r.logger.Debugw("roster rebuilt",
		"conference_id", snapshot.ConferenceID,
		"participants", len(participants),
		"streams", len(streams),
		"added", len(added),
		"ended", len(ended),
	)

	if r.repo != nil {
		if err := r.repo.Save(ctx, snapshot); err != nil {
			r.logger.Warnw("failed to persist roster", "conference_id", snapshot.ConferenceID, "error", err)
		}
	}
	return nil
}

func validateSnapshot(snapshot *domain.RosterSnapshot) error {
	if snapshot == nil {
		return apperrors.NewProtocolError("roster snapshot is missing")
	}
	if snapshot.ConferenceID == "" {
		return apperrors.NewProtocolError("roster snapshot has no conference id")
	}
	seen := make(map[domain.StreamID]bool, len(snapshot.Streams))
	for _, s := range snapshot.Streams {
		if s.ID == "" {
			return apperrors.NewProtocolError("roster stream without id")
		}
		if seen[s.ID] {
			return apperrors.NewProtocolError("duplicate stream %s in roster", s.ID)
		}
		seen[s.ID] = true
	}
	for _, p := range snapshot.Participants {
		if p.ID == "" {
			return apperrors.NewProtocolError("roster participant without id")
		}
	}
	return nil
}

// Clear ends every remote stream and forgets the conference.
func (r *Roster) Clear(ctx context.Context) {
	r.mu.Lock()
	id := r.id
	streams := r.streams
	r.id = ""
	r.self = domain.Participant{}
	r.participants = nil
	r.streams = nil
	r.byStream = make(map[domain.StreamID]*domain.RemoteStream)
	r.descriptions = make(map[domain.StreamID]domain.StreamDescription)
	r.mu.Unlock()

	for _, s := range streams {
		s.End()
	}
	r.metrics.RosterChanged(0, 0)

	if r.repo != nil && id != "" {
		if err := r.repo.Delete(ctx, id); err != nil {
			r.logger.Warnw("failed to delete roster", "conference_id", id, "error", err)
		}
	}
}

// ConferenceID returns the joined conference, or "" before the first
// snapshot.
func (r *Roster) ConferenceID() domain.ConferenceID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.id
}

// Info returns a snapshot of the conference.
func (r *Roster) Info() domain.ConferenceInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info := domain.ConferenceInfo{
		ID:            r.id,
		Self:          r.self,
		Participants:  make([]domain.Participant, len(r.participants)),
		RemoteStreams: make([]*domain.RemoteStream, len(r.streams)),
	}
	copy(info.Participants, r.participants)
	copy(info.RemoteStreams, r.streams)
	return info
}

func (r *Roster) Participant(id domain.ParticipantID) (domain.Participant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.participants {
		if p.ID() == id {
			return p, nil
		}
	}
	return domain.Participant{}, domain.ErrParticipantNotFound
}

func (r *Roster) RemoteStream(id domain.StreamID) (*domain.RemoteStream, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byStream[id]
	if !ok {
		return nil, domain.ErrStreamNotFound
	}
	return s, nil
}

// OriginOf returns the participant that published streamID.
func (r *Roster) OriginOf(streamID domain.StreamID) (domain.Participant, error) {
	s, err := r.RemoteStream(streamID)
	if err != nil {
		return domain.Participant{}, err
	}
	return r.Participant(s.Origin())
}
