// Package session holds the client-side view of live publications and
// subscriptions. Both share one lifecycle:
//
//	Initializing -> Active <-> Muted(audio|video|both) -> Ended | Errored
//
// Ended and Errored are terminal. Each entity emits "ended" or "error" at
// most once, and only one of the two.
package session

import (
	"context"
	"errors"
	"sync"

	"rillconf/internal/core/domain"
	"rillconf/internal/core/ports"
	"rillconf/pkg/events"
	apperrors "rillconf/pkg/errors"

	"go.uber.org/zap"
)

type State string

const (
	StateInitializing State = "initializing"
	StateActive       State = "active"
	StateMutedAudio   State = "muted-audio"
	StateMutedVideo   State = "muted-video"
	StateMuted        State = "muted"
	StateEnded        State = "ended"
	StateErrored      State = "errored"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateEnded || s == StateErrored
}

const (
	EventEnded  events.Type = "ended"
	EventError  events.Type = "error"
	EventMute   events.Type = "mute"
	EventUnmute events.Type = "unmute"
)

// Event is delivered to handlers registered with On. Kind is set for mute
// and unmute, Err for error.
type Event struct {
	Type      events.Type
	SessionID domain.SessionID
	Kind      domain.TrackKind
	Err       error
}

var errNoTransport = errors.New("transport handle not attached")

// phase is the non-derived part of State.
type phase int

const (
	phaseInitializing phase = iota
	phaseActive
	phaseEnded
	phaseErrored
)

type lifecycle struct {
	id        domain.SessionID
	transport domain.TransportSettings
	control   ports.SessionControl
	handle    ports.TransportHandle
	events    *events.Dispatcher[Event]
	logger    *zap.SugaredLogger

	// opMu keeps mute, unmute and option updates in call order. Stop and
	// remote notifications never wait on it.
	opMu sync.Mutex

	mu         sync.RWMutex
	phase      phase
	audioMuted bool
	videoMuted bool
	closeOnce  sync.Once
	done       chan struct{}
}

func (l *lifecycle) init(id domain.SessionID, transport domain.TransportSettings, control ports.SessionControl, handle ports.TransportHandle, start phase, logger *zap.SugaredLogger) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	l.id = id
	l.transport = transport
	l.control = control
	l.handle = handle
	l.phase = start
	l.done = make(chan struct{})
	l.logger = logger.With("session_id", string(id))
	l.events = events.NewDispatcher[Event](l.logger)
}

func (l *lifecycle) ID() domain.SessionID                 { return l.id }
func (l *lifecycle) Transport() domain.TransportSettings { return l.transport }

func (l *lifecycle) On(t events.Type, h events.Handler[Event]) events.Token {
	return l.events.On(t, h)
}

func (l *lifecycle) Off(tok events.Token) bool {
	return l.events.Off(tok)
}

// Done is closed when the session reaches Ended or Errored.
func (l *lifecycle) Done() <-chan struct{} { return l.done }

// State returns the current lifecycle state.
func (l *lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.stateLocked()
}

func (l *lifecycle) stateLocked() State {
	switch l.phase {
	case phaseInitializing:
		return StateInitializing
	case phaseEnded:
		return StateEnded
	case phaseErrored:
		return StateErrored
	}
	switch {
	case l.audioMuted && l.videoMuted:
		return StateMuted
	case l.audioMuted:
		return StateMutedAudio
	case l.videoMuted:
		return StateMutedVideo
	}
	return StateActive
}

// Muted reports whether every track selected by kind is muted.
func (l *lifecycle) Muted(kind domain.TrackKind) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	switch kind {
	case domain.TrackKindAudio:
		return l.audioMuted
	case domain.TrackKindVideo:
		return l.videoMuted
	case domain.TrackKindAudioAndVideo:
		return l.audioMuted && l.videoMuted
	}
	return false
}

// Stop ends the session. The first call moves the session to Ended, emits
// "ended" and tells the remote side; its error, if any, is returned but the
// session stays ended. Later calls return nil without any remote request.
func (l *lifecycle) Stop(ctx context.Context) error {
	if !l.terminate(phaseEnded) {
		return nil
	}
	l.logger.Infow("session stopped locally")
	l.events.Emit(EventEnded, Event{Type: EventEnded, SessionID: l.id})

	var stopErr error
	if err := l.control.RequestStop(ctx, l.id); err != nil {
		stopErr = apperrors.NewTransportError(err, "stop")
		l.logger.Warnw("remote stop failed", "error", err)
	}
	if err := l.closeHandle(); err != nil && stopErr == nil {
		stopErr = apperrors.NewTransportError(err, "close transport")
	}
	return stopErr
}

// HandleEnded applies a remote end notification.
func (l *lifecycle) HandleEnded() {
	if !l.terminate(phaseEnded) {
		return
	}
	l.logger.Infow("session ended by remote side")
	l.events.Emit(EventEnded, Event{Type: EventEnded, SessionID: l.id})
	l.closeQuietly()
}

// HandleError applies a remote failure notification.
func (l *lifecycle) HandleError(reason string) {
	if !l.terminate(phaseErrored) {
		return
	}
	err := apperrors.NewTransportError(errors.New(reason), "session")
	l.logger.Warnw("session failed", "reason", reason)
	l.events.Emit(EventError, Event{Type: EventError, SessionID: l.id, Err: err})
	l.closeQuietly()
}

// HandleMute applies a remote mute notification.
func (l *lifecycle) HandleMute(kind domain.TrackKind) {
	if l.setMuted(kind, true) {
		l.events.Emit(EventMute, Event{Type: EventMute, SessionID: l.id, Kind: kind})
	}
}

// HandleUnmute applies a remote unmute notification.
func (l *lifecycle) HandleUnmute(kind domain.TrackKind) {
	if l.setMuted(kind, false) {
		l.events.Emit(EventUnmute, Event{Type: EventUnmute, SessionID: l.id, Kind: kind})
	}
}

// Mute stops sending or receiving the tracks selected by kind.
func (l *lifecycle) Mute(ctx context.Context, kind domain.TrackKind) error {
	return l.toggle(ctx, kind, true)
}

// Unmute resumes the tracks selected by kind.
func (l *lifecycle) Unmute(ctx context.Context, kind domain.TrackKind) error {
	return l.toggle(ctx, kind, false)
}

func (l *lifecycle) toggle(ctx context.Context, kind domain.TrackKind, muted bool) error {
	op := "unmute"
	if muted {
		op = "mute"
	}
	if !kind.Valid() {
		return apperrors.NewValidationError("invalid track kind %q", kind)
	}

	l.opMu.Lock()
	defer l.opMu.Unlock()

	if err := l.checkLive(op); err != nil {
		return err
	}

	var err error
	if muted {
		err = l.control.RequestMute(ctx, l.id, kind)
	} else {
		err = l.control.RequestUnmute(ctx, l.id, kind)
	}
	if err != nil {
		return apperrors.NewTransportError(err, op)
	}
	if l.handle != nil {
		if err := l.handle.SetMuted(kind, muted); err != nil {
			l.revert(ctx, kind, muted)
			return apperrors.NewTransportError(err, op)
		}
	}

	if !l.setMuted(kind, muted) {
		// Ended while the request was in flight.
		return apperrors.NewInvalidStateError(op, string(l.State()))
	}
	ev := EventUnmute
	if muted {
		ev = EventMute
	}
	l.events.Emit(ev, Event{Type: ev, SessionID: l.id, Kind: kind})
	return nil
}

// revert undoes a mute or unmute the remote side accepted but the local
// transport could not apply, so both sides keep the previous state. If the
// revert also fails the two sides disagree until the next toggle.
func (l *lifecycle) revert(ctx context.Context, kind domain.TrackKind, muted bool) {
	var err error
	if muted {
		err = l.control.RequestUnmute(ctx, l.id, kind)
	} else {
		err = l.control.RequestMute(ctx, l.id, kind)
	}
	if err != nil {
		l.logger.Warnw("failed to revert remote mute state", "kind", kind, "muted", muted, "error", err)
	}
}

// GetStats returns transport statistics. It may run concurrently with any
// other operation.
func (l *lifecycle) GetStats(ctx context.Context) (*domain.Stats, error) {
	if err := l.checkLive("getStats"); err != nil {
		return nil, err
	}
	if l.handle == nil {
		return nil, apperrors.NewTransportError(errNoTransport, "getStats")
	}
	stats, err := l.handle.GetStats(ctx)
	if err != nil {
		return nil, apperrors.NewTransportError(err, "getStats")
	}
	return stats, nil
}

func (l *lifecycle) checkLive(op string) error {
	if s := l.State(); s.Terminal() {
		return apperrors.NewInvalidStateError(op, string(s))
	}
	return nil
}

// terminate moves to a terminal phase and reports whether this call did it.
func (l *lifecycle) terminate(to phase) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.phase == phaseEnded || l.phase == phaseErrored {
		return false
	}
	l.phase = to
	close(l.done)
	return true
}

// activate moves Initializing to Active and reports whether it did.
func (l *lifecycle) activate() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.phase != phaseInitializing {
		return false
	}
	l.phase = phaseActive
	return true
}

// setMuted updates the mute flags unless the session is terminal. It
// reports whether the session is still live.
func (l *lifecycle) setMuted(kind domain.TrackKind, muted bool) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.phase == phaseEnded || l.phase == phaseErrored {
		return false
	}
	if kind.IncludesAudio() {
		l.audioMuted = muted
	}
	if kind.IncludesVideo() {
		l.videoMuted = muted
	}
	return true
}

func (l *lifecycle) closeHandle() error {
	var err error
	l.closeOnce.Do(func() {
		if l.handle != nil {
			err = l.handle.Close()
		}
	})
	return err
}

func (l *lifecycle) closeQuietly() {
	if err := l.closeHandle(); err != nil {
		l.logger.Warnw("failed to close transport", "error", err)
	}
}
