// Package distributed fans conference events out over Redis pub/sub so
// dashboards and other clients of the same deployment can follow a
// conference without joining it.
package distributed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"rillconf/internal/core/domain"
	"rillconf/internal/core/services"
	"rillconf/pkg/events"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// EventType represents the type of event
type EventType string

const (
	EventParticipantJoined EventType = "participant.joined"
	EventParticipantLeft   EventType = "participant.left"
	EventStreamAdded       EventType = "stream.added"
	EventStreamEnded       EventType = "stream.ended"
)

// DefaultChannel is the pub/sub channel events are published on.
const DefaultChannel = "rillconf:events"

const (
	publishTimeout = time.Second
	queueSize      = 256
)

// Event represents a distributed event
type Event struct {
	Type          EventType            `json:"type"`
	InstanceID    string               `json:"instance_id"`
	Timestamp     time.Time            `json:"timestamp"`
	ConferenceID  domain.ConferenceID  `json:"conference_id"`
	ParticipantID domain.ParticipantID `json:"participant_id,omitempty"`
	StreamID      domain.StreamID      `json:"stream_id,omitempty"`
}

// Publisher is the part of *redis.Client the bus needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// EventBus publishes conference events for other instances to consume.
type EventBus struct {
	client     Publisher
	instanceID string
	channel    string
	logger     *zap.SugaredLogger
}

// NewEventBus creates a new event bus
func NewEventBus(client Publisher, instanceID string, logger *zap.SugaredLogger) *EventBus {
	return &EventBus{
		client:     client,
		instanceID: instanceID,
		channel:    DefaultChannel,
		logger:     logger,
	}
}

// Publish publishes an event to the event bus
func (eb *EventBus) Publish(ctx context.Context, event *Event) error {
	event.InstanceID = eb.instanceID
	event.Timestamp = time.Now()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := eb.client.Publish(ctx, eb.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	eb.logger.Debugw("published event",
		"type", event.Type,
		"conference_id", event.ConferenceID,
		"participant_id", event.ParticipantID,
		"stream_id", event.StreamID,
	)
	return nil
}

// AttachRoster forwards membership changes of roster to the bus until the
// returned detach function is called. Events are queued and published from
// a separate goroutine, so roster dispatch never waits on Redis; when the
// queue is full the event is dropped. Publish failures are logged and never
// reach the roster. detach publishes what is still queued before returning.
func (eb *EventBus) AttachRoster(roster *services.Roster) (detach func()) {
	q := &queue{
		events: make(chan *Event, queueSize),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go eb.drain(q)

	forward := func(ev services.RosterEvent) {
		event := &Event{ConferenceID: roster.ConferenceID()}
		switch ev.Type {
		case services.RosterEventParticipantJoined:
			event.Type = EventParticipantJoined
			event.ParticipantID = ev.Participant.ID()
		case services.RosterEventParticipantLeft:
			event.Type = EventParticipantLeft
			event.ParticipantID = ev.Participant.ID()
		case services.RosterEventStreamAdded:
			event.Type = EventStreamAdded
			event.ParticipantID = ev.Stream.Origin()
			event.StreamID = ev.Stream.ID()
			eb.watchStream(q, event.ConferenceID, ev.Stream)
		default:
			return
		}
		eb.enqueue(q, event)
	}

	tokens := []events.Token{
		roster.On(services.RosterEventParticipantJoined, forward),
		roster.On(services.RosterEventParticipantLeft, forward),
		roster.On(services.RosterEventStreamAdded, forward),
	}
	return func() {
		for _, tok := range tokens {
			roster.Off(tok)
		}
		q.once.Do(func() { close(q.stop) })
		<-q.done
	}
}

// queue buffers the events of one attached roster.
type queue struct {
	events chan *Event
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once
}

func (eb *EventBus) enqueue(q *queue, event *Event) {
	select {
	case <-q.stop:
		return
	default:
	}
	select {
	case q.events <- event:
	default:
		eb.logger.Warnw("event queue full, dropping conference event",
			"type", event.Type,
			"conference_id", event.ConferenceID,
		)
	}
}

func (eb *EventBus) drain(q *queue) {
	defer close(q.done)
	for {
		select {
		case event := <-q.events:
			eb.publishQuietly(event)
		case <-q.stop:
			for {
				select {
				case event := <-q.events:
					eb.publishQuietly(event)
				default:
					return
				}
			}
		}
	}
}

func (eb *EventBus) watchStream(q *queue, conference domain.ConferenceID, stream *domain.RemoteStream) {
	stream.On(domain.StreamEventEnded, func(ev domain.StreamEvent) {
		eb.enqueue(q, &Event{
			Type:          EventStreamEnded,
			ConferenceID:  conference,
			ParticipantID: stream.Origin(),
			StreamID:      stream.ID(),
		})
	})
}

func (eb *EventBus) publishQuietly(event *Event) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := eb.Publish(ctx, event); err != nil {
		eb.logger.Warnw("failed to publish conference event", "type", event.Type, "error", err)
	}
}
