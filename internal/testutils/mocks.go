// Package testutils holds testify fakes for the conference client ports.
package testutils

import (
	"context"
	"sync"

	"rillconf/internal/core/domain"
	"rillconf/internal/core/ports"

	"github.com/stretchr/testify/mock"
)

// FakeMedia is a media handle with fixed track presence.
type FakeMedia struct {
	Audio bool
	Video bool
}

func (m FakeMedia) HasAudio() bool { return m.Audio }
func (m FakeMedia) HasVideo() bool { return m.Video }

// MockSessionControl records the session-level signaling calls.
type MockSessionControl struct {
	mock.Mock
}

func (m *MockSessionControl) RequestStop(ctx context.Context, id domain.SessionID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockSessionControl) RequestMute(ctx context.Context, id domain.SessionID, kind domain.TrackKind) error {
	args := m.Called(ctx, id, kind)
	return args.Error(0)
}

func (m *MockSessionControl) RequestUnmute(ctx context.Context, id domain.SessionID, kind domain.TrackKind) error {
	args := m.Called(ctx, id, kind)
	return args.Error(0)
}

func (m *MockSessionControl) RequestUpdate(ctx context.Context, id domain.SessionID, update domain.SubscriptionUpdateOptions) error {
	args := m.Called(ctx, id, update)
	return args.Error(0)
}

// MockSignalingClient extends MockSessionControl with the conference-level
// calls. Push notifications are fed through Push.
type MockSignalingClient struct {
	MockSessionControl

	once          sync.Once
	notifications chan ports.Notification
}

func NewMockSignalingClient() *MockSignalingClient {
	return &MockSignalingClient{notifications: make(chan ports.Notification, 16)}
}

func (m *MockSignalingClient) Join(ctx context.Context, token string) (*domain.RosterSnapshot, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RosterSnapshot), args.Error(1)
}

func (m *MockSignalingClient) RequestPublish(ctx context.Context, req ports.PublishRequest) (*domain.SessionGrant, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SessionGrant), args.Error(1)
}

func (m *MockSignalingClient) PublicationCapabilities(ctx context.Context) (domain.PublicationCapabilities, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.PublicationCapabilities), args.Error(1)
}

func (m *MockSignalingClient) RequestSubscribe(ctx context.Context, req ports.SubscribeRequest) (*domain.SessionGrant, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SessionGrant), args.Error(1)
}

func (m *MockSignalingClient) Leave(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockSignalingClient) Notifications() <-chan ports.Notification {
	return m.notifications
}

// Push queues a notification as if the server had sent it.
func (m *MockSignalingClient) Push(n ports.Notification) {
	m.notifications <- n
}

// CloseNotifications simulates the connection going away.
func (m *MockSignalingClient) CloseNotifications() {
	m.once.Do(func() { close(m.notifications) })
}

type MockTransportHandle struct {
	mock.Mock
}

func (m *MockTransportHandle) GetStats(ctx context.Context) (*domain.Stats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Stats), args.Error(1)
}

func (m *MockTransportHandle) SetMuted(kind domain.TrackKind, muted bool) error {
	args := m.Called(kind, muted)
	return args.Error(0)
}

func (m *MockTransportHandle) Media() domain.Media {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(domain.Media)
}

func (m *MockTransportHandle) Close() error {
	args := m.Called()
	return args.Error(0)
}

type MockTransportFactory struct {
	mock.Mock
}

func (m *MockTransportFactory) AttachPublication(ctx context.Context, grant domain.SessionGrant, stream *domain.LocalStream, settings domain.PublicationSettings) (ports.TransportHandle, error) {
	args := m.Called(ctx, grant, stream, settings)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(ports.TransportHandle), args.Error(1)
}

func (m *MockTransportFactory) AttachSubscription(ctx context.Context, grant domain.SessionGrant, resolved domain.ResolvedSubscription) (ports.TransportHandle, error) {
	args := m.Called(ctx, grant, resolved)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(ports.TransportHandle), args.Error(1)
}

type MockRosterRepository struct {
	mock.Mock
}

func (m *MockRosterRepository) Save(ctx context.Context, snapshot *domain.RosterSnapshot) error {
	args := m.Called(ctx, snapshot)
	return args.Error(0)
}

func (m *MockRosterRepository) Load(ctx context.Context, id domain.ConferenceID) (*domain.RosterSnapshot, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RosterSnapshot), args.Error(1)
}

func (m *MockRosterRepository) Delete(ctx context.Context, id domain.ConferenceID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// NopMetrics discards every measurement.
type NopMetrics struct{}

func (NopMetrics) SessionStarted(domain.SessionKind)           {}
func (NopMetrics) SessionEnded(domain.SessionKind, bool)       {}
func (NopMetrics) NegotiationResult(domain.SessionKind, error) {}
func (NopMetrics) ProtocolError(string)                        {}
func (NopMetrics) MuteToggled(domain.TrackKind, bool)          {}
func (NopMetrics) RosterChanged(int, int)                      {}

var (
	_ ports.SignalingClient  = (*MockSignalingClient)(nil)
	_ ports.TransportHandle  = (*MockTransportHandle)(nil)
	_ ports.TransportFactory = (*MockTransportFactory)(nil)
	_ ports.RosterRepository = (*MockRosterRepository)(nil)
	_ ports.MetricsRecorder  = NopMetrics{}
)
