package signal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"rillconf/internal/core/domain"
	"rillconf/internal/core/ports"
	"rillconf/pkg/retry"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeServer answers requests with handler and can push notifications to
// the connected client.
type fakeServer struct {
	t       *testing.T
	srv     *httptest.Server
	handler func(req Message) *Message

	mu       sync.Mutex
	conn     *websocket.Conn
	received []Message
	ready    chan struct{}
}

func newFakeServer(t *testing.T, handler func(req Message) *Message) *fakeServer {
	t.Helper()
	fs := &fakeServer{t: t, handler: handler, ready: make(chan struct{})}
	upgrader := websocket.Upgrader{}

	fs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		fs.mu.Lock()
		fs.conn = conn
		fs.mu.Unlock()
		close(fs.ready)

		for {
			var req Message
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			fs.mu.Lock()
			fs.received = append(fs.received, req)
			fs.mu.Unlock()

			if resp := fs.handler(req); resp != nil {
				fs.mu.Lock()
				err := conn.WriteJSON(resp)
				fs.mu.Unlock()
				if err != nil {
					return
				}
			}
		}
	}))
	t.Cleanup(fs.srv.Close)
	return fs
}

func (fs *fakeServer) url() string {
	return "ws" + strings.TrimPrefix(fs.srv.URL, "http")
}

func (fs *fakeServer) push(n ports.Notification) {
	<-fs.ready
	data, err := json.Marshal(n)
	require.NoError(fs.t, err)
	fs.mu.Lock()
	defer fs.mu.Unlock()
	require.NoError(fs.t, fs.conn.WriteJSON(Message{Type: MessageNotification, Data: data}))
}

func (fs *fakeServer) drop() {
	<-fs.ready
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.conn.Close()
}

func (fs *fakeServer) requests() []Message {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return append([]Message(nil), fs.received...)
}

func ok(req Message, data interface{}) *Message {
	resp := &Message{Type: MessageResponse, ID: req.ID}
	if data != nil {
		raw, _ := json.Marshal(data)
		resp.Data = raw
	}
	return resp
}

func dialTest(t *testing.T, fs *fakeServer) *WebSocketClient {
	t.Helper()
	client, err := Dial(context.Background(), ClientConfig{
		URL:            fs.url(),
		DialTimeout:    time.Second,
		RequestTimeout: 2 * time.Second,
		Retry:          retry.Config{Enabled: false},
	}, nil, zap.NewNop().Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestWebSocketClient_Join(t *testing.T) {
	snapshot := domain.RosterSnapshot{
		ConferenceID: "conf-1",
		Self:         domain.ParticipantDescription{ID: "p1", Role: domain.RolePresenter, UserID: "alice"},
		Participants: []domain.ParticipantDescription{{ID: "p1", Role: domain.RolePresenter, UserID: "alice"}},
	}
	fs := newFakeServer(t, func(req Message) *Message {
		return ok(req, snapshot)
	})
	client := dialTest(t, fs)

	got, err := client.Join(context.Background(), "token-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ConferenceID("conf-1"), got.ConferenceID)

	reqs := fs.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, MethodJoin, reqs[0].Method)
	assert.NotEmpty(t, reqs[0].ID)

	var payload joinPayload
	require.NoError(t, json.Unmarshal(reqs[0].Data, &payload))
	assert.Equal(t, "token-1", payload.Token)
}

func TestWebSocketClient_RequestsCarryPayloads(t *testing.T) {
	fs := newFakeServer(t, func(req Message) *Message {
		switch req.Method {
		case MethodPublish, MethodSubscribe:
			return ok(req, domain.SessionGrant{ID: "s-1", Transport: domain.TransportSettings{Type: domain.TransportTypeWebRTC}})
		case MethodCapabilities:
			return ok(req, domain.PublicationCapabilities{Audio: []domain.AudioCodecParameters{{Name: domain.AudioCodecOpus}}})
		case MethodSDP:
			return ok(req, sdpPayload{ID: "s-1", Description: webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0"}})
		default:
			return ok(req, nil)
		}
	})
	client := dialTest(t, fs)
	ctx := context.Background()

	grant, err := client.RequestPublish(ctx, ports.PublishRequest{StreamID: "stream-1"})
	require.NoError(t, err)
	assert.Equal(t, domain.SessionID("s-1"), grant.ID)

	caps, err := client.PublicationCapabilities(ctx)
	require.NoError(t, err)
	assert.Len(t, caps.Audio, 1)

	_, err = client.RequestSubscribe(ctx, ports.SubscribeRequest{StreamID: "stream-2"})
	require.NoError(t, err)

	require.NoError(t, client.RequestMute(ctx, "s-1", domain.TrackKindVideo))
	require.NoError(t, client.RequestUnmute(ctx, "s-1", domain.TrackKindVideo))
	require.NoError(t, client.RequestUpdate(ctx, "s-1", domain.SubscriptionUpdateOptions{
		Video: &domain.VideoSubscriptionUpdateOptions{FrameRate: domain.Ptr(15)},
	}))
	require.NoError(t, client.RequestStop(ctx, "s-1"))

	answer, err := client.ExchangeSDP(ctx, "s-1", webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"})
	require.NoError(t, err)
	assert.Equal(t, webrtc.SDPTypeAnswer, answer.Type)

	var methods []string
	for _, r := range fs.requests() {
		methods = append(methods, r.Method)
	}
	assert.Equal(t, []string{
		MethodPublish, MethodCapabilities, MethodSubscribe,
		MethodMute, MethodUnmute, MethodUpdate, MethodStop, MethodSDP,
	}, methods)

	var mute sessionPayload
	require.NoError(t, json.Unmarshal(fs.requests()[3].Data, &mute))
	assert.Equal(t, domain.TrackKindVideo, mute.Kind)
}

func TestWebSocketClient_RemoteError(t *testing.T) {
	fs := newFakeServer(t, func(req Message) *Message {
		return &Message{Type: MessageResponse, ID: req.ID, Error: &ErrorPayload{Code: "forbidden", Message: "not a presenter"}}
	})
	client := dialTest(t, fs)

	err := client.RequestStop(context.Background(), "s-1")
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "forbidden", remote.Code)
	assert.Equal(t, MethodStop, remote.Method)
}

func TestWebSocketClient_RequestTimeout(t *testing.T) {
	fs := newFakeServer(t, func(req Message) *Message { return nil })
	client := dialTest(t, fs)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := client.RequestStop(ctx, "s-1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWebSocketClient_Notifications(t *testing.T) {
	fs := newFakeServer(t, func(req Message) *Message { return ok(req, nil) })
	client := dialTest(t, fs)

	fs.push(ports.Notification{Type: ports.NotificationSessionMute, SessionID: "s-1", Kind: domain.TrackKindAudio})
	fs.push(ports.Notification{Type: ports.NotificationSessionEnded, SessionID: "s-1"})

	first := <-client.Notifications()
	assert.Equal(t, ports.NotificationSessionMute, first.Type)
	assert.Equal(t, domain.TrackKindAudio, first.Kind)

	second := <-client.Notifications()
	assert.Equal(t, ports.NotificationSessionEnded, second.Type)
}

func TestWebSocketClient_ServerDisconnect(t *testing.T) {
	fs := newFakeServer(t, func(req Message) *Message { return nil })
	client := dialTest(t, fs)

	errCh := make(chan error, 1)
	go func() { errCh <- client.RequestStop(context.Background(), "s-1") }()

	require.Eventually(t, func() bool { return len(fs.requests()) == 1 }, time.Second, 10*time.Millisecond)
	fs.drop()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("pending request was not failed on disconnect")
	}

	_, open := <-client.Notifications()
	assert.False(t, open)
	assert.False(t, client.Connected())
	assert.ErrorIs(t, client.RequestStop(context.Background(), "s-1"), ErrClosed)
}

func TestWebSocketClient_Leave(t *testing.T) {
	fs := newFakeServer(t, func(req Message) *Message { return ok(req, nil) })
	client := dialTest(t, fs)

	require.NoError(t, client.Leave(context.Background()))
	assert.False(t, client.Connected())
	require.NoError(t, client.Close())
}

func TestDial_RetriesAndFails(t *testing.T) {
	_, err := Dial(context.Background(), ClientConfig{
		URL:         "ws://127.0.0.1:1/ws",
		DialTimeout: 100 * time.Millisecond,
		Retry: retry.Config{
			Enabled:      true,
			MaxAttempts:  1,
			InitialDelay: time.Millisecond,
			MaxDelay:     time.Millisecond,
			Multiplier:   1,
		},
	}, nil, zap.NewNop().Sugar())
	assert.Error(t, err)
}
