// Package signal implements the signaling client over a websocket carrying
// JSON request, response and notification frames.
package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"rillconf/internal/core/domain"
	"rillconf/internal/core/ports"
	"rillconf/pkg/retry"
	"rillconf/pkg/tracing"
	"rillconf/pkg/utils"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v3"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	ErrClosed         = errors.New("signaling connection closed")
	errUnexpectedType = errors.New("unexpected message type")
)

// RequestObserver records how long signaling requests take.
type RequestObserver interface {
	ObserveSignaling(method string, seconds float64)
}

type ClientConfig struct {
	URL            string
	Header         http.Header
	DialTimeout    time.Duration
	RequestTimeout time.Duration
	PingInterval   time.Duration
	PongTimeout    time.Duration
	MaxMessageSize int64
	Retry          retry.Config
	// RequestsPerSecond caps outgoing requests; zero disables the limit.
	RequestsPerSecond float64
	Burst             int
}

// WebSocketClient implements ports.SignalingClient. Responses are matched
// to requests by id; notifications are delivered in arrival order.
type WebSocketClient struct {
	config   ClientConfig
	conn     *websocket.Conn
	limiter  *rate.Limiter
	observer RequestObserver
	logger   *zap.SugaredLogger

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan Message
	closed  bool

	notifications chan ports.Notification
	quit          chan struct{}
	done          chan struct{}
	closeOnce     sync.Once
}

var _ ports.SignalingClient = (*WebSocketClient)(nil)

// Dial connects to the signaling endpoint, retrying per config.Retry.
func Dial(ctx context.Context, config ClientConfig, observer RequestObserver, logger *zap.SugaredLogger) (*WebSocketClient, error) {
	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: config.DialTimeout,
	}

	rc := config.Retry
	rc.OnRetry = func(attempt int, err error, delay time.Duration) {
		logger.Warnw("signaling dial failed", "url", config.URL, "attempt", attempt, "retry_in", delay, "error", err)
	}
	conn, err := retry.RetryWithResult(ctx, rc, func() (*websocket.Conn, error) {
		conn, resp, err := dialer.DialContext(ctx, config.URL, config.Header)
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		return conn, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to signaling server: %w", err)
	}

	logger.Infow("connected to signaling server", "url", config.URL)
	return newClient(conn, config, observer, logger), nil
}

func newClient(conn *websocket.Conn, config ClientConfig, observer RequestObserver, logger *zap.SugaredLogger) *WebSocketClient {
	limit := rate.Inf
	if config.RequestsPerSecond > 0 {
		limit = rate.Limit(config.RequestsPerSecond)
	}
	burst := config.Burst
	if burst <= 0 {
		burst = 1
	}

	c := &WebSocketClient{
		config:        config,
		conn:          conn,
		limiter:       rate.NewLimiter(limit, burst),
		observer:      observer,
		logger:        logger,
		pending:       make(map[string]chan Message),
		notifications: make(chan ports.Notification, 64),
		quit:          make(chan struct{}),
		done:          make(chan struct{}),
	}

	if config.MaxMessageSize > 0 {
		conn.SetReadLimit(config.MaxMessageSize)
	}
	if config.PongTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(config.PongTimeout))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(config.PongTimeout))
		})
	}

	go c.readLoop()
	if config.PingInterval > 0 {
		go c.pingLoop()
	}
	return c
}

func (c *WebSocketClient) Notifications() <-chan ports.Notification {
	return c.notifications
}

// Connected reports whether the connection is still open.
func (c *WebSocketClient) Connected() bool {
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

func (c *WebSocketClient) Join(ctx context.Context, token string) (*domain.RosterSnapshot, error) {
	var snapshot domain.RosterSnapshot
	if err := c.request(ctx, MethodJoin, joinPayload{Token: token}, &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// Leave tells the server this participant is gone and closes the
// connection.
func (c *WebSocketClient) Leave(ctx context.Context) error {
	err := c.request(ctx, MethodLeave, nil, nil)
	if cerr := c.Close(); err == nil {
		err = cerr
	}
	return err
}

func (c *WebSocketClient) RequestPublish(ctx context.Context, req ports.PublishRequest) (*domain.SessionGrant, error) {
	var grant domain.SessionGrant
	if err := c.request(ctx, MethodPublish, req, &grant); err != nil {
		return nil, err
	}
	return &grant, nil
}

func (c *WebSocketClient) PublicationCapabilities(ctx context.Context) (domain.PublicationCapabilities, error) {
	var caps domain.PublicationCapabilities
	err := c.request(ctx, MethodCapabilities, nil, &caps)
	return caps, err
}

func (c *WebSocketClient) RequestSubscribe(ctx context.Context, req ports.SubscribeRequest) (*domain.SessionGrant, error) {
	var grant domain.SessionGrant
	if err := c.request(ctx, MethodSubscribe, req, &grant); err != nil {
		return nil, err
	}
	return &grant, nil
}

func (c *WebSocketClient) RequestStop(ctx context.Context, id domain.SessionID) error {
	return c.request(ctx, MethodStop, sessionPayload{ID: id}, nil)
}

func (c *WebSocketClient) RequestMute(ctx context.Context, id domain.SessionID, kind domain.TrackKind) error {
	return c.request(ctx, MethodMute, sessionPayload{ID: id, Kind: kind}, nil)
}

func (c *WebSocketClient) RequestUnmute(ctx context.Context, id domain.SessionID, kind domain.TrackKind) error {
	return c.request(ctx, MethodUnmute, sessionPayload{ID: id, Kind: kind}, nil)
}

func (c *WebSocketClient) RequestUpdate(ctx context.Context, id domain.SessionID, update domain.SubscriptionUpdateOptions) error {
	return c.request(ctx, MethodUpdate, updatePayload{ID: id, Update: update}, nil)
}

// ExchangeSDP sends a local offer and returns the server's answer.
func (c *WebSocketClient) ExchangeSDP(ctx context.Context, id domain.SessionID, offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	var answer sdpPayload
	if err := c.request(ctx, MethodSDP, sdpPayload{ID: id, Description: offer}, &answer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return answer.Description, nil
}

// Close closes the connection. Pending requests fail with ErrClosed and the
// notification channel is closed once the read loop exits.
func (c *WebSocketClient) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.quit)
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		if cerr := c.conn.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = cerr
		}
	})
	<-c.done
	return err
}

func (c *WebSocketClient) request(ctx context.Context, method string, payload, out interface{}) (err error) {
	msg := Message{Type: MessageRequest, ID: uuid.NewString(), Method: method}
	ctx, span := tracing.TraceSignalingRequest(ctx, method, msg.ID)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if c.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.RequestTimeout)
		defer cancel()
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal %s request: %w", method, err)
		}
		msg.Data = data
	}

	reply := make(chan Message, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.pending[msg.ID] = reply
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, msg.ID)
		c.mu.Unlock()
	}()

	start := time.Now()
	if err := c.write(msg); err != nil {
		return err
	}

	var resp Message
	select {
	case resp = <-reply:
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	if c.observer != nil {
		c.observer.ObserveSignaling(method, time.Since(start).Seconds())
	}

	if resp.Error != nil {
		return &RemoteError{Method: method, Code: resp.Error.Code, Message: resp.Error.Message}
	}
	if out != nil && len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, out); err != nil {
			return fmt.Errorf("malformed %s response: %w", method, err)
		}
	}
	return nil
}

func (c *WebSocketClient) write(msg Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.config.RequestTimeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(c.config.RequestTimeout))
	}
	if err := c.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to send %s: %w", msg.Method, err)
	}
	return nil
}

func (c *WebSocketClient) readLoop() {
	defer c.shutdown()

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warnw("signaling connection lost", "error", err)
			}
			return
		}
		if c.config.PongTimeout > 0 {
			c.conn.SetReadDeadline(time.Now().Add(c.config.PongTimeout))
		}

		switch msg.Type {
		case MessageResponse:
			c.mu.Lock()
			reply, ok := c.pending[msg.ID]
			c.mu.Unlock()
			if !ok {
				c.logger.Debugw("response for unknown request", "request_id", msg.ID)
				continue
			}
			select {
			case reply <- msg:
			default:
				c.logger.Debugw("duplicate response", "request_id", msg.ID)
			}
		case MessageNotification:
			var n ports.Notification
			if err := json.Unmarshal(msg.Data, &n); err != nil {
				c.logger.Warnw("malformed notification", "data", utils.TruncateString(string(msg.Data), 256), "error", err)
				continue
			}
			select {
			case c.notifications <- n:
			case <-c.quit:
				return
			}
		default:
			c.logger.Warnw("dropping signaling frame", "type", msg.Type, "error", errUnexpectedType)
		}
	}
}

func (c *WebSocketClient) pingLoop() {
	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.config.PingInterval))
			c.writeMu.Unlock()
			if err != nil {
				c.logger.Debugw("signaling ping failed", "error", err)
				c.conn.Close()
				return
			}
		}
	}
}

func (c *WebSocketClient) shutdown() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.conn.Close()
	close(c.done)
	close(c.notifications)
}
