package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"dm-service/internal/models"
)

var (
	ErrNotConnected = errors.New("transport not connected")
	ErrAuthRejected = errors.New("authentication rejected")
)

const defaultHandshakeTimeout = 10 * time.Second

// TransportConfig configures one websocket transport.
type TransportConfig struct {
	URL              string
	Token            string
	HandshakeTimeout time.Duration
}

// Transport maintains one authenticated websocket session at a time.
// Connect re-runs the credential handshake on every call, so it can be
// driven directly by the reconnect manager.
type Transport struct {
	cfg     TransportConfig
	dialer  *websocket.Dialer
	onEvent func(ServerEvent)

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewTransport builds a Transport delivering inbound events to onEvent.
func NewTransport(cfg TransportConfig, onEvent func(ServerEvent)) *Transport {
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	return &Transport{
		cfg:     cfg,
		dialer:  &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
		onEvent: onEvent,
	}
}

// Connect dials the server, authenticates, and starts the read pump.
// The returned channel receives exactly one value when the session
// ends. An invalid credential yields ErrAuthRejected.
func (t *Transport) Connect(ctx context.Context) (<-chan error, error) {
	conn, _, err := t.dialer.DialContext(ctx, t.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", t.cfg.URL, err)
	}

	if err := conn.WriteJSON(models.Envelope{Type: models.TypeAuth, Token: t.cfg.Token}); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("send auth: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(t.cfg.HandshakeTimeout))
	var result models.AuthResult
	if err := conn.ReadJSON(&result); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("read auth result: %w", err)
	}
	if result.Error != "" {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: %s", ErrAuthRejected, result.Error)
	}
	_ = conn.SetReadDeadline(time.Time{})

	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()

	done := make(chan error, 1)
	go t.readPump(conn, done)
	return done, nil
}

// SendDM submits one direct message. It fails synchronously when no
// session is open.
func (t *Transport) SendDM(receiverID int64, content, correlationID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return ErrNotConnected
	}
	return t.conn.WriteJSON(models.Envelope{
		Type:          models.TypeDM,
		ReceiverID:    receiverID,
		Content:       content,
		CorrelationID: correlationID,
	})
}

// Close shuts down the current session, if any.
func (t *Transport) Close() {
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

func (t *Transport) readPump(conn *websocket.Conn, done chan<- error) {
	for {
		var ev ServerEvent
		if err := conn.ReadJSON(&ev); err != nil {
			t.mu.Lock()
			if t.conn == conn {
				t.conn = nil
			}
			t.mu.Unlock()
			_ = conn.Close()
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logrus.WithError(err).Debug("transport read failed")
			}
			done <- err
			return
		}
		if t.onEvent != nil {
			t.onEvent(ev)
		}
	}
}
