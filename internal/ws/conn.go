package ws

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 64
)

var ErrConnClosed = errors.New("connection closed")

// Conn wraps a websocket and serializes outbound writes through a
// buffered channel so the router and the session loop can push
// concurrently.
type Conn struct {
	ID     string
	UserID int64

	ws   *websocket.Conn
	send chan []byte
	once sync.Once
	done chan struct{}
}

// NewConn wraps sock for the authenticated user.
func NewConn(userID int64, sock *websocket.Conn) *Conn {
	return &Conn{
		ID:     uuid.NewString(),
		UserID: userID,
		ws:     sock,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
	}
}

// Start launches the write loop. Call exactly once.
func (c *Conn) Start() {
	go c.writeLoop()
}

// SendJSON enqueues v for delivery. A full buffer closes the
// connection to keep backpressure bounded.
func (c *Conn) SendJSON(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrConnClosed
	case c.send <- payload:
		return nil
	default:
		c.Close(websocket.CloseGoingAway, "send buffer full")
		return ErrConnClosed
	}
}

// Close terminates the connection and stops the write loop.
func (c *Conn) Close(code int, reason string) {
	c.once.Do(func() {
		close(c.done)
		deadline := time.Now().Add(writeWait)
		_ = c.ws.SetWriteDeadline(deadline)
		_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
		_ = c.ws.Close()
	})
}

// Done is closed once the connection has been shut down.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

func (c *Conn) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case payload := <-c.send:
			if err := c.write(websocket.TextMessage, payload); err != nil {
				c.Close(websocket.CloseAbnormalClosure, "write failed")
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.Close(websocket.CloseAbnormalClosure, "ping failed")
				return
			}
		}
	}
}

func (c *Conn) write(messageType int, payload []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(messageType, payload)
}
