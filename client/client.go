// Package client implements the device-side half of the direct-message
// subsystem: an optimistic-send session cache, a reconciliation
// dispatcher, a reconnecting websocket transport, and a REST fallback
// against the durable store.
package client

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"dm-service/internal/directory"
	"dm-service/internal/models"
)

// Config wires one Client.
type Config struct {
	BaseURL string // REST base, e.g. http://localhost:8083
	WSURL   string // websocket endpoint, e.g. ws://localhost:8083/ws
	Token   string
	UserID  int64
	Backoff time.Duration // reconnect backoff, default 5s
}

// Client bundles the session, transport, reconnect manager and REST
// fallback into one device-side handle.
type Client struct {
	session     *Session
	transport   *Transport
	rest        *RESTClient
	reconnector *Reconnector
}

// New assembles a Client. Run must be called to establish and keep the
// live session.
func New(cfg Config) *Client {
	c := &Client{rest: NewRESTClient(cfg.BaseURL, cfg.Token)}

	c.transport = NewTransport(TransportConfig{URL: cfg.WSURL, Token: cfg.Token}, func(ev ServerEvent) {
		if err := c.session.HandleEvent(ev); err != nil {
			logrus.WithError(err).Warn("dropping malformed server event")
		}
	})
	c.session = NewSession(cfg.UserID, c.transport)
	c.reconnector = NewReconnector(c.transport, ReconnectConfig{
		Backoff:     cfg.Backoff,
		OnConnected: c.reloadAll,
	})
	return c
}

// Run drives the connection lifecycle until ctx is cancelled or the
// credential is rejected repeatedly.
func (c *Client) Run(ctx context.Context) error {
	defer c.transport.Close()
	return c.reconnector.Run(ctx)
}

// Send optimistically appends to the transcript and submits over the
// live transport. The returned correlation id identifies the pending
// entry for retries.
func (c *Client) Send(receiverID int64, content string) (string, error) {
	return c.session.Send(receiverID, content)
}

// RetrySend re-submits a failed send under its original correlation id.
func (c *Client) RetrySend(partnerID int64, correlationID string) error {
	return c.session.RetrySend(partnerID, correlationID)
}

// Transcript returns the current view of one conversation.
func (c *Client) Transcript(partnerID int64) []Entry {
	return c.session.Transcript(partnerID)
}

// Conversations returns the partner list from the durable store.
func (c *Client) Conversations(ctx context.Context) ([]directory.Partner, error) {
	return c.rest.Conversations(ctx)
}

// LoadConversation pulls one conversation's history into the session.
func (c *Client) LoadConversation(ctx context.Context, partnerID int64) ([]models.Message, error) {
	msgs, err := c.rest.History(ctx, partnerID)
	if err != nil {
		return nil, err
	}
	c.session.LoadHistory(partnerID, msgs)
	return msgs, nil
}

// MarkRead flags the partner's messages as read in the durable store.
func (c *Client) MarkRead(ctx context.Context, partnerID int64) error {
	return c.rest.MarkRead(ctx, partnerID)
}

// State reports the reconnect manager's current state.
func (c *Client) State() ConnState {
	return c.reconnector.State()
}

// reloadAll refreshes every cached conversation after a reconnect; the
// transport never replays pushes missed while disconnected.
func (c *Client) reloadAll() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, partnerID := range c.session.Partners() {
		msgs, err := c.rest.History(ctx, partnerID)
		if err != nil {
			logrus.WithError(err).WithField("partner_id", partnerID).Warn("history reload failed")
			continue
		}
		c.session.LoadHistory(partnerID, msgs)
	}
}
