package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"dm-service/internal/directory"
	"dm-service/internal/models"
)

// RESTClient talks to the durable-store facade. It is the fallback
// send path and the history source after reconnects.
type RESTClient struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewRESTClient builds a RESTClient for the given base URL and bearer
// token.
func NewRESTClient(baseURL, token string) *RESTClient {
	return &RESTClient{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// Conversations fetches the authenticated user's partner list.
func (c *RESTClient) Conversations(ctx context.Context) ([]directory.Partner, error) {
	var resp struct {
		Conversations []directory.Partner `json:"conversations"`
	}
	if err := c.do(ctx, http.MethodGet, "/conversations", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Conversations, nil
}

// History fetches the full transcript with one partner, ascending by
// creation time.
func (c *RESTClient) History(ctx context.Context, otherID int64) ([]models.Message, error) {
	var resp struct {
		Messages []models.Message `json:"messages"`
	}
	path := fmt.Sprintf("/conversations/%d/messages", otherID)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// CreateMessage submits a send over HTTP instead of the websocket. The
// correlation id makes it safe to call for a logical send that may
// already have been delivered over the transport.
func (c *RESTClient) CreateMessage(ctx context.Context, receiverID int64, content, correlationID string) (models.Message, error) {
	body := map[string]any{
		"receiverId": receiverID,
		"content":    content,
	}
	if correlationID != "" {
		body["correlationId"] = correlationID
	}
	var msg models.Message
	if err := c.do(ctx, http.MethodPost, "/messages", body, &msg); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// MarkRead flags every message received from the partner as read.
func (c *RESTClient) MarkRead(ctx context.Context, otherID int64) error {
	path := fmt.Sprintf("/conversations/%d/read", otherID)
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

func (c *RESTClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s: %s (status %d)", method, path, apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
