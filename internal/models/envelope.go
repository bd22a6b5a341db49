package models

// Client->server frame types.
const (
	TypeAuth = "auth"
	TypeDM   = "dm"
)

// Server->client event types.
const (
	EventAuth     = "auth"
	EventDMSent   = "dm_sent"
	EventNewDM    = "new_dm"
	EventDMFailed = "dm_failed"
)

// Envelope is a client->server websocket frame.
type Envelope struct {
	Type          string `json:"type"`
	Token         string `json:"token,omitempty"`
	ReceiverID    int64  `json:"receiverId,omitempty"`
	Content       string `json:"content,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`
}

// AuthResult reports the handshake outcome to the client. Exactly one
// of Message and Error is set.
type AuthResult struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Event carries a persisted message, or a send failure, to a client.
type Event struct {
	Type          string   `json:"type"`
	Message       *Message `json:"message,omitempty"`
	Error         string   `json:"error,omitempty"`
	CorrelationID string   `json:"correlationId,omitempty"`
}
