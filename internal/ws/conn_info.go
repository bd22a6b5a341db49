package ws

import "time"

// ConnInfo carries request-scoped metadata for one websocket session,
// used for audit events and metrics.
type ConnInfo struct {
	ConnID      string
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}
