package client

import "time"

// PendingStatus is the lifecycle of an optimistic send. Created is the
// only non-terminal state.
type PendingStatus int

const (
	PendingCreated PendingStatus = iota
	PendingConfirmed
	PendingFailed
)

func (s PendingStatus) String() string {
	switch s {
	case PendingCreated:
		return "created"
	case PendingConfirmed:
		return "confirmed"
	case PendingFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// PendingSend is the client-local placeholder representing a message
// shown in the transcript before server confirmation.
type PendingSend struct {
	CorrelationID string
	ReceiverID    int64
	Content       string
	CreatedAt     time.Time
	Status        PendingStatus
}
