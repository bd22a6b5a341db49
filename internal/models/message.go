package models

import "time"

// Message is a persisted direct message. Rows are immutable once
// written; only the read flag may change afterwards.
type Message struct {
	ID            int64     `db:"id" json:"id"`
	SenderID      int64     `db:"sender_id" json:"senderId"`
	ReceiverID    int64     `db:"receiver_id" json:"receiverId"`
	Content       string    `db:"content" json:"content"`
	Read          bool      `db:"read" json:"read"`
	CorrelationID *string   `db:"correlation_id" json:"correlationId,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
}

// OtherParticipant returns the conversation partner from the
// perspective of userID.
func (m Message) OtherParticipant(userID int64) int64 {
	if m.SenderID == userID {
		return m.ReceiverID
	}
	return m.SenderID
}
