package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"dm-service/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

const messageColumns = `id, sender_id, receiver_id, content, read, correlation_id, created_at`

// MessageRepository is the durable append-only facade over the direct
// message log.
type MessageRepository interface {
	Append(ctx context.Context, senderID, receiverID int64, content string, correlationID *string) (models.Message, error)
	Conversation(ctx context.Context, userA, userB int64) ([]models.Message, error)
	Partners(ctx context.Context, userID int64) ([]int64, error)
	MarkConversationRead(ctx context.Context, readerID, otherID int64) error
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// Append stores one message row. When a correlation id is supplied the
// write is idempotent: replaying a known id returns the existing row
// instead of creating a second one.
func (r *MessageRepo) Append(ctx context.Context, senderID, receiverID int64, content string, correlationID *string) (models.Message, error) {
	var msg models.Message
	if correlationID == nil {
		err := r.db.QueryRowxContext(ctx,
			`INSERT INTO messages (sender_id, receiver_id, content) VALUES ($1, $2, $3) RETURNING `+messageColumns,
			senderID, receiverID, content).StructScan(&msg)
		return msg, err
	}

	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO messages (sender_id, receiver_id, content, correlation_id) VALUES ($1, $2, $3, $4)
         ON CONFLICT (correlation_id) DO NOTHING
         RETURNING `+messageColumns,
		senderID, receiverID, content, *correlationID).StructScan(&msg)
	if errors.Is(err, sql.ErrNoRows) {
		// Duplicate submission: hand back the row the first attempt wrote.
		err = r.db.GetContext(ctx, &msg,
			`SELECT `+messageColumns+` FROM messages WHERE correlation_id=$1`, *correlationID)
	}
	return msg, err
}

// Conversation returns every message exchanged between the two users,
// ascending by creation time regardless of insertion race order.
func (r *MessageRepo) Conversation(ctx context.Context, userA, userB int64) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs,
		`SELECT `+messageColumns+` FROM messages
         WHERE (sender_id=$1 AND receiver_id=$2) OR (sender_id=$2 AND receiver_id=$1)
         ORDER BY created_at ASC, id ASC`,
		userA, userB)
	return msgs, err
}

// Partners returns the distinct set of users the given user has
// exchanged messages with.
func (r *MessageRepo) Partners(ctx context.Context, userID int64) ([]int64, error) {
	var partners []int64
	err := r.db.SelectContext(ctx, &partners,
		`SELECT receiver_id AS partner FROM messages WHERE sender_id=$1
         UNION
         SELECT sender_id FROM messages WHERE receiver_id=$1
         ORDER BY partner ASC`,
		userID)
	return partners, err
}

// MarkConversationRead flags every message the reader received from the
// other user as read.
func (r *MessageRepo) MarkConversationRead(ctx context.Context, readerID, otherID int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE messages SET read = TRUE WHERE receiver_id=$1 AND sender_id=$2 AND read = FALSE`,
		readerID, otherID)
	return err
}
