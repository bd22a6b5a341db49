package directory

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"dm-service/internal/repositories"
)

// Partner is one entry in a user's conversation list.
type Partner struct {
	PartnerID   int64  `json:"partnerId"`
	DisplayName string `json:"displayName"`
}

// UserDirectory resolves display metadata for user ids. The user
// records themselves are owned by the profile subsystem.
type UserDirectory interface {
	Usernames(ctx context.Context, ids []int64) (map[int64]string, error)
}

// Directory derives the distinct set of messaging partners for a user
// from the persisted message log.
type Directory struct {
	messages repositories.MessageRepository
	users    UserDirectory
}

// New constructs a Directory.
func New(messages repositories.MessageRepository, users UserDirectory) *Directory {
	return &Directory{messages: messages, users: users}
}

// List returns every partner the user has exchanged messages with,
// decorated with display names. Partners without a profile row are
// still listed.
func (d *Directory) List(ctx context.Context, userID int64) ([]Partner, error) {
	ids, err := d.messages.Partners(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []Partner{}, nil
	}

	names, err := d.users.Usernames(ctx, ids)
	if err != nil {
		return nil, err
	}

	partners := make([]Partner, 0, len(ids))
	for _, id := range ids {
		partners = append(partners, Partner{PartnerID: id, DisplayName: names[id]})
	}
	return partners, nil
}

// SQLUserDirectory reads display names from the shared users table.
type SQLUserDirectory struct {
	db *sqlx.DB
}

// NewSQLUserDirectory constructs a SQLUserDirectory.
func NewSQLUserDirectory(db *sqlx.DB) *SQLUserDirectory {
	return &SQLUserDirectory{db: db}
}

// Usernames resolves usernames for the given ids. Missing ids are
// simply absent from the result.
func (u *SQLUserDirectory) Usernames(ctx context.Context, ids []int64) (map[int64]string, error) {
	rows, err := u.db.QueryxContext(ctx,
		`SELECT id, username FROM users WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	names := make(map[int64]string, len(ids))
	for rows.Next() {
		var (
			id       int64
			username string
		)
		if err := rows.Scan(&id, &username); err != nil {
			return nil, err
		}
		names[id] = username
	}
	return names, rows.Err()
}

var _ UserDirectory = (*SQLUserDirectory)(nil)
