package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"dm-service/internal/models"
)

// matchWindow bounds the timestamp heuristic used to reconcile a
// confirmed record against a pending send when no correlation id is
// available.
const matchWindow = 2 * time.Second

var ErrNoPendingSend = errors.New("no pending send with that correlation id")

// Sender submits one direct message over the live transport. A send
// attempted while the transport is down must fail synchronously.
type Sender interface {
	SendDM(receiverID int64, content, correlationID string) error
}

// ServerEvent is one inbound server->client frame. Message stays raw
// because the auth variant carries a string in the same field.
type ServerEvent struct {
	Type          string          `json:"type"`
	Message       json.RawMessage `json:"message,omitempty"`
	Error         string          `json:"error,omitempty"`
	CorrelationID string          `json:"correlationId,omitempty"`
}

// Entry is one transcript line: either a pending send awaiting
// confirmation, a confirmed record, or both once reconciled in place.
type Entry struct {
	Pending *PendingSend
	Message *models.Message
}

// Confirmed reports whether the entry is backed by a server record.
func (e Entry) Confirmed() bool {
	return e.Message != nil
}

// Session is the per-device cache of conversations: transcripts keyed
// by partner id, an optimistic pending-send buffer, and the
// reconciliation dispatcher that merges server-confirmed records into
// the local transcript without duplicates.
type Session struct {
	userID int64
	sender Sender
	now    func() time.Time

	mu          sync.Mutex
	transcripts map[int64][]Entry
}

// NewSession builds a Session for the authenticated user.
func NewSession(userID int64, sender Sender) *Session {
	return &Session{
		userID:      userID,
		sender:      sender,
		now:         time.Now,
		transcripts: make(map[int64][]Entry),
	}
}

// Send appends a pending entry to the conversation transcript before
// any network wait, then submits over the transport. If the transport
// is down the entry is marked Failed immediately; no outbox survives a
// disconnect.
func (s *Session) Send(receiverID int64, content string) (string, error) {
	pending := &PendingSend{
		CorrelationID: uuid.NewString(),
		ReceiverID:    receiverID,
		Content:       content,
		CreatedAt:     s.now(),
		Status:        PendingCreated,
	}

	s.mu.Lock()
	s.transcripts[receiverID] = append(s.transcripts[receiverID], Entry{Pending: pending})
	s.mu.Unlock()

	if err := s.sender.SendDM(receiverID, content, pending.CorrelationID); err != nil {
		s.mu.Lock()
		pending.Status = PendingFailed
		s.mu.Unlock()
		return pending.CorrelationID, err
	}
	return pending.CorrelationID, nil
}

// RetrySend re-submits a failed entry under its original correlation
// id, so an attempt that actually reached the store is never
// duplicated.
func (s *Session) RetrySend(partnerID int64, correlationID string) error {
	s.mu.Lock()
	var pending *PendingSend
	for _, entry := range s.transcripts[partnerID] {
		if entry.Pending != nil && entry.Pending.CorrelationID == correlationID && entry.Pending.Status == PendingFailed {
			pending = entry.Pending
			break
		}
	}
	if pending == nil {
		s.mu.Unlock()
		return ErrNoPendingSend
	}
	pending.Status = PendingCreated
	pending.CreatedAt = s.now()
	s.mu.Unlock()

	if err := s.sender.SendDM(pending.ReceiverID, pending.Content, correlationID); err != nil {
		s.mu.Lock()
		pending.Status = PendingFailed
		s.mu.Unlock()
		return err
	}
	return nil
}

// HandleEvent is the single inbound dispatcher: confirmed records are
// reconciled, failures resolve the matching pending send.
func (s *Session) HandleEvent(ev ServerEvent) error {
	switch ev.Type {
	case models.EventDMSent, models.EventNewDM:
		var msg models.Message
		if err := json.Unmarshal(ev.Message, &msg); err != nil {
			return fmt.Errorf("decode %s event: %w", ev.Type, err)
		}
		s.Reconcile(msg)
		return nil
	case models.EventDMFailed:
		s.failPending(ev.CorrelationID, ev.Error)
		return nil
	case models.EventAuth:
		// Handshake outcomes are handled by the transport.
		return nil
	default:
		logrus.WithField("type", ev.Type).Debug("ignoring unknown server event")
		return nil
	}
}

// Reconcile merges one server-confirmed record into the transcript.
// Matching order: exact correlation id, then own-send heuristic
// (same content, timestamp within matchWindow, still Created). A match
// replaces the pending entry in place; anything else appends.
func (s *Session) Reconcile(msg models.Message) {
	partnerID := msg.OtherParticipant(s.userID)

	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.transcripts[partnerID]
	if idx, ok := s.matchPending(entries, msg); ok {
		record := msg
		entries[idx].Pending.Status = PendingConfirmed
		entries[idx].Message = &record
		return
	}

	record := msg
	s.transcripts[partnerID] = append(entries, Entry{Message: &record})
}

func (s *Session) matchPending(entries []Entry, msg models.Message) (int, bool) {
	if msg.CorrelationID != nil {
		for i, entry := range entries {
			if entry.Pending != nil && !entry.Confirmed() && entry.Pending.CorrelationID == *msg.CorrelationID {
				return i, true
			}
		}
	}

	if msg.SenderID != s.userID {
		return 0, false
	}
	for i, entry := range entries {
		if entry.Pending == nil || entry.Confirmed() || entry.Pending.Status != PendingCreated {
			continue
		}
		if entry.Pending.Content != msg.Content {
			continue
		}
		delta := msg.CreatedAt.Sub(entry.Pending.CreatedAt)
		if delta < 0 {
			delta = -delta
		}
		if delta <= matchWindow {
			return i, true
		}
	}
	return 0, false
}

func (s *Session) failPending(correlationID, reason string) {
	if correlationID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, entries := range s.transcripts {
		for _, entry := range entries {
			if entry.Pending != nil && entry.Pending.CorrelationID == correlationID && entry.Pending.Status == PendingCreated {
				entry.Pending.Status = PendingFailed
				logrus.WithFields(logrus.Fields{
					"correlation_id": correlationID,
					"reason":         reason,
				}).Warn("send failed")
				return
			}
		}
	}
}

// LoadHistory replaces a conversation transcript with the durable
// store's view, used on first load and after every reconnect since the
// transport never replays missed pushes. Outstanding pending sends are
// resolved against the reloaded records by correlation id; the rest
// are marked Failed and kept at the tail for retry.
func (s *Session) LoadHistory(partnerID int64, msgs []models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.transcripts[partnerID]
	entries := make([]Entry, 0, len(msgs))
	byCorrelation := make(map[string]int, len(msgs))
	for i, msg := range msgs {
		record := msg
		entries = append(entries, Entry{Message: &record})
		if record.CorrelationID != nil {
			byCorrelation[*record.CorrelationID] = i
		}
	}

	for _, entry := range old {
		if entry.Pending == nil || entry.Confirmed() {
			continue
		}
		if idx, ok := byCorrelation[entry.Pending.CorrelationID]; ok {
			entry.Pending.Status = PendingConfirmed
			entries[idx].Pending = entry.Pending
			continue
		}
		entry.Pending.Status = PendingFailed
		entries = append(entries, Entry{Pending: entry.Pending})
	}

	s.transcripts[partnerID] = entries
}

// Transcript returns a copy of the conversation's entries in display
// order.
func (s *Session) Transcript(partnerID int64) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.transcripts[partnerID]
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out
}

// Partners lists the conversations currently cached in the session.
func (s *Session) Partners() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	partners := make([]int64, 0, len(s.transcripts))
	for id := range s.transcripts {
		partners = append(partners, id)
	}
	return partners
}
