package router

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"dm-service/internal/models"
	"dm-service/internal/observability"
	"dm-service/internal/registry"
	"dm-service/internal/repositories"
	"dm-service/internal/telemetry"
)

var (
	ErrMissingReceiver = errors.New("missing receiver")
	ErrSelfMessage     = errors.New("cannot message yourself")
	ErrEmptyContent    = errors.New("empty content")
)

// Router validates, persists, acknowledges and best-effort forwards a
// single direct message. Durability always precedes the sender's
// acknowledgement; a receiver without a live connection is not an
// error.
type Router struct {
	repo    repositories.MessageRepository
	reg     *registry.Registry
	emitter *telemetry.AuditEmitter
}

// New constructs a Router. The emitter may be nil.
func New(repo repositories.MessageRepository, reg *registry.Registry, emitter *telemetry.AuditEmitter) *Router {
	return &Router{repo: repo, reg: reg, emitter: emitter}
}

// Send persists the message and pushes it to the receiver when one is
// registered. The returned record is the sender's acknowledgement.
func (r *Router) Send(ctx context.Context, senderID, receiverID int64, content, correlationID string) (models.Message, error) {
	ctx, span := otel.Tracer("dm-service/router").Start(ctx, "router.send")
	defer span.End()

	content = strings.TrimSpace(content)
	switch {
	case receiverID == 0:
		return models.Message{}, ErrMissingReceiver
	case receiverID == senderID:
		return models.Message{}, ErrSelfMessage
	case content == "":
		return models.Message{}, ErrEmptyContent
	}

	var corr *string
	if correlationID != "" {
		corr = &correlationID
	}

	msg, err := r.repo.Append(ctx, senderID, receiverID, content, corr)
	if err != nil {
		observability.IncDMDelivery("persist_error")
		return models.Message{}, fmt.Errorf("append message: %w", err)
	}
	observability.IncDMDelivery("persisted")
	r.emitter.Emit(ctx, "INFO",
		fmt.Sprintf("dm persisted id=%d receiver=%d", msg.ID, receiverID), "", &senderID)

	conn, ok := r.reg.Lookup(receiverID)
	if !ok {
		observability.IncDMDelivery("receiver_offline")
		return msg, nil
	}

	if err := conn.SendJSON(models.Event{Type: models.EventNewDM, Message: &msg}); err != nil {
		// Receiver socket is dead; evict it so the next register is clean.
		r.reg.Unregister(receiverID, conn)
		conn.Close(websocket.CloseGoingAway, "push failed")
		observability.IncDMDelivery("push_failed")
		logrus.WithFields(logrus.Fields{
			"message_id":  msg.ID,
			"receiver_id": receiverID,
		}).WithError(err).Warn("push to receiver failed")
		return msg, nil
	}

	observability.IncDMDelivery("pushed")
	return msg, nil
}
