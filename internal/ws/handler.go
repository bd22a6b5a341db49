package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"dm-service/internal/auth"
	"dm-service/internal/models"
	"dm-service/internal/observability"
	"dm-service/internal/registry"
	"dm-service/internal/router"
)

// MessageSender is the router capability the websocket handler needs.
type MessageSender interface {
	Send(ctx context.Context, senderID, receiverID int64, content, correlationID string) (models.Message, error)
}

// Handler owns the direct-message websocket endpoint.
type Handler struct {
	registry *registry.Registry
	verifier auth.TokenVerifier
	sender   MessageSender
}

// NewHandler constructs a Handler.
func NewHandler(reg *registry.Registry, verifier auth.TokenVerifier, sender MessageSender) *Handler {
	return &Handler{registry: reg, verifier: verifier, sender: sender}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle upgrades the connection and runs the session loop. The
// connection is unauthenticated until its first accepted auth frame;
// every other frame type is rejected until then.
func (h *Handler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("dm-service/ws").Start(c.Request.Context(), "ws.session")
	c.Request = c.Request.WithContext(ctx)

	sock, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		span.End()
		return
	}

	info := ConnInfo{
		ConnID:      uuid.NewString(),
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}

	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	h.publishSessionEvent(ctx, "ws_connect", info, 0, "")

	// The request context is cancelled as soon as Handle returns; the
	// session and the writes it triggers must outlive the upgrade.
	sessionCtx := context.WithoutCancel(ctx)
	go func() {
		defer span.End()
		h.runSession(sessionCtx, sock, info)
	}()
}

func (h *Handler) runSession(ctx context.Context, sock *websocket.Conn, info ConnInfo) {
	var (
		conn        *Conn
		userID      int64
		closeReason string
	)

	defer func() {
		if conn != nil {
			h.registry.Unregister(userID, conn)
			conn.Close(websocket.CloseNormalClosure, "session ended")
		} else {
			_ = sock.Close()
		}
		observability.DecWSActive()
		observability.IncWSEvent("ws_disconnect")
		h.publishSessionEvent(ctx, "ws_disconnect", info, userID, closeReason)
	}()

	for {
		var env models.Envelope
		if err := sock.ReadJSON(&env); err != nil {
			closeReason = err.Error()
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("ws_error")
				h.publishSessionEvent(ctx, "ws_error", info, userID, closeReason)
			}
			return
		}

		switch env.Type {
		case models.TypeAuth:
			id, err := h.verifier.Verify(env.Token)
			if err != nil {
				observability.IncWSEvent("auth_rejected")
				h.reply(conn, sock, models.AuthResult{Type: models.EventAuth, Error: err.Error()})
				continue
			}
			if conn != nil && id != userID {
				// Re-authenticated as a different account: move the
				// registration before admitting the new identity.
				h.registry.Unregister(userID, conn)
			}
			if conn == nil {
				conn = NewConn(id, sock)
				conn.Start()
			}
			conn.UserID = id
			userID = id
			if prev := h.registry.Register(userID, conn); prev != nil {
				prev.Close(websocket.ClosePolicyViolation, "superseded by newer connection")
			}
			observability.IncWSEvent("auth_ok")
			h.reply(conn, sock, models.AuthResult{Type: models.EventAuth, Message: "authenticated"})

		case models.TypeDM:
			if conn == nil {
				observability.IncWSEvent("dm_before_auth")
				h.reply(conn, sock, models.AuthResult{Type: models.EventAuth, Error: "authentication required"})
				continue
			}
			msg, err := h.sender.Send(ctx, userID, env.ReceiverID, env.Content, env.CorrelationID)
			if err != nil {
				_ = conn.SendJSON(models.Event{
					Type:          models.EventDMFailed,
					Error:         failureReason(err),
					CorrelationID: env.CorrelationID,
				})
				continue
			}
			_ = conn.SendJSON(models.Event{Type: models.EventDMSent, Message: &msg})

		default:
			h.reply(conn, sock, models.AuthResult{Type: models.EventAuth, Error: "unknown message type"})
		}
	}
}

// reply writes through the connection's writer once it exists; before
// auth there is no writer goroutine and the socket is written directly.
func (h *Handler) reply(conn *Conn, sock *websocket.Conn, v any) {
	if conn != nil {
		_ = conn.SendJSON(v)
		return
	}
	_ = sock.SetWriteDeadline(time.Now().Add(writeWait))
	if err := sock.WriteJSON(v); err != nil {
		logrus.WithError(err).Debug("pre-auth write failed")
	}
}

// failureReason maps router errors to the message surfaced to the
// sender. Validation problems are spelled out; storage failures are not.
func failureReason(err error) string {
	switch {
	case errors.Is(err, router.ErrMissingReceiver),
		errors.Is(err, router.ErrSelfMessage),
		errors.Is(err, router.ErrEmptyContent):
		return err.Error()
	default:
		return "failed to store message"
	}
}

func (h *Handler) publishSessionEvent(ctx context.Context, event string, info ConnInfo, userID int64, reason string) {
	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"event":       event,
			"conn_id":     info.ConnID,
			"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
			"reason":      reason,
		},
		"identity": map[string]interface{}{
			"user_id":   userID,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}
	_ = observability.PublishEvent(ctx, "ws_events.dm", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload:   payload,
	}, observability.BuildHeaders(info.RequestID, info.TraceID))
}
