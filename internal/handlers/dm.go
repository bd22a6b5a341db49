package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"dm-service/internal/directory"
	"dm-service/internal/middleware"
	"dm-service/internal/models"
	"dm-service/internal/repositories"
	"dm-service/internal/router"
)

// MessageSender is the router capability the REST surface needs. The
// REST create path shares the router with the websocket path so a
// logical send delivered over either never double-counts.
type MessageSender interface {
	Send(ctx context.Context, senderID, receiverID int64, content, correlationID string) (models.Message, error)
}

// ConversationLister is the directory capability the REST surface needs.
type ConversationLister interface {
	List(ctx context.Context, userID int64) ([]directory.Partner, error)
}

// DMHandler serves the durable-store facade consumed by clients.
type DMHandler struct {
	directory ConversationLister
	repo      repositories.MessageRepository
	sender    MessageSender
}

// NewDMHandler builds a DMHandler.
func NewDMHandler(dir ConversationLister, repo repositories.MessageRepository, sender MessageSender) *DMHandler {
	return &DMHandler{directory: dir, repo: repo, sender: sender}
}

// ListConversations returns the authenticated user's partner list.
func (h *DMHandler) ListConversations(c *gin.Context) {
	userID := middleware.UserID(c)

	partners, err := h.directory.List(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversations"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"conversations": partners})
}

// GetHistory returns the full transcript with one partner, ascending
// by creation time.
func (h *DMHandler) GetHistory(c *gin.Context) {
	otherID, ok := otherIDParam(c)
	if !ok {
		return
	}
	userID := middleware.UserID(c)

	msgs, err := h.repo.Conversation(c.Request.Context(), userID, otherID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}

	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// CreateMessage is the non-transport send path. It goes through the
// same router as websocket sends, so the receiver still gets a live
// push and a correlation id replay returns the already-persisted row.
func (h *DMHandler) CreateMessage(c *gin.Context) {
	var req struct {
		ReceiverID    int64  `json:"receiverId" binding:"required"`
		Content       string `json:"content" binding:"required"`
		CorrelationID string `json:"correlationId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := middleware.UserID(c)
	msg, err := h.sender.Send(c.Request.Context(), userID, req.ReceiverID, req.Content, req.CorrelationID)
	if err != nil {
		switch {
		case errors.Is(err, router.ErrMissingReceiver),
			errors.Is(err, router.ErrSelfMessage),
			errors.Is(err, router.ErrEmptyContent):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store message"})
		}
		return
	}

	c.JSON(http.StatusCreated, msg)
}

// MarkRead flags every message received from the partner as read.
func (h *DMHandler) MarkRead(c *gin.Context) {
	otherID, ok := otherIDParam(c)
	if !ok {
		return
	}
	userID := middleware.UserID(c)

	if err := h.repo.MarkConversationRead(c.Request.Context(), userID, otherID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mark conversation read"})
		return
	}

	c.Status(http.StatusNoContent)
}

func otherIDParam(c *gin.Context) (int64, bool) {
	otherID, err := strconv.ParseInt(c.Param("other_id"), 10, 64)
	if err != nil || otherID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return 0, false
	}
	return otherID, true
}
