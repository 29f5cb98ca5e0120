package handler

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"threadline.app/agent/internal/queue"
	"threadline.app/agent/internal/store"
)

// pubSubEnvelope is the Cloud Pub/Sub push wrapper Gmail notifications
// arrive in.
type pubSubEnvelope struct {
	Message struct {
		Data      string `json:"data" binding:"required"`
		MessageID string `json:"messageId"`
	} `json:"message" binding:"required"`
	Subscription string `json:"subscription"`
}

// gmailNotification is the decoded payload inside the envelope.
type gmailNotification struct {
	EmailAddress string `json:"emailAddress"`
	HistoryID    uint64 `json:"historyId"`
}

// GmailWebhookHandler turns Gmail push notifications into ingestion
// tasks.
type GmailWebhookHandler struct {
	users    store.UserStore
	producer queue.Producer
}

func NewGmailWebhookHandler(users store.UserStore, producer queue.Producer) *GmailWebhookHandler {
	return &GmailWebhookHandler{users: users, producer: producer}
}

// Receive always acknowledges with 2xx once the envelope parses;
// returning an error status would make Pub/Sub redeliver a
// notification we cannot act on.
func (h *GmailWebhookHandler) Receive(c *gin.Context) {
	ctx := c.Request.Context()

	var envelope pubSubEnvelope
	if err := c.ShouldBindJSON(&envelope); err != nil {
		slog.WarnContext(ctx, "invalid pubsub envelope", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	payload, err := base64.StdEncoding.DecodeString(envelope.Message.Data)
	if err != nil {
		slog.WarnContext(ctx, "undecodable pubsub data", "error", err)
		c.Status(http.StatusNoContent)
		return
	}

	var notification gmailNotification
	if err := json.Unmarshal(payload, &notification); err != nil || notification.EmailAddress == "" {
		slog.WarnContext(ctx, "unparseable gmail notification", "error", err)
		c.Status(http.StatusNoContent)
		return
	}

	user, err := h.users.GetByEmail(ctx, notification.EmailAddress)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			slog.DebugContext(ctx, "notification for unknown mailbox", "email", notification.EmailAddress)
			c.Status(http.StatusNoContent)
			return
		}
		slog.ErrorContext(ctx, "user lookup failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "user lookup failed"})
		return
	}

	task := queue.Task{
		Type:    queue.TaskIngestRun,
		UserID:  &user.ID,
		Trigger: queue.TriggerWebhook,
	}
	if err := h.producer.Enqueue(ctx, task); err != nil {
		slog.ErrorContext(ctx, "failed to enqueue webhook run", "error", err, "user_id", user.ID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enqueue run"})
		return
	}

	slog.InfoContext(ctx, "gmail notification enqueued",
		"user_id", user.ID, "history_id", notification.HistoryID)
	c.Status(http.StatusNoContent)
}
