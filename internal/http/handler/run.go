package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"

	"threadline.app/agent/internal/http/dto"
	"threadline.app/agent/internal/queue"
)

// RunHandler enqueues ingestion runs on demand.
type RunHandler struct {
	producer queue.Producer
}

func NewRunHandler(producer queue.Producer) *RunHandler {
	return &RunHandler{producer: producer}
}

// Trigger enqueues a manual ingestion run for one user. The run itself
// executes on the worker; this endpoint only accepts the request.
func (h *RunHandler) Trigger(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.TriggerRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.WarnContext(ctx, "invalid run trigger request", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	task := queue.Task{
		Type:    queue.TaskIngestRun,
		UserID:  &req.UserID,
		Trigger: queue.TriggerManual,
	}
	if spanCtx := trace.SpanContextFromContext(ctx); spanCtx.IsValid() {
		traceID := spanCtx.TraceID().String()
		task.TraceID = &traceID
	}

	if err := h.producer.Enqueue(ctx, task); err != nil {
		slog.ErrorContext(ctx, "failed to enqueue run", "error", err, "user_id", req.UserID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enqueue run"})
		return
	}

	c.JSON(http.StatusAccepted, dto.TriggerRunResponse{Enqueued: true})
}
