package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"threadline.app/agent/internal/action"
	"threadline.app/agent/internal/http/dto"
	"threadline.app/agent/internal/model"
	"threadline.app/agent/internal/store"
)

// ProposalHandler serves action proposals per thread and status
// updates per proposal.
type ProposalHandler struct {
	engine    *action.Engine
	proposals store.ProposalStore
}

func NewProposalHandler(engine *action.Engine, proposals store.ProposalStore) *ProposalHandler {
	return &ProposalHandler{engine: engine, proposals: proposals}
}

// Propose regenerates proposals for a thread synchronously and returns
// the persisted ranking.
func (h *ProposalHandler) Propose(c *gin.Context) {
	ctx := c.Request.Context()

	threadID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid thread id"})
		return
	}

	proposals, err := h.engine.Propose(ctx, threadID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "thread not found"})
			return
		}
		slog.ErrorContext(ctx, "failed to generate proposals", "error", err, "thread_id", threadID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate proposals"})
		return
	}

	c.JSON(http.StatusCreated, toResponses(proposals))
}

// List returns the currently visible proposals for a thread, best
// first.
func (h *ProposalHandler) List(c *gin.Context) {
	ctx := c.Request.Context()

	threadID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid thread id"})
		return
	}

	proposals, err := h.engine.ListVisible(ctx, threadID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "thread not found"})
			return
		}
		slog.ErrorContext(ctx, "failed to list proposals", "error", err, "thread_id", threadID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list proposals"})
		return
	}

	c.JSON(http.StatusOK, toResponses(proposals))
}

// UpdateStatus approves, snoozes, or dismisses one proposal.
func (h *ProposalHandler) UpdateStatus(c *gin.Context) {
	ctx := c.Request.Context()

	proposalID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid proposal id"})
		return
	}

	var req dto.UpdateProposalStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Status == model.ProposalSnoozed && req.SnoozedUntil == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "snoozed_until is required when snoozing"})
		return
	}

	if err := h.proposals.UpdateStatus(ctx, proposalID, req.Status, req.SnoozedUntil); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "proposal not found"})
			return
		}
		slog.ErrorContext(ctx, "failed to update proposal", "error", err, "proposal_id", proposalID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update proposal"})
		return
	}

	c.Status(http.StatusNoContent)
}

func toResponses(proposals []model.ActionProposal) []dto.ProposalResponse {
	out := make([]dto.ProposalResponse, 0, len(proposals))
	for _, p := range proposals {
		out = append(out, dto.NewProposalResponse(p))
	}
	return out
}
