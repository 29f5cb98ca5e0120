package dto

import (
	"time"

	"threadline.app/agent/internal/model"
)

type ProposalResponse struct {
	ID           int64                `json:"id,string"`
	ThreadID     int64                `json:"thread_id,string"`
	Type         model.ActionType     `json:"type"`
	Payload      model.ActionPayload  `json:"payload"`
	Rationale    string               `json:"rationale"`
	Score        model.ScoreBreakdown `json:"score"`
	Status       model.ProposalStatus `json:"status"`
	SnoozedUntil *time.Time           `json:"snoozed_until,omitempty"`
	CreatedAt    time.Time            `json:"created_at"`
}

func NewProposalResponse(p model.ActionProposal) ProposalResponse {
	return ProposalResponse{
		ID:           p.ID,
		ThreadID:     p.ThreadID,
		Type:         p.Type,
		Payload:      p.Payload,
		Rationale:    p.Rationale,
		Score:        p.Score,
		Status:       p.Status,
		SnoozedUntil: p.SnoozedUntil,
		CreatedAt:    p.CreatedAt,
	}
}

type UpdateProposalStatusRequest struct {
	Status       model.ProposalStatus `json:"status" binding:"required,oneof=PENDING APPROVED SNOOZED DISMISSED"`
	SnoozedUntil *time.Time           `json:"snoozed_until,omitempty"`
}
