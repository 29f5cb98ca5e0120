package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"threadline.app/agent/common/id"
	"threadline.app/agent/core/db"
	"threadline.app/agent/internal/model"
)

type proposalStore struct {
	q db.Querier
}

func (s *proposalStore) CreateBatch(ctx context.Context, proposals []model.ActionProposal) error {
	for i := range proposals {
		p := &proposals[i]
		if p.ID == 0 {
			p.ID = id.New()
		}
		if p.Status == "" {
			p.Status = model.ProposalPending
		}

		payload, err := json.Marshal(p.Payload)
		if err != nil {
			return fmt.Errorf("marshaling proposal payload: %w", err)
		}

		_, err = s.q.Exec(ctx, `
			INSERT INTO action_proposals (id, thread_id, action_type, payload, rationale,
				priority_score, impact_score, personal_score, bonus_score, status, snoozed_until)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			p.ID, p.ThreadID, p.Type, payload, p.Rationale,
			p.Score.Priority, p.Score.Impact, p.Score.Personal, p.Score.Bonus,
			p.Status, p.SnoozedUntil)
		if err != nil {
			return fmt.Errorf("inserting proposal: %w", err)
		}
	}
	return nil
}

func (s *proposalStore) ListByThread(ctx context.Context, threadID int64) ([]model.ActionProposal, error) {
	rows, err := s.q.Query(ctx, `
		SELECT id, thread_id, action_type, payload, rationale,
			priority_score, impact_score, personal_score, bonus_score, status, snoozed_until, created_at
		FROM action_proposals WHERE thread_id = $1
		ORDER BY created_at ASC`, threadID)
	if err != nil {
		return nil, fmt.Errorf("listing proposals: %w", err)
	}
	defer rows.Close()

	var proposals []model.ActionProposal
	for rows.Next() {
		var (
			p       model.ActionProposal
			payload []byte
		)
		if err := rows.Scan(&p.ID, &p.ThreadID, &p.Type, &payload, &p.Rationale,
			&p.Score.Priority, &p.Score.Impact, &p.Score.Personal, &p.Score.Bonus,
			&p.Status, &p.SnoozedUntil, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning proposal: %w", err)
		}
		if err := json.Unmarshal(payload, &p.Payload); err != nil {
			return nil, fmt.Errorf("unmarshaling proposal payload: %w", err)
		}
		proposals = append(proposals, p)
	}
	return proposals, rows.Err()
}

func (s *proposalStore) SupersedePending(ctx context.Context, threadID int64) error {
	_, err := s.q.Exec(ctx, `
		UPDATE action_proposals SET status = $1 WHERE thread_id = $2 AND status = $3`,
		model.ProposalSuperseded, threadID, model.ProposalPending)
	if err != nil {
		return fmt.Errorf("superseding pending proposals: %w", err)
	}
	return nil
}

func (s *proposalStore) UpdateStatus(ctx context.Context, proposalID int64, status model.ProposalStatus, snoozedUntil *time.Time) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE action_proposals SET status = $1, snoozed_until = $2 WHERE id = $3`,
		status, snoozedUntil, proposalID)
	if err != nil {
		return fmt.Errorf("updating proposal status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
