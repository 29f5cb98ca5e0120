package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"threadline.app/agent/common/id"
	"threadline.app/agent/core/db"
	"threadline.app/agent/internal/model"
)

type threadStore struct {
	q db.Querier
}

func (s *threadStore) GetByID(ctx context.Context, threadID int64) (*model.ConversationThread, error) {
	var (
		thread      model.ConversationThread
		centroid    pgvector.Vector
		summaryJSON []byte
	)
	err := s.q.QueryRow(ctx, `
		SELECT id, user_id, topic, state, centroid, message_count, summary, created_at, last_updated
		FROM conversation_threads WHERE id = $1`, threadID).
		Scan(&thread.ID, &thread.UserID, &thread.Topic, &thread.State, &centroid,
			&thread.MessageCount, &summaryJSON, &thread.CreatedAt, &thread.LastUpdated)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying thread: %w", err)
	}

	thread.Centroid = centroid.Slice()
	if len(summaryJSON) > 0 {
		var summary model.ThreadSummary
		if err := json.Unmarshal(summaryJSON, &summary); err == nil {
			thread.Summary = &summary
		}
	}
	return &thread, nil
}

func (s *threadStore) Create(ctx context.Context, thread *model.ConversationThread) error {
	if thread.ID == 0 {
		thread.ID = id.New()
	}
	if thread.State == "" {
		thread.State = model.ThreadStateActive
	}

	_, err := s.q.Exec(ctx, `
		INSERT INTO conversation_threads (id, user_id, topic, state, centroid, message_count)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		thread.ID, thread.UserID, thread.Topic, thread.State,
		pgvector.NewVector(thread.Centroid), thread.MessageCount)
	if err != nil {
		return fmt.Errorf("inserting thread: %w", err)
	}
	return nil
}

func (s *threadStore) MatchSimilar(ctx context.Context, userID int64, embedding []float32, threshold float64, limit int) ([]model.ThreadMatch, error) {
	// Cosine similarity = 1 - cosine distance. Rows are ordered
	// best-first so the participant tie-break walks candidates in
	// similarity order.
	rows, err := s.q.Query(ctx, `
		SELECT id, 1 - (centroid <=> $1) AS similarity
		FROM conversation_threads
		WHERE user_id = $2 AND 1 - (centroid <=> $1) >= $3
		ORDER BY centroid <=> $1
		LIMIT $4`,
		pgvector.NewVector(embedding), userID, threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	defer rows.Close()

	var matches []model.ThreadMatch
	for rows.Next() {
		var m model.ThreadMatch
		if err := rows.Scan(&m.ThreadID, &m.Similarity); err != nil {
			return nil, fmt.Errorf("scanning match: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

func (s *threadStore) UpdateCentroid(ctx context.Context, threadID int64, centroid []float32, expectedCount int64) error {
	// Compare-and-swap on message_count. Zero rows affected means a
	// concurrent writer folded its embedding first; the caller rereads
	// and retries.
	tag, err := s.q.Exec(ctx, `
		UPDATE conversation_threads
		SET centroid = $1, message_count = $2, last_updated = now()
		WHERE id = $3 AND message_count = $4`,
		pgvector.NewVector(centroid), expectedCount+1, threadID, expectedCount)
	if err != nil {
		return fmt.Errorf("updating centroid: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleVersion
	}
	return nil
}

func (s *threadStore) SetSummary(ctx context.Context, threadID int64, summary *model.ThreadSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshaling summary: %w", err)
	}
	_, err = s.q.Exec(ctx, `
		UPDATE conversation_threads SET summary = $1, last_updated = now() WHERE id = $2`,
		data, threadID)
	if err != nil {
		return fmt.Errorf("setting summary: %w", err)
	}
	return nil
}

func (s *threadStore) AddParticipant(ctx context.Context, threadID, counterpartyID int64) error {
	// Insert-or-ignore: two concurrent first-messages from the same
	// counterparty must not create two rows.
	_, err := s.q.Exec(ctx, `
		INSERT INTO thread_participants (thread_id, counterparty_id)
		VALUES ($1, $2)
		ON CONFLICT (thread_id, counterparty_id) DO NOTHING`,
		threadID, counterpartyID)
	if err != nil {
		return fmt.Errorf("adding participant: %w", err)
	}
	return nil
}

func (s *threadStore) HasParticipant(ctx context.Context, threadID, counterpartyID int64) (bool, error) {
	var exists bool
	err := s.q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM thread_participants WHERE thread_id = $1 AND counterparty_id = $2
		)`, threadID, counterpartyID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking participant: %w", err)
	}
	return exists, nil
}

func (s *threadStore) ListParticipants(ctx context.Context, threadID int64) ([]int64, error) {
	rows, err := s.q.Query(ctx,
		`SELECT counterparty_id FROM thread_participants WHERE thread_id = $1`, threadID)
	if err != nil {
		return nil, fmt.Errorf("listing participants: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var cpID int64
		if err := rows.Scan(&cpID); err != nil {
			return nil, err
		}
		ids = append(ids, cpID)
	}
	return ids, rows.Err()
}
