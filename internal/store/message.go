package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	"threadline.app/agent/common/id"
	"threadline.app/agent/core/db"
	"threadline.app/agent/internal/model"
)

const uniqueViolation = "23505"

type messageStore struct {
	q db.Querier
}

func (s *messageStore) CreateOrGet(ctx context.Context, msg *model.Message) (int64, bool, error) {
	if existing, err := s.findDuplicate(ctx, msg); err != nil {
		return 0, false, err
	} else if existing != 0 {
		return existing, true, nil
	}

	if msg.ID == 0 {
		msg.ID = id.New()
	}

	_, err := s.q.Exec(ctx, `
		INSERT INTO messages (id, user_id, counterparty_id, direction, universal_id, external_id,
			external_thread_id, from_address, to_addresses, subject, raw_text, cleaned_text, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		msg.ID, msg.UserID, msg.CounterpartyID, msg.Direction, msg.UniversalID, msg.ExternalID,
		msg.ExternalThreadID, msg.From, msg.To, msg.Subject, msg.RawText, msg.CleanedText, msg.OccurredAt)
	if err != nil {
		// A concurrent insert of the same logical message is not a
		// caller-visible failure: re-query by the same keys and hand
		// back the winner's row.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			existing, findErr := s.findDuplicate(ctx, msg)
			if findErr != nil {
				return 0, false, findErr
			}
			if existing != 0 {
				return existing, true, nil
			}
		}
		return 0, false, fmt.Errorf("inserting message: %w", err)
	}

	return msg.ID, false, nil
}

// findDuplicate checks the two dedupe keys in precedence order:
// universal id first, provider-native id second.
func (s *messageStore) findDuplicate(ctx context.Context, msg *model.Message) (int64, error) {
	if msg.UniversalID != nil && *msg.UniversalID != "" {
		var existingID int64
		err := s.q.QueryRow(ctx,
			`SELECT id FROM messages WHERE universal_id = $1`,
			*msg.UniversalID).Scan(&existingID)
		if err == nil {
			return existingID, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("querying by universal id: %w", err)
		}
	}

	var existingID int64
	err := s.q.QueryRow(ctx,
		`SELECT id FROM messages WHERE user_id = $1 AND external_id = $2`,
		msg.UserID, msg.ExternalID).Scan(&existingID)
	if err == nil {
		return existingID, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("querying by external id: %w", err)
	}

	return 0, nil
}

func (s *messageStore) GetByID(ctx context.Context, msgID int64) (*model.Message, error) {
	row := s.q.QueryRow(ctx, `
		SELECT id, user_id, counterparty_id, thread_id, direction, universal_id, external_id,
			external_thread_id, from_address, to_addresses, subject, raw_text, cleaned_text, occurred_at, created_at
		FROM messages WHERE id = $1`, msgID)

	msg, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return msg, nil
}

func (s *messageStore) SetThread(ctx context.Context, messageID, threadID int64) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE messages SET thread_id = $1 WHERE id = $2 AND thread_id IS NULL`,
		threadID, messageID)
	if err != nil {
		return fmt.Errorf("setting message thread: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Already threaded; the back-reference is set once.
		return nil
	}
	return nil
}

func (s *messageStore) ListByThread(ctx context.Context, threadID int64, limit int32) ([]model.Message, error) {
	rows, err := s.q.Query(ctx, `
		SELECT id, user_id, counterparty_id, thread_id, direction, universal_id, external_id,
			external_thread_id, from_address, to_addresses, subject, raw_text, cleaned_text, occurred_at, created_at
		FROM messages WHERE thread_id = $1
		ORDER BY occurred_at DESC LIMIT $2`, threadID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing thread messages: %w", err)
	}
	defer rows.Close()

	var messages []model.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *msg)
	}
	return messages, rows.Err()
}

func (s *messageStore) LatestByDirection(ctx context.Context, threadID int64, direction model.Direction) (*time.Time, error) {
	var at time.Time
	err := s.q.QueryRow(ctx, `
		SELECT occurred_at FROM messages
		WHERE thread_id = $1 AND direction = $2
		ORDER BY occurred_at DESC LIMIT 1`, threadID, direction).Scan(&at)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying latest %s message: %w", direction, err)
	}
	return &at, nil
}

func (s *messageStore) StoreEmbedding(ctx context.Context, messageID int64, embedding []float32) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO message_embeddings (message_id, embedding) VALUES ($1, $2)
		ON CONFLICT (message_id) DO UPDATE SET embedding = EXCLUDED.embedding`,
		messageID, pgvector.NewVector(embedding))
	if err != nil {
		return fmt.Errorf("storing embedding: %w", err)
	}
	return nil
}

func (s *messageStore) GetEmbedding(ctx context.Context, messageID int64) ([]float32, error) {
	var vec pgvector.Vector
	err := s.q.QueryRow(ctx,
		`SELECT embedding FROM message_embeddings WHERE message_id = $1`,
		messageID).Scan(&vec)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying embedding: %w", err)
	}
	return vec.Slice(), nil
}

func scanMessage(row pgx.Row) (*model.Message, error) {
	var msg model.Message
	err := row.Scan(&msg.ID, &msg.UserID, &msg.CounterpartyID, &msg.ThreadID, &msg.Direction,
		&msg.UniversalID, &msg.ExternalID, &msg.ExternalThreadID, &msg.From, &msg.To,
		&msg.Subject, &msg.RawText, &msg.CleanedText, &msg.OccurredAt, &msg.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}
