package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"threadline.app/agent/core/db"
)

type cursorStore struct {
	q db.Querier
}

func (s *cursorStore) Get(ctx context.Context, userID int64) (string, error) {
	var cursor string
	err := s.q.QueryRow(ctx,
		`SELECT cursor FROM ingestion_cursors WHERE user_id = $1`, userID).Scan(&cursor)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("querying cursor: %w", err)
	}
	return cursor, nil
}

func (s *cursorStore) Advance(ctx context.Context, userID int64, cursor string) error {
	// Cursors are string-encoded integers that only move forward. The
	// numeric comparison happens in SQL so concurrent runs cannot
	// regress a further-along writer.
	_, err := s.q.Exec(ctx, `
		INSERT INTO ingestion_cursors (user_id, cursor, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (user_id) DO UPDATE
		SET cursor = EXCLUDED.cursor, updated_at = now()
		WHERE EXCLUDED.cursor::bigint > ingestion_cursors.cursor::bigint`,
		userID, cursor)
	if err != nil {
		return fmt.Errorf("advancing cursor: %w", err)
	}
	return nil
}
