package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"threadline.app/agent/common/id"
	"threadline.app/agent/core/db"
	"threadline.app/agent/internal/model"
)

type counterpartyStore struct {
	q db.Querier
}

func (s *counterpartyStore) GetByID(ctx context.Context, cpID int64) (*model.Counterparty, error) {
	var cp model.Counterparty
	err := s.q.QueryRow(ctx, `
		SELECT id, user_id, name, email, is_blacklisted, created_at
		FROM counterparties WHERE id = $1`, cpID).
		Scan(&cp.ID, &cp.UserID, &cp.Name, &cp.Email, &cp.IsBlacklisted, &cp.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying counterparty: %w", err)
	}
	return &cp, nil
}

func (s *counterpartyStore) Resolve(ctx context.Context, userID int64, email, nameHint string) (int64, error) {
	var cpID int64
	err := s.q.QueryRow(ctx,
		`SELECT id FROM counterparties WHERE user_id = $1 AND email = $2`,
		userID, email).Scan(&cpID)
	if err == nil {
		return cpID, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("querying counterparty by email: %w", err)
	}

	name := nameHint
	if name == "" {
		name = email
	}

	cpID = id.New()
	_, err = s.q.Exec(ctx, `
		INSERT INTO counterparties (id, user_id, name, email) VALUES ($1, $2, $3, $4)`,
		cpID, userID, name, email)
	if err != nil {
		// Lost a race with a concurrent first-sight insert; the
		// existing row wins.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			var existing int64
			if qErr := s.q.QueryRow(ctx,
				`SELECT id FROM counterparties WHERE user_id = $1 AND email = $2`,
				userID, email).Scan(&existing); qErr == nil {
				return existing, nil
			}
		}
		return 0, fmt.Errorf("inserting counterparty: %w", err)
	}

	return cpID, nil
}
