package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"threadline.app/agent/core/db"
	"threadline.app/agent/internal/model"
)

type userStore struct {
	q db.Querier
}

func (s *userStore) GetByID(ctx context.Context, userID int64) (*model.User, error) {
	return s.get(ctx, `SELECT id, email, oauth_token, agent_paused, created_at FROM users WHERE id = $1`, userID)
}

func (s *userStore) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.get(ctx, `SELECT id, email, oauth_token, agent_paused, created_at FROM users WHERE email = $1`, email)
}

func (s *userStore) get(ctx context.Context, query string, arg any) (*model.User, error) {
	var user model.User
	err := s.q.QueryRow(ctx, query, arg).
		Scan(&user.ID, &user.Email, &user.OAuthToken, &user.AgentPaused, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying user: %w", err)
	}
	return &user, nil
}

func (s *userStore) List(ctx context.Context) ([]model.User, error) {
	rows, err := s.q.Query(ctx,
		`SELECT id, email, oauth_token, agent_paused, created_at FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		var user model.User
		if err := rows.Scan(&user.ID, &user.Email, &user.OAuthToken, &user.AgentPaused, &user.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}
