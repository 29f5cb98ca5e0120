package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"threadline.app/agent/common/llm"
	"threadline.app/agent/core/config"
	"threadline.app/agent/internal/mail"
	"threadline.app/agent/internal/model"
	"threadline.app/agent/internal/store"
)

// ServiceFactory builds a per-user ingestion service bound to that
// user's mail credentials.
type ServiceFactory func(ctx context.Context, user *model.User) (*Service, error)

// Sweeper runs ingestion across every active user. One user's failure
// never stops the sweep.
type Sweeper struct {
	stores  store.Provider
	factory ServiceFactory
}

func NewSweeper(stores store.Provider, factory ServiceFactory) *Sweeper {
	return &Sweeper{stores: stores, factory: factory}
}

// SweepAll ingests inbound then outbound mail for each user that has
// credentials and is not paused.
func (s *Sweeper) SweepAll(ctx context.Context) error {
	users, err := s.stores.Users().List(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	for i := range users {
		user := &users[i]
		if user.AgentPaused {
			slog.DebugContext(ctx, "user paused, skipping", "user_id", user.ID)
			continue
		}
		if len(user.OAuthToken) == 0 {
			slog.DebugContext(ctx, "user has no mail credentials, skipping", "user_id", user.ID)
			continue
		}

		if err := s.sweepOne(ctx, user); err != nil {
			slog.ErrorContext(ctx, "user sweep failed", "user_id", user.ID, "error", err)
		}
	}
	return nil
}

func (s *Sweeper) sweepOne(ctx context.Context, user *model.User) error {
	svc, err := s.factory(ctx, user)
	if err != nil {
		return fmt.Errorf("build service: %w", err)
	}

	if _, err := svc.Run(ctx, user); err != nil {
		return err
	}
	if _, err := svc.IngestOutbound(ctx, user); err != nil {
		slog.WarnContext(ctx, "outbound sweep failed", "user_id", user.ID, "error", err)
	}
	return nil
}

// GmailServiceFactory wires the standard production stack: a Gmail
// transport from the user's stored OAuth token, the shared embedder,
// and the shared thread services.
func GmailServiceFactory(
	cfg config.Config,
	stores store.Provider,
	embedder llm.Embedder,
	resolver ThreadResolver,
	summarizer Summarizer,
) ServiceFactory {
	return func(ctx context.Context, user *model.User) (*Service, error) {
		transport, err := mail.NewGmailTransport(ctx, cfg.Gmail, user.OAuthToken)
		if err != nil {
			return nil, fmt.Errorf("gmail transport: %w", err)
		}
		return NewService(cfg.Ingest, stores, transport, embedder, resolver, summarizer), nil
	}
}
