package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"threadline.app/agent/common/llm"
	"threadline.app/agent/common/logger"
	"threadline.app/agent/common/retry"
	"threadline.app/agent/core/config"
	"threadline.app/agent/internal/mail"
	"threadline.app/agent/internal/model"
	"threadline.app/agent/internal/store"
)

// ThreadResolver assigns a stored message to a conversation thread,
// creating one when nothing matches.
type ThreadResolver interface {
	Assign(ctx context.Context, msg *model.Message, embedding []float32) (int64, error)
}

// Summarizer refreshes the rolling summary of a thread. Failures are
// advisory; ingestion never depends on them.
type Summarizer interface {
	Refresh(ctx context.Context, userID, threadID int64) error
}

// RunResult is what one ingestion pass reports back to its trigger.
type RunResult struct {
	Processed int      `json:"processed_count"`
	Skipped   int      `json:"skipped_count"`
	NewCursor *string  `json:"new_cursor,omitempty"`
	Errors    []string `json:"errors,omitempty"`
}

// Service drives the ingestion pipeline for one mail provider.
type Service struct {
	cfg        config.IngestConfig
	stores     store.Provider
	fetcher    *Fetcher
	normalizer *Normalizer
	transport  mail.Transport
	embedder   llm.Embedder
	resolver   ThreadResolver
	summarizer Summarizer
}

func NewService(
	cfg config.IngestConfig,
	stores store.Provider,
	transport mail.Transport,
	embedder llm.Embedder,
	resolver ThreadResolver,
	summarizer Summarizer,
) *Service {
	return &Service{
		cfg:        cfg,
		stores:     stores,
		fetcher:    NewFetcher(transport, cfg.SeedPageSize),
		normalizer: NewNormalizer(transport),
		transport:  transport,
		embedder:   embedder,
		resolver:   resolver,
		summarizer: summarizer,
	}
}

// Run executes one inbound ingestion pass for a user: list new
// messages since the stored cursor, persist and thread each one, then
// advance the cursor. Individual message failures are contained but
// hold the cursor back, so the failed messages are re-listed on the
// next pass instead of being skipped forever.
func (s *Service) Run(ctx context.Context, user *model.User) (*RunResult, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{UserID: logger.Ptr(user.ID), Component: "agent.ingest"})

	cursor, err := s.stores.Cursors().Get(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("load cursor: %w", err)
	}

	fetched, err := s.fetcher.Fetch(ctx, cursor)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}

	result := &RunResult{}
	for _, externalID := range fetched.MessageIDs {
		ingested, err := s.processOne(ctx, user, externalID, model.DirectionInbound)
		if err != nil {
			slog.ErrorContext(ctx, "message ingestion failed", "external_id", externalID, "error", err)
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", externalID, err))
			continue
		}
		if ingested {
			result.Processed++
		} else {
			result.Skipped++
		}
	}

	if fetched.NewCursor != nil {
		if len(result.Errors) > 0 {
			// Advancing past a message that failed would drop it for
			// good, since incremental fetches only list history after
			// the cursor. The failed messages come back next pass.
			slog.WarnContext(ctx, "cursor held back, messages failed this pass",
				"cursor", *fetched.NewCursor, "failed", len(result.Errors))
		} else {
			if err := s.stores.Cursors().Advance(ctx, user.ID, *fetched.NewCursor); err != nil {
				return result, fmt.Errorf("advance cursor: %w", err)
			}
			result.NewCursor = fetched.NewCursor
		}
	}

	slog.InfoContext(ctx, "ingestion pass complete",
		"processed", result.Processed, "skipped", result.Skipped, "errors", len(result.Errors))
	return result, nil
}

// IngestOutbound stores the user's recent sent mail so thread context
// includes both sides of the conversation. Sent messages are threaded
// but never generate proposals.
func (s *Service) IngestOutbound(ctx context.Context, user *model.User) (*RunResult, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{UserID: logger.Ptr(user.ID), Component: "agent.ingest.outbound"})

	ids, err := s.transport.ListSent(ctx, s.cfg.SeedPageSize)
	if err != nil {
		return nil, fmt.Errorf("list sent: %w", err)
	}

	result := &RunResult{}
	for _, externalID := range ids {
		ingested, err := s.processOne(ctx, user, externalID, model.DirectionOutbound)
		if err != nil {
			slog.ErrorContext(ctx, "outbound ingestion failed", "external_id", externalID, "error", err)
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", externalID, err))
			continue
		}
		if ingested {
			result.Processed++
		} else {
			result.Skipped++
		}
	}
	return result, nil
}

func (s *Service) processOne(ctx context.Context, user *model.User, externalID string, direction model.Direction) (bool, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{MessageID: logger.Ptr(externalID)})

	nm, err := s.normalizer.Normalize(ctx, externalID)
	if err != nil {
		return false, err
	}

	if direction == model.DirectionInbound {
		if automated, reason := IsAutomated(nm); automated {
			slog.DebugContext(ctx, "message skipped", "reason", reason)
			return false, s.markConsumed(ctx, externalID)
		}
	}

	counterpartyEmail := nm.From
	if direction == model.DirectionOutbound {
		if len(nm.To) == 0 {
			slog.DebugContext(ctx, "outbound message without recipients skipped")
			return false, nil
		}
		counterpartyEmail = nm.To[0]
	}

	counterpartyID, err := s.stores.Counterparties().Resolve(ctx, user.ID, counterpartyEmail, "")
	if err != nil {
		return false, fmt.Errorf("resolve counterparty: %w", err)
	}

	msg := &model.Message{
		UserID:           user.ID,
		CounterpartyID:   counterpartyID,
		Direction:        direction,
		UniversalID:      nm.UniversalID,
		ExternalID:       nm.ExternalID,
		ExternalThreadID: nm.ExternalThreadID,
		From:             nm.From,
		To:               nm.To,
		Subject:          nm.Subject,
		RawText:          nm.RawText,
		CleanedText:      nm.CleanedText,
		OccurredAt:       nm.OccurredAt,
	}

	messageID, isDuplicate, err := s.stores.Messages().CreateOrGet(ctx, msg)
	if err != nil {
		return false, fmt.Errorf("store message: %w", err)
	}
	msg.ID = messageID
	if isDuplicate {
		slog.DebugContext(ctx, "duplicate message, already stored", "message_id", messageID)
		return true, s.markConsumed(ctx, externalID)
	}

	embedding, err := retry.Do(ctx, "llm.embed", func(ctx context.Context) ([]float32, error) {
		return s.embedder.Embed(ctx, embeddingInput(nm))
	})
	if err != nil {
		return false, fmt.Errorf("embed: %w", err)
	}
	if len(embedding) == 0 {
		// Nothing to thread on. The message is stored and readable,
		// it just never joins a conversation thread.
		slog.DebugContext(ctx, "message has no embeddable text, left unthreaded", "message_id", messageID)
		if direction == model.DirectionInbound {
			return true, s.markConsumed(ctx, externalID)
		}
		return true, nil
	}
	if err := s.stores.Messages().StoreEmbedding(ctx, messageID, embedding); err != nil {
		return false, fmt.Errorf("store embedding: %w", err)
	}

	threadID, err := s.resolver.Assign(ctx, msg, embedding)
	if err != nil {
		return false, fmt.Errorf("assign thread: %w", err)
	}

	if s.summarizer != nil {
		if err := s.summarizer.Refresh(ctx, user.ID, threadID); err != nil {
			slog.WarnContext(ctx, "summary refresh failed", "thread_id", threadID, "error", err)
		}
	}

	if direction == model.DirectionInbound {
		return true, s.markConsumed(ctx, externalID)
	}
	return true, nil
}

// markConsumed clears the provider-side unread marker. A failure here
// is logged and swallowed; the message is already safely stored.
func (s *Service) markConsumed(ctx context.Context, externalID string) error {
	if err := s.transport.MarkConsumed(ctx, externalID); err != nil {
		slog.WarnContext(ctx, "mark consumed failed", "external_id", externalID, "error", err)
	}
	return nil
}

func embeddingInput(nm *NormalizedMessage) string {
	if nm.Subject == "" {
		return nm.CleanedText
	}
	return nm.Subject + "\n\n" + nm.CleanedText
}
