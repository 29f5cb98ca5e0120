package thread

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"threadline.app/agent/core/config"
	"threadline.app/agent/internal/model"
	"threadline.app/agent/internal/store"
)

// Matcher assigns messages to conversation threads by centroid
// similarity and keeps each thread's centroid the running mean of its
// member embeddings.
type Matcher struct {
	cfg    config.IngestConfig
	stores store.Provider
}

func NewMatcher(cfg config.IngestConfig, stores store.Provider) *Matcher {
	return &Matcher{cfg: cfg, stores: stores}
}

// Assign finds or creates the thread for a stored message, links the
// message to it, folds the message embedding into the centroid, and
// records the counterparty as a participant.
func (m *Matcher) Assign(ctx context.Context, msg *model.Message, embedding []float32) (int64, error) {
	if len(embedding) == 0 {
		// A thread centroid is the mean of member embeddings; seeding
		// one from nothing would leave an unusable zero-dimension
		// centroid behind. Callers keep such messages unthreaded.
		return 0, fmt.Errorf("message %d has no embedding to thread on", msg.ID)
	}

	threadID, matched, err := m.matchExisting(ctx, msg, embedding)
	if err != nil {
		return 0, err
	}

	if !matched {
		return m.createThread(ctx, msg, embedding)
	}

	if err := m.stores.Messages().SetThread(ctx, msg.ID, threadID); err != nil {
		return 0, fmt.Errorf("link message to thread: %w", err)
	}
	if err := m.foldCentroid(ctx, threadID, embedding); err != nil {
		return 0, err
	}
	if err := m.stores.Threads().AddParticipant(ctx, threadID, msg.CounterpartyID); err != nil {
		return 0, fmt.Errorf("add participant: %w", err)
	}
	return threadID, nil
}

// matchExisting runs the similarity search and applies the participant
// tie-break: a candidate only wins when the message's counterparty is
// already a participant of that thread. Candidates are checked best
// first.
func (m *Matcher) matchExisting(ctx context.Context, msg *model.Message, embedding []float32) (int64, bool, error) {
	candidates, err := m.stores.Threads().MatchSimilar(
		ctx, msg.UserID, embedding, m.cfg.SimilarityThreshold, m.cfg.MatchCandidates)
	if err != nil {
		return 0, false, fmt.Errorf("match threads: %w", err)
	}

	for _, c := range candidates {
		ok, err := m.stores.Threads().HasParticipant(ctx, c.ThreadID, msg.CounterpartyID)
		if err != nil {
			return 0, false, fmt.Errorf("check participant: %w", err)
		}
		if ok {
			slog.DebugContext(ctx, "thread matched",
				"thread_id", c.ThreadID, "similarity", c.Similarity)
			return c.ThreadID, true, nil
		}
	}
	return 0, false, nil
}

// createThread opens a fresh thread seeded with the message embedding
// as its centroid at count one.
func (m *Matcher) createThread(ctx context.Context, msg *model.Message, embedding []float32) (int64, error) {
	t := &model.ConversationThread{
		UserID:       msg.UserID,
		Topic:        msg.Subject,
		State:        model.ThreadStateActive,
		Centroid:     embedding,
		MessageCount: 1,
	}
	if err := m.stores.Threads().Create(ctx, t); err != nil {
		return 0, fmt.Errorf("create thread: %w", err)
	}
	if err := m.stores.Messages().SetThread(ctx, msg.ID, t.ID); err != nil {
		return 0, fmt.Errorf("link message to thread: %w", err)
	}
	if err := m.stores.Threads().AddParticipant(ctx, t.ID, msg.CounterpartyID); err != nil {
		return 0, fmt.Errorf("add participant: %w", err)
	}
	slog.DebugContext(ctx, "thread created", "thread_id", t.ID)
	return t.ID, nil
}

// foldCentroid folds one embedding into the thread centroid as an
// incremental mean, guarded by the message count as a version token.
// A concurrent fold loses the conditional write and retries from a
// fresh read.
func (m *Matcher) foldCentroid(ctx context.Context, threadID int64, embedding []float32) error {
	for attempt := 0; attempt < m.cfg.CentroidRetries; attempt++ {
		t, err := m.stores.Threads().GetByID(ctx, threadID)
		if err != nil {
			return fmt.Errorf("read thread: %w", err)
		}
		if len(t.Centroid) != len(embedding) {
			return fmt.Errorf("centroid dimension %d does not match embedding dimension %d",
				len(t.Centroid), len(embedding))
		}

		updated := foldMean(t.Centroid, embedding, t.MessageCount)
		err = m.stores.Threads().UpdateCentroid(ctx, threadID, updated, t.MessageCount)
		if err == nil {
			return nil
		}
		if !errors.Is(err, store.ErrStaleVersion) {
			return fmt.Errorf("update centroid: %w", err)
		}
		slog.DebugContext(ctx, "centroid update lost race, retrying",
			"thread_id", threadID, "attempt", attempt+1)
	}
	return fmt.Errorf("centroid update for thread %d exhausted %d attempts: %w",
		threadID, m.cfg.CentroidRetries, store.ErrStaleVersion)
}

// foldMean computes the incremental mean of n centroid samples plus one
// new embedding.
func foldMean(centroid, embedding []float32, n int64) []float32 {
	out := make([]float32, len(centroid))
	fn := float64(n)
	for i := range centroid {
		out[i] = float32((float64(centroid[i])*fn + float64(embedding[i])) / (fn + 1))
	}
	return out
}
