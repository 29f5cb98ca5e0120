package action

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"threadline.app/agent/common/logger"
	"threadline.app/agent/core/config"
	"threadline.app/agent/internal/model"
	"threadline.app/agent/internal/store"
)

// scored pairs a candidate with its score and arrival position.
type scored struct {
	Candidate
	Score   model.ScoreBreakdown
	arrival int
}

// Engine turns a conversation thread into ranked, persisted action
// proposals.
type Engine struct {
	cfg        config.IngestConfig
	stores     store.Provider
	builder    *ContextBuilder
	extractor  *FactExtractor
	generators []Generator
}

func NewEngine(cfg config.IngestConfig, stores store.Provider, extractor *FactExtractor) *Engine {
	return &Engine{
		cfg:        cfg,
		stores:     stores,
		builder:    NewContextBuilder(cfg, stores),
		extractor:  extractor,
		generators: DefaultGenerators(),
	}
}

// Propose generates, scores, deduplicates, and persists proposals for
// one thread. Safe to call repeatedly: prior pending proposals are
// superseded before the new set is stored, and a blacklisted
// counterparty or an empty candidate set persists nothing.
func (e *Engine) Propose(ctx context.Context, threadID int64) ([]model.ActionProposal, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{ThreadID: logger.Ptr(threadID), Component: "agent.action"})

	cc, err := e.builder.Build(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("assemble context: %w", err)
	}

	if cc.Counterparty != nil && cc.Counterparty.IsBlacklisted {
		slog.InfoContext(ctx, "counterparty blacklisted, no proposals")
		return []model.ActionProposal{}, nil
	}

	candidates := runGenerators(cc, e.generators)
	if len(candidates) == 0 {
		return []model.ActionProposal{}, nil
	}

	ranked := e.scoreAll(ctx, cc, candidates)
	ranked = dedupeByOutcome(ranked)
	sortByScore(ranked)

	if len(ranked) > e.cfg.MaxProposals {
		ranked = ranked[:e.cfg.MaxProposals]
	}

	proposals := make([]model.ActionProposal, 0, len(ranked))
	for _, s := range ranked {
		proposals = append(proposals, model.ActionProposal{
			ThreadID:  threadID,
			Type:      s.Type,
			Payload:   s.Payload,
			Rationale: s.Rationale,
			Score:     s.Score,
			Status:    model.ProposalPending,
		})
	}

	if err := e.stores.Proposals().SupersedePending(ctx, threadID); err != nil {
		return nil, fmt.Errorf("supersede prior proposals: %w", err)
	}
	if err := e.stores.Proposals().CreateBatch(ctx, proposals); err != nil {
		return nil, fmt.Errorf("persist proposals: %w", err)
	}

	slog.InfoContext(ctx, "proposals created", "count", len(proposals))
	return proposals, nil
}

// ListVisible returns a thread's stored proposals that should surface
// right now, best first.
func (e *Engine) ListVisible(ctx context.Context, threadID int64) ([]model.ActionProposal, error) {
	all, err := e.stores.Proposals().ListByThread(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("list proposals: %w", err)
	}

	cc, err := e.builder.Build(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("assemble context: %w", err)
	}

	visible := make([]model.ActionProposal, 0, len(all))
	for _, p := range all {
		if p.Visible(cc.Now) {
			visible = append(visible, p)
		}
	}
	sort.SliceStable(visible, func(i, j int) bool {
		return visible[i].Score.Priority > visible[j].Score.Priority
	})
	return visible, nil
}

// scoreAll validates and scores candidates. Invalid candidates are
// dropped with a diagnostic, never propagated.
func (e *Engine) scoreAll(ctx context.Context, cc *ConversationContext, candidates []Candidate) []scored {
	out := make([]scored, 0, len(candidates))
	for i, c := range candidates {
		if err := c.Payload.Validate(c.Type); err != nil {
			slog.WarnContext(ctx, "invalid candidate dropped", "action_type", c.Type, "error", err)
			continue
		}
		facts := e.extractor.Extract(ctx, cc, c)
		out = append(out, scored{
			Candidate: c,
			Score:     Score(facts),
			arrival:   i,
		})
	}
	return out
}

// dedupeByOutcome groups candidates by action type plus target entity
// and keeps the highest-scoring one per group. Candidates without a
// resolvable target are never suppressed. On a score tie the earlier
// arrival wins.
func dedupeByOutcome(in []scored) []scored {
	best := make(map[string]scored)
	var untargeted []scored

	for _, s := range in {
		target := s.Payload.TargetID()
		if target == "" {
			untargeted = append(untargeted, s)
			continue
		}
		key := string(s.Type) + ":" + target
		if cur, ok := best[key]; !ok || s.Score.Priority > cur.Score.Priority {
			best[key] = s
		}
	}

	out := make([]scored, 0, len(best)+len(untargeted))
	for _, s := range best {
		out = append(out, s)
	}
	out = append(out, untargeted...)
	return out
}

// sortByScore orders descending by priority, preserving arrival order
// for equal scores.
func sortByScore(in []scored) {
	sort.SliceStable(in, func(i, j int) bool {
		if in[i].Score.Priority == in[j].Score.Priority {
			return in[i].arrival < in[j].arrival
		}
		return in[i].Score.Priority > in[j].Score.Priority
	})
}
