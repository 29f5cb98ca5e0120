package action_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"threadline.app/agent/common/llm"
	"threadline.app/agent/core/config"
	"threadline.app/agent/internal/action"
	"threadline.app/agent/internal/model"
)

// factsByType feeds the extractor canned facts keyed on the candidate
// type embedded in the prompt.
func factsByType(responses map[string]string) func(ctx context.Context, req llm.Request, result any) (*llm.Response, error) {
	return func(ctx context.Context, req llm.Request, result any) (*llm.Response, error) {
		for actionType, payload := range responses {
			if strings.Contains(req.UserPrompt, "("+actionType+")") {
				if err := json.Unmarshal([]byte(payload), result); err != nil {
					return nil, err
				}
				return &llm.Response{}, nil
			}
		}
		return &llm.Response{}, nil
	}
}

var _ = Describe("Engine", func() {
	var (
		ctx            context.Context
		cfg            config.IngestConfig
		threads        *mockThreadStore
		messages       *mockMessageStore
		counterparties *mockCounterpartyStore
		proposals      *mockProposalStore
		provider       *mockProvider
		client         *mockLLM
		engine         *action.Engine

		blacklisted bool
	)

	const threadID = int64(42)

	BeforeEach(func() {
		ctx = context.Background()
		cfg = config.IngestConfig{MaxProposals: 3, SummaryWindow: 15}
		blacklisted = false

		threads = &mockThreadStore{
			getByIDFn: func(ctx context.Context, id int64) (*model.ConversationThread, error) {
				return &model.ConversationThread{ID: id, UserID: 1, State: model.ThreadStateActive}, nil
			},
		}

		lastOut := time.Now().UTC().Add(-120 * time.Hour)
		lastIn := time.Now().UTC().Add(-76 * time.Hour)
		messages = &mockMessageStore{
			listByThreadFn: func(ctx context.Context, id int64, limit int32) ([]model.Message, error) {
				// newest first
				return []model.Message{
					{
						ID: 2, CounterpartyID: 7, Direction: model.DirectionInbound,
						ExternalID:  "m2",
						From:        "alice@example.com",
						CleanedText: "Can you confirm the contract price by Friday? Let's schedule a call at 3pm.",
						OccurredAt:  lastIn,
					},
					{
						ID: 1, CounterpartyID: 7, Direction: model.DirectionOutbound,
						ExternalID:  "m1",
						From:        "me@example.com",
						CleanedText: "Here is our opening offer.",
						OccurredAt:  lastOut,
					},
				}, nil
			},
			latestFn: func(ctx context.Context, id int64, direction model.Direction) (*time.Time, error) {
				if direction == model.DirectionInbound {
					return &lastIn, nil
				}
				return &lastOut, nil
			},
		}

		counterparties = &mockCounterpartyStore{
			getByIDFn: func(ctx context.Context, id int64) (*model.Counterparty, error) {
				return &model.Counterparty{ID: id, Email: "alice@example.com", IsBlacklisted: blacklisted}, nil
			},
		}

		proposals = &mockProposalStore{}
		provider = &mockProvider{
			threads:        threads,
			messages:       messages,
			counterparties: counterparties,
			proposals:      proposals,
		}

		client = &mockLLM{
			chatFn: factsByType(map[string]string{
				"NEGOTIATION":     `{"dollar_value":1000,"urgency":8,"pain_factor":1,"immovable":false}`,
				"CALENDAR_INTENT": `{"dollar_value":0,"urgency":2,"pain_factor":0,"immovable":true}`,
				"REPLY_DRAFT":     `{"dollar_value":0,"urgency":9,"pain_factor":9,"immovable":false}`,
				"TODO":            `{"dollar_value":0,"urgency":3,"pain_factor":2,"immovable":false}`,
			}),
		}

		engine = action.NewEngine(cfg, provider, action.NewFactExtractor(client))
	})

	Describe("Propose", func() {
		It("persists the top proposals ranked by score", func() {
			result, err := engine.Propose(ctx, threadID)

			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(HaveLen(3))

			Expect(result[0].Type).To(Equal(model.ActionNegotiation))
			Expect(result[1].Type).To(Equal(model.ActionCalendar))
			Expect(result[2].Type).To(Equal(model.ActionReplyDraft))

			// value*urgency plus pain*(days+1)^2 with three days waiting
			Expect(result[0].Score.Priority).To(BeNumerically("==", 8016))
			Expect(result[1].Score.Bonus).To(BeNumerically("==", 1000))
			Expect(result[2].Score.Priority).To(BeNumerically("==", 144))

			for _, p := range result {
				Expect(p.ThreadID).To(Equal(threadID))
				Expect(p.Status).To(Equal(model.ProposalPending))
			}

			Expect(proposals.created).To(HaveLen(1))
			Expect(proposals.created[0]).To(HaveLen(3))
		})

		It("retires the prior pending set on a re-run instead of duplicating it", func() {
			_, err := engine.Propose(ctx, threadID)
			Expect(err).NotTo(HaveOccurred())

			result, err := engine.Propose(ctx, threadID)

			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(HaveLen(3))
			// each run stores one batch of three; the earlier batch is
			// marked superseded rather than left to pile up
			Expect(proposals.created).To(HaveLen(2))
			Expect(proposals.superseded).To(Equal([]int64{threadID, threadID}))
		})

		It("produces nothing for a blacklisted counterparty", func() {
			blacklisted = true

			result, err := engine.Propose(ctx, threadID)

			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(BeEmpty())
			Expect(proposals.created).To(BeEmpty())
			Expect(proposals.superseded).To(BeEmpty())
		})

		It("produces nothing for an empty thread", func() {
			messages.listByThreadFn = func(ctx context.Context, id int64, limit int32) ([]model.Message, error) {
				return nil, nil
			}
			messages.latestFn = nil

			result, err := engine.Propose(ctx, threadID)

			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(BeEmpty())
			Expect(proposals.created).To(BeEmpty())
		})

		It("falls back to neutral facts when extraction fails", func() {
			client.chatFn = func(ctx context.Context, req llm.Request, result any) (*llm.Response, error) {
				return nil, errors.New("schema rejected by model")
			}

			result, err := engine.Propose(ctx, threadID)

			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(HaveLen(3))
			// neutral pain of 5 against three days waiting
			for _, p := range result {
				Expect(p.Score.Priority).To(BeNumerically("==", 80))
			}
		})
	})

	Describe("ListVisible", func() {
		It("filters dismissed, superseded, and still-snoozed proposals and ranks the rest", func() {
			past := time.Now().UTC().Add(-time.Hour)
			future := time.Now().UTC().Add(time.Hour)
			proposals.listByThreadFn = func(ctx context.Context, id int64) ([]model.ActionProposal, error) {
				return []model.ActionProposal{
					{ID: 1, Status: model.ProposalPending, Score: model.ScoreBreakdown{Priority: 50}},
					{ID: 2, Status: model.ProposalDismissed, Score: model.ScoreBreakdown{Priority: 999}},
					{ID: 3, Status: model.ProposalSnoozed, SnoozedUntil: &future, Score: model.ScoreBreakdown{Priority: 500}},
					{ID: 4, Status: model.ProposalSnoozed, SnoozedUntil: &past, Score: model.ScoreBreakdown{Priority: 90}},
					{ID: 5, Status: model.ProposalSuperseded, Score: model.ScoreBreakdown{Priority: 700}},
				}, nil
			}

			visible, err := engine.ListVisible(ctx, threadID)

			Expect(err).NotTo(HaveOccurred())
			Expect(visible).To(HaveLen(2))
			Expect(visible[0].ID).To(Equal(int64(4)))
			Expect(visible[1].ID).To(Equal(int64(1)))
		})
	})
})
