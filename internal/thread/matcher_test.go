package thread_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"threadline.app/agent/core/config"
	"threadline.app/agent/internal/model"
	"threadline.app/agent/internal/store"
	"threadline.app/agent/internal/thread"
)

var _ = Describe("Matcher", func() {
	var (
		ctx      context.Context
		cfg      config.IngestConfig
		threads  *mockThreadStore
		messages *mockMessageStore
		provider *mockProvider
		matcher  *thread.Matcher
		msg      *model.Message
	)

	BeforeEach(func() {
		ctx = context.Background()
		cfg = config.IngestConfig{
			SimilarityThreshold: 0.78,
			MatchCandidates:     5,
			CentroidRetries:     3,
		}
		threads = &mockThreadStore{}
		messages = &mockMessageStore{}
		provider = &mockProvider{threads: threads, messages: messages}
		matcher = thread.NewMatcher(cfg, provider)

		msg = &model.Message{
			ID:             100,
			UserID:         1,
			CounterpartyID: 7,
			Subject:        "Q3 invoice",
		}
	})

	Describe("Assign", func() {
		Context("when no similar thread exists", func() {
			It("creates a new thread seeded with the embedding at count one", func() {
				var created *model.ConversationThread
				threads.createFn = func(ctx context.Context, t *model.ConversationThread) error {
					t.ID = 42
					created = t
					return nil
				}

				embedding := []float32{0.1, 0.2, 0.3}
				threadID, err := matcher.Assign(ctx, msg, embedding)

				Expect(err).NotTo(HaveOccurred())
				Expect(threadID).To(Equal(int64(42)))
				Expect(created.Centroid).To(Equal(embedding))
				Expect(created.MessageCount).To(Equal(int64(1)))
				Expect(created.State).To(Equal(model.ThreadStateActive))
				Expect(messages.linkedThreads[int64(100)]).To(Equal(int64(42)))
				Expect(threads.addedParticipants).To(ContainElement([2]int64{42, 7}))
			})
		})

		Context("when similar threads exist but none share the counterparty", func() {
			It("creates a new thread instead of merging", func() {
				threads.matchSimilarFn = func(ctx context.Context, userID int64, embedding []float32, threshold float64, limit int) ([]model.ThreadMatch, error) {
					return []model.ThreadMatch{
						{ThreadID: 10, Similarity: 0.95},
						{ThreadID: 11, Similarity: 0.88},
					}, nil
				}
				threads.hasParticipantFn = func(ctx context.Context, threadID, counterpartyID int64) (bool, error) {
					return false, nil
				}
				threads.createFn = func(ctx context.Context, t *model.ConversationThread) error {
					t.ID = 42
					return nil
				}

				threadID, err := matcher.Assign(ctx, msg, []float32{0.5, 0.5})

				Expect(err).NotTo(HaveOccurred())
				Expect(threadID).To(Equal(int64(42)))
			})
		})

		Context("when a similar thread shares the counterparty", func() {
			It("joins the best candidate whose participants include the sender", func() {
				threads.matchSimilarFn = func(ctx context.Context, userID int64, embedding []float32, threshold float64, limit int) ([]model.ThreadMatch, error) {
					return []model.ThreadMatch{
						{ThreadID: 10, Similarity: 0.95},
						{ThreadID: 11, Similarity: 0.88},
					}, nil
				}
				threads.hasParticipantFn = func(ctx context.Context, threadID, counterpartyID int64) (bool, error) {
					return threadID == 11, nil
				}
				threads.getByIDFn = func(ctx context.Context, id int64) (*model.ConversationThread, error) {
					return &model.ConversationThread{ID: 11, Centroid: []float32{1, 1}, MessageCount: 1}, nil
				}

				threadID, err := matcher.Assign(ctx, msg, []float32{0.5, 0.5})

				Expect(err).NotTo(HaveOccurred())
				Expect(threadID).To(Equal(int64(11)))
				Expect(messages.linkedThreads[int64(100)]).To(Equal(int64(11)))
			})
		})

		Context("when folding into an existing centroid", func() {
			It("writes the incremental mean guarded by the message count", func() {
				threads.matchSimilarFn = func(ctx context.Context, userID int64, embedding []float32, threshold float64, limit int) ([]model.ThreadMatch, error) {
					return []model.ThreadMatch{{ThreadID: 11, Similarity: 0.9}}, nil
				}
				threads.hasParticipantFn = func(ctx context.Context, threadID, counterpartyID int64) (bool, error) {
					return true, nil
				}
				threads.getByIDFn = func(ctx context.Context, id int64) (*model.ConversationThread, error) {
					return &model.ConversationThread{ID: 11, Centroid: []float32{2, 4}, MessageCount: 3}, nil
				}

				var gotCentroid []float32
				var gotExpected int64
				threads.updateCentroidFn = func(ctx context.Context, threadID int64, centroid []float32, expectedCount int64) error {
					gotCentroid = centroid
					gotExpected = expectedCount
					return nil
				}

				_, err := matcher.Assign(ctx, msg, []float32{6, 0})

				Expect(err).NotTo(HaveOccurred())
				// (2*3+6)/4 = 3, (4*3+0)/4 = 3
				Expect(gotCentroid).To(Equal([]float32{3, 3}))
				Expect(gotExpected).To(Equal(int64(3)))
			})

			It("retries against fresh state when the conditional write loses", func() {
				threads.matchSimilarFn = func(ctx context.Context, userID int64, embedding []float32, threshold float64, limit int) ([]model.ThreadMatch, error) {
					return []model.ThreadMatch{{ThreadID: 11, Similarity: 0.9}}, nil
				}
				threads.hasParticipantFn = func(ctx context.Context, threadID, counterpartyID int64) (bool, error) {
					return true, nil
				}

				reads := 0
				threads.getByIDFn = func(ctx context.Context, id int64) (*model.ConversationThread, error) {
					reads++
					if reads == 1 {
						return &model.ConversationThread{ID: 11, Centroid: []float32{1, 1}, MessageCount: 3}, nil
					}
					return &model.ConversationThread{ID: 11, Centroid: []float32{2, 2}, MessageCount: 4}, nil
				}

				writes := 0
				var lastExpected int64
				threads.updateCentroidFn = func(ctx context.Context, threadID int64, centroid []float32, expectedCount int64) error {
					writes++
					lastExpected = expectedCount
					if writes == 1 {
						return store.ErrStaleVersion
					}
					return nil
				}

				_, err := matcher.Assign(ctx, msg, []float32{0, 0})

				Expect(err).NotTo(HaveOccurred())
				Expect(writes).To(Equal(2))
				Expect(lastExpected).To(Equal(int64(4)))
			})

			It("reports a failure after exhausting its retries", func() {
				threads.matchSimilarFn = func(ctx context.Context, userID int64, embedding []float32, threshold float64, limit int) ([]model.ThreadMatch, error) {
					return []model.ThreadMatch{{ThreadID: 11, Similarity: 0.9}}, nil
				}
				threads.hasParticipantFn = func(ctx context.Context, threadID, counterpartyID int64) (bool, error) {
					return true, nil
				}
				threads.getByIDFn = func(ctx context.Context, id int64) (*model.ConversationThread, error) {
					return &model.ConversationThread{ID: 11, Centroid: []float32{1}, MessageCount: 3}, nil
				}

				writes := 0
				threads.updateCentroidFn = func(ctx context.Context, threadID int64, centroid []float32, expectedCount int64) error {
					writes++
					return store.ErrStaleVersion
				}

				_, err := matcher.Assign(ctx, msg, []float32{0})

				Expect(err).To(MatchError(store.ErrStaleVersion))
				Expect(writes).To(Equal(3))
			})
		})

		Context("when the message has no embedding", func() {
			It("refuses to thread instead of seeding an empty centroid", func() {
				searched := false
				threads.matchSimilarFn = func(ctx context.Context, userID int64, embedding []float32, threshold float64, limit int) ([]model.ThreadMatch, error) {
					searched = true
					return nil, nil
				}
				created := false
				threads.createFn = func(ctx context.Context, t *model.ConversationThread) error {
					created = true
					return nil
				}

				_, err := matcher.Assign(ctx, msg, nil)

				Expect(err).To(HaveOccurred())
				Expect(searched).To(BeFalse())
				Expect(created).To(BeFalse())
			})
		})
	})
})
