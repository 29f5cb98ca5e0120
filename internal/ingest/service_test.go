package ingest_test

import (
	"context"
	"errors"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"threadline.app/agent/core/config"
	"threadline.app/agent/internal/ingest"
	"threadline.app/agent/internal/mail"
	"threadline.app/agent/internal/model"
)

func humanMessage(id string) *mail.ProviderMessage {
	return &mail.ProviderMessage{
		ID:       id,
		ThreadID: "t-" + id,
		Headers: []mail.Header{
			{Name: "Message-Id", Value: "<" + id + "@mail.example.com>"},
			{Name: "From", Value: "alice@example.com"},
			{Name: "To", Value: "me@example.com"},
			{Name: "Subject", Value: "Contract discussion"},
		},
		InternalDate: 1700000000000,
		Parts: []mail.BodyPart{{
			MimeType: "text/plain",
			Data:     []byte("Can you send over the revised contract terms before Friday?"),
		}},
	}
}

var _ = Describe("Service", func() {
	var (
		ctx        context.Context
		cfg        config.IngestConfig
		transport  *mockTransport
		messages   *mockMessageStore
		cursors    *mockCursorStore
		provider   *mockProvider
		embedder   *mockEmbedder
		resolver   *mockResolver
		summarizer *mockSummarizer
		svc        *ingest.Service
		user       *model.User
	)

	BeforeEach(func() {
		ctx = context.Background()
		cfg = config.IngestConfig{SeedPageSize: 50}
		transport = &mockTransport{}
		messages = &mockMessageStore{}
		cursors = &mockCursorStore{}
		provider = &mockProvider{
			messages:       messages,
			cursors:        cursors,
			counterparties: &mockCounterpartyStore{},
		}
		embedder = &mockEmbedder{}
		resolver = &mockResolver{}
		summarizer = &mockSummarizer{}
		svc = ingest.NewService(cfg, provider, transport, embedder, resolver, summarizer)
		user = &model.User{ID: 1, Email: "me@example.com"}
	})

	Context("seed run with no stored cursor", func() {
		BeforeEach(func() {
			transport.listUnreadFn = func(ctx context.Context, pageSize int32) ([]string, string, error) {
				return []string{"m1", "m2", "m3"}, "100", nil
			}
			transport.getFn = func(ctx context.Context, msgID string) (*mail.ProviderMessage, error) {
				return humanMessage(msgID), nil
			}
		})

		It("stores, embeds, threads, and consumes every message and adopts the marker", func() {
			result, err := svc.Run(ctx, user)

			Expect(err).NotTo(HaveOccurred())
			Expect(result.Processed).To(Equal(3))
			Expect(result.Errors).To(BeEmpty())
			Expect(result.NewCursor).To(HaveValue(Equal("100")))

			Expect(messages.stored).To(HaveLen(3))
			Expect(messages.embeddings).To(HaveLen(3))
			Expect(resolver.assigned).To(HaveLen(3))
			Expect(summarizer.refreshed).To(HaveLen(3))
			Expect(transport.consumed).To(ConsistOf("m1", "m2", "m3"))
			Expect(cursors.advanced).To(Equal([]string{"100"}))
		})

		It("contains one message's failure and holds the cursor back", func() {
			transport.getFn = func(ctx context.Context, msgID string) (*mail.ProviderMessage, error) {
				if msgID == "m2" {
					return nil, errors.New("malformed payload")
				}
				return humanMessage(msgID), nil
			}

			result, err := svc.Run(ctx, user)

			Expect(err).NotTo(HaveOccurred())
			Expect(result.Processed).To(Equal(2))
			Expect(result.Errors).To(HaveLen(1))
			Expect(result.Errors[0]).To(ContainSubstring("m2"))
			// the failed message must be re-listed next pass
			Expect(result.NewCursor).To(BeNil())
			Expect(cursors.advanced).To(BeEmpty())
		})

		It("treats a duplicate as success and skips re-embedding", func() {
			var next int64 = 11
			messages.createOrGetFn = func(ctx context.Context, msg *model.Message) (int64, bool, error) {
				if msg.ExternalID == "m1" {
					return 10, true, nil
				}
				next++
				return next, false, nil
			}

			result, err := svc.Run(ctx, user)

			Expect(err).NotTo(HaveOccurred())
			Expect(result.Processed).To(Equal(3))
			// one duplicate: only two messages reach the embedder
			Expect(messages.embeddings).To(HaveLen(2))
			Expect(transport.consumed).To(ContainElement("m1"))
		})

		It("stores a message with no embeddable text without threading it", func() {
			embedder.embedFn = func(ctx context.Context, text string) ([]float32, error) {
				return nil, nil
			}

			result, err := svc.Run(ctx, user)

			Expect(err).NotTo(HaveOccurred())
			Expect(result.Processed).To(Equal(3))
			Expect(messages.stored).To(HaveLen(3))
			Expect(messages.embeddings).To(BeEmpty())
			Expect(resolver.assigned).To(BeEmpty())
			Expect(transport.consumed).To(ConsistOf("m1", "m2", "m3"))
		})

		It("tolerates a failing consume step", func() {
			transport.markConsumedFn = func(ctx context.Context, msgID string) error {
				return fmt.Errorf("modify failed")
			}

			result, err := svc.Run(ctx, user)

			Expect(err).NotTo(HaveOccurred())
			Expect(result.Processed).To(Equal(3))
		})

		It("skips automated messages without threading them", func() {
			transport.getFn = func(ctx context.Context, msgID string) (*mail.ProviderMessage, error) {
				pm := humanMessage(msgID)
				if msgID == "m3" {
					pm.Headers = append(pm.Headers, mail.Header{Name: "List-Unsubscribe", Value: "<mailto:x@y>"})
				}
				return pm, nil
			}

			result, err := svc.Run(ctx, user)

			Expect(err).NotTo(HaveOccurred())
			Expect(messages.stored).To(HaveLen(2))
			// the skipped message is still consumed so it never reappears
			Expect(transport.consumed).To(ContainElement("m3"))
			Expect(result.Skipped).To(Equal(1))
		})
	})

	Context("incremental run", func() {
		It("advances from the stored cursor and never regresses it", func() {
			cursors.cursor = "100"
			transport.listHistoryFn = func(ctx context.Context, cursor string) ([]mail.HistoryEvent, error) {
				Expect(cursor).To(Equal("100"))
				return []mail.HistoryEvent{{EntryID: 105, MessageID: "m9"}}, nil
			}
			transport.getFn = func(ctx context.Context, msgID string) (*mail.ProviderMessage, error) {
				return humanMessage(msgID), nil
			}

			result, err := svc.Run(ctx, user)

			Expect(err).NotTo(HaveOccurred())
			Expect(result.Processed).To(Equal(1))
			Expect(result.NewCursor).To(HaveValue(Equal("105")))
			Expect(cursors.cursor).To(Equal("105"))
		})

		It("keeps the cursor on a failed message so the next pass sees it again", func() {
			cursors.cursor = "100"
			transport.listHistoryFn = func(ctx context.Context, cursor string) ([]mail.HistoryEvent, error) {
				Expect(cursor).To(Equal("100"))
				return []mail.HistoryEvent{{EntryID: 105, MessageID: "m9"}}, nil
			}
			transport.getFn = func(ctx context.Context, msgID string) (*mail.ProviderMessage, error) {
				return nil, errors.New("malformed payload")
			}

			result, err := svc.Run(ctx, user)

			Expect(err).NotTo(HaveOccurred())
			Expect(result.Errors).To(HaveLen(1))
			Expect(cursors.cursor).To(Equal("100"))

			// transient trouble clears; the same event is re-listed and
			// only now does the cursor move
			transport.getFn = func(ctx context.Context, msgID string) (*mail.ProviderMessage, error) {
				return humanMessage(msgID), nil
			}

			result, err = svc.Run(ctx, user)

			Expect(err).NotTo(HaveOccurred())
			Expect(result.Processed).To(Equal(1))
			Expect(cursors.cursor).To(Equal("105"))
		})

		It("leaves the cursor untouched when nothing new arrived", func() {
			cursors.cursor = "105"
			transport.listHistoryFn = func(ctx context.Context, cursor string) ([]mail.HistoryEvent, error) {
				return nil, nil
			}

			result, err := svc.Run(ctx, user)

			Expect(err).NotTo(HaveOccurred())
			Expect(result.Processed).To(Equal(0))
			Expect(result.NewCursor).To(BeNil())
			Expect(cursors.advanced).To(BeEmpty())
		})
	})

	Context("outbound ingestion", func() {
		It("stores sent mail against the first recipient without consuming", func() {
			transport.listSentFn = func(ctx context.Context, pageSize int32) ([]string, error) {
				return []string{"s1"}, nil
			}
			transport.getFn = func(ctx context.Context, msgID string) (*mail.ProviderMessage, error) {
				pm := humanMessage(msgID)
				pm.Headers[1] = mail.Header{Name: "From", Value: "me@example.com"}
				pm.Headers[2] = mail.Header{Name: "To", Value: "alice@example.com"}
				return pm, nil
			}

			result, err := svc.IngestOutbound(ctx, user)

			Expect(err).NotTo(HaveOccurred())
			Expect(result.Processed).To(Equal(1))
			Expect(messages.stored).To(HaveLen(1))
			Expect(messages.stored[0].Direction).To(Equal(model.DirectionOutbound))
			Expect(transport.consumed).To(BeEmpty())
		})
	})
})
