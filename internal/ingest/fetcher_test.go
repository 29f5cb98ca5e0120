package ingest_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"threadline.app/agent/internal/ingest"
	"threadline.app/agent/internal/mail"
)

var _ = Describe("Fetcher", func() {
	var (
		ctx       context.Context
		transport *mockTransport
		fetcher   *ingest.Fetcher
	)

	BeforeEach(func() {
		ctx = context.Background()
		transport = &mockTransport{}
		fetcher = ingest.NewFetcher(transport, 50)
	})

	Context("with no stored cursor", func() {
		It("seeds from the unread listing and adopts the change marker", func() {
			transport.listUnreadFn = func(ctx context.Context, pageSize int32) ([]string, string, error) {
				Expect(pageSize).To(Equal(int32(50)))
				return []string{"m1", "m2", "m3"}, "100", nil
			}

			result, err := fetcher.Fetch(ctx, "")

			Expect(err).NotTo(HaveOccurred())
			Expect(result.MessageIDs).To(Equal([]string{"m1", "m2", "m3"}))
			Expect(result.NewCursor).To(HaveValue(Equal("100")))
		})

		It("leaves the cursor unset when the provider returns no marker", func() {
			transport.listUnreadFn = func(ctx context.Context, pageSize int32) ([]string, string, error) {
				return nil, "", nil
			}

			result, err := fetcher.Fetch(ctx, "")

			Expect(err).NotTo(HaveOccurred())
			Expect(result.MessageIDs).To(BeEmpty())
			Expect(result.NewCursor).To(BeNil())
		})
	})

	Context("with a stored cursor", func() {
		It("collects added messages and the maximum change-log entry id", func() {
			transport.listHistoryFn = func(ctx context.Context, cursor string) ([]mail.HistoryEvent, error) {
				Expect(cursor).To(Equal("100"))
				return []mail.HistoryEvent{
					{EntryID: 103, MessageID: "m4"},
					{EntryID: 105, MessageID: "m5"},
				}, nil
			}

			result, err := fetcher.Fetch(ctx, "100")

			Expect(err).NotTo(HaveOccurred())
			Expect(result.MessageIDs).To(Equal([]string{"m4", "m5"}))
			Expect(result.NewCursor).To(HaveValue(Equal("105")))
		})

		It("does not produce a cursor when no new entries exist", func() {
			transport.listHistoryFn = func(ctx context.Context, cursor string) ([]mail.HistoryEvent, error) {
				return nil, nil
			}

			result, err := fetcher.Fetch(ctx, "105")

			Expect(err).NotTo(HaveOccurred())
			Expect(result.MessageIDs).To(BeEmpty())
			Expect(result.NewCursor).To(BeNil())
		})

		It("deduplicates message ids repeated across history entries", func() {
			transport.listHistoryFn = func(ctx context.Context, cursor string) ([]mail.HistoryEvent, error) {
				return []mail.HistoryEvent{
					{EntryID: 101, MessageID: "m4"},
					{EntryID: 102, MessageID: "m4"},
					{EntryID: 104},
				}, nil
			}

			result, err := fetcher.Fetch(ctx, "100")

			Expect(err).NotTo(HaveOccurred())
			Expect(result.MessageIDs).To(Equal([]string{"m4"}))
			Expect(result.NewCursor).To(HaveValue(Equal("104")))
		})
	})
})
