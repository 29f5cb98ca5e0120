package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"threadline.app/agent/common/retry"
	"threadline.app/agent/internal/mail"
)

// FetchResult is the fetcher's output: candidate message ids in
// processing order plus the cursor value to persist after the run.
// NewCursor is nil when the run observed nothing newer than the stored
// cursor; the caller must not regress the stored value.
type FetchResult struct {
	MessageIDs []string
	NewCursor  *string
}

// Fetcher turns a per-user change-cursor into an ordered list of
// candidate message ids. It does not fetch content and does not filter
// by label; cursor advancement stays decoupled from downstream
// business filtering.
type Fetcher struct {
	transport mail.Transport
	pageSize  int32
}

func NewFetcher(transport mail.Transport, pageSize int32) *Fetcher {
	if pageSize <= 0 {
		pageSize = 50
	}
	return &Fetcher{transport: transport, pageSize: pageSize}
}

// Fetch runs seed mode when cursor is empty and incremental mode
// otherwise.
func (f *Fetcher) Fetch(ctx context.Context, cursor string) (*FetchResult, error) {
	if cursor == "" {
		return f.seed(ctx)
	}
	return f.incremental(ctx, cursor)
}

// seed lists the current unread inbox; the provider's change-marker at
// list time becomes the first cursor.
func (f *Fetcher) seed(ctx context.Context) (*FetchResult, error) {
	type listing struct {
		ids    []string
		marker string
	}

	result, err := retry.Do(ctx, "mail.list_unread", func(ctx context.Context) (listing, error) {
		ids, marker, err := f.transport.ListUnread(ctx, f.pageSize)
		return listing{ids: ids, marker: marker}, err
	})
	if err != nil {
		return nil, fmt.Errorf("seed listing: %w", err)
	}

	slog.InfoContext(ctx, "seed fetch complete", "messages", len(result.ids), "change_marker", result.marker)

	res := &FetchResult{MessageIDs: result.ids}
	if result.marker != "" {
		res.NewCursor = &result.marker
	}
	return res, nil
}

// incremental walks the change log from the stored cursor, collecting
// message-added events and the maximum change-log entry id seen.
func (f *Fetcher) incremental(ctx context.Context, cursor string) (*FetchResult, error) {
	events, err := retry.Do(ctx, "mail.list_history", func(ctx context.Context) ([]mail.HistoryEvent, error) {
		return f.transport.ListHistory(ctx, cursor)
	})
	if err != nil {
		return nil, fmt.Errorf("history listing from %s: %w", cursor, err)
	}

	var (
		ids   []string
		seen  = make(map[string]struct{})
		maxID uint64
	)
	for _, ev := range events {
		if ev.EntryID > maxID {
			maxID = ev.EntryID
		}
		if ev.MessageID == "" {
			continue
		}
		if _, dup := seen[ev.MessageID]; dup {
			continue
		}
		seen[ev.MessageID] = struct{}{}
		ids = append(ids, ev.MessageID)
	}

	res := &FetchResult{MessageIDs: ids}
	if maxID > 0 {
		c := strconv.FormatUint(maxID, 10)
		res.NewCursor = &c
	}

	slog.InfoContext(ctx, "incremental fetch complete", "cursor", cursor, "messages", len(ids), "max_entry", maxID)
	return res, nil
}
