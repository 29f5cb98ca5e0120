// Package mail defines the provider transport contract the ingestion
// pipeline consumes, plus the Gmail-backed implementation. All calls
// must be safely retriable; the retry executor wraps them at the call
// site.
package mail

import (
	"context"
	"strings"
)

// Provider qualifies universal message ids.
const ProviderGmail = "GMAIL"

// HistoryEvent is one "message added" entry from the provider's change
// log. EntryID is the change-log position, not the message id.
type HistoryEvent struct {
	EntryID   uint64
	MessageID string
}

// ProviderMessage is the raw fetched shape handed to the normalizer.
type ProviderMessage struct {
	ID           string
	ThreadID     string
	InternalDate int64 // epoch millis, 0 when the provider omitted it
	Headers      []Header
	Parts        []BodyPart
}

type Header struct {
	Name  string
	Value string
}

type BodyPart struct {
	MimeType string
	Data     []byte
}

// Header returns the first header matching name, case-insensitively.
func (m *ProviderMessage) Header(name string) string {
	for _, h := range m.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// Transport is the mail-provider contract. Implementations must be
// idempotent per call so the retry executor can re-issue them.
type Transport interface {
	// ListUnread returns current unread inbox message ids (bounded)
	// plus the provider's current change-marker, used to seed the
	// cursor on first run.
	ListUnread(ctx context.Context, pageSize int32) (ids []string, changeMarker string, err error)

	// ListHistory pages through the change log starting after cursor
	// and returns every message-added event.
	ListHistory(ctx context.Context, cursor string) ([]HistoryEvent, error)

	// ListSent returns recent sent message ids for outbound ingestion.
	ListSent(ctx context.Context, pageSize int32) ([]string, error)

	// Get fetches one message's full content.
	Get(ctx context.Context, id string) (*ProviderMessage, error)

	// MarkConsumed clears the unread flag so a failed run does not
	// reprocess the message forever.
	MarkConsumed(ctx context.Context, id string) error
}
