package store

import (
	"context"
	"errors"
	"time"

	"threadline.app/agent/internal/model"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrStaleVersion is returned by conditional updates when the version
// token no longer matches the previously-read value.
var ErrStaleVersion = errors.New("stale version")

// UserStore defines the contract for user data access
type UserStore interface {
	GetByID(ctx context.Context, id int64) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	List(ctx context.Context) ([]model.User, error)
}

// MessageStore persists normalized messages with
// insert-or-detect-duplicate semantics.
type MessageStore interface {
	// CreateOrGet inserts the message exactly once. Dedupe precedence:
	// universal id when present, then (user, external id). A duplicate
	// returns the existing row's id and true, with no write.
	CreateOrGet(ctx context.Context, msg *model.Message) (int64, bool, error)
	GetByID(ctx context.Context, id int64) (*model.Message, error)
	// SetThread sets the thread back-reference, once.
	SetThread(ctx context.Context, messageID, threadID int64) error
	ListByThread(ctx context.Context, threadID int64, limit int32) ([]model.Message, error)
	// LatestByDirection returns the most recent occurrence timestamp
	// for the given direction within a thread, or nil when none exist.
	LatestByDirection(ctx context.Context, threadID int64, direction model.Direction) (*time.Time, error)
	StoreEmbedding(ctx context.Context, messageID int64, embedding []float32) error
	GetEmbedding(ctx context.Context, messageID int64) ([]float32, error)
}

// ThreadStore maintains conversation threads, their participant links,
// and the running centroid.
type ThreadStore interface {
	GetByID(ctx context.Context, id int64) (*model.ConversationThread, error)
	Create(ctx context.Context, thread *model.ConversationThread) error
	// MatchSimilar returns up to limit threads for the user whose
	// centroid similarity meets the threshold, best first.
	MatchSimilar(ctx context.Context, userID int64, embedding []float32, threshold float64, limit int) ([]model.ThreadMatch, error)
	// UpdateCentroid writes the folded centroid and count conditioned
	// on message_count still equalling expectedCount. Returns
	// ErrStaleVersion when another writer advanced the count first.
	UpdateCentroid(ctx context.Context, threadID int64, centroid []float32, expectedCount int64) error
	SetSummary(ctx context.Context, threadID int64, summary *model.ThreadSummary) error
	// AddParticipant links a counterparty, insert-or-ignore.
	AddParticipant(ctx context.Context, threadID, counterpartyID int64) error
	HasParticipant(ctx context.Context, threadID, counterpartyID int64) (bool, error)
	ListParticipants(ctx context.Context, threadID int64) ([]int64, error)
}

// CounterpartyStore resolves addresses to stable identities.
type CounterpartyStore interface {
	GetByID(ctx context.Context, id int64) (*model.Counterparty, error)
	// Resolve maps an address to a counterparty id, creating the row
	// on first sight. Idempotent.
	Resolve(ctx context.Context, userID int64, email, nameHint string) (int64, error)
}

// ProposalStore persists scored action proposals.
type ProposalStore interface {
	CreateBatch(ctx context.Context, proposals []model.ActionProposal) error
	ListByThread(ctx context.Context, threadID int64) ([]model.ActionProposal, error)
	UpdateStatus(ctx context.Context, id int64, status model.ProposalStatus, snoozedUntil *time.Time) error
	// SupersedePending retires the thread's PENDING proposals so a new
	// proposal run never multiplies identical rows.
	SupersedePending(ctx context.Context, threadID int64) error
}

// CursorStore tracks per-user ingestion progress. The cursor only ever
// advances.
type CursorStore interface {
	Get(ctx context.Context, userID int64) (string, error) // "" when unset
	// Advance persists max(stored, cursor); a smaller value is a no-op.
	Advance(ctx context.Context, userID int64, cursor string) error
}
