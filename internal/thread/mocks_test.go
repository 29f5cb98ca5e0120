package thread_test

import (
	"context"
	"time"

	"threadline.app/agent/internal/model"
	"threadline.app/agent/internal/store"
)

type mockProvider struct {
	threads        *mockThreadStore
	messages       *mockMessageStore
	users          store.UserStore
	counterparties store.CounterpartyStore
	proposals      store.ProposalStore
	cursors        store.CursorStore
}

func (m *mockProvider) Users() store.UserStore                   { return m.users }
func (m *mockProvider) Messages() store.MessageStore             { return m.messages }
func (m *mockProvider) Threads() store.ThreadStore               { return m.threads }
func (m *mockProvider) Counterparties() store.CounterpartyStore  { return m.counterparties }
func (m *mockProvider) Proposals() store.ProposalStore           { return m.proposals }
func (m *mockProvider) Cursors() store.CursorStore               { return m.cursors }

type mockThreadStore struct {
	getByIDFn        func(ctx context.Context, id int64) (*model.ConversationThread, error)
	createFn         func(ctx context.Context, thread *model.ConversationThread) error
	matchSimilarFn   func(ctx context.Context, userID int64, embedding []float32, threshold float64, limit int) ([]model.ThreadMatch, error)
	updateCentroidFn func(ctx context.Context, threadID int64, centroid []float32, expectedCount int64) error
	hasParticipantFn func(ctx context.Context, threadID, counterpartyID int64) (bool, error)

	addedParticipants [][2]int64
}

func (m *mockThreadStore) GetByID(ctx context.Context, id int64) (*model.ConversationThread, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, store.ErrNotFound
}

func (m *mockThreadStore) Create(ctx context.Context, thread *model.ConversationThread) error {
	if m.createFn != nil {
		return m.createFn(ctx, thread)
	}
	thread.ID = 1
	return nil
}

func (m *mockThreadStore) MatchSimilar(ctx context.Context, userID int64, embedding []float32, threshold float64, limit int) ([]model.ThreadMatch, error) {
	if m.matchSimilarFn != nil {
		return m.matchSimilarFn(ctx, userID, embedding, threshold, limit)
	}
	return nil, nil
}

func (m *mockThreadStore) UpdateCentroid(ctx context.Context, threadID int64, centroid []float32, expectedCount int64) error {
	if m.updateCentroidFn != nil {
		return m.updateCentroidFn(ctx, threadID, centroid, expectedCount)
	}
	return nil
}

func (m *mockThreadStore) SetSummary(ctx context.Context, threadID int64, summary *model.ThreadSummary) error {
	return nil
}

func (m *mockThreadStore) AddParticipant(ctx context.Context, threadID, counterpartyID int64) error {
	m.addedParticipants = append(m.addedParticipants, [2]int64{threadID, counterpartyID})
	return nil
}

func (m *mockThreadStore) HasParticipant(ctx context.Context, threadID, counterpartyID int64) (bool, error) {
	if m.hasParticipantFn != nil {
		return m.hasParticipantFn(ctx, threadID, counterpartyID)
	}
	return false, nil
}

func (m *mockThreadStore) ListParticipants(ctx context.Context, threadID int64) ([]int64, error) {
	return nil, nil
}

type mockMessageStore struct {
	setThreadFn func(ctx context.Context, messageID, threadID int64) error

	linkedThreads map[int64]int64
}

func (m *mockMessageStore) CreateOrGet(ctx context.Context, msg *model.Message) (int64, bool, error) {
	return 0, false, nil
}

func (m *mockMessageStore) GetByID(ctx context.Context, id int64) (*model.Message, error) {
	return nil, store.ErrNotFound
}

func (m *mockMessageStore) SetThread(ctx context.Context, messageID, threadID int64) error {
	if m.linkedThreads == nil {
		m.linkedThreads = map[int64]int64{}
	}
	m.linkedThreads[messageID] = threadID
	if m.setThreadFn != nil {
		return m.setThreadFn(ctx, messageID, threadID)
	}
	return nil
}

func (m *mockMessageStore) ListByThread(ctx context.Context, threadID int64, limit int32) ([]model.Message, error) {
	return nil, nil
}

func (m *mockMessageStore) LatestByDirection(ctx context.Context, threadID int64, direction model.Direction) (*time.Time, error) {
	return nil, nil
}

func (m *mockMessageStore) StoreEmbedding(ctx context.Context, messageID int64, embedding []float32) error {
	return nil
}

func (m *mockMessageStore) GetEmbedding(ctx context.Context, messageID int64) ([]float32, error) {
	return nil, store.ErrNotFound
}
