package action_test

import (
	"context"
	"time"

	"threadline.app/agent/common/llm"
	"threadline.app/agent/internal/model"
	"threadline.app/agent/internal/store"
)

type mockProvider struct {
	threads        *mockThreadStore
	messages       *mockMessageStore
	counterparties *mockCounterpartyStore
	proposals      *mockProposalStore
}

func (m *mockProvider) Users() store.UserStore                  { return nil }
func (m *mockProvider) Messages() store.MessageStore            { return m.messages }
func (m *mockProvider) Threads() store.ThreadStore              { return m.threads }
func (m *mockProvider) Counterparties() store.CounterpartyStore { return m.counterparties }
func (m *mockProvider) Proposals() store.ProposalStore          { return m.proposals }
func (m *mockProvider) Cursors() store.CursorStore              { return nil }

type mockThreadStore struct {
	getByIDFn func(ctx context.Context, id int64) (*model.ConversationThread, error)
}

func (m *mockThreadStore) GetByID(ctx context.Context, id int64) (*model.ConversationThread, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, store.ErrNotFound
}

func (m *mockThreadStore) Create(ctx context.Context, thread *model.ConversationThread) error {
	return nil
}

func (m *mockThreadStore) MatchSimilar(ctx context.Context, userID int64, embedding []float32, threshold float64, limit int) ([]model.ThreadMatch, error) {
	return nil, nil
}

func (m *mockThreadStore) UpdateCentroid(ctx context.Context, threadID int64, centroid []float32, expectedCount int64) error {
	return nil
}

func (m *mockThreadStore) SetSummary(ctx context.Context, threadID int64, summary *model.ThreadSummary) error {
	return nil
}

func (m *mockThreadStore) AddParticipant(ctx context.Context, threadID, counterpartyID int64) error {
	return nil
}

func (m *mockThreadStore) HasParticipant(ctx context.Context, threadID, counterpartyID int64) (bool, error) {
	return false, nil
}

func (m *mockThreadStore) ListParticipants(ctx context.Context, threadID int64) ([]int64, error) {
	return nil, nil
}

type mockMessageStore struct {
	listByThreadFn func(ctx context.Context, threadID int64, limit int32) ([]model.Message, error)
	latestFn       func(ctx context.Context, threadID int64, direction model.Direction) (*time.Time, error)
}

func (m *mockMessageStore) CreateOrGet(ctx context.Context, msg *model.Message) (int64, bool, error) {
	return 0, false, nil
}

func (m *mockMessageStore) GetByID(ctx context.Context, id int64) (*model.Message, error) {
	return nil, store.ErrNotFound
}

func (m *mockMessageStore) SetThread(ctx context.Context, messageID, threadID int64) error {
	return nil
}

func (m *mockMessageStore) ListByThread(ctx context.Context, threadID int64, limit int32) ([]model.Message, error) {
	if m.listByThreadFn != nil {
		return m.listByThreadFn(ctx, threadID, limit)
	}
	return nil, nil
}

func (m *mockMessageStore) LatestByDirection(ctx context.Context, threadID int64, direction model.Direction) (*time.Time, error) {
	if m.latestFn != nil {
		return m.latestFn(ctx, threadID, direction)
	}
	return nil, nil
}

func (m *mockMessageStore) StoreEmbedding(ctx context.Context, messageID int64, embedding []float32) error {
	return nil
}

func (m *mockMessageStore) GetEmbedding(ctx context.Context, messageID int64) ([]float32, error) {
	return nil, nil
}

type mockCounterpartyStore struct {
	getByIDFn func(ctx context.Context, id int64) (*model.Counterparty, error)
}

func (m *mockCounterpartyStore) GetByID(ctx context.Context, id int64) (*model.Counterparty, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, store.ErrNotFound
}

func (m *mockCounterpartyStore) Resolve(ctx context.Context, userID int64, email, nameHint string) (int64, error) {
	return 0, nil
}

type mockProposalStore struct {
	listByThreadFn func(ctx context.Context, threadID int64) ([]model.ActionProposal, error)

	created    [][]model.ActionProposal
	superseded []int64
}

func (m *mockProposalStore) CreateBatch(ctx context.Context, proposals []model.ActionProposal) error {
	m.created = append(m.created, proposals)
	return nil
}

func (m *mockProposalStore) SupersedePending(ctx context.Context, threadID int64) error {
	m.superseded = append(m.superseded, threadID)
	return nil
}

func (m *mockProposalStore) ListByThread(ctx context.Context, threadID int64) ([]model.ActionProposal, error) {
	if m.listByThreadFn != nil {
		return m.listByThreadFn(ctx, threadID)
	}
	return nil, nil
}

func (m *mockProposalStore) UpdateStatus(ctx context.Context, id int64, status model.ProposalStatus, snoozedUntil *time.Time) error {
	return nil
}

type mockLLM struct {
	chatFn func(ctx context.Context, req llm.Request, result any) (*llm.Response, error)
}

func (m *mockLLM) Chat(ctx context.Context, req llm.Request, result any) (*llm.Response, error) {
	if m.chatFn != nil {
		return m.chatFn(ctx, req, result)
	}
	return &llm.Response{}, nil
}

func (m *mockLLM) Model() string { return "mock" }
