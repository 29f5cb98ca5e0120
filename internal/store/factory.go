package store

import (
	"threadline.app/agent/core/db"
)

// Provider exposes the typed stores. Services depend on this interface
// so tests can substitute mocks per store.
type Provider interface {
	Users() UserStore
	Messages() MessageStore
	Threads() ThreadStore
	Counterparties() CounterpartyStore
	Proposals() ProposalStore
	Cursors() CursorStore
}

// Stores provides typed accessors bound to a single Querier, which may
// be the pool or an open transaction.
type Stores struct {
	q db.Querier
}

var _ Provider = (*Stores)(nil)

func NewStores(q db.Querier) *Stores {
	return &Stores{q: q}
}

func (s *Stores) Users() UserStore {
	return &userStore{q: s.q}
}

func (s *Stores) Messages() MessageStore {
	return &messageStore{q: s.q}
}

func (s *Stores) Threads() ThreadStore {
	return &threadStore{q: s.q}
}

func (s *Stores) Counterparties() CounterpartyStore {
	return &counterpartyStore{q: s.q}
}

func (s *Stores) Proposals() ProposalStore {
	return &proposalStore{q: s.q}
}

func (s *Stores) Cursors() CursorStore {
	return &cursorStore{q: s.q}
}
