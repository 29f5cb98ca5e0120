package action

import (
	"context"
	"errors"
	"fmt"
	"time"

	"threadline.app/agent/core/config"
	"threadline.app/agent/internal/model"
	"threadline.app/agent/internal/store"
)

// ConversationContext is the read-only snapshot the generators and the
// fact extractor work from. Assembled once per proposal run; nothing
// downstream touches storage.
type ConversationContext struct {
	Thread       *model.ConversationThread
	Messages     []model.Message // oldest first
	Counterparty *model.Counterparty

	// LastInbound and LastOutbound are the most recent message times in
	// each direction, nil when that direction has no messages yet.
	LastInbound  *time.Time
	LastOutbound *time.Time

	Now time.Time
}

// Latest returns the newest message in the window, or nil for an empty
// thread.
func (c *ConversationContext) Latest() *model.Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return &c.Messages[len(c.Messages)-1]
}

// DaysIgnored counts whole days the counterparty has been waiting on a
// reply: the age of the newest inbound message that postdates our last
// outbound one. Zero when we spoke last or the thread is empty.
func (c *ConversationContext) DaysIgnored() int {
	if c.LastInbound == nil {
		return 0
	}
	if c.LastOutbound != nil && !c.LastOutbound.Before(*c.LastInbound) {
		return 0
	}
	days := int(c.Now.Sub(*c.LastInbound).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// ContextBuilder assembles conversation contexts from storage.
type ContextBuilder struct {
	cfg    config.IngestConfig
	stores store.Provider
}

func NewContextBuilder(cfg config.IngestConfig, stores store.Provider) *ContextBuilder {
	return &ContextBuilder{cfg: cfg, stores: stores}
}

// Build loads the thread, its recent messages, and the counterparty of
// the newest inbound message.
func (b *ContextBuilder) Build(ctx context.Context, threadID int64) (*ConversationContext, error) {
	thread, err := b.stores.Threads().GetByID(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("load thread: %w", err)
	}

	recent, err := b.stores.Messages().ListByThread(ctx, threadID, int32(b.cfg.SummaryWindow))
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	// store order is newest first
	messages := make([]model.Message, len(recent))
	for i := range recent {
		messages[len(recent)-1-i] = recent[i]
	}

	lastIn, err := b.stores.Messages().LatestByDirection(ctx, threadID, model.DirectionInbound)
	if err != nil {
		return nil, fmt.Errorf("latest inbound: %w", err)
	}
	lastOut, err := b.stores.Messages().LatestByDirection(ctx, threadID, model.DirectionOutbound)
	if err != nil {
		return nil, fmt.Errorf("latest outbound: %w", err)
	}

	cc := &ConversationContext{
		Thread:       thread,
		Messages:     messages,
		LastInbound:  lastIn,
		LastOutbound: lastOut,
		Now:          time.Now().UTC(),
	}

	if cp := newestInboundCounterparty(messages); cp != 0 {
		counterparty, err := b.stores.Counterparties().GetByID(ctx, cp)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("load counterparty: %w", err)
		}
		cc.Counterparty = counterparty
	}

	return cc, nil
}

func newestInboundCounterparty(messages []model.Message) int64 {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Direction == model.DirectionInbound {
			return messages[i].CounterpartyID
		}
	}
	return 0
}
