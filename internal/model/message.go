package model

import "time"

type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Message is one normalized unit of communication. Immutable after
// storage except for the thread back-reference, which is set once.
type Message struct {
	ID             int64     `json:"id"`
	UserID         int64     `json:"user_id"`
	CounterpartyID int64     `json:"counterparty_id"`
	ThreadID       *int64    `json:"thread_id,omitempty"`
	Direction      Direction `json:"direction"`

	// UniversalID is provider-qualified and globally unique, e.g.
	// "GMAIL:<Message-Id header>". Primary dedupe key when present.
	UniversalID *string `json:"universal_id,omitempty"`

	// ExternalID is the provider-native message id; secondary dedupe
	// key scoped to the owning user.
	ExternalID       string `json:"external_id"`
	ExternalThreadID string `json:"external_thread_id"`

	From        string    `json:"from"`
	To          []string  `json:"to"`
	Subject     string    `json:"subject"`
	RawText     string    `json:"raw_text"`
	CleanedText string    `json:"cleaned_text"`
	OccurredAt  time.Time `json:"occurred_at"`
	CreatedAt   time.Time `json:"created_at"`
}
