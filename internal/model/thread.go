package model

import "time"

type ThreadState string

const (
	ThreadStateActive      ThreadState = "active"
	ThreadStateNegotiation ThreadState = "negotiation"
	ThreadStateClosing     ThreadState = "closing"
	ThreadStateDormant     ThreadState = "dormant"
)

// ConversationThread is a clustered set of messages sharing a topic.
// MessageCount doubles as the optimistic-concurrency version token for
// centroid updates: the centroid is always the component-wise mean of
// exactly MessageCount message embeddings.
type ConversationThread struct {
	ID           int64       `json:"id"`
	UserID       int64       `json:"user_id"`
	Topic        string      `json:"topic"`
	State        ThreadState `json:"state"`
	Centroid     []float32   `json:"-"`
	MessageCount int64       `json:"message_count"`
	Summary      *ThreadSummary `json:"summary,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	LastUpdated  time.Time   `json:"last_updated"`
}

// ThreadSummary is the structured free-text digest regenerated after
// each threaded message.
type ThreadSummary struct {
	Context      string   `json:"context"`
	CurrentState string   `json:"current_state"`
	NextSteps    []string `json:"next_steps"`
	Risks        []string `json:"risks"`
	LastTouch    string   `json:"last_touch"`
}

// ThreadMatch is one similarity-search candidate returned by the store.
type ThreadMatch struct {
	ThreadID   int64
	Similarity float64
}
