package model

import "time"

// Counterparty is a stable identity for a sender/recipient address.
type Counterparty struct {
	ID            int64     `json:"id"`
	UserID        int64     `json:"user_id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	IsBlacklisted bool      `json:"is_blacklisted"`
	CreatedAt     time.Time `json:"created_at"`
}

// User owns a mailbox and its derived state. OAuth token material is
// stored opaque; the transport layer interprets it.
type User struct {
	ID          int64     `json:"id"`
	Email       string    `json:"email"`
	OAuthToken  []byte    `json:"-"`
	AgentPaused bool      `json:"agent_paused"`
	CreatedAt   time.Time `json:"created_at"`
}
