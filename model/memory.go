package model

import "time"

// ConversationTurn is a single redacted chat exchange queued for fact
// extraction. The text stored here is always post-guardrails; callers own
// that guarantee.
type ConversationTurn struct {
	ID        int64     `json:"-"`
	TurnID    string    `json:"turn_id"`
	UserID    string    `json:"user_id"`
	SessionID string    `json:"session_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// MemoryFact is a durable fact extracted from a conversation turn.
type MemoryFact struct {
	ID        int64     `json:"-"`
	FactID    string    `json:"fact_id"`
	UserID    string    `json:"user_id"`
	SessionID string    `json:"session_id"`
	Kind      string    `json:"kind"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
