// Package conversation defines the domain types shared by the turn pipeline,
// the history store, and the tool servers: conversation turns, retrieved
// document snippets, and the history trimming policy.
package conversation

import (
	"context"
	"time"
)

// Role identifies the author of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Turn is a single message within a conversation. Turns are immutable once
// written; ordering by Timestamp (insertion order on ties) is the ground
// truth for recency.
type Turn struct {
	Role      Role      `json:"role" bson:"role"`
	Content   string    `json:"content" bson:"content"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
}

// Snippet is a document fragment returned by retrieval. Snippets are
// transient: they flow through one turn and are never persisted.
type Snippet struct {
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata"`
	Score    float64        `json:"score"`
}

// Summary describes a conversation for listing purposes: its id, the most
// recent turn, and how many turns are stored.
type Summary struct {
	ConversationID string `json:"conversation_id"`
	LatestTurn     Turn   `json:"latest_turn"`
	TurnCount      int64  `json:"turn_count"`
}

// Store is the contract the history tool server implements over its backing
// database. Append enforces the history cap: after a successful append the
// stored sequence never exceeds the configured maximum length.
type Store interface {
	// History returns the stored turns for a conversation in chronological
	// order. An unknown id yields an empty slice, not an error.
	History(ctx context.Context, conversationID string) ([]Turn, error)

	// Append adds turns to the end of a conversation, creating it if needed,
	// then trims the oldest turns down to the cap.
	Append(ctx context.Context, conversationID string, turns ...Turn) error

	// Clear removes all turns for a conversation.
	Clear(ctx context.Context, conversationID string) error

	// Recent lists the most recently active conversations, newest first.
	Recent(ctx context.Context, limit int) ([]Summary, error)
}

// Trim enforces the history cap on an in-memory turn sequence: when the
// sequence is longer than max, the oldest turns are dropped until exactly
// max remain. The unit is a single turn record, so an odd cap may split a
// user/assistant pair; callers accept that asymmetry.
func Trim(turns []Turn, max int) []Turn {
	if max <= 0 || len(turns) <= max {
		return turns
	}
	return turns[len(turns)-max:]
}
