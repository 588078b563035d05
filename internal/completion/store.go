// Package completion persists prompt completion records. A record's presence
// is a permanent veto on re-displaying its prompt; records carry an expiry
// (the prompt window's end) so storage can reclaim them once the window has
// permanently passed.
package completion

import (
	"context"
	"time"
)

// Record marks a prompt as handled for a user. Written exactly once, never
// mutated afterwards.
type Record struct {
	UserID      string    `json:"userId"`
	PromptID    string    `json:"promptId"`
	CompletedAt time.Time `json:"completedAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// Store is the minimal persistence contract the scheduler needs.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the record for (userID, promptID), or nil when absent.
	Get(ctx context.Context, userID, promptID string) (*Record, error)

	// Set writes a record. Overwriting an existing record with the same keys
	// is allowed and keeps the store idempotent for retried completions.
	Set(ctx context.Context, rec Record) error

	// Delete removes a record. Deleting an absent record is not an error.
	Delete(ctx context.Context, userID, promptID string) error

	// Close releases any resources held by the store.
	Close() error
}
