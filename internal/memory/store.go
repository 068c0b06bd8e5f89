package memory

import (
	"context"
	"time"
)

// Entry is one conversational turn kept for short-term context.
type Entry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Session is the retained short-term state for one user: a rolling
// window of recent turns plus the last classified intent.
type Session struct {
	Entries    []Entry `json:"entries"`
	LastIntent string  `json:"last_intent,omitempty"`
}

// Store is the short-term session memory with a sliding idle TTL. It
// is a cache, not a record; losing it only costs conversational
// context, never plan state.
type Store interface {
	// Get returns the live session and true, or a zero session and
	// false when none exists or the idle TTL has lapsed.
	Get(ctx context.Context, userID string) (Session, bool, error)
	// Append records one turn, trims the window to the entry cap, and
	// updates last_intent when lastIntent is non-empty.
	Append(ctx context.Context, userID string, entry Entry, lastIntent string) error
	Clear(ctx context.Context, userID string) error
}

const (
	DefaultMaxEntries = 8
	DefaultTTL        = 30 * time.Minute
)
