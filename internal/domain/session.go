package domain

import (
	"time"
)

// ChatSession is the persistence-facing session record. The dialogue state
// travels as an opaque versioned JSON blob; the store never interprets it.
type ChatSession struct {
	ID                string
	UserID            string
	StateJSON         string
	CreatedAt         time.Time
	LastInteractionAt time.Time
}

// IsFresh reports whether the session is still inside the reuse window.
// A session older than the window is never reloaded; a new one is created
// instead.
func (s *ChatSession) IsFresh(window time.Duration, now time.Time) bool {
	return now.Sub(s.LastInteractionAt) <= window
}

// Turn is one appended chat-history record: the user message, the system
// reply and when it happened. The history table is append-only.
type Turn struct {
	SessionID   string
	UserID      string
	UserMessage string
	Reply       string
	CreatedAt   time.Time
}
