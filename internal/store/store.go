// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/glesp/smart-auto-trader/internal/domain"
)

// ErrSessionConflict is returned by UpdateSession when the optimistic
// last-interaction check fails, meaning another writer updated the session
// between read and write.
var ErrSessionConflict = errors.New("session modified concurrently")

// Repository defines the interface for persisting users, chat sessions and
// the append-only chat history.
type Repository interface {
	// GetUser retrieves a user by id. Returns (nil, nil) when absent.
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// UpsertUser creates or updates a user record.
	UpsertUser(ctx context.Context, user *domain.User) error

	// UpdateLastSeen updates the last_seen_at timestamp for a user.
	UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error

	// GetRecentSession returns the user's most recent chat session whose
	// last interaction is within maxAge, or (nil, nil) when no fresh
	// session exists. Stale sessions are never returned.
	GetRecentSession(ctx context.Context, userID string, maxAge time.Duration) (*domain.ChatSession, error)

	// CreateSession inserts a new empty chat session for the user.
	CreateSession(ctx context.Context, userID string, stateJSON string) (*domain.ChatSession, error)

	// UpdateSession writes the session's state blob and bumps its last
	// interaction time. The write only succeeds if the stored
	// last_interaction_at still equals expectedLastInteraction; otherwise
	// ErrSessionConflict is returned.
	UpdateSession(ctx context.Context, session *domain.ChatSession, expectedLastInteraction time.Time) error

	// ExpireSession pushes a session out of the freshness window so the
	// next message starts a new one.
	ExpireSession(ctx context.Context, sessionID string) error

	// AppendTurn appends one chat-history record.
	AppendTurn(ctx context.Context, turn *domain.Turn) error

	// SessionTurns returns the most recent n turns for a session, oldest
	// first.
	SessionTurns(ctx context.Context, sessionID string, n int) ([]*domain.Turn, error)

	// CleanupStaleSessions deletes sessions idle for longer than olderThan
	// together with their history, returning the number of sessions removed.
	CleanupStaleSessions(ctx context.Context, olderThan time.Duration) (int64, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
