package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glesp/smart-auto-trader/internal/domain"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		last_seen_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chat_sessions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		state_json TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		last_interaction_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chat_sessions_user ON chat_sessions(user_id, last_interaction_at);

	CREATE TABLE IF NOT EXISTS chat_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		user_message TEXT NOT NULL,
		reply TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chat_history_session ON chat_history(session_id, id);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetUser retrieves a user by their user ID.
func (s *SQLiteStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	query := `
		SELECT user_id, username, last_seen_at, created_at, updated_at
		FROM users WHERE user_id = ?`

	row := s.db.QueryRowContext(ctx, query, userID)

	var user domain.User
	var lastSeen, createdAt, updatedAt int64

	err := row.Scan(&user.UserID, &user.Username, &lastSeen, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}

	user.LastSeenAt = time.Unix(lastSeen, 0)
	user.CreatedAt = time.Unix(createdAt, 0)
	user.UpdatedAt = time.Unix(updatedAt, 0)

	return &user, nil
}

// UpsertUser creates or updates a user record.
func (s *SQLiteStore) UpsertUser(ctx context.Context, user *domain.User) error {
	query := `
	INSERT INTO users (user_id, username, last_seen_at, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		username = excluded.username,
		last_seen_at = excluded.last_seen_at,
		updated_at = excluded.updated_at`

	_, err := s.db.ExecContext(ctx, query,
		user.UserID, user.Username,
		user.LastSeenAt.Unix(), user.CreatedAt.Unix(), user.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// UpdateLastSeen updates the last_seen_at timestamp for a user.
func (s *SQLiteStore) UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error {
	query := `UPDATE users SET last_seen_at = ?, updated_at = ? WHERE user_id = ?`
	result, err := s.db.ExecContext(ctx, query, lastSeen.Unix(), time.Now().Unix(), userID)
	if err != nil {
		return fmt.Errorf("update last_seen: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("UpdateLastSeen affected 0 rows", "user_id", userID)
	}

	return nil
}

// GetRecentSession returns the freshest session inside the reuse window.
func (s *SQLiteStore) GetRecentSession(ctx context.Context, userID string, maxAge time.Duration) (*domain.ChatSession, error) {
	threshold := time.Now().Add(-maxAge).Unix()
	query := `
		SELECT id, user_id, state_json, created_at, last_interaction_at
		FROM chat_sessions
		WHERE user_id = ? AND last_interaction_at >= ?
		ORDER BY last_interaction_at DESC
		LIMIT 1`

	row := s.db.QueryRowContext(ctx, query, userID, threshold)

	var session domain.ChatSession
	var createdAt, lastInteraction int64

	err := row.Scan(&session.ID, &session.UserID, &session.StateJSON, &createdAt, &lastInteraction)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}

	session.CreatedAt = time.Unix(createdAt, 0)
	session.LastInteractionAt = time.Unix(lastInteraction, 0)

	return &session, nil
}

// CreateSession inserts a new chat session for the user.
func (s *SQLiteStore) CreateSession(ctx context.Context, userID string, stateJSON string) (*domain.ChatSession, error) {
	now := time.Now()
	session := &domain.ChatSession{
		ID:                uuid.NewString(),
		UserID:            userID,
		StateJSON:         stateJSON,
		CreatedAt:         now,
		LastInteractionAt: now,
	}

	query := `
		INSERT INTO chat_sessions (id, user_id, state_json, created_at, last_interaction_at)
		VALUES (?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		session.ID, session.UserID, session.StateJSON,
		session.CreatedAt.Unix(), session.LastInteractionAt.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return session, nil
}

// UpdateSession writes the state blob with an optimistic check on
// last_interaction_at. Retries on SQLite concurrency errors.
func (s *SQLiteStore) UpdateSession(ctx context.Context, session *domain.ChatSession, expectedLastInteraction time.Time) error {
	query := `
		UPDATE chat_sessions
		SET state_json = ?, last_interaction_at = ?
		WHERE id = ? AND last_interaction_at = ?`

	return withBusyRetry(ctx, "update session", func() error {
		result, err := s.db.ExecContext(ctx, query,
			session.StateJSON, session.LastInteractionAt.Unix(),
			session.ID, expectedLastInteraction.Unix(),
		)
		if err != nil {
			return fmt.Errorf("update session: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("get rows affected: %w", err)
		}
		if rows == 0 {
			return ErrSessionConflict
		}
		return nil
	})
}

// ExpireSession backdates a session so it falls outside any reuse window.
func (s *SQLiteStore) ExpireSession(ctx context.Context, sessionID string) error {
	query := `UPDATE chat_sessions SET last_interaction_at = 0 WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, query, sessionID); err != nil {
		return fmt.Errorf("expire session: %w", err)
	}
	return nil
}

// AppendTurn appends one chat-history record.
func (s *SQLiteStore) AppendTurn(ctx context.Context, turn *domain.Turn) error {
	query := `
		INSERT INTO chat_history (session_id, user_id, user_message, reply, created_at)
		VALUES (?, ?, ?, ?, ?)`

	return withBusyRetry(ctx, "append turn", func() error {
		_, err := s.db.ExecContext(ctx, query,
			turn.SessionID, turn.UserID, turn.UserMessage, turn.Reply, turn.CreatedAt.Unix(),
		)
		if err != nil {
			return fmt.Errorf("append turn: %w", err)
		}
		return nil
	})
}

// SessionTurns returns the last n turns for a session, oldest first.
func (s *SQLiteStore) SessionTurns(ctx context.Context, sessionID string, n int) ([]*domain.Turn, error) {
	query := `
		SELECT session_id, user_id, user_message, reply, created_at
		FROM (
			SELECT id, session_id, user_id, user_message, reply, created_at
			FROM chat_history WHERE session_id = ?
			ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`

	rows, err := s.db.QueryContext(ctx, query, sessionID, n)
	if err != nil {
		return nil, fmt.Errorf("query session turns: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close session turns rows", "error", closeErr)
		}
	}()

	var turns []*domain.Turn
	for rows.Next() {
		var turn domain.Turn
		var createdAt int64
		if err := rows.Scan(&turn.SessionID, &turn.UserID, &turn.UserMessage, &turn.Reply, &createdAt); err != nil {
			return nil, fmt.Errorf("scan turn row: %w", err)
		}
		turn.CreatedAt = time.Unix(createdAt, 0)
		turns = append(turns, &turn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session turns: %w", err)
	}

	return turns, nil
}

// CleanupStaleSessions deletes long-idle sessions and their history.
func (s *SQLiteStore) CleanupStaleSessions(ctx context.Context, olderThan time.Duration) (int64, error) {
	threshold := time.Now().Add(-olderThan).Unix()

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM chat_history WHERE session_id IN
			(SELECT id FROM chat_sessions WHERE last_interaction_at < ?)`, threshold); err != nil {
		return 0, fmt.Errorf("cleanup stale history: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		`DELETE FROM chat_sessions WHERE last_interaction_at < ?`, threshold)
	if err != nil {
		return 0, fmt.Errorf("cleanup stale sessions: %w", err)
	}
	return result.RowsAffected()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// isSQLiteConflict reports whether the error is a SQLITE_BUSY or
// "database is locked" concurrency error that warrants a retry.
func isSQLiteConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// withBusyRetry runs op up to three times with exponential backoff when the
// database is locked by another connection.
func withBusyRetry(ctx context.Context, label string, op func() error) error {
	maxRetries := 3
	baseDelay := 100 * time.Millisecond

	var err error
	for i := 0; i < maxRetries; i++ {
		err = op()
		if err == nil {
			return nil
		}
		if !isSQLiteConflict(err) || i == maxRetries-1 {
			return err
		}
		delay := baseDelay * time.Duration(1<<i)
		slog.Debug("sqlite busy, retrying", "op", label, "attempt", i+1, "delay", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
