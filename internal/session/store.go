package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store persists sessions and their messages in Postgres.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore creates a session store backed by the given pool.
func NewStore(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	return &Store{pool: pool, logger: logger}
}

// Create inserts a new session for a profile. An empty title becomes
// DefaultTitle; long titles are truncated.
func (s *Store) Create(ctx context.Context, profileID uuid.UUID, title string) (*Session, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = DefaultTitle
	}
	title = TruncateTitle(title)

	sess := &Session{ID: uuid.New(), ProfileID: profileID, Title: title}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO chat_sessions (id, profile_id, title)
		VALUES ($1, $2, $3)
		RETURNING created_at, updated_at`,
		sess.ID, profileID, title,
	).Scan(&sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	s.logger.Debug("session created", "session_id", sess.ID, "profile_id", profileID)
	return sess, nil
}

// Get returns a session by id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Session, error) {
	sess := &Session{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, profile_id, title, created_at, updated_at
		FROM chat_sessions WHERE id = $1`, id,
	).Scan(&sess.ID, &sess.ProfileID, &sess.Title, &sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

// ListByProfile returns a profile's sessions, most recently updated first.
func (s *Store) ListByProfile(ctx context.Context, profileID uuid.UUID) ([]*Session, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, profile_id, title, created_at, updated_at
		FROM chat_sessions
		WHERE profile_id = $1
		ORDER BY updated_at DESC`, profileID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		sess := &Session{}
		if err := rows.Scan(&sess.ID, &sess.ProfileID, &sess.Title, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// Rename updates a session title and bumps updated_at.
func (s *Store) Rename(ctx context.Context, id uuid.UUID, title string) error {
	title = TruncateTitle(strings.TrimSpace(title))
	if title == "" {
		title = DefaultTitle
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE chat_sessions SET title = $2, updated_at = now() WHERE id = $1`,
		id, title)
	if err != nil {
		return fmt.Errorf("rename session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a session and, via cascade, its messages.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM chat_sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendMessages stores messages at the end of a session's history.
// The session row is locked so concurrent appenders cannot race on
// sequence numbers.
func (s *Store) AppendMessages(ctx context.Context, sessionID uuid.UUID, messages []*ai.Message) error {
	if len(messages) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var exists bool
	err = tx.QueryRow(ctx, `
		SELECT true FROM chat_sessions WHERE id = $1 FOR UPDATE`, sessionID,
	).Scan(&exists)
	if err != nil {
		if err == pgx.ErrNoRows {
			return ErrNotFound
		}
		return fmt.Errorf("lock session: %w", err)
	}

	var next int
	err = tx.QueryRow(ctx, `
		SELECT COALESCE(MAX(sequence_number), 0) + 1
		FROM session_messages WHERE session_id = $1`, sessionID,
	).Scan(&next)
	if err != nil {
		return fmt.Errorf("next sequence: %w", err)
	}

	for i, msg := range messages {
		content, err := json.Marshal(msg.Content)
		if err != nil {
			return fmt.Errorf("marshal message content: %w", err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO session_messages (session_id, role, content, sequence_number)
			VALUES ($1, $2, $3, $4)`,
			sessionID, string(msg.Role), content, next+i)
		if err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
	}

	_, err = tx.Exec(ctx, `UPDATE chat_sessions SET updated_at = now() WHERE id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit append: %w", err)
	}
	return nil
}

// History loads a session's messages in order, ready to replay to the model.
func (s *Store) History(ctx context.Context, sessionID uuid.UUID) ([]*ai.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT role, content
		FROM session_messages
		WHERE session_id = $1
		ORDER BY sequence_number`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	defer rows.Close()

	var history []*ai.Message
	for rows.Next() {
		var role string
		var content []byte
		if err := rows.Scan(&role, &content); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		var parts []*ai.Part
		if err := json.Unmarshal(content, &parts); err != nil {
			return nil, fmt.Errorf("unmarshal message content: %w", err)
		}
		history = append(history, &ai.Message{Role: ai.Role(role), Content: parts})
	}
	return history, rows.Err()
}
