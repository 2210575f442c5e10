// Package history persists session transcripts: one append-only row per
// message, keyed by session ID.
package history

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/atmo-climate/atmo/internal/db"
)

// titleLength caps session titles derived from the first question.
const titleLength = 60

// Store manages persistence of session messages.
type Store struct {
	db *db.DB
}

// NewStore creates a new history store.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// Append adds a message to the end of a session.
func (s *Store) Append(ctx context.Context, sessionID, role, content string) (*Message, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("appending message: empty session id")
	}
	if !ValidRole(role) {
		return nil, fmt.Errorf("appending message: invalid role %q", role)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (session_id, role, content) VALUES (?, ?, ?)`,
		sessionID, role, content,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading message id: %w", err)
	}
	return &Message{ID: id, SessionID: sessionID, Role: role, Content: content, Timestamp: time.Now().UTC()}, nil
}

// Recent returns the last limit user and assistant messages of a session
// in chronological order. Error rows are never returned. A limit of zero
// or less returns nothing.
func (s *Store) Recent(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, role, content, timestamp FROM (
		     SELECT id, session_id, role, content, timestamp FROM messages
		     WHERE session_id = ? AND role IN ('user','assistant')
		     ORDER BY id DESC LIMIT ?
		 ) ORDER BY id ASC`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying recent messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// Messages returns every message of a session, oldest first.
func (s *Store) Messages(ctx context.Context, sessionID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, role, content, timestamp FROM messages
		 WHERE session_id = ? ORDER BY id ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// ListSessions returns a summary per session, most recently active first.
func (s *Store) ListSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT m.session_id,
		        COALESCE((SELECT u.content FROM messages u
		                  WHERE u.session_id = m.session_id AND u.role = 'user'
		                  ORDER BY u.id ASC LIMIT 1), ''),
		        COUNT(*),
		        MAX(m.timestamp)
		 FROM messages m
		 GROUP BY m.session_id
		 ORDER BY MAX(m.id) DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		var sess Session
		var last string
		if err := rows.Scan(&sess.ID, &sess.Title, &sess.MessageCount, &last); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		sess.Title = Title(sess.Title)
		sess.LastActivity = parseTimestamp(last)
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// DeleteSession removes every message of a session and reports how many
// rows were deleted.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("deleting session: %w", err)
	}
	return res.RowsAffected()
}

// Search returns messages whose content contains term, case-insensitively
// for ASCII, newest first.
func (s *Store) Search(ctx context.Context, term string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, role, content, timestamp FROM messages
		 WHERE content LIKE ? ESCAPE '\'
		 ORDER BY id DESC LIMIT ?`,
		"%"+escapeLike(term)+"%", limit,
	)
	if err != nil {
		return nil, fmt.Errorf("searching messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// Prune deletes every session that has no message containing keep. When
// no session matches, nothing is deleted. It returns the number of rows
// removed.
func (s *Store) Prune(ctx context.Context, keep string) (int64, error) {
	pattern := "%" + escapeLike(keep) + "%"

	var matching int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT session_id) FROM messages WHERE content LIKE ? ESCAPE '\'`,
		pattern,
	).Scan(&matching)
	if err != nil {
		return 0, fmt.Errorf("counting sessions to keep: %w", err)
	}
	if matching == 0 {
		return 0, nil
	}

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM messages WHERE session_id NOT IN (
		     SELECT DISTINCT session_id FROM messages WHERE content LIKE ? ESCAPE '\'
		 )`,
		pattern,
	)
	if err != nil {
		return 0, fmt.Errorf("pruning sessions: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanMessages(rows rowScanner) ([]Message, error) {
	msgs := []Message{}
	for rows.Next() {
		var m Message
		var ts string
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &ts); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		m.Timestamp = parseTimestamp(ts)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// Title shortens a first question into a session title.
func Title(question string) string {
	title := strings.Join(strings.Fields(question), " ")
	if title == "" {
		return "New conversation"
	}
	runes := []rune(title)
	if len(runes) > titleLength {
		return string(runes[:titleLength]) + "..."
	}
	return title
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
}

// parseTimestamp parses a timestamp column. The driver hands back either
// SQLite's own text form or an RFC 3339 rendering of a parsed time.
func parseTimestamp(s string) time.Time {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
