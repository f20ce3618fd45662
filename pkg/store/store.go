// DietBuddy - WhatsApp diet coaching agent
// License: MIT
// Copyright (c) 2026 DietBuddy contributors

// Package store is the durable conversation log. Messages are append-only:
// rows are never updated or deleted once committed, so a recent-N read is
// stable except for new appends at the tail.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Store owns the users, messages and dedup_records tables plus the
// intake-tracking extras. All other packages go through it.
type Store struct {
	db *sql.DB
}

// New creates/opens the database at path.
func New(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// Single-process service. One shared connection avoids writer lock
	// contention with SQLite under concurrent goroutines, and makes rowid
	// assignment strictly increasing, which is what per-user message
	// ordering relies on.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) init() error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA synchronous=NORMAL;`,
		`PRAGMA temp_store=MEMORY;`,
		`PRAGMA busy_timeout=5000;`,
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			identifier TEXT NOT NULL UNIQUE,
			display_name TEXT NOT NULL DEFAULT '',
			first_seen_ms INTEGER NOT NULL,
			last_active_ms INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			event_id TEXT,
			created_at_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS messages_user_idx ON messages(user_id, id DESC);`,
		`CREATE TABLE IF NOT EXISTS dedup_records (
			user_id INTEGER NOT NULL,
			event_id TEXT NOT NULL,
			seen_at_ms INTEGER NOT NULL,
			PRIMARY KEY(user_id, event_id)
		);`,
		`CREATE INDEX IF NOT EXISTS dedup_records_age_idx ON dedup_records(seen_at_ms);`,
		`CREATE TABLE IF NOT EXISTS food_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			meal_type TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL,
			logged_at_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS food_logs_user_idx ON food_logs(user_id, logged_at_ms DESC);`,
		`CREATE TABLE IF NOT EXISTS water_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			amount_ml INTEGER NOT NULL,
			logged_at_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS water_logs_user_idx ON water_logs(user_id, logged_at_ms DESC);`,
		`CREATE TABLE IF NOT EXISTS checkins (
			user_id INTEGER NOT NULL,
			sent_at_ms INTEGER NOT NULL,
			PRIMARY KEY(user_id, sent_at_ms)
		);`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init sqlite schema failed on %q: %w", trimSQL(stmt), err)
		}
	}
	return nil
}

func trimSQL(sql string) string {
	line := strings.TrimSpace(sql)
	if len(line) > 96 {
		return line[:96] + "..."
	}
	return line
}

func nowMS() int64 { return time.Now().UnixMilli() }

// EnsureUser creates the user on first contact and bumps last-active on
// every later one. A non-empty display name refreshes the stored one.
func (s *Store) EnsureUser(ctx context.Context, identifier, displayName string) (User, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return User{}, fmt.Errorf("ensure user: empty identifier")
	}

	now := nowMS()
	_, err := s.db.ExecContext(ctx, `
INSERT INTO users(identifier, display_name, first_seen_ms, last_active_ms)
VALUES(?, ?, ?, ?)
ON CONFLICT(identifier) DO UPDATE SET
	last_active_ms = excluded.last_active_ms,
	display_name = CASE WHEN excluded.display_name <> '' THEN excluded.display_name ELSE users.display_name END`,
		identifier, strings.TrimSpace(displayName), now, now)
	if err != nil {
		return User{}, fmt.Errorf("ensure user: %w", err)
	}

	return s.userByIdentifier(ctx, identifier)
}

// GetUser returns sql.ErrNoRows untouched for unknown identifiers so
// callers can distinguish "new user" from a store fault.
func (s *Store) GetUser(ctx context.Context, identifier string) (User, error) {
	return s.userByIdentifier(ctx, identifier)
}

func (s *Store) userByIdentifier(ctx context.Context, identifier string) (User, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, identifier, display_name, first_seen_ms, last_active_ms
FROM users WHERE identifier = ?`, identifier)
	return scanUser(row)
}

func scanUser(row *sql.Row) (User, error) {
	var u User
	var firstMS, activeMS int64
	if err := row.Scan(&u.ID, &u.Identifier, &u.DisplayName, &firstMS, &activeMS); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, sql.ErrNoRows
		}
		return User{}, fmt.Errorf("get user: %w", err)
	}
	u.FirstSeen = time.UnixMilli(firstMS)
	u.LastActive = time.UnixMilli(activeMS)
	return u, nil
}

// AppendMessage writes one immutable record. The returned message carries
// the server-assigned id, which is the per-user ordering key.
func (s *Store) AppendMessage(ctx context.Context, userID int64, role, content, eventID string) (Message, error) {
	if userID <= 0 {
		return Message{}, fmt.Errorf("append message: invalid user id %d", userID)
	}
	if role != RoleUser && role != RoleAssistant {
		return Message{}, fmt.Errorf("append message: unknown role %q", role)
	}

	created := nowMS()
	res, err := s.db.ExecContext(ctx, `
INSERT INTO messages(user_id, role, content, event_id, created_at_ms)
VALUES(?, ?, ?, NULLIF(?, ''), ?)`, userID, role, content, eventID, created)
	if err != nil {
		return Message{}, fmt.Errorf("append message insert: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Message{}, fmt.Errorf("append message id: %w", err)
	}

	return Message{
		ID:        id,
		UserID:    userID,
		Role:      role,
		Content:   content,
		EventID:   eventID,
		CreatedAt: time.UnixMilli(created),
	}, nil
}

// RecentMessages returns up to limit most recent messages for the user,
// oldest first. A message appended earlier in the same cycle is included
// (same connection, so the read observes the write). Unknown users get an
// empty slice, not an error.
func (s *Store) RecentMessages(ctx context.Context, userID int64, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 1
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, user_id, role, content, COALESCE(event_id, ''), created_at_ms
FROM messages
WHERE user_id = ?
ORDER BY id DESC
LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	defer rows.Close()

	out := make([]Message, 0, limit)
	for rows.Next() {
		var m Message
		var createdMS int64
		if err := rows.Scan(&m.ID, &m.UserID, &m.Role, &m.Content, &m.EventID, &createdMS); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.CreatedAt = time.UnixMilli(createdMS)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// SeenEvent reports whether a processed-event record exists.
func (s *Store) SeenEvent(ctx context.Context, userID int64, eventID string) (bool, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT 1 FROM dedup_records WHERE user_id = ? AND event_id = ?`, userID, eventID)
	var one int
	if err := row.Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("seen event: %w", err)
	}
	return true, nil
}

// MarkEvent records an event id as processed. Idempotent.
func (s *Store) MarkEvent(ctx context.Context, userID int64, eventID string, seenAtMS int64) error {
	if seenAtMS == 0 {
		seenAtMS = nowMS()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO dedup_records(user_id, event_id, seen_at_ms)
VALUES(?, ?, ?)
ON CONFLICT(user_id, event_id) DO NOTHING`, userID, eventID, seenAtMS)
	if err != nil {
		return fmt.Errorf("mark event: %w", err)
	}
	return nil
}

// PurgeEventsBefore removes dedup records older than the cutoff. Advisory
// housekeeping only; correctness does not depend on it.
func (s *Store) PurgeEventsBefore(ctx context.Context, cutoffMS int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM dedup_records WHERE seen_at_ms < ?`, cutoffMS)
	if err != nil {
		return 0, fmt.Errorf("purge dedup records: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge dedup records count: %w", err)
	}
	return n, nil
}
