package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Read-only projections for the admin surface and the check-in scheduler.
// Nothing here writes to the conversation log.

func (s *Store) CountUsers(ctx context.Context) (int64, error) {
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`)
	var n int64
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

func (s *Store) CountMessages(ctx context.Context) (int64, error) {
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`)
	var n int64
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}

// CountMessagesSince counts all messages at or after sinceMS, any user.
func (s *Store) CountMessagesSince(ctx context.Context, sinceMS int64) (int64, error) {
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE created_at_ms >= ?`, sinceMS)
	var n int64
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("count messages since: %w", err)
	}
	return n, nil
}

// CountUserMessagesSince counts one user's messages at or after sinceMS.
// The day boundary is the caller's concern (it depends on the configured
// timezone).
func (s *Store) CountUserMessagesSince(ctx context.Context, userID int64, sinceMS int64) (int64, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM messages WHERE user_id = ? AND created_at_ms >= ?`, userID, sinceMS)
	var n int64
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("count user messages since: %w", err)
	}
	return n, nil
}

// ListUsers returns users with message counts, most recently active first.
func (s *Store) ListUsers(ctx context.Context, limit int) ([]UserSummary, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT u.id, u.identifier, u.display_name, u.first_seen_ms, u.last_active_ms,
	(SELECT COUNT(*) FROM messages m WHERE m.user_id = u.id) AS message_count
FROM users u
ORDER BY u.last_active_ms DESC
LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	out := make([]UserSummary, 0, limit)
	for rows.Next() {
		var us UserSummary
		var firstMS, activeMS int64
		if err := rows.Scan(&us.ID, &us.Identifier, &us.DisplayName, &firstMS, &activeMS, &us.MessageCount); err != nil {
			return nil, fmt.Errorf("scan user summary: %w", err)
		}
		us.FirstSeen = time.UnixMilli(firstMS)
		us.LastActive = time.UnixMilli(activeMS)
		out = append(out, us)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return out, nil
}

// ActiveUsersSince returns users whose last inbound activity is at or after
// sinceMS. The check-in scheduler uses this to stay inside the provider
// reply window.
func (s *Store) ActiveUsersSince(ctx context.Context, sinceMS int64) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, identifier, display_name, first_seen_ms, last_active_ms
FROM users
WHERE last_active_ms >= ?
ORDER BY last_active_ms DESC`, sinceMS)
	if err != nil {
		return nil, fmt.Errorf("active users: %w", err)
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var u User
		var firstMS, activeMS int64
		if err := rows.Scan(&u.ID, &u.Identifier, &u.DisplayName, &firstMS, &activeMS); err != nil {
			return nil, fmt.Errorf("scan active user: %w", err)
		}
		u.FirstSeen = time.UnixMilli(firstMS)
		u.LastActive = time.UnixMilli(activeMS)
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate active users: %w", err)
	}
	return out, nil
}

// LogWater records detected water intake in milliliters.
func (s *Store) LogWater(ctx context.Context, userID int64, amountML int64, atMS int64) error {
	if atMS == 0 {
		atMS = nowMS()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO water_logs(user_id, amount_ml, logged_at_ms) VALUES(?, ?, ?)`, userID, amountML, atMS)
	if err != nil {
		return fmt.Errorf("log water: %w", err)
	}
	return nil
}

// LogFood records a detected food mention. The meal type is whatever the
// detector inferred from the local hour, breakfast through late_night.
func (s *Store) LogFood(ctx context.Context, userID int64, mealType, description string, atMS int64) error {
	if atMS == 0 {
		atMS = nowMS()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO food_logs(user_id, meal_type, description, logged_at_ms) VALUES(?, ?, ?, ?)`, userID, mealType, description, atMS)
	if err != nil {
		return fmt.Errorf("log food: %w", err)
	}
	return nil
}

// IntakeSince aggregates tracked water and food from sinceMS onward,
// newest food first, capped at 50 entries.
func (s *Store) IntakeSince(ctx context.Context, userID int64, sinceMS int64) (IntakeSummary, error) {
	var out IntakeSummary

	row := s.db.QueryRowContext(ctx, `
SELECT COALESCE(SUM(amount_ml), 0) FROM water_logs WHERE user_id = ? AND logged_at_ms >= ?`, userID, sinceMS)
	if err := row.Scan(&out.WaterML); err != nil {
		return IntakeSummary{}, fmt.Errorf("sum water: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT meal_type, description, logged_at_ms
FROM food_logs
WHERE user_id = ? AND logged_at_ms >= ?
ORDER BY logged_at_ms DESC
LIMIT 50`, userID, sinceMS)
	if err != nil {
		return IntakeSummary{}, fmt.Errorf("list food: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var fe FoodEntry
		var loggedMS int64
		if err := rows.Scan(&fe.MealType, &fe.Description, &loggedMS); err != nil {
			return IntakeSummary{}, fmt.Errorf("scan food entry: %w", err)
		}
		fe.LoggedAt = time.UnixMilli(loggedMS)
		out.Food = append(out.Food, fe)
	}
	if err := rows.Err(); err != nil {
		return IntakeSummary{}, fmt.Errorf("iterate food entries: %w", err)
	}

	count, err := s.CountUserMessagesSince(ctx, userID, sinceMS)
	if err != nil {
		return IntakeSummary{}, err
	}
	out.MessageCount = count
	return out, nil
}

// LastCheckin returns when the user last received a scheduled check-in,
// zero when never.
func (s *Store) LastCheckin(ctx context.Context, userID int64) (time.Time, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT MAX(sent_at_ms) FROM checkins WHERE user_id = ?`, userID)
	var sentMS sql.NullInt64
	if err := row.Scan(&sentMS); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("last checkin: %w", err)
	}
	if !sentMS.Valid || sentMS.Int64 == 0 {
		return time.Time{}, nil
	}
	return time.UnixMilli(sentMS.Int64), nil
}

// RecordCheckin notes that a scheduled check-in went out.
func (s *Store) RecordCheckin(ctx context.Context, userID int64, atMS int64) error {
	if atMS == 0 {
		atMS = nowMS()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO checkins(user_id, sent_at_ms) VALUES(?, ?)
ON CONFLICT(user_id, sent_at_ms) DO NOTHING`, userID, atMS)
	if err != nil {
		return fmt.Errorf("record checkin: %w", err)
	}
	return nil
}
