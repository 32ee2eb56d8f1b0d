package state

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SessionStatus represents the status of a driver session.
type SessionStatus string

const (
	SessionActive      SessionStatus = "active"
	SessionCompleted   SessionStatus = "completed"
	SessionInterrupted SessionStatus = "interrupted"
)

// Session records one driver run. The batch counter lives here so it
// survives process restarts; it resets only on explicit operator action,
// never as a side effect of reopening the store.
type Session struct {
	ID          string        `json:"id"`
	Status      SessionStatus `json:"status"`
	BatchCount  int           `json:"batch_count"`
	BatchBudget int           `json:"batch_budget"`
	StartedAt   time.Time     `json:"started_at"`
	EndedAt     *time.Time    `json:"ended_at"`
}

// StartSession creates a new active session with the given batch budget.
func (db *DB) StartSession(batchBudget int) (*Session, error) {
	s := &Session{
		ID:          uuid.New().String(),
		Status:      SessionActive,
		BatchBudget: batchBudget,
		StartedAt:   time.Now(),
	}

	_, err := db.Exec(`
		INSERT INTO sessions (id, status, batch_count, batch_budget, started_at)
		VALUES (?, ?, 0, ?, ?)
	`, s.ID, string(s.Status), s.BatchBudget, formatTime(s.StartedAt))
	if err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}
	return s, nil
}

// GetSession retrieves a session by ID.
func (db *DB) GetSession(id string) (*Session, error) {
	row := db.QueryRow(`
		SELECT id, status, batch_count, batch_budget, started_at, ended_at
		FROM sessions WHERE id = ?
	`, id)

	s, err := scanSession(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	return s, nil
}

// ActiveSession returns the current active session, or nil if none.
func (db *DB) ActiveSession() (*Session, error) {
	row := db.QueryRow(`
		SELECT id, status, batch_count, batch_budget, started_at, ended_at
		FROM sessions WHERE status = ? ORDER BY started_at DESC LIMIT 1
	`, string(SessionActive))

	s, err := scanSession(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("active session: %w", err)
	}
	return s, nil
}

// ListSessions returns sessions newest first, optionally filtered by
// status. Pass nil to list all.
func (db *DB) ListSessions(status *SessionStatus) ([]Session, error) {
	query := `
		SELECT id, status, batch_count, batch_budget, started_at, ended_at
		FROM sessions
	`
	var args []any
	if status != nil {
		query += ` WHERE status = ?`
		args = append(args, string(*status))
	}
	query += ` ORDER BY started_at DESC`

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		s, err := scanSession(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

// FinishSession closes a session with the given status.
func (db *DB) FinishSession(id string, status SessionStatus) error {
	_, err := db.Exec(`
		UPDATE sessions SET status = ?, ended_at = ? WHERE id = ?
	`, string(status), formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("finish session: %w", err)
	}
	return nil
}

// IncrementBatchCount bumps the session's dispatch counter and returns
// the new count.
func (db *DB) IncrementBatchCount(id string) (int, error) {
	_, err := db.Exec(`
		UPDATE sessions SET batch_count = batch_count + 1 WHERE id = ?
	`, id)
	if err != nil {
		return 0, fmt.Errorf("increment batch count: %w", err)
	}

	var count int
	if err := db.QueryRow(`SELECT batch_count FROM sessions WHERE id = ?`, id).Scan(&count); err != nil {
		return 0, fmt.Errorf("read batch count: %w", err)
	}
	return count, nil
}

// ResetBatchCount zeroes the session's dispatch counter. Only explicit
// operator action reaches this.
func (db *DB) ResetBatchCount(id string) error {
	_, err := db.Exec(`
		UPDATE sessions SET batch_count = 0 WHERE id = ?
	`, id)
	if err != nil {
		return fmt.Errorf("reset batch count: %w", err)
	}
	return nil
}

// PurgeOldSessions deletes finished sessions older than the given
// duration. Returns the number of sessions deleted.
func (db *DB) PurgeOldSessions(olderThan time.Duration) (int64, error) {
	cutoff := formatTime(time.Now().Add(-olderThan))

	result, err := db.Exec(`
		DELETE FROM sessions WHERE status != ? AND started_at < ?
	`, string(SessionActive), cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge old sessions: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return count, nil
}

func scanSession(scan func(...any) error) (*Session, error) {
	var s Session
	var startedAt string
	var endedAt sql.NullString
	if err := scan(&s.ID, &s.Status, &s.BatchCount, &s.BatchBudget, &startedAt, &endedAt); err != nil {
		return nil, err
	}
	s.StartedAt, _ = parseTime(startedAt)
	s.EndedAt = parseNullableTime(endedAt)
	return &s, nil
}
