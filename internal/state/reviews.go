package state

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gantrylabs/gantry/pkg/models"
)

// GateReview is one recorded execution of a story or phase gate. Fail
// verdicts accumulate here; only a pass flips the target's gate flag.
type GateReview struct {
	ID        string               `json:"id"`
	Scope     models.GateScope     `json:"scope"`
	TargetID  string               `json:"target_id"`
	Verdict   models.ReviewVerdict `json:"verdict"`
	Notes     string               `json:"notes"`
	CreatedAt time.Time            `json:"created_at"`
}

// RecordGateOutcome writes a review row and, on a pass verdict, sets the
// target's gate flag in the same transaction. The flag is set once and
// never cleared by any gantry code path. Returns the review ID.
func (db *DB) RecordGateOutcome(scope models.GateScope, targetID string, verdict models.ReviewVerdict, notes string) (string, error) {
	if !scope.Valid() {
		return "", fmt.Errorf("unknown gate scope %q", scope)
	}
	if !verdict.Valid() {
		return "", fmt.Errorf("unknown review verdict %q", verdict)
	}

	reviewID := uuid.New().String()
	err := db.Transaction(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`
			INSERT INTO gate_reviews (id, scope, target_id, verdict, notes, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, reviewID, string(scope), targetID, string(verdict), notes, formatTime(time.Now())); err != nil {
			return fmt.Errorf("record gate review: %w", err)
		}

		if verdict != models.ReviewPass {
			return nil
		}

		var res sql.Result
		var err error
		switch scope {
		case models.GateStory:
			res, err = tx.Exec(`UPDATE stories SET gate_passed = 1, updated_at = ? WHERE id = ?`, formatTime(time.Now()), targetID)
		case models.GatePhase:
			res, err = tx.Exec(`UPDATE phases SET gate_passed = 1 WHERE id = ?`, targetID)
		}
		if err != nil {
			return fmt.Errorf("set %s gate flag: %w", scope, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("%s %s: %w", scope, targetID, ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return reviewID, nil
}

// ListGateReviews lists the review history for a target, newest first.
func (db *DB) ListGateReviews(scope models.GateScope, targetID string) ([]GateReview, error) {
	rows, err := db.Query(`
		SELECT id, scope, target_id, verdict, notes, created_at
		FROM gate_reviews
		WHERE scope = ? AND target_id = ?
		ORDER BY created_at DESC, id
	`, string(scope), targetID)
	if err != nil {
		return nil, fmt.Errorf("list gate reviews: %w", err)
	}
	defer rows.Close()

	var reviews []GateReview
	for rows.Next() {
		var r GateReview
		var notes sql.NullString
		var createdAt string
		if err := rows.Scan(&r.ID, &r.Scope, &r.TargetID, &r.Verdict, &notes, &createdAt); err != nil {
			return nil, fmt.Errorf("scan gate review: %w", err)
		}
		if notes.Valid {
			r.Notes = notes.String
		}
		r.CreatedAt, _ = parseTime(createdAt)
		reviews = append(reviews, r)
	}
	return reviews, rows.Err()
}
