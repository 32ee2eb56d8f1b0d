package state

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/gantrylabs/gantry/pkg/models"
)

// Outcome is a terminal result applied to a task. Status must be
// complete or skipped; SkipReason is recorded only for skips.
type Outcome struct {
	Status     models.Status
	SkipReason string
}

// CompleteOutcome returns the outcome for a successfully finished task.
func CompleteOutcome() Outcome {
	return Outcome{Status: models.StatusComplete}
}

// SkipOutcome returns the outcome for a deliberately skipped task.
func SkipOutcome(reason string) Outcome {
	return Outcome{Status: models.StatusSkipped, SkipReason: reason}
}

// CascadeResult reports what a terminal task outcome rolled up to.
type CascadeResult struct {
	// Applied is false when the task was already terminal and the call
	// was a no-op.
	Applied bool
	// Task is the task's state after the call.
	Task models.Task
	// StoryCompleted is the story that became complete, if any.
	StoryCompleted string
	// EpicCompleted is the epic that became complete, if any.
	EpicCompleted string
}

// ApplyTaskResult records a terminal outcome for a task and cascades
// completion upward: when the last task of a story turns terminal the
// story becomes complete, and when the last story of an epic does, the
// epic follows. The whole cascade runs in one transaction.
//
// This is the only code path that writes story or epic status. Applying
// an outcome to an already-terminal task is a no-op, so crash-retry
// loops are harmless, and roll-up statuses never regress.
func (db *DB) ApplyTaskResult(taskID string, outcome Outcome) (*CascadeResult, error) {
	if outcome.Status != models.StatusComplete && outcome.Status != models.StatusSkipped {
		return nil, fmt.Errorf("outcome status must be complete or skipped, got %q", outcome.Status)
	}

	var result CascadeResult
	err := db.Transaction(func(tx *sql.Tx) error {
		row := tx.QueryRow(`
			SELECT id, story_id, epic_id, title, acceptance_criteria, complexity, status, skip_reason, created_at, updated_at, completed_at
			FROM tasks WHERE id = ?
		`, taskID)
		t, err := scanTask(row.Scan)
		if err == sql.ErrNoRows {
			return fmt.Errorf("task %s: %w", taskID, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("load task %s: %w", taskID, err)
		}

		if t.Status.Terminal() {
			result.Task = *t
			return nil
		}

		now := time.Now()
		nowStr := formatTime(now)
		var skipReason any
		if outcome.Status == models.StatusSkipped {
			skipReason = outcome.SkipReason
		}
		if _, err := tx.Exec(`
			UPDATE tasks SET status = ?, skip_reason = ?, updated_at = ?, completed_at = ?
			WHERE id = ?
		`, string(outcome.Status), skipReason, nowStr, nowStr, taskID); err != nil {
			return fmt.Errorf("finalize task %s: %w", taskID, err)
		}

		result.Applied = true
		t.Status = outcome.Status
		t.SkipReason = outcome.SkipReason
		t.UpdatedAt = now
		t.CompletedAt = &now
		result.Task = *t

		storyDone, err := storyTasksAllTerminal(tx, t.StoryID)
		if err != nil {
			return err
		}
		if !storyDone {
			return nil
		}

		var storyStatus string
		if err := tx.QueryRow(`SELECT status FROM stories WHERE id = ?`, t.StoryID).Scan(&storyStatus); err != nil {
			return fmt.Errorf("load story %s: %w", t.StoryID, err)
		}
		if models.Status(storyStatus).Terminal() {
			return nil
		}

		if _, err := tx.Exec(`
			UPDATE stories SET status = ?, updated_at = ? WHERE id = ?
		`, string(models.StatusComplete), nowStr, t.StoryID); err != nil {
			return fmt.Errorf("complete story %s: %w", t.StoryID, err)
		}
		result.StoryCompleted = t.StoryID

		epicDone, err := epicStoriesAllTerminal(tx, t.EpicID)
		if err != nil {
			return err
		}
		if !epicDone {
			return nil
		}

		var epicStatus string
		if err := tx.QueryRow(`SELECT status FROM epics WHERE id = ?`, t.EpicID).Scan(&epicStatus); err != nil {
			return fmt.Errorf("load epic %s: %w", t.EpicID, err)
		}
		if models.Status(epicStatus).Terminal() {
			return nil
		}

		if _, err := tx.Exec(`
			UPDATE epics SET status = ?, updated_at = ? WHERE id = ?
		`, string(models.StatusComplete), nowStr, t.EpicID); err != nil {
			return fmt.Errorf("complete epic %s: %w", t.EpicID, err)
		}
		result.EpicCompleted = t.EpicID
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// storyTasksAllTerminal reports whether the story has at least one task
// and every one of them is terminal. Zero-task stories never count as
// done; they'd otherwise complete the moment they were created.
func storyTasksAllTerminal(tx *sql.Tx, storyID string) (bool, error) {
	var total, terminal int
	err := tx.QueryRow(`
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN status IN ('complete', 'skipped') THEN 1 ELSE 0 END), 0)
		FROM tasks WHERE story_id = ?
	`, storyID).Scan(&total, &terminal)
	if err != nil {
		return false, fmt.Errorf("count story tasks: %w", err)
	}
	return total > 0 && terminal == total, nil
}

// epicStoriesAllTerminal reports whether every story of the epic is
// terminal. Mirrors the story rule, including the non-empty guard.
func epicStoriesAllTerminal(tx *sql.Tx, epicID string) (bool, error) {
	var total, terminal int
	err := tx.QueryRow(`
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN status IN ('complete', 'skipped') THEN 1 ELSE 0 END), 0)
		FROM stories WHERE epic_id = ?
	`, epicID).Scan(&total, &terminal)
	if err != nil {
		return false, fmt.Errorf("count epic stories: %w", err)
	}
	return total > 0 && terminal == total, nil
}
