// Package resolver picks the next dispatchable task from persisted plan
// state.
package resolver

import (
	"errors"
	"fmt"

	"github.com/gantrylabs/gantry/internal/state"
	"github.com/gantrylabs/gantry/pkg/models"
)

// ErrNoEligibleTask indicates no pending task currently clears its
// dependencies and the session skip set.
var ErrNoEligibleTask = errors.New("no eligible task")

// Resolver orders pending tasks into a deterministic dispatch sequence.
type Resolver struct {
	db *state.DB
}

// New creates a Resolver backed by the given store.
func New(db *state.DB) *Resolver {
	return &Resolver{db: db}
}

// NextEligibleTask returns the next task to dispatch. A task is eligible when
// it is pending, belongs to the phase through story or epic membership, has
// every dependency target complete or skipped, and is not in the skip set.
// An empty phaseID considers every phase.
//
// Eligible tasks order by phase sequence, then story priority, then
// complexity, then task id, so identical persisted state always yields the
// same pick. Returns ErrNoEligibleTask when nothing qualifies.
func (r *Resolver) NextEligibleTask(phaseID string, skip map[string]bool) (*models.Task, error) {
	ids, err := r.pendingInOrder(phaseID)
	if err != nil {
		return nil, err
	}

	for _, id := range ids {
		if skip[id] {
			continue
		}
		unmet, err := r.db.UnmetDependencies(models.ItemRef{Kind: models.KindTask, ID: id})
		if err != nil {
			return nil, fmt.Errorf("checking dependencies for task %s: %w", id, err)
		}
		if len(unmet) > 0 {
			continue
		}
		return r.db.GetTask(id)
	}

	return nil, ErrNoEligibleTask
}

// Blocked pairs a pending task with the dependency targets holding it back.
// A task with no unmet targets was excluded by the session skip set.
type Blocked struct {
	Task  models.Task
	Unmet []models.ItemRef
}

// Report is the result of exhaustion analysis after a resolve came up empty.
type Report struct {
	// Remaining lists the pending tasks of the phase in dispatch order.
	Remaining []Blocked
}

// Exhausted returns true when no pending tasks remain, meaning the phase can
// advance toward its gates. False means work remains but cannot run yet.
func (r *Report) Exhausted() bool {
	return len(r.Remaining) == 0
}

// Exhaustion explains an empty resolve: either the phase has no pending
// tasks left, or the ones left are held back by unmet dependencies or the
// session skip set.
func (r *Resolver) Exhaustion(phaseID string) (*Report, error) {
	ids, err := r.pendingInOrder(phaseID)
	if err != nil {
		return nil, err
	}

	report := &Report{}
	for _, id := range ids {
		task, err := r.db.GetTask(id)
		if err != nil {
			return nil, err
		}
		unmet, err := r.db.UnmetDependencies(models.ItemRef{Kind: models.KindTask, ID: id})
		if err != nil {
			return nil, fmt.Errorf("checking dependencies for task %s: %w", id, err)
		}
		report.Remaining = append(report.Remaining, Blocked{Task: *task, Unmet: unmet})
	}
	return report, nil
}

// pendingInOrder lists pending task ids for the phase in dispatch order.
// Tasks reachable through both a story and an epic membership count once,
// under their earliest phase sequence.
func (r *Resolver) pendingInOrder(phaseID string) ([]string, error) {
	query := `
		SELECT t.id, MIN(p.sequence) AS seq
		FROM tasks t
		JOIN stories s ON s.id = t.story_id
		JOIN phase_items pi ON (pi.item_kind = 'story' AND pi.item_id = t.story_id)
		                    OR (pi.item_kind = 'epic' AND pi.item_id = t.epic_id)
		JOIN phases p ON p.id = pi.phase_id
		WHERE t.status = 'pending'`
	args := []any{}
	if phaseID != "" {
		query += ` AND p.id = ?`
		args = append(args, phaseID)
	}
	query += `
		GROUP BY t.id
		ORDER BY seq ASC,
			CASE s.priority WHEN 'high' THEN 0 WHEN 'medium' THEN 1 ELSE 2 END ASC,
			t.complexity ASC,
			t.id ASC`

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing pending tasks: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		var seq int
		if err := rows.Scan(&id, &seq); err != nil {
			return nil, fmt.Errorf("scanning pending task: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
