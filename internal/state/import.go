package state

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/gantrylabs/gantry/pkg/models"
)

// ErrStoreNotEmpty is returned when a plan import targets a store that
// already holds work items.
var ErrStoreNotEmpty = errors.New("store already contains a plan")

// PlanImport bundles every row a plan file expands to. Callers are
// expected to have validated the plan first; the import relies on the
// schema's constraints only as a backstop.
type PlanImport struct {
	Epics   []models.Epic
	Stories []models.Story
	Tasks   []models.Task
	Phases  []models.Phase
	Items   []models.PhaseItem
	Deps    []models.Dependency
}

// ImportPlan writes a validated plan into an empty store in a single
// transaction. Either the whole plan lands or none of it does.
func (db *DB) ImportPlan(imp PlanImport) error {
	return db.Transaction(func(tx *sql.Tx) error {
		var existing int
		if err := tx.QueryRow(`SELECT COUNT(*) FROM epics`).Scan(&existing); err != nil {
			return fmt.Errorf("check store: %w", err)
		}
		if existing > 0 {
			return ErrStoreNotEmpty
		}

		now := formatTime(time.Now())

		for _, e := range imp.Epics {
			if _, err := tx.Exec(`
				INSERT INTO epics (id, title, description, priority, status, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`, e.ID, e.Title, e.Description, string(e.Priority), string(models.StatusPending), now, now); err != nil {
				return fmt.Errorf("import epic %s: %w", e.ID, err)
			}
		}

		for _, s := range imp.Stories {
			if _, err := tx.Exec(`
				INSERT INTO stories (id, epic_id, title, description, priority, status, gate_passed, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)
			`, s.ID, s.EpicID, s.Title, s.Description, string(s.Priority), string(models.StatusPending), now, now); err != nil {
				return fmt.Errorf("import story %s: %w", s.ID, err)
			}
		}

		for _, t := range imp.Tasks {
			complexity := t.Complexity
			if complexity <= 0 {
				complexity = 1
			}
			if _, err := tx.Exec(`
				INSERT INTO tasks (id, story_id, epic_id, title, acceptance_criteria, complexity, status, skip_reason, created_at, updated_at, completed_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, NULL, ?, ?, NULL)
			`, t.ID, t.StoryID, t.EpicID, t.Title, t.AcceptanceCriteria, complexity, string(models.StatusPending), now, now); err != nil {
				return fmt.Errorf("import task %s: %w", t.ID, err)
			}
		}

		for _, p := range imp.Phases {
			if _, err := tx.Exec(`
				INSERT INTO phases (id, sequence, name, entry_criteria, exit_criteria, estimated_duration, gate_passed, created_at)
				VALUES (?, ?, ?, ?, ?, ?, 0, ?)
			`, p.ID, p.Sequence, p.Name, p.EntryCriteria, p.ExitCriteria, p.EstimatedDuration, now); err != nil {
				return fmt.Errorf("import phase %s: %w", p.ID, err)
			}
		}

		for _, item := range imp.Items {
			if _, err := tx.Exec(`
				INSERT INTO phase_items (phase_id, item_kind, item_id)
				VALUES (?, ?, ?)
			`, item.PhaseID, string(item.Item.Kind), item.Item.ID); err != nil {
				return fmt.Errorf("import phase item %s into %s: %w", item.Item, item.PhaseID, err)
			}
		}

		for _, d := range imp.Deps {
			if _, err := tx.Exec(`
				INSERT INTO dependencies (item_kind, item_id, target_kind, target_id)
				VALUES (?, ?, ?, ?)
			`, string(d.Item.Kind), d.Item.ID, string(d.DependsOn.Kind), d.DependsOn.ID); err != nil {
				return fmt.Errorf("import dependency %s -> %s: %w", d.Item, d.DependsOn, err)
			}
		}

		return nil
	})
}
