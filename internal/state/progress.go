package state

import (
	"fmt"

	"github.com/gantrylabs/gantry/pkg/models"
)

// TaskCounts aggregates task statuses for a phase or story.
type TaskCounts struct {
	Pending    int `json:"pending"`
	InProgress int `json:"in_progress"`
	Complete   int `json:"complete"`
	Skipped    int `json:"skipped"`
}

// Total returns the number of counted tasks.
func (c TaskCounts) Total() int {
	return c.Pending + c.InProgress + c.Complete + c.Skipped
}

// Terminal returns the number of tasks in a terminal status.
func (c TaskCounts) Terminal() int {
	return c.Complete + c.Skipped
}

// Started reports whether any counted task has left pending.
func (c TaskCounts) Started() bool {
	return c.InProgress+c.Complete+c.Skipped > 0
}

// PhaseProgress is the status roll-up for one phase.
type PhaseProgress struct {
	Phase           models.Phase `json:"phase"`
	Tasks           TaskCounts   `json:"tasks"`
	StoriesTotal    int          `json:"stories_total"`
	StoriesComplete int          `json:"stories_complete"`
	GatesPending    int          `json:"gates_pending"`
}

// Status derives the phase's lifecycle position from the roll-up. An
// in_progress member task keeps the phase in progress, so orphans need
// no separate input here.
func (p PhaseProgress) Status() models.PhaseStatus {
	allStoriesComplete := p.StoriesComplete == p.StoriesTotal
	allTasksTerminal := p.Tasks.Terminal() == p.Tasks.Total()

	switch {
	case p.Phase.GatePassed && allStoriesComplete:
		return models.PhaseComplete
	case allStoriesComplete && p.GatesPending == 0:
		return models.PhaseGatePending
	case p.Tasks.Total() > 0 && !p.Tasks.Started():
		return models.PhaseNotStarted
	case allTasksTerminal && p.GatesPending > 0:
		return models.PhaseTestsWritten
	default:
		return models.PhaseInProgress
	}
}

// EpicProgress is the status roll-up for one epic.
type EpicProgress struct {
	Epic            models.Epic `json:"epic"`
	StoriesTotal    int         `json:"stories_total"`
	StoriesTerminal int         `json:"stories_terminal"`
	TasksTotal      int         `json:"tasks_total"`
	TasksTerminal   int         `json:"tasks_terminal"`
}

// PhaseTaskCounts aggregates the statuses of a phase's member tasks.
func (db *DB) PhaseTaskCounts(phaseID string) (TaskCounts, error) {
	var c TaskCounts
	err := db.QueryRow(`
		SELECT
			COALESCE(SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'in_progress' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'complete' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'skipped' THEN 1 ELSE 0 END), 0)
		FROM tasks
		WHERE story_id IN (SELECT item_id FROM phase_items WHERE phase_id = ? AND item_kind = 'story')
		   OR epic_id IN (SELECT item_id FROM phase_items WHERE phase_id = ? AND item_kind = 'epic')
	`, phaseID, phaseID).Scan(&c.Pending, &c.InProgress, &c.Complete, &c.Skipped)
	if err != nil {
		return TaskCounts{}, fmt.Errorf("phase task counts: %w", err)
	}
	return c, nil
}

// PendingStoryGates lists a phase's member stories that are complete but
// whose review gate has not passed.
func (db *DB) PendingStoryGates(phaseID string) ([]models.Story, error) {
	rows, err := db.Query(`
		SELECT id, epic_id, title, description, priority, status, gate_passed, created_at, updated_at
		FROM stories
		WHERE (id IN (SELECT item_id FROM phase_items WHERE phase_id = ? AND item_kind = 'story')
		   OR epic_id IN (SELECT item_id FROM phase_items WHERE phase_id = ? AND item_kind = 'epic'))
		  AND status = 'complete' AND gate_passed = 0
		ORDER BY id
	`, phaseID, phaseID)
	if err != nil {
		return nil, fmt.Errorf("pending story gates: %w", err)
	}
	defer rows.Close()

	return scanStories(rows)
}

// OrphanedTasks lists every task stuck in_progress. At session start
// these are leftovers from an interrupted run.
func (db *DB) OrphanedTasks() ([]models.Task, error) {
	status := models.StatusInProgress
	return db.ListTasks(&status)
}

// ListPhaseProgress returns the per-phase roll-up for every phase in
// sequence order.
func (db *DB) ListPhaseProgress() ([]PhaseProgress, error) {
	phases, err := db.ListPhases()
	if err != nil {
		return nil, err
	}

	var out []PhaseProgress
	for _, p := range phases {
		counts, err := db.PhaseTaskCounts(p.ID)
		if err != nil {
			return nil, err
		}
		stories, err := db.PhaseStories(p.ID)
		if err != nil {
			return nil, err
		}

		prog := PhaseProgress{Phase: p, Tasks: counts, StoriesTotal: len(stories)}
		for _, s := range stories {
			if s.Status == models.StatusComplete {
				prog.StoriesComplete++
				if !s.GatePassed {
					prog.GatesPending++
				}
			}
		}
		out = append(out, prog)
	}
	return out, nil
}

// ListEpicProgress returns per-epic story and task roll-ups.
func (db *DB) ListEpicProgress() ([]EpicProgress, error) {
	rows, err := db.Query(`
		WITH story_counts AS (
			SELECT epic_id,
				COUNT(*) AS total,
				SUM(CASE WHEN status IN ('complete', 'skipped') THEN 1 ELSE 0 END) AS terminal
			FROM stories GROUP BY epic_id
		), task_counts AS (
			SELECT epic_id,
				COUNT(*) AS total,
				SUM(CASE WHEN status IN ('complete', 'skipped') THEN 1 ELSE 0 END) AS terminal
			FROM tasks GROUP BY epic_id
		)
		SELECT e.id, e.title, e.description, e.priority, e.status, e.created_at, e.updated_at,
			COALESCE(s.total, 0), COALESCE(s.terminal, 0),
			COALESCE(t.total, 0), COALESCE(t.terminal, 0)
		FROM epics e
		LEFT JOIN story_counts s ON s.epic_id = e.id
		LEFT JOIN task_counts t ON t.epic_id = e.id
		ORDER BY e.id
	`)
	if err != nil {
		return nil, fmt.Errorf("list epic progress: %w", err)
	}
	defer rows.Close()

	var out []EpicProgress
	for rows.Next() {
		var ep EpicProgress
		var description string
		var createdAt, updatedAt string
		if err := rows.Scan(&ep.Epic.ID, &ep.Epic.Title, &description, &ep.Epic.Priority, &ep.Epic.Status,
			&createdAt, &updatedAt,
			&ep.StoriesTotal, &ep.StoriesTerminal, &ep.TasksTotal, &ep.TasksTerminal); err != nil {
			return nil, fmt.Errorf("scan epic progress: %w", err)
		}
		ep.Epic.Description = description
		ep.Epic.CreatedAt, _ = parseTime(createdAt)
		ep.Epic.UpdatedAt, _ = parseTime(updatedAt)
		out = append(out, ep)
	}
	return out, rows.Err()
}

// IntegrityFault is one detected inconsistency in the persisted graph.
// Faults are reported, never silently repaired.
type IntegrityFault struct {
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}

// Integrity fault kinds.
const (
	FaultEpicMismatch       = "epic_mismatch"
	FaultDanglingPhaseItem  = "dangling_phase_item"
	FaultDanglingDependency = "dangling_dependency"
)

// CheckIntegrity scans the store for structural faults: tasks whose
// denormalized epic disagrees with their story's epic, phase members that
// reference missing items, and dependency edges with missing endpoints.
func (db *DB) CheckIntegrity() ([]IntegrityFault, error) {
	var faults []IntegrityFault

	rows, err := db.Query(`
		SELECT t.id, t.epic_id, s.epic_id
		FROM tasks t JOIN stories s ON s.id = t.story_id
		WHERE t.epic_id != s.epic_id
		ORDER BY t.id
	`)
	if err != nil {
		return nil, fmt.Errorf("check epic agreement: %w", err)
	}
	for rows.Next() {
		var taskID, taskEpic, storyEpic string
		if err := rows.Scan(&taskID, &taskEpic, &storyEpic); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan epic mismatch: %w", err)
		}
		faults = append(faults, IntegrityFault{
			Kind:   FaultEpicMismatch,
			Detail: fmt.Sprintf("task %s records epic %s but its story belongs to %s", taskID, taskEpic, storyEpic),
		})
	}
	rows.Close()

	rows, err = db.Query(`
		SELECT pi.phase_id, pi.item_kind, pi.item_id
		FROM phase_items pi
		LEFT JOIN work_items w ON w.kind = pi.item_kind AND w.id = pi.item_id
		WHERE w.id IS NULL
		ORDER BY pi.phase_id, pi.item_kind, pi.item_id
	`)
	if err != nil {
		return nil, fmt.Errorf("check phase members: %w", err)
	}
	for rows.Next() {
		var phaseID, kind, itemID string
		if err := rows.Scan(&phaseID, &kind, &itemID); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan dangling phase item: %w", err)
		}
		faults = append(faults, IntegrityFault{
			Kind:   FaultDanglingPhaseItem,
			Detail: fmt.Sprintf("phase %s references missing %s %s", phaseID, kind, itemID),
		})
	}
	rows.Close()

	rows, err = db.Query(`
		SELECT d.item_kind, d.item_id, d.target_kind, d.target_id
		FROM dependencies d
		LEFT JOIN work_items src ON src.kind = d.item_kind AND src.id = d.item_id
		LEFT JOIN work_items dst ON dst.kind = d.target_kind AND dst.id = d.target_id
		WHERE src.id IS NULL OR dst.id IS NULL
		ORDER BY d.item_kind, d.item_id
	`)
	if err != nil {
		return nil, fmt.Errorf("check dependencies: %w", err)
	}
	for rows.Next() {
		var d models.Dependency
		if err := rows.Scan(&d.Item.Kind, &d.Item.ID, &d.DependsOn.Kind, &d.DependsOn.ID); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan dangling dependency: %w", err)
		}
		faults = append(faults, IntegrityFault{
			Kind:   FaultDanglingDependency,
			Detail: fmt.Sprintf("dependency %s -> %s has a missing endpoint", d.Item, d.DependsOn),
		})
	}
	rows.Close()

	return faults, nil
}
