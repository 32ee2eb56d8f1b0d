package state

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/gantrylabs/gantry/pkg/models"
)

// Phase CRUD operations

// CreatePhase inserts a new phase.
func (db *DB) CreatePhase(p *models.Phase) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}

	_, err := db.Exec(`
		INSERT INTO phases (id, sequence, name, entry_criteria, exit_criteria, estimated_duration, gate_passed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?)
	`, p.ID, p.Sequence, p.Name, p.EntryCriteria, p.ExitCriteria, p.EstimatedDuration, formatTime(p.CreatedAt))
	if err != nil {
		return fmt.Errorf("create phase %s: %w", p.ID, err)
	}
	return nil
}

// GetPhase retrieves a phase by ID.
func (db *DB) GetPhase(id string) (*models.Phase, error) {
	row := db.QueryRow(`
		SELECT id, sequence, name, entry_criteria, exit_criteria, estimated_duration, gate_passed, created_at
		FROM phases WHERE id = ?
	`, id)

	p, err := scanPhase(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("phase %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get phase %s: %w", id, err)
	}
	return p, nil
}

// ListPhases lists all phases in sequence order.
func (db *DB) ListPhases() ([]models.Phase, error) {
	rows, err := db.Query(`
		SELECT id, sequence, name, entry_criteria, exit_criteria, estimated_duration, gate_passed, created_at
		FROM phases ORDER BY sequence
	`)
	if err != nil {
		return nil, fmt.Errorf("list phases: %w", err)
	}
	defer rows.Close()

	var phases []models.Phase
	for rows.Next() {
		p, err := scanPhase(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan phase: %w", err)
		}
		phases = append(phases, *p)
	}
	return phases, rows.Err()
}

// AddPhaseItem binds an epic or story to a phase. Task refs are not
// valid members; a task reaches a phase through its ancestors.
func (db *DB) AddPhaseItem(item models.PhaseItem) error {
	if item.Item.Kind != models.KindEpic && item.Item.Kind != models.KindStory {
		return fmt.Errorf("phase member must be an epic or story, got %s", item.Item.Kind)
	}

	_, err := db.Exec(`
		INSERT INTO phase_items (phase_id, item_kind, item_id)
		VALUES (?, ?, ?)
	`, item.PhaseID, string(item.Item.Kind), item.Item.ID)
	if err != nil {
		return fmt.Errorf("add phase item %s to %s: %w", item.Item, item.PhaseID, err)
	}
	return nil
}

// ListPhaseItems lists the direct members of a phase.
func (db *DB) ListPhaseItems(phaseID string) ([]models.PhaseItem, error) {
	rows, err := db.Query(`
		SELECT phase_id, item_kind, item_id
		FROM phase_items WHERE phase_id = ? ORDER BY item_kind, item_id
	`, phaseID)
	if err != nil {
		return nil, fmt.Errorf("list phase items: %w", err)
	}
	defer rows.Close()

	var items []models.PhaseItem
	for rows.Next() {
		var it models.PhaseItem
		if err := rows.Scan(&it.PhaseID, &it.Item.Kind, &it.Item.ID); err != nil {
			return nil, fmt.Errorf("scan phase item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// PhaseTasks lists the tasks belonging to a phase: tasks whose story is
// a member, plus tasks whose epic is a member.
func (db *DB) PhaseTasks(phaseID string) ([]models.Task, error) {
	rows, err := db.Query(`
		SELECT id, story_id, epic_id, title, acceptance_criteria, complexity, status, skip_reason, created_at, updated_at, completed_at
		FROM tasks
		WHERE story_id IN (SELECT item_id FROM phase_items WHERE phase_id = ? AND item_kind = 'story')
		   OR epic_id IN (SELECT item_id FROM phase_items WHERE phase_id = ? AND item_kind = 'epic')
		ORDER BY id
	`, phaseID, phaseID)
	if err != nil {
		return nil, fmt.Errorf("phase tasks: %w", err)
	}
	defer rows.Close()

	return scanTasks(rows)
}

// PhaseStories lists the stories belonging to a phase: direct story
// members plus the stories of member epics.
func (db *DB) PhaseStories(phaseID string) ([]models.Story, error) {
	rows, err := db.Query(`
		SELECT id, epic_id, title, description, priority, status, gate_passed, created_at, updated_at
		FROM stories
		WHERE id IN (SELECT item_id FROM phase_items WHERE phase_id = ? AND item_kind = 'story')
		   OR epic_id IN (SELECT item_id FROM phase_items WHERE phase_id = ? AND item_kind = 'epic')
		ORDER BY id
	`, phaseID, phaseID)
	if err != nil {
		return nil, fmt.Errorf("phase stories: %w", err)
	}
	defer rows.Close()

	return scanStories(rows)
}

func scanPhase(scan func(...any) error) (*models.Phase, error) {
	var p models.Phase
	var entry, exit, duration sql.NullString
	var gatePassed int
	var createdAt string
	if err := scan(&p.ID, &p.Sequence, &p.Name, &entry, &exit, &duration, &gatePassed, &createdAt); err != nil {
		return nil, err
	}
	if entry.Valid {
		p.EntryCriteria = entry.String
	}
	if exit.Valid {
		p.ExitCriteria = exit.String
	}
	if duration.Valid {
		p.EstimatedDuration = duration.String
	}
	p.GatePassed = gatePassed != 0
	p.CreatedAt, _ = parseTime(createdAt)
	return &p, nil
}
