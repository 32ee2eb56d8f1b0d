package state

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/gantrylabs/gantry/pkg/models"
)

// Epic CRUD operations

// CreateEpic inserts a new epic. Items always enter the graph pending.
func (db *DB) CreateEpic(e *models.Epic) error {
	now := time.Now()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = e.CreatedAt
	e.Status = models.StatusPending

	_, err := db.Exec(`
		INSERT INTO epics (id, title, description, priority, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.Title, e.Description, string(e.Priority), string(e.Status), formatTime(e.CreatedAt), formatTime(e.UpdatedAt))
	if err != nil {
		return fmt.Errorf("create epic %s: %w", e.ID, err)
	}
	return nil
}

// GetEpic retrieves an epic by ID.
func (db *DB) GetEpic(id string) (*models.Epic, error) {
	row := db.QueryRow(`
		SELECT id, title, description, priority, status, created_at, updated_at
		FROM epics WHERE id = ?
	`, id)

	e, err := scanEpic(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("epic %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get epic %s: %w", id, err)
	}
	return e, nil
}

// ListEpics lists all epics ordered by ID.
func (db *DB) ListEpics() ([]models.Epic, error) {
	rows, err := db.Query(`
		SELECT id, title, description, priority, status, created_at, updated_at
		FROM epics ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("list epics: %w", err)
	}
	defer rows.Close()

	var epics []models.Epic
	for rows.Next() {
		e, err := scanEpic(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan epic: %w", err)
		}
		epics = append(epics, *e)
	}
	return epics, rows.Err()
}

// Story CRUD operations

// CreateStory inserts a new story. Items always enter the graph pending.
func (db *DB) CreateStory(s *models.Story) error {
	now := time.Now()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = s.CreatedAt
	s.Status = models.StatusPending

	_, err := db.Exec(`
		INSERT INTO stories (id, epic_id, title, description, priority, status, gate_passed, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)
	`, s.ID, s.EpicID, s.Title, s.Description, string(s.Priority), string(s.Status), formatTime(s.CreatedAt), formatTime(s.UpdatedAt))
	if err != nil {
		return fmt.Errorf("create story %s: %w", s.ID, err)
	}
	return nil
}

// GetStory retrieves a story by ID.
func (db *DB) GetStory(id string) (*models.Story, error) {
	row := db.QueryRow(`
		SELECT id, epic_id, title, description, priority, status, gate_passed, created_at, updated_at
		FROM stories WHERE id = ?
	`, id)

	s, err := scanStory(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("story %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get story %s: %w", id, err)
	}
	return s, nil
}

// ListStories lists all stories ordered by ID.
func (db *DB) ListStories() ([]models.Story, error) {
	rows, err := db.Query(`
		SELECT id, epic_id, title, description, priority, status, gate_passed, created_at, updated_at
		FROM stories ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("list stories: %w", err)
	}
	defer rows.Close()

	return scanStories(rows)
}

// ListStoriesByEpic lists the stories belonging to an epic.
func (db *DB) ListStoriesByEpic(epicID string) ([]models.Story, error) {
	rows, err := db.Query(`
		SELECT id, epic_id, title, description, priority, status, gate_passed, created_at, updated_at
		FROM stories WHERE epic_id = ? ORDER BY id
	`, epicID)
	if err != nil {
		return nil, fmt.Errorf("list stories by epic: %w", err)
	}
	defer rows.Close()

	return scanStories(rows)
}

// Task CRUD operations

// CreateTask inserts a new task. Items always enter the graph pending.
// The story and epic must already exist; epic agreement with the story is
// validated at ingestion and audited by CheckIntegrity.
func (db *DB) CreateTask(t *models.Task) error {
	now := time.Now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = t.CreatedAt
	t.Status = models.StatusPending
	if t.Complexity <= 0 {
		t.Complexity = 1
	}

	_, err := db.Exec(`
		INSERT INTO tasks (id, story_id, epic_id, title, acceptance_criteria, complexity, status, skip_reason, created_at, updated_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, NULL, ?, ?, NULL)
	`, t.ID, t.StoryID, t.EpicID, t.Title, t.AcceptanceCriteria, t.Complexity, string(t.Status), formatTime(t.CreatedAt), formatTime(t.UpdatedAt))
	if err != nil {
		return fmt.Errorf("create task %s: %w", t.ID, err)
	}
	return nil
}

// GetTask retrieves a task by ID.
func (db *DB) GetTask(id string) (*models.Task, error) {
	row := db.QueryRow(`
		SELECT id, story_id, epic_id, title, acceptance_criteria, complexity, status, skip_reason, created_at, updated_at, completed_at
		FROM tasks WHERE id = ?
	`, id)

	t, err := scanTask(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}
	return t, nil
}

// ListTasks lists all tasks, optionally filtered by status, ordered by ID.
func (db *DB) ListTasks(status *models.Status) ([]models.Task, error) {
	var rows *sql.Rows
	var err error

	if status != nil {
		rows, err = db.Query(`
			SELECT id, story_id, epic_id, title, acceptance_criteria, complexity, status, skip_reason, created_at, updated_at, completed_at
			FROM tasks WHERE status = ? ORDER BY id
		`, string(*status))
	} else {
		rows, err = db.Query(`
			SELECT id, story_id, epic_id, title, acceptance_criteria, complexity, status, skip_reason, created_at, updated_at, completed_at
			FROM tasks ORDER BY id
		`)
	}
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	return scanTasks(rows)
}

// ListTasksByStory lists the tasks belonging to a story.
func (db *DB) ListTasksByStory(storyID string) ([]models.Task, error) {
	rows, err := db.Query(`
		SELECT id, story_id, epic_id, title, acceptance_criteria, complexity, status, skip_reason, created_at, updated_at, completed_at
		FROM tasks WHERE story_id = ? ORDER BY id
	`, storyID)
	if err != nil {
		return nil, fmt.Errorf("list tasks by story: %w", err)
	}
	defer rows.Close()

	return scanTasks(rows)
}

// MarkTaskInProgress moves a pending task to in_progress just before
// dispatch. Any other starting status is an invalid transition.
func (db *DB) MarkTaskInProgress(id string) error {
	res, err := db.Exec(`
		UPDATE tasks SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, string(models.StatusInProgress), formatTime(time.Now()), id, string(models.StatusPending))
	if err != nil {
		return fmt.Errorf("mark task in progress: %w", err)
	}
	return db.checkTransition(res, id, models.StatusInProgress)
}

// ReopenTask returns an in_progress task to pending. Used when a worker
// reports partial or blocked, and when an orphan is re-surfaced at resume.
func (db *DB) ReopenTask(id string) error {
	res, err := db.Exec(`
		UPDATE tasks SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, string(models.StatusPending), formatTime(time.Now()), id, string(models.StatusInProgress))
	if err != nil {
		return fmt.Errorf("reopen task: %w", err)
	}
	return db.checkTransition(res, id, models.StatusPending)
}

// checkTransition turns a zero-row guarded UPDATE into the right error:
// the task is either missing or not in the required starting status.
func (db *DB) checkTransition(res sql.Result, id string, to models.Status) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}

	t, err := db.GetTask(id)
	if err != nil {
		return err
	}
	return fmt.Errorf("task %s is %s, cannot move to %s: %w", id, t.Status, to, ErrInvalidTransition)
}

// Scan helpers. Each takes the row's Scan func so it serves both *sql.Row
// and *sql.Rows.

func scanEpic(scan func(...any) error) (*models.Epic, error) {
	var e models.Epic
	var description sql.NullString
	var createdAt, updatedAt string
	if err := scan(&e.ID, &e.Title, &description, &e.Priority, &e.Status, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if description.Valid {
		e.Description = description.String
	}
	e.CreatedAt, _ = parseTime(createdAt)
	e.UpdatedAt, _ = parseTime(updatedAt)
	return &e, nil
}

func scanStory(scan func(...any) error) (*models.Story, error) {
	var s models.Story
	var description sql.NullString
	var gatePassed int
	var createdAt, updatedAt string
	if err := scan(&s.ID, &s.EpicID, &s.Title, &description, &s.Priority, &s.Status, &gatePassed, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if description.Valid {
		s.Description = description.String
	}
	s.GatePassed = gatePassed != 0
	s.CreatedAt, _ = parseTime(createdAt)
	s.UpdatedAt, _ = parseTime(updatedAt)
	return &s, nil
}

func scanStories(rows *sql.Rows) ([]models.Story, error) {
	var stories []models.Story
	for rows.Next() {
		s, err := scanStory(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan story: %w", err)
		}
		stories = append(stories, *s)
	}
	return stories, rows.Err()
}

func scanTask(scan func(...any) error) (*models.Task, error) {
	var t models.Task
	var criteria, skipReason sql.NullString
	var createdAt, updatedAt string
	var completedAt sql.NullString
	if err := scan(&t.ID, &t.StoryID, &t.EpicID, &t.Title, &criteria, &t.Complexity, &t.Status, &skipReason, &createdAt, &updatedAt, &completedAt); err != nil {
		return nil, err
	}
	if criteria.Valid {
		t.AcceptanceCriteria = criteria.String
	}
	if skipReason.Valid {
		t.SkipReason = skipReason.String
	}
	t.CreatedAt, _ = parseTime(createdAt)
	t.UpdatedAt, _ = parseTime(updatedAt)
	t.CompletedAt = parseNullableTime(completedAt)
	return &t, nil
}

func scanTasks(rows *sql.Rows) ([]models.Task, error) {
	var tasks []models.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}
