package models

import "time"

// Epic is the top tier of the work hierarchy: a large body of related
// stories. Epic status moves to complete only through the cascade when
// every child story is terminal.
type Epic struct {
	// ID is the unique identifier for this epic.
	ID string `json:"id"`
	// Title is the short description of the epic.
	Title string `json:"title"`
	// Description provides detailed information about the epic.
	Description string `json:"description,omitempty"`
	// Priority orders this epic's work against its peers.
	Priority Priority `json:"priority"`
	// Status is the current lifecycle state.
	Status Status `json:"status"`
	// CreatedAt is when the epic was created.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is when the epic last changed.
	UpdatedAt time.Time `json:"updated_at"`
}

// Story is the middle tier: a deliverable slice of an epic, reviewed as a
// unit by the story gate once all of its tasks are terminal.
type Story struct {
	// ID is the unique identifier for this story.
	ID string `json:"id"`
	// EpicID is the owning epic.
	EpicID string `json:"epic_id"`
	// Title is the short description of the story.
	Title string `json:"title"`
	// Description provides detailed information about the story.
	Description string `json:"description,omitempty"`
	// Priority orders this story's tasks against sibling stories.
	Priority Priority `json:"priority"`
	// Status is the current lifecycle state.
	Status Status `json:"status"`
	// GatePassed records whether the story review gate has passed.
	// Set once by a pass verdict and never cleared.
	GatePassed bool `json:"gate_passed"`
	// CreatedAt is when the story was created.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is when the story last changed.
	UpdatedAt time.Time `json:"updated_at"`
}

// Task is the leaf tier: a single dispatchable unit of work.
type Task struct {
	// ID is the unique identifier for this task.
	ID string `json:"id"`
	// StoryID is the owning story.
	StoryID string `json:"story_id"`
	// EpicID is the owning epic, denormalized from the story for query
	// convenience. It must agree with the story's epic.
	EpicID string `json:"epic_id"`
	// Title is the short description of the task.
	Title string `json:"title"`
	// AcceptanceCriteria defines what done means for this task.
	AcceptanceCriteria string `json:"acceptance_criteria,omitempty"`
	// Complexity is a positive relative effort weight; lighter tasks
	// dispatch first among equals.
	Complexity int `json:"complexity"`
	// Status is the current lifecycle state.
	Status Status `json:"status"`
	// SkipReason records why the task was skipped, if it was.
	SkipReason string `json:"skip_reason,omitempty"`
	// CreatedAt is when the task was created.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is when the task last changed.
	UpdatedAt time.Time `json:"updated_at"`
	// CompletedAt is when the task reached a terminal status, if it has.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Ref returns the typed reference for the epic.
func (e Epic) Ref() ItemRef { return ItemRef{Kind: KindEpic, ID: e.ID} }

// Ref returns the typed reference for the story.
func (s Story) Ref() ItemRef { return ItemRef{Kind: KindStory, ID: s.ID} }

// Ref returns the typed reference for the task.
func (t Task) Ref() ItemRef { return ItemRef{Kind: KindTask, ID: t.ID} }
