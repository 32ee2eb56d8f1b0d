package models

import "time"

// Phase is an ordered execution stage overlaying the work hierarchy.
// Phases own no tasks directly; membership is by epic or story reference,
// and a task belongs to a phase through its ancestors.
type Phase struct {
	// ID is the unique identifier for this phase.
	ID string `json:"id"`
	// Sequence orders phases; sequences are positive and contiguous
	// starting at 1.
	Sequence int `json:"sequence"`
	// Name is the human label for the phase.
	Name string `json:"name"`
	// EntryCriteria describes what must hold before the phase starts.
	EntryCriteria string `json:"entry_criteria,omitempty"`
	// ExitCriteria describes what the phase gate reviews against.
	ExitCriteria string `json:"exit_criteria,omitempty"`
	// EstimatedDuration is a free-text planning estimate.
	EstimatedDuration string `json:"estimated_duration,omitempty"`
	// GatePassed records whether the phase review gate has passed.
	// Set once by a pass verdict and never cleared.
	GatePassed bool `json:"gate_passed"`
	// CreatedAt is when the phase was created.
	CreatedAt time.Time `json:"created_at"`
}

// PhaseItem binds an epic or story into a phase. Task refs are not valid
// phase members.
type PhaseItem struct {
	// PhaseID is the owning phase.
	PhaseID string `json:"phase_id"`
	// Item references the member epic or story.
	Item ItemRef `json:"item"`
}
