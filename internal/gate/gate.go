// Package gate runs story and phase review gates against the store.
package gate

import (
	"errors"
	"fmt"

	"github.com/gantrylabs/gantry/internal/state"
	"github.com/gantrylabs/gantry/pkg/models"
)

// ErrStoryNotReady indicates a story gate was requested before the story's
// implementation finished.
var ErrStoryNotReady = errors.New("story is not ready for its gate")

// ErrPhaseNotReady indicates a phase gate was requested before every member
// story completed and passed its own gate.
var ErrPhaseNotReady = errors.New("phase is not ready for its gate")

// Result reports what a gate run did.
type Result struct {
	Scope    models.GateScope     `json:"scope"`
	TargetID string               `json:"target_id"`
	Verdict  models.ReviewVerdict `json:"verdict"`
	// AlreadyPassed is true when the gate flag was set before this run;
	// nothing new was recorded.
	AlreadyPassed bool `json:"already_passed"`
	// Passed is true when the gate flag is set after this run.
	Passed bool `json:"passed"`
	// ReviewID identifies the recorded review row, empty for no-ops.
	ReviewID string `json:"review_id,omitempty"`
	Notes    string `json:"notes,omitempty"`
}

// Controller applies review verdicts to story and phase gates. A fail
// records the review but leaves the gate flag unset; flags are never cleared
// once set.
type Controller struct {
	db *state.DB
}

// New creates a Controller backed by the given store.
func New(db *state.DB) *Controller {
	return &Controller{db: db}
}

// RunStoryGate applies a review verdict to a story's gate. The story must
// have finished implementation (cascaded to complete); otherwise
// ErrStoryNotReady. Running against an already-passed gate is a no-op.
func (c *Controller) RunStoryGate(storyID string, verdict models.ReviewVerdict, notes string) (*Result, error) {
	if !verdict.Valid() {
		return nil, fmt.Errorf("invalid review verdict %q", verdict)
	}

	story, err := c.db.GetStory(storyID)
	if err != nil {
		return nil, err
	}
	if story.GatePassed {
		return &Result{
			Scope:         models.GateStory,
			TargetID:      storyID,
			Verdict:       verdict,
			AlreadyPassed: true,
			Passed:        true,
		}, nil
	}
	if story.Status != models.StatusComplete {
		return nil, fmt.Errorf("story %s is %s: %w", storyID, story.Status, ErrStoryNotReady)
	}

	reviewID, err := c.db.RecordGateOutcome(models.GateStory, storyID, verdict, notes)
	if err != nil {
		return nil, err
	}
	return &Result{
		Scope:    models.GateStory,
		TargetID: storyID,
		Verdict:  verdict,
		Passed:   verdict == models.ReviewPass,
		ReviewID: reviewID,
		Notes:    notes,
	}, nil
}

// RunPhaseGate applies a review verdict to a phase's gate. Every member
// story must be complete with its gate passed; otherwise ErrPhaseNotReady.
// Running against an already-passed gate is a no-op.
func (c *Controller) RunPhaseGate(phaseID string, verdict models.ReviewVerdict, notes string) (*Result, error) {
	if !verdict.Valid() {
		return nil, fmt.Errorf("invalid review verdict %q", verdict)
	}

	phase, err := c.db.GetPhase(phaseID)
	if err != nil {
		return nil, err
	}
	if phase.GatePassed {
		return &Result{
			Scope:         models.GatePhase,
			TargetID:      phaseID,
			Verdict:       verdict,
			AlreadyPassed: true,
			Passed:        true,
		}, nil
	}

	stories, err := c.db.PhaseStories(phaseID)
	if err != nil {
		return nil, err
	}
	for _, s := range stories {
		if s.Status != models.StatusComplete {
			return nil, fmt.Errorf("story %s is %s: %w", s.ID, s.Status, ErrPhaseNotReady)
		}
		if !s.GatePassed {
			return nil, fmt.Errorf("story %s has not passed its gate: %w", s.ID, ErrPhaseNotReady)
		}
	}

	reviewID, err := c.db.RecordGateOutcome(models.GatePhase, phaseID, verdict, notes)
	if err != nil {
		return nil, err
	}
	return &Result{
		Scope:    models.GatePhase,
		TargetID: phaseID,
		Verdict:  verdict,
		Passed:   verdict == models.ReviewPass,
		ReviewID: reviewID,
		Notes:    notes,
	}, nil
}
