// Package resume reconstructs where a run left off from persisted state
// alone, so an interrupted session picks up without replaying history.
package resume

import (
	"fmt"

	"github.com/gantrylabs/gantry/internal/state"
	"github.com/gantrylabs/gantry/pkg/models"
)

// Action tells the driver what to do next with a phase.
type Action string

const (
	// ActionStartFresh means no member task has run yet; begin at the top.
	ActionStartFresh Action = "start_fresh"
	// ActionAlreadyComplete means the phase gate passed and every story is done.
	ActionAlreadyComplete Action = "already_complete"
	// ActionResumeOrphan means tasks were left in flight by an interrupted run.
	ActionResumeOrphan Action = "resume_orphan"
	// ActionResumeMixed means orphaned tasks and pending story gates both exist.
	ActionResumeMixed Action = "resume_mixed"
	// ActionRunStoryGate means implementation is done and a story awaits review.
	ActionRunStoryGate Action = "run_story_gate"
	// ActionRunPhaseGate means every story passed review; the phase gate is next.
	ActionRunPhaseGate Action = "run_phase_gate"
	// ActionFindNextTask means dispatchable work remains; ask the resolver.
	ActionFindNextTask Action = "find_next_task"
)

// Detection is the snapshot Detect assembles for one phase.
type Detection struct {
	Phase  models.Phase
	Status models.PhaseStatus
	Action Action
	Tasks  state.TaskCounts
	// Orphans are member tasks left in_progress by an interrupted run.
	Orphans []models.Task
	// PendingGates are member stories that completed but have not passed
	// their review gate.
	PendingGates    []models.Story
	StoriesTotal    int
	StoriesComplete int
}

// Detector derives a phase's position from the store.
type Detector struct {
	db *state.DB
}

// New creates a Detector backed by the given store.
func New(db *state.DB) *Detector {
	return &Detector{db: db}
}

// Detect reads the phase's member state and returns the derived phase status
// plus the next action. It never writes. Tasks are only in_progress while a
// worker holds them and detection runs between dispatches, so any
// in_progress row seen here was left behind by an interrupted run.
func (d *Detector) Detect(phaseID string) (*Detection, error) {
	phase, err := d.db.GetPhase(phaseID)
	if err != nil {
		return nil, err
	}

	counts, err := d.db.PhaseTaskCounts(phaseID)
	if err != nil {
		return nil, err
	}

	tasks, err := d.db.PhaseTasks(phaseID)
	if err != nil {
		return nil, err
	}
	var orphans []models.Task
	for _, task := range tasks {
		if task.Status == models.StatusInProgress {
			orphans = append(orphans, task)
		}
	}

	stories, err := d.db.PhaseStories(phaseID)
	if err != nil {
		return nil, err
	}
	storiesComplete := 0
	for _, s := range stories {
		if s.Status == models.StatusComplete {
			storiesComplete++
		}
	}
	allStoriesComplete := storiesComplete == len(stories)

	pendingGates, err := d.db.PendingStoryGates(phaseID)
	if err != nil {
		return nil, err
	}

	det := &Detection{
		Phase:           *phase,
		Tasks:           counts,
		Orphans:         orphans,
		PendingGates:    pendingGates,
		StoriesTotal:    len(stories),
		StoriesComplete: storiesComplete,
	}
	det.Action = decideAction(phase, counts, len(orphans), len(pendingGates), allStoriesComplete)
	det.Status = deriveStatus(phase, counts, len(orphans), len(pendingGates), allStoriesComplete)
	return det, nil
}

// DetectAll runs Detect over every phase in sequence order.
func (d *Detector) DetectAll() ([]Detection, error) {
	phases, err := d.db.ListPhases()
	if err != nil {
		return nil, err
	}

	out := make([]Detection, 0, len(phases))
	for _, p := range phases {
		det, err := d.Detect(p.ID)
		if err != nil {
			return nil, fmt.Errorf("detect phase %s: %w", p.ID, err)
		}
		out = append(out, *det)
	}
	return out, nil
}

// decideAction walks the resume decision table in order and returns the
// first matching action.
func decideAction(phase *models.Phase, counts state.TaskCounts, orphans, pendingGates int, allStoriesComplete bool) Action {
	allTasksTerminal := counts.Terminal() == counts.Total()

	switch {
	case counts.Total() > 0 && !counts.Started():
		return ActionStartFresh
	case phase.GatePassed && allStoriesComplete:
		return ActionAlreadyComplete
	case orphans > 0 && pendingGates > 0:
		return ActionResumeMixed
	case orphans > 0:
		return ActionResumeOrphan
	case allTasksTerminal && pendingGates > 0:
		return ActionRunStoryGate
	case allStoriesComplete && pendingGates == 0 && !phase.GatePassed:
		return ActionRunPhaseGate
	default:
		return ActionFindNextTask
	}
}

// deriveStatus maps the same inputs onto the phase lifecycle. The status is
// computed on every read and never stored.
func deriveStatus(phase *models.Phase, counts state.TaskCounts, orphans, pendingGates int, allStoriesComplete bool) models.PhaseStatus {
	allTasksTerminal := counts.Terminal() == counts.Total()

	switch {
	case phase.GatePassed && allStoriesComplete:
		return models.PhaseComplete
	case allStoriesComplete && pendingGates == 0:
		return models.PhaseGatePending
	case counts.Total() > 0 && !counts.Started():
		return models.PhaseNotStarted
	case orphans == 0 && allTasksTerminal && pendingGates > 0:
		return models.PhaseTestsWritten
	default:
		return models.PhaseInProgress
	}
}
