//go:build integration

package integration

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/gantrylabs/gantry/internal/collab"
	"github.com/gantrylabs/gantry/internal/driver"
	"github.com/gantrylabs/gantry/internal/gate"
	"github.com/gantrylabs/gantry/internal/ingest"
	"github.com/gantrylabs/gantry/internal/state"
	"github.com/gantrylabs/gantry/pkg/models"
)

// apiPlanYAML is the plan every scenario here drives: two phases, a
// cross-story dependency inside the first, and a second phase that only
// starts once the first has fully gated.
const apiPlanYAML = `
epics:
  - id: epic-api
    title: Public API
    priority: high
    stories:
      - id: story-models
        title: Data model
        tasks:
          - id: task-schema
            title: Define request and response types
            acceptance_criteria: Types round-trip JSON
            complexity: 1
      - id: story-endpoints
        title: HTTP endpoints
        tasks:
          - id: task-routes
            title: Register routes
            acceptance_criteria: Router serves documented paths
            complexity: 1
            depends_on: ["story:story-models"]
          - id: task-handlers
            title: Implement handlers
            acceptance_criteria: Handlers return documented status codes
            complexity: 2
            depends_on: [task-routes]
  - id: epic-docs
    title: Documentation
    stories:
      - id: story-guide
        title: User guide
        tasks:
          - id: task-outline
            title: Draft the guide outline
            acceptance_criteria: Outline covers every endpoint
phases:
  - id: phase-build
    sequence: 1
    name: Build
    exit_criteria: API serves requests end to end
    members: ["epic:epic-api"]
  - id: phase-polish
    sequence: 2
    name: Polish
    members: ["epic:epic-docs"]
`

// openProject opens a migrated store under a fresh project root, laid out
// the way gantry init leaves it.
func openProject(t *testing.T) (string, *state.DB) {
	t.Helper()
	root := t.TempDir()
	db, err := state.OpenProject(root)
	if err != nil {
		t.Fatalf("OpenProject failed: %v", err)
	}
	if err := db.Migrate(); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return root, db
}

// importPlanFile writes the YAML to disk and runs it through the same
// load, validate, populate path the CLI uses.
func importPlanFile(t *testing.T, db *state.DB, root, planYAML string) {
	t.Helper()
	path := filepath.Join(root, "plan.yaml")
	if err := os.WriteFile(path, []byte(planYAML), 0644); err != nil {
		t.Fatalf("write plan file: %v", err)
	}
	plan, err := ingest.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if result := ingest.Validate(plan); !result.Valid {
		t.Fatalf("plan should validate, errors: %v", result.Errors)
	}
	if err := ingest.Populate(db, plan); err != nil {
		t.Fatalf("Populate failed: %v", err)
	}
}

func startSession(t *testing.T, db *state.DB, budget int) *state.Session {
	t.Helper()
	s, err := db.StartSession(budget)
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	return s
}

func mustDrive(t *testing.T, db *state.DB, session *state.Session, worker collab.Worker, reviewer collab.Reviewer) *driver.Report {
	t.Helper()
	d := driver.New(db, session, worker, reviewer, driver.Options{})
	report, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	return report
}

func requireTaskStatus(t *testing.T, db *state.DB, id string, want models.Status) {
	t.Helper()
	task, err := db.GetTask(id)
	if err != nil {
		t.Fatalf("GetTask %s failed: %v", id, err)
	}
	if task.Status != want {
		t.Errorf("task %s status = %s, want %s", id, task.Status, want)
	}
}

func requireCallOrder(t *testing.T, label string, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%s = %v, want %v", label, got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("%s[%d] = %s, want %s", label, i, got[i], want[i])
		}
	}
}

// scriptedWorker completes every assignment unless a verdict is scripted
// for the task. onDispatch, when set, runs on every call, which lets a
// scenario act while a task is notionally in flight.
type scriptedWorker struct {
	verdicts   map[string]models.WorkVerdict
	onDispatch func(taskID string)
	calls      []string
}

func (w *scriptedWorker) Execute(_ context.Context, a collab.Assignment) (*collab.WorkOutcome, error) {
	w.calls = append(w.calls, a.Task.ID)
	if w.onDispatch != nil {
		w.onDispatch(a.Task.ID)
	}
	if v, ok := w.verdicts[a.Task.ID]; ok {
		return &collab.WorkOutcome{Verdict: v, Summary: "scripted"}, nil
	}
	return &collab.WorkOutcome{Verdict: models.WorkComplete, Summary: "done"}, nil
}

// scriptedReviewer passes every gate except the targets listed in fail.
type scriptedReviewer struct {
	fail  map[string]bool
	calls []string
}

func (r *scriptedReviewer) Review(_ context.Context, req collab.ReviewRequest) (*collab.ReviewOutcome, error) {
	var target string
	switch req.Scope {
	case models.GateStory:
		target = req.Story.ID
	case models.GatePhase:
		target = req.Phase.ID
	}
	r.calls = append(r.calls, fmt.Sprintf("%s:%s", req.Scope, target))
	if r.fail[target] {
		return &collab.ReviewOutcome{Verdict: models.ReviewFail, Notes: "not ready"}, nil
	}
	return &collab.ReviewOutcome{Verdict: models.ReviewPass, Notes: "ship it"}, nil
}

// TestPlanFileDrivenToCompletion walks the whole pipeline: a plan file is
// loaded, validated, and imported, then the driver works it to completion
// with gates in between, and the store ends up consistent.
func TestPlanFileDrivenToCompletion(t *testing.T) {
	root, db := openProject(t)
	importPlanFile(t, db, root, apiPlanYAML)
	session := startSession(t, db, 0)
	worker := &scriptedWorker{}
	reviewer := &scriptedReviewer{}

	report := mustDrive(t, db, session, worker, reviewer)

	if report.Halt != driver.HaltComplete {
		t.Fatalf("halt = %s, want %s", report.Halt, driver.HaltComplete)
	}

	// the dependency chain orders phase one; phase sequence holds the
	// docs task until the API phase has gated
	requireCallOrder(t, "worker calls", worker.calls,
		[]string{"task-schema", "task-routes", "task-handlers", "task-outline"})

	// story gates review in id order once the phase's tasks are terminal,
	// then the phase gate, then the next phase begins
	requireCallOrder(t, "reviewer calls", reviewer.calls, []string{
		"story:story-endpoints",
		"story:story-models",
		"phase:phase-build",
		"story:story-guide",
		"phase:phase-polish",
	})

	progress, err := db.ListPhaseProgress()
	if err != nil {
		t.Fatalf("ListPhaseProgress failed: %v", err)
	}
	if len(progress) != 2 {
		t.Fatalf("phases = %d, want 2", len(progress))
	}
	for _, p := range progress {
		if got := p.Status(); got != models.PhaseComplete {
			t.Errorf("phase %s status = %s, want %s", p.Phase.ID, got, models.PhaseComplete)
		}
	}

	epics, err := db.ListEpicProgress()
	if err != nil {
		t.Fatalf("ListEpicProgress failed: %v", err)
	}
	if len(epics) != 2 {
		t.Fatalf("epics = %d, want 2", len(epics))
	}
	for _, ep := range epics {
		if ep.StoriesTerminal != ep.StoriesTotal || ep.TasksTerminal != ep.TasksTotal {
			t.Errorf("epic %s rolled up %d/%d stories, %d/%d tasks, want all terminal",
				ep.Epic.ID, ep.StoriesTerminal, ep.StoriesTotal, ep.TasksTerminal, ep.TasksTotal)
		}
	}

	loaded, err := db.GetSession(session.ID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if loaded.Status != state.SessionCompleted {
		t.Errorf("session status = %s, want %s", loaded.Status, state.SessionCompleted)
	}

	faults, err := db.CheckIntegrity()
	if err != nil {
		t.Fatalf("CheckIntegrity failed: %v", err)
	}
	if len(faults) != 0 {
		t.Errorf("integrity faults = %+v, want none", faults)
	}
}

// TestFailedStoryGateBlocksUntilOverride runs a plan into a failed story
// review, then clears the gate by hand the way gantry gate story does, and
// checks the next run picks up past it without re-reviewing.
func TestFailedStoryGateBlocksUntilOverride(t *testing.T) {
	root, db := openProject(t)
	importPlanFile(t, db, root, apiPlanYAML)
	session := startSession(t, db, 0)
	reviewer := &scriptedReviewer{fail: map[string]bool{"story-endpoints": true}}

	report := mustDrive(t, db, session, &scriptedWorker{}, reviewer)

	if report.Halt != driver.HaltGateFailed {
		t.Fatalf("halt = %s, want %s", report.Halt, driver.HaltGateFailed)
	}
	// the failing gate reviews first by id order and halts the run before
	// the sibling story is looked at
	requireCallOrder(t, "reviewer calls", reviewer.calls, []string{"story:story-endpoints"})

	story, err := db.GetStory("story-endpoints")
	if err != nil {
		t.Fatalf("GetStory failed: %v", err)
	}
	if story.GatePassed {
		t.Fatal("failed review must not set the gate flag")
	}

	// the session survives a gate failure; the operator reworks the story
	// and passes the gate manually
	res, err := gate.New(db).RunStoryGate("story-endpoints", models.ReviewPass, "reworked and verified by hand")
	if err != nil {
		t.Fatalf("RunStoryGate failed: %v", err)
	}
	if !res.Passed || res.AlreadyPassed {
		t.Fatalf("manual gate result = %+v, want a fresh pass", res)
	}

	retryReviewer := &scriptedReviewer{}
	report = mustDrive(t, db, session, &scriptedWorker{}, retryReviewer)

	if report.Halt != driver.HaltComplete {
		t.Fatalf("retry halt = %s, want %s", report.Halt, driver.HaltComplete)
	}
	// the overridden story is settled; only the sibling story and the
	// phase gates remain
	requireCallOrder(t, "retry reviewer calls", retryReviewer.calls, []string{
		"story:story-models",
		"phase:phase-build",
		"story:story-guide",
		"phase:phase-polish",
	})

	reviews, err := db.ListGateReviews(models.GateStory, "story-endpoints")
	if err != nil {
		t.Fatalf("ListGateReviews failed: %v", err)
	}
	if len(reviews) != 2 {
		t.Fatalf("review history = %d entries, want the fail and the override", len(reviews))
	}
	var fails, passes int
	for _, r := range reviews {
		switch r.Verdict {
		case models.ReviewFail:
			fails++
		case models.ReviewPass:
			passes++
		}
	}
	if fails != 1 || passes != 1 {
		t.Errorf("history verdicts = %d fail, %d pass, want 1 and 1", fails, passes)
	}
}
