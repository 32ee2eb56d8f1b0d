package driver

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gantrylabs/gantry/internal/collab"
	"github.com/gantrylabs/gantry/internal/state"
	"github.com/gantrylabs/gantry/pkg/models"
)

func setupTestDB(t *testing.T) *state.DB {
	t.Helper()
	db, err := state.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	if err := db.Migrate(); err != nil {
		t.Fatalf("failed to migrate test db: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return db
}

func epicRef(id string) models.ItemRef {
	return models.ItemRef{Kind: models.KindEpic, ID: id}
}

func addEpic(t *testing.T, db *state.DB, id string) {
	t.Helper()
	if err := db.CreateEpic(&models.Epic{ID: id, Title: id, Priority: models.PriorityMedium}); err != nil {
		t.Fatalf("CreateEpic %s failed: %v", id, err)
	}
}

func addStory(t *testing.T, db *state.DB, id, epicID string) {
	t.Helper()
	if err := db.CreateStory(&models.Story{ID: id, EpicID: epicID, Title: id, Priority: models.PriorityMedium}); err != nil {
		t.Fatalf("CreateStory %s failed: %v", id, err)
	}
}

func addTask(t *testing.T, db *state.DB, id, storyID, epicID string) {
	t.Helper()
	task := &models.Task{ID: id, StoryID: storyID, EpicID: epicID, Title: id, Complexity: 1}
	if err := db.CreateTask(task); err != nil {
		t.Fatalf("CreateTask %s failed: %v", id, err)
	}
}

func addPhase(t *testing.T, db *state.DB, id string, seq int, members ...models.ItemRef) {
	t.Helper()
	if err := db.CreatePhase(&models.Phase{ID: id, Sequence: seq, Name: id}); err != nil {
		t.Fatalf("CreatePhase %s failed: %v", id, err)
	}
	for _, m := range members {
		if err := db.AddPhaseItem(models.PhaseItem{PhaseID: id, Item: m}); err != nil {
			t.Fatalf("AddPhaseItem %s failed: %v", m, err)
		}
	}
}

// seedPhase builds a phase holding one epic with one story and the given
// tasks.
func seedPhase(t *testing.T, db *state.DB, phaseID string, seq int, epicID, storyID string, taskIDs ...string) {
	t.Helper()
	addEpic(t, db, epicID)
	addStory(t, db, storyID, epicID)
	for _, id := range taskIDs {
		addTask(t, db, id, storyID, epicID)
	}
	addPhase(t, db, phaseID, seq, epicRef(epicID))
}

func startSession(t *testing.T, db *state.DB, budget int) *state.Session {
	t.Helper()
	s, err := db.StartSession(budget)
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	return s
}

// fakeWorker returns canned verdicts by task ID; tasks without an entry
// complete. onceVerdicts apply to the first call only, then fall through.
type fakeWorker struct {
	verdicts     map[string]models.WorkVerdict
	onceVerdicts map[string]models.WorkVerdict
	errs         map[string]error
	calls        []string
}

func (w *fakeWorker) Execute(_ context.Context, a collab.Assignment) (*collab.WorkOutcome, error) {
	w.calls = append(w.calls, a.Task.ID)
	if err := w.errs[a.Task.ID]; err != nil {
		return nil, err
	}
	if v, ok := w.onceVerdicts[a.Task.ID]; ok {
		delete(w.onceVerdicts, a.Task.ID)
		return &collab.WorkOutcome{Verdict: v, Summary: "first attempt"}, nil
	}
	if v, ok := w.verdicts[a.Task.ID]; ok {
		return &collab.WorkOutcome{Verdict: v, Summary: "done"}, nil
	}
	return &collab.WorkOutcome{Verdict: models.WorkComplete, Summary: "done"}, nil
}

// fakeReviewer passes everything except the targets listed in fail.
type fakeReviewer struct {
	fail  map[string]bool
	calls []string
}

func (r *fakeReviewer) Review(_ context.Context, req collab.ReviewRequest) (*collab.ReviewOutcome, error) {
	var target string
	switch req.Scope {
	case models.GateStory:
		target = req.Story.ID
	case models.GatePhase:
		target = req.Phase.ID
	}
	r.calls = append(r.calls, fmt.Sprintf("%s:%s", req.Scope, target))
	if r.fail[target] {
		return &collab.ReviewOutcome{Verdict: models.ReviewFail, Notes: "needs rework"}, nil
	}
	return &collab.ReviewOutcome{Verdict: models.ReviewPass, Notes: "looks good"}, nil
}

func mustRun(t *testing.T, d *Driver) *Report {
	t.Helper()
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

func TestRun_CompletesPlan(t *testing.T) {
	db := setupTestDB(t)
	seedPhase(t, db, "p1", 1, "e1", "s1", "t1", "t2")
	seedPhase(t, db, "p2", 2, "e2", "s2", "t3")
	session := startSession(t, db, 0)
	worker := &fakeWorker{}
	reviewer := &fakeReviewer{}

	d := New(db, session, worker, reviewer, Options{})
	report := mustRun(t, d)

	if report.Halt != HaltComplete {
		t.Fatalf("halt = %s, want %s", report.Halt, HaltComplete)
	}
	if len(report.Dispatched) != 3 {
		t.Errorf("dispatched %d tasks, want 3", len(report.Dispatched))
	}
	if len(report.Completed) != 3 {
		t.Errorf("completed %d tasks, want 3", len(report.Completed))
	}
	if len(report.StoriesCompleted) != 2 || len(report.EpicsCompleted) != 2 {
		t.Errorf("roll-ups = %d stories, %d epics, want 2 and 2",
			len(report.StoriesCompleted), len(report.EpicsCompleted))
	}
	// two story gates and two phase gates
	if len(report.Gates) != 4 {
		t.Errorf("recorded %d gates, want 4", len(report.Gates))
	}
	if len(report.PhasesPassed) != 2 {
		t.Errorf("phases passed = %v, want both", report.PhasesPassed)
	}

	// phase 1 work precedes phase 2 work
	if worker.calls[len(worker.calls)-1] != "t3" {
		t.Errorf("call order = %v, want t3 last", worker.calls)
	}

	loaded, err := db.GetSession(session.ID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if loaded.Status != state.SessionCompleted {
		t.Errorf("session status = %s, want %s", loaded.Status, state.SessionCompleted)
	}
	for _, id := range []string{"t1", "t2", "t3"} {
		requireTaskStatus(t, db, id, models.StatusComplete)
	}
}

func TestRun_BudgetExhausted(t *testing.T) {
	db := setupTestDB(t)
	seedPhase(t, db, "p1", 1, "e1", "s1", "t1", "t2", "t3")
	session := startSession(t, db, 2)
	worker := &fakeWorker{}

	d := New(db, session, worker, &fakeReviewer{}, Options{})
	report, err := d.Run(context.Background())
	if !errors.Is(err, ErrBudgetExhausted) {
		t.Fatalf("err = %v, want ErrBudgetExhausted", err)
	}
	if report.Halt != HaltBudgetExhausted {
		t.Errorf("halt = %s, want %s", report.Halt, HaltBudgetExhausted)
	}
	if len(report.Dispatched) != 2 {
		t.Errorf("dispatched %d tasks, want 2", len(report.Dispatched))
	}

	// the counter is on the session row, not in memory
	loaded, err := db.GetSession(session.ID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if loaded.BatchCount != 2 {
		t.Errorf("persisted batch count = %d, want 2", loaded.BatchCount)
	}
	if loaded.Status != state.SessionActive {
		t.Errorf("session status = %s, want still %s", loaded.Status, state.SessionActive)
	}
	requireTaskStatus(t, db, "t3", models.StatusPending)
}

func TestRun_BudgetPersistsAcrossRestarts(t *testing.T) {
	db := setupTestDB(t)
	seedPhase(t, db, "p1", 1, "e1", "s1", "t1", "t2", "t3")
	session := startSession(t, db, 2)

	d := New(db, session, &fakeWorker{}, &fakeReviewer{}, Options{})
	if _, err := d.Run(context.Background()); !errors.Is(err, ErrBudgetExhausted) {
		t.Fatalf("first run err = %v, want ErrBudgetExhausted", err)
	}

	// a fresh driver over the reloaded session must not get new budget
	reloaded, err := db.GetSession(session.ID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	d2 := New(db, reloaded, &fakeWorker{}, &fakeReviewer{}, Options{})
	report, err := d2.Run(context.Background())
	if !errors.Is(err, ErrBudgetExhausted) {
		t.Fatalf("second run err = %v, want ErrBudgetExhausted", err)
	}
	if len(report.Dispatched) != 0 {
		t.Errorf("second run dispatched %d tasks, want 0", len(report.Dispatched))
	}

	// only an explicit reset frees the loop to finish
	if err := d2.Budget().Reset(); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	report = mustRun(t, d2)
	if report.Halt != HaltComplete {
		t.Errorf("halt after reset = %s, want %s", report.Halt, HaltComplete)
	}
}

func TestRun_PartialVerdictSpendsBudget(t *testing.T) {
	db := setupTestDB(t)
	seedPhase(t, db, "p1", 1, "e1", "s1", "t1")
	session := startSession(t, db, 0)
	worker := &fakeWorker{onceVerdicts: map[string]models.WorkVerdict{"t1": models.WorkPartial}}

	d := New(db, session, worker, &fakeReviewer{}, Options{})
	report := mustRun(t, d)

	if report.Halt != HaltComplete {
		t.Fatalf("halt = %s, want %s", report.Halt, HaltComplete)
	}
	if len(report.Dispatched) != 2 {
		t.Errorf("dispatched %d times, want 2 (partial costs a batch)", len(report.Dispatched))
	}
	if len(report.Partial) != 1 || report.Partial[0] != "t1" {
		t.Errorf("partial = %v, want [t1]", report.Partial)
	}
	loaded, err := db.GetSession(session.ID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if loaded.BatchCount != 2 {
		t.Errorf("batch count = %d, want 2", loaded.BatchCount)
	}
	requireTaskStatus(t, db, "t1", models.StatusComplete)
}

func TestRun_BlockedTaskStalls(t *testing.T) {
	db := setupTestDB(t)
	seedPhase(t, db, "p1", 1, "e1", "s1", "t1")
	session := startSession(t, db, 0)
	worker := &fakeWorker{verdicts: map[string]models.WorkVerdict{"t1": models.WorkBlocked}}

	d := New(db, session, worker, &fakeReviewer{}, Options{})
	report := mustRun(t, d)

	if report.Halt != HaltStalled {
		t.Fatalf("halt = %s, want %s", report.Halt, HaltStalled)
	}
	if len(report.Blocked) != 1 || report.Blocked[0] != "t1" {
		t.Errorf("blocked = %v, want [t1]", report.Blocked)
	}
	// dispatched exactly once; the mask prevents a retry loop
	if len(worker.calls) != 1 {
		t.Errorf("worker called %d times, want 1", len(worker.calls))
	}
	if report.Stall == nil || len(report.Stall.Remaining) != 1 {
		t.Fatalf("stall report = %+v, want one remaining task", report.Stall)
	}
	if len(report.Stall.Remaining[0].Unmet) != 0 {
		t.Errorf("blocked task unmet = %v, want none (session mask)", report.Stall.Remaining[0].Unmet)
	}
	requireTaskStatus(t, db, "t1", models.StatusPending)
}

func TestRun_BlockedTaskDoesNotStopOthers(t *testing.T) {
	db := setupTestDB(t)
	addEpic(t, db, "e1")
	addStory(t, db, "s1", "e1")
	addStory(t, db, "s2", "e1")
	addTask(t, db, "t-blocked", "s1", "e1")
	addTask(t, db, "t-fine", "s2", "e1")
	addPhase(t, db, "p1", 1, epicRef("e1"))
	session := startSession(t, db, 0)
	worker := &fakeWorker{verdicts: map[string]models.WorkVerdict{"t-blocked": models.WorkBlocked}}
	reviewer := &fakeReviewer{}

	d := New(db, session, worker, reviewer, Options{})
	report := mustRun(t, d)

	if report.Halt != HaltStalled {
		t.Fatalf("halt = %s, want %s", report.Halt, HaltStalled)
	}
	if len(report.Completed) != 1 || report.Completed[0] != "t-fine" {
		t.Errorf("completed = %v, want [t-fine] despite the blocked sibling", report.Completed)
	}
	requireTaskStatus(t, db, "t-fine", models.StatusComplete)
	requireTaskStatus(t, db, "t-blocked", models.StatusPending)
}

func TestRun_StoryGateFailureHalts(t *testing.T) {
	db := setupTestDB(t)
	seedPhase(t, db, "p1", 1, "e1", "s1", "t1")
	session := startSession(t, db, 0)
	reviewer := &fakeReviewer{fail: map[string]bool{"s1": true}}

	d := New(db, session, &fakeWorker{}, reviewer, Options{})
	report := mustRun(t, d)

	if report.Halt != HaltGateFailed {
		t.Fatalf("halt = %s, want %s", report.Halt, HaltGateFailed)
	}
	story, err := db.GetStory("s1")
	if err != nil {
		t.Fatalf("GetStory failed: %v", err)
	}
	if story.GatePassed {
		t.Error("failed review must not set the gate flag")
	}
	reviews, err := db.ListGateReviews(models.GateStory, "s1")
	if err != nil {
		t.Fatalf("ListGateReviews failed: %v", err)
	}
	if len(reviews) != 1 || reviews[0].Verdict != models.ReviewFail {
		t.Errorf("reviews = %+v, want one recorded fail", reviews)
	}

	// a later run with a passing reviewer picks up at the gate
	d2 := New(db, session, &fakeWorker{}, &fakeReviewer{}, Options{})
	report = mustRun(t, d2)
	if report.Halt != HaltComplete {
		t.Errorf("retry halt = %s, want %s", report.Halt, HaltComplete)
	}
	reviews, err = db.ListGateReviews(models.GateStory, "s1")
	if err != nil {
		t.Fatalf("ListGateReviews failed: %v", err)
	}
	if len(reviews) != 2 {
		t.Errorf("review history = %d entries, want fail then pass", len(reviews))
	}
}

func TestRun_PhaseGateFailureHalts(t *testing.T) {
	db := setupTestDB(t)
	seedPhase(t, db, "p1", 1, "e1", "s1", "t1")
	session := startSession(t, db, 0)
	reviewer := &fakeReviewer{fail: map[string]bool{"p1": true}}

	d := New(db, session, &fakeWorker{}, reviewer, Options{})
	report := mustRun(t, d)

	if report.Halt != HaltGateFailed {
		t.Fatalf("halt = %s, want %s", report.Halt, HaltGateFailed)
	}
	phase, err := db.GetPhase("p1")
	if err != nil {
		t.Fatalf("GetPhase failed: %v", err)
	}
	if phase.GatePassed {
		t.Error("failed review must not set the phase gate flag")
	}
	if len(report.PhasesPassed) != 0 {
		t.Errorf("phases passed = %v, want none", report.PhasesPassed)
	}
}

func completeTask(t *testing.T, db *state.DB, id string) {
	t.Helper()
	if _, err := db.ApplyTaskResult(id, state.CompleteOutcome()); err != nil {
		t.Fatalf("ApplyTaskResult %s failed: %v", id, err)
	}
}

func TestRun_ResurfacesOrphan(t *testing.T) {
	db := setupTestDB(t)
	seedPhase(t, db, "p1", 1, "e1", "s1", "t1", "t2")
	completeTask(t, db, "t1")
	if err := db.MarkTaskInProgress("t2"); err != nil {
		t.Fatalf("MarkTaskInProgress failed: %v", err)
	}
	session := startSession(t, db, 0)

	d := New(db, session, &fakeWorker{}, &fakeReviewer{}, Options{})
	report := mustRun(t, d)

	if report.Halt != HaltComplete {
		t.Fatalf("halt = %s, want %s", report.Halt, HaltComplete)
	}
	if len(report.OrphansResurfaced) != 1 || report.OrphansResurfaced[0] != "t2" {
		t.Errorf("orphans = %v, want [t2]", report.OrphansResurfaced)
	}
	requireTaskStatus(t, db, "t2", models.StatusComplete)
}

func TestRun_CheckpointStopsAtCycleBoundary(t *testing.T) {
	db := setupTestDB(t)
	seedPhase(t, db, "p1", 1, "e1", "s1", "t1", "t2", "t3")
	session := startSession(t, db, 0)
	worker := &fakeWorker{}

	cycles := 0
	d := New(db, session, worker, &fakeReviewer{}, Options{
		Checkpoint: func() bool {
			cycles++
			return cycles > 1
		},
	})
	report := mustRun(t, d)

	if report.Halt != HaltCheckpoint {
		t.Fatalf("halt = %s, want %s", report.Halt, HaltCheckpoint)
	}
	if len(report.Dispatched) != 1 {
		t.Errorf("dispatched %d tasks before checkpoint, want 1", len(report.Dispatched))
	}
	// the in-flight task finished before the stop; nothing is stranded
	orphans, err := db.OrphanedTasks()
	if err != nil {
		t.Fatalf("OrphanedTasks failed: %v", err)
	}
	if len(orphans) != 0 {
		t.Errorf("orphans after checkpoint = %v, want none", orphans)
	}
}

func TestRun_MaxTasksLimit(t *testing.T) {
	db := setupTestDB(t)
	seedPhase(t, db, "p1", 1, "e1", "s1", "t1", "t2", "t3")
	session := startSession(t, db, 0)

	d := New(db, session, &fakeWorker{}, &fakeReviewer{}, Options{MaxTasks: 2})
	report := mustRun(t, d)

	if report.Halt != HaltTaskLimit {
		t.Fatalf("halt = %s, want %s", report.Halt, HaltTaskLimit)
	}
	if len(report.Dispatched) != 2 {
		t.Errorf("dispatched %d tasks, want 2", len(report.Dispatched))
	}
}

func TestRun_ContextCanceled(t *testing.T) {
	db := setupTestDB(t)
	seedPhase(t, db, "p1", 1, "e1", "s1", "t1")
	session := startSession(t, db, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := New(db, session, &fakeWorker{}, &fakeReviewer{}, Options{})
	report, err := d.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if report.Halt != HaltCanceled {
		t.Errorf("halt = %s, want %s", report.Halt, HaltCanceled)
	}
	requireTaskStatus(t, db, "t1", models.StatusPending)
}

func TestRun_PhaseScoped(t *testing.T) {
	db := setupTestDB(t)
	seedPhase(t, db, "p1", 1, "e1", "s1", "t1")
	seedPhase(t, db, "p2", 2, "e2", "s2", "t2")
	session := startSession(t, db, 0)
	worker := &fakeWorker{}

	d := New(db, session, worker, &fakeReviewer{}, Options{Phase: "p1"})
	report := mustRun(t, d)

	if report.Halt != HaltComplete {
		t.Fatalf("halt = %s, want %s", report.Halt, HaltComplete)
	}
	if len(worker.calls) != 1 || worker.calls[0] != "t1" {
		t.Errorf("worker calls = %v, want only t1", worker.calls)
	}
	requireTaskStatus(t, db, "t2", models.StatusPending)
}

func TestRun_ZeroTaskStoryStallsInsteadOfSpinning(t *testing.T) {
	db := setupTestDB(t)
	addEpic(t, db, "e1")
	addStory(t, db, "s1", "e1")
	addStory(t, db, "s-empty", "e1")
	addTask(t, db, "t1", "s1", "e1")
	addPhase(t, db, "p1", 1, epicRef("e1"))
	session := startSession(t, db, 0)
	worker := &fakeWorker{}
	reviewer := &fakeReviewer{}

	d := New(db, session, worker, reviewer, Options{})
	report := mustRun(t, d)

	// the empty story can never complete, so the phase gate is out of
	// reach and the loop must halt rather than cycle forever
	if report.Halt != HaltStalled {
		t.Fatalf("halt = %s, want %s", report.Halt, HaltStalled)
	}
	if len(worker.calls) != 1 {
		t.Errorf("worker called %d times, want 1", len(worker.calls))
	}
	phase, err := db.GetPhase("p1")
	if err != nil {
		t.Fatalf("GetPhase failed: %v", err)
	}
	if phase.GatePassed {
		t.Error("phase gate must stay unset while a story is incomplete")
	}
}

func TestRun_WorkerErrorReopensTask(t *testing.T) {
	db := setupTestDB(t)
	seedPhase(t, db, "p1", 1, "e1", "s1", "t1")
	session := startSession(t, db, 0)
	worker := &fakeWorker{errs: map[string]error{"t1": errors.New("api timeout")}}

	d := New(db, session, worker, &fakeReviewer{}, Options{})
	_, err := d.Run(context.Background())
	if err == nil {
		t.Fatal("Run should surface the worker error")
	}
	requireTaskStatus(t, db, "t1", models.StatusPending)
}

func TestRun_GateReviewsSeeTaskContext(t *testing.T) {
	db := setupTestDB(t)
	seedPhase(t, db, "p1", 1, "e1", "s1", "t1")
	session := startSession(t, db, 0)
	reviewer := &fakeReviewer{}

	d := New(db, session, &fakeWorker{}, reviewer, Options{})
	mustRun(t, d)

	want := []string{"story:s1", "phase:p1"}
	if len(reviewer.calls) != len(want) {
		t.Fatalf("reviewer calls = %v, want %v", reviewer.calls, want)
	}
	for i, call := range want {
		if reviewer.calls[i] != call {
			t.Errorf("reviewer call %d = %s, want %s", i, reviewer.calls[i], call)
		}
	}
}

func TestBudgetTracker(t *testing.T) {
	db := setupTestDB(t)
	session := startSession(t, db, 3)
	b := NewBudgetTracker(db, session)

	if b.OverBudget() {
		t.Error("fresh tracker should not be over budget")
	}
	if got := b.Remaining(); got != 3 {
		t.Errorf("remaining = %d, want 3", got)
	}

	for i := 1; i <= 3; i++ {
		count, err := b.Increment()
		if err != nil {
			t.Fatalf("Increment failed: %v", err)
		}
		if count != i {
			t.Errorf("count = %d, want %d", count, i)
		}
	}
	if !b.OverBudget() {
		t.Error("tracker should be over budget at count == budget")
	}
	if got := b.Remaining(); got != 0 {
		t.Errorf("remaining = %d, want 0", got)
	}

	if err := b.Reset(); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if b.OverBudget() {
		t.Error("reset tracker should not be over budget")
	}
	loaded, err := db.GetSession(session.ID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if loaded.BatchCount != 0 {
		t.Errorf("persisted count after reset = %d, want 0", loaded.BatchCount)
	}
}

func TestBudgetTracker_ZeroBudgetIsUnlimited(t *testing.T) {
	db := setupTestDB(t)
	session := startSession(t, db, 0)
	b := NewBudgetTracker(db, session)

	for i := 0; i < 20; i++ {
		if _, err := b.Increment(); err != nil {
			t.Fatalf("Increment failed: %v", err)
		}
	}
	if b.OverBudget() {
		t.Error("zero budget must never exhaust")
	}
	if got := b.Remaining(); got != -1 {
		t.Errorf("remaining = %d, want -1 for unlimited", got)
	}
}

func TestDebugLogger_NopSafety(t *testing.T) {
	var nilLogger *DebugLogger
	nilLogger.Log("should not panic")
	if err := nilLogger.Close(); err != nil {
		t.Errorf("nil Close returned %v", err)
	}

	nop := NopLogger()
	nop.Log("also fine")
	if err := nop.Close(); err != nil {
		t.Errorf("nop Close returned %v", err)
	}
}

func TestDebugLogger_WritesToProjectDir(t *testing.T) {
	root := t.TempDir()
	logger := NewDebugLoggerForProject(root)
	logger.Log("dispatch %s", "t1")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(root, ".gantry", "logs", "driver-debug.log"))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "Driver Debug Log Started") {
		t.Errorf("log missing header:\n%s", content)
	}
	if !strings.Contains(content, "dispatch t1") {
		t.Errorf("log missing message:\n%s", content)
	}
}
