package resume

import (
	"errors"
	"path/filepath"
	"testing"

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

func completeTask(t *testing.T, db *state.DB, id string) {
	t.Helper()
	if _, err := db.ApplyTaskResult(id, state.CompleteOutcome()); err != nil {
		t.Fatalf("ApplyTaskResult %s failed: %v", id, err)
	}
}

func passGate(t *testing.T, db *state.DB, scope models.GateScope, targetID string) {
	t.Helper()
	if _, err := db.RecordGateOutcome(scope, targetID, models.ReviewPass, ""); err != nil {
		t.Fatalf("RecordGateOutcome %s failed: %v", targetID, err)
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

func TestDetect_StartFresh(t *testing.T) {
	db := setupTestDB(t)
	seedPhase(t, db, "p1", 1, "e1", "s1", "t1", "t2")
	d := New(db)

	det, err := d.Detect("p1")
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if det.Action != ActionStartFresh {
		t.Errorf("action = %s, want %s", det.Action, ActionStartFresh)
	}
	if det.Status != models.PhaseNotStarted {
		t.Errorf("status = %s, want %s", det.Status, models.PhaseNotStarted)
	}
	if det.Tasks.Pending != 2 {
		t.Errorf("pending = %d, want 2", det.Tasks.Pending)
	}
}

func TestDetect_AlreadyComplete(t *testing.T) {
	db := setupTestDB(t)
	seedPhase(t, db, "p1", 1, "e1", "s1", "t1")
	completeTask(t, db, "t1")
	passGate(t, db, models.GateStory, "s1")
	passGate(t, db, models.GatePhase, "p1")
	d := New(db)

	det, err := d.Detect("p1")
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if det.Action != ActionAlreadyComplete {
		t.Errorf("action = %s, want %s", det.Action, ActionAlreadyComplete)
	}
	if det.Status != models.PhaseComplete {
		t.Errorf("status = %s, want %s", det.Status, models.PhaseComplete)
	}
}

func TestDetect_ResumeOrphan(t *testing.T) {
	db := setupTestDB(t)
	seedPhase(t, db, "p1", 1, "e1", "s1", "t1", "t2")
	if err := db.MarkTaskInProgress("t1"); err != nil {
		t.Fatalf("MarkTaskInProgress failed: %v", err)
	}
	d := New(db)

	det, err := d.Detect("p1")
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if det.Action != ActionResumeOrphan {
		t.Errorf("action = %s, want %s", det.Action, ActionResumeOrphan)
	}
	if det.Status != models.PhaseInProgress {
		t.Errorf("status = %s, want %s", det.Status, models.PhaseInProgress)
	}
	if len(det.Orphans) != 1 || det.Orphans[0].ID != "t1" {
		t.Errorf("orphans = %v, want [t1]", det.Orphans)
	}
}

func TestDetect_ResumeMixed(t *testing.T) {
	db := setupTestDB(t)
	addEpic(t, db, "e1")
	addStory(t, db, "s1", "e1")
	addStory(t, db, "s2", "e1")
	addTask(t, db, "t1", "s1", "e1")
	addTask(t, db, "t2", "s2", "e1")
	addPhase(t, db, "p1", 1, epicRef("e1"))

	completeTask(t, db, "t1") // s1 completes, gate still pending
	if err := db.MarkTaskInProgress("t2"); err != nil {
		t.Fatalf("MarkTaskInProgress failed: %v", err)
	}
	d := New(db)

	det, err := d.Detect("p1")
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if det.Action != ActionResumeMixed {
		t.Errorf("action = %s, want %s", det.Action, ActionResumeMixed)
	}
	if len(det.Orphans) != 1 || len(det.PendingGates) != 1 {
		t.Errorf("orphans = %v, pending gates = %v, want one of each", det.Orphans, det.PendingGates)
	}
}

func TestDetect_RunStoryGate(t *testing.T) {
	db := setupTestDB(t)
	seedPhase(t, db, "p1", 1, "e1", "s1", "t1", "t2")
	completeTask(t, db, "t1")
	completeTask(t, db, "t2")
	d := New(db)

	det, err := d.Detect("p1")
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if det.Action != ActionRunStoryGate {
		t.Errorf("action = %s, want %s", det.Action, ActionRunStoryGate)
	}
	if det.Status != models.PhaseTestsWritten {
		t.Errorf("status = %s, want %s", det.Status, models.PhaseTestsWritten)
	}
	if len(det.PendingGates) != 1 || det.PendingGates[0].ID != "s1" {
		t.Errorf("pending gates = %v, want [s1]", det.PendingGates)
	}
}

func TestDetect_SkippedTasksCountAsTerminal(t *testing.T) {
	db := setupTestDB(t)
	seedPhase(t, db, "p1", 1, "e1", "s1", "t1", "t2")
	completeTask(t, db, "t1")
	if _, err := db.ApplyTaskResult("t2", state.SkipOutcome("cut from scope")); err != nil {
		t.Fatalf("ApplyTaskResult failed: %v", err)
	}
	d := New(db)

	det, err := d.Detect("p1")
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if det.Action != ActionRunStoryGate {
		t.Errorf("action = %s, want %s after skip", det.Action, ActionRunStoryGate)
	}
}

func TestDetect_RunPhaseGate(t *testing.T) {
	db := setupTestDB(t)
	seedPhase(t, db, "p1", 1, "e1", "s1", "t1")
	completeTask(t, db, "t1")
	passGate(t, db, models.GateStory, "s1")
	d := New(db)

	det, err := d.Detect("p1")
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if det.Action != ActionRunPhaseGate {
		t.Errorf("action = %s, want %s", det.Action, ActionRunPhaseGate)
	}
	if det.Status != models.PhaseGatePending {
		t.Errorf("status = %s, want %s", det.Status, models.PhaseGatePending)
	}
}

func TestDetect_FindNextTask(t *testing.T) {
	db := setupTestDB(t)
	seedPhase(t, db, "p1", 1, "e1", "s1", "t1", "t2")
	completeTask(t, db, "t1")
	d := New(db)

	det, err := d.Detect("p1")
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if det.Action != ActionFindNextTask {
		t.Errorf("action = %s, want %s", det.Action, ActionFindNextTask)
	}
	if det.Status != models.PhaseInProgress {
		t.Errorf("status = %s, want %s", det.Status, models.PhaseInProgress)
	}
}

func TestDetect_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := state.Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := db.Migrate(); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	seedPhase(t, db, "p1", 1, "e1", "s1", "t1", "t2")
	if err := db.MarkTaskInProgress("t1"); err != nil {
		t.Fatalf("MarkTaskInProgress failed: %v", err)
	}

	// Simulate the process dying mid-task.
	if err := db.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	db, err = state.Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}

	det, err := New(db).Detect("p1")
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if det.Action != ActionResumeOrphan {
		t.Errorf("action = %s, want %s after restart", det.Action, ActionResumeOrphan)
	}
	if len(det.Orphans) != 1 || det.Orphans[0].ID != "t1" {
		t.Errorf("orphans = %v, want [t1]", det.Orphans)
	}
}

func TestDetect_PhaseGateFailureStaysPending(t *testing.T) {
	db := setupTestDB(t)
	seedPhase(t, db, "p1", 1, "e1", "s1", "t1")
	completeTask(t, db, "t1")
	passGate(t, db, models.GateStory, "s1")
	if _, err := db.RecordGateOutcome(models.GatePhase, "p1", models.ReviewFail, "entry criteria unmet"); err != nil {
		t.Fatalf("RecordGateOutcome failed: %v", err)
	}
	d := New(db)

	det, err := d.Detect("p1")
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if det.Action != ActionRunPhaseGate {
		t.Errorf("action = %s, want %s after a failed review", det.Action, ActionRunPhaseGate)
	}
	if det.Status != models.PhaseGatePending {
		t.Errorf("status = %s, want %s", det.Status, models.PhaseGatePending)
	}
}

func TestDetect_ZeroTaskStoryBlocksPhaseGate(t *testing.T) {
	db := setupTestDB(t)
	addEpic(t, db, "e1")
	addStory(t, db, "s1", "e1")
	addStory(t, db, "s0", "e1") // no tasks, never auto-completes
	addTask(t, db, "t1", "s1", "e1")
	addPhase(t, db, "p1", 1, epicRef("e1"))
	completeTask(t, db, "t1")
	passGate(t, db, models.GateStory, "s1")
	d := New(db)

	det, err := d.Detect("p1")
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if det.Action != ActionFindNextTask {
		t.Errorf("action = %s, want %s while a story has no terminal tasks", det.Action, ActionFindNextTask)
	}
	if det.StoriesComplete != 1 || det.StoriesTotal != 2 {
		t.Errorf("stories = %d/%d, want 1/2 complete", det.StoriesComplete, det.StoriesTotal)
	}
}

func TestDetect_EmptyPhaseGoesToGate(t *testing.T) {
	db := setupTestDB(t)
	addPhase(t, db, "p1", 1)
	d := New(db)

	det, err := d.Detect("p1")
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if det.Action != ActionRunPhaseGate {
		t.Errorf("action = %s, want %s for a memberless phase", det.Action, ActionRunPhaseGate)
	}
	if det.Status != models.PhaseGatePending {
		t.Errorf("status = %s, want %s", det.Status, models.PhaseGatePending)
	}
}

func TestDetect_UnknownPhase(t *testing.T) {
	db := setupTestDB(t)
	d := New(db)

	_, err := d.Detect("ghost")
	if !errors.Is(err, state.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestDetectAll(t *testing.T) {
	db := setupTestDB(t)
	seedPhase(t, db, "p2", 2, "e2", "s2", "t2")
	seedPhase(t, db, "p1", 1, "e1", "s1", "t1")
	completeTask(t, db, "t1")
	d := New(db)

	all, err := d.DetectAll()
	if err != nil {
		t.Fatalf("DetectAll failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("detections = %d, want 2", len(all))
	}
	if all[0].Phase.ID != "p1" || all[1].Phase.ID != "p2" {
		t.Errorf("order = [%s %s], want [p1 p2]", all[0].Phase.ID, all[1].Phase.ID)
	}
	if all[0].Action != ActionRunStoryGate {
		t.Errorf("p1 action = %s, want %s", all[0].Action, ActionRunStoryGate)
	}
	if all[1].Action != ActionStartFresh {
		t.Errorf("p2 action = %s, want %s", all[1].Action, ActionStartFresh)
	}
}
