// Package driver runs the dispatch loop that moves a plan forward. Each
// cycle re-detects where the current phase stands, resurfaces interrupted
// tasks, runs whichever gate is due, and otherwise dispatches the next
// eligible task to the worker. Every state change lands in the store
// before the next cycle starts, so killing the process between cycles
// loses nothing.
package driver

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/gantrylabs/gantry/internal/collab"
	"github.com/gantrylabs/gantry/internal/gate"
	"github.com/gantrylabs/gantry/internal/resolver"
	"github.com/gantrylabs/gantry/internal/resume"
	"github.com/gantrylabs/gantry/internal/state"
	"github.com/gantrylabs/gantry/pkg/models"
)

// Options configures a run.
type Options struct {
	// Phase restricts the run to a single phase ID. Empty runs every
	// phase in sequence order.
	Phase string
	// MaxTasks stops the run after this many dispatches; 0 means no cap.
	MaxTasks int
	// Checkpoint is polled once per cycle. Returning true stops the run
	// at the next cycle boundary.
	Checkpoint func() bool
	// Logger receives debug traces. Nil disables them.
	Logger *DebugLogger
}

// Driver owns one session's dispatch loop. It never runs more than one
// task at a time, which is what lets the resume detector treat any
// in_progress row as an interruption leftover.
type Driver struct {
	db       *state.DB
	session  *state.Session
	worker   collab.Worker
	reviewer collab.Reviewer

	resolver *resolver.Resolver
	detector *resume.Detector
	gates    *gate.Controller
	budget   *BudgetTracker
	logger   *DebugLogger
	opts     Options

	// skip holds task IDs the worker declared blocked; the resolver
	// masks them for the rest of the session so other work can proceed.
	skip map[string]bool

	// lastExhaustedPhase guards against spinning when a phase has no
	// pending tasks but cannot advance through its gates either.
	lastExhaustedPhase string
}

// New assembles a driver around an open store and an active session.
func New(db *state.DB, session *state.Session, worker collab.Worker, reviewer collab.Reviewer, opts Options) *Driver {
	logger := opts.Logger
	if logger == nil {
		logger = NopLogger()
	}
	return &Driver{
		db:       db,
		session:  session,
		worker:   worker,
		reviewer: reviewer,
		resolver: resolver.New(db),
		detector: resume.New(db),
		gates:    gate.New(db),
		budget:   NewBudgetTracker(db, session),
		logger:   logger,
		opts:     opts,
		skip:     make(map[string]bool),
	}
}

// Budget exposes the session's budget tracker.
func (d *Driver) Budget() *BudgetTracker {
	return d.budget
}

// Run executes dispatch cycles until the plan completes or something
// stops it. The report comes back in every case. The error is non-nil
// for infrastructure failures, context cancellation, and budget
// exhaustion (ErrBudgetExhausted); ordinary halts like a failed gate or
// a stall return a nil error with the reason in the report.
func (d *Driver) Run(ctx context.Context) (*Report, error) {
	report := &Report{SessionID: d.session.ID}
	count, budget := d.budget.Usage()
	d.logger.Log("[driver.Run] session=%s batch=%d/%d phase=%q maxTasks=%d",
		d.session.ID, count, budget, d.opts.Phase, d.opts.MaxTasks)

	for {
		select {
		case <-ctx.Done():
			report.Halt = HaltCanceled
			report.HaltDetail = ctx.Err().Error()
			return report, ctx.Err()
		default:
		}

		if d.opts.Checkpoint != nil && d.opts.Checkpoint() {
			d.logger.Log("[driver.Run] checkpoint requested, stopping")
			report.Halt = HaltCheckpoint
			return report, nil
		}

		if d.budget.OverBudget() {
			count, budget := d.budget.Usage()
			d.logger.Log("[driver.Run] budget exhausted (%d/%d)", count, budget)
			report.Halt = HaltBudgetExhausted
			report.HaltDetail = fmt.Sprintf("%d of %d batches used", count, budget)
			return report, ErrBudgetExhausted
		}

		det, err := d.nextDetection()
		if err != nil {
			return report, err
		}
		if det == nil {
			d.logger.Log("[driver.Run] all phases complete")
			report.Halt = HaltComplete
			if err := d.db.FinishSession(d.session.ID, state.SessionCompleted); err != nil {
				return report, err
			}
			return report, nil
		}

		d.logger.Log("[driver.cycle] phase=%s status=%s action=%s tasks=%d/%d",
			det.Phase.ID, det.Status, det.Action, det.Tasks.Terminal(), det.Tasks.Total())

		switch det.Action {
		case resume.ActionStartFresh, resume.ActionFindNextTask:
			halted, err := d.dispatchNext(ctx, det, report)
			if halted || err != nil {
				return report, err
			}

		case resume.ActionResumeOrphan, resume.ActionResumeMixed:
			if err := d.resurfaceOrphans(det, report); err != nil {
				return report, err
			}

		case resume.ActionRunStoryGate:
			halted, err := d.runStoryGates(ctx, det, report)
			if halted || err != nil {
				return report, err
			}

		case resume.ActionRunPhaseGate:
			halted, err := d.runPhaseGate(ctx, det, report)
			if halted || err != nil {
				return report, err
			}

		default:
			return report, fmt.Errorf("unexpected resume action %q for phase %s", det.Action, det.Phase.ID)
		}
	}
}

// nextDetection finds the first phase, in sequence order, that still
// needs attention. Returns nil when every phase is already complete.
func (d *Driver) nextDetection() (*resume.Detection, error) {
	if d.opts.Phase != "" {
		det, err := d.detector.Detect(d.opts.Phase)
		if err != nil {
			return nil, err
		}
		if det.Action == resume.ActionAlreadyComplete {
			return nil, nil
		}
		return det, nil
	}

	phases, err := d.db.ListPhases()
	if err != nil {
		return nil, err
	}
	for _, p := range phases {
		det, err := d.detector.Detect(p.ID)
		if err != nil {
			return nil, err
		}
		if det.Action != resume.ActionAlreadyComplete {
			return det, nil
		}
	}
	return nil, nil
}

// resurfaceOrphans returns interrupted tasks to pending so the resolver
// can hand them out again.
func (d *Driver) resurfaceOrphans(det *resume.Detection, report *Report) error {
	for _, t := range det.Orphans {
		if err := d.db.ReopenTask(t.ID); err != nil {
			return fmt.Errorf("reopen orphan %s: %w", t.ID, err)
		}
		log.Printf("RESUME: task %s (%s) was interrupted mid-run; returning it to pending", t.ID, t.Title)
		d.logger.Log("[driver.orphan] reopened %s", t.ID)
		report.OrphansResurfaced = append(report.OrphansResurfaced, t.ID)
	}
	d.lastExhaustedPhase = ""
	return nil
}

// runStoryGates reviews every story in the phase that finished its tasks
// but has not passed review yet. A failed review halts the run so the
// operator can rework the story before retrying.
func (d *Driver) runStoryGates(ctx context.Context, det *resume.Detection, report *Report) (bool, error) {
	for i := range det.PendingGates {
		story := det.PendingGates[i]
		tasks, err := d.db.ListTasksByStory(story.ID)
		if err != nil {
			return false, err
		}

		outcome, err := d.reviewer.Review(ctx, collab.ReviewRequest{
			Scope: models.GateStory,
			Story: &story,
			Tasks: tasks,
		})
		if err != nil {
			return false, fmt.Errorf("review story %s: %w", story.ID, err)
		}

		res, err := d.gates.RunStoryGate(story.ID, outcome.Verdict, outcome.Notes)
		if err != nil {
			return false, err
		}
		report.recordGate(*res)
		d.lastExhaustedPhase = ""
		d.logger.Log("[driver.gate] story=%s verdict=%s", story.ID, outcome.Verdict)

		if !res.Passed {
			log.Printf("GATE: story %s failed review; halting for rework", story.ID)
			report.Halt = HaltGateFailed
			report.HaltDetail = fmt.Sprintf("story %s failed review", story.ID)
			return true, nil
		}
	}
	return false, nil
}

// runPhaseGate reviews the phase exit criteria once every member story
// has completed and passed its own gate.
func (d *Driver) runPhaseGate(ctx context.Context, det *resume.Detection, report *Report) (bool, error) {
	stories, err := d.db.PhaseStories(det.Phase.ID)
	if err != nil {
		return false, err
	}

	outcome, err := d.reviewer.Review(ctx, collab.ReviewRequest{
		Scope:   models.GatePhase,
		Phase:   &det.Phase,
		Stories: stories,
	})
	if err != nil {
		return false, fmt.Errorf("review phase %s: %w", det.Phase.ID, err)
	}

	res, err := d.gates.RunPhaseGate(det.Phase.ID, outcome.Verdict, outcome.Notes)
	if err != nil {
		return false, err
	}
	report.recordGate(*res)
	d.lastExhaustedPhase = ""
	d.logger.Log("[driver.gate] phase=%s verdict=%s", det.Phase.ID, outcome.Verdict)

	if !res.Passed {
		log.Printf("GATE: phase %s failed review; halting for rework", det.Phase.ID)
		report.Halt = HaltGateFailed
		report.HaltDetail = fmt.Sprintf("phase %s failed review", det.Phase.ID)
		return true, nil
	}

	report.PhasesPassed = append(report.PhasesPassed, det.Phase.ID)
	return false, nil
}

// dispatchNext resolves the next eligible task, sends it to the worker,
// and applies the verdict. Partial work returns to pending with the
// budget still spent; blocked work is additionally masked for the rest
// of the session.
func (d *Driver) dispatchNext(ctx context.Context, det *resume.Detection, report *Report) (bool, error) {
	phaseID := det.Phase.ID
	task, err := d.resolver.NextEligibleTask(phaseID, d.skip)
	if errors.Is(err, resolver.ErrNoEligibleTask) {
		return d.handleExhaustion(phaseID, report)
	}
	if err != nil {
		return false, err
	}
	d.lastExhaustedPhase = ""

	if err := d.db.MarkTaskInProgress(task.ID); err != nil {
		return false, err
	}
	count, err := d.budget.Increment()
	if err != nil {
		return false, err
	}
	_, budget := d.budget.Usage()
	report.Dispatched = append(report.Dispatched, task.ID)
	d.logger.Log("[driver.dispatch] task=%s batch=%d/%d", task.ID, count, budget)

	assignment, err := d.buildAssignment(task)
	if err != nil {
		return false, err
	}

	outcome, err := d.worker.Execute(ctx, *assignment)
	if err != nil {
		// Put the task back so a clean API failure doesn't strand an
		// in_progress row for the next run to treat as an orphan.
		if reopenErr := d.db.ReopenTask(task.ID); reopenErr != nil {
			d.logger.Log("[driver.dispatch] reopen after worker error failed: %v", reopenErr)
		}
		return false, fmt.Errorf("execute task %s: %w", task.ID, err)
	}

	switch outcome.Verdict {
	case models.WorkComplete:
		res, err := d.db.ApplyTaskResult(task.ID, state.CompleteOutcome())
		if err != nil {
			return false, err
		}
		report.Completed = append(report.Completed, task.ID)
		if res.StoryCompleted != "" {
			report.StoriesCompleted = append(report.StoriesCompleted, res.StoryCompleted)
			d.logger.Log("[driver.cascade] story %s complete", res.StoryCompleted)
		}
		if res.EpicCompleted != "" {
			report.EpicsCompleted = append(report.EpicsCompleted, res.EpicCompleted)
			d.logger.Log("[driver.cascade] epic %s complete", res.EpicCompleted)
		}

	case models.WorkPartial:
		if err := d.db.ReopenTask(task.ID); err != nil {
			return false, err
		}
		report.Partial = append(report.Partial, task.ID)
		d.logger.Log("[driver.dispatch] task %s partial, returned to pending", task.ID)

	case models.WorkBlocked:
		if err := d.db.ReopenTask(task.ID); err != nil {
			return false, err
		}
		d.skip[task.ID] = true
		report.Blocked = append(report.Blocked, task.ID)
		log.Printf("BLOCKED: task %s cannot proceed (%s); masked for this session", task.ID, firstLine(outcome.Summary))
		d.logger.Log("[driver.dispatch] task %s blocked, masked for session", task.ID)

	default:
		return false, fmt.Errorf("worker returned unknown verdict %q for task %s", outcome.Verdict, task.ID)
	}

	if d.opts.MaxTasks > 0 && len(report.Dispatched) >= d.opts.MaxTasks {
		d.logger.Log("[driver.Run] task limit %d reached", d.opts.MaxTasks)
		report.Halt = HaltTaskLimit
		report.HaltDetail = fmt.Sprintf("%d tasks dispatched", len(report.Dispatched))
		return true, nil
	}
	return false, nil
}

// handleExhaustion decides what a no-eligible-task result means. Blocked
// pending work is a stall the operator must resolve. A drained phase
// normally advances through its gates on the next cycle; if the same
// phase drains twice with no progress in between, nothing can move it
// and the run halts rather than spin.
func (d *Driver) handleExhaustion(phaseID string, report *Report) (bool, error) {
	exh, err := d.resolver.Exhaustion(phaseID)
	if err != nil {
		return false, err
	}

	if !exh.Exhausted() {
		log.Printf("STALL: %d pending tasks in phase %s but none dispatchable", len(exh.Remaining), phaseID)
		report.Halt = HaltStalled
		report.HaltDetail = fmt.Sprintf("phase %s has %d undispatchable pending tasks", phaseID, len(exh.Remaining))
		report.Stall = exh
		return true, nil
	}

	if d.lastExhaustedPhase == phaseID {
		report.Halt = HaltStalled
		report.HaltDetail = fmt.Sprintf("phase %s has no pending tasks and cannot advance", phaseID)
		report.Stall = exh
		return true, nil
	}
	d.lastExhaustedPhase = phaseID
	return false, nil
}

func (d *Driver) buildAssignment(task *models.Task) (*collab.Assignment, error) {
	story, err := d.db.GetStory(task.StoryID)
	if err != nil {
		return nil, err
	}
	epic, err := d.db.GetEpic(task.EpicID)
	if err != nil {
		return nil, err
	}
	return &collab.Assignment{Task: *task, Story: *story, Epic: *epic}, nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return strings.TrimSpace(s)
}
