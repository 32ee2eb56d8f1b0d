package driver

import (
	"github.com/gantrylabs/gantry/internal/gate"
	"github.com/gantrylabs/gantry/internal/resolver"
)

// HaltReason explains why a run stopped.
type HaltReason string

const (
	// HaltComplete means every phase in the run's scope finished and
	// passed its gate.
	HaltComplete HaltReason = "complete"
	// HaltBudgetExhausted means the session's batch budget ran out.
	HaltBudgetExhausted HaltReason = "budget_exhausted"
	// HaltCheckpoint means an operator checkpoint request stopped the run.
	HaltCheckpoint HaltReason = "checkpoint"
	// HaltCanceled means the context was canceled mid-run.
	HaltCanceled HaltReason = "canceled"
	// HaltGateFailed means a story or phase gate review failed.
	HaltGateFailed HaltReason = "gate_failed"
	// HaltStalled means pending tasks remain but none can be dispatched.
	HaltStalled HaltReason = "stalled"
	// HaltTaskLimit means the run hit its per-invocation task cap.
	HaltTaskLimit HaltReason = "task_limit"
)

// Report accumulates what a run did and why it stopped. The driver fills
// it in as the loop progresses and returns it even on early halts, so the
// caller always has the full picture.
type Report struct {
	SessionID string `json:"session_id"`

	// Dispatched lists every task sent to the worker, in order.
	Dispatched []string `json:"dispatched,omitempty"`
	// Completed lists tasks the worker finished.
	Completed []string `json:"completed,omitempty"`
	// Partial lists tasks returned to pending after a partial verdict.
	Partial []string `json:"partial,omitempty"`
	// Blocked lists tasks the worker declared blocked this run.
	Blocked []string `json:"blocked,omitempty"`

	// StoriesCompleted and EpicsCompleted record cascade roll-ups.
	StoriesCompleted []string `json:"stories_completed,omitempty"`
	EpicsCompleted   []string `json:"epics_completed,omitempty"`

	// Gates records every gate review run, pass or fail.
	Gates []gate.Result `json:"gates,omitempty"`

	// OrphansResurfaced lists interrupted tasks returned to pending.
	OrphansResurfaced []string `json:"orphans_resurfaced,omitempty"`

	// PhasesPassed lists phases whose gate passed during this run.
	PhasesPassed []string `json:"phases_passed,omitempty"`

	Halt       HaltReason `json:"halt"`
	HaltDetail string     `json:"halt_detail,omitempty"`

	// Stall carries the resolver's exhaustion report when the run halted
	// because pending tasks exist but none are dispatchable.
	Stall *resolver.Report `json:"stall,omitempty"`
}

// BatchCount returns how many dispatch cycles this run consumed.
func (r *Report) BatchCount() int {
	return len(r.Dispatched)
}

func (r *Report) recordGate(res gate.Result) {
	r.Gates = append(r.Gates, res)
}
