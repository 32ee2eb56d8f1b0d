package models

// WorkVerdict is a worker's report on a dispatched task.
type WorkVerdict string

const (
	// WorkComplete means the acceptance criteria are met.
	WorkComplete WorkVerdict = "complete"
	// WorkPartial means progress was made but the task is not done;
	// it returns to pending for another dispatch.
	WorkPartial WorkVerdict = "partial"
	// WorkBlocked means the worker cannot proceed; the task is set
	// aside for the rest of the session and surfaced to the operator.
	WorkBlocked WorkVerdict = "blocked"
)

// Valid returns true if the verdict is a known value.
func (v WorkVerdict) Valid() bool {
	switch v {
	case WorkComplete, WorkPartial, WorkBlocked:
		return true
	default:
		return false
	}
}

// ReviewVerdict is the outcome of a story or phase review gate.
type ReviewVerdict string

const (
	// ReviewPass permits the gated story or phase to move on.
	ReviewPass ReviewVerdict = "pass"
	// ReviewFail keeps the gate closed; the failure is recorded and the
	// gate must be retried after rework.
	ReviewFail ReviewVerdict = "fail"
)

// Valid returns true if the verdict is a known value.
func (v ReviewVerdict) Valid() bool {
	switch v {
	case ReviewPass, ReviewFail:
		return true
	default:
		return false
	}
}

// GateScope distinguishes story gates from phase gates in the review log.
type GateScope string

const (
	// GateStory is a story-level review.
	GateStory GateScope = "story"
	// GatePhase is a phase-level review.
	GatePhase GateScope = "phase"
)

// Valid returns true if the scope is a known value.
func (s GateScope) Valid() bool {
	switch s {
	case GateStory, GatePhase:
		return true
	default:
		return false
	}
}
