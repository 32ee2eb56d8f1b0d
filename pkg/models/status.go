package models

// Status represents the lifecycle state of a work item.
type Status string

const (
	// StatusPending indicates the item has not started.
	StatusPending Status = "pending"
	// StatusInProgress indicates the item is being worked on.
	StatusInProgress Status = "in_progress"
	// StatusComplete indicates the item finished successfully.
	StatusComplete Status = "complete"
	// StatusSkipped indicates the item was deliberately not done.
	StatusSkipped Status = "skipped"
)

// Valid returns true if the status is a known value.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusComplete, StatusSkipped:
		return true
	default:
		return false
	}
}

// Terminal returns true for statuses that end an item's lifecycle.
// A skipped item satisfies dependents the same way a complete one does.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusSkipped
}

// PhaseStatus is the derived state of a phase. It is computed from the
// statuses and gate flags of the phase's members and is never stored.
type PhaseStatus string

const (
	// PhaseNotStarted indicates no member task has left pending.
	PhaseNotStarted PhaseStatus = "not_started"
	// PhaseInProgress indicates member tasks are underway.
	PhaseInProgress PhaseStatus = "in_progress"
	// PhaseTestsWritten indicates every member task is terminal but at
	// least one story review gate has not passed.
	PhaseTestsWritten PhaseStatus = "tests_written"
	// PhaseGatePending indicates all story gates passed and the phase
	// awaits its own review gate.
	PhaseGatePending PhaseStatus = "gate_pending"
	// PhaseComplete indicates the phase gate passed.
	PhaseComplete PhaseStatus = "complete"
)

// Valid returns true if the phase status is a known value.
func (s PhaseStatus) Valid() bool {
	switch s {
	case PhaseNotStarted, PhaseInProgress, PhaseTestsWritten, PhaseGatePending, PhaseComplete:
		return true
	default:
		return false
	}
}

// Priority represents the scheduling priority of an epic or story.
type Priority string

const (
	// PriorityHigh schedules before medium and low.
	PriorityHigh Priority = "high"
	// PriorityMedium is the default priority.
	PriorityMedium Priority = "medium"
	// PriorityLow schedules last.
	PriorityLow Priority = "low"
)

// Valid returns true if the priority is a known value.
func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	default:
		return false
	}
}

// Rank returns the sort rank for the priority, lower first.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	case PriorityLow:
		return 2
	default:
		return 3
	}
}
