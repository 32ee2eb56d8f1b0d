package driver

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gantrylabs/gantry/internal/state"
)

// ErrBudgetExhausted is returned when a session has consumed its batch
// budget. Callers should checkpoint and surface a resume hint rather than
// treat this as a failure.
var ErrBudgetExhausted = errors.New("batch budget exhausted")

// BudgetTracker bounds how many dispatch cycles a session may consume.
// The counter lives on the session row, so it survives process restarts;
// only an explicit reset zeroes it.
type BudgetTracker struct {
	mu        sync.Mutex
	db        *state.DB
	sessionID string
	budget    int
	count     int
}

// NewBudgetTracker creates a tracker bound to the session. The starting
// count comes from the session row, not from zero.
func NewBudgetTracker(db *state.DB, session *state.Session) *BudgetTracker {
	return &BudgetTracker{
		db:        db,
		sessionID: session.ID,
		budget:    session.BatchBudget,
		count:     session.BatchCount,
	}
}

// Increment burns one dispatch cycle and returns the new count.
func (b *BudgetTracker) Increment() (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	count, err := b.db.IncrementBatchCount(b.sessionID)
	if err != nil {
		return 0, fmt.Errorf("session %s: %w", b.sessionID, err)
	}
	b.count = count
	return count, nil
}

// OverBudget reports whether the session has used up its budget. A budget
// of zero or less means unlimited.
func (b *BudgetTracker) OverBudget() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.budget <= 0 {
		return false
	}
	return b.count >= b.budget
}

// Remaining returns how many dispatch cycles are left, or -1 when the
// budget is unlimited.
func (b *BudgetTracker) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.budget <= 0 {
		return -1
	}
	left := b.budget - b.count
	if left < 0 {
		return 0
	}
	return left
}

// Usage returns the current count and the budget.
func (b *BudgetTracker) Usage() (count, budget int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count, b.budget
}

// Reset zeroes the persisted counter. Reached only through explicit
// operator action, never as a side effect of restarting.
func (b *BudgetTracker) Reset() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.db.ResetBatchCount(b.sessionID); err != nil {
		return fmt.Errorf("session %s: %w", b.sessionID, err)
	}
	b.count = 0
	return nil
}
