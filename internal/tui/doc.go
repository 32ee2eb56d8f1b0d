// Package tui provides the terminal status board for gantry.
//
// The board is read-only. It polls the plan store on a fixed interval and
// renders:
//   - The active session with its batch budget consumption
//   - One row per phase with derived status and task progress
//   - Stories complete and review gates still pending per phase
//   - Tasks left in_progress by an interrupted run
//
// All writes go through the driver and the CLI; the board never mutates
// the store. Users can only refresh with 'r' or quit with 'q'/Ctrl+C.
//
// Usage:
//
//	program, _ := tui.NewBoardProgram(db, time.Second)
//	if _, err := program.Run(); err != nil {
//	    return err
//	}
//
// The reader is typically a *state.DB, but anything implementing
// PlanReader works, which keeps the board testable without SQLite.
package tui
