// Package integration provides cross-package integration tests for Gantry.
// These tests drive whole workflows through real packages: plan files pass
// through ingest into a file-backed store, the driver works them with
// scripted collaborators, and gates, signals, and resume detection are
// checked against what actually lands on disk.
//
// Build tag: integration
// Run with: go test -tags integration ./internal/integration/...
package integration
