package main

import (
	"testing"

	"github.com/fatih/color"

	"github.com/gantrylabs/gantry/internal/driver"
	"github.com/gantrylabs/gantry/internal/resume"
	"github.com/gantrylabs/gantry/internal/state"
	"github.com/gantrylabs/gantry/pkg/models"
)

func TestSessionBudget(t *testing.T) {
	tests := []struct {
		name     string
		flag     int
		fallback int
		expected int
	}{
		{"flag wins when set", 3, 8, 3},
		{"fallback when flag unset", 0, 8, 8},
		{"negative flag means unlimited", -1, 8, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sessionBudget(tt.flag, tt.fallback); got != tt.expected {
				t.Errorf("sessionBudget(%d, %d) = %d, want %d", tt.flag, tt.fallback, got, tt.expected)
			}
		})
	}
}

func TestBudgetLabel(t *testing.T) {
	tests := []struct {
		budget   int
		expected string
	}{
		{8, "8"},
		{1, "1"},
		{0, "unlimited"},
		{-1, "unlimited"},
	}

	for _, tt := range tests {
		if got := budgetLabel(tt.budget); got != tt.expected {
			t.Errorf("budgetLabel(%d) = %q, want %q", tt.budget, got, tt.expected)
		}
	}
}

func TestHaltMessage(t *testing.T) {
	tests := []struct {
		halt     driver.HaltReason
		expected string
	}{
		{driver.HaltComplete, "plan complete"},
		{driver.HaltBudgetExhausted, "batch budget exhausted"},
		{driver.HaltCheckpoint, "checkpoint requested"},
		{driver.HaltCanceled, "canceled"},
		{driver.HaltGateFailed, "gate review failed"},
		{driver.HaltStalled, "stalled, no dispatchable tasks"},
		{driver.HaltTaskLimit, "task limit reached"},
	}

	for _, tt := range tests {
		if got := haltMessage(tt.halt); got != tt.expected {
			t.Errorf("haltMessage(%q) = %q, want %q", tt.halt, got, tt.expected)
		}
	}
}

func TestHaltBadge(t *testing.T) {
	tests := []struct {
		name   string
		halt   driver.HaltReason
		symbol string
		attr   color.Attribute
	}{
		{"complete is a green check", driver.HaltComplete, "✓", color.FgGreen},
		{"gate failure is a red cross", driver.HaltGateFailed, "✗", color.FgRed},
		{"stall is a red cross", driver.HaltStalled, "✗", color.FgRed},
		{"cancel is a red cross", driver.HaltCanceled, "✗", color.FgRed},
		{"budget is a yellow warning", driver.HaltBudgetExhausted, "⚠", color.FgYellow},
		{"checkpoint is a yellow warning", driver.HaltCheckpoint, "⚠", color.FgYellow},
		{"task limit is a yellow warning", driver.HaltTaskLimit, "⚠", color.FgYellow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			symbol, attr := haltBadge(tt.halt)
			if symbol != tt.symbol || attr != tt.attr {
				t.Errorf("haltBadge(%q) = %q/%v, want %q/%v", tt.halt, symbol, attr, tt.symbol, tt.attr)
			}
		})
	}
}

func TestDescribeDetection(t *testing.T) {
	tests := []struct {
		name string
		det  resume.Detection
		want string
	}{
		{
			name: "complete phase",
			det:  resume.Detection{Action: resume.ActionAlreadyComplete},
			want: "complete",
		},
		{
			name: "untouched phase",
			det: resume.Detection{
				Action: resume.ActionStartFresh,
				Tasks:  state.TaskCounts{Pending: 4},
			},
			want: "not started (4 task(s))",
		},
		{
			name: "orphans to resurface",
			det: resume.Detection{
				Action:  resume.ActionResumeOrphan,
				Orphans: []models.Task{{ID: "t1"}, {ID: "t2"}},
			},
			want: "2 interrupted task(s) to resurface",
		},
		{
			name: "orphans and reviews together",
			det: resume.Detection{
				Action:       resume.ActionResumeMixed,
				Orphans:      []models.Task{{ID: "t1"}},
				PendingGates: []models.Story{{ID: "s1"}, {ID: "s2"}},
			},
			want: "1 interrupted task(s) and 2 story review(s) outstanding",
		},
		{
			name: "story reviews due",
			det: resume.Detection{
				Action:       resume.ActionRunStoryGate,
				PendingGates: []models.Story{{ID: "s1"}},
			},
			want: "1 story review(s) due",
		},
		{
			name: "phase gate due",
			det:  resume.Detection{Action: resume.ActionRunPhaseGate},
			want: "phase gate review due",
		},
		{
			name: "mid-phase",
			det: resume.Detection{
				Action: resume.ActionFindNextTask,
				Tasks:  state.TaskCounts{Pending: 1, Complete: 2},
			},
			want: "in progress (2/3 tasks done)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := describeDetection(tt.det); got != tt.want {
				t.Errorf("describeDetection() = %q, want %q", got, tt.want)
			}
		})
	}
}
