// Package ingest loads YAML plan files, validates them, and populates
// the state store. A plan file declares the full hierarchy in one
// document: epics nest stories, stories nest tasks, and a phases section
// overlays execution order by referencing epics or stories.
//
// References use the kind:id form the rest of the system renders, e.g.
// "story:story-login". Task depends_on entries may use a bare ID, which
// is read as a task reference.
package ingest

import (
	"fmt"
	"os"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/gantrylabs/gantry/pkg/models"
)

// Plan is the parsed shape of a plan file.
type Plan struct {
	Epics        []EpicSpec  `yaml:"epics"`
	Phases       []PhaseSpec `yaml:"phases"`
	Dependencies []DepSpec   `yaml:"dependencies"`
}

// EpicSpec declares one epic and its nested stories.
type EpicSpec struct {
	ID          string      `yaml:"id"`
	Title       string      `yaml:"title"`
	Description string      `yaml:"description"`
	Priority    string      `yaml:"priority"`
	Stories     []StorySpec `yaml:"stories"`
}

// StorySpec declares one story and its nested tasks.
type StorySpec struct {
	ID          string     `yaml:"id"`
	Title       string     `yaml:"title"`
	Description string     `yaml:"description"`
	Priority    string     `yaml:"priority"`
	Tasks       []TaskSpec `yaml:"tasks"`
}

// TaskSpec declares one dispatchable task. DependsOn entries are
// references; a bare ID means a task.
type TaskSpec struct {
	ID                 string   `yaml:"id"`
	Title              string   `yaml:"title"`
	AcceptanceCriteria string   `yaml:"acceptance_criteria"`
	Complexity         int      `yaml:"complexity"`
	DependsOn          []string `yaml:"depends_on"`
}

// PhaseSpec declares one execution phase. Members are epic or story
// references; tasks join a phase through their ancestors.
type PhaseSpec struct {
	ID                string   `yaml:"id"`
	Sequence          int      `yaml:"sequence"`
	Name              string   `yaml:"name"`
	EntryCriteria     string   `yaml:"entry_criteria"`
	ExitCriteria      string   `yaml:"exit_criteria"`
	EstimatedDuration string   `yaml:"estimated_duration"`
	Members           []string `yaml:"members"`
}

// DepSpec declares a dependency edge between any two items.
type DepSpec struct {
	Item      string `yaml:"item"`
	DependsOn string `yaml:"depends_on"`
}

// Load reads and parses a plan file.
func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan file: %w", err)
	}
	plan, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("plan file %s: %w", path, err)
	}
	return plan, nil
}

// Parse parses plan YAML.
func Parse(data []byte) (*Plan, error) {
	var p Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse plan yaml: %w", err)
	}
	return &p, nil
}

// parseDepTarget resolves a depends_on string. Bare IDs are task
// references; anything with a colon goes through ParseRef.
func parseDepTarget(s string) (models.ItemRef, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return models.ItemRef{}, fmt.Errorf("empty reference")
	}
	if !strings.Contains(s, ":") {
		return models.ItemRef{Kind: models.KindTask, ID: s}, nil
	}
	return models.ParseRef(s)
}

// parseMember resolves a phase member string. Members must be explicit
// epic or story references; bare IDs are rejected.
func parseMember(s string) (models.ItemRef, error) {
	ref, err := models.ParseRef(strings.TrimSpace(s))
	if err != nil {
		return models.ItemRef{}, err
	}
	if ref.Kind != models.KindEpic && ref.Kind != models.KindStory {
		return models.ItemRef{}, fmt.Errorf("phase member %s must be an epic or story", ref)
	}
	return ref, nil
}
