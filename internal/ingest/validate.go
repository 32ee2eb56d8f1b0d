package ingest

import (
	"errors"
	"fmt"

	"github.com/gantrylabs/gantry/internal/graph"
	"github.com/gantrylabs/gantry/pkg/models"
)

// ValidationResult contains the results of validating a plan.
type ValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// Validate performs comprehensive validation on a parsed plan.
func Validate(p *Plan) ValidationResult {
	result := ValidationResult{
		Valid:    true,
		Errors:   []string{},
		Warnings: []string{},
	}

	idx := indexPlan(p)

	// 1. Structure: IDs, titles, priorities, complexity
	validateStructure(p, &result)

	// 2. Phases: sequences, members
	validatePhases(p, idx, &result)

	// 3. Dependency references resolve
	deps := validateDependencies(p, idx, &result)

	// 4. Cycles within each tier (only meaningful once refs resolve)
	if len(result.Errors) == 0 {
		validateAcyclic(idx, deps, &result)
	}

	result.Valid = len(result.Errors) == 0
	return result
}

// planIndex holds the ID sets used for reference resolution.
type planIndex struct {
	epics   map[string]bool
	stories map[string]bool
	tasks   map[string]bool
	refs    []models.ItemRef
}

func indexPlan(p *Plan) *planIndex {
	idx := &planIndex{
		epics:   make(map[string]bool),
		stories: make(map[string]bool),
		tasks:   make(map[string]bool),
	}
	for _, e := range p.Epics {
		idx.epics[e.ID] = true
		idx.refs = append(idx.refs, models.ItemRef{Kind: models.KindEpic, ID: e.ID})
		for _, s := range e.Stories {
			idx.stories[s.ID] = true
			idx.refs = append(idx.refs, models.ItemRef{Kind: models.KindStory, ID: s.ID})
			for _, t := range s.Tasks {
				idx.tasks[t.ID] = true
				idx.refs = append(idx.refs, models.ItemRef{Kind: models.KindTask, ID: t.ID})
			}
		}
	}
	return idx
}

func (idx *planIndex) resolves(ref models.ItemRef) bool {
	switch ref.Kind {
	case models.KindEpic:
		return idx.epics[ref.ID]
	case models.KindStory:
		return idx.stories[ref.ID]
	case models.KindTask:
		return idx.tasks[ref.ID]
	default:
		return false
	}
}

func validateStructure(p *Plan, result *ValidationResult) {
	if len(p.Epics) == 0 {
		result.Errors = append(result.Errors, "plan defines no epics")
	}

	taskCount := 0
	seenEpics := make(map[string]bool)
	seenStories := make(map[string]bool)
	seenTasks := make(map[string]bool)

	for _, e := range p.Epics {
		if e.ID == "" {
			result.Errors = append(result.Errors, fmt.Sprintf("epic %q: missing id", e.Title))
		} else if seenEpics[e.ID] {
			result.Errors = append(result.Errors, fmt.Sprintf("duplicate epic id %q", e.ID))
		}
		seenEpics[e.ID] = true
		if e.Title == "" {
			result.Errors = append(result.Errors, fmt.Sprintf("epic %s: missing title", e.ID))
		}
		if e.Priority != "" && !models.Priority(e.Priority).Valid() {
			result.Errors = append(result.Errors, fmt.Sprintf("epic %s: unknown priority %q", e.ID, e.Priority))
		}

		for _, s := range e.Stories {
			if s.ID == "" {
				result.Errors = append(result.Errors, fmt.Sprintf("story %q in epic %s: missing id", s.Title, e.ID))
			} else if seenStories[s.ID] {
				result.Errors = append(result.Errors, fmt.Sprintf("duplicate story id %q", s.ID))
			}
			seenStories[s.ID] = true
			if s.Title == "" {
				result.Errors = append(result.Errors, fmt.Sprintf("story %s: missing title", s.ID))
			}
			if s.Priority != "" && !models.Priority(s.Priority).Valid() {
				result.Errors = append(result.Errors, fmt.Sprintf("story %s: unknown priority %q", s.ID, s.Priority))
			}
			if len(s.Tasks) == 0 {
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("story %s has no tasks; it can never complete and will block its phase gate", s.ID))
			}

			for _, task := range s.Tasks {
				taskCount++
				if task.ID == "" {
					result.Errors = append(result.Errors, fmt.Sprintf("task %q in story %s: missing id", task.Title, s.ID))
				} else if seenTasks[task.ID] {
					result.Errors = append(result.Errors, fmt.Sprintf("duplicate task id %q", task.ID))
				}
				seenTasks[task.ID] = true
				if task.Title == "" {
					result.Errors = append(result.Errors, fmt.Sprintf("task %s: missing title", task.ID))
				}
				if task.Complexity < 0 {
					result.Errors = append(result.Errors, fmt.Sprintf("task %s: negative complexity %d", task.ID, task.Complexity))
				}
				if task.AcceptanceCriteria == "" {
					result.Warnings = append(result.Warnings, fmt.Sprintf("task %s: no acceptance criteria", task.ID))
				}
			}
		}
	}

	if taskCount == 0 {
		result.Errors = append(result.Errors, "plan defines no tasks")
	}
}

func validatePhases(p *Plan, idx *planIndex, result *ValidationResult) {
	if len(p.Phases) == 0 {
		result.Errors = append(result.Errors, "plan defines no phases; the driver would have nothing to run")
		return
	}

	seen := make(map[string]bool)
	sequences := make(map[int]string)
	for _, ph := range p.Phases {
		if ph.ID == "" {
			result.Errors = append(result.Errors, fmt.Sprintf("phase %q: missing id", ph.Name))
		} else if seen[ph.ID] {
			result.Errors = append(result.Errors, fmt.Sprintf("duplicate phase id %q", ph.ID))
		}
		seen[ph.ID] = true
		if ph.Name == "" {
			result.Errors = append(result.Errors, fmt.Sprintf("phase %s: missing name", ph.ID))
		}

		if other, dup := sequences[ph.Sequence]; dup {
			result.Errors = append(result.Errors, fmt.Sprintf("phase %s: sequence %d already used by %s", ph.ID, ph.Sequence, other))
		}
		sequences[ph.Sequence] = ph.ID

		if len(ph.Members) == 0 {
			result.Warnings = append(result.Warnings, fmt.Sprintf("phase %s has no members", ph.ID))
		}
		for _, m := range ph.Members {
			ref, err := parseMember(m)
			if err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("phase %s: %v", ph.ID, err))
				continue
			}
			if !idx.resolves(ref) {
				result.Errors = append(result.Errors, fmt.Sprintf("phase %s: member %s does not exist in the plan", ph.ID, ref))
			}
		}
	}

	// sequences must be contiguous starting at 1
	for want := 1; want <= len(p.Phases); want++ {
		if _, ok := sequences[want]; !ok {
			result.Errors = append(result.Errors,
				fmt.Sprintf("phase sequences must be contiguous from 1; missing sequence %d", want))
		}
	}
}

// validateDependencies resolves every edge in the plan and returns the
// parsed set for the cycle check.
func validateDependencies(p *Plan, idx *planIndex, result *ValidationResult) []models.Dependency {
	var deps []models.Dependency

	addEdge := func(context string, item, target models.ItemRef) {
		if item == target {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: depends on itself", context))
			return
		}
		if !idx.resolves(target) {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: dependency %s does not exist in the plan", context, target))
			return
		}
		deps = append(deps, models.Dependency{Item: item, DependsOn: target})
	}

	for _, e := range p.Epics {
		for _, s := range e.Stories {
			for _, task := range s.Tasks {
				item := models.ItemRef{Kind: models.KindTask, ID: task.ID}
				for _, raw := range task.DependsOn {
					target, err := parseDepTarget(raw)
					if err != nil {
						result.Errors = append(result.Errors, fmt.Sprintf("task %s: bad depends_on entry: %v", task.ID, err))
						continue
					}
					addEdge(fmt.Sprintf("task %s", task.ID), item, target)
				}
			}
		}
	}

	for _, d := range p.Dependencies {
		item, err := parseDepTarget(d.Item)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("dependency: bad item %q: %v", d.Item, err))
			continue
		}
		target, err := parseDepTarget(d.DependsOn)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("dependency: bad depends_on %q: %v", d.DependsOn, err))
			continue
		}
		if !idx.resolves(item) {
			result.Errors = append(result.Errors, fmt.Sprintf("dependency: item %s does not exist in the plan", item))
			continue
		}
		addEdge(fmt.Sprintf("dependency %s", item), item, target)
	}

	return deps
}

// validateAcyclic loads the plan into the dependency graph, which
// rejects cycles within a tier. Cross-tier loops are legal here; the
// resolver treats them as ordering hints, not deadlocks.
func validateAcyclic(idx *planIndex, deps []models.Dependency, result *ValidationResult) {
	g := graph.New()
	if err := g.Build(idx.refs, deps); err != nil {
		if errors.Is(err, graph.ErrCycleDetected) {
			result.Errors = append(result.Errors, fmt.Sprintf("dependency cycle: %v", err))
		} else {
			result.Errors = append(result.Errors, fmt.Sprintf("dependency graph: %v", err))
		}
	}
}
