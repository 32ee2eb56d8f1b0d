package ingest

import (
	"fmt"
	"strings"

	"github.com/gantrylabs/gantry/internal/state"
	"github.com/gantrylabs/gantry/pkg/models"
)

// Populate validates the plan and writes it into the store in one
// transaction. The store must be empty; re-importing over live state
// would silently reset progress.
func Populate(db *state.DB, p *Plan) error {
	result := Validate(p)
	if !result.Valid {
		return fmt.Errorf("plan is invalid: %s", strings.Join(result.Errors, "; "))
	}

	imp, err := buildImport(p)
	if err != nil {
		return err
	}
	if err := db.ImportPlan(*imp); err != nil {
		return fmt.Errorf("import plan: %w", err)
	}
	return nil
}

// buildImport expands the plan specs into store rows, applying defaults:
// missing priorities become medium, missing complexity becomes 1.
func buildImport(p *Plan) (*state.PlanImport, error) {
	imp := &state.PlanImport{}
	seenDeps := make(map[string]bool)

	addDep := func(item, target models.ItemRef) {
		key := item.String() + ">" + target.String()
		if seenDeps[key] {
			return
		}
		seenDeps[key] = true
		imp.Deps = append(imp.Deps, models.Dependency{Item: item, DependsOn: target})
	}

	for _, e := range p.Epics {
		imp.Epics = append(imp.Epics, models.Epic{
			ID:          e.ID,
			Title:       e.Title,
			Description: e.Description,
			Priority:    defaultPriority(e.Priority),
		})
		for _, s := range e.Stories {
			imp.Stories = append(imp.Stories, models.Story{
				ID:          s.ID,
				EpicID:      e.ID,
				Title:       s.Title,
				Description: s.Description,
				Priority:    defaultPriority(s.Priority),
			})
			for _, t := range s.Tasks {
				complexity := t.Complexity
				if complexity <= 0 {
					complexity = 1
				}
				imp.Tasks = append(imp.Tasks, models.Task{
					ID:                 t.ID,
					StoryID:            s.ID,
					EpicID:             e.ID,
					Title:              t.Title,
					AcceptanceCriteria: t.AcceptanceCriteria,
					Complexity:         complexity,
				})
				item := models.ItemRef{Kind: models.KindTask, ID: t.ID}
				for _, raw := range t.DependsOn {
					target, err := parseDepTarget(raw)
					if err != nil {
						return nil, fmt.Errorf("task %s: %w", t.ID, err)
					}
					addDep(item, target)
				}
			}
		}
	}

	for _, ph := range p.Phases {
		imp.Phases = append(imp.Phases, models.Phase{
			ID:                ph.ID,
			Sequence:          ph.Sequence,
			Name:              ph.Name,
			EntryCriteria:     ph.EntryCriteria,
			ExitCriteria:      ph.ExitCriteria,
			EstimatedDuration: ph.EstimatedDuration,
		})
		for _, m := range ph.Members {
			ref, err := parseMember(m)
			if err != nil {
				return nil, fmt.Errorf("phase %s: %w", ph.ID, err)
			}
			imp.Items = append(imp.Items, models.PhaseItem{PhaseID: ph.ID, Item: ref})
		}
	}

	for _, d := range p.Dependencies {
		item, err := parseDepTarget(d.Item)
		if err != nil {
			return nil, fmt.Errorf("dependency item %q: %w", d.Item, err)
		}
		target, err := parseDepTarget(d.DependsOn)
		if err != nil {
			return nil, fmt.Errorf("dependency target %q: %w", d.DependsOn, err)
		}
		addDep(item, target)
	}

	return imp, nil
}

func defaultPriority(s string) models.Priority {
	if s == "" {
		return models.PriorityMedium
	}
	return models.Priority(s)
}
