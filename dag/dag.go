// Package dag resolves a workflow definition's step declarations into
// a validated, leveled execution plan. Building the plan is the first
// thing the orchestrator does; any error here is fatal and happens
// before a single record is processed.
package dag

import (
	"fmt"
	"sort"

	pipeline "github.com/DecentralizedGeo/stac-manager-sub002"
)

// Plan is the leveled execution order for a workflow. Level i only
// contains steps whose dependencies all live in levels < i, so levels
// are started strictly in order while steps within one level may run
// concurrently.
type Plan struct {
	// Levels holds step ids, outermost slice ordered by level.
	// Steps within a level are sorted for deterministic scheduling.
	Levels [][]string

	levelOf    map[string]int
	dependents map[string][]string
}

// LevelOf returns the level index of a step, or -1 if the step is not
// in the plan.
func (p *Plan) LevelOf(stepID string) int {
	if lvl, ok := p.levelOf[stepID]; ok {
		return lvl
	}
	return -1
}

// Dependents returns the ids of steps that consume stepID's output,
// sorted.
func (p *Plan) Dependents(stepID string) []string {
	deps := p.dependents[stepID]
	out := make([]string, len(deps))
	copy(out, deps)
	return out
}

// StepCount returns the total number of steps across all levels.
func (p *Plan) StepCount() int {
	return len(p.levelOf)
}

// Build validates the definition's dependency graph and produces the
// execution plan. It checks that every referenced dependency is a
// declared step, rejects self-references, and peels the graph
// Kahn-style: repeatedly collect every step whose dependencies are all
// placed in prior levels, place them as the next level, and repeat. If
// the peel sticks before the graph is empty, the remaining steps form
// at least one cycle and are named in the returned ConfigError.
func Build(def *pipeline.Definition) (*Plan, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}

	declared := make(map[string]*pipeline.Step, len(def.Steps))
	for i := range def.Steps {
		declared[def.Steps[i].ID] = &def.Steps[i]
	}

	dependents := make(map[string][]string, len(def.Steps))
	for _, s := range def.Steps {
		for _, dep := range s.DependsOn {
			if dep == s.ID {
				return nil, &pipeline.ConfigError{
					Steps: []string{s.ID},
					Err:   fmt.Errorf("step depends on itself: %w", pipeline.ErrCycle),
				}
			}
			if _, ok := declared[dep]; !ok {
				return nil, &pipeline.ConfigError{
					Steps: []string{s.ID},
					Err:   fmt.Errorf("dependency %q: %w", dep, pipeline.ErrMissingDependency),
				}
			}
			dependents[dep] = append(dependents[dep], s.ID)
		}
	}
	for _, ds := range dependents {
		sort.Strings(ds)
	}

	plan := &Plan{
		levelOf:    make(map[string]int, len(def.Steps)),
		dependents: dependents,
	}

	remaining := make(map[string]*pipeline.Step, len(declared))
	for id, s := range declared {
		remaining[id] = s
	}

	for len(remaining) > 0 {
		var level []string
		for stepID, s := range remaining {
			ready := true
			for _, dep := range s.DependsOn {
				if _, placed := plan.levelOf[dep]; !placed {
					ready = false
					break
				}
			}
			if ready {
				level = append(level, stepID)
			}
		}

		if len(level) == 0 {
			// Stuck: everything left participates in (or depends
			// on) a cycle.
			cyclic := make([]string, 0, len(remaining))
			for stepID := range remaining {
				cyclic = append(cyclic, stepID)
			}
			sort.Strings(cyclic)
			return nil, &pipeline.ConfigError{Steps: cyclic, Err: pipeline.ErrCycle}
		}

		sort.Strings(level)
		for _, stepID := range level {
			plan.levelOf[stepID] = len(plan.Levels)
			delete(remaining, stepID)
		}
		plan.Levels = append(plan.Levels, level)
	}

	return plan, nil
}
