// Package planner turns a task and its trigger context into an ordered plan,
// and validates whatever a planner returns before the coordinator uses it.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"myhelper/internal/catalog"
	"myhelper/internal/executor"
	"myhelper/internal/failure"
	"myhelper/internal/mission"
)

// Planner produces the steps for one mission. Implementations are untrusted:
// callers run ValidatePlan on the result.
type Planner interface {
	Plan(ctx context.Context, task catalog.Task, triggerContext map[string]any, learnings []mission.Learning) ([]mission.Step, error)
}

var resultsRefRe = regexp.MustCompile(`@results\.([A-Za-z0-9_\-]+)\.`)

// ValidatePlan rejects empty plans, duplicate or blank step ids, tools the
// task does not authorize, negative retries, unknown or cyclic dependencies
// and @results references to steps that have not run yet.
func ValidatePlan(plan []mission.Step, task catalog.Task) error {
	if len(plan) == 0 {
		return failure.New(failure.KindPlanning, "planner returned an empty plan")
	}
	for i, s := range plan {
		if strings.TrimSpace(s.ID) == "" {
			return failure.New(failure.KindPlanning, "step #%d has no step_id", i+1)
		}
		if !slices.Contains(task.Tools, s.Tool) {
			return failure.New(failure.KindPlanning, "step %s uses tool %q, which task %s does not authorize", s.ID, s.Tool, task.ID)
		}
		if s.Retry < 0 {
			return failure.New(failure.KindPlanning, "step %s has a negative retry count", s.ID)
		}
	}
	ordered, err := executor.Order(plan)
	if err != nil {
		return err
	}

	seen := map[string]struct{}{}
	for _, s := range ordered {
		if err := checkRefs(s.Params, seen, s.ID); err != nil {
			return err
		}
		seen[s.ID] = struct{}{}
	}
	return nil
}

// checkRefs walks a parameter value and requires every @results.<id>
// reference to name a step that runs earlier.
func checkRefs(v any, seen map[string]struct{}, stepID string) error {
	switch t := v.(type) {
	case map[string]any:
		for _, vv := range t {
			if err := checkRefs(vv, seen, stepID); err != nil {
				return err
			}
		}
	case []any:
		for _, vv := range t {
			if err := checkRefs(vv, seen, stepID); err != nil {
				return err
			}
		}
	case string:
		for _, m := range resultsRefRe.FindAllStringSubmatch(t, -1) {
			if _, ok := seen[m[1]]; !ok {
				return failure.New(failure.KindPlanning,
					"step %s references @results.%s, which has not run yet; add it to depends_on", stepID, m[1])
			}
		}
	}
	return nil
}

type stageAction struct {
	ID      string         `json:"id"`
	Action  string         `json:"action"`
	Payload map[string]any `json:"payload"`
	Retry   int            `json:"retry"`
}

type stage struct {
	Stage   int           `json:"stage"`
	Actions []stageAction `json:"actions"`
}

// planDoc is one plan as written by hand or returned by a model. Either
// Steps or the staged Plan form is used.
type planDoc struct {
	TaskID string          `json:"task_id"`
	Name   string          `json:"name"`
	Steps  []mission.Step  `json:"steps"`
	Plan   json.RawMessage `json:"plan"`
}

func (d planDoc) steps() ([]mission.Step, error) {
	if len(d.Steps) > 0 {
		return d.Steps, nil
	}
	if len(d.Plan) == 0 {
		return nil, nil
	}
	var stages []stage
	if err := json.Unmarshal(d.Plan, &stages); err == nil && len(stages) > 0 && len(stages[0].Actions) > 0 {
		return stagesToSteps(stages), nil
	}
	var steps []mission.Step
	if err := json.Unmarshal(d.Plan, &steps); err != nil {
		return nil, fmt.Errorf("plan is neither a step list nor a stage list: %w", err)
	}
	return steps, nil
}

// stagesToSteps flattens staged plans. Every action depends on all actions
// of the previous stage, which keeps stage N+1 after stage N.
func stagesToSteps(stages []stage) []mission.Step {
	sorted := slices.Clone(stages)
	slices.SortStableFunc(sorted, func(a, b stage) int { return a.Stage - b.Stage })

	var out []mission.Step
	var prev []string
	for _, st := range sorted {
		var ids []string
		for _, a := range st.Actions {
			out = append(out, mission.Step{
				ID:        a.ID,
				Tool:      a.Action,
				Params:    a.Payload,
				Retry:     a.Retry,
				DependsOn: slices.Clone(prev),
			})
			ids = append(ids, a.ID)
		}
		prev = ids
	}
	return out
}

// decodePlan accepts {"steps": [...]}, {"plan": [...]} or a bare step array.
func decodePlan(data []byte) ([]mission.Step, error) {
	var doc planDoc
	if err := json.Unmarshal(data, &doc); err == nil {
		steps, err := doc.steps()
		if err != nil {
			return nil, err
		}
		if len(steps) > 0 {
			return steps, nil
		}
	}
	var steps []mission.Step
	if err := json.Unmarshal(data, &steps); err != nil {
		return nil, fmt.Errorf("unrecognized plan format: %w", err)
	}
	return steps, nil
}
