package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"myhelper/internal/catalog"
	"myhelper/internal/failure"
	"myhelper/internal/mission"
)

var triggerRef = regexp.MustCompile(`@trigger\.([A-Za-z0-9_\-]+)`)

// FilePlanner serves fixed plans per task id from a JSON file.
type FilePlanner struct {
	plans map[string][]mission.Step
}

/*
LoadFilePlanner reads plans keyed by task. Accepted shapes:

 1. {"plans": [ {"task_id": "daily_check", "steps": [...]}, ... ]}
 2. [ {"task_id": "daily_check", "plan": [ {stage...}, ... ]}, ... ]
 3. {"task_id": "daily_check", "steps": [...]}   // a single plan

Each entry is keyed by task_id, or by name when task_id is empty. "steps"
is a flat step list; "plan" may be a step list or the staged form
[{"stage": 1, "actions": [{"id", "action", "payload"}]}].
*/
func LoadFilePlanner(path string) (*FilePlanner, error) {
	clean := filepath.Clean(path)
	data, err := os.ReadFile(clean)
	if err != nil {
		return nil, fmt.Errorf("read plans file %s: %w", clean, err)
	}
	docs, err := parseDocs(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", clean, err)
	}

	fp := &FilePlanner{plans: make(map[string][]mission.Step, len(docs))}
	for i, d := range docs {
		key := strings.TrimSpace(d.TaskID)
		if key == "" {
			key = strings.TrimSpace(d.Name)
		}
		if key == "" {
			return nil, fmt.Errorf("%s: plan #%d has neither task_id nor name", clean, i+1)
		}
		steps, err := d.steps()
		if err != nil {
			return nil, fmt.Errorf("%s: plan %s: %w", clean, key, err)
		}
		if len(steps) == 0 {
			return nil, fmt.Errorf("%s: plan %s has no steps", clean, key)
		}
		if _, dup := fp.plans[key]; dup {
			return nil, fmt.Errorf("%s: duplicate plan for %s", clean, key)
		}
		fp.plans[key] = steps
	}
	return fp, nil
}

func parseDocs(data []byte) ([]planDoc, error) {
	var obj struct {
		Plans []planDoc `json:"plans"`
	}
	if err := json.Unmarshal(data, &obj); err == nil && len(obj.Plans) > 0 {
		return obj.Plans, nil
	}
	var arr []planDoc
	if err := json.Unmarshal(data, &arr); err == nil && len(arr) > 0 {
		return arr, nil
	}
	var one planDoc
	if err := json.Unmarshal(data, &one); err == nil && (len(one.Steps) > 0 || len(one.Plan) > 0) {
		return []planDoc{one}, nil
	}
	return nil, fmt.Errorf("unrecognized plans format")
}

// Tasks lists the task ids the file has plans for.
func (p *FilePlanner) Tasks() []string {
	out := make([]string, 0, len(p.plans))
	for k := range p.plans {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Steps returns the plan on file for taskID, unresolved.
func (p *FilePlanner) Steps(taskID string) ([]mission.Step, bool) {
	steps, ok := p.plans[taskID]
	return steps, ok
}

// Plan returns a copy of the task's plan with @trigger.<key> references
// replaced from the trigger context.
func (p *FilePlanner) Plan(ctx context.Context, task catalog.Task, triggerContext map[string]any, _ []mission.Learning) ([]mission.Step, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	steps, ok := p.plans[task.ID]
	if !ok {
		return nil, failure.New(failure.KindPlanning, "no plan on file for task %s", task.ID)
	}
	out := make([]mission.Step, len(steps))
	for i, s := range steps {
		s.Params = withTrigger(s.Params, triggerContext)
		s.DependsOn = append([]string(nil), s.DependsOn...)
		out[i] = s
	}
	return out, nil
}

func withTrigger(params map[string]any, trigger map[string]any) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = triggerValue(v, trigger)
	}
	return out
}

func triggerValue(v any, trigger map[string]any) any {
	switch t := v.(type) {
	case string:
		if m := triggerRef.FindStringSubmatch(t); m != nil && m[0] == t {
			if val, ok := trigger[m[1]]; ok {
				return val
			}
			return ""
		}
		return triggerRef.ReplaceAllStringFunc(t, func(match string) string {
			key := triggerRef.FindStringSubmatch(match)[1]
			if val, ok := trigger[key]; ok {
				return fmt.Sprintf("%v", val)
			}
			return ""
		})
	case map[string]any:
		return withTrigger(t, trigger)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = triggerValue(item, trigger)
		}
		return out
	}
	return v
}
