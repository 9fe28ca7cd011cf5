// Package executor runs a mission plan step by step through the tool
// gateway, retrying retryable failures and stopping at the first step that
// fails for good.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"myhelper/internal/failure"
	"myhelper/internal/logger"
	"myhelper/internal/metrics"
	"myhelper/internal/mission"
	"myhelper/internal/protocol"
)

var resultsRef = regexp.MustCompile(`@results\.([A-Za-z0-9_\-]+)\.([A-Za-z0-9_]+)`)

// Invoker is the gateway as seen by the executor.
type Invoker interface {
	Invoke(ctx context.Context, req protocol.Request, authorized []string) (protocol.Result, error)
}

// EntryFunc is called with each finished log entry before the next step
// starts. An error from it aborts the run.
type EntryFunc func(mission.LogEntry) error

type Executor struct {
	invoker Invoker
	log     *slog.Logger
}

func New(inv Invoker, log *slog.Logger) *Executor {
	return &Executor{invoker: inv, log: logger.Component(log, "executor")}
}

// Run executes plan in dependency order. Tool failures end up in the
// returned log; the error is non-nil only when the plan cannot be ordered or
// onEntry fails. Steps after a failed one are never attempted.
func (e *Executor) Run(ctx context.Context, plan []mission.Step, authorized []string, onEntry EntryFunc) (mission.ExecutionLog, error) {
	ordered, err := Order(plan)
	if err != nil {
		return nil, err
	}

	log := mission.ExecutionLog{}
	results := make(map[string]map[string]any, len(ordered))
	for i, step := range ordered {
		entry := e.runStep(ctx, step, authorized, results)
		log = append(log, entry)
		if onEntry != nil {
			if err := onEntry(entry); err != nil {
				return log, err
			}
		}
		if entry.Status == mission.StepFailed {
			for _, skipped := range ordered[i+1:] {
				e.log.Info("step skipped", "step_id", skipped.ID, "after", step.ID)
			}
			break
		}
		results[step.ID] = entry.Output
	}
	return log, nil
}

func (e *Executor) runStep(ctx context.Context, step mission.Step, authorized []string, results map[string]map[string]any) mission.LogEntry {
	entry := mission.LogEntry{
		StepID:    step.ID,
		ToolName:  step.Tool,
		StartedAt: time.Now().UTC(),
	}
	params := resolvePayload(step.Params, results)
	maxAttempts := 1 + max(step.Retry, 0)

	for n := 1; n <= maxAttempts; n++ {
		req := protocol.NewRequest(step.Tool, params)
		entry.Request = &req

		start := time.Now()
		res, err := e.invoker.Invoke(ctx, req, authorized)
		attempt := mission.Attempt{Number: n, DurationMs: time.Since(start).Milliseconds()}

		if err == nil {
			attempt.Status = mission.StepSuccess
			entry.Attempts = append(entry.Attempts, attempt)
			entry.Status = mission.StepSuccess
			entry.Output = res.Output
			entry.Error, entry.ErrorKind = "", ""
			break
		}

		attempt.Status = mission.StepFailed
		attempt.Error = err.Error()
		attempt.ErrorKind = failure.KindOf(err)
		entry.Attempts = append(entry.Attempts, attempt)
		entry.Status = mission.StepFailed
		entry.Output = res.Output
		entry.Error = err.Error()
		entry.ErrorKind = attempt.ErrorKind

		if n == maxAttempts || !failure.Retryable(err) || ctx.Err() != nil {
			break
		}
		metrics.StepRetries.WithLabelValues(step.Tool).Inc()
		e.log.Info("retrying step", "step_id", step.ID, "tool", step.Tool, "attempt", n, "error", err)
	}

	entry.DurationMs = time.Since(entry.StartedAt).Milliseconds()
	if entry.Status == mission.StepFailed {
		e.log.Warn("step failed", "step_id", step.ID, "tool", step.Tool,
			"attempts", len(entry.Attempts), "kind", entry.ErrorKind, "error", entry.Error)
	}
	return entry
}

// Order sorts steps so each comes after its dependencies, keeping the listed
// order among steps that are ready at the same time.
func Order(plan []mission.Step) ([]mission.Step, error) {
	index := make(map[string]int, len(plan))
	for i, s := range plan {
		if _, dup := index[s.ID]; dup {
			return nil, failure.New(failure.KindPlanning, "duplicate step id %q", s.ID)
		}
		index[s.ID] = i
	}
	for _, s := range plan {
		for _, dep := range s.DependsOn {
			if _, ok := index[dep]; !ok {
				return nil, failure.New(failure.KindPlanning, "step %s depends on unknown step %q", s.ID, dep)
			}
		}
	}

	done := make(map[string]bool, len(plan))
	out := make([]mission.Step, 0, len(plan))
	for len(out) < len(plan) {
		progressed := false
		for _, s := range plan {
			if done[s.ID] || !ready(s, done) {
				continue
			}
			done[s.ID] = true
			out = append(out, s)
			progressed = true
			break
		}
		if !progressed {
			return nil, failure.New(failure.KindPlanning, "plan has a dependency cycle")
		}
	}
	return out, nil
}

func ready(s mission.Step, done map[string]bool) bool {
	for _, dep := range s.DependsOn {
		if !done[dep] {
			return false
		}
	}
	return true
}

// resolvePayload substitutes @results.<step>.<key> references with earlier
// step outputs. A value that is exactly one reference keeps the output's
// type; references inside longer strings are formatted.
func resolvePayload(payload map[string]any, results map[string]map[string]any) map[string]any {
	resolved := make(map[string]any, len(payload))
	for key, val := range payload {
		resolved[key] = resolveValue(val, results)
	}
	return resolved
}

func resolveValue(val any, results map[string]map[string]any) any {
	switch v := val.(type) {
	case string:
		return resolveString(v, results)
	case map[string]any:
		return resolvePayload(v, results)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = resolveValue(item, results)
		}
		return out
	}
	return val
}

func resolveString(str string, results map[string]map[string]any) any {
	if loc := resultsRef.FindStringSubmatchIndex(str); loc != nil && loc[0] == 0 && loc[1] == len(str) {
		if v, ok := lookup(results, str[loc[2]:loc[3]], str[loc[4]:loc[5]]); ok {
			return v
		}
		return ""
	}
	return resultsRef.ReplaceAllStringFunc(str, func(match string) string {
		sub := resultsRef.FindStringSubmatch(match)
		if len(sub) != 3 {
			return ""
		}
		if v, ok := lookup(results, sub[1], sub[2]); ok {
			return fmt.Sprintf("%v", v)
		}
		return ""
	})
}

func lookup(results map[string]map[string]any, stepID, key string) (any, bool) {
	out, ok := results[stepID]
	if !ok {
		return nil, false
	}
	v, ok := out[key]
	return v, ok
}
