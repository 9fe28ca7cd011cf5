// Package reporter turns a finished plan and its execution log into a
// summary and learnings for future planning.
package reporter

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"myhelper/internal/mission"
)

// Reporter summarizes one mission. The coordinator fills in ids and
// timestamps on the returned learnings.
type Reporter interface {
	Summarize(ctx context.Context, plan []mission.Step, log mission.ExecutionLog) (string, []mission.Learning, error)
}

const (
	fastStep = 5 * time.Second
	// DefaultSlowStep marks a step as a bottleneck.
	DefaultSlowStep = 30 * time.Second
)

// Rules is the deterministic reporter.
type Rules struct {
	SlowStep time.Duration
}

type analysis struct {
	total, succeeded, failed, skipped int
	successRate                       float64
	elapsed                           time.Duration
	avgStep, maxStep                  time.Duration
	calls                             int
	failedTools                       []string
	retried                           []string
	slow                              []mission.LogEntry
	fast                              []mission.LogEntry
}

func (r Rules) Summarize(ctx context.Context, plan []mission.Step, log mission.ExecutionLog) (string, []mission.Learning, error) {
	if err := ctx.Err(); err != nil {
		return "", nil, err
	}
	a := r.analyze(plan, log)
	return r.render(a), r.learnings(a, log), nil
}

func (r Rules) slowStep() time.Duration {
	if r.SlowStep > 0 {
		return r.SlowStep
	}
	return DefaultSlowStep
}

func (r Rules) analyze(plan []mission.Step, log mission.ExecutionLog) analysis {
	a := analysis{total: len(plan)}
	failedTools := map[string]struct{}{}
	var first, last time.Time
	var sum time.Duration

	for _, e := range log {
		d := time.Duration(e.DurationMs) * time.Millisecond
		a.calls += max(len(e.Attempts), 1)
		sum += d
		a.maxStep = max(a.maxStep, d)
		if first.IsZero() || e.StartedAt.Before(first) {
			first = e.StartedAt
		}
		if end := e.StartedAt.Add(d); end.After(last) {
			last = end
		}

		switch e.Status {
		case mission.StepSuccess:
			a.succeeded++
			if d < fastStep {
				a.fast = append(a.fast, e)
			}
		case mission.StepFailed:
			a.failed++
			failedTools[e.ToolName] = struct{}{}
		}
		if len(e.Attempts) > 1 {
			a.retried = append(a.retried, e.StepID)
		}
		if d > r.slowStep() {
			a.slow = append(a.slow, e)
		}
	}
	a.skipped = a.total - len(log)
	if a.total > 0 {
		a.successRate = float64(a.succeeded) / float64(a.total) * 100
	}
	if len(log) > 0 {
		a.avgStep = sum / time.Duration(len(log))
		a.elapsed = last.Sub(first)
	}
	for t := range failedTools {
		a.failedTools = append(a.failedTools, t)
	}
	sort.Strings(a.failedTools)
	return a
}

func (r Rules) render(a analysis) string {
	status := "SUCCESS"
	if a.failed > 0 {
		status = "FAILED"
	}
	lines := []string{
		"# Execution Report",
		fmt.Sprintf("**Status:** %s", status),
		fmt.Sprintf("**Success Rate:** %.2f%%", a.successRate),
		"",
		"## Summary",
		fmt.Sprintf("- Total Steps: %d", a.total),
		fmt.Sprintf("- Successful: %d", a.succeeded),
		fmt.Sprintf("- Failed: %d", a.failed),
		fmt.Sprintf("- Skipped: %d", a.skipped),
		fmt.Sprintf("- Execution Time: %.2f seconds", a.elapsed.Seconds()),
		"",
	}
	if a.calls > 0 {
		lines = append(lines,
			"## Performance Metrics",
			fmt.Sprintf("- Average Step Time: %.2f seconds", a.avgStep.Seconds()),
			fmt.Sprintf("- Max Step Time: %.2f seconds", a.maxStep.Seconds()),
			fmt.Sprintf("- Total Tool Calls: %d", a.calls),
			"",
		)
	}
	if a.failed > 0 {
		lines = append(lines,
			"## Failure Analysis",
			fmt.Sprintf("- Failure Rate: %.2f%%", float64(a.failed)/float64(max(a.total, 1))*100),
			fmt.Sprintf("- Failed Tools: %s", strings.Join(a.failedTools, ", ")),
			"",
		)
	}
	if recs := recommendations(a); len(recs) > 0 {
		lines = append(lines, "## Recommendations")
		for _, rec := range recs {
			lines = append(lines, "- "+rec)
		}
	}
	return strings.TrimRight(strings.Join(lines, "\n"), "\n")
}

func recommendations(a analysis) []string {
	var out []string
	if len(a.failedTools) > 0 {
		out = append(out, "Review and test the following tools: "+strings.Join(a.failedTools, ", "))
	}
	if len(a.slow) > 0 {
		out = append(out, "Consider optimizing slow-executing steps or adding timeout configurations")
	}
	if len(a.retried) > 0 {
		out = append(out, fmt.Sprintf("Steps needed retries: %s", strings.Join(a.retried, ", ")))
	}
	if a.total > 0 && a.successRate < 80 {
		out = append(out, "Overall success rate is below 80%, consider reviewing task configuration and tool reliability")
	}
	return out
}

func (r Rules) learnings(a analysis, log mission.ExecutionLog) []mission.Learning {
	var out []mission.Learning

	var tools []string
	for _, e := range log {
		if e.Status == mission.StepSuccess {
			tools = append(tools, e.ToolName)
		}
	}
	if len(tools) > 0 {
		out = append(out, mission.Learning{
			Category:   mission.CategorySuccessPattern,
			Content:    "Successful tool execution sequence: " + strings.Join(tools, " -> "),
			Confidence: 0.8,
		})
	}
	if len(a.fast) > 0 {
		out = append(out, mission.Learning{
			Category:   mission.CategorySuccessPattern,
			Content:    fmt.Sprintf("%d steps executed in under %s", len(a.fast), fastStep),
			Confidence: 0.7,
		})
	}

	if a.failed > 0 || len(a.retried) > 0 {
		var reasons []string
		for _, e := range log {
			for _, at := range e.Attempts {
				if at.Status == mission.StepFailed {
					reasons = append(reasons, fmt.Sprintf("%s (%s): %s", e.ToolName, at.ErrorKind, at.Error))
				}
			}
		}
		out = append(out, mission.Learning{
			Category:   mission.CategoryFailureAnalysis,
			Content:    fmt.Sprintf("Identified %d failed attempts: %s", len(reasons), strings.Join(reasons, "; ")),
			Confidence: 0.9,
		})
	}

	if len(a.slow) > 0 {
		var parts []string
		for _, e := range a.slow {
			parts = append(parts, fmt.Sprintf("step %s (%s) took %.2f seconds", e.StepID, e.ToolName, float64(e.DurationMs)/1000))
		}
		out = append(out, mission.Learning{
			Category:   mission.CategoryOptimization,
			Content:    "Performance bottlenecks: " + strings.Join(parts, "; "),
			Confidence: 0.8,
		})
	}
	return out
}
