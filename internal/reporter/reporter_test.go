package reporter

import (
	"context"
	"strings"
	"testing"
	"time"

	"myhelper/internal/failure"
	"myhelper/internal/mission"
)

func entry(id, tool string, status mission.StepStatus, ms int64, attempts ...mission.Attempt) mission.LogEntry {
	return mission.LogEntry{
		StepID: id, ToolName: tool, Status: status, DurationMs: ms,
		StartedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), Attempts: attempts,
	}
}

func categoriesOf(t *testing.T, ls []mission.Learning) map[string]int {
	t.Helper()
	out := map[string]int{}
	for _, l := range ls {
		out[l.Category]++
		if l.Confidence <= 0 || l.Confidence > 1 {
			t.Errorf("learning %q has confidence %v", l.Content, l.Confidence)
		}
	}
	return out
}

func TestRulesSummarize(t *testing.T) {
	plan := []mission.Step{{ID: "a", Tool: "fetch"}, {ID: "b", Tool: "render"}, {ID: "c", Tool: "save"}}

	testCases := []struct {
		name           string
		log            mission.ExecutionLog
		wantInSummary  []string
		wantCategories map[string]int
	}{
		{
			name: "all fast and successful",
			log: mission.ExecutionLog{
				entry("a", "fetch", mission.StepSuccess, 100),
				entry("b", "render", mission.StepSuccess, 200),
				entry("c", "save", mission.StepSuccess, 50),
			},
			wantInSummary:  []string{"**Status:** SUCCESS", "**Success Rate:** 100.00%", "- Skipped: 0"},
			wantCategories: map[string]int{mission.CategorySuccessPattern: 2},
		},
		{
			name: "retried and slow",
			log: mission.ExecutionLog{
				entry("a", "fetch", mission.StepSuccess, 45_000,
					mission.Attempt{Number: 1, Status: mission.StepFailed, ErrorKind: failure.KindTimeout, Error: "deadline"},
					mission.Attempt{Number: 2, Status: mission.StepSuccess}),
				entry("b", "render", mission.StepSuccess, 10),
				entry("c", "save", mission.StepSuccess, 10),
			},
			wantInSummary: []string{"Steps needed retries: a", "Consider optimizing", "Total Tool Calls: 4"},
			wantCategories: map[string]int{
				mission.CategorySuccessPattern:  2,
				mission.CategoryFailureAnalysis: 1,
				mission.CategoryOptimization:    1,
			},
		},
		{
			name: "failed with a skipped step",
			log: mission.ExecutionLog{
				entry("a", "fetch", mission.StepSuccess, 10),
				entry("b", "render", mission.StepFailed, 10,
					mission.Attempt{Number: 1, Status: mission.StepFailed, ErrorKind: failure.KindExecution, Error: "exit 2"}),
			},
			wantInSummary: []string{"**Status:** FAILED", "- Skipped: 1", "Failed Tools: render", "below 80%"},
			wantCategories: map[string]int{
				mission.CategorySuccessPattern:  2,
				mission.CategoryFailureAnalysis: 1,
			},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			summary, learnings, err := Rules{}.Summarize(context.Background(), plan, tc.log)
			if err != nil {
				t.Fatal(err)
			}
			for _, want := range tc.wantInSummary {
				if !strings.Contains(summary, want) {
					t.Errorf("summary missing %q:\n%s", want, summary)
				}
			}
			got := categoriesOf(t, learnings)
			for cat, n := range tc.wantCategories {
				if got[cat] != n {
					t.Errorf("%s learnings = %d, want %d (%+v)", cat, got[cat], n, learnings)
				}
			}
			if len(got) != len(tc.wantCategories) {
				t.Errorf("categories = %v, want %v", got, tc.wantCategories)
			}
		})
	}
}

type stubProvider struct{ response string }

func (s stubProvider) Name() string { return "stub" }
func (s stubProvider) DefaultModel() string { return "stub-1" }
func (s stubProvider) AllowedModelOrDefault(string) string { return "stub-1" }
func (s stubProvider) Generate(context.Context, string, string) (string, error) {
	return s.response, nil
}
func (s stubProvider) GenerateJSON(context.Context, string, string, any) (string, error) {
	return s.response, nil
}

func TestLLMSummarize(t *testing.T) {
	plan := []mission.Step{{ID: "a", Tool: "fetch"}}
	log := mission.ExecutionLog{entry("a", "fetch", mission.StepSuccess, 10)}

	testCases := []struct {
		name          string
		response      string
		wantErr       bool
		wantLearnings int
		wantFromRules bool
	}{
		{
			name:          "summary and learnings",
			response:      `{"summary":"All good.","learnings":[{"category":"success_pattern","content":"fetch is reliable","confidence":1.5},{"category":"gossip","content":"ignored"}]}`,
			wantLearnings: 1,
		},
		{name: "no learnings falls back to rules", response: `{"summary":"All good."}`, wantLearnings: 2, wantFromRules: true},
		{name: "empty summary", response: `{"summary":""}`, wantErr: true},
		{name: "not json", response: `summary: fine`, wantErr: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			summary, learnings, err := LLM{Provider: stubProvider{response: tc.response}}.Summarize(context.Background(), plan, log)
			if tc.wantErr {
				if !failure.Is(err, failure.KindReporting) {
					t.Errorf("err = %v, want reporting failure", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if summary != "All good." {
				t.Errorf("summary = %q", summary)
			}
			if len(learnings) != tc.wantLearnings {
				t.Fatalf("learnings = %+v", learnings)
			}
			if !tc.wantFromRules && learnings[0].Confidence != 1 {
				t.Errorf("confidence = %v, want clamped to 1", learnings[0].Confidence)
			}
		})
	}
}
