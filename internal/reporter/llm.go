package reporter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"myhelper/internal/failure"
	"myhelper/internal/llm_client"
	"myhelper/internal/mission"
)

// LLM asks a model for the summary. Rules supplies learnings when the model
// returns none.
type LLM struct {
	Provider llm_client.Provider
	Model    string
	Fallback Rules
}

type llmReport struct {
	Summary   string `json:"summary"`
	Learnings []struct {
		Category   string  `json:"category"`
		Content    string  `json:"content"`
		Confidence float64 `json:"confidence"`
	} `json:"learnings"`
}

var categories = map[string]struct{}{
	mission.CategorySuccessPattern:  {},
	mission.CategoryFailureAnalysis: {},
	mission.CategoryOptimization:    {},
}

func (r LLM) Summarize(ctx context.Context, plan []mission.Step, log mission.ExecutionLog) (string, []mission.Learning, error) {
	if r.Provider == nil {
		return "", nil, failure.Wrap(failure.KindReporting, llm_client.ErrNotInitialized, "summarize")
	}
	prompt, err := buildReportPrompt(plan, log)
	if err != nil {
		return "", nil, failure.Wrap(failure.KindReporting, err, "build report prompt")
	}
	raw, err := r.Provider.GenerateJSON(ctx, prompt, r.Provider.AllowedModelOrDefault(r.Model), nil)
	if err != nil {
		return "", nil, failure.Wrap(failure.KindReporting, err, "failed to generate report from LLM")
	}

	var rep llmReport
	if err := json.Unmarshal([]byte(raw), &rep); err != nil {
		return "", nil, failure.Wrap(failure.KindReporting, err, "error parsing generated report JSON")
	}
	if strings.TrimSpace(rep.Summary) == "" {
		return "", nil, failure.New(failure.KindReporting, "model returned an empty summary")
	}

	var learnings []mission.Learning
	for _, l := range rep.Learnings {
		if _, ok := categories[l.Category]; !ok || strings.TrimSpace(l.Content) == "" {
			continue
		}
		learnings = append(learnings, mission.Learning{
			Category:   l.Category,
			Content:    l.Content,
			Confidence: min(max(l.Confidence, 0), 1),
		})
	}
	if len(learnings) == 0 {
		learnings = r.Fallback.learnings(r.Fallback.analyze(plan, log), log)
	}
	return rep.Summary, learnings, nil
}

func buildReportPrompt(plan []mission.Step, log mission.ExecutionLog) (string, error) {
	planJSON, err := json.Marshal(plan)
	if err != nil {
		return "", err
	}
	logJSON, err := json.Marshal(log)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString("You are an expert operations analyst. Summarize the mission below for an on-call engineer.\n")
	sb.WriteString("Respond ONLY with this JSON (no extra text):\n")
	sb.WriteString("{\"summary\": \"<markdown report>\", \"learnings\": [{\"category\": \"success_pattern|failure_analysis|optimization\", \"content\": \"<one sentence>\", \"confidence\": <0..1>}]}\n\n")
	sb.WriteString("Rules:\n")
	sb.WriteString("- Base every statement on the plan and execution log. Never invent results.\n")
	sb.WriteString("- Learnings must help plan the next mission of the same task.\n\n")
	sb.WriteString(fmt.Sprintf("PLAN: %s\n", planJSON))
	sb.WriteString(fmt.Sprintf("EXECUTION LOG: %s\n", logJSON))
	sb.WriteString("Assistant JSON response: ")
	return sb.String(), nil
}
