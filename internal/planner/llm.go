package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"myhelper/internal/catalog"
	"myhelper/internal/failure"
	"myhelper/internal/llm_client"
	"myhelper/internal/logger"
	"myhelper/internal/mission"
)

// maxPromptLearnings bounds how much history goes into one prompt.
const maxPromptLearnings = 10

// LLMPlanner asks a language model for a plan.
type LLMPlanner struct {
	provider llm_client.Provider
	catalog  *catalog.Catalog
	model    string
	log      *slog.Logger
}

func NewLLMPlanner(p llm_client.Provider, cat *catalog.Catalog, model string, log *slog.Logger) *LLMPlanner {
	return &LLMPlanner{provider: p, catalog: cat, model: model, log: logger.Component(log, "planner")}
}

func (p *LLMPlanner) Plan(ctx context.Context, task catalog.Task, triggerContext map[string]any, learnings []mission.Learning) ([]mission.Step, error) {
	if p.provider == nil {
		return nil, failure.Wrap(failure.KindPlanning, llm_client.ErrNotInitialized, "plan %s", task.ID)
	}
	prompt := buildPlanPrompt(p.catalog, task, triggerContext, learnings)
	model := p.provider.AllowedModelOrDefault(p.model)

	raw, err := p.provider.GenerateJSON(ctx, prompt, model, nil)
	if err != nil {
		return nil, failure.Wrap(failure.KindPlanning, err, "failed to generate plan from LLM")
	}
	steps, err := decodePlan([]byte(raw))
	if err != nil {
		p.log.Debug("unparseable plan", "task_id", task.ID, "raw", raw)
		return nil, failure.Wrap(failure.KindPlanning, err, "error parsing generated plan JSON")
	}
	p.log.Info("plan generated", "task_id", task.ID, "steps", len(steps), "model", model)
	return steps, nil
}

func buildPlanPrompt(cat *catalog.Catalog, task catalog.Task, triggerContext map[string]any, learnings []mission.Learning) string {
	var sb strings.Builder

	sb.WriteString("You are an expert workflow planner. Convert the task into a STRICT JSON execution plan.\n")
	sb.WriteString("Respond ONLY with JSON. No extra text.\n\n")

	sb.WriteString(fmt.Sprintf("TASK: %s (%s)\n", task.Name, task.ID))
	if task.Description != "" {
		sb.WriteString(fmt.Sprintf("DESCRIPTION: %s\n", task.Description))
	}
	trigger, _ := json.Marshal(triggerContext)
	sb.WriteString(fmt.Sprintf("TRIGGER CONTEXT: %s\n\n", trigger))

	if len(learnings) > 0 {
		sb.WriteString("PAST LEARNINGS (most confident first):\n")
		for _, l := range topLearnings(learnings, maxPromptLearnings) {
			sb.WriteString(fmt.Sprintf("- [%s %.2f] %s\n", l.Category, l.Confidence, l.Content))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("OUTPUT JSON SCHEMA:\n")
	sb.WriteString("{\"steps\": [{\"step_id\": \"<slug>\", \"tool_name\": \"<tool id>\", \"description\": \"<string>\", \"parameters\": {}, \"retry\": <int>, \"depends_on\": [\"<step_id>\"]}]}\n\n")

	sb.WriteString("SEMANTICS:\n")
	sb.WriteString("- Steps run ONE AT A TIME, in listed order, after everything in their depends_on.\n")
	sb.WriteString("- A step may reference an earlier output via '@results.<step_id>.<key>'; list that step in depends_on.\n")
	sb.WriteString("- The first step that fails stops the mission. 'retry' is how many extra attempts a timeout or transient error gets.\n\n")

	sb.WriteString(cat.GeneratePromptPart(task) + "\n")

	sb.WriteString("HARD RULES:\n")
	sb.WriteString("1) Use ONLY the tools listed above, with ONLY their declared parameters.\n")
	sb.WriteString("2) Supply every required parameter. Enum parameters must use one of the listed values.\n")
	sb.WriteString("3) Step IDs must be short, unique and lowercase.\n")
	sb.WriteString("4) Never invent URLs or file paths that are not in the trigger context or an earlier output.\n\n")

	sb.WriteString("Generate the plan now.\nAssistant: ")
	return sb.String()
}

func topLearnings(ls []mission.Learning, n int) []mission.Learning {
	sorted := append([]mission.Learning(nil), ls...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Confidence > sorted[j].Confidence })
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}
