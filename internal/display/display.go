// Package display renders plans and missions as terminal text.
package display

import (
	"fmt"
	"sort"
	"strings"

	"myhelper/internal/catalog"
	"myhelper/internal/mission"
	"myhelper/internal/utils"
)

const (
	maxPayloadValueLength = 100
	rule                  = "--------------------------------------------------"
)

// FormatPlan is the truncated form shown on stdout. Steps using risky tools
// are marked with "!"; cat may be nil.
func FormatPlan(plan []mission.Step, cat *catalog.Catalog) string {
	return formatPlan(plan, cat, maxPayloadValueLength)
}

// FormatPlanFull keeps every parameter value whole, for logs.
func FormatPlanFull(plan []mission.Step, cat *catalog.Catalog) string {
	return formatPlan(plan, cat, -1)
}

func formatPlan(plan []mission.Step, cat *catalog.Catalog, limit int) string {
	risky := map[string]bool{}
	if cat != nil {
		for _, id := range utils.RiskySteps(plan, cat) {
			risky[id] = true
		}
	}

	var sb strings.Builder
	sb.WriteString("Execution plan:\n")
	sb.WriteString(rule + "\n")
	for i, step := range plan {
		mark := " "
		if risky[step.ID] {
			mark = "!"
		}
		fmt.Fprintf(&sb, "%s%2d. %s (tool: %s)", mark, i+1, step.ID, step.Tool)
		if len(step.DependsOn) > 0 {
			fmt.Fprintf(&sb, " after %s", strings.Join(step.DependsOn, ", "))
		}
		if step.Retry > 0 {
			fmt.Fprintf(&sb, " retry=%d", step.Retry)
		}
		sb.WriteString("\n")
		for _, key := range sortedKeys(step.Params) {
			fmt.Fprintf(&sb, "      %s: %s\n", key, formatValueForDisplay(step.Params[key], limit))
		}
	}
	sb.WriteString(rule)
	return sb.String()
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// formatValueForDisplay keeps a value on one line; limit < 0 disables
// truncation.
func formatValueForDisplay(value any, limit int) string {
	s := fmt.Sprintf("%v", value)
	s = strings.ReplaceAll(s, "\n", "\\n")
	if limit >= 0 && len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
