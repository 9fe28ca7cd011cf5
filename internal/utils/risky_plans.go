package utils

import (
	"myhelper/internal/catalog"
	"myhelper/internal/mission"
)

// RiskySteps returns the ids of steps whose tool is flagged risky in the
// catalog, in plan order.
func RiskySteps(plan []mission.Step, cat *catalog.Catalog) []string {
	var out []string
	for _, step := range plan {
		if t, ok := cat.Tool(step.Tool); ok && t.Risky {
			out = append(out, step.ID)
		}
	}
	return out
}

func IsPlanRisky(plan []mission.Step, cat *catalog.Catalog) bool {
	return len(RiskySteps(plan, cat)) > 0
}

func IsToolRisky(toolID string, cat *catalog.Catalog) bool {
	t, ok := cat.Tool(toolID)
	return ok && t.Risky
}
