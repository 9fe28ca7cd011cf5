package display

import (
	"fmt"
	"strings"

	"myhelper/internal/catalog"
	"myhelper/internal/mission"
	"myhelper/internal/utils"
)

// FormatPlansCatalog lists the plans on file, one line per task.
func FormatPlansCatalog(file string, tasks []string, plans func(string) ([]mission.Step, bool), cat *catalog.Catalog) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d plan(s) in %s:\n", len(tasks), file)
	for i, taskID := range tasks {
		steps, _ := plans(taskID)
		risky := cat != nil && utils.IsPlanRisky(steps, cat)
		fmt.Fprintf(&sb, "  %2d. %s  (steps=%d, risky=%v)\n", i+1, taskID, len(steps), risky)
	}
	return sb.String()
}

// FormatTools lists catalog tools with their kind and parameters.
func FormatTools(tools []catalog.Tool) string {
	var sb strings.Builder
	for _, t := range tools {
		var params []string
		for _, p := range t.Params {
			name := p.Name
			if p.Required {
				name += "*"
			}
			params = append(params, name)
		}
		risky := ""
		if t.Risky {
			risky = " [risky]"
		}
		fmt.Fprintf(&sb, "%-24s %-9s %s%s\n", t.ID, t.Kind, strings.Join(params, " "), risky)
	}
	return sb.String()
}
