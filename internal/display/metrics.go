package display

import (
	"fmt"
	"strings"

	"myhelper/internal/mission"
)

// FormatMission prints a mission's status and one line per plan step. Plan
// steps with no log entry are shown as skipped once the mission has ended,
// pending before that.
func FormatMission(m *mission.Mission) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Mission %s (%s): %s\n", m.ID, m.TaskID, strings.ToUpper(string(m.Status)))
	p := m.Progress()
	fmt.Fprintf(&sb, "- Progress: %d/%d steps (%.1f%%)  attempts=%d\n", p.CompletedSteps, p.TotalSteps, p.Percentage, m.Attempts)
	if m.StartedAt != nil && m.FinishedAt != nil {
		fmt.Fprintf(&sb, "- Duration: %d ms\n", m.FinishedAt.Sub(*m.StartedAt).Milliseconds())
	}

	entries := make(map[string]mission.LogEntry, len(m.ExecutionLog))
	for _, e := range m.ExecutionLog {
		entries[e.StepID] = e
	}
	for _, step := range m.Plan {
		e, ok := entries[step.ID]
		if !ok {
			status := "pending"
			if m.Status.Terminal() {
				status = string(mission.StepSkipped)
			}
			fmt.Fprintf(&sb, "    • %-14s %-24s %8s  [%s]\n", step.ID, "("+step.Tool+")", "-", status)
			continue
		}
		fmt.Fprintf(&sb, "    • %-14s %-24s %5d ms  [%s]", e.StepID, "("+e.ToolName+")", e.DurationMs, e.Status)
		if n := len(e.Attempts); n > 1 {
			fmt.Fprintf(&sb, " attempts=%d", n)
		}
		sb.WriteString("\n")
		if e.Error != "" {
			fmt.Fprintf(&sb, "      %s: %s\n", e.ErrorKind, formatValueForDisplay(e.Error, maxPayloadValueLength))
		}
	}
	if m.ErrorDetails != nil {
		fmt.Fprintf(&sb, "Error (%s): %s\n", m.ErrorDetails.Kind, m.ErrorDetails.Message)
	}
	return sb.String()
}
