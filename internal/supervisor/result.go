package supervisor

import (
	"myhelper/internal/failure"
	"myhelper/internal/mission"
)

// Outcome is the short form of a terminal mission published on
// Options.Results.
type Outcome struct {
	MissionID string           `json:"mission_id"`
	TaskID    string           `json:"task_id"`
	Status    mission.Status   `json:"status"`
	Steps     int              `json:"steps"`
	Summary   string           `json:"summary,omitempty"`
	Error     *failure.Details `json:"error_details,omitempty"`
}

func outcomeOf(m mission.Mission) Outcome {
	o := Outcome{
		MissionID: m.ID,
		TaskID:    m.TaskID,
		Status:    m.Status,
		Steps:     len(m.ExecutionLog),
		Error:     m.ErrorDetails,
	}
	if m.FinalSummary != nil {
		o.Summary = *m.FinalSummary
	}
	return o
}
