package mission

import (
	"time"

	"myhelper/internal/failure"
	"myhelper/internal/protocol"
)

// Step is one planned tool invocation. Retry is the number of extra attempts
// allowed after the first one fails retryably.
type Step struct {
	ID          string         `json:"step_id"`
	Tool        string         `json:"tool_name"`
	Description string         `json:"description,omitempty"`
	Params      map[string]any `json:"parameters"`
	Retry       int            `json:"retry,omitempty"`
	DependsOn   []string       `json:"depends_on,omitempty"`
}

type StepStatus string

const (
	StepSuccess StepStatus = "success"
	StepFailed  StepStatus = "failed"
	StepSkipped StepStatus = "skipped"
)

type Attempt struct {
	Number     int          `json:"number"`
	Status     StepStatus   `json:"status"`
	Error      string       `json:"error,omitempty"`
	ErrorKind  failure.Kind `json:"error_kind,omitempty"`
	DurationMs int64        `json:"duration_ms"`
}

type LogEntry struct {
	StepID     string            `json:"step_id"`
	ToolName   string            `json:"tool_name"`
	Request    *protocol.Request `json:"request,omitempty"`
	Status     StepStatus        `json:"status"`
	Output     map[string]any    `json:"output,omitempty"`
	Error      string            `json:"error,omitempty"`
	ErrorKind  failure.Kind      `json:"error_kind,omitempty"`
	Attempts   []Attempt         `json:"attempts,omitempty"`
	StartedAt  time.Time         `json:"started_at"`
	DurationMs int64             `json:"duration_ms"`
}

type ExecutionLog []LogEntry

// Failed is true iff any entry failed.
func (l ExecutionLog) Failed() bool {
	for _, e := range l {
		if e.Status == StepFailed {
			return true
		}
	}
	return false
}

// FirstFailure returns the first failed entry, if any.
func (l ExecutionLog) FirstFailure() (LogEntry, bool) {
	for _, e := range l {
		if e.Status == StepFailed {
			return e, true
		}
	}
	return LogEntry{}, false
}

func (l ExecutionLog) Count(status StepStatus) int {
	n := 0
	for _, e := range l {
		if e.Status == status {
			n++
		}
	}
	return n
}

type Progress struct {
	CurrentStep    string  `json:"current_step,omitempty"`
	TotalSteps     int     `json:"total_steps"`
	CompletedSteps int     `json:"completed_steps"`
	Percentage     float64 `json:"percentage"`
}

// Progress counts finished (success or failed) log entries against the plan.
func (m *Mission) Progress() Progress {
	p := Progress{TotalSteps: len(m.Plan)}
	for _, e := range m.ExecutionLog {
		if e.Status == StepSuccess || e.Status == StepFailed {
			p.CompletedSteps++
		}
	}
	if m.Status == StatusExecuting && p.CompletedSteps < len(m.Plan) {
		done := make(map[string]struct{}, len(m.ExecutionLog))
		for _, e := range m.ExecutionLog {
			done[e.StepID] = struct{}{}
		}
		for _, s := range m.Plan {
			if _, ok := done[s.ID]; !ok {
				p.CurrentStep = s.ID
				break
			}
		}
	}
	if p.TotalSteps > 0 {
		pct := float64(p.CompletedSteps) / float64(p.TotalSteps) * 100
		p.Percentage = float64(int(pct*10+0.5)) / 10
	}
	return p
}

// Learning is an append-only record derived from a finished mission.
type Learning struct {
	ID         string    `json:"id"`
	MissionID  string    `json:"mission_id"`
	TaskID     string    `json:"task_id"`
	Category   string    `json:"category"`
	Content    string    `json:"content"`
	Confidence float64   `json:"confidence"`
	CreatedAt  time.Time `json:"created_at"`
}

const (
	CategorySuccessPattern  = "success_pattern"
	CategoryFailureAnalysis = "failure_analysis"
	CategoryOptimization    = "optimization"
)
