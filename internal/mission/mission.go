// Package mission holds the persisted mission record, its plan and
// execution log, and the lifecycle transition table.
package mission

import (
	"fmt"
	"time"

	"myhelper/internal/failure"
)

type Status string

const (
	StatusQueued    Status = "queued"
	StatusPlanning  Status = "planning"
	StatusExecuting Status = "executing"
	StatusReporting Status = "reporting"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Moves back to queued are only made by crash recovery.
var allowedTransitions = map[Status]map[Status]struct{}{
	StatusQueued: {
		StatusPlanning: {},
	},
	StatusPlanning: {
		StatusExecuting: {},
		StatusFailed:    {},
		StatusQueued:    {},
	},
	StatusExecuting: {
		StatusReporting: {},
		StatusFailed:    {},
		StatusQueued:    {},
	},
	StatusReporting: {
		StatusCompleted: {},
		StatusFailed:    {},
		StatusQueued:    {},
	},
	StatusCompleted: {},
	StatusFailed:    {},
}

func ValidStatus(s Status) bool {
	_, ok := allowedTransitions[s]
	return ok
}

func ValidateTransition(from, to Status) error {
	if !ValidStatus(from) {
		return failure.New(failure.KindInternal, "invalid mission status %q", from)
	}
	if !ValidStatus(to) {
		return failure.New(failure.KindInternal, "invalid mission status %q", to)
	}
	if _, ok := allowedTransitions[from][to]; !ok {
		return failure.New(failure.KindInternal, "invalid mission transition: %s -> %s", from, to)
	}
	return nil
}

func (s Status) Terminal() bool { return s == StatusCompleted || s == StatusFailed }

// Active reports whether a worker owns missions in this status.
func (s Status) Active() bool {
	return s == StatusPlanning || s == StatusExecuting || s == StatusReporting
}

type Transition struct {
	From   Status    `json:"from"`
	To     Status    `json:"to"`
	At     time.Time `json:"at"`
	Worker string    `json:"worker,omitempty"`
}

type Mission struct {
	ID             string           `json:"id"`
	TaskID         string           `json:"task_id"`
	TriggerContext map[string]any   `json:"trigger_context"`
	Status         Status           `json:"status"`
	CreatedAt      time.Time        `json:"created_at"`
	StartedAt      *time.Time       `json:"started_at"`
	FinishedAt     *time.Time       `json:"finished_at"`
	Plan           []Step           `json:"plan"`
	ExecutionLog   ExecutionLog     `json:"execution_log"`
	FinalSummary   *string          `json:"final_summary"`
	ErrorDetails   *failure.Details `json:"error_details"`
	Learnings      []string         `json:"learnings,omitempty"`

	Owner         string       `json:"owner,omitempty"`
	HeartbeatAt   *time.Time   `json:"heartbeat_at,omitempty"`
	Attempts      int          `json:"attempts"`
	StatusHistory []Transition `json:"status_history"`
}

func New(taskID string, triggerContext map[string]any, now time.Time) *Mission {
	if triggerContext == nil {
		triggerContext = map[string]any{}
	}
	return &Mission{
		TaskID:         taskID,
		TriggerContext: triggerContext,
		Status:         StatusQueued,
		CreatedAt:      now.UTC(),
		ExecutionLog:   ExecutionLog{},
		StatusHistory:  []Transition{},
	}
}

// Transition moves m to status to, recording the edge and maintaining the
// ownership and timestamp fields that depend on it. A requeue keeps the plan
// and discards the partial execution log.
func (m *Mission) Transition(to Status, worker string, now time.Time) error {
	if err := ValidateTransition(m.Status, to); err != nil {
		return err
	}
	now = now.UTC()
	m.StatusHistory = append(m.StatusHistory, Transition{From: m.Status, To: to, At: now, Worker: worker})
	m.Status = to

	switch {
	case to == StatusPlanning:
		m.Owner = worker
		m.StartedAt = &now
		m.HeartbeatAt = &now
		m.Attempts++
	case to == StatusQueued:
		m.Owner = ""
		m.HeartbeatAt = nil
		m.ExecutionLog = ExecutionLog{}
	case to.Terminal():
		m.FinishedAt = &now
		m.Owner = ""
		m.HeartbeatAt = nil
	default:
		m.HeartbeatAt = &now
	}
	return nil
}

// Fail moves m to failed and records the classified cause.
func (m *Mission) Fail(err error, worker string, now time.Time) error {
	if err == nil {
		err = failure.New(failure.KindInternal, "mission failed without error")
	}
	if tErr := m.Transition(StatusFailed, worker, now); tErr != nil {
		return tErr
	}
	m.ErrorDetails = failure.DetailsOf(err)
	return nil
}

// Claimed reports whether worker currently owns m.
func (m *Mission) Claimed(worker string) bool {
	return m.Status.Active() && m.Owner == worker
}

// Stale reports whether m is active but its heartbeat is older than
// staleAfter at now.
func (m *Mission) Stale(now time.Time, staleAfter time.Duration) bool {
	if !m.Status.Active() {
		return false
	}
	last := m.CreatedAt
	if m.HeartbeatAt != nil {
		last = *m.HeartbeatAt
	} else if m.StartedAt != nil {
		last = *m.StartedAt
	}
	return now.Sub(last) > staleAfter
}

// LastChange is the time of the latest transition, or creation.
func (m *Mission) LastChange() time.Time {
	if n := len(m.StatusHistory); n > 0 {
		return m.StatusHistory[n-1].At
	}
	return m.CreatedAt
}

func (m *Mission) ClaimCount() int {
	n := 0
	for _, t := range m.StatusHistory {
		if t.From == StatusQueued && t.To == StatusPlanning {
			n++
		}
	}
	return n
}

func (m *Mission) String() string {
	return fmt.Sprintf("mission %s (%s, %s)", m.ID, m.TaskID, m.Status)
}
