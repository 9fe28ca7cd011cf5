// Package notifier delivers mission outcomes to people. Delivery is best
// effort: a failed notification never changes a mission's state.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"myhelper/internal/failure"
	"myhelper/internal/logger"
	"myhelper/internal/metrics"
	"myhelper/internal/mission"
)

// Event is what a notifier is told about a finished mission.
type Event struct {
	MissionID string           `json:"mission_id"`
	TaskID    string           `json:"task_id"`
	Status    mission.Status   `json:"status"`
	Summary   string           `json:"summary,omitempty"`
	Error     *failure.Details `json:"error_details,omitempty"`
}

// EventOf builds the event for a terminal mission.
func EventOf(m *mission.Mission) Event {
	e := Event{MissionID: m.ID, TaskID: m.TaskID, Status: m.Status, Error: m.ErrorDetails}
	if m.FinalSummary != nil {
		e.Summary = *m.FinalSummary
	}
	return e
}

type Notifier interface {
	NotifySuccess(ctx context.Context, e Event) error
	NotifyFailure(ctx context.Context, e Event) error
}

// Named notifiers are labeled by name in the notify error metric.
type Named interface {
	Notifier
	Name() string
}

// Send routes e to the success or failure method by its status.
func Send(ctx context.Context, n Notifier, e Event) error {
	if e.Status == mission.StatusCompleted {
		return n.NotifySuccess(ctx, e)
	}
	return n.NotifyFailure(ctx, e)
}

func title(e Event) string {
	if e.Status == mission.StatusCompleted {
		return fmt.Sprintf("Mission %s (%s) completed", e.MissionID, e.TaskID)
	}
	return fmt.Sprintf("Mission %s (%s) failed", e.MissionID, e.TaskID)
}

func body(e Event) string {
	if e.Error != nil {
		return fmt.Sprintf("%s: %s", e.Error.Kind, e.Error.Message)
	}
	return e.Summary
}

// Log writes outcomes to the structured log.
type Log struct {
	log *slog.Logger
}

func NewLog(log *slog.Logger) *Log {
	return &Log{log: logger.Component(log, "notifier")}
}

func (l *Log) Name() string { return "log" }

func (l *Log) NotifySuccess(_ context.Context, e Event) error {
	l.log.Info("mission completed", "mission_id", e.MissionID, "task_id", e.TaskID)
	return nil
}

func (l *Log) NotifyFailure(_ context.Context, e Event) error {
	attrs := []any{"mission_id", e.MissionID, "task_id", e.TaskID}
	if e.Error != nil {
		attrs = append(attrs, "kind", e.Error.Kind, "error", e.Error.Message)
	}
	l.log.Warn("mission failed", attrs...)
	return nil
}

// Multi fans an event out to every notifier. One failing does not stop the
// others.
type Multi struct {
	notifiers []Notifier
	log       *slog.Logger
}

func NewMulti(log *slog.Logger, ns ...Notifier) *Multi {
	return &Multi{notifiers: ns, log: logger.Component(log, "notifier")}
}

func (m *Multi) Len() int { return len(m.notifiers) }

func (m *Multi) NotifySuccess(ctx context.Context, e Event) error {
	return m.each(ctx, e, Notifier.NotifySuccess)
}

func (m *Multi) NotifyFailure(ctx context.Context, e Event) error {
	return m.each(ctx, e, Notifier.NotifyFailure)
}

func (m *Multi) each(ctx context.Context, e Event, call func(Notifier, context.Context, Event) error) error {
	var errs []error
	for _, n := range m.notifiers {
		if err := call(n, ctx, e); err != nil {
			name := nameOf(n)
			metrics.NotifyErrors.WithLabelValues(name).Inc()
			m.log.Warn("notification failed", "notifier", name, "mission_id", e.MissionID, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

func nameOf(n Notifier) string {
	if named, ok := n.(Named); ok {
		return named.Name()
	}
	return strings.TrimPrefix(fmt.Sprintf("%T", n), "*")
}
