// Package metrics holds the engine's Prometheus collectors. They register
// with the default registry and are served on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MissionTransitions counts persisted status changes.
	// Labels: from, to
	MissionTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "myhelper_mission_transitions_total",
			Help: "Mission status transitions by source and target status",
		},
		[]string{"from", "to"},
	)

	// MissionDuration measures claim-to-terminal time in seconds.
	// Labels: status (completed|failed)
	MissionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "myhelper_mission_duration_seconds",
			Help:    "Duration of missions from claim to terminal status",
			Buckets: []float64{1, 5, 10, 30, 60, 300, 900, 1800, 3600},
		},
		[]string{"status"},
	)

	// ToolInvocations counts gateway calls.
	// Labels: tool, status (success|failed|rejected)
	ToolInvocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "myhelper_tool_invocations_total",
			Help: "Tool gateway invocations by tool and outcome",
		},
		[]string{"tool", "status"},
	)

	ToolDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "myhelper_tool_duration_seconds",
			Help:    "Duration of executed tool invocations",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		},
		[]string{"tool"},
	)

	StepRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "myhelper_step_retries_total",
			Help: "Plan step retries by tool",
		},
		[]string{"tool"},
	)

	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "myhelper_queue_depth",
			Help: "Missions waiting to be claimed",
		},
	)

	BusyWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "myhelper_workers_busy",
			Help: "Workers currently coordinating a mission",
		},
	)

	Recovered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "myhelper_missions_recovered_total",
			Help: "Stale missions moved back to the queue",
		},
	)

	NotifyErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "myhelper_notify_errors_total",
			Help: "Notification delivery failures by notifier",
		},
		[]string{"notifier"},
	)
)

func ObserveTool(tool, status string, d time.Duration) {
	ToolInvocations.WithLabelValues(tool, status).Inc()
	if status != "rejected" {
		ToolDuration.WithLabelValues(tool).Observe(d.Seconds())
	}
}
