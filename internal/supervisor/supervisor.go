// Package supervisor drives a claimed mission through its lifecycle and owns
// mission intake. Every transition is one atomic store update; no store lock
// is held while the planner, the gateway, the reporter or a notifier runs.
package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"myhelper/internal/catalog"
	"myhelper/internal/executor"
	"myhelper/internal/failure"
	"myhelper/internal/logger"
	"myhelper/internal/metrics"
	"myhelper/internal/mission"
	"myhelper/internal/notifier"
	"myhelper/internal/planner"
	"myhelper/internal/reporter"
	"myhelper/internal/store"
)

const maxPlannerLearnings = 20

var (
	errNotQueued     = errors.New("mission is not queued")
	errLostOwnership = errors.New("mission is no longer owned by this worker")
)

type Options struct {
	PlannerTimeout    time.Duration
	ReporterTimeout   time.Duration
	MissionTimeout    time.Duration
	HeartbeatInterval time.Duration
	NotifyTimeout     time.Duration
	// Results, when set, receives an Outcome per terminal mission. Sends
	// never block.
	Results chan<- Outcome
	// TracerProvider defaults to the global provider.
	TracerProvider trace.TracerProvider
	Logger         *slog.Logger
}

func (o *Options) defaults() {
	if o.PlannerTimeout <= 0 {
		o.PlannerTimeout = time.Minute
	}
	if o.ReporterTimeout <= 0 {
		o.ReporterTimeout = time.Minute
	}
	if o.MissionTimeout <= 0 {
		o.MissionTimeout = time.Hour
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = 30 * time.Second
	}
	if o.NotifyTimeout <= 0 {
		o.NotifyTimeout = 30 * time.Second
	}
	if o.TracerProvider == nil {
		o.TracerProvider = otel.GetTracerProvider()
	}
}

type Coordinator struct {
	store    store.Store
	catalog  *catalog.Catalog
	planner  planner.Planner
	executor *executor.Executor
	reporter reporter.Reporter
	notifier notifier.Notifier
	opts     Options
	log      *slog.Logger
	tracer   trace.Tracer
	now      func() time.Time

	notifying sync.WaitGroup
}

func NewCoordinator(s store.Store, cat *catalog.Catalog, p planner.Planner, ex *executor.Executor, r reporter.Reporter, n notifier.Notifier, opts Options) *Coordinator {
	opts.defaults()
	return &Coordinator{
		store:    s,
		catalog:  cat,
		planner:  p,
		executor: ex,
		reporter: r,
		notifier: n,
		opts:     opts,
		log:      logger.Component(opts.Logger, "coordinator"),
		tracer:   opts.TracerProvider.Tracer("myhelper/supervisor"),
		now:      time.Now,
	}
}

// Wait blocks until in-flight notifications finish.
func (c *Coordinator) Wait() { c.notifying.Wait() }

// Run claims id for worker and drives it to a terminal state. A mission that
// is not queued any more is skipped. If ctx is cancelled mid-flight the
// mission is left in its current status for recovery to requeue.
func (c *Coordinator) Run(ctx context.Context, id, worker string) error {
	log := c.log.With("mission_id", id, "worker_id", worker)
	ctx, span := c.tracer.Start(ctx, "mission.run", trace.WithAttributes(
		attribute.String("mission.id", id), attribute.String("worker.id", worker)))
	defer span.End()

	m, err := c.claim(ctx, id, worker)
	switch {
	case errors.Is(err, errNotQueued), errors.Is(err, store.ErrNotFound):
		log.Info("skipping mission", "reason", err)
		return nil
	case err != nil:
		span.RecordError(err)
		return err
	}
	span.SetAttributes(attribute.String("task.id", m.TaskID), attribute.Int("mission.attempt", m.Attempts))
	log.Info("mission claimed", "task_id", m.TaskID, "attempt", m.Attempts)

	missionCtx, cancelMission := context.WithTimeout(ctx, c.opts.MissionTimeout)
	defer cancelMission()
	missionCtx, cancelOwned := context.WithCancelCause(missionCtx)
	defer cancelOwned(nil)

	stopHeartbeat := c.heartbeat(missionCtx, id, worker, cancelOwned)
	defer stopHeartbeat()

	final, err := c.drive(ctx, missionCtx, &m, worker, log)
	stopHeartbeat()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if final == nil {
		return nil
	}
	if final.Status == mission.StatusFailed {
		span.SetStatus(codes.Error, "mission failed")
	}
	c.finish(*final, log)
	return nil
}

// drive returns the terminal mission, or nil when the mission was handed
// back (shutdown or lost ownership).
func (c *Coordinator) drive(ctx, missionCtx context.Context, m *mission.Mission, worker string, log *slog.Logger) (*mission.Mission, error) {
	task, ok := c.catalog.Task(m.TaskID)
	if !ok {
		return c.fail(ctx, m.ID, worker, failure.New(failure.KindNotFound, "task %q is not in the catalog", m.TaskID))
	}

	if len(m.Plan) > 0 {
		log.Info("reusing persisted plan", "steps", len(m.Plan))
	} else {
		plan, err := c.plan(missionCtx, *m, task)
		if handedBack(ctx, missionCtx) {
			return nil, nil
		}
		if err != nil {
			log.Warn("planning failed", "error", err)
			return c.fail(ctx, m.ID, worker, err)
		}
		m.Plan = plan
	}
	if err := planner.ValidatePlan(m.Plan, task); err != nil {
		log.Warn("invalid plan", "error", err)
		return c.fail(ctx, m.ID, worker, err)
	}

	planned := m.Plan
	if _, err := c.transition(ctx, m.ID, worker, mission.StatusExecuting, func(cur *mission.Mission) {
		cur.Plan = planned
	}); err != nil {
		return c.unlessLost(err)
	}

	execLog, err := c.execute(missionCtx, m.ID, worker, planned, task)
	if handedBack(ctx, missionCtx) {
		log.Info("execution interrupted, leaving mission for recovery")
		return nil, nil
	}
	if err != nil {
		return c.fail(ctx, m.ID, worker, err)
	}
	if errors.Is(missionCtx.Err(), context.DeadlineExceeded) {
		return c.failWithAnalysis(ctx, m.ID, worker, planned, execLog,
			failure.Wrap(failure.KindTimeout, missionCtx.Err(), "mission exceeded its %s budget", c.opts.MissionTimeout))
	}
	if entry, failed := execLog.FirstFailure(); failed {
		kind := entry.ErrorKind
		if kind == "" {
			kind = failure.KindExecution
		}
		return c.failWithAnalysis(ctx, m.ID, worker, planned, execLog,
			failure.New(kind, "step %s (%s) failed: %s", entry.StepID, entry.ToolName, entry.Error))
	}

	if _, err := c.transition(ctx, m.ID, worker, mission.StatusReporting, nil); err != nil {
		return c.unlessLost(err)
	}

	summary, learningIDs, err := c.report(missionCtx, *m, planned, execLog)
	if handedBack(ctx, missionCtx) {
		return nil, nil
	}
	if err != nil {
		log.Warn("reporting failed", "error", err)
		return c.fail(ctx, m.ID, worker, err)
	}

	done, err := c.transition(ctx, m.ID, worker, mission.StatusCompleted, func(cur *mission.Mission) {
		cur.FinalSummary = &summary
		cur.Learnings = append(cur.Learnings, learningIDs...)
	})
	if err != nil {
		return c.unlessLost(err)
	}
	log.Info("mission completed", "steps", len(execLog), "learnings", len(learningIDs))
	return &done, nil
}

// handedBack reports whether the worker is shutting down or lost the
// mission, as opposed to the mission running out of time.
func handedBack(ctx, missionCtx context.Context) bool {
	return ctx.Err() != nil || errors.Is(context.Cause(missionCtx), errLostOwnership)
}

func (c *Coordinator) unlessLost(err error) (*mission.Mission, error) {
	if errors.Is(err, errLostOwnership) {
		c.log.Warn("mission taken over during transition", "error", err)
		return nil, nil
	}
	return nil, err
}

// claim moves a queued mission to planning under the record lock.
func (c *Coordinator) claim(ctx context.Context, id, worker string) (mission.Mission, error) {
	m, err := store.Update(ctx, c.store, store.KindMission, id, true, func(m *mission.Mission) error {
		if m.Status != mission.StatusQueued {
			return errNotQueued
		}
		return m.Transition(mission.StatusPlanning, worker, c.now())
	})
	if err == nil {
		metrics.MissionTransitions.WithLabelValues(string(mission.StatusQueued), string(mission.StatusPlanning)).Inc()
	}
	return m, err
}

// transition persists the move to status to, applying mutate first. It
// fails with errLostOwnership when worker no longer owns the mission.
func (c *Coordinator) transition(ctx context.Context, id, worker string, to mission.Status, mutate func(*mission.Mission)) (mission.Mission, error) {
	var from mission.Status
	m, err := store.Update(context.WithoutCancel(ctx), c.store, store.KindMission, id, true, func(m *mission.Mission) error {
		if !m.Claimed(worker) {
			return errLostOwnership
		}
		from = m.Status
		if mutate != nil {
			mutate(m)
		}
		return m.Transition(to, worker, c.now())
	})
	if err != nil {
		return m, err
	}
	metrics.MissionTransitions.WithLabelValues(string(from), string(to)).Inc()
	return m, nil
}

// fail records the classified cause and moves the mission to failed.
func (c *Coordinator) fail(ctx context.Context, id, worker string, cause error) (*mission.Mission, error) {
	return c.failWith(ctx, id, worker, cause, nil)
}

func (c *Coordinator) failWith(ctx context.Context, id, worker string, cause error, learningIDs []string) (*mission.Mission, error) {
	var from mission.Status
	m, err := store.Update(context.WithoutCancel(ctx), c.store, store.KindMission, id, true, func(m *mission.Mission) error {
		if !m.Claimed(worker) {
			return errLostOwnership
		}
		from = m.Status
		m.Learnings = append(m.Learnings, learningIDs...)
		return m.Fail(cause, worker, c.now())
	})
	if err != nil {
		return c.unlessLost(err)
	}
	metrics.MissionTransitions.WithLabelValues(string(from), string(mission.StatusFailed)).Inc()
	c.log.Warn("mission failed", "mission_id", id, "worker_id", worker, "kind", failure.KindOf(cause), "error", cause)
	return &m, nil
}

// failWithAnalysis also keeps whatever the reporter learned from the failed
// run. Analysis errors are logged and otherwise ignored.
func (c *Coordinator) failWithAnalysis(ctx context.Context, id, worker string, plan []mission.Step, execLog mission.ExecutionLog, cause error) (*mission.Mission, error) {
	var m mission.Mission
	if err := c.store.Get(context.WithoutCancel(ctx), store.KindMission, id, &m); err != nil {
		return c.fail(ctx, id, worker, cause)
	}
	repCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.ReporterTimeout)
	defer cancel()
	_, learnings, err := c.reporter.Summarize(repCtx, plan, execLog)
	if err != nil {
		c.log.Warn("failure analysis skipped", "mission_id", id, "error", err)
		return c.fail(ctx, id, worker, cause)
	}
	ids, err := c.saveLearnings(context.WithoutCancel(ctx), m, learnings)
	if err != nil {
		c.log.Warn("could not store failure learnings", "mission_id", id, "error", err)
	}
	return c.failWith(ctx, id, worker, cause, ids)
}

func (c *Coordinator) plan(ctx context.Context, m mission.Mission, task catalog.Task) ([]mission.Step, error) {
	ctx, span := c.tracer.Start(ctx, "mission.plan", trace.WithAttributes(attribute.String("task.id", task.ID)))
	defer span.End()

	learnings, err := c.learningsFor(ctx, task.ID)
	if err != nil {
		c.log.Warn("could not load learnings", "task_id", task.ID, "error", err)
	}

	planCtx, cancel := context.WithTimeout(ctx, c.opts.PlannerTimeout)
	defer cancel()
	steps, err := c.planner.Plan(planCtx, task, m.TriggerContext, learnings)
	if err != nil {
		if errors.Is(planCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			err = failure.Wrap(failure.KindTimeout, err, "planner exceeded %s", c.opts.PlannerTimeout)
		} else if failure.KindOf(err) == failure.KindInternal {
			err = failure.Wrap(failure.KindPlanning, err, "planner")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("plan.steps", len(steps)))
	return steps, nil
}

func (c *Coordinator) execute(ctx context.Context, id, worker string, plan []mission.Step, task catalog.Task) (mission.ExecutionLog, error) {
	ctx, span := c.tracer.Start(ctx, "mission.execute", trace.WithAttributes(attribute.Int("plan.steps", len(plan))))
	defer span.End()

	execLog, err := c.executor.Run(ctx, plan, task.Tools, func(entry mission.LogEntry) error {
		_, err := store.Update(context.WithoutCancel(ctx), c.store, store.KindMission, id, true, func(m *mission.Mission) error {
			if !m.Claimed(worker) {
				return errLostOwnership
			}
			now := c.now().UTC()
			m.ExecutionLog = append(m.ExecutionLog, entry)
			m.HeartbeatAt = &now
			return nil
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		return execLog, err
	}
	if execLog.Failed() {
		span.SetStatus(codes.Error, "step failed")
	}
	return execLog, nil
}

func (c *Coordinator) report(ctx context.Context, m mission.Mission, plan []mission.Step, execLog mission.ExecutionLog) (string, []string, error) {
	ctx, span := c.tracer.Start(ctx, "mission.report")
	defer span.End()

	repCtx, cancel := context.WithTimeout(ctx, c.opts.ReporterTimeout)
	defer cancel()
	summary, learnings, err := c.reporter.Summarize(repCtx, plan, execLog)
	if err != nil {
		if errors.Is(repCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			err = failure.Wrap(failure.KindTimeout, err, "reporter exceeded %s", c.opts.ReporterTimeout)
		} else if failure.KindOf(err) == failure.KindInternal {
			err = failure.Wrap(failure.KindReporting, err, "reporter")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", nil, err
	}
	ids, err := c.saveLearnings(context.WithoutCancel(ctx), m, learnings)
	if err != nil {
		return "", nil, err
	}
	return summary, ids, nil
}

func (c *Coordinator) saveLearnings(ctx context.Context, m mission.Mission, learnings []mission.Learning) ([]string, error) {
	ids := make([]string, 0, len(learnings))
	for _, l := range learnings {
		l.MissionID = m.ID
		l.TaskID = m.TaskID
		l.CreatedAt = c.now().UTC()
		rec := l
		id, err := c.store.Create(ctx, store.KindLearning, func() string {
			rec.ID = uuid.NewString()
			return rec.ID
		}, &rec)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// learningsFor returns the newest learnings recorded for a task.
func (c *Coordinator) learningsFor(ctx context.Context, taskID string) ([]mission.Learning, error) {
	ids, err := c.store.List(ctx, store.KindLearning)
	if err != nil {
		return nil, err
	}
	var out []mission.Learning
	for _, id := range ids {
		var l mission.Learning
		if err := c.store.Get(ctx, store.KindLearning, id, &l); err != nil {
			continue
		}
		if l.TaskID == taskID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > maxPlannerLearnings {
		out = out[:maxPlannerLearnings]
	}
	return out, nil
}

// heartbeat stamps the mission until stopped. If the mission stops being
// ours, it cancels the mission context with errLostOwnership.
func (c *Coordinator) heartbeat(ctx context.Context, id, worker string, lost context.CancelCauseFunc) func() {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(c.opts.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			_, err := store.Update(ctx, c.store, store.KindMission, id, true, func(m *mission.Mission) error {
				if !m.Claimed(worker) {
					return errLostOwnership
				}
				now := c.now().UTC()
				m.HeartbeatAt = &now
				return nil
			})
			if errors.Is(err, errLostOwnership) {
				c.log.Warn("lost mission ownership", "mission_id", id, "worker_id", worker)
				lost(errLostOwnership)
				return
			}
			if err != nil && ctx.Err() == nil {
				c.log.Warn("heartbeat failed", "mission_id", id, "error", err)
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			wg.Wait()
		})
	}
}

// finish records duration metrics and fires notifications without waiting.
func (c *Coordinator) finish(m mission.Mission, log *slog.Logger) {
	if m.StartedAt != nil && m.FinishedAt != nil {
		metrics.MissionDuration.WithLabelValues(string(m.Status)).Observe(m.FinishedAt.Sub(*m.StartedAt).Seconds())
	}
	if c.opts.Results != nil {
		select {
		case c.opts.Results <- outcomeOf(m):
		default:
			log.Debug("results channel full, dropping outcome")
		}
	}
	if c.notifier == nil {
		return
	}
	event := notifier.EventOf(&m)
	c.notifying.Add(1)
	go func() {
		defer c.notifying.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.opts.NotifyTimeout)
		defer cancel()
		if err := notifier.Send(ctx, c.notifier, event); err != nil {
			log.Warn("notification failed", "error", err)
		}
	}()
}
