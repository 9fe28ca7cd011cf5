// Package trigger fires missions on cron schedules.
package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/robfig/cron/v3"

	"myhelper/internal/config"
	"myhelper/internal/logger"
)

var cronParser = cron.NewParser(
	cron.SecondOptional |
		cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow |
		cron.Descriptor,
)

// Creator is the mission intake as seen by the scheduler.
type Creator interface {
	Create(ctx context.Context, taskID string, trigger map[string]any) (string, error)
}

type Scheduler struct {
	cron    *cron.Cron
	creator Creator
	log     *slog.Logger
	ctx     context.Context
	count   int
}

// NewScheduler registers every schedule. A bad spec fails the whole set.
func NewScheduler(creator Creator, schedules []config.Schedule, log *slog.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:    cron.New(cron.WithParser(cronParser), cron.WithLocation(time.UTC)),
		creator: creator,
		log:     logger.Component(log, "trigger"),
		ctx:     context.Background(),
	}
	for i, sc := range schedules {
		sched, err := cronParser.Parse(sc.Spec)
		if err != nil {
			return nil, fmt.Errorf("schedule #%d (%s): %w", i+1, sc.TaskID, err)
		}
		s.cron.Schedule(sched, s.job(sc))
		s.count++
	}
	return s, nil
}

func (s *Scheduler) Len() int { return s.count }

func (s *Scheduler) job(sc config.Schedule) cron.FuncJob {
	return func() {
		trigger := maps.Clone(sc.TriggerContext)
		if trigger == nil {
			trigger = map[string]any{}
		}
		trigger["trigger"] = "schedule"
		trigger["schedule"] = sc.Spec
		trigger["fired_at"] = time.Now().UTC().Format(time.RFC3339)

		id, err := s.creator.Create(s.ctx, sc.TaskID, trigger)
		if err != nil {
			s.log.Error("scheduled mission not created", "task_id", sc.TaskID, "spec", sc.Spec, "error", err)
			return
		}
		s.log.Info("scheduled mission created", "task_id", sc.TaskID, "mission_id", id)
	}
}

// Run starts the schedules and blocks until ctx is done, then waits for
// running jobs to return.
func (s *Scheduler) Run(ctx context.Context) error {
	s.ctx = ctx
	s.cron.Start()
	s.log.Info("scheduler started", "schedules", s.count)
	<-ctx.Done()
	<-s.cron.Stop().Done()
	return nil
}
