package supervisor

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"myhelper/internal/catalog"
	"myhelper/internal/failure"
	"myhelper/internal/logger"
	"myhelper/internal/mission"
	"myhelper/internal/queue"
	"myhelper/internal/store"
)

// Service creates missions and answers read queries about them.
type Service struct {
	store   store.Store
	queue   *queue.Queue
	catalog *catalog.Catalog
	log     *slog.Logger
	now     func() time.Time
}

func NewService(s store.Store, q *queue.Queue, cat *catalog.Catalog, log *slog.Logger) *Service {
	return &Service{store: s, queue: q, catalog: cat, log: logger.Component(log, "intake"), now: time.Now}
}

// ValidateTask reports whether taskID names a catalog task.
func (s *Service) ValidateTask(taskID string) (catalog.Task, error) {
	task, ok := s.catalog.Task(taskID)
	if !ok {
		return catalog.Task{}, failure.New(failure.KindNotFound, "task %q not found", taskID)
	}
	return task, nil
}

// Create persists a queued mission and enqueues it. If the enqueue fails the
// id is still returned with the error; recovery enqueues the orphan later.
func (s *Service) Create(ctx context.Context, taskID string, trigger map[string]any) (string, error) {
	if _, err := s.ValidateTask(taskID); err != nil {
		return "", err
	}
	m := mission.New(taskID, trigger, s.now())
	id, err := s.store.Create(ctx, store.KindMission, func() string {
		m.ID = uuid.NewString()
		return m.ID
	}, m)
	if err != nil {
		return "", err
	}
	if err := s.queue.Enqueue(ctx, id); err != nil {
		s.log.Error("mission stored but not enqueued", "mission_id", id, "error", err)
		return id, err
	}
	s.log.Info("mission queued", "mission_id", id, "task_id", taskID)
	return id, nil
}

func (s *Service) Get(ctx context.Context, id string) (mission.Mission, error) {
	var m mission.Mission
	if err := s.store.Get(ctx, store.KindMission, id, &m); err != nil {
		return m, store.NotFound(err, "mission", id)
	}
	return m, nil
}

type Filter struct {
	Status mission.Status
	TaskID string
	Offset int
	Limit  int
}

// List returns a page of matching missions, newest first, and the number
// of matches before paging.
func (s *Service) List(ctx context.Context, f Filter) ([]mission.Mission, int, error) {
	if f.Status != "" && !mission.ValidStatus(f.Status) {
		return nil, 0, failure.New(failure.KindValidation, "unknown status %q", f.Status)
	}
	ids, err := s.store.List(ctx, store.KindMission)
	if err != nil {
		return nil, 0, err
	}
	out := []mission.Mission{}
	for _, id := range ids {
		var m mission.Mission
		if err := s.store.Get(ctx, store.KindMission, id, &m); err != nil {
			s.log.Warn("skip unreadable mission", "mission_id", id, "error", err)
			continue
		}
		if f.Status != "" && m.Status != f.Status {
			continue
		}
		if f.TaskID != "" && m.TaskID != f.TaskID {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	total := len(out)
	out = out[min(max(f.Offset, 0), total):]
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, total, nil
}

// QueueStatus returns the ids waiting for a worker, oldest first.
func (s *Service) QueueStatus(ctx context.Context) ([]string, error) {
	return s.queue.Pending(ctx)
}

// Stats counts missions per status and per task.
type Stats struct {
	Total    int                    `json:"total"`
	ByStatus map[mission.Status]int `json:"by_status"`
	ByTask   map[string]int         `json:"by_task"`
	Pending  int                    `json:"pending"`
}

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	missions, total, err := s.List(ctx, Filter{})
	if err != nil {
		return Stats{}, err
	}
	st := Stats{Total: total, ByStatus: map[mission.Status]int{}, ByTask: map[string]int{}}
	for _, m := range missions {
		st.ByStatus[m.Status]++
		st.ByTask[m.TaskID]++
	}
	pending, err := s.queue.Pending(ctx)
	if err != nil {
		return Stats{}, err
	}
	st.Pending = len(pending)
	return st, nil
}

// Health reads the queue record, which fails when the store is unreachable,
// and returns the queue depth.
func (s *Service) Health(ctx context.Context) (int, error) {
	pending, err := s.queue.Pending(ctx)
	if err != nil {
		return 0, err
	}
	return len(pending), nil
}

func (s *Service) Tasks() []catalog.Task { return s.catalog.Tasks() }
