package queue

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"myhelper/internal/logger"
	"myhelper/internal/metrics"
	"myhelper/internal/mission"
	"myhelper/internal/store"
)

// RecoveryWorker is the history label for requeues made by recovery.
const RecoveryWorker = "recovery"

// Recoverer puts missions abandoned by dead workers back on the queue.
type Recoverer struct {
	store      store.Store
	queue      *Queue
	staleAfter time.Duration
	isLive     func(owner string) bool
	log        *slog.Logger
	now        func() time.Time
}

// NewRecoverer builds a recoverer. isLive reports whether a worker id belongs
// to a loop still running in this process; nil treats every owner as dead.
func NewRecoverer(s store.Store, q *Queue, staleAfter time.Duration, isLive func(string) bool, log *slog.Logger) *Recoverer {
	if isLive == nil {
		isLive = func(string) bool { return false }
	}
	return &Recoverer{
		store:      s,
		queue:      q,
		staleAfter: staleAfter,
		isLive:     isLive,
		log:        logger.Component(log, "recovery"),
		now:        time.Now,
	}
}

func (r *Recoverer) abandoned(m *mission.Mission, now time.Time) bool {
	return m.Status.Active() && !r.isLive(m.Owner) && m.Stale(now, r.staleAfter)
}

// Recover requeues every abandoned mission and re-enqueues queued missions
// that fell out of the pending list. It returns the ids it enqueued.
func (r *Recoverer) Recover(ctx context.Context) ([]string, error) {
	ids, err := r.store.List(ctx, store.KindMission)
	if err != nil {
		return nil, err
	}
	pendingList, err := r.queue.Pending(ctx)
	if err != nil {
		return nil, err
	}
	pending := make(map[string]struct{}, len(pendingList))
	for _, id := range pendingList {
		pending[id] = struct{}{}
	}

	var requeued []string
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return requeued, err
		}
		var m mission.Mission
		if err := r.store.Get(ctx, store.KindMission, id, &m); err != nil {
			r.log.Warn("skip unreadable mission", "mission_id", id, "error", err)
			continue
		}

		now := r.now()
		switch {
		case r.abandoned(&m, now):
			moved, err := r.requeue(ctx, id, now)
			if err != nil {
				return requeued, err
			}
			if !moved {
				continue
			}
			r.log.Warn("requeued abandoned mission", "mission_id", id, "owner", m.Owner, "status", m.Status)
			metrics.Recovered.Inc()
		case m.Status == mission.StatusQueued:
			if _, ok := pending[id]; ok || now.Sub(m.LastChange()) <= r.staleAfter {
				continue
			}
			r.log.Warn("re-enqueued orphaned mission", "mission_id", id)
		default:
			continue
		}

		if err := r.queue.Enqueue(ctx, id); err != nil {
			return requeued, err
		}
		requeued = append(requeued, id)
	}
	return requeued, nil
}

// requeue moves a mission back to queued if it is still abandoned under the
// record lock. A concurrent recoverer that lost the race sees moved=false.
func (r *Recoverer) requeue(ctx context.Context, id string, now time.Time) (bool, error) {
	moved := false
	_, err := store.Update(ctx, r.store, store.KindMission, id, true, func(m *mission.Mission) error {
		moved = false
		if !r.abandoned(m, now) {
			return nil
		}
		from := m.Status
		if err := m.Transition(mission.StatusQueued, RecoveryWorker, now); err != nil {
			return err
		}
		metrics.MissionTransitions.WithLabelValues(string(from), string(mission.StatusQueued)).Inc()
		moved = true
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	return moved, err
}

// Run calls Recover immediately and then every interval until ctx is done.
func (r *Recoverer) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = r.staleAfter / 2
	}
	if interval <= 0 {
		interval = time.Minute
	}
	if _, err := r.Recover(ctx); err != nil && ctx.Err() == nil {
		r.log.Error("recovery pass failed", "error", err)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Recover(ctx); err != nil && ctx.Err() == nil {
				r.log.Error("recovery pass failed", "error", err)
			}
		}
	}
}
