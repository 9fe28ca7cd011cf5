// Package queue is the durable FIFO of mission ids waiting for a worker. The
// pending list is a single store record, so every enqueue and claim is one
// atomic update of it.
package queue

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"myhelper/internal/logger"
	"myhelper/internal/metrics"
	"myhelper/internal/store"
)

const pendingID = "pending"

var ErrEmpty = errors.New("queue is empty")

type entry struct {
	MissionID  string    `json:"mission_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

type record struct {
	Pending []entry `json:"pending"`
}

type Queue struct {
	store store.Store
	poll  time.Duration
	log   *slog.Logger
	// wake lets an in-process Enqueue cut a poll wait short.
	wake chan struct{}
}

func New(s store.Store, poll time.Duration, log *slog.Logger) *Queue {
	if poll <= 0 {
		poll = time.Second
	}
	return &Queue{
		store: s,
		poll:  poll,
		log:   logger.Component(log, "queue"),
		wake:  make(chan struct{}, 1),
	}
}

func (q *Queue) update(ctx context.Context, fn func(*record) error) (record, error) {
	rec, err := store.Update(ctx, q.store, store.KindQueue, pendingID, false, fn)
	if err == nil {
		metrics.QueueDepth.Set(float64(len(rec.Pending)))
	}
	return rec, err
}

// Enqueue appends id. An id already pending is left where it is.
func (q *Queue) Enqueue(ctx context.Context, id string) error {
	_, err := q.update(ctx, func(r *record) error {
		for _, e := range r.Pending {
			if e.MissionID == id {
				return store.ErrUnchanged
			}
		}
		r.Pending = append(r.Pending, entry{MissionID: id, EnqueuedAt: time.Now().UTC()})
		return nil
	})
	if err != nil {
		return err
	}
	select {
	case q.wake <- struct{}{}:
	default:
	}
	q.log.Debug("mission enqueued", "mission_id", id)
	return nil
}

// ClaimNext removes and returns the oldest pending id, or ErrEmpty.
func (q *Queue) ClaimNext(ctx context.Context) (string, error) {
	var claimed string
	_, err := q.update(ctx, func(r *record) error {
		claimed = ""
		if len(r.Pending) == 0 {
			return store.ErrUnchanged
		}
		claimed = r.Pending[0].MissionID
		r.Pending = r.Pending[1:]
		return nil
	})
	if err != nil {
		return "", err
	}
	if claimed == "" {
		return "", ErrEmpty
	}
	return claimed, nil
}

// Next blocks until an id can be claimed or ctx is done, polling the store
// every poll interval.
func (q *Queue) Next(ctx context.Context) (string, error) {
	timer := time.NewTimer(q.poll)
	defer timer.Stop()
	for {
		id, err := q.ClaimNext(ctx)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, ErrEmpty) {
			return "", err
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(q.poll)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-q.wake:
		case <-timer.C:
		}
	}
}

// Release drops id from the pending list if present.
func (q *Queue) Release(ctx context.Context, id string) error {
	_, err := q.update(ctx, func(r *record) error {
		n := len(r.Pending)
		r.Pending = slices.DeleteFunc(r.Pending, func(e entry) bool { return e.MissionID == id })
		if len(r.Pending) == n {
			return store.ErrUnchanged
		}
		return nil
	})
	return err
}

// Pending returns the waiting ids, oldest first.
func (q *Queue) Pending(ctx context.Context) ([]string, error) {
	var r record
	err := q.store.Get(ctx, store.KindQueue, pendingID, &r)
	if errors.Is(err, store.ErrNotFound) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(r.Pending))
	for _, e := range r.Pending {
		ids = append(ids, e.MissionID)
	}
	return ids, nil
}
