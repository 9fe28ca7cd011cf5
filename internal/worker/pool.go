// Package worker runs a fixed number of loops that take mission ids off the
// queue and hand them to the coordinator.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"myhelper/internal/logger"
	"myhelper/internal/metrics"
)

// Source hands out claimed mission ids.
type Source interface {
	Next(ctx context.Context) (string, error)
}

// Runner drives one mission for a worker.
type Runner interface {
	Run(ctx context.Context, missionID, workerID string) error
}

const errorBackoff = time.Second

type Pool struct {
	source Source
	runner Runner
	size   int
	prefix string
	log    *slog.Logger

	mu sync.RWMutex
	// live maps each running loop to the mission it is driving, or "".
	live map[string]string
}

// State is a snapshot of one loop.
type State struct {
	ID        string `json:"worker_id"`
	MissionID string `json:"mission_id,omitempty"`
}

// NewPool builds a pool of size loops. Worker ids share a random prefix so
// ids from different processes never collide.
func NewPool(src Source, r Runner, size int, log *slog.Logger) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{
		source: src,
		runner: r,
		size:   size,
		prefix: uuid.NewString()[:8],
		log:    logger.Component(log, "worker"),
		live:   make(map[string]string),
	}
}

// IsLive reports whether owner is a loop currently running in this pool.
func (p *Pool) IsLive(owner string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.live[owner]
	return ok
}

// Workers returns the ids of the running loops.
func (p *Pool) Workers() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := make([]string, 0, len(p.live))
	for id := range p.live {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// States returns every running loop and its current mission, ordered by id.
func (p *Pool) States() []State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]State, 0, len(p.live))
	for id, missionID := range p.live {
		out = append(out, State{ID: id, MissionID: missionID})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Run blocks until ctx is done and every loop has returned.
func (p *Pool) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.size; i++ {
		id := fmt.Sprintf("worker-%s-%d", p.prefix, i)
		p.register(id)
		g.Go(func() error {
			defer p.deregister(id)
			p.loop(ctx, id)
			return nil
		})
	}
	p.log.Info("worker pool started", "workers", p.size)
	err := g.Wait()
	p.log.Info("worker pool stopped")
	return err
}

func (p *Pool) register(id string) { p.assign(id, "") }

func (p *Pool) assign(id, missionID string) {
	p.mu.Lock()
	p.live[id] = missionID
	p.mu.Unlock()
}

func (p *Pool) deregister(id string) {
	p.mu.Lock()
	delete(p.live, id)
	p.mu.Unlock()
}

func (p *Pool) loop(ctx context.Context, id string) {
	log := p.log.With("worker_id", id)
	for {
		missionID, err := p.source.Next(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			log.Error("queue read failed", "error", err)
			if !sleep(ctx, errorBackoff) {
				return
			}
			continue
		}

		p.assign(id, missionID)
		metrics.BusyWorkers.Inc()
		err = p.runner.Run(ctx, missionID, id)
		metrics.BusyWorkers.Dec()
		p.assign(id, "")
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error("mission run failed", "mission_id", missionID, "error", err)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
