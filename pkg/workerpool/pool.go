// Package workerpool bounds how many calls to a slow backend run at once.
// One pool is shared by every request so a burst of page renders cannot
// multiply the load on the model backend.
package workerpool

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Config holds worker pool configuration
type Config struct {
	// Workers is the maximum number of tasks in flight across all callers
	Workers int
}

// DefaultConfig returns defaults sized for a remote model backend
func DefaultConfig() Config {
	return Config{Workers: 4}
}

// Pool runs batches of tasks with bounded concurrency
type Pool struct {
	name   string
	config Config
	slots  chan struct{}
	logger *zap.Logger

	// Metrics
	tasksSubmitted int64
	tasksCompleted int64
	tasksSkipped   int64
	activeWorkers  int64
	waiting        int64
}

// New creates a pool. name labels logs and defaults to "workerpool".
func New(name string, cfg Config, logger *zap.Logger) *Pool {
	if name == "" {
		name = "workerpool"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	return &Pool{
		name:   name,
		config: cfg,
		slots:  make(chan struct{}, cfg.Workers),
		logger: logger,
	}
}

// Run calls fn(ctx, i) for every i in [0, n) and waits for all calls to
// return. Tasks still waiting for a slot when ctx is done are skipped; Run
// then returns ctx.Err() and the caller decides what skipped entries mean.
func (p *Pool) Run(ctx context.Context, n int, fn func(ctx context.Context, i int)) error {
	var wg sync.WaitGroup
	var skipped int64

	for i := 0; i < n; i++ {
		atomic.AddInt64(&p.tasksSubmitted, 1)
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			if ctx.Err() != nil {
				atomic.AddInt64(&skipped, 1)
				return
			}
			atomic.AddInt64(&p.waiting, 1)
			select {
			case p.slots <- struct{}{}:
				atomic.AddInt64(&p.waiting, -1)
			case <-ctx.Done():
				atomic.AddInt64(&p.waiting, -1)
				atomic.AddInt64(&skipped, 1)
				return
			}
			if ctx.Err() != nil {
				<-p.slots
				atomic.AddInt64(&skipped, 1)
				return
			}
			atomic.AddInt64(&p.activeWorkers, 1)
			defer func() {
				atomic.AddInt64(&p.activeWorkers, -1)
				<-p.slots
			}()

			fn(ctx, i)
			atomic.AddInt64(&p.tasksCompleted, 1)
		}(i)
	}
	wg.Wait()

	if skipped > 0 {
		atomic.AddInt64(&p.tasksSkipped, skipped)
		p.logger.Warn("tasks skipped",
			zap.String("pool", p.name),
			zap.Int64("skipped", skipped),
			zap.Error(ctx.Err()))
		return ctx.Err()
	}
	return nil
}

// Stats returns current pool statistics
type Stats struct {
	Name           string `json:"name"`
	TasksSubmitted int64  `json:"tasks_submitted"`
	TasksCompleted int64  `json:"tasks_completed"`
	TasksSkipped   int64  `json:"tasks_skipped"`
	ActiveWorkers  int64  `json:"active_workers"`
	Waiting        int64  `json:"waiting"`
	Workers        int    `json:"workers"`
}

// Stats returns current pool statistics
func (p *Pool) Stats() Stats {
	return Stats{
		Name:           p.name,
		TasksSubmitted: atomic.LoadInt64(&p.tasksSubmitted),
		TasksCompleted: atomic.LoadInt64(&p.tasksCompleted),
		TasksSkipped:   atomic.LoadInt64(&p.tasksSkipped),
		ActiveWorkers:  atomic.LoadInt64(&p.activeWorkers),
		Waiting:        atomic.LoadInt64(&p.waiting),
		Workers:        p.config.Workers,
	}
}

// IsHealthy returns true while callers are not queueing behind a full pool
func (p *Pool) IsHealthy() bool {
	stats := p.Stats()
	return stats.Waiting < int64(stats.Workers)
}
