package workerpool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunCallsEveryIndex(t *testing.T) {
	p := New("test", Config{Workers: 2}, nil)

	out := make([]int, 10)
	if err := p.Run(context.Background(), len(out), func(_ context.Context, i int) {
		out[i] = i * i
	}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	for i, v := range out {
		if v != i*i {
			t.Errorf("out[%d] = %d", i, v)
		}
	}

	stats := p.Stats()
	if stats.TasksSubmitted != 10 || stats.TasksCompleted != 10 || stats.ActiveWorkers != 0 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestRunBoundsConcurrency(t *testing.T) {
	p := New("test", Config{Workers: 3}, nil)

	var active, peak int64
	p.Run(context.Background(), 12, func(context.Context, int) {
		n := atomic.AddInt64(&active, 1)
		for {
			old := atomic.LoadInt64(&peak)
			if n <= old || atomic.CompareAndSwapInt64(&peak, old, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt64(&active, -1)
	})

	if peak > 3 {
		t.Errorf("peak concurrency = %d, want <= 3", peak)
	}
}

func TestRunSkipsAfterCancel(t *testing.T) {
	p := New("test", Config{Workers: 1}, nil)
	ctx, cancel := context.WithCancel(context.Background())

	var calls int64
	err := p.Run(ctx, 5, func(context.Context, int) {
		atomic.AddInt64(&calls, 1)
		cancel()
		time.Sleep(5 * time.Millisecond)
	})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if got := p.Stats().TasksSkipped; got != 4 {
		t.Errorf("skipped = %d, want 4", got)
	}
}

func TestNewDefaults(t *testing.T) {
	if p := New("", Config{}, nil); p.Stats().Name != "workerpool" {
		t.Errorf("default name = %q", p.Stats().Name)
	}
	p := New("agent", Config{}, nil)
	if p.Stats().Workers != DefaultConfig().Workers || !p.IsHealthy() {
		t.Errorf("stats = %+v", p.Stats())
	}
}
