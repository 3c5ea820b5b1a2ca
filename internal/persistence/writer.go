package persistence

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// WriteQueue accepts named database writes for asynchronous execution.
type WriteQueue interface {
	Enqueue(name string, fn func(context.Context) error)
}

type writeCmd struct {
	name string
	fn   func(context.Context) error
}

// WriterQueue runs database writes on one goroutine so the read loops never
// block on sqlite. Writes still queued at shutdown are drained with a short
// deadline.
type WriterQueue struct {
	logger       *slog.Logger
	queue        chan writeCmd
	drainTimeout time.Duration

	mu      sync.Mutex
	stopped bool
	dropped int
	done    chan struct{}
}

func NewWriterQueue(logger *slog.Logger, capacity int) *WriterQueue {
	if capacity <= 0 {
		capacity = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WriterQueue{
		logger:       logger,
		queue:        make(chan writeCmd, capacity),
		drainTimeout: 2 * time.Second,
		done:         make(chan struct{}),
	}
}

// Enqueue never blocks: a full queue drops the write and counts it.
func (w *WriterQueue) Enqueue(name string, fn func(context.Context) error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		w.dropped++
		w.logger.Warn("db write after shutdown dropped", "cmd", name)
		return
	}
	select {
	case w.queue <- writeCmd{name: name, fn: fn}:
	default:
		w.dropped++
		w.logger.Warn("db write queue full, write dropped", "cmd", name, "dropped_total", w.dropped)
	}
}

// Dropped returns the number of writes that were never run.
func (w *WriterQueue) Dropped() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dropped
}

func (w *WriterQueue) Start(ctx context.Context) {
	go func() {
		defer close(w.done)
		for {
			select {
			case <-ctx.Done():
				w.drain()
				return
			case cmd := <-w.queue:
				w.runWithRetry(ctx, cmd)
			}
		}
	}()
}

// Done is closed once the queue has stopped and drained.
func (w *WriterQueue) Done() <-chan struct{} {
	return w.done
}

func (w *WriterQueue) drain() {
	w.mu.Lock()
	w.stopped = true
	w.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), w.drainTimeout)
	defer cancel()
	for {
		select {
		case cmd := <-w.queue:
			w.runWithRetry(ctx, cmd)
		default:
			return
		}
	}
}

func (w *WriterQueue) runWithRetry(ctx context.Context, cmd writeCmd) {
	const maxAttempts = 3
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := cmd.fn(ctx); err != nil {
			w.logger.Error("db write failed", "cmd", cmd.name, "attempt", attempt, "error", err)
			if attempt == maxAttempts {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Duration(attempt) * 300 * time.Millisecond):
			}
			continue
		}
		return
	}
}
