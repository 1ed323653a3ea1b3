package reconcile

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"chapter-quiz-service/internal/logging"
)

// Task is one best-effort remote call.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Queue runs remote calls in the background on a single worker.
//
// Contract: Enqueue never blocks. When the buffer is full the task is
// dropped. Failed tasks are logged and never retried. Each task runs under
// its own timeout, detached from the caller's context.
type Queue struct {
	tasks   chan Task
	timeout time.Duration
	logger  *slog.Logger
	done    chan struct{}

	mu     sync.RWMutex
	closed bool

	dropped   atomic.Int64
	failed    atomic.Int64
	completed atomic.Int64
}

func NewQueue(size int, timeout time.Duration, logger *slog.Logger) *Queue {
	if size <= 0 {
		size = 64
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	q := &Queue{
		tasks:   make(chan Task, size),
		timeout: timeout,
		logger:  logging.OrDefault(logger),
		done:    make(chan struct{}),
	}
	go q.work()
	return q
}

// Enqueue schedules t and reports whether it was accepted.
func (q *Queue) Enqueue(t Task) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.dropped.Add(1)
		return false
	}
	select {
	case q.tasks <- t:
		return true
	default:
		q.dropped.Add(1)
		q.logger.Warn("reconcile queue full, dropping task", "task", t.Name)
		return false
	}
}

// Close stops accepting tasks and waits until the buffered ones have run or
// ctx is done.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.tasks)
	}
	q.mu.Unlock()

	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns completed, failed and dropped task counts.
func (q *Queue) Stats() (completed, failed, dropped int64) {
	return q.completed.Load(), q.failed.Load(), q.dropped.Load()
}

func (q *Queue) work() {
	defer close(q.done)
	for t := range q.tasks {
		q.run(t)
	}
}

func (q *Queue) run(t Task) {
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			q.failed.Add(1)
			q.logger.Error("reconcile task panicked", "task", t.Name, "panic", r)
		}
	}()

	start := time.Now()
	if err := t.Run(ctx); err != nil {
		q.failed.Add(1)
		q.logger.Warn("reconcile task failed", "task", t.Name, "error", err, "elapsed", time.Since(start))
		return
	}
	q.completed.Add(1)
	q.logger.Debug("reconcile task done", "task", t.Name, "elapsed", time.Since(start))
}
