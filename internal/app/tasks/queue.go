// Package tasks runs slow side effects (persistence, push) away from the
// signaling loop. Submission never blocks; a full queue drops the task.
package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/Callhub/internal/core"
	"github.com/dkeye/Callhub/internal/domain"
	"github.com/dkeye/Callhub/internal/platform/metrics"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("github.com/dkeye/Callhub/internal/app/tasks")

type job struct {
	name string
	fn   core.TaskFunc
}

type Queue struct {
	jobs    chan job
	workers int
	timeout time.Duration
	metrics *metrics.Metrics

	pending sync.WaitGroup
	running conc.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewQueue(workers, size int, timeout time.Duration, m *metrics.Metrics) *Queue {
	if workers <= 0 {
		workers = 1
	}
	if size <= 0 {
		size = 1
	}
	return &Queue{
		jobs:    make(chan job, size),
		workers: workers,
		timeout: timeout,
		metrics: m,
	}
}

// Start launches the workers. They exit when Close is called; ctx is the
// parent of every task context.
func (q *Queue) Start(ctx context.Context) {
	for i := 0; i < q.workers; i++ {
		q.running.Go(func() {
			for j := range q.jobs {
				q.run(ctx, j)
			}
		})
	}
	log.Info().Str("module", "app.tasks").Int("workers", q.workers).Int("capacity", cap(q.jobs)).Msg("task queue started")
}

// Submit enqueues fn. It reports false if the queue is full or closed.
func (q *Queue) Submit(name string, fn core.TaskFunc) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.metrics.Task(name, "dropped")
		log.Warn().Err(domain.ErrClosed).Str("module", "app.tasks").Str("task", name).Msg("task dropped")
		return false
	}
	q.pending.Add(1)
	select {
	case q.jobs <- job{name: name, fn: fn}:
		return true
	default:
		q.pending.Done()
		q.metrics.Task(name, "dropped")
		log.Warn().Err(domain.ErrQueueFull).Str("module", "app.tasks").Str("task", name).Msg("task dropped")
		return false
	}
}

// Wait blocks until every submitted task has finished, including tasks
// submitted by tasks.
func (q *Queue) Wait() {
	q.pending.Wait()
}

// Close stops accepting work, lets queued tasks finish and waits for the
// workers.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()
	q.running.Wait()
}

func (q *Queue) run(parent context.Context, j job) {
	defer q.pending.Done()

	ctx := parent
	var cancel context.CancelFunc = func() {}
	if q.timeout > 0 {
		ctx, cancel = context.WithTimeout(parent, q.timeout)
	}
	defer cancel()

	ctx, span := tracer.Start(ctx, "task."+j.name)
	span.SetAttributes(attribute.String("task.name", j.name))
	defer span.End()

	var err error
	var pc panics.Catcher
	pc.Try(func() { err = j.fn(ctx) })
	if r := pc.Recovered(); r != nil {
		err = fmt.Errorf("task panicked: %v", r.Value)
		log.Error().Str("module", "app.tasks").Str("task", j.name).Str("stack", string(r.Stack)).Msg("task panicked")
		q.metrics.Task(j.name, "panic")
	} else if err != nil {
		q.metrics.Task(j.name, "error")
	} else {
		q.metrics.Task(j.name, "ok")
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Warn().Err(err).Str("module", "app.tasks").Str("task", j.name).Msg("task failed")
	}
}
