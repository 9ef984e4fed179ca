package pokeclient

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Task is a unit of work run under a Limiter slot.
type Task func(ctx context.Context) (interface{}, error)

// Limiter bounds the number of tasks running at once. Tasks that find no free
// slot wait in FIFO order and start when a running task settles.
//
// A nil *Limiter runs every task immediately.
type Limiter struct {
	sem      *semaphore.Weighted
	capacity int
	active   atomic.Int64
	queued   atomic.Int64
	metrics  atomic.Pointer[MetricsCollector]
}

// NewLimiter creates a limiter allowing maxConcurrent running tasks.
// Values below 1 are treated as 1.
func NewLimiter(maxConcurrent int) *Limiter {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Limiter{
		sem:      semaphore.NewWeighted(int64(maxConcurrent)),
		capacity: maxConcurrent,
	}
}

// Run executes task once a slot is free and returns its result. If ctx ends
// while the task is still queued, Run returns ctx.Err() without running it.
// A started task is never interrupted by the limiter; it observes ctx itself.
func (l *Limiter) Run(ctx context.Context, task Task) (interface{}, error) {
	if l == nil {
		return task(ctx)
	}

	l.queued.Add(1)
	l.publish()
	err := l.sem.Acquire(ctx, 1)
	l.queued.Add(-1)
	if err != nil {
		l.publish()
		return nil, err
	}

	l.active.Add(1)
	l.publish()
	defer func() {
		l.active.Add(-1)
		l.sem.Release(1)
		l.publish()
	}()

	return task(ctx)
}

// RunTask is the typed form of Limiter.Run.
func RunTask[T any](ctx context.Context, l *Limiter, task func(context.Context) (T, error)) (T, error) {
	var zero T
	v, err := l.Run(ctx, func(ctx context.Context) (interface{}, error) {
		return task(ctx)
	})
	if err != nil {
		return zero, err
	}
	out, _ := v.(T)
	return out, nil
}

// Active returns the number of tasks holding a slot.
func (l *Limiter) Active() int {
	if l == nil {
		return 0
	}
	return int(l.active.Load())
}

// Queued returns the number of tasks waiting for a slot.
func (l *Limiter) Queued() int {
	if l == nil {
		return 0
	}
	return int(l.queued.Load())
}

// Capacity returns the maximum number of concurrently running tasks.
func (l *Limiter) Capacity() int {
	if l == nil {
		return 0
	}
	return l.capacity
}

func (l *Limiter) observe(mc *MetricsCollector) {
	if l == nil || mc == nil {
		return
	}
	l.metrics.Store(mc)
}

func (l *Limiter) publish() {
	l.metrics.Load().RecordLimiter(l.Active(), l.Queued())
}
