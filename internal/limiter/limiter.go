// Package limiter bounds the number of simultaneously running tasks.
//
// This is not a rate limiter: it bounds simultaneity, not throughput over
// time. Submitted tasks past the bound queue in FIFO order and are admitted
// as running tasks finish, whether they succeeded or failed.
package limiter

import (
	"container/list"
	"context"
	"sync"
)

// DefaultConcurrency is the default in-flight bound.
const DefaultConcurrency = 5

// Limiter admits at most N tasks at a time, in submission order.
type Limiter struct {
	mu      sync.Mutex
	limit   int
	running int
	waiters *list.List
}

// New creates a Limiter admitting at most limit concurrent tasks.
// A limit below 1 is treated as 1.
func New(limit int) *Limiter {
	if limit < 1 {
		limit = 1
	}
	return &Limiter{
		limit:   limit,
		waiters: list.New(),
	}
}

// Limit returns the concurrency bound.
func (l *Limiter) Limit() int {
	return l.limit
}

// acquire blocks until a slot is free or the context is done. Waiters are
// admitted strictly in arrival order.
func (l *Limiter) acquire(ctx context.Context) error {
	l.mu.Lock()
	if l.running < l.limit && l.waiters.Len() == 0 {
		l.running++
		l.mu.Unlock()
		return nil
	}

	ready := make(chan struct{})
	elem := l.waiters.PushBack(ready)
	l.mu.Unlock()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		l.mu.Lock()
		select {
		case <-ready:
			// Admitted while cancelling; hand the slot on.
			l.releaseLocked()
		default:
			l.waiters.Remove(elem)
		}
		l.mu.Unlock()
		return ctx.Err()
	}
}

// release frees a slot and admits the oldest waiter, if any.
func (l *Limiter) release() {
	l.mu.Lock()
	l.releaseLocked()
	l.mu.Unlock()
}

func (l *Limiter) releaseLocked() {
	if front := l.waiters.Front(); front != nil {
		l.waiters.Remove(front)
		close(front.Value.(chan struct{}))
		return
	}
	l.running--
}

// Do runs task once a concurrency slot is available. The slot is freed when
// the task returns, success or failure, so a failing task can never starve
// the queue. Waiting is aborted by context cancellation; a task that has
// started always runs to completion.
func (l *Limiter) Do(ctx context.Context, task func() error) error {
	if err := l.acquire(ctx); err != nil {
		return err
	}
	defer l.release()
	return task()
}

// DoResult runs task under the limiter and returns its result.
func DoResult[T any](ctx context.Context, l *Limiter, task func() (T, error)) (T, error) {
	var result T
	err := l.Do(ctx, func() error {
		var taskErr error
		result, taskErr = task()
		return taskErr
	})
	return result, err
}
