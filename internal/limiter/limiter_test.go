package limiter

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestNew_MinimumLimit(t *testing.T) {
	if got := New(0).Limit(); got != 1 {
		t.Errorf("New(0).Limit() = %d, want 1", got)
	}
	if got := New(-3).Limit(); got != 1 {
		t.Errorf("New(-3).Limit() = %d, want 1", got)
	}
	if got := New(5).Limit(); got != 5 {
		t.Errorf("New(5).Limit() = %d, want 5", got)
	}
}

func TestLimiter_BoundsConcurrency(t *testing.T) {
	const limit = 5
	const tasks = 40

	l := New(limit)
	var running, peak int64
	var wg sync.WaitGroup

	for i := 0; i < tasks; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.Do(context.Background(), func() error {
				n := atomic.AddInt64(&running, 1)
				for {
					p := atomic.LoadInt64(&peak)
					if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				atomic.AddInt64(&running, -1)
				return nil
			})
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt64(&peak); got > limit {
		t.Errorf("peak concurrency = %d, want <= %d", got, limit)
	}
}

func TestLimiter_FIFOAdmission(t *testing.T) {
	l := New(1)

	blocker := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = l.Do(context.Background(), func() error {
			close(started)
			<-blocker
			return nil
		})
	}()
	<-started

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		i := i
		go func() {
			defer wg.Done()
			_ = l.Do(context.Background(), func() error {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil
			})
		}()
		// Stagger submissions so arrival order is deterministic.
		time.Sleep(10 * time.Millisecond)
	}

	close(blocker)
	wg.Wait()

	for i, got := range order {
		if got != i {
			t.Fatalf("admission order = %v, want FIFO", order)
		}
	}
}

func TestLimiter_FailureFreesSlot(t *testing.T) {
	l := New(1)
	boom := errors.New("boom")

	if err := l.Do(context.Background(), func() error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("Do() = %v, want boom", err)
	}

	done := make(chan struct{})
	go func() {
		_ = l.Do(context.Background(), func() error { return nil })
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("slot not released after task failure")
	}
}

func TestLimiter_ContextCancelWhileWaiting(t *testing.T) {
	l := New(1)

	blocker := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = l.Do(context.Background(), func() error {
			close(started)
			<-blocker
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- l.Do(ctx, func() error { return nil })
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Do() = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("cancelled waiter never returned")
	}

	// The held slot must still be usable afterwards.
	close(blocker)
	if err := l.Do(context.Background(), func() error { return nil }); err != nil {
		t.Errorf("Do after cancel: %v", err)
	}
}

func TestDoResult(t *testing.T) {
	l := New(2)

	got, err := DoResult(context.Background(), l, func() (string, error) {
		return "value", nil
	})
	if err != nil || got != "value" {
		t.Errorf("DoResult = %q, %v", got, err)
	}

	boom := errors.New("boom")
	_, err = DoResult(context.Background(), l, func() (string, error) {
		return "", boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("DoResult err = %v, want boom", err)
	}
}
