package workpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestOrderedRunsInSubmissionOrder(t *testing.T) {
	o := NewOrdered()
	defer o.Shutdown()

	var mu sync.Mutex
	var order []int

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		i := i
		wg.Add(1)
		o.Submit(func(ctx context.Context) {
			defer wg.Done()
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		})
	}
	wg.Wait()

	for i, v := range order {
		if v != i {
			t.Fatalf("order[%d] = %d, want %d: tasks did not run in submission order: %v", i, v, i, order)
		}
	}
}

func TestOrderedSubmitAfterShutdownRunsInline(t *testing.T) {
	o := NewOrdered()
	o.Shutdown()

	ran := false
	o.Submit(func(ctx context.Context) { ran = true })
	if !ran {
		t.Error("Submit after Shutdown should run the task inline")
	}
}

func TestOrderedShutdownWaitsForWorker(t *testing.T) {
	o := NewOrdered()
	var done atomic.Bool
	o.Submit(func(ctx context.Context) {
		time.Sleep(20 * time.Millisecond)
		done.Store(true)
	})
	o.Shutdown()
	if !done.Load() {
		t.Error("Shutdown should wait for the running task to complete")
	}
}

func TestPoolRunsTasksConcurrently(t *testing.T) {
	p := NewPool(4)
	defer p.Shutdown()

	var counter atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		p.Submit(func(ctx context.Context) {
			defer wg.Done()
			counter.Add(1)
		})
	}
	wg.Wait()

	if got := counter.Load(); got != 20 {
		t.Errorf("expected 20 tasks run, got %d", got)
	}
}

func TestPoolSubmitAfterShutdownRunsInline(t *testing.T) {
	p := NewPool(2)
	p.Shutdown()

	ran := false
	p.Submit(func(ctx context.Context) { ran = true })
	if !ran {
		t.Error("Submit after Shutdown should run the task inline")
	}
}

func TestPoolQueueDepthAndActive(t *testing.T) {
	p := NewPool(1)
	defer p.Shutdown()

	release := make(chan struct{})
	started := make(chan struct{})
	p.Submit(func(ctx context.Context) {
		close(started)
		<-release
	})
	<-started

	// A second task should sit in the queue while the first blocks.
	p.Submit(func(ctx context.Context) {})

	if depth := p.QueueDepth(); depth != 1 {
		t.Errorf("QueueDepth() = %d, want 1", depth)
	}
	if active := p.Active(); active != 1 {
		t.Errorf("Active() = %d, want 1", active)
	}
	close(release)
}

func TestRunGroupPropagatesFirstError(t *testing.T) {
	wantErr := errors.New("boom")
	err := RunGroup(context.Background(),
		func(ctx context.Context) error { return nil },
		func(ctx context.Context) error { return wantErr },
		func(ctx context.Context) error { return nil },
	)
	if !errors.Is(err, wantErr) {
		t.Errorf("RunGroup error = %v, want %v", err, wantErr)
	}
}

func TestRunGroupSucceedsWhenAllSucceed(t *testing.T) {
	var n atomic.Int64
	err := RunGroup(context.Background(),
		func(ctx context.Context) error { n.Add(1); return nil },
		func(ctx context.Context) error { n.Add(1); return nil },
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.Load() != 2 {
		t.Errorf("expected both functions to run, got %d", n.Load())
	}
}
