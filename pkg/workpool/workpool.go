// Package workpool provides the two async work pool flavors the engine
// needs: a single-worker FIFO executor for serializing scene lifecycle
// transitions, and a bounded multi-worker pool for zip decompression and
// tile payload decoding.
package workpool

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Task is a unit of work submitted to a pool. ctx is canceled on shutdown.
type Task func(ctx context.Context)

// Ordered is a single background worker draining an FIFO queue of tasks.
// Tasks run in enqueue order, one at a time. It is used to serialize scene
// load and dispose tasks so the previous scene's resources are released
// only after any prior load task completes.
type Ordered struct {
	mu       sync.Mutex
	queue    []Task
	notEmpty *sync.Cond
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	shutdown bool
}

// NewOrdered starts the background worker and returns the pool.
func NewOrdered() *Ordered {
	ctx, cancel := context.WithCancel(context.Background())
	o := &Ordered{
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	o.notEmpty = sync.NewCond(&o.mu)
	go o.run()
	return o
}

func (o *Ordered) run() {
	defer close(o.done)
	for {
		o.mu.Lock()
		for len(o.queue) == 0 && !o.shutdown {
			o.notEmpty.Wait()
		}
		if len(o.queue) == 0 && o.shutdown {
			o.mu.Unlock()
			return
		}
		task := o.queue[0]
		o.queue = o.queue[1:]
		o.mu.Unlock()

		task(o.ctx)
	}
}

// Submit enqueues task to run after every previously submitted task has
// completed. Posting after Shutdown runs the task inline on the caller,
// per the "ordered worker" contract.
func (o *Ordered) Submit(task Task) {
	o.mu.Lock()
	if o.shutdown {
		o.mu.Unlock()
		task(o.ctx)
		return
	}
	o.queue = append(o.queue, task)
	o.mu.Unlock()
	o.notEmpty.Signal()
}

// Shutdown stops accepting new tasks after draining the currently queued
// ones; the currently running task (if any) runs to completion. Shutdown
// blocks until the worker goroutine exits.
func (o *Ordered) Shutdown() {
	o.mu.Lock()
	if o.shutdown {
		o.mu.Unlock()
		return
	}
	o.shutdown = true
	o.mu.Unlock()
	o.notEmpty.Signal()
	o.cancel()
	<-o.done
}

// Pool is a bounded multi-worker queue with no ordering guarantee across
// tasks, used for decode work.
type Pool struct {
	mu       sync.Mutex
	queue    []Task
	notEmpty *sync.Cond
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	shutdown bool
	active   int
}

// NewPool starts workers background goroutines draining a shared queue.
func NewPool(workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{ctx: ctx, cancel: cancel}
	p.notEmpty = sync.NewCond(&p.mu)

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.shutdown {
			p.notEmpty.Wait()
		}
		if len(p.queue) == 0 && p.shutdown {
			p.mu.Unlock()
			return
		}
		task := p.queue[0]
		p.queue = p.queue[1:]
		p.active++
		p.mu.Unlock()

		task(p.ctx)

		p.mu.Lock()
		p.active--
		p.mu.Unlock()
	}
}

// Submit enqueues task for execution by any free worker. Posting after
// Shutdown runs the task inline on the caller.
func (p *Pool) Submit(task Task) {
	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		task(p.ctx)
		return
	}
	p.queue = append(p.queue, task)
	p.mu.Unlock()
	p.notEmpty.Signal()
}

// QueueDepth reports the number of tasks currently queued, for metrics.
func (p *Pool) QueueDepth() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Active reports the number of workers currently executing a task.
func (p *Pool) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// Shutdown stops the pool: pending tasks are dropped, currently running
// tasks run to completion, then Shutdown returns once all workers exit.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		return
	}
	p.shutdown = true
	p.queue = nil
	p.mu.Unlock()
	p.notEmpty.Broadcast()
	p.cancel()
	p.wg.Wait()
}

// RunGroup runs fns concurrently, each on its own goroutine started by
// errgroup (not on a Pool's workers), returning the first error, if any. It is a convenience for call sites
// that need "wait for N independent tasks, bail on first error" semantics,
// such as decoding a batch of zip entries.
func RunGroup(ctx context.Context, fns ...func(ctx context.Context) error) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, fn := range fns {
		fn := fn
		g.Go(func() error { return fn(gctx) })
	}
	return g.Wait()
}
