// Package executor implements component C8 (spec.md §5): a single-threaded
// cooperative executor: a serial task queue drained by one goroutine, plus
// a separate errgroup-managed pool for blocking work whose result is posted
// back onto the serial queue as a completion task. The planner, aggregation
// engine, chunk index and reducer pipeline do not post to it; they guard
// their own state with mutexes, sync.Map and atomics. This mirrors the teacher's
// ResourcePool: a blocking acquire there becomes a non-blocking completion
// callback here.
package executor

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Task is one unit of serial work. It never blocks on external I/O; work
// that does belongs in Submit.
type Task func()

// Executor drains a single task queue on one goroutine, so tasks posted to
// it never run concurrently with each other.
type Executor struct {
	tasks  chan Task
	done   chan struct{}
	closed bool
	mu     sync.Mutex

	eg     *errgroup.Group
	egCtx  context.Context
}

// New starts the executor's drain loop. queueDepth bounds how many pending
// tasks may be buffered before Post blocks its caller, matching the
// teacher's bounded-wait-queue sizing in ResourcePool's PoolConfig.
func New(ctx context.Context, queueDepth int) *Executor {
	eg, egCtx := errgroup.WithContext(ctx)
	e := &Executor{
		tasks: make(chan Task, queueDepth),
		done:  make(chan struct{}),
		eg:    eg,
		egCtx: egCtx,
	}
	go e.run()
	return e
}

func (e *Executor) run() {
	defer close(e.done)
	for t := range e.tasks {
		t()
	}
}

// Post enqueues a task to run on the executor's goroutine. It blocks if the
// queue is full, exerting backpressure on callers the same way a full
// ResourceManager.WaitQueue blocks an acquirer. mu is held for the duration
// of the send so a concurrent Close cannot close the channel out from under
// it.
func (e *Executor) Post(t Task) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return fmt.Errorf("executor: closed")
	}
	e.tasks <- t
	return nil
}

// Submit runs fn on the executor's background errgroup and posts its result
// back onto the serial queue via onComplete, which always runs on the
// executor goroutine. Submit itself does not block the executor loop: fn
// executes concurrently with whatever task is currently draining.
func Submit[T any](e *Executor, fn func(ctx context.Context) (T, error), onComplete func(T, error)) {
	e.eg.Go(func() error {
		result, err := fn(e.egCtx)
		postErr := e.Post(func() { onComplete(result, err) })
		if postErr != nil {
			return postErr
		}
		return nil
	})
}

// Call is the synchronous counterpart to Submit: it runs fn on the
// background pool and blocks the CALLER (not the executor loop) until the
// completion task has been posted and executed, returning fn's result. Use
// this from outside the executor (e.g. a query entrypoint) rather than from
// within a Task, which would deadlock waiting on its own queue.
func Call[T any](e *Executor, fn func(ctx context.Context) (T, error)) (T, error) {
	respCh := make(chan struct {
		val T
		err error
	}, 1)
	Submit(e, fn, func(v T, err error) {
		respCh <- struct {
			val T
			err error
		}{v, err}
	})
	select {
	case resp := <-respCh:
		return resp.val, resp.err
	case <-e.egCtx.Done():
		var zero T
		return zero, e.egCtx.Err()
	}
}

// Close stops accepting new tasks, drains what's queued, and waits for every
// background errgroup goroutine to finish. Like Call, it must be invoked
// from outside the executor goroutine -- calling it from within a Task
// deadlocks waiting on its own drain loop to exit.
func (e *Executor) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	close(e.tasks)
	e.mu.Unlock()

	<-e.done
	return e.eg.Wait()
}
