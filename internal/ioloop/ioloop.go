// Package ioloop provides the shared event loop the DNS service runs on.
//
// The loop is a single goroutine draining a task queue: everything posted
// with Post executes serially on that goroutine, which is what lets the
// service keep its listener bookkeeping lock-free. Co-located components
// may share one loop; the service exposes its loop read-only for that
// purpose and never transfers ownership.
package ioloop

import (
	"context"
	"sync"
)

// Loop is a single-goroutine serialized task executor.
type Loop struct {
	tasks  chan func()
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	started bool
}

// New creates a loop. It does not run until Run is called.
func New() *Loop {
	ctx, cancel := context.WithCancel(context.Background())
	return &Loop{
		tasks:  make(chan func(), 64),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Run drains the task queue until ctx is done or Stop is called. It blocks
// and must be called at most once.
func (l *Loop) Run(ctx context.Context) {
	l.mu.Lock()
	if l.started {
		l.mu.Unlock()
		panic("ioloop: Run called twice")
	}
	l.started = true
	l.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.ctx.Done():
			return
		case fn := <-l.tasks:
			fn()
		}
	}
}

// Post queues fn for execution on the loop goroutine. It blocks only when
// the queue is full, and drops the task if the loop has stopped.
func (l *Loop) Post(fn func()) {
	select {
	case <-l.ctx.Done():
	case l.tasks <- fn:
	}
}

// Stop ends the loop. Safe to call more than once.
func (l *Loop) Stop() {
	l.cancel()
}

// Context is done when the loop stops; listeners tie their lifetime to it.
func (l *Loop) Context() context.Context {
	return l.ctx
}
