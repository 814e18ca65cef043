// Package dispatch provides the single-goroutine delivery context on which
// sensor listeners run.
//
// A Loop plays the part of a UI thread: producers on any goroutine Post work
// to it without blocking, and the loop executes that work one item at a time
// in submission order.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/banshee-data/sensorhub/internal/monitoring"
)

// ErrLoopClosed is returned by Run and Flush once the loop has been closed.
var ErrLoopClosed = errors.New("dispatch: loop is closed")

// Loop is an unbounded FIFO executor drained by a single goroutine.
type Loop struct {
	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	closed  bool
	running bool
	done    chan struct{}
}

// NewLoop creates an idle loop. Work posted before Run starts is kept and
// executed once Run is called.
func NewLoop() *Loop {
	return &Loop{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Post queues f for execution on the loop goroutine. It never blocks. Work
// posted after Close is discarded.
func (l *Loop) Post(f func()) {
	if f == nil {
		return
	}
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.queue = append(l.queue, f)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
		// a wake-up is already pending
	}
}

// Pending returns the number of queued, not yet started, work items.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// Run drains the queue until ctx is cancelled or Close is called. Only one
// Run may be active at a time.
func (l *Loop) Run(ctx context.Context) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrLoopClosed
	}
	if l.running {
		l.mu.Unlock()
		return errors.New("dispatch: loop is already running")
	}
	l.running = true
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		l.running = false
		l.mu.Unlock()
	}()

	for {
		batch := l.take()
		for _, f := range batch {
			l.execute(f)
		}
		if len(batch) > 0 {
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.done:
			return nil
		case <-l.wake:
		}
	}
}

func (l *Loop) take() []func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	batch := l.queue
	l.queue = nil
	return batch
}

// execute runs one work item. A panicking item must not take the delivery
// goroutine down with it.
func (l *Loop) execute(f func()) {
	defer func() {
		if r := recover(); r != nil {
			monitoring.Opsf("dispatch: recovered panic in posted work: %v", r)
		}
	}()
	f()
}

// Flush blocks until every item posted before the call has executed. The
// loop must be running for Flush to return before ctx is done.
func (l *Loop) Flush(ctx context.Context) error {
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return ErrLoopClosed
	}

	marker := make(chan struct{})
	l.Post(func() { close(marker) })

	select {
	case <-marker:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("dispatch: flush: %w", ctx.Err())
	case <-l.done:
		return ErrLoopClosed
	}
}

// Close stops the loop. Queued work that has not started is dropped.
func (l *Loop) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	l.queue = nil
	close(l.done)
}
