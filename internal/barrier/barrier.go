// Package barrier provides one-shot gates for handles whose registration
// completes asynchronously.
//
// Operations submitted to a Barrier before it opens are queued and run in
// submission order when it opens. Operations submitted after it opens run
// immediately on the caller's goroutine.
package barrier

import (
	"context"
	"sync"
)

// Barrier is a one-shot gate.
type Barrier struct {
	mu       sync.Mutex
	open     bool
	draining bool
	queue    []func()
	done     chan struct{}
}

// New creates a closed barrier.
func New() *Barrier {
	return &Barrier{done: make(chan struct{})}
}

// Run executes fn once the barrier is open.
func (b *Barrier) Run(fn func()) {
	b.mu.Lock()
	if b.open {
		b.mu.Unlock()
		fn()
		return
	}
	b.queue = append(b.queue, fn)
	b.mu.Unlock()
}

// Open opens the barrier and runs queued operations in FIFO order.
// Operations queued while draining run after those already queued.
// Calling Open more than once has no further effect.
func (b *Barrier) Open() {
	b.mu.Lock()
	if b.open || b.draining {
		b.mu.Unlock()
		return
	}
	b.draining = true
	b.mu.Unlock()

	for {
		b.mu.Lock()
		if len(b.queue) == 0 {
			b.open = true
			b.draining = false
			close(b.done)
			b.mu.Unlock()
			return
		}
		batch := b.queue
		b.queue = nil
		b.mu.Unlock()

		for _, fn := range batch {
			fn()
		}
	}
}

// IsOpen reports whether the barrier has opened.
func (b *Barrier) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open
}

// Wait blocks until the barrier opens or ctx is done.
func (b *Barrier) Wait(ctx context.Context) error {
	select {
	case <-b.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done returns a channel closed when the barrier opens.
func (b *Barrier) Done() <-chan struct{} {
	return b.done
}
