// Package resource provides a reference-counted pool for an expensive
// shared resource, such as the rendering engine behind a thumbnail
// strip. Many lightweight consumers check tickets out against one
// underlying resource; the resource is created on the first acquire and
// destroyed exactly when the last ticket is released.
package resource

import (
	"context"
	"sync"
)

// Pool manages one shared resource of type T with reference counting.
// Acquire and Release are safe for concurrent use from many consumers.
type Pool[T any] struct {
	create  func(ctx context.Context) (T, error)
	destroy func(T)

	mu       sync.Mutex
	refs     int
	gen      *generation[T]
	creating bool
}

// generation is one create/destroy cycle of the underlying resource.
// Waiters hold a reference to the generation they joined, so a drained
// and re-created pool can never hand them a resource from a different
// cycle.
type generation[T any] struct {
	ch  chan struct{} // closed when creation settles
	res T
	err error
}

// NewPool creates a pool. create builds the underlying resource;
// destroy tears it down when the reference count reaches zero.
func NewPool[T any](create func(ctx context.Context) (T, error), destroy func(T)) *Pool[T] {
	return &Pool[T]{create: create, destroy: destroy}
}

// Ticket is a checkout against the pool. Release is idempotent, so it
// is safe to defer unconditionally on every exit path.
type Ticket[T any] struct {
	pool *Pool[T]
	gen  *generation[T]
	res  T
	once sync.Once
}

// Resource returns the shared resource this ticket holds.
func (t *Ticket[T]) Resource() T {
	return t.res
}

// Release returns the ticket. When the last outstanding ticket is
// released the resource is destroyed and the pool resets to its
// uncreated state.
func (t *Ticket[T]) Release() {
	t.once.Do(func() {
		t.pool.release(t.gen)
	})
}

// Acquire checks out a ticket, creating the resource on first use.
// Concurrent acquires made while creation is pending all wait for the
// same creation result; a second resource is never started. On creation
// failure every waiter receives the error and the pool resets so a
// later acquire retries from scratch.
func (p *Pool[T]) Acquire(ctx context.Context) (*Ticket[T], error) {
	p.mu.Lock()

	if p.gen == nil {
		// First acquire of this cycle: this caller creates the resource.
		g := &generation[T]{ch: make(chan struct{})}
		p.gen = g
		p.creating = true
		p.refs = 1
		p.mu.Unlock()

		res, err := p.create(ctx)

		p.mu.Lock()
		p.creating = false
		g.res, g.err = res, err
		close(g.ch)
		if err != nil {
			// Every waiter of this generation gets the error; none of
			// them holds a ticket afterwards.
			if p.gen == g {
				p.resetLocked()
			}
			p.mu.Unlock()
			return nil, err
		}
		p.mu.Unlock()
		return &Ticket[T]{pool: p, gen: g, res: res}, nil
	}

	// Resource exists or is being created: join the current generation.
	p.refs++
	g := p.gen
	p.mu.Unlock()

	select {
	case <-g.ch:
	case <-ctx.Done():
		p.release(g)
		return nil, ctx.Err()
	}

	if g.err != nil {
		return nil, g.err
	}
	return &Ticket[T]{pool: p, gen: g, res: g.res}, nil
}

// Refs returns the outstanding ticket count.
func (p *Pool[T]) Refs() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.refs
}

// release drops one reference against the generation the caller joined.
// A release against a generation that already settled with an error and
// reset the pool must not touch the current generation: its reference
// went away with the reset.
func (p *Pool[T]) release(g *generation[T]) {
	p.mu.Lock()
	if p.gen != g || p.refs == 0 {
		p.mu.Unlock()
		return
	}
	p.refs--
	if p.refs > 0 || p.creating {
		// Never torn down while tickets are outstanding, nor while the
		// creator is still inside create.
		p.mu.Unlock()
		return
	}

	// Last ticket released: tear down synchronously and reset so the
	// next acquire creates a fresh resource rather than reusing stale
	// state.
	p.resetLocked()
	p.mu.Unlock()

	if g.err == nil && p.destroy != nil {
		p.destroy(g.res)
	}
}

// resetLocked returns the pool to its initial uncreated state. Caller
// holds p.mu.
func (p *Pool[T]) resetLocked() {
	p.refs = 0
	p.gen = nil
	p.creating = false
}
