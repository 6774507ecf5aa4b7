package resource

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeResource struct {
	id int
}

func TestPoolSingleCreation(t *testing.T) {
	var created atomic.Int32
	p := NewPool(
		func(ctx context.Context) (*fakeResource, error) {
			created.Add(1)
			return &fakeResource{id: int(created.Load())}, nil
		},
		func(*fakeResource) {},
	)

	const consumers = 20
	tickets := make([]*Ticket[*fakeResource], consumers)
	var wg sync.WaitGroup
	for i := 0; i < consumers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tk, err := p.Acquire(context.Background())
			if err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}
			tickets[i] = tk
		}(i)
	}
	wg.Wait()

	if created.Load() != 1 {
		t.Fatalf("created %d resources, want 1", created.Load())
	}
	for _, tk := range tickets {
		if tk == nil || tk.Resource().id != 1 {
			t.Fatal("all tickets should share the single resource")
		}
	}
	if p.Refs() != consumers {
		t.Errorf("Refs = %d, want %d", p.Refs(), consumers)
	}
	for _, tk := range tickets {
		tk.Release()
	}
}

func TestPoolDestroyOnLastRelease(t *testing.T) {
	var destroyed atomic.Int32
	p := NewPool(
		func(ctx context.Context) (*fakeResource, error) { return &fakeResource{}, nil },
		func(*fakeResource) { destroyed.Add(1) },
	)

	t1, _ := p.Acquire(context.Background())
	t2, _ := p.Acquire(context.Background())

	t1.Release()
	if destroyed.Load() != 0 {
		t.Fatal("destroyed while a ticket was still outstanding")
	}

	t2.Release()
	if destroyed.Load() != 1 {
		t.Fatalf("destroy calls = %d, want 1", destroyed.Load())
	}
}

func TestPoolReleaseIdempotent(t *testing.T) {
	var destroyed atomic.Int32
	p := NewPool(
		func(ctx context.Context) (*fakeResource, error) { return &fakeResource{}, nil },
		func(*fakeResource) { destroyed.Add(1) },
	)

	t1, _ := p.Acquire(context.Background())
	t2, _ := p.Acquire(context.Background())

	// Double-release of one ticket must not steal the other's reference.
	t1.Release()
	t1.Release()
	if destroyed.Load() != 0 {
		t.Fatal("double release destroyed the resource early")
	}

	t2.Release()
	if destroyed.Load() != 1 {
		t.Fatalf("destroy calls = %d, want 1", destroyed.Load())
	}
}

func TestPoolRecreatesAfterDrain(t *testing.T) {
	var created atomic.Int32
	p := NewPool(
		func(ctx context.Context) (*fakeResource, error) {
			created.Add(1)
			return &fakeResource{id: int(created.Load())}, nil
		},
		func(*fakeResource) {},
	)

	t1, _ := p.Acquire(context.Background())
	t1.Release()

	t2, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire after drain: %v", err)
	}
	defer t2.Release()

	if t2.Resource().id != 2 {
		t.Errorf("got resource %d, want a fresh resource after full drain", t2.Resource().id)
	}
}

func TestPoolCreationFailure(t *testing.T) {
	boom := errors.New("no rendering context")
	fail := true
	p := NewPool(
		func(ctx context.Context) (*fakeResource, error) {
			if fail {
				return nil, boom
			}
			return &fakeResource{}, nil
		},
		func(*fakeResource) {},
	)

	if _, err := p.Acquire(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("Acquire error = %v, want %v", err, boom)
	}
	if p.Refs() != 0 {
		t.Errorf("Refs after failed creation = %d, want 0", p.Refs())
	}

	// The pool resets, so the next acquire retries from scratch.
	fail = false
	tk, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire after reset: %v", err)
	}
	tk.Release()
}

func TestPoolCancelledWaiterOfFailedGeneration(t *testing.T) {
	// A waiter that joined a generation whose creation fails may wake
	// through its own cancelled context after the pool has already reset
	// and started a fresh generation. Its release belongs to the dead
	// generation and must never drain the new one. Both wake-up orders
	// are races, so run the sequence repeatedly.
	for iter := 0; iter < 50; iter++ {
		boom := errors.New("no rendering context")
		var calls atomic.Int32
		var destroyed atomic.Int32
		entered := make(chan struct{})
		settle := make(chan struct{})
		p := NewPool(
			func(ctx context.Context) (*fakeResource, error) {
				if calls.Add(1) == 1 {
					close(entered)
					<-settle
					return nil, boom
				}
				return &fakeResource{id: int(calls.Load())}, nil
			},
			func(*fakeResource) { destroyed.Add(1) },
		)

		creatorDone := make(chan error, 1)
		go func() {
			_, err := p.Acquire(context.Background())
			creatorDone <- err
		}()
		<-entered

		ctx, cancel := context.WithCancel(context.Background())
		waiterDone := make(chan error, 1)
		go func() {
			_, err := p.Acquire(ctx)
			waiterDone <- err
		}()
		for p.Refs() < 2 {
			time.Sleep(time.Millisecond)
		}

		// Fail the first generation, then start a second one while the
		// waiter has not observed the failure yet.
		close(settle)
		if err := <-creatorDone; !errors.Is(err, boom) {
			t.Fatalf("creator error = %v, want %v", err, boom)
		}
		tk, err := p.Acquire(context.Background())
		if err != nil {
			t.Fatalf("second generation Acquire: %v", err)
		}

		cancel()
		if err := <-waiterDone; err == nil {
			t.Fatal("waiter of the failed generation got a ticket")
		}

		if destroyed.Load() != 0 {
			t.Fatalf("iteration %d: resource destroyed %d time(s) while a ticket is outstanding", iter, destroyed.Load())
		}
		if p.Refs() != 1 {
			t.Fatalf("iteration %d: Refs = %d, want 1 for the held ticket", iter, p.Refs())
		}
		tk.Release()
		if destroyed.Load() != 1 {
			t.Fatalf("iteration %d: destroy calls = %d, want 1", iter, destroyed.Load())
		}
	}
}

func TestPoolAcquireCancelled(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	p := NewPool(
		func(ctx context.Context) (*fakeResource, error) {
			close(started)
			<-release
			return &fakeResource{}, nil
		},
		func(*fakeResource) {},
	)

	go p.Acquire(context.Background())
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Acquire(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Acquire error = %v, want context.Canceled", err)
	}
	close(release)
}
