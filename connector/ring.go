package connector

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// Ring implements a [Connector] over a fixed size ring.
// When the ring is full Write overwrites the oldest item, so a slow
// reader always sees the freshest frames.
type Ring[T any] struct {
	mux      sync.Mutex
	notEmpty *sync.Cond

	buffer []T
	head   int
	count  int

	closed bool

	_           cpu.CacheLinePad
	overwritten atomic.Int64
}

// NewRing creates a new [Ring] holding at most size items.
func NewRing[T any](size int) *Ring[T] {
	if size < 1 {
		size = 1
	}

	r := &Ring[T]{
		buffer: make([]T, size),
	}
	r.notEmpty = sync.NewCond(&r.mux)

	return r
}

func (r *Ring[T]) Write(item T) error {
	r.mux.Lock()
	defer r.mux.Unlock()

	if r.closed {
		return ErrClosed
	}

	tail := (r.head + r.count) % len(r.buffer)
	r.buffer[tail] = item

	if r.count == len(r.buffer) {
		r.head = (r.head + 1) % len(r.buffer)
		r.overwritten.Add(1)
	} else {
		r.count++
	}

	r.notEmpty.Signal()

	return nil
}

// Read blocks until an item is available. Remaining items are drained
// after Close, then [ErrClosed] is returned.
func (r *Ring[T]) Read() (T, error) {
	r.mux.Lock()
	defer r.mux.Unlock()

	for r.count == 0 {
		if r.closed {
			var zero T
			return zero, ErrClosed
		}
		r.notEmpty.Wait()
	}

	item := r.buffer[r.head]

	var zero T
	r.buffer[r.head] = zero
	r.head = (r.head + 1) % len(r.buffer)
	r.count--

	return item, nil
}

// Len returns the number of buffered items.
func (r *Ring[T]) Len() int {
	r.mux.Lock()
	defer r.mux.Unlock()
	return r.count
}

// Overwritten returns how many items were lost because the ring was full.
func (r *Ring[T]) Overwritten() int64 {
	return r.overwritten.Load()
}

func (r *Ring[T]) Close() {
	r.mux.Lock()
	r.closed = true
	r.mux.Unlock()

	r.notEmpty.Broadcast()
}
