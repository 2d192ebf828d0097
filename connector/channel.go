package connector

import (
	"sync"
)

// Channel implements a [Connector] using a buffered channel.
// Write blocks while the channel is full.
type Channel[T any] struct {
	buffer chan T

	done      chan struct{}
	closeOnce sync.Once
}

// NewChannel creates a new [Channel] with the given capacity.
func NewChannel[T any](size uint64) *Channel[T] {
	return &Channel[T]{
		buffer: make(chan T, size),
		done:   make(chan struct{}),
	}
}

func (c *Channel[T]) Write(item T) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	select {
	case c.buffer <- item:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

// Read returns the next item. Items still buffered when the channel
// is closed are drained before [ErrClosed] is returned.
func (c *Channel[T]) Read() (T, error) {
	select {
	case item := <-c.buffer:
		return item, nil
	default:
	}

	select {
	case item := <-c.buffer:
		return item, nil
	case <-c.done:
		select {
		case item := <-c.buffer:
			return item, nil
		default:
		}

		var zero T
		return zero, ErrClosed
	}
}

// Close closes the [Channel] connector.
func (c *Channel[T]) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}
