// Package connector provides the queues linking a producer goroutine
// (e.g. a socket reader) to the dispatcher.
package connector

import "errors"

var ErrClosed = errors.New("connector: closed")

// Connector is a queue between stages.
type Connector[T any] interface {
	Write(item T) error
	Read() (T, error)
	Close()
}
