package memory

import (
	"sync"
	"sync/atomic"
)

// Delivery is an event payload sent to a client.
type Delivery struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// ClientStats holds the delivery counters of a client.
type ClientStats struct {
	Sent    uint64
	Dropped uint64
}

// Client is a session connected to the [Host].
type Client struct {
	id string

	mux    sync.RWMutex
	ch     chan Delivery
	closed bool

	sent    atomic.Uint64
	dropped atomic.Uint64
}

func newClient(id string, bufferSize int) *Client {
	return &Client{
		id: id,
		ch: make(chan Delivery, max(bufferSize, 1)),
	}
}

func (c *Client) ID() string {
	return c.id
}

// Deliveries returns the channel of the event payloads. It is closed on disconnect.
func (c *Client) Deliveries() <-chan Delivery {
	return c.ch
}

func (c *Client) Stats() ClientStats {
	return ClientStats{
		Sent:    c.sent.Load(),
		Dropped: c.dropped.Load(),
	}
}

func (c *Client) deliver(delivery Delivery) {
	c.mux.RLock()
	defer c.mux.RUnlock()

	if c.closed {
		return
	}

	select {
	case c.ch <- delivery:
		c.sent.Add(1)
	default:
		c.dropped.Add(1)
	}
}

func (c *Client) close() {
	c.mux.Lock()
	defer c.mux.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.ch)
}
