package memory

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/squadracorsepolito/acmesig/binding"
)

var _ binding.Event = (*event)(nil)

type event struct {
	host *Host
	name string

	mux     sync.RWMutex
	clients map[string]*Client

	pushed atomic.Uint64
}

func newEvent(host *Host, name string) *event {
	return &event{
		host:    host,
		name:    name,
		clients: make(map[string]*Client),
	}
}

func (e *event) Name() string {
	return e.name
}

// Push delivers the payload to every subscribed client without blocking
// and returns the number of subscribers.
func (e *event) Push(payload any) int {
	e.pushed.Add(1)

	e.mux.RLock()
	defer e.mux.RUnlock()

	delivery := Delivery{Event: e.name, Data: payload}
	for _, client := range e.clients {
		client.deliver(delivery)
	}

	return len(e.clients)
}

// Subscribe adds the session to the event. Subscribing twice is a no-op.
func (e *event) Subscribe(session binding.Session) error {
	client, ok := e.host.client(session.ID())
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, session.ID())
	}

	e.mux.Lock()
	defer e.mux.Unlock()

	e.clients[client.id] = client

	return nil
}

// Unsubscribe removes the session from the event. Unknown sessions are ignored.
func (e *event) Unsubscribe(session binding.Session) error {
	e.remove(session.ID())
	return nil
}

func (e *event) remove(id string) {
	e.mux.Lock()
	defer e.mux.Unlock()

	delete(e.clients, id)
}
