// Package memory implements an in-process [binding.Host].
//
// Events fan out to client sessions through buffered channels. Push never
// blocks: a delivery is dropped when the client buffer is full.
package memory

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/squadracorsepolito/acmesig/binding"
)

var (
	ErrVerbExists      = errors.New("verb already exists")
	ErrVerbNotFound    = errors.New("verb not found")
	ErrEventExists     = errors.New("event already exists")
	ErrSessionExists   = errors.New("session already exists")
	ErrSessionNotFound = errors.New("session not found")
	ErrHostClosed      = errors.New("host is closed")
)

var _ binding.Host = (*Host)(nil)

// Host keeps the verbs and events registered by the bindings.
type Host struct {
	mux sync.RWMutex

	verbs   map[string]binding.Verb
	events  map[string]*event
	clients map[string]*Client

	closed bool
}

func NewHost() *Host {
	return &Host{
		verbs:   make(map[string]binding.Verb),
		events:  make(map[string]*event),
		clients: make(map[string]*Client),
	}
}

// AddVerb registers the verb. Verb names are case insensitive.
func (h *Host) AddVerb(verb binding.Verb) error {
	key := strings.ToLower(verb.Name)

	h.mux.Lock()
	defer h.mux.Unlock()

	if _, ok := h.verbs[key]; ok {
		return fmt.Errorf("%w: %s", ErrVerbExists, verb.Name)
	}
	h.verbs[key] = verb

	return nil
}

// AddEvent creates the named event.
func (h *Host) AddEvent(name string) (binding.Event, error) {
	h.mux.Lock()
	defer h.mux.Unlock()

	if _, ok := h.events[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrEventExists, name)
	}

	evt := newEvent(h, name)
	h.events[name] = evt

	return evt, nil
}

// Verbs returns the registered verbs sorted by name.
func (h *Host) Verbs() []binding.Verb {
	h.mux.RLock()
	defer h.mux.RUnlock()

	verbs := make([]binding.Verb, 0, len(h.verbs))
	for _, verb := range h.verbs {
		verbs = append(verbs, verb)
	}

	slices.SortFunc(verbs, func(a, b binding.Verb) int {
		return strings.Compare(a.Name, b.Name)
	})

	return verbs
}

// Call invokes the named verb on behalf of the session.
func (h *Host) Call(ctx context.Context, session binding.Session, verb string, args []byte) (any, error) {
	h.mux.RLock()
	v, ok := h.verbs[strings.ToLower(verb)]
	h.mux.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrVerbNotFound, verb)
	}

	return v.Handler(ctx, session, args)
}

// Connect opens a client session receiving up to bufferSize pending deliveries.
func (h *Host) Connect(id string, bufferSize int) (*Client, error) {
	h.mux.Lock()
	defer h.mux.Unlock()

	if h.closed {
		return nil, ErrHostClosed
	}

	if _, ok := h.clients[id]; ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionExists, id)
	}

	client := newClient(id, bufferSize)
	h.clients[id] = client

	return client, nil
}

// Disconnect removes the client from every event and closes its delivery channel.
func (h *Host) Disconnect(id string) error {
	h.mux.Lock()
	client, ok := h.clients[id]
	if !ok {
		h.mux.Unlock()
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	delete(h.clients, id)

	events := make([]*event, 0, len(h.events))
	for _, evt := range h.events {
		events = append(events, evt)
	}
	h.mux.Unlock()

	for _, evt := range events {
		evt.remove(id)
	}

	client.close()

	return nil
}

// Close disconnects every client.
func (h *Host) Close() {
	h.mux.Lock()
	h.closed = true
	ids := make([]string, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	h.mux.Unlock()

	for _, id := range ids {
		_ = h.Disconnect(id)
	}
}

func (h *Host) client(id string) (*Client, bool) {
	h.mux.RLock()
	defer h.mux.RUnlock()

	client, ok := h.clients[id]
	return client, ok
}
