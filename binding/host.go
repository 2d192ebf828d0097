package binding

import (
	"context"

	"github.com/squadracorsepolito/acmesig/sockdata"
)

// Session identifies the caller of a verb.
type Session interface {
	ID() string
}

// Event is a named broadcast channel.
type Event interface {
	Name() string
	// Push delivers the payload and returns the number of current listeners.
	Push(payload any) int
	Subscribe(session Session) error
	Unsubscribe(session Session) error
}

// VerbHandler serves a verb call. The request is the raw JSON argument.
type VerbHandler func(ctx context.Context, session Session, request []byte) (any, error)

// Verb describes a callable endpoint.
type Verb struct {
	Name    string
	Info    string
	Group   string
	Actions []string
	Sample  string
	Handler VerbHandler
}

// Host is the runtime exposing verbs and events to clients.
type Host interface {
	AddVerb(verb Verb) error
	AddEvent(name string) (Event, error)
}

// Backend is the raw frame source able to install receive filters.
type Backend interface {
	Subscribe(ctx context.Context, param sockdata.SubscribeParam) error
	Unsubscribe(ctx context.Context, param sockdata.UnsubscribeParam) error
}
