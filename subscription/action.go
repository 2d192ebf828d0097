package subscription

import (
	"strings"

	"github.com/squadracorsepolito/acmesig/dbc"
)

// Action is the operation requested on a signal or message verb.
type Action uint8

const (
	ActionSubscribe Action = iota
	ActionUnsubscribe
	ActionRead
	ActionReset
)

func (a Action) String() string {
	switch a {
	case ActionSubscribe:
		return "SUBSCRIBE"
	case ActionUnsubscribe:
		return "UNSUBSCRIBE"
	case ActionRead:
		return "READ"
	case ActionReset:
		return "RESET"
	default:
		return "UNKNOWN"
	}
}

// ParseAction parses a case insensitive action keyword.
func ParseAction(s string) (Action, bool) {
	switch {
	case strings.EqualFold(s, "SUBSCRIBE"):
		return ActionSubscribe, true
	case strings.EqualFold(s, "UNSUBSCRIBE"):
		return ActionUnsubscribe, true
	case strings.EqualFold(s, "READ"):
		return ActionRead, true
	case strings.EqualFold(s, "RESET"):
		return ActionReset, true
	}
	return 0, false
}

// InvalidActionError is returned to callers sending an unknown action.
func InvalidActionError() *dbc.Error {
	return dbc.NewError(dbc.ErrInvalidAction, dbc.ErrorKindValidation,
		"invalid-action", "expect: SUBSCRIBE|UNSUBSCRIBE|READ|RESET")
}

// Flag selects which updates are delivered to subscribers.
type Flag uint8

const (
	// FlagNew delivers only updated values.
	FlagNew Flag = iota
	// FlagAll also delivers unchanged, timeout and error notifications.
	FlagAll
)

func (f Flag) String() string {
	if f == FlagAll {
		return "ALL"
	}
	return "NEW"
}

func (f Flag) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

func (f *Flag) UnmarshalText(text []byte) error {
	flag, ok := ParseFlag(string(text))
	if !ok {
		return dbc.NewError(dbc.ErrInvalidAction, dbc.ErrorKindValidation,
			"invalid-flag", "expect: NEW|ALL")
	}
	*f = flag
	return nil
}

// ParseFlag parses a case insensitive NEW or ALL flag.
func ParseFlag(s string) (Flag, bool) {
	switch {
	case strings.EqualFold(s, "NEW"):
		return FlagNew, true
	case strings.EqualFold(s, "ALL"):
		return FlagAll, true
	}
	return 0, false
}
