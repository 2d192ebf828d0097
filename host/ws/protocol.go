package ws

import (
	"errors"

	jsoniter "github.com/json-iterator/go"
	"github.com/squadracorsepolito/acmesig/binding"
	"github.com/squadracorsepolito/acmesig/dbc"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// InfoVerb lists the verbs registered on the host.
const InfoVerb = "info"

const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Request is a verb call sent by a client.
type Request struct {
	ID   string              `json:"id"`
	Verb string              `json:"verb"`
	Args jsoniter.RawMessage `json:"args,omitempty"`
}

// ReplyError is the error of a failed verb call.
type ReplyError struct {
	UID  string `json:"uid"`
	Info string `json:"info"`
}

// Reply answers a [Request] with the same id.
type Reply struct {
	ID       string      `json:"id"`
	Status   string      `json:"status"`
	Response any         `json:"response,omitempty"`
	Error    *ReplyError `json:"error,omitempty"`
}

// EventMessage carries an event payload to a subscribed client.
type EventMessage struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// VerbInfo describes a verb in the reply of [InfoVerb].
type VerbInfo struct {
	Name    string   `json:"name"`
	Info    string   `json:"info,omitempty"`
	Group   string   `json:"group,omitempty"`
	Actions []string `json:"actions,omitempty"`
	Sample  string   `json:"sample,omitempty"`
}

func newVerbInfo(verb binding.Verb) VerbInfo {
	return VerbInfo{
		Name:    verb.Name,
		Info:    verb.Info,
		Group:   verb.Group,
		Actions: verb.Actions,
		Sample:  verb.Sample,
	}
}

func newReply(id string, response any, err error) *Reply {
	if err == nil {
		return &Reply{ID: id, Status: StatusSuccess, Response: response}
	}

	replyErr := &ReplyError{UID: "internal-error", Info: err.Error()}

	var dbcErr *dbc.Error
	if errors.As(err, &dbcErr) {
		replyErr.UID = dbcErr.UID
		replyErr.Info = dbcErr.Info
	}

	return &Reply{ID: id, Status: StatusFailed, Error: replyErr}
}
