package binding

import (
	jsoniter "github.com/json-iterator/go"
	"github.com/squadracorsepolito/acmesig/dbc"
	"github.com/squadracorsepolito/acmesig/subscription"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	signalVerbSample = "{'action':'subscribe','rate':250,'watchdog':5000,'flag':'all'}"
	msgVerbSample    = "{'action':'subscribe','rate':250,'watchdog':5000,'flag':'new'}"
)

type verbRequest struct {
	Action   string  `json:"action"`
	Rate     *uint64 `json:"rate,omitempty"`
	Watchdog *uint64 `json:"watchdog,omitempty"`
	Flag     *string `json:"flag,omitempty"`
}

type parsedRequest struct {
	action subscription.Action
	sub    subscription.Request
}

func parseRequest(raw []byte) (*parsedRequest, error) {
	req := verbRequest{}
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, dbc.NewError(dbc.ErrInvalidAction, dbc.ErrorKindValidation, "invalid-request", err.Error())
	}

	action, ok := subscription.ParseAction(req.Action)
	if !ok {
		return nil, subscription.InvalidActionError()
	}

	parsed := &parsedRequest{
		action: action,
		sub: subscription.Request{
			Rate:     req.Rate,
			Watchdog: req.Watchdog,
		},
	}

	// an unknown flag keeps the current one
	if req.Flag != nil {
		if flag, ok := subscription.ParseFlag(*req.Flag); ok {
			parsed.sub.Flag = &flag
		}
	}

	return parsed, nil
}

func actionList() []string {
	return []string{"reset", "read", "subscribe", "unsubscribe"}
}
