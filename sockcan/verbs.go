package sockcan

import (
	"context"

	jsoniter "github.com/json-iterator/go"
	"github.com/squadracorsepolito/acmesig/binding"
	"github.com/squadracorsepolito/acmesig/dbc"
	"github.com/squadracorsepolito/acmesig/sockdata"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// RegisterVerbs exposes the backend on the host as <uid>/subscribe,
// <uid>/unsubscribe, <uid>/check and <uid>/close, and creates the raw frame event.
func (b *Backend) RegisterVerbs(host binding.Host) error {
	event, err := host.AddEvent(b.cfg.SockEvt)
	if err != nil {
		return err
	}
	b.SetEvent(event)

	verbs := []binding.Verb{
		{
			Name:    b.cfg.UID + "/subscribe",
			Info:    "Subscribe a canid array",
			Sample:  "{'canids':[266,257,599],'rate':250,'watchdog':1000,'flag':'ALL'}",
			Handler: b.subscribeVerb,
		},
		{
			Name:    b.cfg.UID + "/unsubscribe",
			Info:    "Unsubscribe socket BMC cannids from session",
			Sample:  "{'canids':[266,257,599]}",
			Handler: b.unsubscribeVerb,
		},
		{
			Name:    b.cfg.UID + "/check",
			Info:    "Check socket BMC is available",
			Handler: b.checkVerb,
		},
		{
			Name:    b.cfg.UID + "/close",
			Info:    "Close socket BMC session",
			Handler: b.closeVerb,
		},
	}

	for _, verb := range verbs {
		if err := host.AddVerb(verb); err != nil {
			return err
		}
	}

	return nil
}

func invalidParam(err error) error {
	return dbc.NewError(dbc.ErrInvalidAction, dbc.ErrorKindValidation, "invalid-param", err.Error())
}

func (b *Backend) subscribeVerb(ctx context.Context, session binding.Session, request []byte) (any, error) {
	param := sockdata.SubscribeParam{}
	if err := json.Unmarshal(request, &param); err != nil {
		return nil, invalidParam(err)
	}

	if err := b.Subscribe(ctx, param); err != nil {
		return nil, err
	}

	if b.event != nil {
		if err := b.event.Subscribe(session); err != nil {
			return nil, err
		}
	}

	return nil, nil
}

func (b *Backend) unsubscribeVerb(ctx context.Context, _ binding.Session, request []byte) (any, error) {
	param := sockdata.UnsubscribeParam{}
	if err := json.Unmarshal(request, &param); err != nil {
		return nil, invalidParam(err)
	}

	b.tel.LogNotice("unsubscribe from session", "uid", b.cfg.UID)

	return nil, b.Unsubscribe(ctx, param)
}

func (b *Backend) checkVerb(context.Context, binding.Session, []byte) (any, error) {
	return nil, b.Check()
}

func (b *Backend) closeVerb(_ context.Context, session binding.Session, _ []byte) (any, error) {
	b.tel.LogNotice("closing subscription", "uid", b.cfg.UID, "session", session.ID())

	if b.event != nil {
		if err := b.event.Unsubscribe(session); err != nil {
			return nil, err
		}
	}

	b.Close()

	return nil, nil
}
