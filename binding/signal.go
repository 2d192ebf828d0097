package binding

import (
	"context"
	"fmt"

	"github.com/squadracorsepolito/acmesig/dbc"
	"github.com/squadracorsepolito/acmesig/sockdata"
	"github.com/squadracorsepolito/acmesig/subscription"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var _ dbc.SignalListener = (*signalCtx)(nil)

type signalCtx struct {
	b   *Binding
	msg *messageCtx

	name  string
	sig   *dbc.Signal
	info  *subscription.Info
	event Event
}

// signalName is the verb and event name of a signal. Names shared with
// another signal or message are prefixed by the message name.
func (b *Binding) signalName(msg *dbc.Message, sig *dbc.Signal) string {
	if b.nameUses[sig.Name()] > 1 {
		return msg.Name() + "/" + sig.Name()
	}
	return sig.Name()
}

func (b *Binding) registerSignal(mCtx *messageCtx, sig *dbc.Signal) (*signalCtx, error) {
	if !sig.TryLock() {
		return nil, dbc.NewError(dbc.ErrBorrowConflict, dbc.ErrorKindLockConflict,
			"register-sig-fail", "internal pool error")
	}
	defer sig.Unlock()

	name := b.signalName(mCtx.msg, sig)
	if name != sig.Name() {
		b.tel.LogNotice("shared signal name, qualified by message", "signal", sig.Name(), "name", name)
	}

	event, err := b.host.AddEvent(name)
	if err != nil {
		return nil, err
	}

	sCtx := &signalCtx{
		b:   b,
		msg: mCtx,

		name:  name,
		sig:   sig,
		info:  subscription.NewInfo(),
		event: event,
	}

	sig.SetCallback(sCtx)

	if err := b.host.AddVerb(Verb{
		Name:    name,
		Info:    fmt.Sprintf("(canid:%d) %s", mCtx.msg.ID(), sig.Def().Unit),
		Group:   mCtx.msg.Name(),
		Actions: actionList(),
		Sample:  signalVerbSample,
		Handler: b.serialize(sCtx.handleVerb),
	}); err != nil {
		return nil, err
	}

	return sCtx, nil
}

// SignalNotification publishes the signal when the gate lets it through and
// returns the listener count of the last publication.
func (sc *signalCtx) SignalNotification(sig *dbc.Signal) int {
	if !sc.info.TryLock() {
		sc.b.tel.LogCritical("pool-sig-notification: failed to get event info",
			dbc.ErrBorrowConflict, "signal", sig.Name())
		return -1
	}
	defer sc.info.Unlock()

	now := sig.Stamp()
	info := sc.info

	if subscription.ShouldEmit(sig.Status(), now, info.Stamp, info.Rate, info.Watchdog, info.Flag) {
		info.Stamp = now
		info.Listeners = sc.event.Push(sockdata.NewSignalData(sig))
		sc.b.emittedEvents.Add(context.Background(), 1, metric.WithAttributes(attribute.String("event", sc.event.Name())))
	}

	return info.Listeners
}

func (sc *signalCtx) handleVerb(ctx context.Context, session Session, raw []byte) (any, error) {
	req, err := parseRequest(raw)
	if err != nil {
		return nil, err
	}

	sig := sc.sig
	if !sig.TryLock() {
		return nil, dbc.NewError(dbc.ErrBorrowConflict, dbc.ErrorKindLockConflict,
			"fail-borrow-sig", "internal pool error (sig rfc cell already used)")
	}
	defer sig.Unlock()

	msg := sc.msg.msg
	if !msg.TryLock() {
		return nil, dbc.NewError(dbc.ErrBorrowConflict, dbc.ErrorKindLockConflict,
			"fail-borrow-msg", "internal pool error (msg rfc cell already used)")
	}
	defer msg.Unlock()

	msgInfo := sc.msg.info
	if !msgInfo.TryLock() {
		return nil, dbc.NewError(dbc.ErrBorrowConflict, dbc.ErrorKindLockConflict,
			"fail-borrow-info", "internal pool error (msg info cell already used)")
	}
	defer msgInfo.Unlock()

	if !sc.info.TryLock() {
		return nil, dbc.NewError(dbc.ErrBorrowConflict, dbc.ErrorKindLockConflict,
			"fail-borrow-info", "internal pool error (sig info cell already used)")
	}
	defer sc.info.Unlock()

	switch req.action {
	case subscription.ActionSubscribe:
		if err := sc.event.Subscribe(session); err != nil {
			return nil, err
		}

		params, reinstall := subscription.Subscribe(msgInfo, sc.info, req.sub)
		if reinstall {
			if err := sc.b.subscribeUpstream(ctx, sockdata.NewSubscribeParam([]uint32{msg.ID()}, params)); err != nil {
				return nil, err
			}
		}

		return fmt.Sprintf("Subscribe (canid:%d) sig:%s OK", msg.ID(), sig.Name()), nil

	case subscription.ActionUnsubscribe:
		if err := sc.event.Unsubscribe(session); err != nil {
			return nil, err
		}
		return fmt.Sprintf("UnSubscribe (canid:%d) sig:%s OK", msg.ID(), sig.Name()), nil

	case subscription.ActionRead:
		return sockdata.NewSignalData(sig), nil

	default:
		sig.Reset()
		return fmt.Sprintf("Reset (canid:%d) sig:%s OK", msg.ID(), sig.Name()), nil
	}
}
