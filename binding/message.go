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

var _ dbc.MessageListener = (*messageCtx)(nil)

type messageCtx struct {
	b *Binding

	msg   *dbc.Message
	info  *subscription.Info
	event Event

	signals []*signalCtx
}

func (b *Binding) registerMessage(msg *dbc.Message) error {
	if !msg.TryLock() {
		return dbc.NewError(dbc.ErrBorrowConflict, dbc.ErrorKindLockConflict,
			"register-msg-fail", "internal pool (fail to get borrow mut)")
	}
	defer msg.Unlock()

	rate := subscription.DefaultRate
	watchdog := subscription.DefaultWatchdog
	verbInfo := fmt.Sprintf("(canid:%d)", msg.ID())

	if msgCfg, ok := b.cfg.Messages[msg.Name()]; ok {
		if msgCfg.Info != "" {
			verbInfo = msgCfg.Info
		}
		if msgCfg.Rate != nil {
			rate = *msgCfg.Rate
		}
		if msgCfg.Watchdog != nil {
			watchdog = *msgCfg.Watchdog
		}
	}

	event, err := b.host.AddEvent(msg.Name())
	if err != nil {
		return fmt.Errorf("register event of message %s: %w", msg.Name(), err)
	}

	mCtx := &messageCtx{
		b: b,

		msg:   msg,
		info:  subscription.NewInfoWith(rate, watchdog),
		event: event,
	}

	msg.SetCallback(mCtx)

	if err := b.host.AddVerb(Verb{
		Name:    msg.Name(),
		Info:    verbInfo,
		Group:   msg.Name(),
		Actions: actionList(),
		Sample:  msgVerbSample,
		Handler: b.serialize(mCtx.handleVerb),
	}); err != nil {
		return fmt.Errorf("register verb of message %s: %w", msg.Name(), err)
	}

	for _, sig := range msg.Signals() {
		sCtx, err := b.registerSignal(mCtx, sig)
		if err != nil {
			b.tel.LogError("failed to register signal", err, "message", msg.Name(), "canid", msg.ID(), "signal", sig.Name())
			return err
		}
		mCtx.signals = append(mCtx.signals, sCtx)
	}

	b.messages[msg.ID()] = mCtx

	return nil
}

func (mc *messageCtx) buildEvent(flag subscription.Flag) (*sockdata.MessageEvent, error) {
	payload := &sockdata.MessageEvent{
		Message: sockdata.NewMessageData(mc.msg),
		Signals: make([]sockdata.SignalData, 0, len(mc.msg.Signals())),
	}

	for _, sig := range mc.msg.Signals() {
		if !sig.TryLock() {
			return nil, dbc.NewError(dbc.ErrBorrowConflict, dbc.ErrorKindLockConflict,
				"fail-borrow-sig", "internal pool error (sig rfc cell already used)")
		}

		if flag == subscription.FlagAll || sig.Status() == dbc.StatusUpdated {
			payload.Signals = append(payload.Signals, sockdata.NewSignalData(sig))
		}

		sig.Unlock()
	}

	return payload, nil
}

// MessageNotification publishes the message and drops the upstream
// subscription once nobody listens anymore.
func (mc *messageCtx) MessageNotification(msg *dbc.Message) {
	b := mc.b

	if !mc.info.TryLock() {
		b.tel.LogCritical("pool-msg-notification: failed to get event info",
			dbc.ErrBorrowConflict, "canid", msg.ID())
		return
	}
	defer mc.info.Unlock()

	payload, err := mc.buildEvent(mc.info.Flag)
	if err != nil {
		b.tel.LogCritical("pool-msg-notification: failed to build event params", err, "canid", msg.ID())
		return
	}

	listeners := mc.event.Push(payload)
	b.emittedEvents.Add(context.Background(), 1, metric.WithAttributes(attribute.String("event", mc.event.Name())))

	if listeners+msg.Listeners() >= 1 {
		return
	}

	b.tel.LogNotice(fmt.Sprintf("msg-empty-listener: clearing canid=%d subscription", msg.ID()))

	ctx, cancel := b.upstreamContext()
	defer cancel()

	if err := b.unsubscribeUpstream(ctx, sockdata.UnsubscribeParam{CANIDs: []uint32{msg.ID()}}); err != nil {
		b.tel.LogWarn("failed to clear upstream subscription", "canid", msg.ID(), "reason", err)
	}

	mc.info.Teardown()
}

func (mc *messageCtx) handleVerb(ctx context.Context, session Session, raw []byte) (any, error) {
	req, err := parseRequest(raw)
	if err != nil {
		return nil, err
	}

	msg := mc.msg
	if !msg.TryLock() {
		return nil, dbc.NewError(dbc.ErrBorrowConflict, dbc.ErrorKindLockConflict,
			"fail-borrow-msg", "internal pool error (msg cell already used)")
	}
	defer msg.Unlock()

	if !mc.info.TryLock() {
		return nil, dbc.NewError(dbc.ErrBorrowConflict, dbc.ErrorKindLockConflict,
			"fail-borrow-info", "internal pool error (info cell already used)")
	}
	defer mc.info.Unlock()

	switch req.action {
	case subscription.ActionSubscribe:
		if err := mc.event.Subscribe(session); err != nil {
			return nil, err
		}

		params, reinstall := subscription.Subscribe(mc.info, nil, req.sub)
		if reinstall {
			if err := mc.b.subscribeUpstream(ctx, sockdata.NewSubscribeParam([]uint32{msg.ID()}, params)); err != nil {
				return nil, err
			}
		}

		return fmt.Sprintf("Subscribe (canid:%d) msg:%s OK", msg.ID(), msg.Name()), nil

	case subscription.ActionUnsubscribe:
		if err := mc.event.Unsubscribe(session); err != nil {
			return nil, err
		}
		return fmt.Sprintf("UnSubscribe (canid:%d) msg:%s OK", msg.ID(), msg.Name()), nil

	case subscription.ActionRead:
		return mc.buildEvent(subscription.FlagAll)

	default:
		if err := msg.Reset(); err != nil {
			return nil, dbc.NewError(err, dbc.ErrorKindLockConflict,
				"reset-msg-fail", "internal pool (fail to get borrow mut)")
		}
		return fmt.Sprintf("Reset (canid:%d) msg:%s OK", msg.ID(), msg.Name()), nil
	}
}
