// Package binding exposes a message pool through verbs and events:
// one verb and one event per message and per signal, plus the handler
// that feeds raw frames into the pool.
package binding

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/squadracorsepolito/acmesig/connector"
	"github.com/squadracorsepolito/acmesig/dbc"
	"github.com/squadracorsepolito/acmesig/internal"
	"github.com/squadracorsepolito/acmesig/sockdata"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type call struct {
	ctx     context.Context
	session Session
	request []byte
	handler VerbHandler
	done    chan callResult
}

type callResult struct {
	reply any
	err   error
}

// Binding owns the pool and serializes frames and verb calls on a single dispatcher.
type Binding struct {
	tel *internal.Telemetry
	cfg *Config

	pool    *dbc.Pool
	host    Host
	backend Backend

	in connector.Connector[dbc.Frame]

	messages map[uint32]*messageCtx

	// nameUses counts the messages and signals sharing a name
	nameUses map[string]int

	calls    chan *call
	frames   chan dbc.Frame
	running  atomic.Bool
	stopped  chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// Telemetry metrics
	receivedFrames metric.Int64Counter
	droppedFrames  metric.Int64Counter
	emittedEvents  metric.Int64Counter
	upstreamCalls  metric.Int64Counter
}

func New(cfg *Config, pool *dbc.Pool, host Host, backend Backend) *Binding {
	return NewWithTelemetry(internal.NewTelemetry("binding", cfg.UID), cfg, pool, host, backend)
}

// NewWithTelemetry is like [New] with an explicit telemetry.
func NewWithTelemetry(tel *internal.Telemetry, cfg *Config, pool *dbc.Pool, host Host, backend Backend) *Binding {
	b := &Binding{
		tel: tel,
		cfg: cfg,

		pool:    pool,
		host:    host,
		backend: backend,

		messages: make(map[uint32]*messageCtx, len(pool.Messages())),

		calls:   make(chan *call),
		frames:  make(chan dbc.Frame),
		stopped: make(chan struct{}),
	}

	b.initMetrics()

	return b
}

func (b *Binding) initMetrics() {
	b.receivedFrames = b.tel.NewCounter("received_frames")
	b.droppedFrames = b.tel.NewCounter("dropped_frames")
	b.emittedEvents = b.tel.NewCounter("emitted_events")
	b.upstreamCalls = b.tel.NewCounter("upstream_calls")
}

// SetInput sets the queue the frames are read from.
func (b *Binding) SetInput(in connector.Connector[dbc.Frame]) {
	b.in = in
}

// Pool returns the message pool served by the binding.
func (b *Binding) Pool() *dbc.Pool {
	return b.pool
}

// Init registers the verbs and events of every message and signal.
func (b *Binding) Init(_ context.Context) error {
	b.nameUses = make(map[string]int)
	for _, msg := range b.pool.Messages() {
		b.nameUses[msg.Name()]++
		for _, sig := range msg.Signals() {
			b.nameUses[sig.Name()]++
		}
	}

	for _, msg := range b.pool.Messages() {
		if err := b.registerMessage(msg); err != nil {
			return err
		}
	}

	b.tel.LogInfo("registered pool", "messages", len(b.pool.Messages()), "sock_api", b.cfg.SockAPI, "sock_evt", b.cfg.SockEvt)

	return nil
}

// Run dispatches frames and verb calls until the context is done.
func (b *Binding) Run(ctx context.Context) {
	b.tel.LogInfo("running")
	defer b.tel.LogInfo("stopped")

	b.running.Store(true)
	defer func() {
		b.running.Store(false)
		b.stopOnce.Do(func() { close(b.stopped) })
	}()

	if b.in != nil {
		b.wg.Add(1)
		go b.pump(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return

		case frame := <-b.frames:
			b.HandleFrame(ctx, frame)

		case c := <-b.calls:
			reply, err := c.handler(c.ctx, c.session, c.request)
			c.done <- callResult{reply: reply, err: err}
		}
	}
}

// pump moves frames from the input queue to the dispatcher.
func (b *Binding) pump(ctx context.Context) {
	defer b.wg.Done()

	for {
		frame, err := b.in.Read()
		if err != nil {
			if !errors.Is(err, connector.ErrClosed) {
				b.tel.LogError("failed to read from input connector", err)
			}
			return
		}

		select {
		case b.frames <- frame:
		case <-ctx.Done():
			return
		}
	}
}

// Stop closes the input queue and waits for the pump.
func (b *Binding) Stop() {
	if b.in != nil {
		b.in.Close()
	}
	b.wg.Wait()
}

// serialize runs the handler on the dispatcher while it is running.
// Once the dispatcher has stopped the handler runs on the caller.
func (b *Binding) serialize(handler VerbHandler) VerbHandler {
	return func(ctx context.Context, session Session, request []byte) (any, error) {
		if !b.running.Load() {
			return handler(ctx, session, request)
		}

		c := &call{
			ctx:     ctx,
			session: session,
			request: request,
			handler: handler,
			done:    make(chan callResult, 1),
		}

		select {
		case b.calls <- c:
		case <-b.stopped:
			return handler(ctx, session, request)
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		select {
		case res := <-c.done:
			return res.reply, res.err
		case <-b.stopped:
			// an accepted call is always answered before the dispatcher returns
			res := <-c.done
			return res.reply, res.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// HandleEvent is the raw frame event handler. Anything that is not a frame
// is logged and ignored.
func (b *Binding) HandleEvent(ctx context.Context, payload any) {
	switch data := payload.(type) {
	case dbc.Frame:
		b.HandleFrame(ctx, data)
	case *dbc.Frame:
		b.HandleFrame(ctx, *data)
	case *sockdata.BmcError:
		b.tel.LogWarn("frame source error", "uid", data.UID, "info", data.Info)
	default:
		err := dbc.NewError(dbc.ErrDecode, dbc.ErrorKindDecode,
			"event-bmc-invalid", fmt.Sprintf("internal error: event is not a frame (%T)", payload))
		b.tel.LogCritical("invalid frame event", err)
	}
}

// HandleFrame updates the pool with the frame.
func (b *Binding) HandleFrame(ctx context.Context, frame dbc.Frame) {
	b.receivedFrames.Add(ctx, 1)

	handle, err := b.pool.Update(frame)
	if err != nil {
		b.droppedFrames.Add(ctx, 1, metric.WithAttributes(attribute.Int64("canid", int64(frame.CANID))))

		poolErr := dbc.NewError(errors.Join(dbc.ErrDecode, err), dbc.ErrorKindDecode,
			"event-pool-update", fmt.Sprintf("Fail to update message pool canid:%d", frame.CANID))
		b.tel.LogCritical("failed to update pool", poolErr, "cause", err.Error())
		return
	}

	handle.Release()
}

func (b *Binding) upstreamContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), b.cfg.UpstreamTimeout)
}

func (b *Binding) subscribeUpstream(ctx context.Context, param sockdata.SubscribeParam) error {
	b.upstreamCalls.Add(ctx, 1, metric.WithAttributes(attribute.String("call", "subscribe")))

	if err := b.backend.Subscribe(ctx, param); err != nil {
		return dbc.NewError(errors.Join(dbc.ErrUpstreamSubscribe, err), dbc.ErrorKindUpstream,
			"fail-upstream-subscribe", fmt.Sprintf("%s/subscribe canids=%v: %v", b.cfg.SockAPI, param.CANIDs, err))
	}

	return nil
}

func (b *Binding) unsubscribeUpstream(ctx context.Context, param sockdata.UnsubscribeParam) error {
	b.upstreamCalls.Add(ctx, 1, metric.WithAttributes(attribute.String("call", "unsubscribe")))

	if err := b.backend.Unsubscribe(ctx, param); err != nil {
		return dbc.NewError(errors.Join(dbc.ErrUpstreamSubscribe, err), dbc.ErrorKindUpstream,
			"fail-upstream-unsubscribe", fmt.Sprintf("%s/unsubscribe canids=%v: %v", b.cfg.SockAPI, param.CANIDs, err))
	}

	return nil
}
