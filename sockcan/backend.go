// Package sockcan is the frame source backed by the SocketCAN broadcast
// manager. Receive filters are installed in the kernel with RX_SETUP and
// the changed frames and timeouts are forwarded to a connector.
package sockcan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/squadracorsepolito/acmesig/binding"
	"github.com/squadracorsepolito/acmesig/connector"
	"github.com/squadracorsepolito/acmesig/dbc"
	"github.com/squadracorsepolito/acmesig/internal"
	"github.com/squadracorsepolito/acmesig/sockdata"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var _ binding.Backend = (*Backend)(nil)

type timers struct {
	rate     uint64
	watchdog uint64
}

// Backend owns the BCM socket. The socket is opened on the first subscription.
type Backend struct {
	tel *internal.Telemetry
	cfg *Config

	open func(device string) (io.ReadWriteCloser, error)
	now  func() time.Time

	out   connector.Connector[dbc.Frame]
	event binding.Event

	mux     sync.Mutex
	sock    io.ReadWriteCloser
	filters map[uint32]timers

	wg sync.WaitGroup

	// Telemetry metrics
	readFrames  metric.Int64Counter
	readErrors  metric.Int64Counter
	rearmedIDs  metric.Int64Counter
	skippedMsgs metric.Int64Counter
}

func NewBackend(cfg *Config, out connector.Connector[dbc.Frame]) *Backend {
	b := &Backend{
		tel: internal.NewTelemetry("sockcan", cfg.UID),
		cfg: cfg,

		open: openBCM,
		now:  time.Now,

		out:     out,
		filters: make(map[uint32]timers),
	}

	b.readFrames = b.tel.NewCounter("read_frames")
	b.readErrors = b.tel.NewCounter("read_errors")
	b.rearmedIDs = b.tel.NewCounter("rearmed_canids")
	b.skippedMsgs = b.tel.NewCounter("skipped_messages")

	return b
}

// SetEvent sets the event receiving a copy of the raw frames.
func (b *Backend) SetEvent(event binding.Event) {
	b.event = event
}

func (b *Backend) session() (io.ReadWriteCloser, error) {
	b.mux.Lock()
	defer b.mux.Unlock()

	if b.sock != nil {
		return b.sock, nil
	}

	sock, err := b.open(b.cfg.Device)
	if err != nil {
		return nil, dbc.NewError(err, dbc.ErrorKindUpstream, "fail-sockbmc-open", err.Error())
	}

	b.sock = sock

	b.wg.Add(1)
	go b.read(sock)

	b.tel.LogInfo("bcm session opened", "device", b.cfg.Device)

	return sock, nil
}

func (b *Backend) write(sock io.Writer, cmd []byte) error {
	b.mux.Lock()
	defer b.mux.Unlock()

	_, err := sock.Write(cmd)
	return err
}

// Subscribe installs a receive filter for each id.
func (b *Backend) Subscribe(_ context.Context, param sockdata.SubscribeParam) error {
	if len(param.CANIDs) == 0 {
		err := dbc.NewError(dbc.ErrInvalidAction, dbc.ErrorKindValidation, "fail-empty-canids", "pool canids list is empty")
		b.tel.LogWarn("invalid subscription", "reason", err)
		return err
	}

	sock, err := b.session()
	if err != nil {
		b.tel.LogWarn("failed to open bcm session", "device", b.cfg.Device, "reason", err)
		return err
	}

	failed := []uint32{}
	for _, canID := range param.CANIDs {
		if err := b.write(sock, encodeRxSetup(canID, param.Rate, param.Watchdog)); err != nil {
			b.tel.LogWarn("failed to install filter", "canid", canID, "reason", err)
			failed = append(failed, canID)
			continue
		}

		b.mux.Lock()
		b.filters[canID] = timers{rate: param.Rate, watchdog: param.Watchdog}
		b.mux.Unlock()
	}

	if len(failed) > 0 {
		return dbc.NewError(dbc.ErrUpstreamSubscribe, dbc.ErrorKindUpstream,
			"fail-canid-Subscribe", fmt.Sprintf("Fail to Subscribe canids=%v", failed))
	}

	return nil
}

// Unsubscribe removes the receive filter of each id.
func (b *Backend) Unsubscribe(_ context.Context, param sockdata.UnsubscribeParam) error {
	if len(param.CANIDs) == 0 {
		return dbc.NewError(dbc.ErrInvalidAction, dbc.ErrorKindValidation, "fail-empty-canids", "canids list is empty")
	}

	b.mux.Lock()
	sock := b.sock
	b.mux.Unlock()

	if sock == nil {
		return dbc.NewError(dbc.ErrNotFound, dbc.ErrorKindLookup, "fail-sockbmc-session", "no bcm session opened")
	}

	failed := []uint32{}
	for _, canID := range param.CANIDs {
		if err := b.write(sock, encodeRxDelete(canID)); err != nil {
			b.tel.LogWarn("failed to delete filter", "canid", canID, "reason", err)
			failed = append(failed, canID)
			continue
		}

		b.mux.Lock()
		delete(b.filters, canID)
		b.mux.Unlock()
	}

	if len(failed) > 0 {
		return dbc.NewError(dbc.ErrUpstreamSubscribe, dbc.ErrorKindUpstream,
			"fail-canid-Subscribe", fmt.Sprintf("Fail to UnSubscribe canids=%v", failed))
	}

	return nil
}

// Filters returns the ids with an installed filter.
func (b *Backend) Filters() []uint32 {
	b.mux.Lock()
	defer b.mux.Unlock()

	ids := make([]uint32, 0, len(b.filters))
	for id := range b.filters {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	return ids
}

// Check opens and closes a BCM socket on the device.
func (b *Backend) Check() error {
	sock, err := b.open(b.cfg.Device)
	if err != nil {
		return dbc.NewError(err, dbc.ErrorKindUpstream, "fail-sockbmc-open", err.Error())
	}
	return sock.Close()
}

// Close closes the BCM session and drops every filter.
func (b *Backend) Close() {
	b.mux.Lock()
	sock := b.sock
	b.sock = nil
	clear(b.filters)
	b.mux.Unlock()

	if sock != nil {
		if err := sock.Close(); err != nil {
			b.tel.LogWarn("failed to close bcm socket", "reason", err)
		}
		b.tel.LogInfo("bcm session closed", "device", b.cfg.Device)
	}

	b.wg.Wait()
}

func (b *Backend) read(sock io.Reader) {
	defer b.wg.Done()

	ctx := context.Background()
	buf := make([]byte, bcmMsgSize)

	for {
		n, err := sock.Read(buf)
		if err != nil {
			if !errors.Is(err, os.ErrClosed) && !errors.Is(err, io.EOF) {
				b.tel.LogError("failed to read bcm socket", err)
			}
			return
		}

		frame, err := decodeMessage(buf[:n])
		if err != nil {
			b.readErrors.Add(ctx, 1)
			b.pushEvent(&sockdata.BmcError{UID: "fail-bcm-decode", Status: -1, Info: err.Error()})
			continue
		}

		frame.Stamp = uint64(b.now().UnixMicro())

		switch frame.Opcode {
		case dbc.OpRxChanged:
		case dbc.OpRxTimeout:
			b.rearm(frame.CANID)
		default:
			b.skippedMsgs.Add(ctx, 1, metric.WithAttributes(attribute.String("opcode", frame.Opcode.String())))
			continue
		}

		b.readFrames.Add(ctx, 1, metric.WithAttributes(attribute.String("opcode", frame.Opcode.String())))
		b.pushEvent(frame)

		if err := b.out.Write(frame); err != nil {
			if !errors.Is(err, connector.ErrClosed) {
				b.tel.LogError("failed to write frame", err, "canid", frame.CANID)
			}
			return
		}
	}
}

func (b *Backend) pushEvent(payload any) {
	if b.event != nil {
		b.event.Push(payload)
	}
}

// rearm installs the filter again after a timeout, with the same timers.
func (b *Backend) rearm(canID uint32) {
	b.mux.Lock()
	t, ok := b.filters[canID]
	sock := b.sock
	b.mux.Unlock()

	if !ok || sock == nil {
		return
	}

	if err := b.write(sock, encodeRxSetup(canID, t.rate, t.watchdog)); err != nil {
		b.tel.LogWarn(fmt.Sprintf("fail-sockbmc-filter canid=%d rate=%d watchdog=%d", canID, t.rate, t.watchdog), "reason", err)
		return
	}

	b.rearmedIDs.Add(context.Background(), 1)
}
