// Package cannelloni is the frame source receiving CAN frames tunnelled over
// UDP with the cannelloni protocol. Receive filters are applied in software
// with the same rate and watchdog semantics as the SocketCAN broadcast manager.
package cannelloni

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
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

const (
	defaultUDPPayloadSize = 1474
)

var _ binding.Backend = (*Backend)(nil)

type Backend struct {
	tel *internal.Telemetry
	cfg *Config

	conn *net.UDPConn
	out  connector.Connector[dbc.Frame]
	now  func() time.Time

	filters    *filterSet
	throughput *internal.Throughput

	wg sync.WaitGroup

	// Telemetry metrics
	receivedBytes   metric.Int64Counter
	receivedFrames  metric.Int64Counter
	filteredFrames  metric.Int64Counter
	invalidPackets  metric.Int64Counter
	watchdogExpired metric.Int64Counter
}

func NewBackend(cfg *Config, out connector.Connector[dbc.Frame]) *Backend {
	b := &Backend{
		tel: internal.NewTelemetry("cannelloni", cfg.UID),
		cfg: cfg,

		out: out,
		now: time.Now,

		filters: newFilterSet(),
	}

	b.throughput = internal.NewThroughput(b.tel, time.Second)

	b.receivedBytes = b.tel.NewCounter("received_bytes")
	b.receivedFrames = b.tel.NewCounter("received_frames")
	b.filteredFrames = b.tel.NewCounter("filtered_frames")
	b.invalidPackets = b.tel.NewCounter("invalid_packets")
	b.watchdogExpired = b.tel.NewCounter("watchdog_expired")

	return b
}

func (b *Backend) stamp() uint64 {
	return uint64(b.now().UnixMicro())
}

// Init opens the UDP socket.
func (b *Backend) Init(_ context.Context) error {
	parsedAddr, err := netip.ParseAddr(b.cfg.IPAddr)
	if err != nil {
		return err
	}

	addr := net.UDPAddrFromAddrPort(netip.AddrPortFrom(parsedAddr, b.cfg.Port))
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}

	b.conn = conn

	return nil
}

// Addr returns the local address of the UDP socket.
func (b *Backend) Addr() net.Addr {
	return b.conn.LocalAddr()
}

// Run reads the datagrams until the context is done or Stop is called.
func (b *Backend) Run(ctx context.Context) {
	b.tel.LogInfo("running", "addr", b.conn.LocalAddr().String())
	defer b.tel.LogInfo("stopped")

	go func() {
		<-ctx.Done()
		b.conn.Close()
	}()

	b.wg.Add(2)
	go b.runWatchdog(ctx)
	go func() {
		defer b.wg.Done()
		b.throughput.Run(ctx)
	}()

	buf := make([]byte, defaultUDPPayloadSize)

	for {
		n, err := b.conn.Read(buf)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				b.tel.LogError("failed to read connection", err)
			}
			return
		}

		b.receivedBytes.Add(ctx, int64(n))
		b.throughput.AddBytes(n)

		if err := b.handleDatagram(ctx, buf[:n]); err != nil {
			if errors.Is(err, connector.ErrClosed) {
				return
			}
			b.tel.LogWarn("dropping datagram", "reason", err)
		}
	}
}

// Stop closes the socket and waits for the watchdog.
func (b *Backend) Stop() {
	if b.conn != nil {
		b.conn.Close()
	}
	b.wg.Wait()
}

func (b *Backend) handleDatagram(ctx context.Context, buf []byte) error {
	packet, err := DecodePacket(buf)
	if err != nil {
		b.invalidPackets.Add(ctx, 1)
		return err
	}

	now := b.stamp()
	b.throughput.AddFrames(len(packet.Frames))

	for _, f := range packet.Frames {
		b.receivedFrames.Add(ctx, 1)

		if !b.filters.accept(f.CANID, now) {
			b.filteredFrames.Add(ctx, 1)
			continue
		}

		frame := dbc.Frame{
			CANID:  f.CANID,
			Stamp:  now,
			Opcode: dbc.OpRxChanged,
			Len:    f.DataLen,
			Data:   f.Data,
		}

		if err := b.out.Write(frame); err != nil {
			return err
		}
	}

	return nil
}

func (b *Backend) runWatchdog(ctx context.Context) {
	defer b.wg.Done()

	ticker := time.NewTicker(b.cfg.WatchdogTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := b.checkWatchdog(ctx); err != nil {
				return
			}
		}
	}
}

func (b *Backend) checkWatchdog(ctx context.Context) error {
	now := b.stamp()

	for _, canID := range b.filters.expired(now) {
		b.watchdogExpired.Add(ctx, 1, metric.WithAttributes(attribute.Int64("canid", int64(canID))))

		if err := b.out.Write(dbc.Frame{CANID: canID, Stamp: now, Opcode: dbc.OpRxTimeout}); err != nil {
			return err
		}
	}

	return nil
}

// Subscribe installs a software filter for each id.
func (b *Backend) Subscribe(_ context.Context, param sockdata.SubscribeParam) error {
	if len(param.CANIDs) == 0 {
		return dbc.NewError(dbc.ErrInvalidAction, dbc.ErrorKindValidation, "fail-empty-canids", "pool canids list is empty")
	}

	now := b.stamp()
	for _, canID := range param.CANIDs {
		b.filters.install(canID, param.Rate, param.Watchdog, now)
	}

	b.tel.LogDebug("filters installed", "canids", param.CANIDs, "rate", param.Rate, "watchdog", param.Watchdog)

	return nil
}

// Unsubscribe removes the filter of each id.
func (b *Backend) Unsubscribe(_ context.Context, param sockdata.UnsubscribeParam) error {
	if len(param.CANIDs) == 0 {
		return dbc.NewError(dbc.ErrInvalidAction, dbc.ErrorKindValidation, "fail-empty-canids", "canids list is empty")
	}

	for _, canID := range param.CANIDs {
		b.filters.remove(canID)
	}

	return nil
}

// Filters returns the ids with an installed filter.
func (b *Backend) Filters() []uint32 {
	return b.filters.ids()
}
