package sockcan

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/squadracorsepolito/acmesig/connector"
	"github.com/squadracorsepolito/acmesig/dbc"
	"github.com/squadracorsepolito/acmesig/host/memory"
	"github.com/squadracorsepolito/acmesig/sockdata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSocket struct {
	mux    sync.Mutex
	writes [][]byte

	rx        chan []byte
	closeOnce sync.Once
	failIDs   map[uint32]bool
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{
		rx:      make(chan []byte, 16),
		failIDs: make(map[uint32]bool),
	}
}

func (s *fakeSocket) Read(p []byte) (int, error) {
	msg, ok := <-s.rx
	if !ok {
		return 0, io.EOF
	}
	return copy(p, msg), nil
}

func (s *fakeSocket) Write(p []byte) (int, error) {
	s.mux.Lock()
	defer s.mux.Unlock()

	if s.failIDs[binary.NativeEndian.Uint32(p[48:])] {
		return 0, errors.New("invalid argument")
	}

	s.writes = append(s.writes, append([]byte(nil), p...))
	return len(p), nil
}

func (s *fakeSocket) Close() error {
	s.closeOnce.Do(func() { close(s.rx) })
	return nil
}

func (s *fakeSocket) commands() []bcmHead {
	s.mux.Lock()
	defer s.mux.Unlock()

	ne := binary.NativeEndian
	heads := make([]bcmHead, 0, len(s.writes))
	for _, w := range s.writes {
		heads = append(heads, bcmHead{
			opcode: dbc.Opcode(ne.Uint32(w[0:])),
			flags:  ne.Uint32(w[4:]),
			ival1:  timeval{sec: int64(ne.Uint64(w[16:])), usec: int64(ne.Uint64(w[24:]))},
			ival2:  timeval{sec: int64(ne.Uint64(w[32:])), usec: int64(ne.Uint64(w[40:]))},
			canID:  ne.Uint32(w[48:]),
		})
	}
	return heads
}

func newTestBackend(t *testing.T) (*Backend, *fakeSocket, *connector.Channel[dbc.Frame]) {
	t.Helper()

	sock := newFakeSocket()
	out := connector.NewChannel[dbc.Frame](16)

	b := NewBackend(NewDefaultConfig(), out)

	opened := false
	b.open = func(device string) (io.ReadWriteCloser, error) {
		if device != "vcan0" {
			return nil, errors.New("no such device")
		}
		if opened {
			return newFakeSocket(), nil
		}
		opened = true
		return sock, nil
	}
	b.now = func() time.Time { return time.UnixMicro(1_700_000_000_000_000) }

	t.Cleanup(func() {
		out.Close()
		b.Close()
	})

	return b, sock, out
}

func Test_Backend_Subscribe(t *testing.T) {
	assert := assert.New(t)

	b, sock, _ := newTestBackend(t)
	ctx := context.Background()

	err := b.Subscribe(ctx, sockdata.SubscribeParam{})
	var dbcErr *dbc.Error
	require.True(t, errors.As(err, &dbcErr))
	assert.Equal("fail-empty-canids", dbcErr.UID)

	require.NoError(t, b.Subscribe(ctx, sockdata.SubscribeParam{CANIDs: []uint32{614, 280}, Rate: 250, Watchdog: 1000}))
	assert.Equal([]uint32{280, 614}, b.Filters())

	cmds := sock.commands()
	require.Len(t, cmds, 2)
	assert.Equal(dbc.OpRxSetup, cmds[0].opcode)
	assert.Equal(rxSetupFlags, cmds[0].flags)
	assert.Equal(uint32(614), cmds[0].canID)
	assert.Equal(timeval{sec: 1}, cmds[0].ival1)
	assert.Equal(timeval{usec: 250_000}, cmds[0].ival2)

	sock.failIDs[599] = true
	err = b.Subscribe(ctx, sockdata.SubscribeParam{CANIDs: []uint32{599, 257}})
	require.True(t, errors.As(err, &dbcErr))
	assert.Equal("fail-canid-Subscribe", dbcErr.UID)
	assert.Equal("Fail to Subscribe canids=[599]", dbcErr.Info)
	assert.ErrorIs(err, dbc.ErrUpstreamSubscribe)
	assert.Equal([]uint32{257, 280, 614}, b.Filters())

	require.NoError(t, b.Unsubscribe(ctx, sockdata.UnsubscribeParam{CANIDs: []uint32{614}}))
	assert.Equal([]uint32{257, 280}, b.Filters())

	cmds = sock.commands()
	last := cmds[len(cmds)-1]
	assert.Equal(dbc.OpRxDelete, last.opcode)
	assert.Equal(uint32(614), last.canID)
}

func Test_Backend_UnsubscribeWithoutSession(t *testing.T) {
	b, _, _ := newTestBackend(t)

	err := b.Unsubscribe(context.Background(), sockdata.UnsubscribeParam{CANIDs: []uint32{614}})
	assert.ErrorIs(t, err, dbc.ErrNotFound)
}

func Test_Backend_ReadAndRearm(t *testing.T) {
	assert := assert.New(t)

	b, sock, out := newTestBackend(t)
	require.NoError(t, b.Subscribe(context.Background(), sockdata.SubscribeParam{CANIDs: []uint32{614}, Rate: 100, Watchdog: 2000}))

	sock.rx <- bcmMessage(dbc.OpRxChanged, 614, []byte{0xe7, 0x07, 0, 0, 0, 0, 0, 0})

	frame, err := out.Read()
	require.NoError(t, err)
	assert.Equal(dbc.Frame{
		CANID:  614,
		Stamp:  1_700_000_000_000_000,
		Opcode: dbc.OpRxChanged,
		Len:    8,
		Data:   []byte{0xe7, 0x07, 0, 0, 0, 0, 0, 0},
	}, frame)

	sock.rx <- bcmMessage(dbc.OpRxStatus, 614, nil)
	sock.rx <- bcmMessage(dbc.OpRxTimeout, 614, nil)

	frame, err = out.Read()
	require.NoError(t, err)
	assert.Equal(dbc.OpRxTimeout, frame.Opcode)

	cmds := sock.commands()
	require.Len(t, cmds, 2)
	assert.Equal(dbc.OpRxSetup, cmds[1].opcode)
	assert.Equal(uint32(614), cmds[1].canID)
	assert.Equal(timeval{sec: 2}, cmds[1].ival1)
	assert.Equal(timeval{usec: 100_000}, cmds[1].ival2)
}

func Test_Backend_Verbs(t *testing.T) {
	assert := assert.New(t)

	b, sock, out := newTestBackend(t)

	host := memory.NewHost()
	require.NoError(t, b.RegisterVerbs(host))

	client, err := host.Connect("c1", 4)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = host.Call(ctx, client, "sockcan/subscribe", []byte(`{"canids":[280],"rate":250,"watchdog":1000,"flag":"ALL"}`))
	require.NoError(t, err)
	assert.Equal([]uint32{280}, b.Filters())

	sock.rx <- bcmMessage(dbc.OpRxChanged, 280, []byte{1, 0, 0, 0, 0, 0, 0, 0})
	_, err = out.Read()
	require.NoError(t, err)

	select {
	case delivery := <-client.Deliveries():
		assert.Equal("sockbmc", delivery.Event)
		frame, ok := delivery.Data.(dbc.Frame)
		require.True(t, ok)
		assert.Equal(uint32(280), frame.CANID)
	case <-time.After(time.Second):
		t.Fatal("no raw frame delivery")
	}

	_, err = host.Call(ctx, client, "sockcan/subscribe", []byte(`{"canids":[280],"flag":"maybe"}`))
	var dbcErr *dbc.Error
	require.True(t, errors.As(err, &dbcErr))
	assert.Equal("invalid-param", dbcErr.UID)

	_, err = host.Call(ctx, client, "sockcan/check", nil)
	assert.NoError(err)

	_, err = host.Call(ctx, client, "sockcan/unsubscribe", []byte(`{"canids":[]}`))
	require.True(t, errors.As(err, &dbcErr))
	assert.Equal("fail-empty-canids", dbcErr.UID)

	_, err = host.Call(ctx, client, "sockcan/close", nil)
	assert.NoError(err)
	assert.Empty(b.Filters())
}

func Test_Backend_OpenFailure(t *testing.T) {
	assert := assert.New(t)

	b, _, _ := newTestBackend(t)
	b.cfg.Device = "can9"

	var dbcErr *dbc.Error

	err := b.Check()
	require.True(t, errors.As(err, &dbcErr))
	assert.Equal("fail-sockbmc-open", dbcErr.UID)

	err = b.Subscribe(context.Background(), sockdata.SubscribeParam{CANIDs: []uint32{614}})
	require.True(t, errors.As(err, &dbcErr))
	assert.Equal("fail-sockbmc-open", dbcErr.UID)
	assert.Empty(b.Filters())
}
