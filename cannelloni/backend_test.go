package cannelloni

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/squadracorsepolito/acmesig/connector"
	"github.com/squadracorsepolito/acmesig/dbc"
	"github.com/squadracorsepolito/acmesig/sockdata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_filterSet(t *testing.T) {
	assert := assert.New(t)

	fs := newFilterSet()
	assert.False(fs.accept(614, 1_000))

	// 100 ms rate, 1 s watchdog
	fs.install(614, 100, 1000, 0)
	assert.True(fs.accept(614, 1_000))
	assert.False(fs.accept(614, 50_000))
	assert.True(fs.accept(614, 101_000))

	assert.Empty(fs.expired(1_101_000))
	assert.Equal([]uint32{614}, fs.expired(1_101_001))
	assert.Empty(fs.expired(2_000_000))

	// resume is delivered whatever the rate
	assert.True(fs.accept(614, 2_000_010))
	assert.False(fs.accept(614, 2_000_020))

	fs.install(280, 0, 0, 0)
	assert.True(fs.accept(280, 1))
	assert.True(fs.accept(280, 2))
	assert.Equal([]uint32{614}, fs.expired(1<<40))

	assert.Equal([]uint32{280, 614}, fs.ids())
	fs.remove(614)
	assert.Equal([]uint32{280}, fs.ids())
}

func newTestBackend(t *testing.T) (*Backend, *connector.Channel[dbc.Frame], net.Conn) {
	t.Helper()

	cfg := NewDefaultConfig()
	cfg.Port = 0
	cfg.WatchdogTick = time.Millisecond

	out := connector.NewChannel[dbc.Frame](16)
	b := NewBackend(cfg, out)
	require.NoError(t, b.Init(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	go b.Run(ctx)

	client, err := net.Dial("udp", b.Addr().String())
	require.NoError(t, err)

	t.Cleanup(func() {
		client.Close()
		cancel()
		out.Close()
		b.Stop()
	})

	return b, out, client
}

func readFrame(t *testing.T, out *connector.Channel[dbc.Frame]) dbc.Frame {
	t.Helper()

	frames := make(chan dbc.Frame, 1)
	go func() {
		frame, err := out.Read()
		if err == nil {
			frames <- frame
		}
	}()

	select {
	case frame := <-frames:
		return frame
	case <-time.After(2 * time.Second):
		t.Fatal("no frame received")
	}
	return dbc.Frame{}
}

func Test_Backend_Receive(t *testing.T) {
	assert := assert.New(t)

	b, out, client := newTestBackend(t)

	require.NoError(t, b.Subscribe(context.Background(), sockdata.SubscribeParam{CANIDs: []uint32{0x266}}))
	assert.Equal([]uint32{0x266}, b.Filters())

	packet := NewPacket(0)
	packet.AddFrame(NewFrame(0x118, []byte{1, 2, 3, 4, 5, 6, 7, 8}))
	packet.AddFrame(NewFrame(0x266, []byte{0xe7, 0x07, 0, 0, 0, 0, 0, 0}))

	_, err := client.Write(packet.Encode())
	require.NoError(t, err)

	frame := readFrame(t, out)
	assert.Equal(uint32(0x266), frame.CANID)
	assert.Equal(dbc.OpRxChanged, frame.Opcode)
	assert.Equal(uint8(8), frame.Len)
	assert.Equal([]byte{0xe7, 0x07, 0, 0, 0, 0, 0, 0}, frame.Data)
	assert.NotZero(frame.Stamp)
}

func Test_Backend_Watchdog(t *testing.T) {
	assert := assert.New(t)

	b, out, _ := newTestBackend(t)

	require.NoError(t, b.Subscribe(context.Background(), sockdata.SubscribeParam{CANIDs: []uint32{0x257}, Watchdog: 5}))

	frame := readFrame(t, out)
	assert.Equal(uint32(0x257), frame.CANID)
	assert.Equal(dbc.OpRxTimeout, frame.Opcode)
	assert.Empty(frame.Data)

	require.NoError(t, b.Unsubscribe(context.Background(), sockdata.UnsubscribeParam{CANIDs: []uint32{0x257}}))
	assert.Empty(b.Filters())

	err := b.Unsubscribe(context.Background(), sockdata.UnsubscribeParam{})
	var dbcErr *dbc.Error
	require.ErrorAs(t, err, &dbcErr)
	assert.Equal("fail-empty-canids", dbcErr.UID)
}
