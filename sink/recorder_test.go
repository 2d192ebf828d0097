package sink

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/squadracorsepolito/acmesig/dbc"
	"github.com/squadracorsepolito/acmesig/host/memory"
	"github.com/squadracorsepolito/acmesig/sockdata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memWriter struct {
	mux    sync.Mutex
	rows   []Row
	closed bool
	err    error
}

func (w *memWriter) Write(_ context.Context, rows []Row) error {
	w.mux.Lock()
	defer w.mux.Unlock()

	if w.err != nil {
		return w.err
	}
	w.rows = append(w.rows, rows...)
	return nil
}

func (w *memWriter) Close(context.Context) error {
	w.mux.Lock()
	defer w.mux.Unlock()

	w.closed = true
	return nil
}

func (w *memWriter) snapshot() ([]Row, bool) {
	w.mux.Lock()
	defer w.mux.Unlock()

	return append([]Row(nil), w.rows...), w.closed
}

func Test_RowsOf(t *testing.T) {
	assert := assert.New(t)

	sig := sockdata.SignalData{Name: "DiGear", Stamp: 2_000_000, Status: dbc.StatusUpdated, Value: dbc.UintValue(4)}

	rows := RowsOf(memory.Delivery{Event: "DiGear", Data: sig})
	require.Len(t, rows, 1)
	assert.Equal(Row{
		Event:  "DiGear",
		Signal: "DiGear",
		Status: dbc.StatusUpdated,
		Value:  dbc.UintValue(4),
		Stamp:  time.UnixMicro(2_000_000),
	}, rows[0])

	rows = RowsOf(memory.Delivery{Event: "ID118DriveSystemStatus", Data: &sockdata.MessageEvent{
		Message: sockdata.MessageData{CANID: 280, Stamp: 2_000_000, Status: dbc.OpRxChanged},
		Signals: []sockdata.SignalData{sig, sig},
	}})
	require.Len(t, rows, 2)
	assert.Equal(uint32(280), rows[1].CANID)

	assert.Empty(RowsOf(memory.Delivery{Event: "sockbmc", Data: dbc.Frame{}}))
}

func Test_Recorder(t *testing.T) {
	assert := assert.New(t)

	host := memory.NewHost()
	evt, err := host.AddEvent("DiGear")
	require.NoError(t, err)

	client, err := host.Connect("recorder", 16)
	require.NoError(t, err)
	require.NoError(t, evt.Subscribe(client))

	writer := &memWriter{}
	cfg := &Config{BatchSize: 2, FlushInterval: time.Hour}

	rec := NewRecorder("test", cfg, client, writer)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		rec.Run(ctx)
		close(done)
	}()

	for stamp := range uint64(3) {
		evt.Push(sockdata.SignalData{Name: "DiGear", Stamp: stamp, Value: dbc.UintValue(stamp)})
	}

	assert.Eventually(func() bool {
		rows, _ := writer.snapshot()
		return len(rows) == 2
	}, time.Second, time.Millisecond)

	cancel()
	<-done

	rows, closed := writer.snapshot()
	assert.Len(rows, 3)
	assert.True(closed)
}

func Test_Recorder_WriteFailure(t *testing.T) {
	host := memory.NewHost()
	evt, err := host.AddEvent("DiGear")
	require.NoError(t, err)

	client, err := host.Connect("recorder", 16)
	require.NoError(t, err)
	require.NoError(t, evt.Subscribe(client))

	writer := &memWriter{err: errors.New("connection refused")}
	rec := NewRecorder("test", &Config{BatchSize: 1, FlushInterval: time.Hour}, client, writer)

	done := make(chan struct{})
	go func() {
		rec.Run(context.Background())
		close(done)
	}()

	evt.Push(sockdata.SignalData{Name: "DiGear"})
	require.NoError(t, host.Disconnect("recorder"))
	<-done

	rows, closed := writer.snapshot()
	assert.Empty(t, rows)
	assert.True(t, closed)
}
