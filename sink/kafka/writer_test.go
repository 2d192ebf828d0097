package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/squadracorsepolito/acmesig/dbc"
	"github.com/squadracorsepolito/acmesig/internal"
	"github.com/squadracorsepolito/acmesig/sink"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (rw *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if rw.err != nil {
		return rw.err
	}
	rw.msgs = append(rw.msgs, msgs...)
	return nil
}

func (rw *recordingWriter) Close() error {
	rw.closed = true
	return nil
}

func newTestWriter(rw *recordingWriter) *Writer {
	return &Writer{
		tel:    internal.NewTelemetry("sink", "kafka"),
		cfg:    NewDefaultConfig(),
		writer: rw,
	}
}

func Test_Writer(t *testing.T) {
	assert := assert.New(t)

	rw := &recordingWriter{}
	w := newTestWriter(rw)

	stamp := time.UnixMicro(1_500_000)
	rows := []sink.Row{
		{Event: "RearPower266", Signal: "RearPower266", Status: dbc.StatusUpdated, Value: dbc.FloatValue(-12.5), Stamp: stamp},
		{Event: "ID118DriveSystemStatus", CANID: 0x118, Signal: "DiGear", Status: dbc.StatusUnchanged, Value: dbc.UintValue(4), Stamp: stamp},
	}

	require.NoError(t, w.Write(context.Background(), rows))
	require.Len(t, rw.msgs, 2)

	assert.Equal([]byte("RearPower266"), rw.msgs[0].Key)
	assert.Equal(stamp, rw.msgs[0].Time)
	assert.JSONEq(`{"event":"RearPower266","signal":"RearPower266","status":"Updated","value":-12.5,"stamp":1500000}`,
		string(rw.msgs[0].Value))

	assert.JSONEq(`{"event":"ID118DriveSystemStatus","canid":280,"signal":"DiGear","status":"Unchanged","value":4,"stamp":1500000}`,
		string(rw.msgs[1].Value))

	assert.NoError(w.Close(context.Background()))
	assert.True(rw.closed)
}

func Test_Writer_Failure(t *testing.T) {
	rw := &recordingWriter{err: errors.New("leader not available")}
	w := newTestWriter(rw)

	err := w.Write(context.Background(), []sink.Row{{Signal: "DiGear", Value: dbc.UintValue(1)}})
	assert.ErrorIs(t, err, rw.err)
}

func Test_headerCarrier(t *testing.T) {
	assert := assert.New(t)

	carrier := newHeaderCarrier(kafka.Header{Key: "source", Value: []byte("acmesig")})
	carrier.Set("traceparent", "00-a-b-01")
	carrier.Set("traceparent", "00-c-d-01")

	assert.Equal("00-c-d-01", carrier.Get("traceparent"))
	assert.Equal("acmesig", carrier.Get("source"))
	assert.Empty(carrier.Get("missing"))
	assert.Equal([]string{"source", "traceparent"}, carrier.Keys())
}

func Test_parseCompression(t *testing.T) {
	assert := assert.New(t)

	compression, err := parseCompression("zstd")
	assert.NoError(err)
	assert.Equal(kafka.Zstd, compression)

	_, err = parseCompression("brotli")
	assert.Error(err)
}
