package questdb

import (
	"context"
	"math/big"
	"testing"
	"time"

	qdb "github.com/questdb/go-questdb-client/v3"
	"github.com/squadracorsepolito/acmesig/dbc"
	"github.com/squadracorsepolito/acmesig/sink"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSender records the calls of the methods used by writeRow.
type recordingSender struct {
	qdb.LineSender

	calls []string
	at    time.Time
}

func (s *recordingSender) Table(name string) qdb.LineSender {
	s.calls = append(s.calls, "table:"+name)
	return s
}

func (s *recordingSender) Symbol(name, val string) qdb.LineSender {
	s.calls = append(s.calls, "symbol:"+name+"="+val)
	return s
}

func (s *recordingSender) Int64Column(name string, _ int64) qdb.LineSender {
	s.calls = append(s.calls, "int:"+name)
	return s
}

func (s *recordingSender) Long256Column(name string, _ *big.Int) qdb.LineSender {
	s.calls = append(s.calls, "long:"+name)
	return s
}

func (s *recordingSender) Float64Column(name string, _ float64) qdb.LineSender {
	s.calls = append(s.calls, "float:"+name)
	return s
}

func (s *recordingSender) BoolColumn(name string, _ bool) qdb.LineSender {
	s.calls = append(s.calls, "bool:"+name)
	return s
}

func (s *recordingSender) At(_ context.Context, ts time.Time) error {
	s.at = ts
	return nil
}

func Test_writeRow(t *testing.T) {
	assert := assert.New(t)

	stamp := time.UnixMicro(1_700_000_000_000_000)
	row := &sink.Row{
		Event:  "ID266RearInverterPower",
		CANID:  614,
		Signal: "RearPower266",
		Status: dbc.StatusUpdated,
		Value:  dbc.FloatValue(-12.5),
		Stamp:  stamp,
	}

	sender := &recordingSender{}
	require.NoError(t, writeRow(context.Background(), sender, "signals", row))

	assert.Equal([]string{
		"table:signals",
		"symbol:event=ID266RearInverterPower",
		"symbol:signal=RearPower266",
		"symbol:status=Updated",
		"symbol:canid=614",
		"float:value",
	}, sender.calls)
	assert.Equal(stamp, sender.at)

	cases := []struct {
		value  dbc.Value
		column string
	}{
		{dbc.BoolValue(true), "bool:value_bool"},
		{dbc.IntValue(-3), "int:value_int"},
		{dbc.UintValue(7), "int:value_int"},
		{dbc.UintValue(1 << 63), "long:value_long"},
	}

	for _, c := range cases {
		sender := &recordingSender{}
		row.CANID = 0
		row.Value = c.value

		require.NoError(t, writeRow(context.Background(), sender, "signals", row))
		assert.Len(sender.calls, 5)
		assert.Equal(c.column, sender.calls[len(sender.calls)-1])
	}
}
