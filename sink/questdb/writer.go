// Package questdb writes signal rows to QuestDB over the ILP http transport.
package questdb

import (
	"context"
	"math"
	"math/big"
	"strconv"
	"time"

	qdb "github.com/questdb/go-questdb-client/v3"
	"github.com/squadracorsepolito/acmesig/dbc"
	"github.com/squadracorsepolito/acmesig/sink"
)

var _ sink.Writer = (*Writer)(nil)

type Config struct {
	Address string
	Table   string

	AutoFlushRows int
	RetryTimeout  time.Duration
}

func NewDefaultConfig() *Config {
	return &Config{
		Address: "localhost:9000",
		Table:   "signals",

		AutoFlushRows: 75_000,
		RetryTimeout:  time.Second,
	}
}

type Writer struct {
	cfg        *Config
	senderPool *qdb.LineSenderPool
}

func NewWriter(cfg *Config) (*Writer, error) {
	senderPool, err := qdb.PoolFromOptions(
		qdb.WithAddress(cfg.Address),
		qdb.WithHttp(),
		qdb.WithAutoFlushRows(cfg.AutoFlushRows),
		qdb.WithRetryTimeout(cfg.RetryTimeout),
	)
	if err != nil {
		return nil, err
	}

	return &Writer{
		cfg:        cfg,
		senderPool: senderPool,
	}, nil
}

// Write sends the rows and flushes them.
func (w *Writer) Write(ctx context.Context, rows []sink.Row) error {
	sender, err := w.senderPool.Sender(ctx)
	if err != nil {
		return err
	}

	for idx := range rows {
		if err := writeRow(ctx, sender, w.cfg.Table, &rows[idx]); err != nil {
			sender.Close(ctx)
			return err
		}
	}

	if err := sender.Flush(ctx); err != nil {
		sender.Close(ctx)
		return err
	}

	// the sender goes back to the pool
	return sender.Close(ctx)
}

func writeRow(ctx context.Context, sender qdb.LineSender, table string, row *sink.Row) error {
	query := sender.Table(table).
		Symbol("event", row.Event).
		Symbol("signal", row.Signal).
		Symbol("status", row.Status.String())

	if row.CANID != 0 {
		query = query.Symbol("canid", strconv.FormatUint(uint64(row.CANID), 10))
	}

	value := row.Value
	switch value.Kind {
	case dbc.KindBool:
		query = query.BoolColumn("value_bool", value.Bool)
	case dbc.KindInt:
		query = query.Int64Column("value_int", value.Int)
	case dbc.KindUint:
		if value.Uint > math.MaxInt64 {
			query = query.Long256Column("value_long", new(big.Int).SetUint64(value.Uint))
		} else {
			query = query.Int64Column("value_int", int64(value.Uint))
		}
	default:
		query = query.Float64Column("value", value.Float)
	}

	return query.At(ctx, row.Stamp)
}

func (w *Writer) Close(ctx context.Context) error {
	return w.senderPool.Close(ctx)
}
