// Package kafka publishes signal rows as JSON records on a kafka topic.
package kafka

import (
	"context"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/segmentio/kafka-go"
	"github.com/squadracorsepolito/acmesig/dbc"
	"github.com/squadracorsepolito/acmesig/internal"
	"github.com/squadracorsepolito/acmesig/sink"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var _ sink.Writer = (*Writer)(nil)

type Config struct {
	Brokers []string
	Topic   string

	// BatchSize is the number of messages buffered before being sent to a partition.
	BatchSize int
	// BatchTimeout is the period incomplete batches are flushed at.
	BatchTimeout time.Duration
	WriteTimeout time.Duration

	// Compression is one of "none", "gzip", "snappy", "lz4" or "zstd".
	Compression string
}

func NewDefaultConfig() *Config {
	return &Config{
		Brokers: []string{"localhost:9092"},
		Topic:   "acmesig.signals",

		BatchSize:    100,
		BatchTimeout: time.Second,
		WriteTimeout: 10 * time.Second,

		Compression: "snappy",
	}
}

func parseCompression(name string) (kafka.Compression, error) {
	switch name {
	case "", "none":
		return 0, nil
	case "gzip":
		return kafka.Gzip, nil
	case "snappy":
		return kafka.Snappy, nil
	case "lz4":
		return kafka.Lz4, nil
	case "zstd":
		return kafka.Zstd, nil
	default:
		return 0, fmt.Errorf("unknown kafka compression %q", name)
	}
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// record is the JSON value of a message.
type record struct {
	Event  string     `json:"event"`
	CANID  uint32     `json:"canid,omitempty"`
	Signal string     `json:"signal"`
	Status dbc.Status `json:"status"`
	Value  dbc.Value  `json:"value"`
	Stamp  int64      `json:"stamp"`
}

type Writer struct {
	tel *internal.Telemetry
	cfg *Config

	writer messageWriter
}

func NewWriter(cfg *Config) (*Writer, error) {
	compression, err := parseCompression(cfg.Compression)
	if err != nil {
		return nil, err
	}

	return &Writer{
		tel: internal.NewTelemetry("sink", "kafka"),
		cfg: cfg,

		// rows of a signal share the key, the hash balancer keeps them ordered on one partition
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Topic:                  cfg.Topic,
			Balancer:               &kafka.Hash{},
			BatchSize:              cfg.BatchSize,
			BatchTimeout:           cfg.BatchTimeout,
			WriteTimeout:           cfg.WriteTimeout,
			RequiredAcks:           kafka.RequireOne,
			Compression:            compression,
			AllowAutoTopicCreation: true,
		},
	}, nil
}

func (w *Writer) newMessage(ctx context.Context, row *sink.Row) (kafka.Message, error) {
	value, err := json.Marshal(record{
		Event:  row.Event,
		CANID:  row.CANID,
		Signal: row.Signal,
		Status: row.Status,
		Value:  row.Value,
		Stamp:  row.Stamp.UnixMicro(),
	})
	if err != nil {
		return kafka.Message{}, err
	}

	carrier := newHeaderCarrier()
	w.tel.InjectTrace(ctx, carrier)

	return kafka.Message{
		Key:     []byte(row.Signal),
		Value:   value,
		Time:    row.Stamp,
		Headers: carrier.headers,
	}, nil
}

func (w *Writer) Write(ctx context.Context, rows []sink.Row) error {
	msgs := make([]kafka.Message, 0, len(rows))
	for idx := range rows {
		msg, err := w.newMessage(ctx, &rows[idx])
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}

	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("failed to write messages: %w", err)
	}

	return nil
}

func (w *Writer) Close(_ context.Context) error {
	return w.writer.Close()
}
