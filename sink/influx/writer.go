// Package influx writes signal rows to InfluxDB 3.
package influx

import (
	"context"
	"fmt"

	"github.com/InfluxCommunity/influxdb3-go/v2/influxdb3"
	"github.com/squadracorsepolito/acmesig/dbc"
	"github.com/squadracorsepolito/acmesig/sink"
)

var _ sink.Writer = (*Writer)(nil)

type Config struct {
	Host        string
	Token       string
	Database    string
	Measurement string
}

func NewDefaultConfig() *Config {
	return &Config{
		Host:        "http://localhost:8181",
		Database:    "acmesig",
		Measurement: "signals",
	}
}

type Writer struct {
	cfg    *Config
	client *influxdb3.Client
}

func NewWriter(cfg *Config) (*Writer, error) {
	client, err := influxdb3.New(influxdb3.ClientConfig{
		Host:     cfg.Host,
		Token:    cfg.Token,
		Database: cfg.Database,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create InfluxDB client: %w", err)
	}

	return &Writer{
		cfg:    cfg,
		client: client,
	}, nil
}

func (w *Writer) Write(ctx context.Context, rows []sink.Row) error {
	points := make([]*influxdb3.Point, 0, len(rows))
	for idx := range rows {
		points = append(points, newPoint(w.cfg.Measurement, &rows[idx]))
	}

	if err := w.client.WritePoints(ctx, points); err != nil {
		return fmt.Errorf("failed to write points: %w", err)
	}

	return nil
}

func newPoint(measurement string, row *sink.Row) *influxdb3.Point {
	tags, fields := pointData(row)
	return influxdb3.NewPoint(measurement, tags, fields, row.Stamp)
}

func pointData(row *sink.Row) (map[string]string, map[string]any) {
	tags := map[string]string{
		"event":  row.Event,
		"signal": row.Signal,
		"status": row.Status.String(),
	}
	if row.CANID != 0 {
		tags["canid"] = fmt.Sprintf("0x%X", row.CANID)
	}

	fields := map[string]any{}
	switch row.Value.Kind {
	case dbc.KindBool:
		fields["value_bool"] = row.Value.Bool
	case dbc.KindInt:
		fields["value_int"] = row.Value.Int
	case dbc.KindUint:
		fields["value_uint"] = row.Value.Uint
	}
	fields["value"] = row.Value.AsFloat()

	return tags, fields
}

func (w *Writer) Close(_ context.Context) error {
	return w.client.Close()
}
