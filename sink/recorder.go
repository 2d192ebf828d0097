package sink

import (
	"context"
	"time"

	"github.com/squadracorsepolito/acmesig/host/memory"
	"github.com/squadracorsepolito/acmesig/internal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Writer stores batches of rows.
type Writer interface {
	Write(ctx context.Context, rows []Row) error
	Close(ctx context.Context) error
}

type Config struct {
	// BatchSize is the number of rows that triggers a flush.
	BatchSize int
	// FlushInterval is the period of the flush of a partial batch.
	FlushInterval time.Duration
}

func NewDefaultConfig() *Config {
	return &Config{
		BatchSize:     512,
		FlushInterval: time.Second,
	}
}

// Recorder batches the deliveries of a client session and hands them to a [Writer].
type Recorder struct {
	tel *internal.Telemetry
	cfg *Config

	client *memory.Client
	writer Writer

	batch []Row

	// Telemetry metrics
	writtenRows metric.Int64Counter
	failedRows  metric.Int64Counter
}

func NewRecorder(name string, cfg *Config, client *memory.Client, writer Writer) *Recorder {
	r := &Recorder{
		tel: internal.NewTelemetry("sink", name),
		cfg: cfg,

		client: client,
		writer: writer,

		batch: make([]Row, 0, cfg.BatchSize),
	}

	r.writtenRows = r.tel.NewCounter("written_rows")
	r.failedRows = r.tel.NewCounter("failed_rows")

	return r
}

// Run records until the context is done or the client is disconnected.
// The pending rows are flushed and the writer is closed on return.
func (r *Recorder) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.FlushInterval)
	defer ticker.Stop()

	defer r.close()

	deliveries := r.client.Deliveries()

	for {
		select {
		case <-ctx.Done():
			r.drain(deliveries)
			return

		case delivery, ok := <-deliveries:
			if !ok {
				return
			}

			r.batch = append(r.batch, RowsOf(delivery)...)
			if len(r.batch) >= r.cfg.BatchSize {
				r.flush(ctx)
			}

		case <-ticker.C:
			r.flush(ctx)
		}
	}
}

// drain collects the deliveries already queued.
func (r *Recorder) drain(deliveries <-chan memory.Delivery) {
	for {
		select {
		case delivery, ok := <-deliveries:
			if !ok {
				return
			}
			r.batch = append(r.batch, RowsOf(delivery)...)
		default:
			return
		}
	}
}

func (r *Recorder) flush(ctx context.Context) {
	if len(r.batch) == 0 {
		return
	}

	ctx, span := r.tel.NewTrace(ctx, "flush rows")
	defer span.End()

	span.SetAttributes(attribute.Int("rows", len(r.batch)))

	if err := r.writer.Write(ctx, r.batch); err != nil {
		r.tel.LogError("failed to write rows", err, "rows", len(r.batch))
		r.failedRows.Add(ctx, int64(len(r.batch)))
	} else {
		r.writtenRows.Add(ctx, int64(len(r.batch)))
	}

	r.batch = r.batch[:0]
}

func (r *Recorder) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	r.flush(ctx)

	if err := r.writer.Close(ctx); err != nil {
		r.tel.LogError("failed to close writer", err)
	}
}
