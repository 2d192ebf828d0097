package internal

import (
	"context"
	"sync/atomic"
	"time"
)

// Throughput logs the frame and byte rates of a source once per period.
type Throughput struct {
	tel    *Telemetry
	period time.Duration

	frameCount atomic.Uint64
	byteCount  atomic.Uint64
}

func NewThroughput(tel *Telemetry, period time.Duration) *Throughput {
	return &Throughput{
		tel:    tel,
		period: period,
	}
}

// Run reports until the context is done. Idle periods are not logged.
func (t *Throughput) Run(ctx context.Context) {
	ticker := time.NewTicker(t.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			frames, bytes := t.swap()
			if frames == 0 && bytes == 0 {
				continue
			}

			seconds := t.period.Seconds()
			t.tel.LogDebug("throughput",
				"frames_per_sec", float64(frames)/seconds, "bytes_per_sec", float64(bytes)/seconds)
		}
	}
}

func (t *Throughput) swap() (frames, bytes uint64) {
	return t.frameCount.Swap(0), t.byteCount.Swap(0)
}

func (t *Throughput) AddFrames(n int) {
	t.frameCount.Add(uint64(n))
}

func (t *Throughput) AddBytes(n int) {
	t.byteCount.Add(uint64(n))
}
