package connector

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	bufferCapacity   = 256
	numProducers     = 4
	numConsumers     = 4
	itemsPerProducer = 50_000
)

func Test_Channel_MultipleProducersConsumers(t *testing.T) {
	connector := NewChannel[int](bufferCapacity)

	testMultipleProducersConsumers(t, connector, numProducers, numConsumers, itemsPerProducer)
}

func testMultipleProducersConsumers(t *testing.T, connector Connector[int], numProducers, numConsumers, itemsPerProducer int) {
	totalItems := numProducers * itemsPerProducer

	var receivedItems sync.Map
	var receivedCount atomic.Uint64

	var producerWg sync.WaitGroup
	var consumerWg sync.WaitGroup

	startTime := time.Now()

	consumerWg.Add(numConsumers)
	for i := range numConsumers {
		go func(consumerID int) {
			defer consumerWg.Done()

			for {
				item, err := connector.Read()
				if err != nil {
					if !errors.Is(err, ErrClosed) {
						t.Errorf("Consumer %d received unexpected error: %v", consumerID, err)
					}
					return
				}

				receivedItems.Store(item, true)
				receivedCount.Add(1)
			}
		}(i)
	}

	producerWg.Add(numProducers)
	for i := range numProducers {
		go func(producerID int) {
			defer producerWg.Done()

			base := producerID * itemsPerProducer
			for j := range itemsPerProducer {
				item := base + j
				if err := connector.Write(item); err != nil {
					t.Errorf("Producer %d failed to write item %d: %v", producerID, item, err)
					return
				}
			}
		}(i)
	}

	producerWg.Wait()
	connector.Close()
	consumerWg.Wait()

	missingItems := 0
	for i := range totalItems {
		if _, ok := receivedItems.Load(i); !ok {
			missingItems++
		}
	}

	assert.Zero(t, missingItems)
	assert.Equal(t, uint64(totalItems), receivedCount.Load())

	duration := time.Since(startTime)
	t.Logf("Processed %d items in %v", totalItems, duration)
}

func Test_Channel_DrainAfterClose(t *testing.T) {
	assert := assert.New(t)

	ch := NewChannel[int](4)
	require.NoError(t, ch.Write(1))
	require.NoError(t, ch.Write(2))

	ch.Close()
	ch.Close()

	assert.ErrorIs(ch.Write(3), ErrClosed)

	item, err := ch.Read()
	assert.NoError(err)
	assert.Equal(1, item)

	item, err = ch.Read()
	assert.NoError(err)
	assert.Equal(2, item)

	_, err = ch.Read()
	assert.ErrorIs(err, ErrClosed)
}

func Test_Channel_CloseUnblocksWriter(t *testing.T) {
	ch := NewChannel[int](1)
	require.NoError(t, ch.Write(1))

	errCh := make(chan error)
	go func() {
		errCh <- ch.Write(2)
	}()

	time.Sleep(10 * time.Millisecond)
	ch.Close()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("writer not released by close")
	}
}

func Test_Ring_OverwritesOldest(t *testing.T) {
	assert := assert.New(t)

	ring := NewRing[int](3)
	for i := range 5 {
		assert.NoError(ring.Write(i))
	}

	assert.Equal(3, ring.Len())
	assert.Equal(int64(2), ring.Overwritten())

	for _, expected := range []int{2, 3, 4} {
		item, err := ring.Read()
		assert.NoError(err)
		assert.Equal(expected, item)
	}

	ring.Close()
	_, err := ring.Read()
	assert.ErrorIs(err, ErrClosed)
	assert.ErrorIs(ring.Write(9), ErrClosed)
}

func Test_Ring_CloseUnblocksReader(t *testing.T) {
	ring := NewRing[int](2)

	errCh := make(chan error)
	go func() {
		_, err := ring.Read()
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	ring.Close()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("reader not released by close")
	}
}

func Test_Ring_SingleProducerConsumer(t *testing.T) {
	ring := NewRing[int](bufferCapacity)
	testMultipleProducersConsumers(t, &lossless{ring}, 1, 1, 10_000)
}

// lossless blocks the writer while the ring is full, so that no item
// is overwritten.
type lossless struct {
	*Ring[int]
}

func (l *lossless) Write(item int) error {
	for l.Len() >= len(l.buffer) {
		time.Sleep(time.Microsecond)
	}
	return l.Ring.Write(item)
}

func Benchmark_Connectors(b *testing.B) {
	b.ReportAllocs()

	connKinds := []string{"ring", "channel"}
	for _, connKind := range connKinds {
		b.Run("WriteRead-"+connKind, func(b *testing.B) {
			connector := getConnectorFormKind[[]byte](connKind, 1024)
			data := make([]byte, 16)

			b.ResetTimer()
			for range b.N {
				if err := connector.Write(data); err != nil {
					b.Fatal(err)
				}
				if _, err := connector.Read(); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func getConnectorFormKind[T any](connKind string, size uint64) Connector[T] {
	var connector Connector[T]
	switch connKind {
	case "channel":
		connector = NewChannel[T](size)
	case "ring":
		connector = NewRing[T](int(size))
	}
	return connector
}
