package kafka

import (
	"slices"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/propagation"
)

var _ propagation.TextMapCarrier = (*headerCarrier)(nil)

// headerCarrier carries the trace context in the kafka message headers.
type headerCarrier struct {
	headers []kafka.Header
}

func newHeaderCarrier(headers ...kafka.Header) *headerCarrier {
	return &headerCarrier{
		headers: slices.Clone(headers),
	}
}

func (hc *headerCarrier) Get(key string) string {
	for _, header := range hc.headers {
		if key == header.Key {
			return string(header.Value)
		}
	}
	return ""
}

func (hc *headerCarrier) Set(key, value string) {
	hc.headers = slices.DeleteFunc(hc.headers, func(header kafka.Header) bool {
		return header.Key == key
	})

	hc.headers = append(hc.headers, kafka.Header{
		Key:   key,
		Value: []byte(value),
	})
}

func (hc *headerCarrier) Keys() []string {
	keys := make([]string, 0, len(hc.headers))
	for _, header := range hc.headers {
		keys = append(keys, header.Key)
	}
	return keys
}
