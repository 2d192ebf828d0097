package ws

import "time"

type Config struct {
	// Addr is the listen address of the http server.
	Addr string
	// Path is the websocket endpoint.
	Path string
	// ClientBuffer is the number of pending event deliveries kept per client.
	ClientBuffer int
	// WriteTimeout bounds a single websocket write.
	WriteTimeout time.Duration
}

func NewDefaultConfig() *Config {
	return &Config{
		Addr:         ":1234",
		Path:         "/api",
		ClientBuffer: 256,
		WriteTimeout: 5 * time.Second,
	}
}
