package cannelloni

import "time"

type Config struct {
	// UID names the backend in logs and metrics.
	UID string

	IPAddr string
	Port   uint16

	// WatchdogTick is the period the receive timeouts are checked at.
	WatchdogTick time.Duration
}

func NewDefaultConfig() *Config {
	return &Config{
		UID: "cannelloni",

		IPAddr: "127.0.0.1",
		Port:   20_000,

		WatchdogTick: 10 * time.Millisecond,
	}
}
