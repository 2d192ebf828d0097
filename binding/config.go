package binding

import "time"

// MessageConfig overrides the verb of a single message.
type MessageConfig struct {
	Info     string
	Rate     *uint64
	Watchdog *uint64
}

type Config struct {
	// UID is the name of the binding, used for logs and the frame handler.
	UID string
	// SockAPI is the name of the frame source api.
	SockAPI string
	// SockEvt is the name of the raw frame event of the frame source.
	SockEvt string

	// Messages holds per message overrides keyed by message name.
	Messages map[string]MessageConfig

	// UpstreamTimeout bounds upstream calls issued from the publish path.
	UpstreamTimeout time.Duration
	// QueueSize is the size of the frame queue feeding the dispatcher.
	QueueSize uint64
}

func NewDefaultConfig() *Config {
	return &Config{
		UID:             "dbcapi",
		SockAPI:         "sockcan",
		SockEvt:         "sockbmc",
		Messages:        map[string]MessageConfig{},
		UpstreamTimeout: 2 * time.Second,
		QueueSize:       1024,
	}
}
