package sockcan

type Config struct {
	// UID prefixes the verbs of the backend.
	UID string
	// Device is the CAN interface the BCM socket is connected to.
	Device string
	// SockEvt is the event receiving the raw frames and read errors.
	SockEvt string
}

func NewDefaultConfig() *Config {
	return &Config{
		UID:     "sockcan",
		Device:  "vcan0",
		SockEvt: "sockbmc",
	}
}
