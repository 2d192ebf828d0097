// Package config holds the configuration of the acmesig command, loaded
// from a TOML file over the defaults of every component.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/squadracorsepolito/acmesig/binding"
	"github.com/squadracorsepolito/acmesig/cannelloni"
	"github.com/squadracorsepolito/acmesig/host/ws"
	"github.com/squadracorsepolito/acmesig/sink"
	"github.com/squadracorsepolito/acmesig/sink/influx"
	"github.com/squadracorsepolito/acmesig/sink/kafka"
	"github.com/squadracorsepolito/acmesig/sink/questdb"
	"github.com/squadracorsepolito/acmesig/sockcan"
)

// DefaultConfigFile is looked up in the working directory when no path is given.
const DefaultConfigFile = "acmesig.toml"

const (
	TransportSockcan    = "sockcan"
	TransportCannelloni = "cannelloni"
)

const (
	QueueChannel = "channel"
	QueueRing    = "ring"
)

var ErrInvalidConfig = errors.New("invalid config")

// Duration is a time.Duration written as a string ("250ms", "1m").
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

type MessageConfig struct {
	Info     string  `toml:"info"`
	Rate     *uint64 `toml:"rate"`
	Watchdog *uint64 `toml:"watchdog"`
}

type Config struct {
	UID     string `toml:"uid"`
	SockAPI string `toml:"sock_api"`
	SockEvt string `toml:"sock_evt"`

	// Transport selects the frame source: "sockcan" or "cannelloni".
	Transport string `toml:"transport"`

	Log struct {
		Debug bool `toml:"debug"`
	} `toml:"log"`

	Pool struct {
		// Profile names a bundled message table, ignored when DBCFile is set.
		Profile string   `toml:"profile"`
		DBCFile string   `toml:"dbc_file"`
		CANIDs  []uint32 `toml:"canids"`
	} `toml:"pool"`

	Binding struct {
		UpstreamTimeout Duration `toml:"upstream_timeout"`
		// Queue selects the frame queue: "channel" blocks the source when full,
		// "ring" overwrites the oldest frame.
		Queue     string `toml:"queue"`
		QueueSize uint64 `toml:"queue_size"`
	} `toml:"binding"`

	// Messages holds the verb overrides keyed by message name.
	Messages map[string]MessageConfig `toml:"messages"`

	Sockcan struct {
		Device string `toml:"device"`
	} `toml:"sockcan"`

	Cannelloni struct {
		IPAddr       string   `toml:"ip_addr"`
		Port         uint16   `toml:"port"`
		WatchdogTick Duration `toml:"watchdog_tick"`
	} `toml:"cannelloni"`

	WebSocket struct {
		Enabled      bool     `toml:"enabled"`
		Addr         string   `toml:"addr"`
		Path         string   `toml:"path"`
		ClientBuffer int      `toml:"client_buffer"`
		WriteTimeout Duration `toml:"write_timeout"`
	} `toml:"websocket"`

	Recorder struct {
		// Events are the verbs the recorders subscribe to with flag "all".
		Events        []string `toml:"events"`
		BatchSize     int      `toml:"batch_size"`
		FlushInterval Duration `toml:"flush_interval"`
		ClientBuffer  int      `toml:"client_buffer"`
	} `toml:"recorder"`

	QuestDB struct {
		Enabled       bool     `toml:"enabled"`
		Address       string   `toml:"address"`
		Table         string   `toml:"table"`
		AutoFlushRows int      `toml:"auto_flush_rows"`
		RetryTimeout  Duration `toml:"retry_timeout"`
	} `toml:"questdb"`

	Influx struct {
		Enabled     bool   `toml:"enabled"`
		Host        string `toml:"host"`
		Token       string `toml:"token"`
		Database    string `toml:"database"`
		Measurement string `toml:"measurement"`
	} `toml:"influx"`

	Kafka struct {
		Enabled      bool     `toml:"enabled"`
		Brokers      []string `toml:"brokers"`
		Topic        string   `toml:"topic"`
		BatchSize    int      `toml:"batch_size"`
		BatchTimeout Duration `toml:"batch_timeout"`
		WriteTimeout Duration `toml:"write_timeout"`
		Compression  string   `toml:"compression"`
	} `toml:"kafka"`

	Telemetry struct {
		Enabled     bool    `toml:"enabled"`
		ServiceName string  `toml:"service_name"`
		SampleRatio float64 `toml:"sample_ratio"`
	} `toml:"telemetry"`
}

// NewDefaultConfig returns the configuration built from the component defaults.
func NewDefaultConfig() *Config {
	bindingCfg := binding.NewDefaultConfig()
	sockcanCfg := sockcan.NewDefaultConfig()
	cannelloniCfg := cannelloni.NewDefaultConfig()
	wsCfg := ws.NewDefaultConfig()
	recorderCfg := sink.NewDefaultConfig()
	questdbCfg := questdb.NewDefaultConfig()
	influxCfg := influx.NewDefaultConfig()
	kafkaCfg := kafka.NewDefaultConfig()

	cfg := &Config{
		UID:       bindingCfg.UID,
		SockAPI:   bindingCfg.SockAPI,
		SockEvt:   bindingCfg.SockEvt,
		Transport: TransportSockcan,
		Messages:  map[string]MessageConfig{},
	}

	cfg.Pool.Profile = "model3"

	cfg.Binding.UpstreamTimeout = Duration{bindingCfg.UpstreamTimeout}
	cfg.Binding.Queue = QueueChannel
	cfg.Binding.QueueSize = bindingCfg.QueueSize

	cfg.Sockcan.Device = sockcanCfg.Device

	cfg.Cannelloni.IPAddr = cannelloniCfg.IPAddr
	cfg.Cannelloni.Port = cannelloniCfg.Port
	cfg.Cannelloni.WatchdogTick = Duration{cannelloniCfg.WatchdogTick}

	cfg.WebSocket.Enabled = true
	cfg.WebSocket.Addr = wsCfg.Addr
	cfg.WebSocket.Path = wsCfg.Path
	cfg.WebSocket.ClientBuffer = wsCfg.ClientBuffer
	cfg.WebSocket.WriteTimeout = Duration{wsCfg.WriteTimeout}

	cfg.Recorder.BatchSize = recorderCfg.BatchSize
	cfg.Recorder.FlushInterval = Duration{recorderCfg.FlushInterval}
	cfg.Recorder.ClientBuffer = 4096

	cfg.QuestDB.Address = questdbCfg.Address
	cfg.QuestDB.Table = questdbCfg.Table
	cfg.QuestDB.AutoFlushRows = questdbCfg.AutoFlushRows
	cfg.QuestDB.RetryTimeout = Duration{questdbCfg.RetryTimeout}

	cfg.Influx.Host = influxCfg.Host
	cfg.Influx.Database = influxCfg.Database
	cfg.Influx.Measurement = influxCfg.Measurement

	cfg.Kafka.Brokers = kafkaCfg.Brokers
	cfg.Kafka.Topic = kafkaCfg.Topic
	cfg.Kafka.BatchSize = kafkaCfg.BatchSize
	cfg.Kafka.BatchTimeout = Duration{kafkaCfg.BatchTimeout}
	cfg.Kafka.WriteTimeout = Duration{kafkaCfg.WriteTimeout}
	cfg.Kafka.Compression = kafkaCfg.Compression

	cfg.Telemetry.ServiceName = "acmesig"
	cfg.Telemetry.SampleRatio = 0.05

	return cfg
}

// LoadConfig reads the configuration in the following order:
//  1. the file at the given path, if any
//  2. the default file of the working directory, if it exists
//  3. the defaults
func LoadConfig(path string) (*Config, error) {
	cfg := NewDefaultConfig()

	filePath := path
	if filePath == "" {
		if _, err := os.Stat(DefaultConfigFile); err != nil {
			return cfg, nil
		}
		filePath = DefaultConfigFile
	}

	md, err := toml.DecodeFile(filePath, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", filePath, err)
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return nil, fmt.Errorf("%w: unknown keys %s", ErrInvalidConfig, strings.Join(keys, ", "))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Transport {
	case TransportSockcan, TransportCannelloni:
	default:
		return fmt.Errorf("%w: unknown transport %q", ErrInvalidConfig, c.Transport)
	}

	switch c.Binding.Queue {
	case QueueChannel, QueueRing:
	default:
		return fmt.Errorf("%w: unknown queue %q", ErrInvalidConfig, c.Binding.Queue)
	}

	if c.Binding.QueueSize == 0 {
		return fmt.Errorf("%w: binding.queue_size must be positive", ErrInvalidConfig)
	}

	if c.Pool.Profile == "" && c.Pool.DBCFile == "" {
		return fmt.Errorf("%w: either pool.profile or pool.dbc_file is required", ErrInvalidConfig)
	}

	if c.Recorder.BatchSize <= 0 {
		return fmt.Errorf("%w: recorder.batch_size must be positive", ErrInvalidConfig)
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("%w: kafka.brokers is empty", ErrInvalidConfig)
	}

	if (c.QuestDB.Enabled || c.Influx.Enabled || c.Kafka.Enabled) && len(c.Recorder.Events) == 0 {
		return fmt.Errorf("%w: recorder.events is empty", ErrInvalidConfig)
	}

	return nil
}

func (c *Config) BindingConfig() *binding.Config {
	cfg := binding.NewDefaultConfig()

	cfg.UID = c.UID
	cfg.SockAPI = c.SockAPI
	cfg.SockEvt = c.SockEvt
	cfg.UpstreamTimeout = c.Binding.UpstreamTimeout.Duration
	cfg.QueueSize = c.Binding.QueueSize

	for name, msgCfg := range c.Messages {
		cfg.Messages[name] = binding.MessageConfig{
			Info:     msgCfg.Info,
			Rate:     msgCfg.Rate,
			Watchdog: msgCfg.Watchdog,
		}
	}

	return cfg
}

func (c *Config) SockcanConfig() *sockcan.Config {
	return &sockcan.Config{
		UID:     c.SockAPI,
		Device:  c.Sockcan.Device,
		SockEvt: c.SockEvt,
	}
}

func (c *Config) CannelloniConfig() *cannelloni.Config {
	return &cannelloni.Config{
		UID:          c.SockAPI,
		IPAddr:       c.Cannelloni.IPAddr,
		Port:         c.Cannelloni.Port,
		WatchdogTick: c.Cannelloni.WatchdogTick.Duration,
	}
}

func (c *Config) WebSocketConfig() *ws.Config {
	return &ws.Config{
		Addr:         c.WebSocket.Addr,
		Path:         c.WebSocket.Path,
		ClientBuffer: c.WebSocket.ClientBuffer,
		WriteTimeout: c.WebSocket.WriteTimeout.Duration,
	}
}

func (c *Config) RecorderConfig() *sink.Config {
	return &sink.Config{
		BatchSize:     c.Recorder.BatchSize,
		FlushInterval: c.Recorder.FlushInterval.Duration,
	}
}

func (c *Config) QuestDBConfig() *questdb.Config {
	return &questdb.Config{
		Address:       c.QuestDB.Address,
		Table:         c.QuestDB.Table,
		AutoFlushRows: c.QuestDB.AutoFlushRows,
		RetryTimeout:  c.QuestDB.RetryTimeout.Duration,
	}
}

func (c *Config) InfluxConfig() *influx.Config {
	return &influx.Config{
		Host:        c.Influx.Host,
		Token:       c.Influx.Token,
		Database:    c.Influx.Database,
		Measurement: c.Influx.Measurement,
	}
}

func (c *Config) KafkaConfig() *kafka.Config {
	return &kafka.Config{
		Brokers:      c.Kafka.Brokers,
		Topic:        c.Kafka.Topic,
		BatchSize:    c.Kafka.BatchSize,
		BatchTimeout: c.Kafka.BatchTimeout.Duration,
		WriteTimeout: c.Kafka.WriteTimeout.Duration,
		Compression:  c.Kafka.Compression,
	}
}
