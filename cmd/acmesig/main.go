package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/squadracorsepolito/acmesig"
	"github.com/squadracorsepolito/acmesig/binding"
	"github.com/squadracorsepolito/acmesig/cannelloni"
	"github.com/squadracorsepolito/acmesig/config"
	"github.com/squadracorsepolito/acmesig/connector"
	"github.com/squadracorsepolito/acmesig/dbc"
	"github.com/squadracorsepolito/acmesig/host/memory"
	"github.com/squadracorsepolito/acmesig/host/ws"
	"github.com/squadracorsepolito/acmesig/internal"
	"github.com/squadracorsepolito/acmesig/profiles/model3"
	"github.com/squadracorsepolito/acmesig/sink"
	"github.com/squadracorsepolito/acmesig/sink/influx"
	"github.com/squadracorsepolito/acmesig/sink/kafka"
	"github.com/squadracorsepolito/acmesig/sink/questdb"
	"github.com/squadracorsepolito/acmesig/sockcan"
)

const recorderSubscribeArgs = `{"action":"subscribe","flag":"all"}`

func main() {
	configPath := flag.String("config", "", "path of the TOML configuration file")
	debug := flag.Bool("debug", false, "enable debug logs")
	flag.Parse()

	if err := run(*configPath, *debug); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string, debug bool) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}

	internal.SetDebug(debug || cfg.Log.Debug)
	l := internal.NewLogger("cmd", cfg.UID)

	ctx, cancelCtx := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer cancelCtx()

	if cfg.Telemetry.Enabled {
		tel, err := initTelemetry(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.SampleRatio)
		if err != nil {
			return fmt.Errorf("failed to init telemetry: %w", err)
		}
		defer func() {
			if err := tel.close(); err != nil {
				l.Warn("failed to close telemetry", "reason", err)
			}
		}()
	}

	pool, err := loadPool(cfg)
	if err != nil {
		return err
	}

	host := memory.NewHost()
	defer host.Close()

	queue := newQueue(cfg)
	pipeline := acmesig.NewPipeline()

	var backend binding.Backend
	switch cfg.Transport {
	case config.TransportCannelloni:
		cb := cannelloni.NewBackend(cfg.CannelloniConfig(), queue)
		pipeline.AddStage(cb)
		backend = cb

	default:
		sb := sockcan.NewBackend(cfg.SockcanConfig(), queue)
		if err := sb.RegisterVerbs(host); err != nil {
			return err
		}
		defer sb.Close()
		backend = sb
	}

	b := binding.New(cfg.BindingConfig(), pool, host, backend)
	b.SetInput(queue)
	pipeline.AddStage(b)

	if cfg.WebSocket.Enabled {
		pipeline.AddStage(newServerStage(ws.NewServer(cfg.WebSocketConfig(), host), l, cancelCtx))
	}

	writers, err := newWriters(cfg)
	if err != nil {
		return err
	}
	for name, writer := range writers {
		stage, err := newRecorderStage(cfg, host, name, writer)
		if err != nil {
			return err
		}
		pipeline.AddStage(stage)
	}

	if err := pipeline.Init(ctx); err != nil {
		return err
	}

	l.Info("running", "transport", cfg.Transport, "messages", len(pool.Messages()), "sinks", len(writers))

	pipeline.Run(ctx)
	defer pipeline.Stop()

	<-ctx.Done()

	return nil
}

func loadPool(cfg *config.Config) (*dbc.Pool, error) {
	if cfg.Pool.DBCFile != "" {
		defs, err := dbc.LoadDBCFile(cfg.Pool.DBCFile, cfg.Pool.CANIDs...)
		if err != nil {
			return nil, err
		}
		return dbc.NewPool(cfg.UID, defs)
	}

	var defs []dbc.MessageDef
	switch cfg.Pool.Profile {
	case "model3":
		defs = model3.Messages()
	default:
		return nil, fmt.Errorf("%w: unknown profile %q", config.ErrInvalidConfig, cfg.Pool.Profile)
	}

	if len(cfg.Pool.CANIDs) > 0 {
		defs = slices.DeleteFunc(defs, func(def dbc.MessageDef) bool {
			return !slices.Contains(cfg.Pool.CANIDs, def.ID)
		})
	}

	return dbc.NewPool(cfg.UID, defs)
}

func newQueue(cfg *config.Config) connector.Connector[dbc.Frame] {
	if cfg.Binding.Queue == config.QueueRing {
		return connector.NewRing[dbc.Frame](int(cfg.Binding.QueueSize))
	}
	return connector.NewChannel[dbc.Frame](cfg.Binding.QueueSize)
}

func newWriters(cfg *config.Config) (map[string]sink.Writer, error) {
	writers := make(map[string]sink.Writer)

	if cfg.QuestDB.Enabled {
		writer, err := questdb.NewWriter(cfg.QuestDBConfig())
		if err != nil {
			return nil, fmt.Errorf("failed to create questdb writer: %w", err)
		}
		writers["questdb"] = writer
	}

	if cfg.Influx.Enabled {
		writer, err := influx.NewWriter(cfg.InfluxConfig())
		if err != nil {
			return nil, err
		}
		writers["influx"] = writer
	}

	if cfg.Kafka.Enabled {
		writer, err := kafka.NewWriter(cfg.KafkaConfig())
		if err != nil {
			return nil, fmt.Errorf("failed to create kafka writer: %w", err)
		}
		writers["kafka"] = writer
	}

	return writers, nil
}

// newServerStage runs the websocket gateway and cancels the process when it fails.
func newServerStage(server *ws.Server, l *internal.Logger, cancel context.CancelFunc) acmesig.Stage {
	return &acmesig.StageFuncs{
		RunFunc: func(ctx context.Context) {
			if err := server.Run(ctx); err != nil {
				l.Error("websocket server failed", err)
				cancel()
			}
		},
		StopFunc: server.Stop,
	}
}

// newRecorderStage connects a recorder session to the host. The session
// subscribes to the recorded events once the binding has registered them.
func newRecorderStage(cfg *config.Config, host *memory.Host, name string, writer sink.Writer) (acmesig.Stage, error) {
	client, err := host.Connect("sink-"+name, cfg.Recorder.ClientBuffer)
	if err != nil {
		return nil, err
	}

	recorder := sink.NewRecorder(name, cfg.RecorderConfig(), client, writer)

	return &acmesig.StageFuncs{
		InitFunc: func(ctx context.Context) error {
			for _, event := range cfg.Recorder.Events {
				if _, err := host.Call(ctx, client, event, []byte(recorderSubscribeArgs)); err != nil {
					return fmt.Errorf("sink %s: failed to subscribe %s: %w", name, event, err)
				}
			}
			return nil
		},
		RunFunc: recorder.Run,
		StopFunc: func() {
			_ = host.Disconnect(client.ID())
		},
	}, nil
}
