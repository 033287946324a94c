package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

// EmbeddedServerConfig holds options for running the embedded server.
type EmbeddedServerConfig struct {
	InProcess     bool   `envconfig:"NATS_IN_PROCESS"`
	EnableLogging bool   `envconfig:"NATS_LOGGING"`
	JetStream     bool   `envconfig:"NATS_JETSTREAM"`
	StoreDir      string `envconfig:"NATS_STORE_DIR"` // JetStream file storage, temp dir when empty
	// Port is the client port when not in-process. Zero means the NATS
	// default, -1 a random free port.
	Port         int           `envconfig:"NATS_PORT"`
	ReadyTimeout time.Duration `envconfig:"NATS_READY_TIMEOUT"`
}

// ErrConnectionClosed is sent on the error channel when the client
// connection closes before ctx is done.
var ErrConnectionClosed = errors.New("nats connection closed")

// RunEmbeddedServer starts an embedded NATS server and returns a client
// connection, the server instance and a channel reporting a lost connection.
func RunEmbeddedServer(ctx context.Context, cfg EmbeddedServerConfig) (*nats.Conn, *server.Server, <-chan error, error) {
	ns, err := server.NewServer(&server.Options{
		ServerName: "playground",
		DontListen: cfg.InProcess,
		Port:       cfg.Port,
		JetStream:  cfg.JetStream,
		StoreDir:   cfg.StoreDir,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create nats server: %w", err)
	}
	if cfg.EnableLogging {
		ns.SetLogger(NewNATSServerLogger(slog.Default()), false, false)
	}

	wait := cfg.ReadyTimeout
	if wait <= 0 {
		wait = 5 * time.Second
	}
	go ns.Start()
	if !ns.ReadyForConnections(wait) {
		ns.Shutdown()
		return nil, nil, nil, fmt.Errorf("nats server not ready after %s", wait)
	}

	errCh := make(chan error, 1)
	opts := []nats.Option{
		nats.Name("playground"),
		nats.ClosedHandler(func(*nats.Conn) {
			if ctx.Err() != nil {
				return
			}
			select {
			case errCh <- ErrConnectionClosed:
			default:
			}
		}),
	}
	if cfg.InProcess {
		opts = append(opts, nats.InProcessServer(ns))
	}
	nc, err := nats.Connect(ns.ClientURL(), opts...)
	if err != nil {
		ns.Shutdown()
		return nil, nil, nil, fmt.Errorf("connect to embedded server: %w", err)
	}
	slog.Info("Embedded NATS ready", "in_process", cfg.InProcess, "jetstream", cfg.JetStream, "url", ns.ClientURL())
	return nc, ns, errCh, nil
}
