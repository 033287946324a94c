package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"playground/internal/platform"
)

func main() {
	appCfg, err := platform.LoadAppConfig()
	if err != nil {
		slog.Error("Invalid configuration", "err", err)
		os.Exit(1)
	}
	platform.InitLogger(appCfg.Flags.LogLevel)
	platform.InitMetrics()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// --- Run embedded NATS server ---
	nc, ns, natErrCh, err := platform.RunEmbeddedServer(ctx, *appCfg.NatsCfg)
	if err != nil {
		slog.Error("Failed to start embedded server", "err", err)
		os.Exit(1)
	}
	defer ns.Shutdown()
	defer nc.Close()

	app, err := platform.Setup(ctx, nc, appCfg, nil)
	if err != nil {
		slog.Error("Failed to set up playground", "err", err)
		os.Exit(1)
	}

	var httpErrCh <-chan error // nil when headless
	if !appCfg.Flags.Headless {
		httpErrCh = platform.RunHTTPServer(ctx, app, *appCfg.HTTPSrvCfg)
	}

	go func() {
		select {
		case <-ctx.Done():
		case err := <-natErrCh:
			slog.Error("Embedded server error", "err", err)
			cancel()
		case err, ok := <-httpErrCh:
			if ok {
				slog.Error("HTTP server error", "err", err)
			}
			cancel()
		}
	}()

	platform.Run(ctx, app)
}
