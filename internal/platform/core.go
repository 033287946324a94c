package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"playground/internal/endpoint"
	"playground/internal/messages"
	"playground/internal/playground"
	"playground/internal/project"
	"playground/internal/runtime"
	"playground/internal/sandbox"
	"playground/internal/sandbox/local"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// OwnersBucket maps a browser session id to the playgrounds launched for it.
const OwnersBucket = "sessions"

// App bundles the process-wide services the HTTP layer and the runner share.
type App struct {
	ctx       context.Context
	cfg       *AppConfig
	js        jetstream.JetStream
	shared    *sandbox.Shared
	manager   *playground.Manager
	catalogue *runtime.Catalogue
	publisher *messages.Publisher
	owners    jetstream.KeyValue
	examples  []project.Example
}

// OwnerState is the value stored per browser session in OwnersBucket.
type OwnerState struct {
	// Examples maps example name to playground id.
	Examples map[string]string `json:"examples"`
}

// Setup creates streams and buckets, boots nothing yet and starts the
// command runner. boot defaults to the local host-process runtime.
func Setup(ctx context.Context, nc *nats.Conn, cfg *AppConfig, boot sandbox.BootFunc) (*App, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("jetstream context: %w", err)
	}

	// Sessions, their ids and their ports only live as long as the process,
	// so nothing left in the store by an earlier run may be replayed.
	if err := freshStream(ctx, js, jetstream.StreamConfig{
		Name:      "COMMAND",
		Subjects:  []string{"command.>"},
		Retention: jetstream.WorkQueuePolicy,
		Storage:   jetstream.MemoryStorage,
	}); err != nil {
		return nil, err
	}
	if err := freshStream(ctx, js, jetstream.StreamConfig{
		Name:     "EVENT",
		Subjects: []string{"event.>"},
		Storage:  jetstream.MemoryStorage,
		MaxAge:   24 * time.Hour,
	}); err != nil {
		return nil, err
	}
	slog.Info("Streams 'COMMAND' and 'EVENT' created.")

	if err := js.DeleteKeyValue(ctx, OwnersBucket); err != nil && !errors.Is(err, jetstream.ErrBucketNotFound) {
		return nil, fmt.Errorf("drop stale %s bucket: %w", OwnersBucket, err)
	}
	owners, err := js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:  OwnersBucket,
		History: 5,
		Storage: jetstream.MemoryStorage,
	})
	if err != nil {
		return nil, fmt.Errorf("create %s bucket: %w", OwnersBucket, err)
	}

	registry, err := endpoint.NewKVRegistry(ctx, js)
	if err != nil {
		return nil, err
	}

	if boot == nil {
		boot = local.Boot(cfg.SandboxCfg.LocalRuntime(), nc)
	}
	shared := sandbox.NewShared(boot)
	publisher := messages.NewPublisher(js)
	manager := playground.NewManager(playground.Deps{
		Shared:   shared,
		Registry: registry,
		Events:   publisher,
		Log:      slog.Default(),
	}, cfg.Playground())

	var examples []project.Example
	if cfg.Flags.Examples {
		if examples, err = project.Examples(); err != nil {
			return nil, err
		}
	}

	runner := runtime.NewRunner(js, manager)
	if err := runner.Start(ctx); err != nil {
		return nil, fmt.Errorf("start runner: %w", err)
	}
	slog.Info("Command runner started")

	return &App{
		ctx:       ctx,
		cfg:       cfg,
		js:        js,
		shared:    shared,
		manager:   manager,
		catalogue: runtime.NewCatalogue(manager),
		publisher: publisher,
		owners:    owners,
		examples:  examples,
	}, nil
}

// freshStream replaces any stream left under cfg.Name with an empty one.
func freshStream(ctx context.Context, js jetstream.JetStream, cfg jetstream.StreamConfig) error {
	if err := js.DeleteStream(ctx, cfg.Name); err != nil && !errors.Is(err, jetstream.ErrStreamNotFound) {
		return fmt.Errorf("drop stale %s stream: %w", cfg.Name, err)
	}
	if _, err := js.CreateStream(ctx, cfg); err != nil {
		return fmt.Errorf("create %s stream: %w", cfg.Name, err)
	}
	return nil
}

// Manager returns the session manager.
func (a *App) Manager() *playground.Manager { return a.manager }

// Run blocks until ctx is done, then stops every session and the sandbox.
func Run(ctx context.Context, app *App) {
	slog.Info("🚀 Playground is up.")
	<-ctx.Done()
	slog.Info("Run: shutdown requested")
	app.manager.Close()
	if err := app.shared.Close(); err != nil {
		slog.Warn("Sandbox shutdown", "err", err)
	}
}

type ownedPlayground struct {
	Title   string
	Session *playground.Session
}

// ownerPlaygrounds returns the playgrounds of a browser session: one per
// example, launching any that do not exist yet in this process, followed by
// those it created itself.
func (a *App) ownerPlaygrounds(ctx context.Context, owner string) ([]ownedPlayground, error) {
	var state OwnerState
	entry, err := a.owners.Get(ctx, owner)
	switch {
	case err == nil:
		if err := json.Unmarshal(entry.Value(), &state); err != nil {
			slog.Warn("Discarding invalid owner state", "owner", owner, "err", err)
		}
	case errors.Is(err, jetstream.ErrKeyNotFound):
	default:
		return nil, fmt.Errorf("load owner %s: %w", owner, err)
	}
	if state.Examples == nil {
		state.Examples = map[string]string{}
	}

	out := make([]ownedPlayground, 0, len(a.examples))
	seen := map[string]bool{}
	dirty := false
	for _, ex := range a.examples {
		s, ok := a.manager.Get(state.Examples[ex.Name])
		if !ok || s.Owner() != owner {
			if s, err = a.manager.Launch(a.ctx, ex.Files, owner); err != nil {
				return nil, fmt.Errorf("launch example %s: %w", ex.Name, err)
			}
			state.Examples[ex.Name] = s.ID()
			dirty = true
		}
		seen[s.ID()] = true
		out = append(out, ownedPlayground{Title: ex.Name, Session: s})
	}
	for _, s := range a.manager.List() {
		if s.Owner() == owner && !seen[s.ID()] {
			out = append(out, ownedPlayground{Session: s})
		}
	}

	if dirty {
		data, err := json.Marshal(state)
		if err != nil {
			return nil, err
		}
		if _, err := a.owners.Put(ctx, owner, data); err != nil {
			return nil, fmt.Errorf("save owner %s: %w", owner, err)
		}
	}
	return out, nil
}
