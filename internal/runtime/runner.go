package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"playground/internal/messages"
	"playground/internal/playground"

	"github.com/nats-io/nats.go/jetstream"
)

// ErrUnknownPlayground is returned for commands addressed to a session that
// does not exist in this process.
var ErrUnknownPlayground = errors.New("unknown playground")

// Sessions looks up a live playground by id. *playground.Manager satisfies it.
type Sessions interface {
	Get(id string) (*playground.Session, bool)
}

// Runner applies command.playground.* messages from the COMMAND stream to
// the sessions they address.
type Runner struct {
	js       jetstream.JetStream
	sessions Sessions
	log      *slog.Logger
}

func NewRunner(js jetstream.JetStream, sessions Sessions) *Runner {
	return &Runner{js: js, sessions: sessions, log: slog.Default().With("component", "runner")}
}

// Start attaches the durable PLAYGROUND consumer and returns; messages are
// handled until ctx is done.
func (r *Runner) Start(ctx context.Context) error {
	return r.setupConsumer(ctx, "PLAYGROUND", messages.PlaygroundCommandSubjectPattern, r.handleCommand)
}

func (r *Runner) setupConsumer(ctx context.Context, name, subject string, handler func(context.Context, jetstream.Msg)) error {
	_, err := r.js.CreateOrUpdateConsumer(ctx, "COMMAND", jetstream.ConsumerConfig{
		Durable:        name,
		AckPolicy:      jetstream.AckExplicitPolicy,
		FilterSubjects: []string{subject},
	})
	if err != nil {
		return fmt.Errorf("create %s consumer: %w", name, err)
	}
	consumer, err := r.js.Consumer(ctx, "COMMAND", name)
	if err != nil {
		return fmt.Errorf("get %s consumer: %w", name, err)
	}
	cc, err := consumer.Consume(func(msg jetstream.Msg) { handler(ctx, msg) })
	if err != nil {
		return fmt.Errorf("consume %s: %w", name, err)
	}
	go func() { <-ctx.Done(); cc.Stop() }()
	return nil
}

// handleCommand acks every message, failed or not. A command that cannot be
// applied now will not succeed on redelivery either.
func (r *Runner) handleCommand(ctx context.Context, msg jetstream.Msg) {
	defer func() { _ = msg.Ack() }()

	cmd, err := messages.DecodeCommand(msg.Subject(), msg.Data())
	if err != nil {
		r.log.Warn("Dropping malformed command", "subject", msg.Subject(), "err", err)
		return
	}
	if err := r.Apply(ctx, cmd); err != nil {
		r.log.Warn("Command failed", "subject", msg.Subject(), "err", err)
		return
	}
	r.log.Debug("Command applied", "subject", msg.Subject())
}

// Apply runs one decoded command against its session.
func (r *Runner) Apply(ctx context.Context, cmd messages.Command) error {
	switch c := cmd.(type) {
	case *messages.SelectFileCommand:
		s, err := r.session(c.PlaygroundID)
		if err != nil {
			return err
		}
		return s.Select(ctx, c.Path)
	case *messages.EditFileCommand:
		s, err := r.session(c.PlaygroundID)
		if err != nil {
			return err
		}
		return s.Edit(ctx, c.Path, c.Text)
	case *messages.PatchFilesCommand:
		s, err := r.session(c.PlaygroundID)
		if err != nil {
			return err
		}
		changed, err := s.ApplyPatch(ctx, c.Patch)
		if err != nil {
			return err
		}
		r.log.Info("Patch applied", "session", c.PlaygroundID, "changed", len(changed))
		return nil
	case *messages.ResetCommand:
		s, err := r.session(c.PlaygroundID)
		if err != nil {
			return err
		}
		return s.Reset(ctx)
	case *messages.ReloadCommand:
		s, err := r.session(c.PlaygroundID)
		if err != nil {
			return err
		}
		_, err = s.Reload(ctx)
		return err
	default:
		return fmt.Errorf("unsupported command %T", cmd)
	}
}

func (r *Runner) session(id string) (*playground.Session, error) {
	s, ok := r.sessions.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlayground, id)
	}
	return s, nil
}
