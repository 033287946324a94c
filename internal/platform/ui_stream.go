package platform

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"playground/internal/runtime"

	"github.com/nats-io/nats.go/jetstream"
	datastar "github.com/starfederation/datastar/sdk/go"
)

// PlaygroundStream is the SSE handler for /playgrounds/{id}/stream. It
// replays the playground's events from the EVENT stream and then follows
// new ones until the client disconnects.
func PlaygroundStream(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := playgroundFrom(r)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		subjects := app.catalogue.SubjectsFor(s.ID())
		renderers := app.catalogue.ForSubjects(subjects)

		cons, err := app.js.CreateConsumer(ctx, "EVENT", jetstream.ConsumerConfig{
			AckPolicy:         jetstream.AckNonePolicy,
			FilterSubjects:    subjects,
			DeliverPolicy:     jetstream.DeliverAllPolicy, // Crucial for replay
			InactiveThreshold: time.Minute,
		})
		if err != nil {
			slog.Warn("PlaygroundStream: failed to create consumer", "playground", s.ID(), "err", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		sse := datastar.NewSSE(w, r)
		cc, err := cons.Consume(func(msg jetstream.Msg) {
			if err := runtime.Render(ctx, renderers, msg, sse); err != nil {
				slog.Warn("render", "subj", msg.Subject(), "err", err)
			}
		})
		if err != nil {
			slog.Warn("PlaygroundStream: consume failed", "playground", s.ID(), "err", err)
			return
		}
		defer cc.Stop()

		<-ctx.Done() // Wait for disconnect
		if err := app.js.DeleteConsumer(context.Background(), "EVENT", cons.CachedInfo().Name); err != nil {
			slog.Debug("PlaygroundStream: consumer cleanup", "err", err)
		}
	}
}
