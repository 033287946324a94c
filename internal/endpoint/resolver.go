// Package endpoint discovers the preview URL of a playground's dev server.
//
// The sandbox runtime hosts many dev servers at once and announces every bound
// port on one shared server-ready stream. A playground only knows its own port
// from the text its dev server prints. The resolver records every announcement
// into a process-wide Registry and completes once the port parsed from its own
// output has a recorded URL, whichever of the two arrives first.
package endpoint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrResolveTimeout is returned when no URL is found within the configured timeout.
var ErrResolveTimeout = errors.New("endpoint resolution timed out")

// ErrOutputClosed is returned when the process stops writing before it
// announced a port.
var ErrOutputClosed = errors.New("process output closed before a port was announced")

// Source delivers server-ready announcements.
type Source interface {
	OnServerReady(fn func(port int, url string)) (func(), error)
}

// Resolver matches a process's announced port against the registry.
type Resolver struct {
	registry Registry
	timeout  time.Duration
	onLine   func(string)
	log      *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithTimeout bounds Await. Zero waits indefinitely.
func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) { r.timeout = d }
}

// WithLineHandler passes every output line consumed while resolving to fn.
func WithLineHandler(fn func(string)) Option {
	return func(r *Resolver) { r.onLine = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) { r.log = l }
}

func NewResolver(registry Registry, opts ...Option) *Resolver {
	r := &Resolver{registry: registry, log: slog.Default()}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Watch is an active subscription to server-ready announcements.
type Watch struct {
	r      *Resolver
	notify chan struct{}
	stop   func()
}

// Watch subscribes to src and starts recording announcements. Call it before
// spawning the process so no announcement is missed.
func (r *Resolver) Watch(src Source) (*Watch, error) {
	if src == nil {
		return nil, errors.New("watch server-ready: no source")
	}
	w := &Watch{r: r, notify: make(chan struct{}, 1)}
	stop, err := src.OnServerReady(func(port int, url string) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.registry.Record(ctx, port, url); err != nil {
			r.log.Warn("Failed to record server-ready", "port", port, "url", url, "err", err)
			return
		}
		select {
		case w.notify <- struct{}{}:
		default:
		}
	})
	if err != nil {
		return nil, fmt.Errorf("watch server-ready: %w", err)
	}
	w.stop = stop
	return w, nil
}

// Close removes the subscription. Recorded entries stay in the registry.
func (w *Watch) Close() {
	if w.stop != nil {
		w.stop()
		w.stop = nil
	}
}

// Await reads output until the announced port resolves to a URL. A later
// announcement replaces an earlier one.
func (w *Watch) Await(ctx context.Context, output <-chan string) (string, error) {
	var timeout <-chan time.Time
	if w.r.timeout > 0 {
		t := time.NewTimer(w.r.timeout)
		defer t.Stop()
		timeout = t.C
	}

	port := 0
	lookup := func() (string, bool) {
		if port == 0 {
			return "", false
		}
		url, ok, err := w.r.registry.Lookup(ctx, port)
		if err != nil {
			w.r.log.Warn("Port lookup failed", "port", port, "err", err)
			return "", false
		}
		return url, ok
	}

	for {
		select {
		case line, ok := <-output:
			if !ok {
				if port == 0 {
					return "", ErrOutputClosed
				}
				output = nil
				continue
			}
			if w.r.onLine != nil {
				w.r.onLine(line)
			}
			if p, ok := ParsePort(line); ok {
				if p != port {
					w.r.log.Debug("Dev server announced port", "port", p)
				}
				port = p
			}
			if url, ok := lookup(); ok {
				return url, nil
			}
		case <-w.notify:
			if url, ok := lookup(); ok {
				return url, nil
			}
		case <-timeout:
			return "", fmt.Errorf("%w after %s (port %d)", ErrResolveTimeout, w.r.timeout, port)
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// Resolve watches src, reads output and returns the URL of the announced port.
func (r *Resolver) Resolve(ctx context.Context, src Source, output <-chan string) (string, error) {
	w, err := r.Watch(src)
	if err != nil {
		return "", err
	}
	defer w.Close()
	return w.Await(ctx, output)
}
