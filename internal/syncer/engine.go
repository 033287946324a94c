// Package syncer writes edited documents back into the mounted sandbox
// filesystem. Notifications are debounced per key so a burst of keystrokes
// becomes one write, and writes for different paths proceed independently.
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"playground/internal/fstree"
)

// Mounter writes a tree into the sandbox.
type Mounter interface {
	Mount(ctx context.Context, tree fstree.Tree, mountPoint string) error
}

// TextSource returns a document's current text.
type TextSource interface {
	Text(path string) (string, bool)
}

// Config holds the debounce delays.
type Config struct {
	ActiveDelay  time.Duration `envconfig:"ACTIVE_DELAY"`
	ContentDelay time.Duration `envconfig:"CONTENT_DELAY"`
	// Retries is the number of extra attempts after a failed mount.
	Retries      int           `envconfig:"RETRIES"`
	WriteTimeout time.Duration `envconfig:"WRITE_TIMEOUT"`
}

func DefaultConfig() Config {
	return Config{
		ActiveDelay:  30 * time.Millisecond,
		ContentDelay: 300 * time.Millisecond,
		Retries:      1,
		WriteTimeout: 10 * time.Second,
	}
}

const activeKey = "active"

// Engine debounces document notifications into single-file mounts below root.
type Engine struct {
	mounter Mounter
	docs    TextSource
	root    string
	cfg     Config
	deb     *Debouncer
	onWrite func(path string, err error)
	log     *slog.Logger

	mu      sync.Mutex
	pending map[string]string
}

// Option configures an Engine.
type Option func(*Engine)

// WithWriteHook is called after every debounced write with its final result.
func WithWriteHook(fn func(path string, err error)) Option {
	return func(e *Engine) { e.onWrite = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// NewEngine returns an engine writing docs into m below root, the
// runtime-relative project directory.
func NewEngine(m Mounter, docs TextSource, root string, cfg Config, opts ...Option) *Engine {
	e := &Engine{
		mounter: m,
		docs:    docs,
		root:    root,
		cfg:     cfg,
		deb:     NewDebouncer(),
		log:     slog.Default(),
		pending: map[string]string{},
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// OnActiveDocumentChange writes the newly active document's current text
// after the short delay.
func (e *Engine) OnActiveDocumentChange(path string) {
	e.deb.Schedule(activeKey, e.cfg.ActiveDelay, func() {
		text, ok := e.docs.Text(path)
		if !ok {
			e.log.Warn("Active document vanished before sync", "path", path)
			return
		}
		e.write(path, text)
	})
}

// OnContentChange writes text to path after the long delay. Only the last
// text scheduled for a path within the delay is written.
func (e *Engine) OnContentChange(path, text string) {
	e.mu.Lock()
	e.pending[path] = text
	e.mu.Unlock()

	e.deb.Schedule("content:"+path, e.cfg.ContentDelay, func() {
		e.mu.Lock()
		text, ok := e.pending[path]
		delete(e.pending, path)
		e.mu.Unlock()
		if !ok {
			return
		}
		e.write(path, text)
	})
}

// Pending reports how many writes are waiting for their delay.
func (e *Engine) Pending() int { return e.deb.Pending() }

// Stop drops pending writes and waits for in-flight ones.
func (e *Engine) Stop() { e.deb.Stop() }

func (e *Engine) write(path, text string) {
	tree, mountPoint := fstree.Single(e.root, path, text)

	var err error
	for attempt := 0; attempt <= e.cfg.Retries; attempt++ {
		err = e.mountOnce(tree, mountPoint)
		if err == nil {
			break
		}
		e.log.Debug("Sync mount attempt failed", "path", path, "attempt", attempt+1, "err", err)
	}

	if err != nil {
		err = fmt.Errorf("sync %s: %w", path, err)
		e.log.Warn("Sync failed", "path", path, "mount_point", mountPoint, "err", err)
	} else {
		e.log.Debug("Synced document", "path", path, "mount_point", mountPoint, "bytes", len(text))
	}
	if e.onWrite != nil {
		e.onWrite(path, err)
	}
}

func (e *Engine) mountOnce(tree fstree.Tree, mountPoint string) error {
	ctx := context.Background()
	if e.cfg.WriteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.WriteTimeout)
		defer cancel()
	}
	return e.mounter.Mount(ctx, tree, mountPoint)
}
