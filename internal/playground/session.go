// Package playground drives one playground instance from its initial files to
// a live preview and keeps the sandbox in step with later edits.
package playground

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"playground/internal/endpoint"
	"playground/internal/fstree"
	"playground/internal/messages"
	"playground/internal/project"
	"playground/internal/sandbox"
	"playground/internal/syncer"

	jsonpatch "github.com/evanphx/json-patch/v5"
)

// State is a step of the startup sequence.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateBooting       State = "booting"
	StateInstalling    State = "installing"
	StateMounting      State = "mounting"
	StateSpawning      State = "spawning"
	StateResolving     State = "resolving_endpoint"
	StateReady         State = "ready"
	StateFailed        State = "failed"
)

// ErrNotReady is returned by actions that need a resolved preview.
var ErrNotReady = errors.New("playground is not ready")

// ErrClosed is returned by Start once the session has been closed.
var ErrClosed = errors.New("playground is closed")

// EventSink receives the events a session emits.
type EventSink interface {
	PublishEvent(ctx context.Context, evt messages.Event) error
}

// Config tunes every session of a Manager.
type Config struct {
	Sandbox sandbox.Config
	Sync    syncer.Config
	// ResolveTimeout bounds endpoint resolution. Zero waits indefinitely.
	ResolveTimeout time.Duration
	// OutputHistory is the number of dev server lines kept per session.
	OutputHistory int
}

func DefaultConfig() Config {
	return Config{
		Sandbox:        sandbox.DefaultConfig(),
		Sync:           syncer.DefaultConfig(),
		ResolveTimeout: 2 * time.Minute,
		OutputHistory:  200,
	}
}

// Deps are the process-wide collaborators shared by all sessions.
type Deps struct {
	Shared   *sandbox.Shared
	Scaffold *project.Scaffold
	Registry endpoint.Registry
	Events   EventSink
	Log      *slog.Logger
}

// Snapshot is the externally visible state of a session.
type Snapshot struct {
	ID         string             `json:"id"`
	State      State              `json:"state"`
	Error      string             `json:"error,omitempty"`
	ActivePath string             `json:"active_path"`
	PreviewURL string             `json:"preview_url,omitempty"`
	Reloads    int                `json:"reloads"`
	Documents  []project.Document `json:"documents"`
	CreatedAt  time.Time          `json:"created_at"`
}

// Session is the controller of one playground.
type Session struct {
	id        string
	owner     string
	cfg       Config
	deps      Deps
	docs      *project.DocumentSet
	builder   *project.Builder
	sandbox   *sandbox.Session
	log       *slog.Logger
	createdAt time.Time
	done      chan struct{}

	mu      sync.RWMutex
	state   State
	err     error
	url     string
	reloads int
	sync    *syncer.Engine
	history []string
	started bool
	closed  bool
	cancel  context.CancelFunc
}

// NewSession prepares a session; nothing touches the sandbox until Start.
func NewSession(id, owner string, files []project.ProjectFile, deps Deps, cfg Config) (*Session, error) {
	docs, err := project.NewDocumentSet(files)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", id, err)
	}
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	if deps.Scaffold == nil {
		deps.Scaffold = project.MustDefaultScaffold()
	}
	if deps.Registry == nil {
		deps.Registry = endpoint.NewMemoryRegistry()
	}
	log := deps.Log.With("session", id)

	return &Session{
		id:        id,
		owner:     owner,
		cfg:       cfg,
		deps:      deps,
		docs:      docs,
		builder:   project.NewBuilder(deps.Scaffold),
		sandbox:   sandbox.NewSession(deps.Shared, deps.Scaffold.InstallTree(), cfg.Sandbox, log),
		log:       log,
		createdAt: time.Now(),
		done:      make(chan struct{}),
		state:     StateUninitialized,
	}, nil
}

func (s *Session) ID() string                       { return s.id }
func (s *Session) Owner() string                    { return s.owner }
func (s *Session) Documents() *project.DocumentSet { return s.docs }

// State returns the current state and, when failed, the cause.
func (s *Session) State() (State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state, s.err
}

// PreviewURL returns the resolved URL, or "" before Ready.
func (s *Session) PreviewURL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.url
}

// Snapshot returns a copy of the session's visible state.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		ID:         s.id,
		State:      s.state,
		ActivePath: s.docs.Active(),
		PreviewURL: s.url,
		Reloads:    s.reloads,
		Documents:  s.docs.Documents(),
		CreatedAt:  s.createdAt,
	}
	if s.err != nil {
		snap.Error = s.err.Error()
	}
	return snap
}

// Output returns the retained dev server lines, oldest first.
func (s *Session) Output() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.history...)
}

// Done is closed when startup has finished, successfully or not.
func (s *Session) Done() <-chan struct{} { return s.done }

// Wait blocks until startup finishes and returns its error.
func (s *Session) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		_, err := s.State()
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// -----------------------------------------------------------------------------
// startup
// -----------------------------------------------------------------------------

// Start runs boot, install, mount, spawn and endpoint resolution in order.
// Each step completes before the next begins.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("session %s already started", s.id)
	}
	s.started = true
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()
	defer close(s.done)
	defer cancel()

	s.setState(ctx, StateBooting, nil)
	if err := s.sandbox.Boot(ctx); err != nil {
		return s.fail(ctx, err)
	}

	s.setState(ctx, StateInstalling, nil)
	if _, err := s.sandbox.InstallDependencies(ctx); err != nil {
		return s.fail(ctx, err)
	}

	s.setState(ctx, StateMounting, nil)
	if err := s.mountProject(ctx); err != nil {
		return s.fail(ctx, err)
	}

	s.setState(ctx, StateSpawning, nil)
	rt := s.sandbox.Runtime()
	if rt == nil {
		return s.fail(ctx, ErrClosed)
	}
	resolver := endpoint.NewResolver(s.deps.Registry,
		endpoint.WithTimeout(s.cfg.ResolveTimeout),
		endpoint.WithLineHandler(s.appendOutput),
		endpoint.WithLogger(s.log),
	)
	watch, err := resolver.Watch(rt)
	if err != nil {
		return s.fail(ctx, err)
	}
	defer watch.Close()

	spawnedAt := time.Now()
	proc, err := s.sandbox.SpawnDevServer(ctx, s.sandbox.ProjectDir(s.id))
	if err != nil {
		return s.fail(ctx, err)
	}

	s.setState(ctx, StateResolving, nil)
	url, err := watch.Await(ctx, proc.Output())
	if err != nil {
		s.sandbox.StopDevServer()
		return s.fail(ctx, fmt.Errorf("resolve preview url: %w", err))
	}
	ResolveDuration.Observe(time.Since(spawnedAt).Seconds())

	s.mu.Lock()
	s.url = url
	s.mu.Unlock()
	s.setState(ctx, StateReady, nil)
	s.publish(ctx, messages.NewPreviewReadyEvent(s.id, url, 0))
	s.log.Info("Playground ready", "url", url)

	go s.drain(proc)
	return nil
}

// mountProject writes the full project under projects/<id> and turns on
// incremental sync. Edits made while the tree was being built are re-sent.
func (s *Session) mountProject(ctx context.Context) error {
	files := s.docs.Files()
	tree, err := s.builder.Build(files)
	if err != nil {
		return err
	}
	if err := s.sandbox.Mount(ctx, fstree.Wrap(tree, s.id), s.sandbox.ProjectsDir()); err != nil {
		return fmt.Errorf("mount project: %w", err)
	}

	engine := syncer.NewEngine(s.sandbox, s.docs, s.sandbox.ProjectDir(s.id), s.cfg.Sync,
		syncer.WithLogger(s.log),
		syncer.WithWriteHook(s.onSynced),
	)
	s.mu.Lock()
	s.sync = engine
	s.mu.Unlock()

	for _, f := range files {
		if text, ok := s.docs.Text(f.Path); ok && text != f.Content {
			engine.OnContentChange(f.Path, text)
		}
	}
	return nil
}

// drain keeps reading dev server output after resolution until the process exits.
func (s *Session) drain(proc sandbox.Process) {
	for line := range proc.Output() {
		s.appendOutput(line)
	}
	code, err := proc.Wait(context.Background())
	if err == nil {
		err = fmt.Errorf("dev server exited with code %d", code)
	}
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return
	}
	s.log.Warn("Dev server stopped", "process", proc.ID(), "err", err)
	s.fail(context.Background(), err)
}

func (s *Session) appendOutput(line string) {
	s.mu.Lock()
	s.history = append(s.history, line)
	if limit := s.cfg.OutputHistory; limit > 0 && len(s.history) > limit {
		s.history = s.history[len(s.history)-limit:]
	}
	s.mu.Unlock()
	s.log.Debug("dev server output", "line", line)
	s.publish(context.Background(), messages.NewOutputEvent(s.id, line))
}

func (s *Session) onSynced(path string, err error) {
	evt := messages.NewFileSyncedEvent(s.id, path)
	if err != nil {
		SyncWritesTotal.WithLabelValues("error").Inc()
		evt = evt.WithError(err.Error())
	} else {
		SyncWritesTotal.WithLabelValues("ok").Inc()
	}
	s.publish(context.Background(), evt)
}

func (s *Session) setState(ctx context.Context, st State, err error) {
	s.mu.Lock()
	s.state = st
	s.err = err
	s.mu.Unlock()

	SessionsTotal.WithLabelValues(string(st)).Inc()
	evt := messages.NewStateChangedEvent(s.id, string(st))
	if err != nil {
		evt = evt.WithError(err.Error())
	}
	s.publish(ctx, evt)
}

func (s *Session) fail(ctx context.Context, err error) error {
	s.log.Error("Playground failed", "err", err)
	s.setState(context.WithoutCancel(ctx), StateFailed, err)
	return err
}

func (s *Session) publish(ctx context.Context, evt messages.Event) {
	if s.deps.Events == nil {
		return
	}
	if err := s.deps.Events.PublishEvent(ctx, evt); err != nil {
		s.log.Warn("Failed to publish event", "subject", evt.Subject(), "err", err)
	}
}

func (s *Session) engine() *syncer.Engine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sync
}

// -----------------------------------------------------------------------------
// user actions
// -----------------------------------------------------------------------------

// Select makes path the active document. Selecting the active document is a no-op.
func (s *Session) Select(ctx context.Context, path string) error {
	changed, err := s.docs.SetActive(path)
	if err != nil || !changed {
		return err
	}
	if e := s.engine(); e != nil {
		e.OnActiveDocumentChange(path)
	}
	s.publish(ctx, messages.NewActiveFileEvent(s.id, path))
	return nil
}

// Edit replaces a document's text and schedules its write.
func (s *Session) Edit(_ context.Context, path, text string) error {
	// Hold the read lock so mountProject cannot install the engine between
	// the update and the check below.
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.docs.Update(path, text); err != nil {
		return err
	}
	if s.sync != nil {
		s.sync.OnContentChange(path, text)
	}
	return nil
}

// ApplyPatch applies an RFC 7386 merge patch over the path → text map of
// current documents. Documents cannot be added or removed. It returns the
// paths whose text changed.
func (s *Session) ApplyPatch(ctx context.Context, patch []byte) ([]string, error) {
	var ops map[string]json.RawMessage
	if err := json.Unmarshal(patch, &ops); err != nil {
		return nil, fmt.Errorf("patch must be a JSON object: %w", err)
	}
	for path, raw := range ops {
		if _, ok := s.docs.Text(path); !ok {
			return nil, fmt.Errorf("patch %q: %w", path, project.ErrUnknownPath)
		}
		var text *string
		if err := json.Unmarshal(raw, &text); err != nil || text == nil {
			return nil, fmt.Errorf("patch %q: value must be a string", path)
		}
	}

	current := s.docs.Texts()
	doc, err := json.Marshal(current)
	if err != nil {
		return nil, err
	}
	merged, err := jsonpatch.MergePatch(doc, patch)
	if err != nil {
		return nil, fmt.Errorf("apply patch: %w", err)
	}
	var next map[string]string
	if err := json.Unmarshal(merged, &next); err != nil {
		return nil, fmt.Errorf("apply patch: %w", err)
	}

	var changed []string
	for _, path := range s.docs.Paths() {
		if next[path] == current[path] {
			continue
		}
		if err := s.Edit(ctx, path, next[path]); err != nil {
			return changed, err
		}
		changed = append(changed, path)
	}
	return changed, nil
}

// Reset restores every document and re-selects the first one. Nothing is
// remounted; restored texts reach the sandbox through the usual debounced
// writes.
func (s *Session) Reset(ctx context.Context) error {
	s.mu.RLock()
	changed := s.docs.Reset()
	engine := s.sync
	s.mu.RUnlock()

	active := s.docs.Active()
	if engine != nil {
		for _, path := range changed {
			text, _ := s.docs.Text(path)
			engine.OnContentChange(path, text)
		}
	}
	s.log.Info("Playground reset", "restored", len(changed), "active", active)
	s.publish(ctx, messages.NewActiveFileEvent(s.id, active))
	return nil
}

// Reload re-issues the current preview URL.
func (s *Session) Reload(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.state != StateReady {
		s.mu.Unlock()
		return "", ErrNotReady
	}
	s.reloads++
	url, n := s.url, s.reloads
	s.mu.Unlock()

	s.publish(ctx, messages.NewPreviewReadyEvent(s.id, url, n))
	return url, nil
}

// Download returns the project files with their current text.
func (s *Session) Download() []project.ProjectFile {
	return s.docs.Files()
}

// Close cancels a running startup and waits for it, then stops syncing, kills
// the dev server and releases the sandbox reference.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	started, cancel := s.started, s.cancel
	s.mu.Unlock()

	if started {
		cancel()
		<-s.done
	}
	if e := s.engine(); e != nil {
		e.Stop()
	}
	s.sandbox.Close()
}
