package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sync"

	"playground/internal/fstree"
)

// ErrInstallFailed is returned when the install command exits non-zero.
var ErrInstallFailed = errors.New("dependency installation failed")

// Config holds the commands run inside the runtime.
type Config struct {
	InstallCommand []string
	DevCommand     []string
	// ProjectsDir is the runtime-relative directory holding one subdirectory
	// per playground.
	ProjectsDir string
}

// DefaultConfig mirrors an npm-based Astro project.
func DefaultConfig() Config {
	return Config{
		InstallCommand: []string{"npm", "install"},
		DevCommand:     []string{"npx", "astro", "dev", "--port", "{port}"},
		ProjectsDir:    "projects",
	}
}

// Session is one playground's view of the shared runtime.
type Session struct {
	shared  *Shared
	install fstree.Tree
	cfg     Config
	log     *slog.Logger

	mu  sync.Mutex
	rt  Runtime
	dev Process
}

// NewSession returns a session over shared. install is mounted at the runtime
// root before the install command runs.
func NewSession(shared *Shared, install fstree.Tree, cfg Config, log *slog.Logger) *Session {
	if log == nil {
		log = slog.Default()
	}
	if cfg.ProjectsDir == "" {
		cfg.ProjectsDir = "projects"
	}
	return &Session{shared: shared, install: install, cfg: cfg, log: log}
}

// Boot acquires the shared runtime. Calling it again is a no-op.
func (s *Session) Boot(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rt != nil {
		return nil
	}
	rt, err := s.shared.Acquire(ctx)
	if err != nil {
		return err
	}
	s.rt = rt
	return nil
}

// Runtime returns the booted runtime, or nil before Boot.
func (s *Session) Runtime() Runtime {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rt
}

// ProjectDir is the runtime-relative directory of the playground id.
func (s *Session) ProjectDir(id string) string {
	return path.Join(s.cfg.ProjectsDir, id)
}

// ProjectsDir is the runtime-relative parent of every project directory.
func (s *Session) ProjectsDir() string { return s.cfg.ProjectsDir }

// InstallDependencies mounts the manifest and lockfile and runs the install
// command once per runtime. It returns the exit code; a non-zero code is
// reported as ErrInstallFailed and is not retried.
func (s *Session) InstallDependencies(ctx context.Context) (int, error) {
	rt := s.Runtime()
	if rt == nil {
		return -1, errors.New("install: sandbox not booted")
	}
	if len(s.cfg.InstallCommand) == 0 {
		return 0, nil
	}

	// The result is shared by every session; one caller's cancellation must
	// not end up memoized for the others.
	ictx := context.WithoutCancel(ctx)
	code, err := s.shared.installOnce(func() (int, error) {
		if err := rt.Mount(ictx, s.install, ""); err != nil {
			return -1, fmt.Errorf("mount install tree: %w", err)
		}
		proc, err := rt.Spawn(ictx, s.cfg.InstallCommand[0], s.cfg.InstallCommand[1:], SpawnOptions{})
		if err != nil {
			return -1, fmt.Errorf("spawn install: %w", err)
		}
		go func() {
			for line := range proc.Output() {
				s.log.Debug("install output", "process", proc.ID(), "line", line)
			}
		}()
		return proc.Wait(ictx)
	})
	if err != nil {
		return code, err
	}
	if code != 0 {
		return code, fmt.Errorf("%w: exit code %d", ErrInstallFailed, code)
	}
	return code, nil
}

// Mount writes tree at mountPoint inside the runtime.
func (s *Session) Mount(ctx context.Context, tree fstree.Tree, mountPoint string) error {
	rt := s.Runtime()
	if rt == nil {
		return errors.New("mount: sandbox not booted")
	}
	return rt.Mount(ctx, tree, mountPoint)
}

// SpawnDevServer starts the dev server in cwd. A session runs at most one.
func (s *Session) SpawnDevServer(ctx context.Context, cwd string) (Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rt == nil {
		return nil, errors.New("spawn: sandbox not booted")
	}
	if s.dev != nil {
		return nil, fmt.Errorf("dev server already running as %s", s.dev.ID())
	}
	if len(s.cfg.DevCommand) == 0 {
		return nil, errors.New("spawn: no dev command configured")
	}
	proc, err := s.rt.Spawn(ctx, s.cfg.DevCommand[0], s.cfg.DevCommand[1:], SpawnOptions{Cwd: cwd})
	if err != nil {
		return nil, fmt.Errorf("spawn dev server: %w", err)
	}
	s.log.Info("Dev server spawned", "process", proc.ID(), "cwd", cwd)
	s.dev = proc
	return proc, nil
}

// DevServer returns the running dev server process, if any.
func (s *Session) DevServer() Process {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dev
}

// StopDevServer kills the dev server, if one is running, and discards its
// remaining output so the process pipes never fill up.
func (s *Session) StopDevServer() {
	s.mu.Lock()
	proc := s.dev
	s.dev = nil
	s.mu.Unlock()
	if proc == nil {
		return
	}
	go func() {
		for range proc.Output() {
		}
	}()
	proc.Kill()
	s.log.Info("Dev server stopped", "process", proc.ID())
}

// Close stops the dev server and releases the runtime reference. The runtime
// itself keeps running.
func (s *Session) Close() {
	s.StopDevServer()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rt != nil {
		s.shared.Release()
		s.rt = nil
	}
}
