// Package sandbox wraps the sandboxed execution runtime that hosts every
// playground's dev server. One runtime is booted per process and shared by
// reference; each playground drives it through a Session.
package sandbox

import (
	"context"

	"playground/internal/fstree"
)

// SpawnOptions configures a process started inside the runtime.
type SpawnOptions struct {
	// Cwd is relative to the runtime root.
	Cwd string
	Env map[string]string
}

// Process is a handle to a spawned process.
type Process interface {
	ID() string
	// Output yields the combined stdout/stderr lines and is closed when the
	// process has stopped writing.
	Output() <-chan string
	// Wait blocks until the process exits and returns its exit code.
	Wait(ctx context.Context) (int, error)
	// Kill terminates the process. Output is still closed once the process
	// has gone; killing an exited process does nothing.
	Kill()
}

// Runtime is the contract consumed from the sandboxed execution environment.
type Runtime interface {
	// Mount writes tree below mountPoint. Existing files at the same paths are
	// overwritten; sibling paths are left alone.
	Mount(ctx context.Context, tree fstree.Tree, mountPoint string) error
	Spawn(ctx context.Context, command string, args []string, opts SpawnOptions) (Process, error)
	// OnServerReady registers fn for every port bound by any process in the
	// runtime. The returned func removes the registration.
	OnServerReady(fn func(port int, url string)) (func(), error)
}

// BootFunc creates a runtime instance.
type BootFunc func(ctx context.Context) (Runtime, error)
