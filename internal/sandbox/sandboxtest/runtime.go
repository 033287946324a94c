// Package sandboxtest provides a scriptable in-memory sandbox runtime.
package sandboxtest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"playground/internal/fstree"
	"playground/internal/sandbox"
)

// MountCall records one Mount.
type MountCall struct {
	Tree       fstree.Tree
	MountPoint string
}

// SpawnCall records one Spawn.
type SpawnCall struct {
	Command string
	Args    []string
	Opts    sandbox.SpawnOptions
}

// Runtime is a fake sandbox.Runtime. Processes whose command has an entry in
// ExitCodes exit immediately with that code; others stay running until the
// test calls Exit on them.
type Runtime struct {
	ExitCodes map[string]int
	// MountErr, when set, is consulted before each mount is recorded.
	MountErr func(MountCall) error
	// OnSpawn, when set, runs for every process right after it is created.
	OnSpawn func(*Process)

	mu        sync.Mutex
	mounts    []MountCall
	spawns    []SpawnCall
	procs     []*Process
	listeners map[int]func(int, string)
	nextID    int
	nextSub   int
	boots     int
}

// New returns an empty fake.
func New() *Runtime {
	return &Runtime{ExitCodes: map[string]int{}, listeners: map[int]func(int, string){}}
}

// Boot is a sandbox.BootFunc that hands out rt and counts calls.
func (rt *Runtime) Boot(context.Context) (sandbox.Runtime, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.boots++
	return rt, nil
}

// Boots reports how many times Boot was called.
func (rt *Runtime) Boots() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.boots
}

func (rt *Runtime) Mount(_ context.Context, tree fstree.Tree, mountPoint string) error {
	call := MountCall{Tree: tree, MountPoint: mountPoint}
	if rt.MountErr != nil {
		if err := rt.MountErr(call); err != nil {
			return err
		}
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.mounts = append(rt.mounts, call)
	return nil
}

func (rt *Runtime) Spawn(_ context.Context, command string, args []string, opts sandbox.SpawnOptions) (sandbox.Process, error) {
	rt.mu.Lock()
	rt.spawns = append(rt.spawns, SpawnCall{Command: command, Args: args, Opts: opts})
	p := &Process{
		id:   fmt.Sprintf("proc-%d", rt.nextID),
		out:  make(chan string, 64),
		done: make(chan struct{}),
	}
	rt.nextID++
	rt.procs = append(rt.procs, p)
	code, exits := rt.ExitCodes[command]
	hook := rt.OnSpawn
	rt.mu.Unlock()

	if hook != nil {
		hook(p)
	}
	if exits {
		p.Exit(code)
	}
	return p, nil
}

func (rt *Runtime) OnServerReady(fn func(port int, url string)) (func(), error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	id := rt.nextSub
	rt.nextSub++
	rt.listeners[id] = fn
	return func() {
		rt.mu.Lock()
		defer rt.mu.Unlock()
		delete(rt.listeners, id)
	}, nil
}

// EmitServerReady delivers a server-ready event to every listener.
func (rt *Runtime) EmitServerReady(port int, url string) {
	rt.mu.Lock()
	fns := make([]func(int, string), 0, len(rt.listeners))
	for _, fn := range rt.listeners {
		fns = append(fns, fn)
	}
	rt.mu.Unlock()
	for _, fn := range fns {
		fn(port, url)
	}
}

// Listeners reports the number of registered server-ready callbacks.
func (rt *Runtime) Listeners() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return len(rt.listeners)
}

// Mounts returns a copy of the recorded mounts.
func (rt *Runtime) Mounts() []MountCall {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return append([]MountCall(nil), rt.mounts...)
}

// MountsAt returns the recorded mounts targeting mountPoint.
func (rt *Runtime) MountsAt(mountPoint string) []MountCall {
	var out []MountCall
	for _, m := range rt.Mounts() {
		if m.MountPoint == mountPoint {
			out = append(out, m)
		}
	}
	return out
}

// Spawns returns a copy of the recorded spawns.
func (rt *Runtime) Spawns() []SpawnCall {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return append([]SpawnCall(nil), rt.spawns...)
}

// Process returns the i-th spawned process, or nil.
func (rt *Runtime) Process(i int) *Process {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if i < 0 || i >= len(rt.procs) {
		return nil
	}
	return rt.procs[i]
}

// Process is a fake sandbox.Process.
type Process struct {
	id   string
	out  chan string
	done chan struct{}

	mu     sync.Mutex
	code   int
	exited bool
	killed bool
}

func (p *Process) ID() string             { return p.id }
func (p *Process) Output() <-chan string { return p.out }

// Emit writes one output line. It blocks when the buffer is full.
func (p *Process) Emit(line string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.exited {
		return
	}
	p.out <- line
}

// Exit closes the output and completes Wait with code.
func (p *Process) Exit(code int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.exited {
		return
	}
	p.exited = true
	p.code = code
	close(p.out)
	close(p.done)
}

// KilledExitCode is the exit code of a killed fake process.
const KilledExitCode = 137

// Kill exits the process with KilledExitCode unless it has already exited.
func (p *Process) Kill() {
	p.mu.Lock()
	if !p.exited {
		p.killed = true
	}
	p.mu.Unlock()
	p.Exit(KilledExitCode)
}

// Killed reports whether Kill ended the process.
func (p *Process) Killed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.killed
}

func (p *Process) Wait(ctx context.Context) (int, error) {
	select {
	case <-p.done:
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.code, nil
	case <-ctx.Done():
		return -1, ctx.Err()
	}
}

// ErrMount is a convenience error for MountErr hooks.
var ErrMount = errors.New("sandboxtest: mount failed")
