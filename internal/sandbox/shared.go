package sandbox

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// Shared is the process-wide runtime handle. The runtime is booted by the
// first Acquire and reused by every later one; a failed boot is not memoized.
type Shared struct {
	boot BootFunc

	mu   sync.Mutex
	rt   Runtime
	refs int

	install     sync.Once
	installCode int
	installErr  error
}

// NewShared returns a handle that boots with fn on first use.
func NewShared(fn BootFunc) *Shared {
	return &Shared{boot: fn}
}

// Acquire returns the shared runtime, booting it if needed, and takes a reference.
func (s *Shared) Acquire(ctx context.Context) (Runtime, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rt == nil {
		slog.Info("Booting sandbox runtime")
		rt, err := s.boot(ctx)
		if err != nil {
			return nil, fmt.Errorf("boot sandbox: %w", err)
		}
		s.rt = rt
	}
	s.refs++
	return s.rt, nil
}

// Release drops a reference taken by Acquire. The runtime stays up; it is
// only torn down by Close.
func (s *Shared) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refs > 0 {
		s.refs--
	}
}

// Refs reports the number of sessions currently holding the runtime.
func (s *Shared) Refs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refs
}

// Booted reports whether the runtime has been created.
func (s *Shared) Booted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rt != nil
}

// Close tears the runtime down at process exit.
func (s *Shared) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rt := s.rt
	s.rt = nil
	if c, ok := rt.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// installOnce runs fn the first time it is called and hands every caller the
// same result, failures included.
func (s *Shared) installOnce(fn func() (int, error)) (int, error) {
	s.install.Do(func() {
		s.installCode, s.installErr = fn()
	})
	return s.installCode, s.installErr
}
