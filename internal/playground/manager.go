package playground

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"playground/internal/project"
)

// Manager owns every session of the process and hands out their ids.
type Manager struct {
	deps Deps
	cfg  Config
	next atomic.Int64

	mu       sync.RWMutex
	sessions map[string]*Session
	order    []string
}

func NewManager(deps Deps, cfg Config) *Manager {
	if deps.Scaffold == nil {
		deps.Scaffold = project.MustDefaultScaffold()
	}
	return &Manager{deps: deps, cfg: cfg, sessions: map[string]*Session{}}
}

// nextID returns project-0, project-1, ... in creation order.
func (m *Manager) nextID() string {
	return fmt.Sprintf("project-%d", m.next.Add(1)-1)
}

// Create registers a new session without starting it.
func (m *Manager) Create(files []project.ProjectFile, owner string) (*Session, error) {
	s, err := NewSession(m.nextID(), owner, files, m.deps, m.cfg)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.sessions[s.ID()] = s
	m.order = append(m.order, s.ID())
	m.mu.Unlock()
	return s, nil
}

// Launch creates a session and starts it in the background. ctx bounds the
// whole startup, not just this call.
func (m *Manager) Launch(ctx context.Context, files []project.ProjectFile, owner string) (*Session, error) {
	s, err := m.Create(files, owner)
	if err != nil {
		return nil, err
	}
	go func() { _ = s.Start(ctx) }()
	return s, nil
}

// Get returns the session with id.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// List returns every session ordered by creation.
func (m *Manager) List() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.sessions[id])
	}
	return out
}

// Close stops every session.
func (m *Manager) Close() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = map[string]*Session{}
	m.order = nil
	m.mu.Unlock()
	for _, s := range sessions {
		s.Close()
	}
}
