// Package stream tracks the lifecycle of active re-framing sessions,
// providing create/remove/list operations used by the ingest and
// distribution layers.
package stream

import (
	"log/slog"
	"sync"
	"time"

	"github.com/zsiec/reframe/distribution"
	"github.com/zsiec/reframe/pipeline"
)

// Session couples one source's pipeline with its viewer relay for the
// lifetime of the source connection.
type Session struct {
	Key       string
	StartedAt time.Time
	Pipeline  *pipeline.Pipeline
	Relay     *distribution.Relay
	done      chan struct{}
}

// Done is closed when the session is removed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Manager manages the lifecycle of active sessions.
type Manager struct {
	log      *slog.Logger
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a session manager. If log is nil, slog.Default() is
// used.
func NewManager(log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		log:      log.With("component", "session-manager"),
		sessions: make(map[string]*Session),
	}
}

// Create registers a new session. Returns the session and true if
// created, or nil and false if one with this key already exists.
func (m *Manager) Create(key string, p *pipeline.Pipeline, r *distribution.Relay) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[key]; ok {
		m.log.Warn("session already exists, rejecting duplicate", "key", key)
		return nil, false
	}

	s := &Session{
		Key:       key,
		StartedAt: time.Now(),
		Pipeline:  p,
		Relay:     r,
		done:      make(chan struct{}),
	}

	m.sessions[key] = s
	m.log.Info("session created", "key", key, "geometry", p.Geometry().String())
	return s, true
}

// Reset discards a session's buffered partial frame when it leaves active
// playback; the session's timeline continues where it stopped. Returns
// false for an unknown key.
func (m *Manager) Reset(key string) bool {
	m.mu.RLock()
	s, ok := m.sessions[key]
	m.mu.RUnlock()

	if ok {
		s.Pipeline.Reset()
	}
	return ok
}

// Remove tears a session down. Bytes short of a complete frame are
// discarded, never flushed.
func (m *Manager) Remove(key string) {
	m.mu.Lock()
	s, ok := m.sessions[key]
	if ok {
		delete(m.sessions, key)
	}
	m.mu.Unlock()

	if ok {
		s.Pipeline.Reset()
		close(s.done)
		m.log.Info("session removed", "key", key)
	}
}

// Get returns the session for the given key, or false if not found.
func (m *Manager) Get(key string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[key]
	return s, ok
}

// List returns all active sessions.
func (m *Manager) List() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	return sessions
}
