package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/caffeineduck/browserbox/coordinator"
	"github.com/google/uuid"
)

// ErrNotFound is returned when no session has the requested ID.
var ErrNotFound = errors.New("session not found")

// RuntimeFactory creates the runtime for a new session.
type RuntimeFactory func(id string) (Runtime, error)

// Manager holds open sessions by ID.
type Manager struct {
	factory RuntimeFactory
	opts    []Option
	log     *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a manager that builds runtimes with factory and applies
// opts to every session it creates.
func NewManager(factory RuntimeFactory, log *slog.Logger, opts ...Option) *Manager {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Manager{
		factory:  factory,
		opts:     append(opts, WithLogger(log)),
		log:      log,
		sessions: make(map[string]*Session),
	}
}

// Create opens a new session.
func (m *Manager) Create() (*Session, error) {
	id := uuid.NewString()
	rt, err := m.factory(id)
	if err != nil {
		return nil, fmt.Errorf("create session runtime: %w", err)
	}

	s := New(rt, append(slices.Clone(m.opts), WithID(id))...)

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	m.log.Info("session created", "session", id)
	return s, nil
}

// Get returns the session with id and marks it as used.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.Touch()
	return s, nil
}

// Delete closes and forgets the session with id.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	m.log.Info("session deleted", "session", id)
	return s.Close()
}

// List returns the open sessions ordered by ID.
func (m *Manager) List() []*Session {
	m.mu.RLock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	m.mu.RUnlock()
	slices.SortFunc(out, func(a, b *Session) int { return strings.Compare(a.id, b.id) })
	return out
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Expire closes sessions that have been idle for longer than ttl. Sessions
// with a run in flight are kept. It returns the number closed.
func (m *Manager) Expire(ttl time.Duration) int {
	if ttl <= 0 {
		return 0
	}
	cutoff := time.Now().Add(-ttl)

	var expired []*Session
	m.mu.Lock()
	for id, s := range m.sessions {
		if s.LastUsed().Before(cutoff) && s.State() == coordinator.Idle {
			expired = append(expired, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range expired {
		m.log.Info("session expired", "session", s.id, "idle", time.Since(s.LastUsed()).Round(time.Second))
		if err := s.Close(); err != nil {
			m.log.Warn("close expired session", "session", s.id, "error", err)
		}
	}
	return len(expired)
}

// Janitor calls Expire every interval until ctx is done.
func (m *Manager) Janitor(ctx context.Context, ttl, interval time.Duration) {
	if ttl <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Expire(ttl)
		}
	}
}

// Close closes every session.
func (m *Manager) Close() error {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	var errs []error
	for _, s := range sessions {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
