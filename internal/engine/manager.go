package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vantage-erp/vantage-authz/internal/guard"
	"github.com/vantage-erp/vantage-authz/internal/observability"
	"github.com/vantage-erp/vantage-authz/internal/overrides"
	"github.com/vantage-erp/vantage-authz/internal/permcache"
	"github.com/vantage-erp/vantage-authz/internal/reconciler"
	"github.com/vantage-erp/vantage-authz/internal/shared"
)

// ManagerConfig collects the engine's collaborators.
type ManagerConfig struct {
	Fetcher  permcache.Fetcher
	Feed     overrides.ChangeFeed
	Guard    *guard.Guard
	Logger   *slog.Logger
	Metrics  *observability.Metrics
	Interval time.Duration
}

// Manager owns every live AuthorizationSession, keyed by browser session ID.
// Acquire is idempotent for an unchanged identity; an identity change on the
// same session ID (tenant switch, impersonation) disposes the old state and
// starts fresh.
type Manager struct {
	cfg ManagerConfig

	mu       sync.Mutex
	sessions map[string]*AuthorizationSession
}

// NewManager constructs a Manager.
func NewManager(cfg ManagerConfig) *Manager {
	return &Manager{
		cfg:      cfg,
		sessions: make(map[string]*AuthorizationSession),
	}
}

// Acquire returns the AuthorizationSession for the given browser session,
// creating one when none exists or the identity changed. The returned
// session's reconciler is already running.
func (m *Manager) Acquire(sessionID string, ident shared.Identity) *AuthorizationSession {
	m.mu.Lock()
	existing := m.sessions[sessionID]
	if existing != nil && existing.ident == ident {
		m.mu.Unlock()
		return existing
	}
	// Created under the lock so two concurrent first requests cannot both
	// pass the nil check and leak a second reconciler.
	sess := m.start(sessionID, ident)
	m.sessions[sessionID] = sess
	m.mu.Unlock()

	if existing != nil {
		existing.release()
		m.cfg.Metrics.SessionClosed()
	}
	m.cfg.Metrics.SessionOpened()
	return sess
}

// Guard exposes the route guard shared by every session.
func (m *Manager) Guard() *guard.Guard {
	return m.cfg.Guard
}

// Get returns the live session for the given browser session ID, if any.
func (m *Manager) Get(sessionID string) (*AuthorizationSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[sessionID]
	return sess, ok
}

// Release disposes the session's cache and stops its reconciler. Safe to call
// for unknown IDs.
func (m *Manager) Release(sessionID string) {
	m.mu.Lock()
	sess := m.sessions[sessionID]
	delete(m.sessions, sessionID)
	m.mu.Unlock()
	if sess == nil {
		return
	}
	sess.release()
	m.cfg.Metrics.SessionClosed()
}

// Shutdown releases every live session.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	sessions := make([]*AuthorizationSession, 0, len(m.sessions))
	for id, sess := range m.sessions {
		sessions = append(sessions, sess)
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	for _, sess := range sessions {
		sess.release()
		m.cfg.Metrics.SessionClosed()
	}
}

// Count reports the number of live sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) start(sessionID string, ident shared.Identity) *AuthorizationSession {
	sess := &AuthorizationSession{
		id:    sessionID,
		ident: ident,
		cache: permcache.New(ident, m.cfg.Fetcher),
		done:  make(chan struct{}),
	}
	sess.rec = reconciler.New(reconciler.Config{
		Cache:    sess.cache,
		Feed:     m.cfg.Feed,
		Guard:    m.cfg.Guard,
		Notifier: sess,
		Location: sess.Location,
		Logger:   m.cfg.Logger,
		Metrics:  m.cfg.Metrics,
		Interval: m.cfg.Interval,
	})

	ctx, cancel := context.WithCancel(context.Background())
	sess.stop = cancel
	go func() {
		defer close(sess.done)
		_ = sess.rec.Run(ctx)
	}()
	return sess
}
