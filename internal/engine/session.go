package engine

import (
	"sync"
	"sync/atomic"

	"github.com/vantage-erp/vantage-authz/internal/guard"
	"github.com/vantage-erp/vantage-authz/internal/permcache"
	"github.com/vantage-erp/vantage-authz/internal/reconciler"
	"github.com/vantage-erp/vantage-authz/internal/shared"
)

// Notice is a pending event for the session's UI: either a bare permission
// change or a forced redirect away from a route that is no longer viewable.
type Notice struct {
	Kind       NoticeKind `json:"kind"`
	Path       string     `json:"path,omitempty"`
	RedirectTo string     `json:"redirect_to,omitempty"`
}

type NoticeKind string

const (
	NoticePermissionsChanged NoticeKind = "permissions_changed"
	NoticeAccessRevoked      NoticeKind = "access_revoked"
)

const maxPendingNotices = 32

// AuthorizationSession binds one signed-in browser session to its permission
// cache and the reconciler that keeps it current. It is the engine's unit of
// ownership: acquire on sign-in, release on sign-out or tenant switch.
type AuthorizationSession struct {
	id    string
	ident shared.Identity
	cache *permcache.Cache
	rec   *reconciler.Reconciler

	path atomic.Value

	mu      sync.Mutex
	notices []Notice

	stop     func()
	done     chan struct{}
	released atomic.Bool
}

// ID returns the owning browser session's identifier.
func (s *AuthorizationSession) ID() string { return s.id }

// Identity returns the identity the session was acquired for.
func (s *AuthorizationSession) Identity() shared.Identity { return s.ident }

// Cache exposes the session's permission cache for read-side checks.
func (s *AuthorizationSession) Cache() *permcache.Cache { return s.cache }

// Refresh requests an immediate re-pull of the session's permissions.
func (s *AuthorizationSession) Refresh() { s.rec.Refresh() }

// VisibilityRegained reports that the session's tab returned to the
// foreground.
func (s *AuthorizationSession) VisibilityRegained() { s.rec.VisibilityRegained() }

// RecordLocation stores the session's current navigation path so revocations
// can be checked against where the user actually is.
func (s *AuthorizationSession) RecordLocation(path string) {
	if path != "" {
		s.path.Store(path)
	}
}

// Location returns the last recorded navigation path.
func (s *AuthorizationSession) Location() string {
	if p, ok := s.path.Load().(string); ok {
		return p
	}
	return ""
}

// DrainNotices returns and clears all pending notices in arrival order.
func (s *AuthorizationSession) DrainNotices() []Notice {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.notices
	s.notices = nil
	return out
}

// PermissionsChanged implements reconciler.Notifier.
func (s *AuthorizationSession) PermissionsChanged(_ *permcache.Snapshot) {
	s.enqueue(Notice{Kind: NoticePermissionsChanged})
}

// AccessRevoked implements reconciler.Notifier.
func (s *AuthorizationSession) AccessRevoked(path string, decision guard.Decision) {
	s.enqueue(Notice{
		Kind:       NoticeAccessRevoked,
		Path:       path,
		RedirectTo: decision.RedirectTo,
	})
}

func (s *AuthorizationSession) enqueue(n Notice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.notices) >= maxPendingNotices {
		// An unpolled session keeps only the newest notices.
		s.notices = s.notices[1:]
	}
	s.notices = append(s.notices, n)
}

func (s *AuthorizationSession) release() {
	if s.released.Swap(true) {
		return
	}
	s.stop()
	s.cache.Dispose()
	<-s.done
}
