// Package permcache holds the per-session permission snapshot and the cache
// that owns it. Queries are synchronous reads of the last committed
// snapshot; only refreshes touch the network.
package permcache

import (
	"time"

	"github.com/google/uuid"

	"github.com/vantage-erp/vantage-authz/internal/registry"
	"github.com/vantage-erp/vantage-authz/internal/shared"
)

// Snapshot is an immutable merge input set: identity bypass flags plus the
// override map fetched for the session's tenant and role. It is replaced
// wholesale on every refresh, never patched, so diffing is well-defined.
type Snapshot struct {
	TenantID uuid.UUID
	Role     registry.Role
	Bypass   bool
	BuiltAt  time.Time

	overrides map[registry.Key]bool
}

// NewSnapshot builds a snapshot from an identity and a fetched override map.
// The map is copied; callers may reuse theirs.
func NewSnapshot(ident shared.Identity, overrides map[registry.Key]bool, builtAt time.Time) *Snapshot {
	copied := make(map[registry.Key]bool, len(overrides))
	for k, v := range overrides {
		copied[k] = v
	}
	return &Snapshot{
		TenantID:  ident.TenantID,
		Role:      ident.TenantRole,
		Bypass:    ident.Bypass(),
		BuiltAt:   builtAt,
		overrides: copied,
	}
}

// CanPerform answers whether the action on the module is allowed. Precedence,
// first match wins: platform bypass; tenant owner; explicit override for the
// exact key; a manage override when the action falls under the umbrella; the
// default matrix with its manage fallback. Owner precedes the override lookup
// so a stored deny row can never lock the owner out. A nil snapshot denies
// everything.
func (s *Snapshot) CanPerform(rawModule string, action registry.Action) bool {
	if s == nil {
		return false
	}
	if s.Bypass || s.Role == registry.RoleOwner {
		return true
	}
	module := registry.Canonicalize(rawModule)
	if v, ok := s.overrides[registry.Key{Module: module, Action: action}]; ok {
		return v
	}
	if registry.UmbrellaAction(action) {
		if v, ok := s.overrides[registry.Key{Module: module, Action: registry.ActionManage}]; ok {
			return v
		}
	}
	return registry.DefaultAllows(s.Role, module, action)
}

// HasAnyPermission reports whether at least one module is viewable. The UI
// uses it to pick between the no-access state and real content.
func (s *Snapshot) HasAnyPermission() bool {
	if s == nil {
		return false
	}
	for _, m := range registry.Modules() {
		if s.CanPerform(string(m), registry.ActionView) {
			return true
		}
	}
	return false
}

// AccessibleModules returns the canonical modules whose view action is
// currently allowed, in registry order.
func (s *Snapshot) AccessibleModules() []registry.Module {
	if s == nil {
		return nil
	}
	var out []registry.Module
	for _, m := range registry.Modules() {
		if s.CanPerform(string(m), registry.ActionView) {
			out = append(out, m)
		}
	}
	return out
}

// OverrideCount reports how many explicit overrides the snapshot holds.
func (s *Snapshot) OverrideCount() int {
	if s == nil {
		return 0
	}
	return len(s.overrides)
}

// MaterialDiff reports whether two snapshots differ in any security-relevant
// way: any key's value, the key set itself, the role, or the bypass flag.
// Size equality alone never decides; a like-for-like key swap keeps the
// count stable while the content changed.
func MaterialDiff(old, new *Snapshot) bool {
	if old == nil || new == nil {
		return old != new
	}
	if old.Role != new.Role || old.Bypass != new.Bypass || old.TenantID != new.TenantID {
		return true
	}
	if len(old.overrides) != len(new.overrides) {
		return true
	}
	for k, v := range old.overrides {
		nv, ok := new.overrides[k]
		if !ok || nv != v {
			return true
		}
	}
	return false
}
