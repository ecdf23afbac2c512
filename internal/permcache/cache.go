package permcache

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/vantage-erp/vantage-authz/internal/registry"
	"github.com/vantage-erp/vantage-authz/internal/shared"
)

// State tracks the cache lifecycle.
type State int32

// Cache states. A cache is never reused across tenants: a tenant switch
// disposes it and a fresh cache is built for the new context.
const (
	StateUninitialized State = iota
	StateLoading
	StateReady
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// ErrDisposed indicates the cache was disposed and processes no further work.
var ErrDisposed = errors.New("permcache: disposed")

// Fetcher pulls the override map for a tenant and role.
type Fetcher interface {
	FetchOverrides(ctx context.Context, tenantID uuid.UUID, role registry.Role) (map[registry.Key]bool, error)
}

// Cache owns one session's permission snapshot. Reads are lock-free against
// an atomically swapped snapshot; concurrent refreshes coalesce into a
// single fetch.
type Cache struct {
	ident   shared.Identity
	fetcher Fetcher

	state atomic.Int32
	snap  atomic.Pointer[Snapshot]
	group singleflight.Group
}

// New constructs a Cache for the given effective identity.
func New(ident shared.Identity, fetcher Fetcher) *Cache {
	return &Cache{ident: ident, fetcher: fetcher}
}

// Identity returns the effective identity the cache was built for.
func (c *Cache) Identity() shared.Identity {
	return c.ident
}

// State returns the current lifecycle state.
func (c *Cache) State() State {
	return State(c.state.Load())
}

// Snapshot returns the last committed snapshot, nil before the first load.
func (c *Cache) Snapshot() *Snapshot {
	return c.snap.Load()
}

type refreshResult struct {
	snap    *Snapshot
	changed bool
	err     error
}

// Refresh fetches overrides and swaps in a new snapshot. It reports the
// resulting snapshot and whether it differs materially from the previous
// one. Concurrent callers coalesce: only one fetch is in flight at a time
// and late arrivals observe that single result.
//
// On fetch failure with a prior snapshot the prior snapshot is retained
// unchanged and returned with the error. On an initial-load failure a
// defaults-only snapshot is installed: authorization degrades to the default
// matrix rather than hanging or crashing.
func (c *Cache) Refresh(ctx context.Context) (*Snapshot, bool, error) {
	if c.State() == StateDisposed {
		return nil, false, ErrDisposed
	}
	res, _, _ := c.group.Do("refresh", func() (any, error) {
		return c.doRefresh(ctx), nil
	})
	r := res.(refreshResult)
	return r.snap, r.changed, r.err
}

func (c *Cache) doRefresh(ctx context.Context) refreshResult {
	if c.State() == StateDisposed {
		return refreshResult{err: ErrDisposed}
	}
	c.state.Store(int32(StateLoading))

	prev := c.snap.Load()
	overrides, err := c.fetcher.FetchOverrides(ctx, c.ident.TenantID, c.ident.TenantRole)
	if c.State() == StateDisposed {
		return refreshResult{err: ErrDisposed}
	}
	if err != nil {
		if prev != nil {
			// Keep last known good: a transient fetch failure must stay
			// distinguishable from a revocation.
			c.state.Store(int32(StateReady))
			return refreshResult{snap: prev, err: err}
		}
		snap := NewSnapshot(c.ident, nil, time.Now().UTC())
		c.snap.Store(snap)
		c.state.Store(int32(StateReady))
		return refreshResult{snap: snap, err: err}
	}

	snap := NewSnapshot(c.ident, overrides, time.Now().UTC())
	changed := prev != nil && MaterialDiff(prev, snap)
	c.snap.Store(snap)
	c.state.Store(int32(StateReady))
	return refreshResult{snap: snap, changed: changed}
}

// Dispose terminates the cache on sign-out or tenant switch. The snapshot
// is discarded and every later query denies.
func (c *Cache) Dispose() {
	c.state.Store(int32(StateDisposed))
	c.snap.Store(nil)
}

// CanPerform is the synchronous decision query. It never blocks and never
// errors: before the first load, and after disposal, it denies.
func (c *Cache) CanPerform(module string, action registry.Action) bool {
	return c.snap.Load().CanPerform(module, action)
}

// HasAnyPermission reports whether any module is currently viewable.
func (c *Cache) HasAnyPermission() bool {
	return c.snap.Load().HasAnyPermission()
}

// AccessibleModules lists the modules whose view action is allowed.
func (c *Cache) AccessibleModules() []registry.Module {
	return c.snap.Load().AccessibleModules()
}

// HasMinRole reports whether the session's role ranks at or above min. The
// platform super-role satisfies every minimum.
func (c *Cache) HasMinRole(min registry.Role) bool {
	if c.State() == StateDisposed {
		return false
	}
	if c.ident.Bypass() {
		return true
	}
	return registry.AtLeast(c.ident.TenantRole, min)
}

// Convenience booleans for common UI visibility decisions.

// ShowBillingSection reports whether the billing area should render.
func (c *Cache) ShowBillingSection() bool {
	return c.CanPerform(string(registry.ModuleInvoices), registry.ActionView)
}

// ShowBulkActions reports whether bulk controls should render for a module.
func (c *Cache) ShowBulkActions(module string) bool {
	return c.CanPerform(module, registry.ActionBulk)
}

// ShowSettingsMenu reports whether the settings entry should render.
func (c *Cache) ShowSettingsMenu() bool {
	return c.CanPerform(string(registry.ModuleSettings), registry.ActionView)
}

// ShowUserManagement reports whether user administration should render.
func (c *Cache) ShowUserManagement() bool {
	return c.CanPerform(string(registry.ModuleUsers), registry.ActionView)
}
