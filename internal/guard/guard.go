package guard

import (
	"log/slog"

	"github.com/vantage-erp/vantage-authz/internal/permcache"
	"github.com/vantage-erp/vantage-authz/internal/registry"
)

// Decision is the guard's verdict on a navigation location.
type Decision struct {
	Allowed bool
	// Module is set when the location is protected.
	Module      registry.Module
	ModuleKnown bool
	// RedirectTo carries the forced navigation target when denied.
	RedirectTo string
}

// Guard checks navigation locations against a permission snapshot.
type Guard struct {
	table  *RouteTable
	logger *slog.Logger
}

// New constructs a Guard. The route table must have been validated.
func New(table *RouteTable, logger *slog.Logger) *Guard {
	return &Guard{table: table, logger: logger}
}

// Table exposes the navigation mapping for route-guard wiring.
func (g *Guard) Table() *RouteTable {
	return g.table
}

// CheckRoute decides whether the session may stay on path. Unprotected
// routes are implicitly allowed. Protected routes require the module's view
// permission; the snapshot canonicalizes aliases, so overrides keyed under
// historical module names are honored. On denial the decision carries the
// safe redirect target.
func (g *Guard) CheckRoute(snap *permcache.Snapshot, path string) Decision {
	module, ok := g.table.ModuleFor(path)
	if !ok {
		return Decision{Allowed: true}
	}
	if snap.CanPerform(string(module), registry.ActionView) {
		return Decision{Allowed: true, Module: module, ModuleKnown: true}
	}
	if g.logger != nil {
		g.logger.Info("route access denied",
			slog.String("path", path),
			slog.String("module", string(module)))
	}
	return Decision{
		Module:      module,
		ModuleKnown: true,
		RedirectTo:  g.table.SafePath(),
	}
}
