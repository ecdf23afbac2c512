// Package guard maps navigation locations to permission modules and decides
// whether the current session may stay on them.
package guard

import (
	"fmt"
	"sort"
	"strings"

	"github.com/vantage-erp/vantage-authz/internal/registry"
)

// RouteTable is the static bidirectional mapping between route prefixes and
// canonical modules. Matching is exact first, then longest prefix among
// non-root routes; the root route never participates in prefix matching.
type RouteTable struct {
	safePath string
	byPath   map[string]registry.Module
	byModule map[registry.Module]string
	prefixes []string
}

// NewRouteTable builds a table from path -> module entries plus the safe
// path every denied navigation is redirected to.
func NewRouteTable(safePath string, entries map[string]registry.Module) *RouteTable {
	t := &RouteTable{
		safePath: safePath,
		byPath:   make(map[string]registry.Module, len(entries)),
		byModule: make(map[registry.Module]string, len(entries)),
	}
	for path, module := range entries {
		path = normalizePath(path)
		t.byPath[path] = module
		if _, taken := t.byModule[module]; !taken {
			t.byModule[module] = path
		}
		if path != "/" {
			t.prefixes = append(t.prefixes, path)
		}
	}
	sort.Slice(t.prefixes, func(i, j int) bool {
		return len(t.prefixes[i]) > len(t.prefixes[j])
	})
	return t
}

// DefaultRouteTable mirrors the ERP frontend's protected navigation.
func DefaultRouteTable() *RouteTable {
	return NewRouteTable("/", map[string]registry.Module{
		"/dashboard":       registry.ModuleDashboard,
		"/invoices":        registry.ModuleInvoices,
		"/quotations":      registry.ModuleQuotations,
		"/customers":       registry.ModuleCustomers,
		"/vendors":         registry.ModuleVendors,
		"/products":        registry.ModuleProducts,
		"/inventory":       registry.ModuleInventory,
		"/purchase-orders": registry.ModulePurchaseOrders,
		"/payroll":         registry.ModulePayroll,
		"/reports":         registry.ModuleReports,
		"/settings":        registry.ModuleSettings,
		"/users":           registry.ModuleUsers,
	})
}

// SafePath returns the unconditionally accessible redirect target.
func (t *RouteTable) SafePath() string {
	return t.safePath
}

// ModuleFor resolves a path to its protecting module. Unmapped paths report
// ok=false: they are unprotected.
func (t *RouteTable) ModuleFor(path string) (registry.Module, bool) {
	path = normalizePath(path)
	if m, ok := t.byPath[path]; ok {
		return m, true
	}
	for _, prefix := range t.prefixes {
		if strings.HasPrefix(path, prefix+"/") {
			return t.byPath[prefix], true
		}
	}
	return "", false
}

// RouteFor returns the primary route registered for a module.
func (t *RouteTable) RouteFor(module registry.Module) (string, bool) {
	path, ok := t.byModule[module]
	return path, ok
}

// Entries returns the full table for route-guard wiring on the caller side.
func (t *RouteTable) Entries() map[string]registry.Module {
	out := make(map[string]registry.Module, len(t.byPath))
	for path, module := range t.byPath {
		out[path] = module
	}
	return out
}

// Validate enforces the redirect-loop invariant at startup: the safe path
// must not itself resolve to a module, or a denied session would bounce
// forever.
func (t *RouteTable) Validate() error {
	if t.safePath == "" {
		return fmt.Errorf("guard: safe path not configured")
	}
	if module, ok := t.ModuleFor(t.safePath); ok {
		return fmt.Errorf("guard: safe path %s is guarded by module %s", t.safePath, module)
	}
	return nil
}

func normalizePath(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	return strings.ToLower(path)
}
