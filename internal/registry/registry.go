// Package registry holds the build-time role and module definitions the
// authorization engine decides against. Everything here is static: roles,
// their ranks, the module catalogue, module aliases and the action set are
// fixed at compile time and never mutate at runtime.
package registry

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Role is a tenant-scoped role. Every role carries a fixed integer rank;
// rank ordering is total.
type Role string

// Tenant roles, highest rank first.
const (
	RoleOwner    Role = "owner"
	RoleManager  Role = "manager"
	RoleAccounts Role = "accounts"
	RoleSales    Role = "sales"
	RoleDesigner Role = "designer"
	RoleEmployee Role = "employee"
)

// PlatformRole is a platform-scoped role. It is orthogonal to tenant roles
// and carries no rank.
type PlatformRole string

// PlatformAdmin bypasses tenant boundaries entirely.
const PlatformAdmin PlatformRole = "platform_admin"

var roleRanks = map[Role]int{
	RoleOwner:    60,
	RoleManager:  50,
	RoleAccounts: 40,
	RoleSales:    30,
	RoleDesigner: 20,
	RoleEmployee: 10,
}

// Rank returns the rank of a tenant role. Unknown roles report ok=false.
func Rank(r Role) (int, bool) {
	rank, ok := roleRanks[r]
	return rank, ok
}

// ValidRole reports whether r is a known tenant role.
func ValidRole(r Role) bool {
	_, ok := roleRanks[r]
	return ok
}

// ParseRole normalizes a raw role string into a tenant role.
func ParseRole(raw string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(raw)))
	if !ValidRole(r) {
		return "", false
	}
	return r, true
}

// AtLeast reports whether role ranks at or above min. Unknown roles never
// satisfy any minimum.
func AtLeast(role, min Role) bool {
	rr, ok := roleRanks[role]
	if !ok {
		return false
	}
	mr, ok := roleRanks[min]
	if !ok {
		return false
	}
	return rr >= mr
}

// Roles returns all tenant roles ordered by descending rank.
func Roles() []Role {
	roles := make([]Role, 0, len(roleRanks))
	for r := range roleRanks {
		roles = append(roles, r)
	}
	sort.Slice(roles, func(i, j int) bool {
		return roleRanks[roles[i]] > roleRanks[roles[j]]
	})
	return roles
}

// Module identifies a unit of business functionality. Comparisons always use
// the canonical form produced by Canonicalize.
type Module string

// Canonical modules.
const (
	ModuleDashboard      Module = "dashboard"
	ModuleInvoices       Module = "invoices"
	ModuleQuotations     Module = "quotations"
	ModuleCustomers      Module = "customers"
	ModuleVendors        Module = "vendors"
	ModuleProducts       Module = "products"
	ModuleInventory      Module = "inventory"
	ModulePurchaseOrders Module = "purchase_orders"
	ModulePayroll        Module = "payroll"
	ModuleReports        Module = "reports"
	ModuleSettings       Module = "settings"
	ModuleUsers          Module = "users"
)

var modules = []Module{
	ModuleDashboard,
	ModuleInvoices,
	ModuleQuotations,
	ModuleCustomers,
	ModuleVendors,
	ModuleProducts,
	ModuleInventory,
	ModulePurchaseOrders,
	ModulePayroll,
	ModuleReports,
	ModuleSettings,
	ModuleUsers,
}

var moduleSet = func() map[Module]struct{} {
	set := make(map[Module]struct{}, len(modules))
	for _, m := range modules {
		set[m] = struct{}{}
	}
	return set
}()

// moduleAliases tolerates historical naming drift in stored override keys.
var moduleAliases = map[string]Module{
	"invoice":         ModuleInvoices,
	"billing":         ModuleInvoices,
	"quotation":       ModuleQuotations,
	"quotes":          ModuleQuotations,
	"client":          ModuleCustomers,
	"clients":         ModuleCustomers,
	"customer":        ModuleCustomers,
	"vendor":          ModuleVendors,
	"suppliers":       ModuleVendors,
	"product":         ModuleProducts,
	"items":           ModuleProducts,
	"stock":           ModuleInventory,
	"purchase-orders": ModulePurchaseOrders,
	"purchase_order":  ModulePurchaseOrders,
	"po":              ModulePurchaseOrders,
	"staff":           ModuleUsers,
	"employees":       ModuleUsers,
	"report":          ModuleReports,
	"setting":         ModuleSettings,
	"home":            ModuleDashboard,
}

// Canonicalize resolves a raw module name to its canonical identifier.
// Unrecognized names resolve to themselves: an unknown module matches nothing
// in the default matrix, so lookups against it deny. Fail closed, not error.
func Canonicalize(raw string) Module {
	name := strings.ToLower(strings.TrimSpace(raw))
	if canonical, ok := moduleAliases[name]; ok {
		return canonical
	}
	return Module(name)
}

// KnownModule reports whether m is in the canonical module catalogue.
func KnownModule(m Module) bool {
	_, ok := moduleSet[m]
	return ok
}

// Modules returns the canonical module catalogue in registry order.
func Modules() []Module {
	out := make([]Module, len(modules))
	copy(out, modules)
	return out
}

// Aliases returns the registered alias strings for a module.
func Aliases(m Module) []string {
	var out []string
	for alias, canonical := range moduleAliases {
		if canonical == m {
			out = append(out, alias)
		}
	}
	sort.Strings(out)
	return out
}

var titleCaser = cases.Title(language.English)

// DisplayTitle renders a module identifier for UI listings.
func DisplayTitle(m Module) string {
	return titleCaser.String(strings.ReplaceAll(string(m), "_", " "))
}

// Action is one of the closed set of permission actions.
type Action string

// Permission actions. ActionManage is an umbrella: when granted it implies
// create, edit and delete. It is honored as a fallback during checks but is
// never offered as a standalone toggle to admin tooling.
const (
	ActionView   Action = "view"
	ActionCreate Action = "create"
	ActionEdit   Action = "edit"
	ActionDelete Action = "delete"
	ActionBulk   Action = "bulk"
	ActionImport Action = "import"
	ActionExport Action = "export"
	ActionManage Action = "manage"
)

var actions = []Action{
	ActionView,
	ActionCreate,
	ActionEdit,
	ActionDelete,
	ActionBulk,
	ActionImport,
	ActionExport,
	ActionManage,
}

var actionSet = func() map[Action]struct{} {
	set := make(map[Action]struct{}, len(actions))
	for _, a := range actions {
		set[a] = struct{}{}
	}
	return set
}()

// ValidAction reports whether a belongs to the closed action set.
func ValidAction(a Action) bool {
	_, ok := actionSet[a]
	return ok
}

// Actions returns the full closed action set, including manage.
func Actions() []Action {
	out := make([]Action, len(actions))
	copy(out, actions)
	return out
}

// EditableActions returns the actions exposed to admin tooling. Manage is
// excluded: it exists only as a stored umbrella, never as a toggle.
func EditableActions() []Action {
	out := make([]Action, 0, len(actions)-1)
	for _, a := range actions {
		if a != ActionManage {
			out = append(out, a)
		}
	}
	return out
}

// Key is the unit of permission storage and lookup: a (module, action) pair
// serialized as "module.action". Keys are canonicalized before comparison.
type Key struct {
	Module Module
	Action Action
}

// NewKey builds a canonicalized key from raw parts.
func NewKey(rawModule string, action Action) Key {
	return Key{Module: Canonicalize(rawModule), Action: action}
}

// String serializes the key in its storage form.
func (k Key) String() string {
	return string(k.Module) + "." + string(k.Action)
}

// ParseKey parses and canonicalizes a stored "module.action" key. The action
// part must belong to the closed action set.
func ParseKey(raw string) (Key, bool) {
	idx := strings.LastIndex(raw, ".")
	if idx <= 0 || idx == len(raw)-1 {
		return Key{}, false
	}
	action := Action(strings.ToLower(strings.TrimSpace(raw[idx+1:])))
	if !ValidAction(action) {
		return Key{}, false
	}
	return Key{Module: Canonicalize(raw[:idx]), Action: action}, true
}
