package permcache

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/vantage-erp/vantage-authz/internal/registry"
	"github.com/vantage-erp/vantage-authz/internal/shared"
)

func salesIdentity() shared.Identity {
	return shared.Identity{
		UserID:     "u-1",
		TenantID:   uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8"),
		TenantRole: registry.RoleSales,
	}
}

func TestNilSnapshotDeniesEverything(t *testing.T) {
	var s *Snapshot
	if s.CanPerform("invoices", registry.ActionView) {
		t.Fatalf("nil snapshot must deny")
	}
	if s.HasAnyPermission() {
		t.Fatalf("nil snapshot must report no permissions")
	}
	if mods := s.AccessibleModules(); mods != nil {
		t.Fatalf("nil snapshot must list no modules, got %v", mods)
	}
}

func TestDefaultsApplyWithoutOverride(t *testing.T) {
	snap := NewSnapshot(salesIdentity(), nil, time.Now())
	// Scenario A: no override for customers.delete, matrix denies sales.
	if snap.CanPerform("customers", registry.ActionDelete) {
		t.Fatalf("sales must not delete customers without an override")
	}
	if !snap.CanPerform("customers", registry.ActionView) {
		t.Fatalf("sales views customers by default")
	}
}

func TestOverridePrecedence(t *testing.T) {
	overrides := map[registry.Key]bool{
		{Module: registry.ModuleCustomers, Action: registry.ActionDelete}: true,
		{Module: registry.ModuleCustomers, Action: registry.ActionView}:  false,
	}
	snap := NewSnapshot(salesIdentity(), overrides, time.Now())
	if !snap.CanPerform("customers", registry.ActionDelete) {
		t.Fatalf("override grant must win over default deny")
	}
	if snap.CanPerform("customers", registry.ActionView) {
		t.Fatalf("override deny must win over default grant")
	}
	// Alias lookups hit the same canonical key.
	if !snap.CanPerform("clients", registry.ActionDelete) {
		t.Fatalf("alias module must resolve to the overridden key")
	}
}

func TestManageOverrideUmbrella(t *testing.T) {
	overrides := map[registry.Key]bool{
		{Module: registry.ModuleQuotations, Action: registry.ActionManage}: false,
	}
	snap := NewSnapshot(salesIdentity(), overrides, time.Now())
	// Default manage grant for sales on quotations is revoked by the
	// explicit manage override.
	if snap.CanPerform("quotations", registry.ActionEdit) {
		t.Fatalf("manage override deny must cover edit")
	}
	// View is not under the umbrella and keeps its default.
	if !snap.CanPerform("quotations", registry.ActionView) {
		t.Fatalf("manage override must not affect view")
	}
}

func TestBypassShortCircuits(t *testing.T) {
	ident := salesIdentity()
	ident.PlatformRole = registry.PlatformAdmin
	overrides := map[registry.Key]bool{
		{Module: registry.ModuleInvoices, Action: registry.ActionView}: false,
	}
	snap := NewSnapshot(ident, overrides, time.Now())
	if !snap.CanPerform("invoices", registry.ActionView) {
		t.Fatalf("platform bypass must precede overrides")
	}
	if !snap.CanPerform("nonexistent", registry.ActionDelete) {
		t.Fatalf("platform bypass must precede the module lookup")
	}
}

func TestOwnerAlwaysHasEveryPermission(t *testing.T) {
	ident := salesIdentity()
	ident.TenantRole = registry.RoleOwner
	// Stored deny rows, exact and umbrella, must never reach the owner.
	overrides := map[registry.Key]bool{
		{Module: registry.ModulePayroll, Action: registry.ActionView}:    false,
		{Module: registry.ModuleInvoices, Action: registry.ActionManage}: false,
	}
	snap := NewSnapshot(ident, overrides, time.Now())
	for _, m := range registry.Modules() {
		for _, a := range registry.Actions() {
			if !snap.CanPerform(string(m), a) {
				t.Fatalf("owner denied %s.%s", m, a)
			}
		}
	}
}

func TestMaterialDiff(t *testing.T) {
	ident := salesIdentity()
	now := time.Now()
	base := map[registry.Key]bool{
		{Module: registry.ModuleInvoices, Action: registry.ActionView}: true,
	}
	a := NewSnapshot(ident, base, now)
	b := NewSnapshot(ident, base, now.Add(time.Minute))
	if MaterialDiff(a, b) {
		t.Fatalf("identical content must not diff, regardless of BuiltAt")
	}

	flipped := map[registry.Key]bool{
		{Module: registry.ModuleInvoices, Action: registry.ActionView}: false,
	}
	if !MaterialDiff(a, NewSnapshot(ident, flipped, now)) {
		t.Fatalf("flipped value must diff")
	}

	// Like-for-like swap: same count, different keys.
	swapped := map[registry.Key]bool{
		{Module: registry.ModulePayroll, Action: registry.ActionView}: true,
	}
	if !MaterialDiff(a, NewSnapshot(ident, swapped, now)) {
		t.Fatalf("key swap with equal count must diff")
	}

	if !MaterialDiff(nil, a) || !MaterialDiff(a, nil) {
		t.Fatalf("nil versus snapshot must diff")
	}
	if MaterialDiff(nil, nil) {
		t.Fatalf("nil versus nil must not diff")
	}
}

func TestSnapshotCopiesOverrideMap(t *testing.T) {
	overrides := map[registry.Key]bool{
		{Module: registry.ModuleInvoices, Action: registry.ActionView}: false,
	}
	snap := NewSnapshot(salesIdentity(), overrides, time.Now())
	overrides[registry.Key{Module: registry.ModuleInvoices, Action: registry.ActionView}] = true
	if snap.CanPerform("invoices", registry.ActionView) {
		t.Fatalf("snapshot must not observe caller map mutation")
	}
}
