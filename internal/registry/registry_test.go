package registry

import "testing"

func TestRanksAreTotalOrder(t *testing.T) {
	roles := Roles()
	if len(roles) != 6 {
		t.Fatalf("expected 6 tenant roles got %d", len(roles))
	}
	seen := make(map[int]Role)
	prev := 0
	for i, role := range roles {
		rank, ok := Rank(role)
		if !ok {
			t.Fatalf("role %s has no rank", role)
		}
		if other, dup := seen[rank]; dup {
			t.Fatalf("roles %s and %s share rank %d", role, other, rank)
		}
		seen[rank] = role
		if i > 0 && rank >= prev {
			t.Fatalf("Roles() not ordered by descending rank at %s", role)
		}
		prev = rank
	}
}

func TestAtLeast(t *testing.T) {
	if !AtLeast(RoleManager, RoleSales) {
		t.Fatalf("manager should rank at least sales")
	}
	if AtLeast(RoleEmployee, RoleAccounts) {
		t.Fatalf("employee should not rank at least accounts")
	}
	if !AtLeast(RoleOwner, RoleOwner) {
		t.Fatalf("role should satisfy its own minimum")
	}
	if AtLeast(Role("intern"), RoleEmployee) {
		t.Fatalf("unknown role must not satisfy any minimum")
	}
	if AtLeast(RoleOwner, Role("intern")) {
		t.Fatalf("unknown minimum must never be satisfied")
	}
}

func TestParseRole(t *testing.T) {
	role, ok := ParseRole("  Accounts ")
	if !ok || role != RoleAccounts {
		t.Fatalf("expected accounts got %q ok=%v", role, ok)
	}
	if _, ok := ParseRole("superhero"); ok {
		t.Fatalf("unknown role should not parse")
	}
}

func TestCanonicalizeAliasRoundTrip(t *testing.T) {
	for _, m := range Modules() {
		if Canonicalize(string(m)) != m {
			t.Fatalf("canonical form %s must canonicalize to itself", m)
		}
		for _, alias := range Aliases(m) {
			if Canonicalize(alias) != Canonicalize(string(m)) {
				t.Fatalf("alias %s should resolve to %s", alias, m)
			}
		}
	}
}

func TestCanonicalizeUnknownResolvesToItself(t *testing.T) {
	m := Canonicalize("Timesheets")
	if m != Module("timesheets") {
		t.Fatalf("unknown module should resolve to its lowercase self, got %s", m)
	}
	if KnownModule(m) {
		t.Fatalf("timesheets must not be a known module")
	}
	// Unknown modules match nothing in the matrix.
	if DefaultAllows(RoleManager, m, ActionView) {
		t.Fatalf("unknown module must deny by default")
	}
}

func TestKeySerialization(t *testing.T) {
	k := NewKey("Clients", ActionDelete)
	if k.Module != ModuleCustomers {
		t.Fatalf("expected customers module got %s", k.Module)
	}
	if k.String() != "customers.delete" {
		t.Fatalf("unexpected key form %s", k.String())
	}
	parsed, ok := ParseKey("client.delete")
	if !ok {
		t.Fatalf("expected alias key to parse")
	}
	if parsed != k {
		t.Fatalf("alias key should canonicalize to %s got %s", k, parsed)
	}
	if _, ok := ParseKey("customers"); ok {
		t.Fatalf("key without action must not parse")
	}
	if _, ok := ParseKey("customers.fly"); ok {
		t.Fatalf("unknown action must not parse")
	}
}

func TestEditableActionsExcludeManage(t *testing.T) {
	for _, a := range EditableActions() {
		if a == ActionManage {
			t.Fatalf("manage must not be offered as a toggle")
		}
	}
	if len(EditableActions()) != len(Actions())-1 {
		t.Fatalf("editable actions should be all actions minus manage")
	}
}

func TestDisplayTitle(t *testing.T) {
	if got := DisplayTitle(ModulePurchaseOrders); got != "Purchase Orders" {
		t.Fatalf("unexpected title %q", got)
	}
}
