package registry

import "testing"

func TestOwnerBypassesMatrix(t *testing.T) {
	for _, m := range Modules() {
		for _, a := range Actions() {
			if !DefaultAllows(RoleOwner, m, a) {
				t.Fatalf("owner must be allowed %s.%s regardless of matrix contents", m, a)
			}
		}
	}
	// Even against modules the matrix has never heard of.
	if !DefaultAllows(RoleOwner, Module("timesheets"), ActionDelete) {
		t.Fatalf("owner bypass must precede the module lookup")
	}
}

func TestManageUmbrellaFallback(t *testing.T) {
	// invoices has no explicit create entry; manage covers it for accounts.
	if !DefaultAllows(RoleAccounts, ModuleInvoices, ActionCreate) {
		t.Fatalf("manage grant should imply create")
	}
	if !DefaultAllows(RoleAccounts, ModuleInvoices, ActionEdit) {
		t.Fatalf("manage grant should imply edit")
	}
	if !DefaultAllows(RoleAccounts, ModuleInvoices, ActionDelete) {
		t.Fatalf("manage grant should imply delete")
	}
	// The umbrella never extends to view/export style actions.
	if DefaultAllows(RoleSales, ModuleInvoices, ActionCreate) {
		t.Fatalf("sales has no manage grant on invoices")
	}
}

func TestExplicitEntryWinsOverUmbrella(t *testing.T) {
	// customers spells out create/edit/delete, so the umbrella is not
	// consulted: sales may create but not delete.
	if !DefaultAllows(RoleSales, ModuleCustomers, ActionCreate) {
		t.Fatalf("sales should create customers by default")
	}
	if DefaultAllows(RoleSales, ModuleCustomers, ActionDelete) {
		t.Fatalf("sales must not delete customers by default")
	}
}

func TestMatrixDeniesOutsideGrants(t *testing.T) {
	if DefaultAllows(RoleEmployee, ModuleSettings, ActionView) {
		t.Fatalf("employee must not view settings by default")
	}
	if DefaultAllows(RoleDesigner, ModulePayroll, ActionView) {
		t.Fatalf("designer must not view payroll by default")
	}
	if !DefaultAllows(RoleEmployee, ModuleDashboard, ActionView) {
		t.Fatalf("every ranked role sees the dashboard by default")
	}
}

func TestUmbrellaActionSet(t *testing.T) {
	for _, a := range []Action{ActionCreate, ActionEdit, ActionDelete} {
		if !UmbrellaAction(a) {
			t.Fatalf("%s should fall back to manage", a)
		}
	}
	for _, a := range []Action{ActionView, ActionBulk, ActionImport, ActionExport, ActionManage} {
		if UmbrellaAction(a) {
			t.Fatalf("%s must not fall back to manage", a)
		}
	}
}
