package registry

// defaultMatrix is the fallback permission source used when a tenant has not
// overridden a key. module x action -> roles allowed by default. Owner is
// intentionally absent: it bypasses the matrix entirely, as does the
// platform super-role. Changing this table requires a deployment.
var defaultMatrix = map[Module]map[Action][]Role{
	ModuleDashboard: {
		ActionView: {RoleManager, RoleAccounts, RoleSales, RoleDesigner, RoleEmployee},
	},
	ModuleInvoices: {
		ActionView:   {RoleManager, RoleAccounts, RoleSales},
		ActionManage: {RoleManager, RoleAccounts},
		ActionBulk:   {RoleManager, RoleAccounts},
		ActionExport: {RoleManager, RoleAccounts},
	},
	ModuleQuotations: {
		ActionView:   {RoleManager, RoleAccounts, RoleSales},
		ActionManage: {RoleManager, RoleSales},
		ActionExport: {RoleManager, RoleSales},
	},
	ModuleCustomers: {
		ActionView:   {RoleManager, RoleAccounts, RoleSales},
		ActionCreate: {RoleManager, RoleSales},
		ActionEdit:   {RoleManager, RoleSales},
		ActionDelete: {RoleManager},
		ActionImport: {RoleManager},
		ActionExport: {RoleManager, RoleAccounts},
	},
	ModuleVendors: {
		ActionView:   {RoleManager, RoleAccounts},
		ActionManage: {RoleManager, RoleAccounts},
	},
	ModuleProducts: {
		ActionView:   {RoleManager, RoleAccounts, RoleSales, RoleDesigner},
		ActionManage: {RoleManager, RoleDesigner},
		ActionImport: {RoleManager},
		ActionExport: {RoleManager},
	},
	ModuleInventory: {
		ActionView:   {RoleManager, RoleAccounts, RoleDesigner},
		ActionManage: {RoleManager},
		ActionBulk:   {RoleManager},
	},
	ModulePurchaseOrders: {
		ActionView:   {RoleManager, RoleAccounts},
		ActionManage: {RoleManager, RoleAccounts},
		ActionExport: {RoleManager, RoleAccounts},
	},
	ModulePayroll: {
		ActionView:   {RoleManager, RoleAccounts},
		ActionManage: {RoleAccounts},
		ActionExport: {RoleAccounts},
	},
	ModuleReports: {
		ActionView:   {RoleManager, RoleAccounts},
		ActionExport: {RoleManager, RoleAccounts},
	},
	ModuleSettings: {
		ActionView: {RoleManager},
		ActionEdit: {RoleManager},
	},
	ModuleUsers: {
		ActionView:   {RoleManager},
		ActionManage: {RoleManager},
	},
}

// umbrellaActions fall back to a manage grant for the same module.
var umbrellaActions = map[Action]struct{}{
	ActionCreate: {},
	ActionEdit:   {},
	ActionDelete: {},
}

// DefaultAllows reports whether the default matrix grants role the action on
// module. The owner role short-circuits to true before any lookup so that no
// matrix misconfiguration can lock out a tenant's owner. Unknown modules
// match nothing and deny.
func DefaultAllows(role Role, module Module, action Action) bool {
	if role == RoleOwner {
		return true
	}
	byAction, ok := defaultMatrix[module]
	if !ok {
		return false
	}
	if allowed, ok := byAction[action]; ok {
		return containsRole(allowed, role)
	}
	if _, ok := umbrellaActions[action]; ok {
		if managed, ok := byAction[ActionManage]; ok {
			return containsRole(managed, role)
		}
	}
	return false
}

// UmbrellaAction reports whether action falls back to a manage grant.
func UmbrellaAction(action Action) bool {
	_, ok := umbrellaActions[action]
	return ok
}

func containsRole(roles []Role, role Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
