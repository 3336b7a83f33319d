package rbac

// Role constants
const (
	RoleOwner     = "owner"
	RoleTreasurer = "treasurer"
	RoleRegistrar = "registrar"
)

// Permission constants
const (
	PermSetFees        = "set_fees"
	PermSetAssets      = "set_assets"
	PermCreditAccounts = "credit_accounts"
	PermViewSettings   = "view_settings"
)

// RolePermissions defines what each admin role can do.
var RolePermissions = map[string][]string{
	RoleOwner: {
		PermSetFees, PermSetAssets, PermCreditAccounts, PermViewSettings,
	},
	RoleTreasurer: {
		PermSetFees, PermCreditAccounts, PermViewSettings,
		// Treasurer CANNOT: PermSetAssets
	},
	RoleRegistrar: {
		PermSetAssets, PermViewSettings,
	},
}

// HasPermission checks if a role has a specific permission.
func HasPermission(role, permission string) bool {
	perms, ok := RolePermissions[role]
	if !ok {
		return false
	}
	for _, p := range perms {
		if p == permission {
			return true
		}
	}
	return false
}

// IsFinancialOperation reports whether permission moves or prices funds.
func IsFinancialOperation(permission string) bool {
	return permission == PermSetFees || permission == PermCreditAccounts
}
