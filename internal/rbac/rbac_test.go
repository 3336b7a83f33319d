package rbac

import "testing"

func TestHasPermission(t *testing.T) {
	tests := []struct {
		role string
		perm string
		want bool
	}{
		{RoleOwner, PermSetFees, true},
		{RoleOwner, PermSetAssets, true},
		{RoleTreasurer, PermCreditAccounts, true},
		{RoleTreasurer, PermSetAssets, false},
		{RoleRegistrar, PermSetAssets, true},
		{RoleRegistrar, PermSetFees, false},
		{"", PermViewSettings, false},
		{"unknown", PermSetFees, false},
	}

	for _, tt := range tests {
		if got := HasPermission(tt.role, tt.perm); got != tt.want {
			t.Errorf("HasPermission(%q, %q) = %v, want %v", tt.role, tt.perm, got, tt.want)
		}
	}
}

func TestIsFinancialOperation(t *testing.T) {
	if !IsFinancialOperation(PermCreditAccounts) || !IsFinancialOperation(PermSetFees) {
		t.Error("fee and credit permissions must be financial")
	}
	if IsFinancialOperation(PermSetAssets) {
		t.Error("asset allowlist is not financial")
	}
}
