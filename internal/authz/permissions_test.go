package authz

import "testing"

func TestEveryProjectRoleCanViewProject(t *testing.T) {
	for role, perms := range ProjectRolePermissions {
		found := false
		for _, p := range perms {
			if p == PermProjectView {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("role %s is missing %s", role, PermProjectView)
		}
	}
}

func TestViewerPermissionSetIsExact(t *testing.T) {
	want := map[Permission]bool{
		PermProjectView:     true,
		PermTimeEntriesView: true,
		PermTimeSheetsView:  true,
	}

	got := ProjectRolePermissions[RoleViewer]
	if len(got) != len(want) {
		t.Fatalf("viewer has %d permissions, want %d: %v", len(got), len(want), got)
	}
	for _, p := range got {
		if !want[p] {
			t.Errorf("viewer unexpectedly holds %s", p)
		}
	}
}

func TestClientCanInviteButNotLogTime(t *testing.T) {
	if !HasProjectPermission(RoleClient, PermInvitesSend) {
		t.Error("client should be able to send invites")
	}
	if HasProjectPermission(RoleClient, PermTimeEntriesCreate) {
		t.Error("client should not be able to create time entries")
	}
}

func TestHasSystemPermission(t *testing.T) {
	tests := []struct {
		name string
		p    Principal
		perm Permission
		want bool
	}{
		{name: "super admin can delete users", p: Principal{ID: "u1", SystemRole: SystemRoleSuperAdmin}, perm: PermUsersDelete, want: true},
		{name: "admin cannot delete users", p: Principal{ID: "u1", SystemRole: SystemRoleAdmin}, perm: PermUsersDelete, want: false},
		{name: "admin cannot manage platform", p: Principal{ID: "u1", SystemRole: SystemRoleAdmin}, perm: PermPlatformManage, want: false},
		{name: "admin can edit orgs", p: Principal{ID: "u1", SystemRole: SystemRoleAdmin}, perm: PermOrgsEdit, want: true},
		{name: "no system role holds nothing", p: Principal{ID: "u1"}, perm: PermUsersView, want: false},
		{name: "unknown role holds nothing", p: Principal{ID: "u1", SystemRole: "root"}, perm: PermUsersView, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasSystemPermission(tt.p, tt.perm); got != tt.want {
				t.Errorf("HasSystemPermission(%s, %s) = %v, want %v", tt.p.SystemRole, tt.perm, got, tt.want)
			}
		})
	}
}

func TestCanOnProject(t *testing.T) {
	expert := &Membership{UserID: "u2", Role: RoleExpert}

	tests := []struct {
		name string
		p    Principal
		m    *Membership
		perm Permission
		want bool
	}{
		{name: "super admin bypasses membership", p: Principal{ID: "a", SystemRole: SystemRoleSuperAdmin}, m: nil, perm: PermApprovalSettingsEdit, want: true},
		{name: "admin bypasses membership", p: Principal{ID: "a", SystemRole: SystemRoleAdmin}, m: nil, perm: PermTimeSheetsDelete, want: true},
		{name: "no membership denies", p: Principal{ID: "u2"}, m: nil, perm: PermProjectView, want: false},
		{name: "expert can approve entries", p: Principal{ID: "u2"}, m: expert, perm: PermEntriesApprove, want: true},
		{name: "expert cannot reject sheets", p: Principal{ID: "u2"}, m: expert, perm: PermTimeSheetsReject, want: false},
		{name: "unknown membership role denies", p: Principal{ID: "u2"}, m: &Membership{UserID: "u2", Role: "manager"}, perm: PermProjectView, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanOnProject(tt.p, tt.m, tt.perm); got != tt.want {
				t.Errorf("CanOnProject() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHasAnyProjectPermission(t *testing.T) {
	if !HasAnyProjectPermission(RoleViewer, PermTimeSheetsApprove, PermProjectView) {
		t.Error("viewer holds project:view, want true")
	}
	if HasAnyProjectPermission(RoleViewer, PermTimeSheetsApprove, PermEntriesQuestion) {
		t.Error("viewer holds neither permission, want false")
	}
}

func TestRosterHelpers(t *testing.T) {
	roster := Roster{
		{UserID: "u1", Role: RoleOwner},
		{UserID: "u2", Role: RoleExpert},
	}

	if roster.HasRole(RoleClient) {
		t.Error("roster has no client, want false")
	}
	roster = append(roster, Membership{UserID: "u3", Role: RoleClient})
	if !roster.HasRole(RoleClient) {
		t.Error("roster has a client, want true")
	}

	if m := roster.Find("u2"); m == nil || m.Role != RoleExpert {
		t.Errorf("Find(u2) = %v, want expert membership", m)
	}
	if m := roster.Find("missing"); m != nil {
		t.Errorf("Find(missing) = %v, want nil", m)
	}
}

func TestParseSystemRole(t *testing.T) {
	tests := []struct {
		raw  string
		want SystemRole
	}{
		{raw: "super_admin", want: SystemRoleSuperAdmin},
		{raw: "admin", want: SystemRoleAdmin},
		{raw: "", want: ""},
		{raw: "owner", want: ""},
	}
	for _, tt := range tests {
		if got := ParseSystemRole(tt.raw); got != tt.want {
			t.Errorf("ParseSystemRole(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}
