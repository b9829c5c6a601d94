// Package authz holds the static permission catalog and the pure evaluators
// over it. All checks are lookups against immutable role tables; absent
// roles or memberships evaluate to false, never to an error.
package authz

// Permission names one capability. System and project permissions live in
// disjoint namespaces and are granted through different role tables.
type Permission string

// System permissions, granted via a principal's SystemRole.
const (
	PermUsersView        Permission = "users:view"
	PermUsersCreate      Permission = "users:create"
	PermUsersEdit        Permission = "users:edit"
	PermUsersDelete      Permission = "users:delete"
	PermOrgsView         Permission = "organisations:view"
	PermOrgsCreate       Permission = "organisations:create"
	PermOrgsEdit         Permission = "organisations:edit"
	PermOrgsDelete       Permission = "organisations:delete"
	PermPlatformManage   Permission = "platform:manage"
	PermPlatformSettings Permission = "platform:settings"
)

// Project permissions, granted via a membership's ProjectRole.
const (
	PermProjectView Permission = "project:view"
	PermProjectEdit Permission = "project:edit"

	PermTimeEntriesView   Permission = "time-entries:view"
	PermTimeEntriesCreate Permission = "time-entries:create"
	PermTimeEntriesEdit   Permission = "time-entries:edit"
	PermTimeEntriesDelete Permission = "time-entries:delete"

	PermEntriesApprove  Permission = "entries:approve"
	PermEntriesQuestion Permission = "entries:question"

	PermTimeSheetsView   Permission = "time-sheets:view"
	PermTimeSheetsCreate Permission = "time-sheets:create"
	PermTimeSheetsEdit   Permission = "time-sheets:edit"
	PermTimeSheetsDelete Permission = "time-sheets:delete"
	PermTimeSheetsSubmit Permission = "time-sheets:submit"

	PermTimeSheetsApprove Permission = "time-sheets:approve"
	PermTimeSheetsReject  Permission = "time-sheets:reject"
	PermTimeSheetsRevert  Permission = "time-sheets:revert"

	PermMessagesView     Permission = "messages:view"
	PermMessagesCreate   Permission = "messages:create"
	PermMessagesModerate Permission = "messages:moderate"

	PermApprovalSettingsView Permission = "approval-settings:view"
	PermApprovalSettingsEdit Permission = "approval-settings:edit"

	PermMembersView   Permission = "members:view"
	PermMembersManage Permission = "members:manage"
	PermInvitesSend   Permission = "invites:send"
)

// SystemRolePermissions maps each system role to its fixed permission set.
// Admin deliberately lacks user deletion and platform management.
var SystemRolePermissions = map[SystemRole][]Permission{
	SystemRoleSuperAdmin: {
		PermUsersView, PermUsersCreate, PermUsersEdit, PermUsersDelete,
		PermOrgsView, PermOrgsCreate, PermOrgsEdit, PermOrgsDelete,
		PermPlatformManage, PermPlatformSettings,
	},
	SystemRoleAdmin: {
		PermUsersView, PermUsersCreate, PermUsersEdit,
		PermOrgsView, PermOrgsCreate, PermOrgsEdit, PermOrgsDelete,
		PermPlatformSettings,
	},
}

// ProjectRolePermissions maps each project role to its fixed permission set.
// Every role can view its project. Viewer is read-only; client can invite
// contacts but cannot log time.
var ProjectRolePermissions = map[ProjectRole][]Permission{
	RoleOwner: {
		PermProjectView, PermProjectEdit,
		PermTimeEntriesView, PermTimeEntriesCreate, PermTimeEntriesEdit, PermTimeEntriesDelete,
		PermEntriesApprove, PermEntriesQuestion,
		PermTimeSheetsView, PermTimeSheetsCreate, PermTimeSheetsEdit, PermTimeSheetsDelete,
		PermTimeSheetsSubmit, PermTimeSheetsApprove, PermTimeSheetsReject, PermTimeSheetsRevert,
		PermMessagesView, PermMessagesCreate, PermMessagesModerate,
		PermApprovalSettingsView, PermApprovalSettingsEdit,
		PermMembersView, PermMembersManage, PermInvitesSend,
	},
	RoleExpert: {
		PermProjectView,
		PermTimeEntriesView, PermTimeEntriesCreate, PermTimeEntriesEdit, PermTimeEntriesDelete,
		PermEntriesApprove, PermEntriesQuestion,
		PermTimeSheetsView, PermTimeSheetsCreate, PermTimeSheetsEdit,
		PermTimeSheetsSubmit, PermTimeSheetsApprove, PermTimeSheetsRevert,
		PermMessagesView, PermMessagesCreate,
		PermMembersView,
	},
	RoleReviewer: {
		PermProjectView,
		PermTimeEntriesView,
		PermEntriesApprove, PermEntriesQuestion,
		PermTimeSheetsView, PermTimeSheetsApprove, PermTimeSheetsReject, PermTimeSheetsRevert,
		PermMessagesView, PermMessagesCreate,
		PermApprovalSettingsView,
		PermMembersView,
	},
	RoleClient: {
		PermProjectView,
		PermTimeEntriesView,
		PermEntriesApprove, PermEntriesQuestion,
		PermTimeSheetsView, PermTimeSheetsApprove, PermTimeSheetsReject, PermTimeSheetsRevert,
		PermMessagesView, PermMessagesCreate,
		PermMembersView, PermInvitesSend,
	},
	RoleViewer: {
		PermProjectView,
		PermTimeEntriesView,
		PermTimeSheetsView,
	},
}

// HasSystemPermission reports whether the principal's system role grants the
// permission. Principals without a system role hold no system permissions.
func HasSystemPermission(p Principal, perm Permission) bool {
	perms, ok := SystemRolePermissions[p.SystemRole]
	if !ok {
		return false
	}
	return contains(perms, perm)
}

// HasProjectPermission reports whether a project role grants the permission.
func HasProjectPermission(role ProjectRole, perm Permission) bool {
	perms, ok := ProjectRolePermissions[role]
	if !ok {
		return false
	}
	return contains(perms, perm)
}

// CanOnProject answers "may this principal do perm on this project". System
// admins short-circuit to true; everyone else needs a membership whose role
// grants the permission.
func CanOnProject(p Principal, m *Membership, perm Permission) bool {
	if p.IsSystemAdmin() {
		return true
	}
	if m == nil {
		return false
	}
	return HasProjectPermission(m.Role, perm)
}

// HasAnyProjectPermission reports whether the role grants at least one of the
// given permissions.
func HasAnyProjectPermission(role ProjectRole, perms ...Permission) bool {
	for _, perm := range perms {
		if HasProjectPermission(role, perm) {
			return true
		}
	}
	return false
}

func contains(perms []Permission, perm Permission) bool {
	for _, p := range perms {
		if p == perm {
			return true
		}
	}
	return false
}
