package authz

// SystemRole is a platform-wide role independent of any project.
type SystemRole string

const (
	SystemRoleSuperAdmin SystemRole = "super_admin"
	SystemRoleAdmin      SystemRole = "admin"
)

// ProjectRole scopes permissions to one project membership.
type ProjectRole string

const (
	RoleOwner    ProjectRole = "owner"
	RoleExpert   ProjectRole = "expert"
	RoleReviewer ProjectRole = "reviewer"
	RoleClient   ProjectRole = "client"
	RoleViewer   ProjectRole = "viewer"
)

// Principal is an authenticated user identity. SystemRole is empty for
// regular users.
type Principal struct {
	ID         string
	SystemRole SystemRole
}

// IsSystemAdmin reports whether the principal holds a platform admin role.
func (p Principal) IsSystemAdmin() bool {
	return p.SystemRole == SystemRoleSuperAdmin || p.SystemRole == SystemRoleAdmin
}

// Membership is one user's role on one project. At most one membership
// exists per (project, user) pair.
type Membership struct {
	UserID string
	Role   ProjectRole
}

// Roster is the full membership list of a project.
type Roster []Membership

// HasRole reports whether any member holds the given role.
func (r Roster) HasRole(role ProjectRole) bool {
	for _, m := range r {
		if m.Role == role {
			return true
		}
	}
	return false
}

// Find returns the membership for a user, or nil.
func (r Roster) Find(userID string) *Membership {
	for i := range r {
		if r[i].UserID == userID {
			return &r[i]
		}
	}
	return nil
}

// ParseSystemRole converts a raw role string, returning "" for anything
// unknown so absent or malformed roles degrade to no privilege.
func ParseSystemRole(raw string) SystemRole {
	switch SystemRole(raw) {
	case SystemRoleSuperAdmin, SystemRoleAdmin:
		return SystemRole(raw)
	}
	return ""
}

// ValidProjectRole reports whether raw names a known project role.
func ValidProjectRole(raw string) bool {
	switch ProjectRole(raw) {
	case RoleOwner, RoleExpert, RoleReviewer, RoleClient, RoleViewer:
		return true
	}
	return false
}
