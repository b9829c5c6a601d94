package workflow

import (
	"time"

	"github.com/tempora-hq/be-tt-timesheets/internal/authz"
)

// EntrySnapshot is the slice of a time entry the entry state machine needs.
type EntrySnapshot struct {
	CreatedBy string
	Status    EntryStatus
}

// CanApproveEntry decides whether the principal may approve a time entry.
// System admins bypass the role gates. An expert may not approve their own
// entry while the project has a client member; without a client, experts may
// approve any entry including their own.
func CanApproveEntry(p authz.Principal, m *authz.Membership, roster authz.Roster, entry EntrySnapshot) Decision {
	if p.IsSystemAdmin() {
		return allow()
	}
	if m == nil {
		return deny("You are not a member of this project.")
	}
	if !authz.HasProjectPermission(m.Role, authz.PermEntriesApprove) {
		return deny("You do not have permission to approve time entries.")
	}
	if m.Role == authz.RoleExpert && roster.HasRole(authz.RoleClient) && entry.CreatedBy == p.ID {
		return deny("Experts cannot approve their own entries while a client is on the project.")
	}
	return allow()
}

// CanQuestionEntry decides whether the principal may question a time entry.
// No self-approval restriction applies to questioning.
func CanQuestionEntry(p authz.Principal, m *authz.Membership) Decision {
	if p.IsSystemAdmin() {
		return allow()
	}
	if m == nil {
		return deny("You are not a member of this project.")
	}
	if !authz.HasProjectPermission(m.Role, authz.PermEntriesQuestion) {
		return deny("You do not have permission to question time entries.")
	}
	return allow()
}

// CanRevertEntry gates the plain revert-to-pending status write behind the
// general entry-edit permission.
func CanRevertEntry(p authz.Principal, m *authz.Membership) Decision {
	if authz.CanOnProject(p, m, authz.PermTimeEntriesEdit) {
		return allow()
	}
	return deny("You do not have permission to edit time entries.")
}

// MirrorChange is the write applied to the sheet-link approval mirror
// alongside an entry transition. Cleared mirrors carry nil actor/timestamp
// and revoke the mark on every sheet the entry is linked to; an approval
// stamps only the sheet in context.
type MirrorChange struct {
	Approved bool
	By       *string
	At       *time.Time
}

// EntryStatusChange is the full set of field writes one entry transition
// produces. The entry status write and the mirror write must be persisted in
// the same transaction so the global status and the sheet-scoped mirror
// never diverge.
type EntryStatusChange struct {
	Status          EntryStatus
	StatusChangedBy string
	StatusChangedAt time.Time
	ApprovedDate    *time.Time
	Mirror          MirrorChange
}

// ApproveEntryChange builds the writes for approving an entry: status
// approved, approvedDate set, mirror set with matching actor and timestamp.
func ApproveEntryChange(actorID string, now time.Time) EntryStatusChange {
	return EntryStatusChange{
		Status:          EntryApproved,
		StatusChangedBy: actorID,
		StatusChangedAt: now,
		ApprovedDate:    &now,
		Mirror:          MirrorChange{Approved: true, By: &actorID, At: &now},
	}
}

// QuestionEntryChange builds the writes for questioning an entry. Questioning
// always clears approvedDate and revokes any prior sheet-level approval mark.
func QuestionEntryChange(actorID string, now time.Time) EntryStatusChange {
	return EntryStatusChange{
		Status:          EntryQuestioned,
		StatusChangedBy: actorID,
		StatusChangedAt: now,
		ApprovedDate:    nil,
		Mirror:          MirrorChange{Approved: false},
	}
}

// RevertEntryChange builds the writes for returning an entry to pending.
func RevertEntryChange(actorID string, now time.Time) EntryStatusChange {
	return EntryStatusChange{
		Status:          EntryPending,
		StatusChangedBy: actorID,
		StatusChangedAt: now,
		ApprovedDate:    nil,
		Mirror:          MirrorChange{Approved: false},
	}
}
