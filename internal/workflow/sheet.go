package workflow

import (
	"time"

	"github.com/tempora-hq/be-tt-timesheets/internal/authz"
)

// SheetSnapshot is the slice of a time sheet the workflow rules need.
type SheetSnapshot struct {
	Status SheetStatus
}

// CanSubmitTimeSheet gates submission: only draft sheets can be submitted,
// behind the general sheet-submit permission.
func CanSubmitTimeSheet(p authz.Principal, m *authz.Membership, sheet SheetSnapshot) Decision {
	if sheet.Status != SheetDraft {
		return deny("Only draft time sheets can be submitted.")
	}
	if authz.CanOnProject(p, m, authz.PermTimeSheetsSubmit) {
		return allow()
	}
	return deny("You do not have permission to submit time sheets.")
}

// CanApproveTimeSheet decides whether the principal may approve a submitted
// time sheet. The submitted-status precondition applies to everyone, system
// admins included; admins bypass only the role gates. Experts may approve
// only when the project has no client member.
func CanApproveTimeSheet(p authz.Principal, m *authz.Membership, roster authz.Roster, sheet SheetSnapshot) Decision {
	if sheet.Status != SheetSubmitted {
		return deny("Time sheet is not submitted.")
	}
	if p.IsSystemAdmin() {
		return allow()
	}
	if m == nil {
		return deny("You are not a member of this project.")
	}
	if !authz.HasProjectPermission(m.Role, authz.PermTimeSheetsApprove) {
		return deny("You do not have permission to approve time sheets.")
	}
	if m.Role == authz.RoleExpert && roster.HasRole(authz.RoleClient) {
		return deny("A client must review this time sheet before it can be approved.")
	}
	return allow()
}

// CanRejectTimeSheet decides whether the principal may reject a submitted
// time sheet. Experts can never reject and are pointed at revert instead.
func CanRejectTimeSheet(p authz.Principal, m *authz.Membership, sheet SheetSnapshot) Decision {
	if m != nil && m.Role == authz.RoleExpert && !p.IsSystemAdmin() {
		return deny("Experts cannot reject time sheets. Use 'Revert to Draft' instead.")
	}
	if sheet.Status != SheetSubmitted {
		return deny("Time sheet is not submitted.")
	}
	if p.IsSystemAdmin() {
		return allow()
	}
	if m == nil {
		return deny("You are not a member of this project.")
	}
	if !authz.HasProjectPermission(m.Role, authz.PermTimeSheetsReject) {
		return deny("You do not have permission to reject time sheets.")
	}
	return allow()
}

// CanRevertToDraft decides whether the principal may return a sheet to draft.
// Allowed from submitted, approved or rejected only. An expert may revert
// only while no client or reviewer has interacted with the sheet;
// hasClientInteraction is derived by the caller from authoritative history.
func CanRevertToDraft(p authz.Principal, m *authz.Membership, sheet SheetSnapshot, hasClientInteraction bool) Decision {
	switch sheet.Status {
	case SheetSubmitted, SheetApproved, SheetRejected:
	default:
		return deny("Only submitted, approved or rejected time sheets can be reverted.")
	}
	if p.IsSystemAdmin() {
		return allow()
	}
	if m == nil {
		return deny("You are not a member of this project.")
	}
	if !authz.HasProjectPermission(m.Role, authz.PermTimeSheetsRevert) {
		return deny("You do not have permission to revert time sheets.")
	}
	if m.Role == authz.RoleExpert && hasClientInteraction {
		return deny("A reviewer or client has already reviewed this time sheet.")
	}
	return allow()
}

// SheetEligibleForApproval is the entry-composition precondition for sheet
// approval: at least one entry, and none questioned. It is independent of
// the role gate in CanApproveTimeSheet; callers must require both.
func SheetEligibleForApproval(entryStatuses []EntryStatus) Decision {
	if len(entryStatuses) == 0 {
		return deny("Time sheet has no entries.")
	}
	for _, status := range entryStatuses {
		if status == EntryQuestioned {
			return deny("Time sheet has questioned entries that must be resolved first.")
		}
	}
	return allow()
}

// SheetStatusChange is the set of sheet field writes one transition produces.
type SheetStatusChange struct {
	Status          SheetStatus
	SubmittedDate   *time.Time
	ApprovedDate    *time.Time
	RejectedDate    *time.Time
	RejectionReason *string

	// CascadeEntryApprovedDate marks that every linked entry's approvedDate
	// must be stamped in the same transaction. Entry status fields are left
	// untouched by the cascade.
	CascadeEntryApprovedDate bool
}

// SubmitSheetChange builds the writes for draft -> submitted.
func SubmitSheetChange(now time.Time) SheetStatusChange {
	return SheetStatusChange{
		Status:        SheetSubmitted,
		SubmittedDate: &now,
	}
}

// ApproveSheetChange builds the writes for submitted -> approved, including
// the bulk approvedDate stamp on every linked entry.
func ApproveSheetChange(now time.Time, submittedDate *time.Time) SheetStatusChange {
	return SheetStatusChange{
		Status:                   SheetApproved,
		SubmittedDate:            submittedDate,
		ApprovedDate:             &now,
		CascadeEntryApprovedDate: true,
	}
}

// RejectSheetChange builds the writes for submitted -> rejected. The reason
// may be absent.
func RejectSheetChange(now time.Time, submittedDate *time.Time, reason *string) SheetStatusChange {
	return SheetStatusChange{
		Status:          SheetRejected,
		SubmittedDate:   submittedDate,
		RejectedDate:    &now,
		RejectionReason: reason,
	}
}

// RevertSheetChange builds the writes for returning a sheet to draft. All
// workflow history is cleared; the sheet retains no record of a prior
// rejection.
func RevertSheetChange() SheetStatusChange {
	return SheetStatusChange{Status: SheetDraft}
}
