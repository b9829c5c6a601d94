package workflow

import (
	"testing"
	"time"

	"github.com/tempora-hq/be-tt-timesheets/internal/authz"
)

var (
	reviewerU5 = authz.Membership{UserID: "u5", Role: authz.RoleReviewer}
)

func TestCanApproveTimeSheetStatusPrecondition(t *testing.T) {
	// Any status other than submitted is denied for every role, admins included.
	memberships := map[string]*authz.Membership{
		"owner":    &ownerU1,
		"expert":   &expertU2,
		"client":   &clientU3,
		"reviewer": &reviewerU5,
		"none":     nil,
	}

	for _, status := range []SheetStatus{SheetDraft, SheetApproved, SheetRejected} {
		for name, m := range memberships {
			p := authz.Principal{ID: "x"}
			if m != nil {
				p.ID = m.UserID
			}
			d := CanApproveTimeSheet(p, m, rosterWithClient(), SheetSnapshot{Status: status})
			if d.Allowed {
				t.Errorf("status %s, role %s: expected denial", status, name)
			}
		}

		admin := authz.Principal{ID: "a", SystemRole: authz.SystemRoleSuperAdmin}
		if d := CanApproveTimeSheet(admin, nil, nil, SheetSnapshot{Status: status}); d.Allowed {
			t.Errorf("status %s: super admin must still satisfy the submitted precondition", status)
		}
	}
}

func TestCanApproveTimeSheetRoles(t *testing.T) {
	submitted := SheetSnapshot{Status: SheetSubmitted}

	tests := []struct {
		name   string
		p      authz.Principal
		m      *authz.Membership
		roster authz.Roster
		want   bool
	}{
		{name: "reviewer always allowed", p: authz.Principal{ID: "u5"}, m: &reviewerU5, roster: rosterWithClient(), want: true},
		{name: "client always allowed", p: authz.Principal{ID: "u3"}, m: &clientU3, roster: rosterWithClient(), want: true},
		{name: "owner allowed even with client present", p: authz.Principal{ID: "u1"}, m: &ownerU1, roster: rosterWithClient(), want: true},
		{name: "expert denied when client present", p: authz.Principal{ID: "u2"}, m: &expertU2, roster: rosterWithClient(), want: false},
		{name: "expert allowed when no client", p: authz.Principal{ID: "u2"}, m: &expertU2, roster: rosterNoClient(), want: true},
		{name: "viewer lacks permission", p: authz.Principal{ID: "u4"}, m: &viewerU4, roster: rosterNoClient(), want: false},
		{name: "non-member denied", p: authz.Principal{ID: "u9"}, m: nil, roster: rosterNoClient(), want: false},
		{name: "admin allowed on submitted", p: authz.Principal{ID: "a", SystemRole: authz.SystemRoleAdmin}, m: nil, roster: nil, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := CanApproveTimeSheet(tt.p, tt.m, tt.roster, submitted)
			if d.Allowed != tt.want {
				t.Errorf("CanApproveTimeSheet() = %v (%q), want allowed=%v", d.Allowed, d.Reason, tt.want)
			}
		})
	}
}

func TestCanApproveTimeSheetClientJoinsScenario(t *testing.T) {
	// Roster starts with owner u1 and expert u2, no client. Sheet submitted
	// by u2.
	roster := authz.Roster{ownerU1, expertU2}
	sheet := SheetSnapshot{Status: SheetSubmitted}
	p := authz.Principal{ID: "u2"}

	if d := CanApproveTimeSheet(p, &expertU2, roster, sheet); !d.Allowed {
		t.Fatalf("no client present: expected allow, got %q", d.Reason)
	}

	roster = append(roster, authz.Membership{UserID: "u3", Role: authz.RoleClient})

	d := CanApproveTimeSheet(p, &expertU2, roster, sheet)
	if d.Allowed {
		t.Fatal("client present: expected denial")
	}
	if want := "A client must review this time sheet before it can be approved."; d.Reason != want {
		t.Errorf("Reason = %q, want %q", d.Reason, want)
	}
}

func TestCanRejectTimeSheet(t *testing.T) {
	tests := []struct {
		name   string
		p      authz.Principal
		m      *authz.Membership
		status SheetStatus
		want   bool
	}{
		{name: "expert denied on submitted", p: authz.Principal{ID: "u2"}, m: &expertU2, status: SheetSubmitted, want: false},
		{name: "expert denied on draft", p: authz.Principal{ID: "u2"}, m: &expertU2, status: SheetDraft, want: false},
		{name: "expert denied on approved", p: authz.Principal{ID: "u2"}, m: &expertU2, status: SheetApproved, want: false},
		{name: "expert denied on rejected", p: authz.Principal{ID: "u2"}, m: &expertU2, status: SheetRejected, want: false},
		{name: "client allowed on submitted", p: authz.Principal{ID: "u3"}, m: &clientU3, status: SheetSubmitted, want: true},
		{name: "reviewer allowed on submitted", p: authz.Principal{ID: "u5"}, m: &reviewerU5, status: SheetSubmitted, want: true},
		{name: "owner allowed on submitted", p: authz.Principal{ID: "u1"}, m: &ownerU1, status: SheetSubmitted, want: true},
		{name: "owner denied on draft", p: authz.Principal{ID: "u1"}, m: &ownerU1, status: SheetDraft, want: false},
		{name: "admin allowed on submitted", p: authz.Principal{ID: "a", SystemRole: authz.SystemRoleAdmin}, m: nil, status: SheetSubmitted, want: true},
		{name: "admin denied on approved", p: authz.Principal{ID: "a", SystemRole: authz.SystemRoleAdmin}, m: nil, status: SheetApproved, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := CanRejectTimeSheet(tt.p, tt.m, SheetSnapshot{Status: tt.status})
			if d.Allowed != tt.want {
				t.Errorf("CanRejectTimeSheet() = %v (%q), want allowed=%v", d.Allowed, d.Reason, tt.want)
			}
		})
	}
}

func TestCanRejectTimeSheetExpertGuidance(t *testing.T) {
	d := CanRejectTimeSheet(authz.Principal{ID: "u2"}, &expertU2, SheetSnapshot{Status: SheetSubmitted})
	if d.Allowed {
		t.Fatal("expected denial")
	}
	if want := "Experts cannot reject time sheets. Use 'Revert to Draft' instead."; d.Reason != want {
		t.Errorf("Reason = %q, want %q", d.Reason, want)
	}
}

func TestCanRevertToDraft(t *testing.T) {
	tests := []struct {
		name        string
		p           authz.Principal
		m           *authz.Membership
		status      SheetStatus
		interaction bool
		want        bool
	}{
		{name: "expert blocked after client interaction", p: authz.Principal{ID: "u2"}, m: &expertU2, status: SheetSubmitted, interaction: true, want: false},
		{name: "expert allowed before any interaction", p: authz.Principal{ID: "u2"}, m: &expertU2, status: SheetSubmitted, interaction: false, want: true},
		{name: "client allowed despite interaction", p: authz.Principal{ID: "u3"}, m: &clientU3, status: SheetApproved, interaction: true, want: true},
		{name: "reviewer allowed from rejected", p: authz.Principal{ID: "u5"}, m: &reviewerU5, status: SheetRejected, interaction: true, want: true},
		{name: "owner allowed from submitted", p: authz.Principal{ID: "u1"}, m: &ownerU1, status: SheetSubmitted, interaction: true, want: true},
		{name: "draft cannot be reverted", p: authz.Principal{ID: "u1"}, m: &ownerU1, status: SheetDraft, interaction: false, want: false},
		{name: "viewer lacks permission", p: authz.Principal{ID: "u4"}, m: &viewerU4, status: SheetSubmitted, interaction: false, want: false},
		{name: "non-member denied", p: authz.Principal{ID: "u9"}, m: nil, status: SheetSubmitted, interaction: false, want: false},
		{name: "admin allowed", p: authz.Principal{ID: "a", SystemRole: authz.SystemRoleSuperAdmin}, m: nil, status: SheetRejected, interaction: true, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := CanRevertToDraft(tt.p, tt.m, SheetSnapshot{Status: tt.status}, tt.interaction)
			if d.Allowed != tt.want {
				t.Errorf("CanRevertToDraft() = %v (%q), want allowed=%v", d.Allowed, d.Reason, tt.want)
			}
		})
	}
}

func TestCanRevertToDraftExpertReason(t *testing.T) {
	d := CanRevertToDraft(authz.Principal{ID: "u2"}, &expertU2, SheetSnapshot{Status: SheetSubmitted}, true)
	if d.Allowed {
		t.Fatal("expected denial")
	}
	if want := "A reviewer or client has already reviewed this time sheet."; d.Reason != want {
		t.Errorf("Reason = %q, want %q", d.Reason, want)
	}
}

func TestSheetEligibleForApproval(t *testing.T) {
	tests := []struct {
		name     string
		statuses []EntryStatus
		want     bool
	}{
		{name: "no entries", statuses: nil, want: false},
		{name: "questioned entry blocks", statuses: []EntryStatus{EntryApproved, EntryQuestioned}, want: false},
		{name: "all pending is eligible", statuses: []EntryStatus{EntryPending, EntryPending}, want: true},
		{name: "pending and approved mix is eligible", statuses: []EntryStatus{EntryPending, EntryApproved}, want: true},
		{name: "all approved is eligible", statuses: []EntryStatus{EntryApproved}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := SheetEligibleForApproval(tt.statuses)
			if d.Allowed != tt.want {
				t.Errorf("SheetEligibleForApproval() = %v (%q), want allowed=%v", d.Allowed, d.Reason, tt.want)
			}
		})
	}
}

func TestApproveSheetChangeCascades(t *testing.T) {
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	submitted := now.Add(-24 * time.Hour)

	change := ApproveSheetChange(now, &submitted)

	if change.Status != SheetApproved {
		t.Errorf("Status = %s, want %s", change.Status, SheetApproved)
	}
	if change.ApprovedDate == nil || !change.ApprovedDate.Equal(now) {
		t.Errorf("ApprovedDate = %v, want %v", change.ApprovedDate, now)
	}
	if !change.CascadeEntryApprovedDate {
		t.Error("approving a sheet must stamp every linked entry's approvedDate")
	}
	if change.RejectedDate != nil || change.RejectionReason != nil {
		t.Error("approve must not touch rejection fields")
	}
}

func TestRejectSheetChange(t *testing.T) {
	now := time.Now()
	reason := "hours look wrong"
	change := RejectSheetChange(now, nil, &reason)

	if change.Status != SheetRejected {
		t.Errorf("Status = %s, want %s", change.Status, SheetRejected)
	}
	if change.RejectedDate == nil || !change.RejectedDate.Equal(now) {
		t.Errorf("RejectedDate = %v, want %v", change.RejectedDate, now)
	}
	if change.RejectionReason == nil || *change.RejectionReason != reason {
		t.Errorf("RejectionReason = %v, want %q", change.RejectionReason, reason)
	}
	if change.CascadeEntryApprovedDate {
		t.Error("reject must not cascade entry approval dates")
	}

	// Reason may be absent.
	noReason := RejectSheetChange(now, nil, nil)
	if noReason.RejectionReason != nil {
		t.Error("absent reason should stay nil")
	}
}

func TestRevertSheetChangeClearsHistory(t *testing.T) {
	change := RevertSheetChange()

	if change.Status != SheetDraft {
		t.Errorf("Status = %s, want %s", change.Status, SheetDraft)
	}
	if change.SubmittedDate != nil || change.ApprovedDate != nil || change.RejectedDate != nil || change.RejectionReason != nil {
		t.Error("revert must clear submittedDate, approvedDate, rejectedDate and rejectionReason")
	}
}

func TestSubmitSheetChange(t *testing.T) {
	now := time.Now()
	change := SubmitSheetChange(now)

	if change.Status != SheetSubmitted {
		t.Errorf("Status = %s, want %s", change.Status, SheetSubmitted)
	}
	if change.SubmittedDate == nil || !change.SubmittedDate.Equal(now) {
		t.Errorf("SubmittedDate = %v, want %v", change.SubmittedDate, now)
	}
}
