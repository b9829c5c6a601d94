package workflow

import (
	"testing"
	"time"

	"github.com/tempora-hq/be-tt-timesheets/internal/authz"
)

var (
	ownerU1  = authz.Membership{UserID: "u1", Role: authz.RoleOwner}
	expertU2 = authz.Membership{UserID: "u2", Role: authz.RoleExpert}
	clientU3 = authz.Membership{UserID: "u3", Role: authz.RoleClient}
	viewerU4 = authz.Membership{UserID: "u4", Role: authz.RoleViewer}
)

func rosterWithClient() authz.Roster {
	return authz.Roster{ownerU1, expertU2, clientU3}
}

func rosterNoClient() authz.Roster {
	return authz.Roster{ownerU1, expertU2}
}

func TestCanApproveEntrySelfApproval(t *testing.T) {
	// Entry created by the expert u2.
	entry := EntrySnapshot{CreatedBy: "u2", Status: EntryPending}

	t.Run("expert approving own entry with client present is denied", func(t *testing.T) {
		d := CanApproveEntry(authz.Principal{ID: "u2"}, &expertU2, rosterWithClient(), entry)
		if d.Allowed {
			t.Fatal("expected denial")
		}
		if d.Reason == "" {
			t.Error("denial should carry a reason")
		}
	})

	t.Run("different approver is allowed", func(t *testing.T) {
		d := CanApproveEntry(authz.Principal{ID: "u1"}, &ownerU1, rosterWithClient(), entry)
		if !d.Allowed {
			t.Fatalf("expected allow, got reason %q", d.Reason)
		}
	})

	t.Run("expert approving own entry without client is allowed", func(t *testing.T) {
		d := CanApproveEntry(authz.Principal{ID: "u2"}, &expertU2, rosterNoClient(), entry)
		if !d.Allowed {
			t.Fatalf("expected allow, got reason %q", d.Reason)
		}
	})

	t.Run("expert approving someone else's entry with client present is allowed", func(t *testing.T) {
		other := EntrySnapshot{CreatedBy: "u9", Status: EntryPending}
		d := CanApproveEntry(authz.Principal{ID: "u2"}, &expertU2, rosterWithClient(), other)
		if !d.Allowed {
			t.Fatalf("expected allow, got reason %q", d.Reason)
		}
	})
}

func TestCanApproveEntryGates(t *testing.T) {
	entry := EntrySnapshot{CreatedBy: "u2", Status: EntryPending}

	tests := []struct {
		name string
		p    authz.Principal
		m    *authz.Membership
		want bool
	}{
		{name: "system admin bypasses membership", p: authz.Principal{ID: "a", SystemRole: authz.SystemRoleAdmin}, m: nil, want: true},
		{name: "super admin bypasses membership", p: authz.Principal{ID: "a", SystemRole: authz.SystemRoleSuperAdmin}, m: nil, want: true},
		{name: "no membership is denied", p: authz.Principal{ID: "u9"}, m: nil, want: false},
		{name: "viewer lacks approve permission", p: authz.Principal{ID: "u4"}, m: &viewerU4, want: false},
		{name: "client may approve", p: authz.Principal{ID: "u3"}, m: &clientU3, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := CanApproveEntry(tt.p, tt.m, rosterWithClient(), entry)
			if d.Allowed != tt.want {
				t.Errorf("CanApproveEntry() = %v (%q), want allowed=%v", d.Allowed, d.Reason, tt.want)
			}
		})
	}
}

func TestCanQuestionEntry(t *testing.T) {
	tests := []struct {
		name string
		p    authz.Principal
		m    *authz.Membership
		want bool
	}{
		{name: "expert may question own entry even with client", p: authz.Principal{ID: "u2"}, m: &expertU2, want: true},
		{name: "client may question", p: authz.Principal{ID: "u3"}, m: &clientU3, want: true},
		{name: "viewer may not question", p: authz.Principal{ID: "u4"}, m: &viewerU4, want: false},
		{name: "no membership denied", p: authz.Principal{ID: "u9"}, m: nil, want: false},
		{name: "admin bypasses", p: authz.Principal{ID: "a", SystemRole: authz.SystemRoleAdmin}, m: nil, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := CanQuestionEntry(tt.p, tt.m)
			if d.Allowed != tt.want {
				t.Errorf("CanQuestionEntry() = %v (%q), want allowed=%v", d.Allowed, d.Reason, tt.want)
			}
		})
	}
}

func TestApproveEntryChange(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	change := ApproveEntryChange("u1", now)

	if change.Status != EntryApproved {
		t.Errorf("Status = %s, want %s", change.Status, EntryApproved)
	}
	if change.ApprovedDate == nil || !change.ApprovedDate.Equal(now) {
		t.Errorf("ApprovedDate = %v, want %v", change.ApprovedDate, now)
	}
	if change.StatusChangedBy != "u1" || !change.StatusChangedAt.Equal(now) {
		t.Errorf("status change actor/time = %s/%v, want u1/%v", change.StatusChangedBy, change.StatusChangedAt, now)
	}
	if !change.Mirror.Approved {
		t.Error("mirror should be marked approved")
	}
	if change.Mirror.By == nil || *change.Mirror.By != "u1" {
		t.Errorf("Mirror.By = %v, want u1", change.Mirror.By)
	}
	if change.Mirror.At == nil || !change.Mirror.At.Equal(now) {
		t.Errorf("Mirror.At = %v, want %v", change.Mirror.At, now)
	}
}

func TestQuestionEntryChangeRevokesApproval(t *testing.T) {
	// Questioning a previously approved entry must clear approvedDate and the
	// sheet-scoped mirror entirely.
	now := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	change := QuestionEntryChange("u3", now)

	if change.Status != EntryQuestioned {
		t.Errorf("Status = %s, want %s", change.Status, EntryQuestioned)
	}
	if change.ApprovedDate != nil {
		t.Errorf("ApprovedDate = %v, want nil", change.ApprovedDate)
	}
	if change.Mirror.Approved {
		t.Error("mirror should be cleared")
	}
	if change.Mirror.By != nil || change.Mirror.At != nil {
		t.Errorf("mirror actor/time = %v/%v, want nil/nil", change.Mirror.By, change.Mirror.At)
	}
}

func TestRevertEntryChange(t *testing.T) {
	now := time.Now()
	change := RevertEntryChange("u1", now)

	if change.Status != EntryPending {
		t.Errorf("Status = %s, want %s", change.Status, EntryPending)
	}
	if change.ApprovedDate != nil {
		t.Error("ApprovedDate should be cleared on revert")
	}
	if change.Mirror.Approved {
		t.Error("mirror should be cleared on revert")
	}
}
