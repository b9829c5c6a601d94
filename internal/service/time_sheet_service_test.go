package service

import (
	"testing"

	"github.com/tempora-hq/be-tt-timesheets/internal/authz"
	"github.com/tempora-hq/be-tt-timesheets/internal/repository"
	"github.com/tempora-hq/be-tt-timesheets/internal/workflow"
)

func TestApproverRecipients(t *testing.T) {
	roster := authz.Roster{
		{UserID: "u1", Role: authz.RoleOwner},
		{UserID: "u2", Role: authz.RoleExpert},
		{UserID: "u3", Role: authz.RoleClient},
		{UserID: "u4", Role: authz.RoleViewer},
	}

	got := approverRecipients(roster, "u2")
	want := map[string]bool{"u1": true, "u3": true}

	if len(got) != len(want) {
		t.Fatalf("approverRecipients returned %v, want members %v", got, want)
	}
	for _, id := range got {
		if !want[id] {
			t.Errorf("unexpected recipient %q", id)
		}
	}
}

func TestApproverRecipientsExcludesActor(t *testing.T) {
	roster := authz.Roster{{UserID: "u1", Role: authz.RoleOwner}}
	if got := approverRecipients(roster, "u1"); len(got) != 0 {
		t.Errorf("expected no recipients when the actor is the only approver, got %v", got)
	}
}

func TestCreatorRecipient(t *testing.T) {
	sheet := &repository.TimeSheet{CreatedBy: "u2"}

	if got := creatorRecipient(sheet, "u1"); len(got) != 1 || got[0] != "u2" {
		t.Errorf("creatorRecipient = %v, want [u2]", got)
	}
	if got := creatorRecipient(sheet, "u2"); got != nil {
		t.Errorf("expected no recipient when the creator acts on their own sheet, got %v", got)
	}
}

func TestSameProject(t *testing.T) {
	a, b := "p1", "p2"

	tests := []struct {
		name string
		x, y *string
		want bool
	}{
		{"both nil", nil, nil, true},
		{"one nil", &a, nil, false},
		{"equal", &a, &a, true},
		{"different", &a, &b, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sameProject(tt.x, tt.y); got != tt.want {
				t.Errorf("sameProject = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSelfApprovePermitted(t *testing.T) {
	svc := &TimeSheetService{}
	creator := authz.Principal{ID: "u2"}
	sheet := &repository.TimeSheet{CreatedBy: "u2"}
	submitted := workflow.SheetSnapshot{Status: workflow.SheetSubmitted}
	noClient := authz.Roster{{UserID: "u2", Role: authz.RoleExpert}}
	withClient := authz.Roster{
		{UserID: "u2", Role: authz.RoleExpert},
		{UserID: "u3", Role: authz.RoleClient},
	}

	enabled := &repository.ApprovalSettings{
		ApprovalMode:             repository.ApprovalModeSelfApprove,
		AllowSelfApproveNoClient: true,
	}

	if !svc.selfApprovePermitted(creator, sheet, noClient, enabled, submitted) {
		t.Error("creator should self-approve under self_approve mode with no client")
	}
	if svc.selfApprovePermitted(creator, sheet, withClient, enabled, submitted) {
		t.Error("self-approval must be blocked while a client is on the project")
	}
	if svc.selfApprovePermitted(authz.Principal{ID: "u1"}, sheet, noClient, enabled, submitted) {
		t.Error("only the sheet's creator may self-approve")
	}

	flagOff := &repository.ApprovalSettings{ApprovalMode: repository.ApprovalModeSelfApprove}
	if svc.selfApprovePermitted(creator, sheet, noClient, flagOff, submitted) {
		t.Error("self-approval requires allow_self_approve_no_client")
	}

	wrongMode := &repository.ApprovalSettings{
		ApprovalMode:             repository.ApprovalModeRequired,
		AllowSelfApproveNoClient: true,
	}
	if svc.selfApprovePermitted(creator, sheet, noClient, wrongMode, submitted) {
		t.Error("self-approval applies only under self_approve mode")
	}

	draft := workflow.SheetSnapshot{Status: workflow.SheetDraft}
	if svc.selfApprovePermitted(creator, sheet, noClient, enabled, draft) {
		t.Error("self-approval still requires a submitted sheet")
	}
}
