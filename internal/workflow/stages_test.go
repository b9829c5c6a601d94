package workflow

import (
	"testing"

	"github.com/tempora-hq/be-tt-timesheets/internal/authz"
)

func TestBuildStagePlan(t *testing.T) {
	tests := []struct {
		name       string
		configured []authz.ProjectRole
		want       []authz.ProjectRole
	}{
		{name: "empty falls back to owner", configured: nil, want: []authz.ProjectRole{authz.RoleOwner}},
		{name: "unknown roles dropped", configured: []authz.ProjectRole{"manager", authz.RoleClient}, want: []authz.ProjectRole{authz.RoleClient}},
		{name: "all unknown falls back", configured: []authz.ProjectRole{"manager"}, want: []authz.ProjectRole{authz.RoleOwner}},
		{name: "order preserved", configured: []authz.ProjectRole{authz.RoleReviewer, authz.RoleClient, authz.RoleOwner}, want: []authz.ProjectRole{authz.RoleReviewer, authz.RoleClient, authz.RoleOwner}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := BuildStagePlan(tt.configured)
			got := plan.Stages()
			if len(got) != len(tt.want) {
				t.Fatalf("Stages() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("stage %d = %s, want %s", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestStagePlanNextRequired(t *testing.T) {
	plan := BuildStagePlan([]authz.ProjectRole{authz.RoleReviewer, authz.RoleClient})

	if role, ok := plan.NextRequired(0); !ok || role != authz.RoleReviewer {
		t.Errorf("NextRequired(0) = %s/%v, want reviewer/true", role, ok)
	}
	if role, ok := plan.NextRequired(1); !ok || role != authz.RoleClient {
		t.Errorf("NextRequired(1) = %s/%v, want client/true", role, ok)
	}
	if _, ok := plan.NextRequired(2); ok {
		t.Error("NextRequired(2) should report completion")
	}
	if role, ok := plan.NextRequired(-1); !ok || role != authz.RoleReviewer {
		t.Errorf("NextRequired(-1) = %s/%v, want reviewer/true", role, ok)
	}

	if plan.Complete(1) {
		t.Error("Complete(1) = true, want false")
	}
	if !plan.Complete(2) {
		t.Error("Complete(2) = false, want true")
	}
}

func TestCanApproveStage(t *testing.T) {
	plan := BuildStagePlan([]authz.ProjectRole{authz.RoleReviewer, authz.RoleClient})
	submitted := SheetSnapshot{Status: SheetSubmitted}
	roster := authz.Roster{ownerU1, expertU2, clientU3, reviewerU5}

	t.Run("correct role for current stage is allowed", func(t *testing.T) {
		d := CanApproveStage(authz.Principal{ID: "u5"}, &reviewerU5, roster, submitted, plan, 0)
		if !d.Allowed {
			t.Fatalf("expected allow, got %q", d.Reason)
		}
	})

	t.Run("wrong role for current stage is denied", func(t *testing.T) {
		d := CanApproveStage(authz.Principal{ID: "u3"}, &clientU3, roster, submitted, plan, 0)
		if d.Allowed {
			t.Fatal("expected denial: client approving at the reviewer stage")
		}
	})

	t.Run("stage two opens to client", func(t *testing.T) {
		d := CanApproveStage(authz.Principal{ID: "u3"}, &clientU3, roster, submitted, plan, 1)
		if !d.Allowed {
			t.Fatalf("expected allow, got %q", d.Reason)
		}
	})

	t.Run("all stages complete denies further approvals", func(t *testing.T) {
		d := CanApproveStage(authz.Principal{ID: "u3"}, &clientU3, roster, submitted, plan, 2)
		if d.Allowed {
			t.Fatal("expected denial when plan is complete")
		}
	})

	t.Run("base sheet gate still applies", func(t *testing.T) {
		d := CanApproveStage(authz.Principal{ID: "u5"}, &reviewerU5, roster, SheetSnapshot{Status: SheetDraft}, plan, 0)
		if d.Allowed {
			t.Fatal("expected denial for non-submitted sheet")
		}
	})

	t.Run("admin satisfies any stage", func(t *testing.T) {
		admin := authz.Principal{ID: "a", SystemRole: authz.SystemRoleSuperAdmin}
		d := CanApproveStage(admin, nil, roster, submitted, plan, 1)
		if !d.Allowed {
			t.Fatalf("expected allow, got %q", d.Reason)
		}
	})
}
