package workflow

import (
	"github.com/tempora-hq/be-tt-timesheets/internal/authz"
)

// defaultStageRole is used when a project runs in multi_stage mode without a
// configured stage list. Every project has an owner.
const defaultStageRole = authz.RoleOwner

// StagePlan is the ordered list of approver roles a sheet must pass through
// under multi_stage approval mode. Stages are sequential: stage n+1 opens
// only after stage n is approved.
type StagePlan struct {
	stages []authz.ProjectRole
}

// BuildStagePlan builds a plan from configured stages, dropping unknown role
// names and falling back to a single owner stage when nothing valid remains.
func BuildStagePlan(configured []authz.ProjectRole) StagePlan {
	var stages []authz.ProjectRole
	for _, role := range configured {
		if authz.ValidProjectRole(string(role)) {
			stages = append(stages, role)
		}
	}
	if len(stages) == 0 {
		stages = []authz.ProjectRole{defaultStageRole}
	}
	return StagePlan{stages: stages}
}

// TotalStages returns the number of stages in the plan.
func (p StagePlan) TotalStages() int { return len(p.stages) }

// Stages returns the ordered stage roles.
func (p StagePlan) Stages() []authz.ProjectRole { return p.stages }

// NextRequired returns the role that must approve next given how many stages
// have already been approved. ok is false when every stage is complete.
func (p StagePlan) NextRequired(completed int) (authz.ProjectRole, bool) {
	if completed < 0 {
		completed = 0
	}
	if completed >= len(p.stages) {
		return "", false
	}
	return p.stages[completed], true
}

// Complete reports whether all stages have been approved.
func (p StagePlan) Complete(completed int) bool {
	return completed >= len(p.stages)
}

// CanApproveStage layers the stage-sequencing gate on top of the standard
// sheet-approval gate: the approver's role must match the next pending stage.
// System admins satisfy any stage.
func CanApproveStage(p authz.Principal, m *authz.Membership, roster authz.Roster, sheet SheetSnapshot, plan StagePlan, completed int) Decision {
	if d := CanApproveTimeSheet(p, m, roster, sheet); !d.Allowed {
		return d
	}
	required, ok := plan.NextRequired(completed)
	if !ok {
		return deny("All approval stages are already complete.")
	}
	if p.IsSystemAdmin() {
		return allow()
	}
	if m.Role != required {
		return deny("This time sheet is awaiting approval from a " + string(required) + ".")
	}
	return allow()
}
