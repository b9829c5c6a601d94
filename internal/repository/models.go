package repository

import (
	"time"

	"github.com/tempora-hq/be-tt-timesheets/internal/authz"
	"github.com/tempora-hq/be-tt-timesheets/internal/workflow"
)

// ── Domain types for time tracking ───────────────────────────────────────────

// ProjectMembership is one user's role on one project. A unique index on
// (project_id, user_id) guarantees at most one membership per pair.
type ProjectMembership struct {
	ProjectID string            `json:"project_id"`
	UserID    string            `json:"user_id"`
	Role      authz.ProjectRole `json:"role"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// TimeEntry is a unit of logged work. ApprovedDate is non-null exactly while
// Status is approved.
type TimeEntry struct {
	ID              string               `json:"id"`
	ProjectID       *string              `json:"project_id,omitempty"`
	OrgID           *string              `json:"org_id,omitempty"`
	Title           string               `json:"title"`
	Hours           float64              `json:"hours"`
	Date            string               `json:"date"` // YYYY-MM-DD
	Status          workflow.EntryStatus `json:"status"`
	StatusChangedAt *time.Time           `json:"status_changed_at,omitempty"`
	StatusChangedBy *string              `json:"status_changed_by,omitempty"`
	ApprovedDate    *time.Time           `json:"approved_date,omitempty"`
	CreatedBy       string               `json:"created_by"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
}

// TimeSheet aggregates time entries through a link table and carries the
// submission lifecycle state.
type TimeSheet struct {
	ID              string               `json:"id"`
	ProjectID       *string              `json:"project_id,omitempty"`
	OrgID           *string              `json:"org_id,omitempty"`
	AccountID       *string              `json:"account_id,omitempty"`
	Status          workflow.SheetStatus `json:"status"`
	SubmittedDate   *time.Time           `json:"submitted_date,omitempty"`
	ApprovedDate    *time.Time           `json:"approved_date,omitempty"`
	RejectedDate    *time.Time           `json:"rejected_date,omitempty"`
	RejectionReason *string              `json:"rejection_reason,omitempty"`
	CreatedBy       string               `json:"created_by"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
}

// TimeSheetEntry links an entry into a sheet and records the sheet-scoped
// approval mirror, distinct from the entry's own global status.
type TimeSheetEntry struct {
	SheetID           string     `json:"sheet_id"`
	EntryID           string     `json:"entry_id"`
	ApprovedInSheet   bool       `json:"approved_in_sheet"`
	ApprovedInSheetAt *time.Time `json:"approved_in_sheet_at,omitempty"`
	ApprovedInSheetBy *string    `json:"approved_in_sheet_by,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

// ApprovalMode selects how a project's sheets move through review.
type ApprovalMode string

const (
	ApprovalModeRequired    ApprovalMode = "required"
	ApprovalModeOptional    ApprovalMode = "optional"
	ApprovalModeSelfApprove ApprovalMode = "self_approve"
	ApprovalModeMultiStage  ApprovalMode = "multi_stage"
)

// ValidApprovalMode reports whether raw names a known mode.
func ValidApprovalMode(raw string) bool {
	switch ApprovalMode(raw) {
	case ApprovalModeRequired, ApprovalModeOptional, ApprovalModeSelfApprove, ApprovalModeMultiStage:
		return true
	}
	return false
}

// ApprovalSettings is per-project workflow configuration, one row per
// project, lazily created with defaults on first access.
type ApprovalSettings struct {
	ID                        string              `json:"id"`
	ProjectID                 string              `json:"project_id"`
	ApprovalMode              ApprovalMode        `json:"approval_mode"`
	AutoApproveAfterDays      int                 `json:"auto_approve_after_days"`
	RequireAllEntriesApproved bool                `json:"require_all_entries_approved"`
	AllowSelfApproveNoClient  bool                `json:"allow_self_approve_no_client"`
	ApprovalStages            []authz.ProjectRole `json:"approval_stages,omitempty"` // nil unless configured; meaningful under multi_stage
	CreatedAt                 time.Time           `json:"created_at"`
	UpdatedAt                 time.Time           `json:"updated_at"`
}

// EntryMessage is a threaded comment on a time entry, optionally tagging the
// status the message accompanied.
type EntryMessage struct {
	ID           string                `json:"id"`
	EntryID      string                `json:"entry_id"`
	ParentID     *string               `json:"parent_id,omitempty"`
	AuthorID     string                `json:"author_id"`
	Body         string                `json:"body"`
	StatusChange *workflow.EntryStatus `json:"status_change,omitempty"`
	CreatedAt    time.Time             `json:"created_at"`
}

// AuditEntry is one immutable record of a workflow action.
type AuditEntry struct {
	ID           string                 `json:"id"`
	ProjectID    string                 `json:"project_id"`
	SheetID      *string                `json:"sheet_id,omitempty"`
	EntryID      *string                `json:"entry_id,omitempty"`
	Action       string                 `json:"action"` // submitted | approved | rejected | reverted | stage_approved | entry_approved | entry_questioned | entry_reverted
	PerformedBy  string                 `json:"performed_by"`
	PerformedAt  time.Time              `json:"performed_at"`
	StatusBefore *string                `json:"status_before,omitempty"`
	StatusAfter  *string                `json:"status_after,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}
