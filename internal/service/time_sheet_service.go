package service

import (
	"context"
	"time"

	"github.com/tempora-hq/be-tt-timesheets/internal/authz"
	"github.com/tempora-hq/be-tt-timesheets/internal/client"
	"github.com/tempora-hq/be-tt-timesheets/internal/repository"
	"github.com/tempora-hq/be-tt-timesheets/internal/workflow"
	"github.com/tempora-hq/be-tt-timesheets/pkg/errors"
	"github.com/tempora-hq/be-tt-timesheets/pkg/logger"
)

// TimeSheetService handles the time sheet submission lifecycle: draft
// composition, submit, approve (including multi-stage sequencing), reject and
// revert-to-draft, plus the audit trail behind the interaction checks.
type TimeSheetService struct {
	sheetRepo      *repository.TimeSheetRepository
	entryRepo      *repository.TimeEntryRepository
	membershipRepo *repository.MembershipRepository
	settingsRepo   *repository.ApprovalSettingsRepository
	messageRepo    *repository.EntryMessageRepository
	auditRepo      *repository.AuditRepository
	notifier       *client.NotificationPublisher
	log            *logger.Logger
}

// NewTimeSheetService creates a new time sheet service.
func NewTimeSheetService(
	sheetRepo *repository.TimeSheetRepository,
	entryRepo *repository.TimeEntryRepository,
	membershipRepo *repository.MembershipRepository,
	settingsRepo *repository.ApprovalSettingsRepository,
	messageRepo *repository.EntryMessageRepository,
	auditRepo *repository.AuditRepository,
	notifier *client.NotificationPublisher,
	log *logger.Logger,
) *TimeSheetService {
	return &TimeSheetService{
		sheetRepo:      sheetRepo,
		entryRepo:      entryRepo,
		membershipRepo: membershipRepo,
		settingsRepo:   settingsRepo,
		messageRepo:    messageRepo,
		auditRepo:      auditRepo,
		notifier:       notifier,
		log:            log,
	}
}

// CreateSheetRequest represents a create time sheet request.
type CreateSheetRequest struct {
	ProjectID string
	OrgID     *string
	AccountID *string
}

// RejectSheetRequest represents a reject request; the reason may be absent.
type RejectSheetRequest struct {
	SheetID string
	Reason  *string
}

// ApproveSheetResult reports the outcome of an approve call. Under
// multi_stage mode an intermediate stage approval leaves the sheet submitted
// and advances StagesApproved; FullyApproved is set only on the final stage.
type ApproveSheetResult struct {
	Sheet          *repository.TimeSheet
	FullyApproved  bool
	StagesApproved int
	TotalStages    int
}

// CreateSheet creates a new draft time sheet.
func (s *TimeSheetService) CreateSheet(ctx context.Context, p authz.Principal, req *CreateSheetRequest) (*repository.TimeSheet, error) {
	if req.ProjectID == "" {
		return nil, errors.InvalidInput("project_id", "project id is required")
	}

	roster, err := s.membershipRepo.Roster(ctx, req.ProjectID)
	if err != nil {
		return nil, err
	}
	if !authz.CanOnProject(p, roster.Find(p.ID), authz.PermTimeSheetsCreate) {
		return nil, errors.Forbidden("You do not have permission to create time sheets.")
	}

	sheet := &repository.TimeSheet{
		ProjectID: &req.ProjectID,
		OrgID:     req.OrgID,
		AccountID: req.AccountID,
		CreatedBy: p.ID,
	}
	if err := s.sheetRepo.Create(ctx, sheet); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("sheet_id", sheet.ID).
		Str("project_id", req.ProjectID).
		Str("created_by", p.ID).
		Msg("time sheet created")
	return sheet, nil
}

// GetSheet returns a sheet after a project view check.
func (s *TimeSheetService) GetSheet(ctx context.Context, p authz.Principal, id string) (*repository.TimeSheet, error) {
	sheet, roster, err := s.loadSheetContext(ctx, id)
	if err != nil {
		return nil, err
	}
	if !authz.CanOnProject(p, roster.Find(p.ID), authz.PermTimeSheetsView) {
		return nil, errors.Forbidden("You do not have permission to view time sheets.")
	}
	return sheet, nil
}

// ListSheets returns a project's sheets after a view check.
func (s *TimeSheetService) ListSheets(ctx context.Context, p authz.Principal, projectID string) ([]*repository.TimeSheet, error) {
	roster, err := s.membershipRepo.Roster(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !authz.CanOnProject(p, roster.Find(p.ID), authz.PermTimeSheetsView) {
		return nil, errors.Forbidden("You do not have permission to view time sheets.")
	}
	return s.sheetRepo.ListByProject(ctx, projectID)
}

// AddEntry links an entry into a draft sheet. The entry must belong to the
// same project as the sheet.
func (s *TimeSheetService) AddEntry(ctx context.Context, p authz.Principal, sheetID, entryID string) error {
	sheet, roster, err := s.loadSheetContext(ctx, sheetID)
	if err != nil {
		return err
	}
	if sheet.Status != workflow.SheetDraft {
		return errors.New(errors.ErrCodeConflict, "only draft time sheets can be modified")
	}
	if !authz.CanOnProject(p, roster.Find(p.ID), authz.PermTimeSheetsEdit) {
		return errors.Forbidden("You do not have permission to edit time sheets.")
	}

	entry, err := s.entryRepo.GetByID(ctx, entryID)
	if err != nil {
		return err
	}
	if !sameProject(sheet.ProjectID, entry.ProjectID) {
		return errors.InvalidInput("entry_id", "entry does not belong to this sheet's project")
	}

	return s.sheetRepo.AddEntry(ctx, sheetID, entryID)
}

// RemoveEntry unlinks an entry from a draft sheet.
func (s *TimeSheetService) RemoveEntry(ctx context.Context, p authz.Principal, sheetID, entryID string) error {
	sheet, roster, err := s.loadSheetContext(ctx, sheetID)
	if err != nil {
		return err
	}
	if sheet.Status != workflow.SheetDraft {
		return errors.New(errors.ErrCodeConflict, "only draft time sheets can be modified")
	}
	if !authz.CanOnProject(p, roster.Find(p.ID), authz.PermTimeSheetsEdit) {
		return errors.Forbidden("You do not have permission to edit time sheets.")
	}
	return s.sheetRepo.RemoveEntry(ctx, sheetID, entryID)
}

// Submit transitions a draft sheet to submitted and notifies the members who
// can approve it.
func (s *TimeSheetService) Submit(ctx context.Context, p authz.Principal, sheetID string) (*repository.TimeSheet, error) {
	sheet, roster, err := s.loadSheetContext(ctx, sheetID)
	if err != nil {
		return nil, err
	}

	snapshot := workflow.SheetSnapshot{Status: sheet.Status}
	if d := workflow.CanSubmitTimeSheet(p, roster.Find(p.ID), snapshot); !d.Allowed {
		return nil, errors.Forbidden(d.Reason)
	}

	change := workflow.SubmitSheetChange(time.Now().UTC())
	if err := s.applySheetChange(ctx, p, sheet, change, "submitted", nil); err != nil {
		return nil, err
	}

	s.notifier.PublishWorkflowEvent(ctx, "time_sheet_submitted", "time_sheet", sheet.ID,
		derefOrEmpty(sheet.ProjectID), p.ID, approverRecipients(roster, p.ID), nil)
	return sheet, nil
}

// Approve runs the full sheet-approval composition: the role gate, the
// entry-composition precondition, the project's approval mode and, under
// multi_stage, the stage-sequencing gate. Intermediate stage approvals leave
// the sheet submitted; the final one (or any approval outside multi_stage)
// approves the sheet and stamps every linked entry's approvedDate.
func (s *TimeSheetService) Approve(ctx context.Context, p authz.Principal, sheetID string) (*ApproveSheetResult, error) {
	sheet, roster, err := s.loadSheetContext(ctx, sheetID)
	if err != nil {
		return nil, err
	}

	settings, err := s.settingsFor(ctx, sheet.ProjectID)
	if err != nil {
		return nil, err
	}

	statuses, err := s.sheetRepo.EntryStatuses(ctx, sheetID)
	if err != nil {
		return nil, err
	}
	// The empty-sheet rule always applies; the questioned-entries blocker is
	// waived when the project does not require all entries approved.
	if d := workflow.SheetEligibleForApproval(statuses); !d.Allowed {
		if len(statuses) == 0 || settings.RequireAllEntriesApproved {
			return nil, errors.Forbidden(d.Reason)
		}
	}

	m := roster.Find(p.ID)
	snapshot := workflow.SheetSnapshot{Status: sheet.Status}

	if settings.ApprovalMode == repository.ApprovalModeMultiStage {
		return s.approveStage(ctx, p, sheet, roster, settings, snapshot)
	}

	if !s.selfApprovePermitted(p, sheet, roster, settings, snapshot) {
		if d := workflow.CanApproveTimeSheet(p, m, roster, snapshot); !d.Allowed {
			return nil, errors.Forbidden(d.Reason)
		}
	}

	if err := s.approveFully(ctx, p, sheet, roster, nil); err != nil {
		return nil, err
	}
	return &ApproveSheetResult{Sheet: sheet, FullyApproved: true}, nil
}

// Reject transitions a submitted sheet to rejected. Experts are always
// denied, for any status.
func (s *TimeSheetService) Reject(ctx context.Context, p authz.Principal, req *RejectSheetRequest) (*repository.TimeSheet, error) {
	sheet, roster, err := s.loadSheetContext(ctx, req.SheetID)
	if err != nil {
		return nil, err
	}

	snapshot := workflow.SheetSnapshot{Status: sheet.Status}
	if d := workflow.CanRejectTimeSheet(p, roster.Find(p.ID), snapshot); !d.Allowed {
		return nil, errors.Forbidden(d.Reason)
	}

	var metadata map[string]interface{}
	if req.Reason != nil {
		metadata = map[string]interface{}{"reason": *req.Reason}
	}

	change := workflow.RejectSheetChange(time.Now().UTC(), sheet.SubmittedDate, req.Reason)
	if err := s.applySheetChange(ctx, p, sheet, change, "rejected", metadata); err != nil {
		return nil, err
	}

	s.notifier.PublishWorkflowEvent(ctx, "time_sheet_rejected", "time_sheet", sheet.ID,
		derefOrEmpty(sheet.ProjectID), p.ID, creatorRecipient(sheet, p.ID),
		map[string]interface{}{"reason": derefOrEmpty(req.Reason)})
	return sheet, nil
}

// RevertToDraft returns a sheet to draft, clearing all workflow history. The
// client-interaction signal for the expert restriction is derived from the
// audit trail and message authors since the sheet's submission.
func (s *TimeSheetService) RevertToDraft(ctx context.Context, p authz.Principal, sheetID string) (*repository.TimeSheet, error) {
	sheet, roster, err := s.loadSheetContext(ctx, sheetID)
	if err != nil {
		return nil, err
	}

	interacted, err := s.hasClientInteraction(ctx, sheet, roster)
	if err != nil {
		return nil, err
	}

	snapshot := workflow.SheetSnapshot{Status: sheet.Status}
	if d := workflow.CanRevertToDraft(p, roster.Find(p.ID), snapshot, interacted); !d.Allowed {
		return nil, errors.Forbidden(d.Reason)
	}

	change := workflow.RevertSheetChange()
	if err := s.applySheetChange(ctx, p, sheet, change, "reverted", nil); err != nil {
		return nil, err
	}

	s.notifier.PublishWorkflowEvent(ctx, "time_sheet_reverted", "time_sheet", sheet.ID,
		derefOrEmpty(sheet.ProjectID), p.ID, creatorRecipient(sheet, p.ID), nil)
	return sheet, nil
}

// AuditTrail returns a sheet's full audit log after a view check.
func (s *TimeSheetService) AuditTrail(ctx context.Context, p authz.Principal, sheetID string) ([]*repository.AuditEntry, error) {
	_, roster, err := s.loadSheetContext(ctx, sheetID)
	if err != nil {
		return nil, err
	}
	if !authz.CanOnProject(p, roster.Find(p.ID), authz.PermTimeSheetsView) {
		return nil, errors.Forbidden("You do not have permission to view time sheets.")
	}
	return s.auditRepo.GetBySheet(ctx, sheetID)
}

// ── internals ────────────────────────────────────────────────────────────────

// approveStage enforces multi_stage sequencing. Stage progress is derived
// from the audit trail: the count of stage_approved records since the current
// submission.
func (s *TimeSheetService) approveStage(ctx context.Context, p authz.Principal, sheet *repository.TimeSheet, roster authz.Roster, settings *repository.ApprovalSettings, snapshot workflow.SheetSnapshot) (*ApproveSheetResult, error) {
	plan := workflow.BuildStagePlan(settings.ApprovalStages)

	completed := 0
	if sheet.SubmittedDate != nil {
		var err error
		completed, err = s.auditRepo.CountActionSince(ctx, sheet.ID, "stage_approved", *sheet.SubmittedDate)
		if err != nil {
			return nil, err
		}
	}

	if d := workflow.CanApproveStage(p, roster.Find(p.ID), roster, snapshot, plan, completed); !d.Allowed {
		return nil, errors.Forbidden(d.Reason)
	}

	stageMeta := map[string]interface{}{
		"stage":        completed + 1,
		"total_stages": plan.TotalStages(),
	}

	if !plan.Complete(completed + 1) {
		statusSubmitted := string(workflow.SheetSubmitted)
		audit := &repository.AuditEntry{
			ProjectID:    derefOrEmpty(sheet.ProjectID),
			SheetID:      &sheet.ID,
			Action:       "stage_approved",
			PerformedBy:  p.ID,
			StatusBefore: &statusSubmitted,
			StatusAfter:  &statusSubmitted,
			Metadata:     stageMeta,
		}
		if err := s.auditRepo.Append(ctx, audit); err != nil {
			return nil, err
		}

		s.notifier.PublishWorkflowEvent(ctx, "time_sheet_stage_approved", "time_sheet", sheet.ID,
			derefOrEmpty(sheet.ProjectID), p.ID, approverRecipients(roster, p.ID), stageMeta)

		s.log.Info().
			Str("sheet_id", sheet.ID).
			Int("stage", completed+1).
			Int("total_stages", plan.TotalStages()).
			Str("performed_by", p.ID).
			Msg("time sheet stage approved")
		return &ApproveSheetResult{
			Sheet:          sheet,
			StagesApproved: completed + 1,
			TotalStages:    plan.TotalStages(),
		}, nil
	}

	if err := s.approveFully(ctx, p, sheet, roster, stageMeta); err != nil {
		return nil, err
	}
	return &ApproveSheetResult{
		Sheet:          sheet,
		FullyApproved:  true,
		StagesApproved: plan.TotalStages(),
		TotalStages:    plan.TotalStages(),
	}, nil
}

// approveFully applies the approved transition with the linked-entry
// approvedDate cascade, records the audit entry and notifies the creator.
func (s *TimeSheetService) approveFully(ctx context.Context, p authz.Principal, sheet *repository.TimeSheet, roster authz.Roster, metadata map[string]interface{}) error {
	change := workflow.ApproveSheetChange(time.Now().UTC(), sheet.SubmittedDate)
	if err := s.applySheetChange(ctx, p, sheet, change, "approved", metadata); err != nil {
		return err
	}

	s.notifier.PublishWorkflowEvent(ctx, "time_sheet_approved", "time_sheet", sheet.ID,
		derefOrEmpty(sheet.ProjectID), p.ID, creatorRecipient(sheet, p.ID), nil)
	return nil
}

// selfApprovePermitted implements the self_approve mode shortcut: the sheet's
// creator may approve their own submitted sheet, bypassing the role gate,
// when the project enables it and no client member exists.
func (s *TimeSheetService) selfApprovePermitted(p authz.Principal, sheet *repository.TimeSheet, roster authz.Roster, settings *repository.ApprovalSettings, snapshot workflow.SheetSnapshot) bool {
	if settings.ApprovalMode != repository.ApprovalModeSelfApprove {
		return false
	}
	if !settings.AllowSelfApproveNoClient {
		return false
	}
	if snapshot.Status != workflow.SheetSubmitted {
		return false
	}
	return sheet.CreatedBy == p.ID && !roster.HasRole(authz.RoleClient)
}

// hasClientInteraction reports whether a client or reviewer member acted on
// the sheet since its current submission, via either a workflow action or an
// entry message. No submission means no interaction.
func (s *TimeSheetService) hasClientInteraction(ctx context.Context, sheet *repository.TimeSheet, roster authz.Roster) (bool, error) {
	if sheet.SubmittedDate == nil {
		return false, nil
	}

	actors := make(map[string]struct{})

	audits, err := s.auditRepo.GetBySheetSince(ctx, sheet.ID, *sheet.SubmittedDate)
	if err != nil {
		return false, err
	}
	for _, a := range audits {
		if a.Action == "submitted" {
			continue
		}
		actors[a.PerformedBy] = struct{}{}
	}

	authors, err := s.messageRepo.AuthorsOnSheetSince(ctx, sheet.ID, *sheet.SubmittedDate)
	if err != nil {
		return false, err
	}
	for _, author := range authors {
		actors[author] = struct{}{}
	}

	for actor := range actors {
		if m := roster.Find(actor); m != nil {
			if m.Role == authz.RoleClient || m.Role == authz.RoleReviewer {
				return true, nil
			}
		}
	}
	return false, nil
}

// applySheetChange persists the transition, mirrors it onto the in-memory
// sheet and appends the audit record.
func (s *TimeSheetService) applySheetChange(ctx context.Context, p authz.Principal, sheet *repository.TimeSheet, change workflow.SheetStatusChange, auditAction string, metadata map[string]interface{}) error {
	if err := s.sheetRepo.ApplyStatusChange(ctx, sheet.ID, change); err != nil {
		return err
	}

	statusBefore := string(sheet.Status)
	statusAfter := string(change.Status)
	audit := &repository.AuditEntry{
		ProjectID:    derefOrEmpty(sheet.ProjectID),
		SheetID:      &sheet.ID,
		Action:       auditAction,
		PerformedBy:  p.ID,
		StatusBefore: &statusBefore,
		StatusAfter:  &statusAfter,
		Metadata:     metadata,
	}
	if err := s.auditRepo.Append(ctx, audit); err != nil {
		return err
	}

	sheet.Status = change.Status
	sheet.SubmittedDate = change.SubmittedDate
	sheet.ApprovedDate = change.ApprovedDate
	sheet.RejectedDate = change.RejectedDate
	sheet.RejectionReason = change.RejectionReason

	s.log.Info().
		Str("sheet_id", sheet.ID).
		Str("action", auditAction).
		Str("performed_by", p.ID).
		Msg("time sheet status changed")
	return nil
}

func (s *TimeSheetService) loadSheetContext(ctx context.Context, sheetID string) (*repository.TimeSheet, authz.Roster, error) {
	sheet, err := s.sheetRepo.GetByID(ctx, sheetID)
	if err != nil {
		return nil, nil, err
	}

	var roster authz.Roster
	if sheet.ProjectID != nil {
		roster, err = s.membershipRepo.Roster(ctx, *sheet.ProjectID)
		if err != nil {
			return nil, nil, err
		}
	}
	return sheet, roster, nil
}

func (s *TimeSheetService) settingsFor(ctx context.Context, projectID *string) (*repository.ApprovalSettings, error) {
	if projectID == nil {
		return repository.DefaultSettings(""), nil
	}
	return s.settingsRepo.GetOrCreate(ctx, *projectID)
}

// approverRecipients returns the ids of roster members whose role carries the
// sheet-approve permission, excluding the acting user.
func approverRecipients(roster authz.Roster, exclude string) []string {
	var recipients []string
	for _, m := range roster {
		if m.UserID == exclude {
			continue
		}
		if authz.HasProjectPermission(m.Role, authz.PermTimeSheetsApprove) {
			recipients = append(recipients, m.UserID)
		}
	}
	return recipients
}

// creatorRecipient returns the sheet creator as the sole recipient, or none
// when the creator is the acting user.
func creatorRecipient(sheet *repository.TimeSheet, actor string) []string {
	if sheet.CreatedBy == actor {
		return nil
	}
	return []string{sheet.CreatedBy}
}

func sameProject(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
