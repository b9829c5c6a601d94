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

// autoApprovalActor is recorded as the status-change actor when the sweep
// approves an entry; it is never a real user id.
const autoApprovalActor = "auto_approval"

// TimeEntryService handles time entry business logic: CRUD on entries and the
// entry status state machine (approve / question / revert), with the
// sheet-scoped approval mirror kept in sync atomically.
type TimeEntryService struct {
	entryRepo      *repository.TimeEntryRepository
	sheetRepo      *repository.TimeSheetRepository
	membershipRepo *repository.MembershipRepository
	messageRepo    *repository.EntryMessageRepository
	auditRepo      *repository.AuditRepository
	notifier       *client.NotificationPublisher
	log            *logger.Logger
}

// NewTimeEntryService creates a new time entry service.
func NewTimeEntryService(
	entryRepo *repository.TimeEntryRepository,
	sheetRepo *repository.TimeSheetRepository,
	membershipRepo *repository.MembershipRepository,
	messageRepo *repository.EntryMessageRepository,
	auditRepo *repository.AuditRepository,
	notifier *client.NotificationPublisher,
	log *logger.Logger,
) *TimeEntryService {
	return &TimeEntryService{
		entryRepo:      entryRepo,
		sheetRepo:      sheetRepo,
		membershipRepo: membershipRepo,
		messageRepo:    messageRepo,
		auditRepo:      auditRepo,
		notifier:       notifier,
		log:            log,
	}
}

// CreateEntryRequest represents a create time entry request.
type CreateEntryRequest struct {
	ProjectID string
	OrgID     *string
	Title     string
	Hours     float64
	Date      string // YYYY-MM-DD
}

// UpdateEntryRequest represents an edit to an entry's descriptive fields.
type UpdateEntryRequest struct {
	ID    string
	Title string
	Hours float64
	Date  string
}

// EntryActionRequest represents a status transition request on an entry.
// SheetID, when set, scopes the approval mirror write to that sheet's link.
type EntryActionRequest struct {
	EntryID string
	SheetID *string
	Comment *string
}

// CreateEntry creates a new time entry in pending status.
func (s *TimeEntryService) CreateEntry(ctx context.Context, p authz.Principal, req *CreateEntryRequest) (*repository.TimeEntry, error) {
	if req.ProjectID == "" {
		return nil, errors.InvalidInput("project_id", "project id is required")
	}
	if req.Title == "" {
		return nil, errors.InvalidInput("title", "title is required")
	}
	if req.Hours <= 0 {
		return nil, errors.InvalidInput("hours", "hours must be greater than zero")
	}
	if _, err := time.Parse("2006-01-02", req.Date); err != nil {
		return nil, errors.InvalidInput("date", "invalid date format, expected YYYY-MM-DD")
	}

	roster, err := s.membershipRepo.Roster(ctx, req.ProjectID)
	if err != nil {
		return nil, err
	}
	if !authz.CanOnProject(p, roster.Find(p.ID), authz.PermTimeEntriesCreate) {
		return nil, errors.Forbidden("You do not have permission to create time entries.")
	}

	entry := &repository.TimeEntry{
		ProjectID: &req.ProjectID,
		OrgID:     req.OrgID,
		Title:     req.Title,
		Hours:     req.Hours,
		Date:      req.Date,
		CreatedBy: p.ID,
	}
	if err := s.entryRepo.Create(ctx, entry); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("entry_id", entry.ID).
		Str("project_id", req.ProjectID).
		Str("created_by", p.ID).
		Msg("time entry created")
	return entry, nil
}

// GetEntry returns an entry after a project view check.
func (s *TimeEntryService) GetEntry(ctx context.Context, p authz.Principal, id string) (*repository.TimeEntry, error) {
	entry, err := s.entryRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	roster, err := s.rosterFor(ctx, entry.ProjectID)
	if err != nil {
		return nil, err
	}
	if !authz.CanOnProject(p, roster.Find(p.ID), authz.PermTimeEntriesView) {
		return nil, errors.Forbidden("You do not have permission to view time entries.")
	}
	return entry, nil
}

// ListEntries returns a project's entries after a view check.
func (s *TimeEntryService) ListEntries(ctx context.Context, p authz.Principal, projectID string) ([]*repository.TimeEntry, error) {
	roster, err := s.membershipRepo.Roster(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !authz.CanOnProject(p, roster.Find(p.ID), authz.PermTimeEntriesView) {
		return nil, errors.Forbidden("You do not have permission to view time entries.")
	}
	return s.entryRepo.ListByProject(ctx, projectID)
}

// UpdateEntry edits an entry's descriptive fields. Approved entries are
// locked; they must be reverted before editing.
func (s *TimeEntryService) UpdateEntry(ctx context.Context, p authz.Principal, req *UpdateEntryRequest) (*repository.TimeEntry, error) {
	if req.Title == "" {
		return nil, errors.InvalidInput("title", "title is required")
	}
	if req.Hours <= 0 {
		return nil, errors.InvalidInput("hours", "hours must be greater than zero")
	}
	if _, err := time.Parse("2006-01-02", req.Date); err != nil {
		return nil, errors.InvalidInput("date", "invalid date format, expected YYYY-MM-DD")
	}

	entry, err := s.entryRepo.GetByID(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	if entry.Status == workflow.EntryApproved {
		return nil, errors.New(errors.ErrCodeConflict, "approved entries cannot be edited")
	}

	roster, err := s.rosterFor(ctx, entry.ProjectID)
	if err != nil {
		return nil, err
	}
	if !authz.CanOnProject(p, roster.Find(p.ID), authz.PermTimeEntriesEdit) {
		return nil, errors.Forbidden("You do not have permission to edit time entries.")
	}

	entry.Title = req.Title
	entry.Hours = req.Hours
	entry.Date = req.Date
	if err := s.entryRepo.Update(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// DeleteEntry removes an entry and its sheet links. Approved entries are
// locked.
func (s *TimeEntryService) DeleteEntry(ctx context.Context, p authz.Principal, id string) error {
	entry, err := s.entryRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if entry.Status == workflow.EntryApproved {
		return errors.New(errors.ErrCodeConflict, "approved entries cannot be deleted")
	}

	roster, err := s.rosterFor(ctx, entry.ProjectID)
	if err != nil {
		return err
	}
	if !authz.CanOnProject(p, roster.Find(p.ID), authz.PermTimeEntriesDelete) {
		return errors.Forbidden("You do not have permission to delete time entries.")
	}

	if err := s.entryRepo.Delete(ctx, id); err != nil {
		return err
	}

	s.log.Info().Str("entry_id", id).Str("deleted_by", p.ID).Msg("time entry deleted")
	return nil
}

// ApproveEntry transitions an entry to approved. When a sheet context is
// given, the sheet-link approval mirror is stamped in the same transaction.
func (s *TimeEntryService) ApproveEntry(ctx context.Context, p authz.Principal, req *EntryActionRequest) (*repository.TimeEntry, error) {
	entry, roster, err := s.loadEntryContext(ctx, req)
	if err != nil {
		return nil, err
	}

	snapshot := workflow.EntrySnapshot{CreatedBy: entry.CreatedBy, Status: entry.Status}
	if d := workflow.CanApproveEntry(p, roster.Find(p.ID), roster, snapshot); !d.Allowed {
		return nil, errors.Forbidden(d.Reason)
	}

	change := workflow.ApproveEntryChange(p.ID, time.Now().UTC())
	return s.applyEntryChange(ctx, p, entry, req, change, "entry_approved", "time_entry_approved", nil)
}

// QuestionEntry transitions an entry to questioned, clearing approvedDate and
// revoking any sheet-scoped approval mark.
func (s *TimeEntryService) QuestionEntry(ctx context.Context, p authz.Principal, req *EntryActionRequest) (*repository.TimeEntry, error) {
	entry, roster, err := s.loadEntryContext(ctx, req)
	if err != nil {
		return nil, err
	}

	if d := workflow.CanQuestionEntry(p, roster.Find(p.ID)); !d.Allowed {
		return nil, errors.Forbidden(d.Reason)
	}

	change := workflow.QuestionEntryChange(p.ID, time.Now().UTC())
	return s.applyEntryChange(ctx, p, entry, req, change, "entry_questioned", "time_entry_questioned", nil)
}

// RevertEntry returns an entry to pending.
func (s *TimeEntryService) RevertEntry(ctx context.Context, p authz.Principal, req *EntryActionRequest) (*repository.TimeEntry, error) {
	entry, roster, err := s.loadEntryContext(ctx, req)
	if err != nil {
		return nil, err
	}

	if d := workflow.CanRevertEntry(p, roster.Find(p.ID)); !d.Allowed {
		return nil, errors.Forbidden(d.Reason)
	}

	change := workflow.RevertEntryChange(p.ID, time.Now().UTC())
	return s.applyEntryChange(ctx, p, entry, req, change, "entry_reverted", "", nil)
}

// AutoApproveDue approves every pending entry older than its project's
// auto-approval window. Per-entry failures are logged and skipped so one bad
// row cannot stall the sweep. Returns the number of entries approved.
func (s *TimeEntryService) AutoApproveDue(ctx context.Context, now time.Time) (int, error) {
	due, err := s.entryRepo.ListAutoApprovable(ctx, now)
	if err != nil {
		return 0, err
	}

	approved := 0
	for _, entry := range due {
		change := workflow.ApproveEntryChange(autoApprovalActor, now)
		if err := s.entryRepo.ApplyStatusChange(ctx, entry.ID, nil, change); err != nil {
			s.log.Warn().Err(err).Str("entry_id", entry.ID).Msg("auto-approval: failed to approve entry")
			continue
		}

		statusBefore := string(entry.Status)
		statusAfter := string(workflow.EntryApproved)
		audit := &repository.AuditEntry{
			ProjectID:    derefOrEmpty(entry.ProjectID),
			EntryID:      &entry.ID,
			Action:       "entry_approved",
			PerformedBy:  autoApprovalActor,
			StatusBefore: &statusBefore,
			StatusAfter:  &statusAfter,
			Metadata:     map[string]interface{}{"auto": true},
		}
		if err := s.auditRepo.Append(ctx, audit); err != nil {
			s.log.Warn().Err(err).Str("entry_id", entry.ID).Msg("auto-approval: failed to append audit entry")
		}

		s.notifier.PublishWorkflowEvent(ctx, "time_entry_auto_approved", "time_entry", entry.ID,
			derefOrEmpty(entry.ProjectID), autoApprovalActor, []string{entry.CreatedBy}, nil)
		approved++
	}
	return approved, nil
}

// CreateMessage posts a comment on an entry.
func (s *TimeEntryService) CreateMessage(ctx context.Context, p authz.Principal, entryID string, parentID *string, body string) (*repository.EntryMessage, error) {
	if body == "" {
		return nil, errors.InvalidInput("body", "message body is required")
	}

	entry, err := s.entryRepo.GetByID(ctx, entryID)
	if err != nil {
		return nil, err
	}

	roster, err := s.rosterFor(ctx, entry.ProjectID)
	if err != nil {
		return nil, err
	}
	if !authz.CanOnProject(p, roster.Find(p.ID), authz.PermMessagesCreate) {
		return nil, errors.Forbidden("You do not have permission to comment on time entries.")
	}

	msg := &repository.EntryMessage{
		EntryID:  entryID,
		ParentID: parentID,
		AuthorID: p.ID,
		Body:     body,
	}
	if err := s.messageRepo.Create(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// ListMessages returns an entry's comment thread.
func (s *TimeEntryService) ListMessages(ctx context.Context, p authz.Principal, entryID string) ([]*repository.EntryMessage, error) {
	entry, err := s.entryRepo.GetByID(ctx, entryID)
	if err != nil {
		return nil, err
	}

	roster, err := s.rosterFor(ctx, entry.ProjectID)
	if err != nil {
		return nil, err
	}
	if !authz.CanOnProject(p, roster.Find(p.ID), authz.PermMessagesView) {
		return nil, errors.Forbidden("You do not have permission to view entry messages.")
	}
	return s.messageRepo.ListByEntry(ctx, entryID)
}

// ── internals ────────────────────────────────────────────────────────────────

// loadEntryContext reads the entry, its project roster and, when a sheet
// context is given, verifies the sheet link exists.
func (s *TimeEntryService) loadEntryContext(ctx context.Context, req *EntryActionRequest) (*repository.TimeEntry, authz.Roster, error) {
	entry, err := s.entryRepo.GetByID(ctx, req.EntryID)
	if err != nil {
		return nil, nil, err
	}

	roster, err := s.rosterFor(ctx, entry.ProjectID)
	if err != nil {
		return nil, nil, err
	}

	if req.SheetID != nil {
		link, err := s.sheetRepo.GetLink(ctx, *req.SheetID, entry.ID)
		if err != nil {
			return nil, nil, err
		}
		if link == nil {
			return nil, nil, errors.InvalidInput("sheet_id", "entry is not linked to this time sheet")
		}
	}
	return entry, roster, nil
}

// applyEntryChange persists the transition, appends the audit record, posts
// an optional status-tagged comment and notifies the entry's creator.
func (s *TimeEntryService) applyEntryChange(ctx context.Context, p authz.Principal, entry *repository.TimeEntry, req *EntryActionRequest, change workflow.EntryStatusChange, auditAction, eventType string, metadata map[string]interface{}) (*repository.TimeEntry, error) {
	if err := s.entryRepo.ApplyStatusChange(ctx, entry.ID, req.SheetID, change); err != nil {
		return nil, err
	}

	statusBefore := string(entry.Status)
	statusAfter := string(change.Status)
	audit := &repository.AuditEntry{
		ProjectID:    derefOrEmpty(entry.ProjectID),
		SheetID:      req.SheetID,
		EntryID:      &entry.ID,
		Action:       auditAction,
		PerformedBy:  p.ID,
		StatusBefore: &statusBefore,
		StatusAfter:  &statusAfter,
		Metadata:     metadata,
	}
	if err := s.auditRepo.Append(ctx, audit); err != nil {
		return nil, err
	}

	if req.Comment != nil && *req.Comment != "" {
		msg := &repository.EntryMessage{
			EntryID:      entry.ID,
			AuthorID:     p.ID,
			Body:         *req.Comment,
			StatusChange: &change.Status,
		}
		if err := s.messageRepo.Create(ctx, msg); err != nil {
			return nil, err
		}
	}

	if eventType != "" && entry.CreatedBy != p.ID {
		s.notifier.PublishWorkflowEvent(ctx, eventType, "time_entry", entry.ID,
			derefOrEmpty(entry.ProjectID), p.ID, []string{entry.CreatedBy},
			map[string]interface{}{"status": statusAfter})
	}

	entry.Status = change.Status
	entry.StatusChangedBy = &change.StatusChangedBy
	entry.StatusChangedAt = &change.StatusChangedAt
	entry.ApprovedDate = change.ApprovedDate

	s.log.Info().
		Str("entry_id", entry.ID).
		Str("action", auditAction).
		Str("performed_by", p.ID).
		Msg("time entry status changed")
	return entry, nil
}

// rosterFor loads the roster for an optional project id. Entries without a
// project carry an empty roster, so only system admins pass the role gates.
func (s *TimeEntryService) rosterFor(ctx context.Context, projectID *string) (authz.Roster, error) {
	if projectID == nil {
		return nil, nil
	}
	return s.membershipRepo.Roster(ctx, *projectID)
}

func derefOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
