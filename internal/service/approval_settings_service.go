package service

import (
	"context"

	"github.com/tempora-hq/be-tt-timesheets/internal/authz"
	"github.com/tempora-hq/be-tt-timesheets/internal/repository"
	"github.com/tempora-hq/be-tt-timesheets/pkg/errors"
	"github.com/tempora-hq/be-tt-timesheets/pkg/logger"
)

// ApprovalSettingsService manages per-project approval workflow
// configuration.
type ApprovalSettingsService struct {
	settingsRepo   *repository.ApprovalSettingsRepository
	membershipRepo *repository.MembershipRepository
	log            *logger.Logger
}

// NewApprovalSettingsService creates a new approval settings service.
func NewApprovalSettingsService(
	settingsRepo *repository.ApprovalSettingsRepository,
	membershipRepo *repository.MembershipRepository,
	log *logger.Logger,
) *ApprovalSettingsService {
	return &ApprovalSettingsService{
		settingsRepo:   settingsRepo,
		membershipRepo: membershipRepo,
		log:            log,
	}
}

// UpdateSettingsRequest is a partial patch; nil fields are left unchanged. An
// explicitly provided ApprovalStages replaces the stored list.
type UpdateSettingsRequest struct {
	ApprovalMode              *string
	AutoApproveAfterDays      *int
	RequireAllEntriesApproved *bool
	AllowSelfApproveNoClient  *bool
	ApprovalStages            *[]string
}

// Get returns a project's settings, materializing defaults on first access.
func (s *ApprovalSettingsService) Get(ctx context.Context, p authz.Principal, projectID string) (*repository.ApprovalSettings, error) {
	roster, err := s.membershipRepo.Roster(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !authz.CanOnProject(p, roster.Find(p.ID), authz.PermApprovalSettingsView) {
		return nil, errors.Forbidden("You do not have permission to view approval settings.")
	}
	return s.settingsRepo.GetOrCreate(ctx, projectID)
}

// Update validates and applies a partial patch to a project's settings.
func (s *ApprovalSettingsService) Update(ctx context.Context, p authz.Principal, projectID string, req *UpdateSettingsRequest) (*repository.ApprovalSettings, error) {
	roster, err := s.membershipRepo.Roster(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !authz.CanOnProject(p, roster.Find(p.ID), authz.PermApprovalSettingsEdit) {
		return nil, errors.Forbidden("You do not have permission to edit approval settings.")
	}

	patch := repository.SettingsPatch{
		AutoApproveAfterDays:      req.AutoApproveAfterDays,
		RequireAllEntriesApproved: req.RequireAllEntriesApproved,
		AllowSelfApproveNoClient:  req.AllowSelfApproveNoClient,
	}

	if req.ApprovalMode != nil {
		if !repository.ValidApprovalMode(*req.ApprovalMode) {
			return nil, errors.InvalidInput("approval_mode", "unknown approval mode")
		}
		mode := repository.ApprovalMode(*req.ApprovalMode)
		patch.ApprovalMode = &mode
	}

	if req.AutoApproveAfterDays != nil && *req.AutoApproveAfterDays < 0 {
		return nil, errors.InvalidInput("auto_approve_after_days", "must be zero or greater")
	}

	if req.ApprovalStages != nil {
		stages := make([]authz.ProjectRole, 0, len(*req.ApprovalStages))
		for _, raw := range *req.ApprovalStages {
			if !authz.ValidProjectRole(raw) {
				return nil, errors.InvalidInput("approval_stages", "unknown project role: "+raw)
			}
			stages = append(stages, authz.ProjectRole(raw))
		}
		patch.ApprovalStages = &stages
	}

	// Materialize the row first so a patch on a never-read project succeeds.
	if _, err := s.settingsRepo.GetOrCreate(ctx, projectID); err != nil {
		return nil, err
	}

	settings, err := s.settingsRepo.Update(ctx, projectID, patch)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("project_id", projectID).
		Str("updated_by", p.ID).
		Msg("approval settings updated")
	return settings, nil
}

// Delete removes a project's settings row; called on project deletion.
func (s *ApprovalSettingsService) Delete(ctx context.Context, p authz.Principal, projectID string) error {
	roster, err := s.membershipRepo.Roster(ctx, projectID)
	if err != nil {
		return err
	}
	if !authz.CanOnProject(p, roster.Find(p.ID), authz.PermApprovalSettingsEdit) {
		return errors.Forbidden("You do not have permission to edit approval settings.")
	}
	return s.settingsRepo.Delete(ctx, projectID)
}
