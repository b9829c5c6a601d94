package service

import (
	"context"

	"github.com/tempora-hq/be-tt-timesheets/internal/authz"
	"github.com/tempora-hq/be-tt-timesheets/internal/repository"
	"github.com/tempora-hq/be-tt-timesheets/pkg/errors"
	"github.com/tempora-hq/be-tt-timesheets/pkg/logger"
)

// MembershipService manages project membership rows.
type MembershipService struct {
	membershipRepo *repository.MembershipRepository
	log            *logger.Logger
}

// NewMembershipService creates a new membership service.
func NewMembershipService(membershipRepo *repository.MembershipRepository, log *logger.Logger) *MembershipService {
	return &MembershipService{membershipRepo: membershipRepo, log: log}
}

// SetRole adds a user to a project or changes their role. A second call for
// the same (project, user) pair updates the role in place.
func (s *MembershipService) SetRole(ctx context.Context, p authz.Principal, projectID, userID, role string) (*repository.ProjectMembership, error) {
	if !authz.ValidProjectRole(role) {
		return nil, errors.InvalidInput("role", "unknown project role: "+role)
	}

	roster, err := s.membershipRepo.Roster(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !authz.CanOnProject(p, roster.Find(p.ID), authz.PermMembersManage) {
		return nil, errors.Forbidden("You do not have permission to manage project members.")
	}

	m := &repository.ProjectMembership{
		ProjectID: projectID,
		UserID:    userID,
		Role:      authz.ProjectRole(role),
	}
	if err := s.membershipRepo.Upsert(ctx, m); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("project_id", projectID).
		Str("user_id", userID).
		Str("role", role).
		Str("set_by", p.ID).
		Msg("project membership set")
	return m, nil
}

// Remove deletes a user's membership on a project.
func (s *MembershipService) Remove(ctx context.Context, p authz.Principal, projectID, userID string) error {
	roster, err := s.membershipRepo.Roster(ctx, projectID)
	if err != nil {
		return err
	}
	if !authz.CanOnProject(p, roster.Find(p.ID), authz.PermMembersManage) {
		return errors.Forbidden("You do not have permission to manage project members.")
	}
	return s.membershipRepo.Remove(ctx, projectID, userID)
}

// List returns every membership on a project.
func (s *MembershipService) List(ctx context.Context, p authz.Principal, projectID string) ([]*repository.ProjectMembership, error) {
	roster, err := s.membershipRepo.Roster(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !authz.CanOnProject(p, roster.Find(p.ID), authz.PermMembersView) {
		return nil, errors.Forbidden("You do not have permission to view project members.")
	}
	return s.membershipRepo.List(ctx, projectID)
}
