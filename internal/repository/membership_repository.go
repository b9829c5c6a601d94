package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/tempora-hq/be-tt-timesheets/internal/authz"
	"github.com/tempora-hq/be-tt-timesheets/pkg/database"
	"github.com/tempora-hq/be-tt-timesheets/pkg/errors"
)

// MembershipRepository manages project membership rows.
type MembershipRepository struct {
	db *database.DB
}

// NewMembershipRepository creates a new MembershipRepository.
func NewMembershipRepository(db *database.DB) *MembershipRepository {
	return &MembershipRepository{db: db}
}

// Upsert adds a user to a project or changes their role. The unique index on
// (project_id, user_id) keeps one membership per pair.
func (r *MembershipRepository) Upsert(ctx context.Context, m *ProjectMembership) error {
	query := `
		INSERT INTO project_memberships (project_id, user_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (project_id, user_id)
		DO UPDATE SET role = EXCLUDED.role, updated_at = NOW()
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query, m.ProjectID, m.UserID, m.Role).
		Scan(&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to upsert project membership")
	}
	return nil
}

// Remove deletes a user's membership on a project.
func (r *MembershipRepository) Remove(ctx context.Context, projectID, userID string) error {
	query := `
		DELETE FROM project_memberships
		WHERE project_id = $1 AND user_id = $2
	`

	tag, err := r.db.Exec(ctx, query, projectID, userID)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to remove project membership")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("project_membership", userID)
	}
	return nil
}

// Get returns a user's membership on a project, or nil when the user is not
// a member.
func (r *MembershipRepository) Get(ctx context.Context, projectID, userID string) (*ProjectMembership, error) {
	query := `
		SELECT project_id, user_id, role, created_at, updated_at
		FROM project_memberships
		WHERE project_id = $1 AND user_id = $2
	`

	m := &ProjectMembership{}
	err := r.db.QueryRow(ctx, query, projectID, userID).
		Scan(&m.ProjectID, &m.UserID, &m.Role, &m.CreatedAt, &m.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get project membership")
	}
	return m, nil
}

// List returns every membership on a project.
func (r *MembershipRepository) List(ctx context.Context, projectID string) ([]*ProjectMembership, error) {
	query := `
		SELECT project_id, user_id, role, created_at, updated_at
		FROM project_memberships
		WHERE project_id = $1
		ORDER BY created_at ASC
	`

	rows, err := r.db.Query(ctx, query, projectID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list project memberships")
	}
	defer rows.Close()

	var memberships []*ProjectMembership
	for rows.Next() {
		m := &ProjectMembership{}
		if err := rows.Scan(&m.ProjectID, &m.UserID, &m.Role, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan project membership")
		}
		memberships = append(memberships, m)
	}
	return memberships, nil
}

// Roster returns the project's full membership list in evaluator form.
func (r *MembershipRepository) Roster(ctx context.Context, projectID string) (authz.Roster, error) {
	memberships, err := r.List(ctx, projectID)
	if err != nil {
		return nil, err
	}

	roster := make(authz.Roster, 0, len(memberships))
	for _, m := range memberships {
		roster = append(roster, authz.Membership{UserID: m.UserID, Role: m.Role})
	}
	return roster, nil
}
