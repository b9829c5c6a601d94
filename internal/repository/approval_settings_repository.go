package repository

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tempora-hq/be-tt-timesheets/internal/authz"
	"github.com/tempora-hq/be-tt-timesheets/pkg/database"
	"github.com/tempora-hq/be-tt-timesheets/pkg/errors"
)

// ApprovalSettingsRepository manages the one-per-project approval settings
// row, materializing defaults on first access.
type ApprovalSettingsRepository struct {
	db *database.DB
}

// NewApprovalSettingsRepository creates a new ApprovalSettingsRepository.
func NewApprovalSettingsRepository(db *database.DB) *ApprovalSettingsRepository {
	return &ApprovalSettingsRepository{db: db}
}

// DefaultSettings returns the defaults applied on first access.
func DefaultSettings(projectID string) *ApprovalSettings {
	return &ApprovalSettings{
		ProjectID:                 projectID,
		ApprovalMode:              ApprovalModeRequired,
		AutoApproveAfterDays:      0,
		RequireAllEntriesApproved: true,
		AllowSelfApproveNoClient:  false,
		ApprovalStages:            nil,
	}
}

// GetOrCreate returns the project's settings, inserting defaults when no row
// exists yet. The insert races safely via ON CONFLICT DO NOTHING.
func (r *ApprovalSettingsRepository) GetOrCreate(ctx context.Context, projectID string) (*ApprovalSettings, error) {
	defaults := DefaultSettings(projectID)

	insertQuery := `
		INSERT INTO approval_settings
		    (id, project_id, approval_mode, auto_approve_after_days,
		     require_all_entries_approved, allow_self_approve_no_client, approval_stages)
		VALUES ($1, $2, $3, $4, $5, $6, NULL)
		ON CONFLICT (project_id) DO NOTHING
	`

	_, err := r.db.Exec(ctx, insertQuery,
		uuid.New().String(),
		defaults.ProjectID,
		defaults.ApprovalMode,
		defaults.AutoApproveAfterDays,
		defaults.RequireAllEntriesApproved,
		defaults.AllowSelfApproveNoClient,
	)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to materialize approval settings")
	}

	return r.getByProject(ctx, projectID)
}

// SettingsPatch is a partial update; nil fields are left unchanged. An
// explicitly provided ApprovalStages replaces the stored list.
type SettingsPatch struct {
	ApprovalMode              *ApprovalMode
	AutoApproveAfterDays      *int
	RequireAllEntriesApproved *bool
	AllowSelfApproveNoClient  *bool
	ApprovalStages            *[]authz.ProjectRole
}

// Update applies a partial patch to a project's settings.
func (r *ApprovalSettingsRepository) Update(ctx context.Context, projectID string, patch SettingsPatch) (*ApprovalSettings, error) {
	var stagesJSON []byte
	if patch.ApprovalStages != nil {
		var err error
		stagesJSON, err = json.Marshal(*patch.ApprovalStages)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal approval stages")
		}
	}

	query := `
		UPDATE approval_settings
		SET approval_mode                = COALESCE($2, approval_mode),
		    auto_approve_after_days      = COALESCE($3, auto_approve_after_days),
		    require_all_entries_approved = COALESCE($4, require_all_entries_approved),
		    allow_self_approve_no_client = COALESCE($5, allow_self_approve_no_client),
		    approval_stages              = CASE WHEN $6 THEN $7 ELSE approval_stages END,
		    updated_at                   = NOW()
		WHERE project_id = $1
		RETURNING id
	`

	var returnedID string
	err := r.db.QueryRow(ctx, query,
		projectID,
		patch.ApprovalMode,
		patch.AutoApproveAfterDays,
		patch.RequireAllEntriesApproved,
		patch.AllowSelfApproveNoClient,
		patch.ApprovalStages != nil,
		stagesJSON,
	).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("approval_settings", projectID)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to update approval settings")
	}

	return r.getByProject(ctx, projectID)
}

// Delete removes a project's settings row; called on project deletion.
func (r *ApprovalSettingsRepository) Delete(ctx context.Context, projectID string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM approval_settings WHERE project_id = $1`, projectID)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to delete approval settings")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("approval_settings", projectID)
	}
	return nil
}

func (r *ApprovalSettingsRepository) getByProject(ctx context.Context, projectID string) (*ApprovalSettings, error) {
	query := `
		SELECT id, project_id, approval_mode, auto_approve_after_days,
		       require_all_entries_approved, allow_self_approve_no_client,
		       approval_stages, created_at, updated_at
		FROM approval_settings
		WHERE project_id = $1
	`

	settings := &ApprovalSettings{}
	var stagesJSON []byte

	err := r.db.QueryRow(ctx, query, projectID).Scan(
		&settings.ID,
		&settings.ProjectID,
		&settings.ApprovalMode,
		&settings.AutoApproveAfterDays,
		&settings.RequireAllEntriesApproved,
		&settings.AllowSelfApproveNoClient,
		&stagesJSON,
		&settings.CreatedAt,
		&settings.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("approval_settings", projectID)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get approval settings")
	}

	if stagesJSON != nil {
		if err := json.Unmarshal(stagesJSON, &settings.ApprovalStages); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal approval stages")
		}
	}
	return settings, nil
}
