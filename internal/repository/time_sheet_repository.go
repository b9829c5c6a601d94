package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tempora-hq/be-tt-timesheets/internal/workflow"
	"github.com/tempora-hq/be-tt-timesheets/pkg/database"
	"github.com/tempora-hq/be-tt-timesheets/pkg/errors"
)

// TimeSheetRepository manages time sheet rows and the sheet-entry link table.
type TimeSheetRepository struct {
	db *database.DB
}

// NewTimeSheetRepository creates a new TimeSheetRepository.
func NewTimeSheetRepository(db *database.DB) *TimeSheetRepository {
	return &TimeSheetRepository{db: db}
}

const timeSheetColumns = `
	id, project_id, org_id, account_id, status,
	submitted_date, approved_date, rejected_date, rejection_reason,
	created_by, created_at, updated_at`

// Create inserts a new time sheet in draft status.
func (r *TimeSheetRepository) Create(ctx context.Context, sheet *TimeSheet) error {
	sheet.ID = uuid.New().String()
	sheet.Status = workflow.SheetDraft

	query := `
		INSERT INTO time_sheets (id, project_id, org_id, account_id, status, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query,
		sheet.ID,
		sheet.ProjectID,
		sheet.OrgID,
		sheet.AccountID,
		sheet.Status,
		sheet.CreatedBy,
	).Scan(&sheet.CreatedAt, &sheet.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create time sheet")
	}
	return nil
}

// GetByID retrieves a sheet by primary key.
func (r *TimeSheetRepository) GetByID(ctx context.Context, id string) (*TimeSheet, error) {
	query := `SELECT ` + timeSheetColumns + ` FROM time_sheets WHERE id = $1`

	sheet, err := r.scanSheet(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("time_sheet", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get time sheet")
	}
	return sheet, nil
}

// ListByProject returns a project's sheets, newest first.
func (r *TimeSheetRepository) ListByProject(ctx context.Context, projectID string) ([]*TimeSheet, error) {
	query := `
		SELECT ` + timeSheetColumns + `
		FROM time_sheets
		WHERE project_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.Query(ctx, query, projectID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list time sheets")
	}
	defer rows.Close()

	var sheets []*TimeSheet
	for rows.Next() {
		sheet, err := r.scanSheet(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan time sheet")
		}
		sheets = append(sheets, sheet)
	}
	return sheets, nil
}

// AddEntry links an entry into a sheet with a cleared approval mirror.
func (r *TimeSheetRepository) AddEntry(ctx context.Context, sheetID, entryID string) error {
	query := `
		INSERT INTO time_sheet_entries (sheet_id, entry_id)
		VALUES ($1, $2)
		ON CONFLICT (sheet_id, entry_id) DO NOTHING
	`

	_, err := r.db.Exec(ctx, query, sheetID, entryID)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to link entry to time sheet")
	}
	return nil
}

// RemoveEntry unlinks an entry from a sheet.
func (r *TimeSheetRepository) RemoveEntry(ctx context.Context, sheetID, entryID string) error {
	query := `
		DELETE FROM time_sheet_entries
		WHERE sheet_id = $1 AND entry_id = $2
	`

	tag, err := r.db.Exec(ctx, query, sheetID, entryID)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to unlink entry from time sheet")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("time_sheet_entry", entryID)
	}
	return nil
}

// GetLink returns the link row for an entry in a sheet, or nil.
func (r *TimeSheetRepository) GetLink(ctx context.Context, sheetID, entryID string) (*TimeSheetEntry, error) {
	query := `
		SELECT sheet_id, entry_id, approved_in_sheet, approved_in_sheet_at, approved_in_sheet_by, created_at
		FROM time_sheet_entries
		WHERE sheet_id = $1 AND entry_id = $2
	`

	link := &TimeSheetEntry{}
	err := r.db.QueryRow(ctx, query, sheetID, entryID).Scan(
		&link.SheetID,
		&link.EntryID,
		&link.ApprovedInSheet,
		&link.ApprovedInSheetAt,
		&link.ApprovedInSheetBy,
		&link.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get sheet entry link")
	}
	return link, nil
}

// EntryStatuses returns the status of every entry linked to a sheet, for the
// approval-eligibility check.
func (r *TimeSheetRepository) EntryStatuses(ctx context.Context, sheetID string) ([]workflow.EntryStatus, error) {
	query := `
		SELECT e.status
		FROM time_entries e
		JOIN time_sheet_entries l ON l.entry_id = e.id
		WHERE l.sheet_id = $1
	`

	rows, err := r.db.Query(ctx, query, sheetID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get sheet entry statuses")
	}
	defer rows.Close()

	var statuses []workflow.EntryStatus
	for rows.Next() {
		var status workflow.EntryStatus
		if err := rows.Scan(&status); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan entry status")
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

// ApplyStatusChange writes a sheet transition and, for approvals, stamps
// every linked entry's approved_date in the same transaction. The cascade
// leaves entry status fields untouched.
func (r *TimeSheetRepository) ApplyStatusChange(ctx context.Context, sheetID string, change workflow.SheetStatusChange) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		sheetQuery := `
			UPDATE time_sheets
			SET status           = $2,
			    submitted_date   = $3,
			    approved_date    = $4,
			    rejected_date    = $5,
			    rejection_reason = $6,
			    updated_at       = NOW()
			WHERE id = $1
			RETURNING id
		`

		var returnedID string
		err := tx.QueryRow(ctx, sheetQuery,
			sheetID,
			change.Status,
			change.SubmittedDate,
			change.ApprovedDate,
			change.RejectedDate,
			change.RejectionReason,
		).Scan(&returnedID)
		if err == pgx.ErrNoRows {
			return errors.NotFound("time_sheet", sheetID)
		}
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to update time sheet status")
		}

		if !change.CascadeEntryApprovedDate {
			return nil
		}

		cascadeQuery := `
			UPDATE time_entries
			SET approved_date = $2,
			    updated_at    = NOW()
			WHERE id IN (SELECT entry_id FROM time_sheet_entries WHERE sheet_id = $1)
		`

		if _, err := tx.Exec(ctx, cascadeQuery, sheetID, change.ApprovedDate); err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to stamp entry approval dates")
		}
		return nil
	})
}

// ── scan helper ──────────────────────────────────────────────────────────────

type sheetScanner interface {
	Scan(dest ...any) error
}

func (r *TimeSheetRepository) scanSheet(row sheetScanner) (*TimeSheet, error) {
	sheet := &TimeSheet{}
	err := row.Scan(
		&sheet.ID,
		&sheet.ProjectID,
		&sheet.OrgID,
		&sheet.AccountID,
		&sheet.Status,
		&sheet.SubmittedDate,
		&sheet.ApprovedDate,
		&sheet.RejectedDate,
		&sheet.RejectionReason,
		&sheet.CreatedBy,
		&sheet.CreatedAt,
		&sheet.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return sheet, nil
}
