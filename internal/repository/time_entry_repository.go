package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tempora-hq/be-tt-timesheets/internal/workflow"
	"github.com/tempora-hq/be-tt-timesheets/pkg/database"
	"github.com/tempora-hq/be-tt-timesheets/pkg/errors"
)

// TimeEntryRepository handles time entry rows and the sheet-link approval
// mirror writes that accompany entry status transitions.
type TimeEntryRepository struct {
	db *database.DB
}

// NewTimeEntryRepository creates a new TimeEntryRepository.
func NewTimeEntryRepository(db *database.DB) *TimeEntryRepository {
	return &TimeEntryRepository{db: db}
}

const timeEntryColumns = `
	id, project_id, org_id, title, hours, date,
	status, status_changed_at, status_changed_by, approved_date,
	created_by, created_at, updated_at`

// Create inserts a new time entry in pending status.
func (r *TimeEntryRepository) Create(ctx context.Context, entry *TimeEntry) error {
	entry.ID = uuid.New().String()
	entry.Status = workflow.EntryPending

	query := `
		INSERT INTO time_entries
		    (id, project_id, org_id, title, hours, date, status, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query,
		entry.ID,
		entry.ProjectID,
		entry.OrgID,
		entry.Title,
		entry.Hours,
		entry.Date,
		entry.Status,
		entry.CreatedBy,
	).Scan(&entry.CreatedAt, &entry.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create time entry")
	}
	return nil
}

// GetByID retrieves an entry by primary key.
func (r *TimeEntryRepository) GetByID(ctx context.Context, id string) (*TimeEntry, error) {
	query := `SELECT ` + timeEntryColumns + ` FROM time_entries WHERE id = $1`

	entry, err := r.scanEntry(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("time_entry", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get time entry")
	}
	return entry, nil
}

// ListByProject returns a project's entries, newest first.
func (r *TimeEntryRepository) ListByProject(ctx context.Context, projectID string) ([]*TimeEntry, error) {
	query := `
		SELECT ` + timeEntryColumns + `
		FROM time_entries
		WHERE project_id = $1
		ORDER BY date DESC, created_at DESC
	`

	rows, err := r.db.Query(ctx, query, projectID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list time entries")
	}
	defer rows.Close()

	return r.scanRows(rows)
}

// Update persists edits to the descriptive fields.
func (r *TimeEntryRepository) Update(ctx context.Context, entry *TimeEntry) error {
	query := `
		UPDATE time_entries
		SET title      = $2,
		    hours      = $3,
		    date       = $4,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`

	err := r.db.QueryRow(ctx, query, entry.ID, entry.Title, entry.Hours, entry.Date).
		Scan(&entry.UpdatedAt)
	if err == pgx.ErrNoRows {
		return errors.NotFound("time_entry", entry.ID)
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to update time entry")
	}
	return nil
}

// Delete removes a time entry and its sheet links.
func (r *TimeEntryRepository) Delete(ctx context.Context, id string) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM time_sheet_entries WHERE entry_id = $1`, id); err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to unlink time entry")
		}

		tag, err := tx.Exec(ctx, `DELETE FROM time_entries WHERE id = $1`, id)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to delete time entry")
		}
		if tag.RowsAffected() == 0 {
			return errors.NotFound("time_entry", id)
		}
		return nil
	})
}

// ApplyStatusChange writes an entry transition and its sheet-link mirror in
// the same transaction, so the entry's global status and the per-sheet mirror
// never diverge. Approval marks are scoped to the sheet in context; a cleared
// mirror (question/revert) revokes the mark on every sheet the entry is
// linked to, sheet context or not.
func (r *TimeEntryRepository) ApplyStatusChange(ctx context.Context, entryID string, sheetID *string, change workflow.EntryStatusChange) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		entryQuery := `
			UPDATE time_entries
			SET status            = $2,
			    status_changed_at = $3,
			    status_changed_by = $4,
			    approved_date     = $5,
			    updated_at        = NOW()
			WHERE id = $1
			RETURNING id
		`

		var returnedID string
		err := tx.QueryRow(ctx, entryQuery,
			entryID,
			change.Status,
			change.StatusChangedAt,
			change.StatusChangedBy,
			change.ApprovedDate,
		).Scan(&returnedID)
		if err == pgx.ErrNoRows {
			return errors.NotFound("time_entry", entryID)
		}
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to update time entry status")
		}

		if !change.Mirror.Approved {
			clearQuery := `
				UPDATE time_sheet_entries
				SET approved_in_sheet    = FALSE,
				    approved_in_sheet_at = NULL,
				    approved_in_sheet_by = NULL
				WHERE entry_id = $1
			`

			if _, err := tx.Exec(ctx, clearQuery, entryID); err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to clear sheet approval mirror")
			}
			return nil
		}

		if sheetID == nil {
			return nil
		}

		mirrorQuery := `
			UPDATE time_sheet_entries
			SET approved_in_sheet    = TRUE,
			    approved_in_sheet_at = $3,
			    approved_in_sheet_by = $4
			WHERE sheet_id = $1 AND entry_id = $2
		`

		_, err = tx.Exec(ctx, mirrorQuery,
			*sheetID,
			entryID,
			change.Mirror.At,
			change.Mirror.By,
		)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to update sheet approval mirror")
		}
		return nil
	})
}

// ListAutoApprovable returns pending entries older than their project's
// auto-approval window, for projects that enable it.
func (r *TimeEntryRepository) ListAutoApprovable(ctx context.Context, now time.Time) ([]*TimeEntry, error) {
	query := `
		SELECT ` + prefixedEntryColumns("e") + `
		FROM time_entries e
		JOIN approval_settings s ON s.project_id = e.project_id
		WHERE e.status = 'pending'
		  AND s.auto_approve_after_days > 0
		  AND e.created_at < $1::timestamptz - make_interval(days => s.auto_approve_after_days)
	`

	rows, err := r.db.Query(ctx, query, now)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list auto-approvable entries")
	}
	defer rows.Close()

	return r.scanRows(rows)
}

// ── scan helpers ─────────────────────────────────────────────────────────────

func prefixedEntryColumns(alias string) string {
	return alias + `.id, ` + alias + `.project_id, ` + alias + `.org_id, ` + alias + `.title, ` +
		alias + `.hours, ` + alias + `.date, ` + alias + `.status, ` + alias + `.status_changed_at, ` +
		alias + `.status_changed_by, ` + alias + `.approved_date, ` + alias + `.created_by, ` +
		alias + `.created_at, ` + alias + `.updated_at`
}

type entryScanner interface {
	Scan(dest ...any) error
}

func (r *TimeEntryRepository) scanEntry(row entryScanner) (*TimeEntry, error) {
	entry := &TimeEntry{}
	err := row.Scan(
		&entry.ID,
		&entry.ProjectID,
		&entry.OrgID,
		&entry.Title,
		&entry.Hours,
		&entry.Date,
		&entry.Status,
		&entry.StatusChangedAt,
		&entry.StatusChangedBy,
		&entry.ApprovedDate,
		&entry.CreatedBy,
		&entry.CreatedAt,
		&entry.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (r *TimeEntryRepository) scanRows(rows pgx.Rows) ([]*TimeEntry, error) {
	var entries []*TimeEntry
	for rows.Next() {
		entry, err := r.scanEntry(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan time entry")
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
