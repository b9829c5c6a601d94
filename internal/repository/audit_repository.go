package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/tempora-hq/be-tt-timesheets/pkg/database"
	"github.com/tempora-hq/be-tt-timesheets/pkg/errors"
)

// AuditRepository appends and reads immutable workflow audit entries.
type AuditRepository struct {
	db *database.DB
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(db *database.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Append inserts one audit entry. Append is the only mutation exposed.
func (r *AuditRepository) Append(ctx context.Context, entry *AuditEntry) error {
	var metadataJSON []byte
	if entry.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(entry.Metadata)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal audit metadata")
		}
	}

	query := `
		INSERT INTO workflow_audit_log
		    (project_id, sheet_id, entry_id, action, performed_by,
		     status_before, status_after, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, performed_at
	`

	return r.db.QueryRow(ctx, query,
		entry.ProjectID,
		entry.SheetID,
		entry.EntryID,
		entry.Action,
		entry.PerformedBy,
		entry.StatusBefore,
		entry.StatusAfter,
		metadataJSON,
	).Scan(&entry.ID, &entry.PerformedAt)
}

// GetBySheet returns a sheet's audit trail oldest-first.
func (r *AuditRepository) GetBySheet(ctx context.Context, sheetID string) ([]*AuditEntry, error) {
	query := auditSelect + `
		WHERE sheet_id = $1
		ORDER BY performed_at ASC
	`

	rows, err := r.db.Query(ctx, query, sheetID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get sheet audit log")
	}
	defer rows.Close()

	return r.scanRows(rows)
}

// GetBySheetSince returns a sheet's audit entries at or after the given
// time, oldest-first. Used to derive interaction and stage progress since
// the current submission.
func (r *AuditRepository) GetBySheetSince(ctx context.Context, sheetID string, since time.Time) ([]*AuditEntry, error) {
	query := auditSelect + `
		WHERE sheet_id = $1 AND performed_at >= $2
		ORDER BY performed_at ASC
	`

	rows, err := r.db.Query(ctx, query, sheetID, since)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get sheet audit log")
	}
	defer rows.Close()

	return r.scanRows(rows)
}

// CountActionSince counts a sheet's audit entries with the given action at
// or after the given time.
func (r *AuditRepository) CountActionSince(ctx context.Context, sheetID, action string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM workflow_audit_log
		WHERE sheet_id = $1 AND action = $2 AND performed_at >= $3
	`

	var count int
	if err := r.db.QueryRow(ctx, query, sheetID, action, since).Scan(&count); err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to count audit actions")
	}
	return count, nil
}

// ── scan helpers ─────────────────────────────────────────────────────────────

const auditSelect = `
	SELECT id, project_id, sheet_id, entry_id, action, performed_by,
	       performed_at, status_before, status_after, metadata
	FROM workflow_audit_log`

func (r *AuditRepository) scanRows(rows pgx.Rows) ([]*AuditEntry, error) {
	var entries []*AuditEntry
	for rows.Next() {
		entry := &AuditEntry{}
		var metadataJSON []byte

		err := rows.Scan(
			&entry.ID,
			&entry.ProjectID,
			&entry.SheetID,
			&entry.EntryID,
			&entry.Action,
			&entry.PerformedBy,
			&entry.PerformedAt,
			&entry.StatusBefore,
			&entry.StatusAfter,
			&metadataJSON,
		)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan audit entry")
		}

		if metadataJSON != nil {
			if err := json.Unmarshal(metadataJSON, &entry.Metadata); err != nil {
				return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal audit metadata")
			}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
