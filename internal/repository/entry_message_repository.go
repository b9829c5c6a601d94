package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/tempora-hq/be-tt-timesheets/pkg/database"
	"github.com/tempora-hq/be-tt-timesheets/pkg/errors"
)

// EntryMessageRepository handles threaded comments on time entries.
type EntryMessageRepository struct {
	db *database.DB
}

// NewEntryMessageRepository creates a new EntryMessageRepository.
func NewEntryMessageRepository(db *database.DB) *EntryMessageRepository {
	return &EntryMessageRepository{db: db}
}

// Create inserts a message.
func (r *EntryMessageRepository) Create(ctx context.Context, msg *EntryMessage) error {
	msg.ID = uuid.New().String()

	query := `
		INSERT INTO entry_messages (id, entry_id, parent_id, author_id, body, status_change)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`

	err := r.db.QueryRow(ctx, query,
		msg.ID,
		msg.EntryID,
		msg.ParentID,
		msg.AuthorID,
		msg.Body,
		msg.StatusChange,
	).Scan(&msg.CreatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create entry message")
	}
	return nil
}

// ListByEntry returns an entry's messages oldest-first.
func (r *EntryMessageRepository) ListByEntry(ctx context.Context, entryID string) ([]*EntryMessage, error) {
	query := `
		SELECT id, entry_id, parent_id, author_id, body, status_change, created_at
		FROM entry_messages
		WHERE entry_id = $1
		ORDER BY created_at ASC
	`

	rows, err := r.db.Query(ctx, query, entryID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list entry messages")
	}
	defer rows.Close()

	var messages []*EntryMessage
	for rows.Next() {
		msg := &EntryMessage{}
		err := rows.Scan(
			&msg.ID,
			&msg.EntryID,
			&msg.ParentID,
			&msg.AuthorID,
			&msg.Body,
			&msg.StatusChange,
			&msg.CreatedAt,
		)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan entry message")
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// AuthorsOnSheetSince returns the distinct authors who commented on any of a
// sheet's entries after the given time. The service crosses these against
// the roster to derive the client-interaction signal.
func (r *EntryMessageRepository) AuthorsOnSheetSince(ctx context.Context, sheetID string, since time.Time) ([]string, error) {
	query := `
		SELECT DISTINCT m.author_id
		FROM entry_messages m
		JOIN time_sheet_entries l ON l.entry_id = m.entry_id
		WHERE l.sheet_id = $1
		  AND m.created_at >= $2
	`

	rows, err := r.db.Query(ctx, query, sheetID, since)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list sheet message authors")
	}
	defer rows.Close()

	var authors []string
	for rows.Next() {
		var author string
		if err := rows.Scan(&author); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan message author")
		}
		authors = append(authors, author)
	}
	return authors, nil
}
