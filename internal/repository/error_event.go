package repository

import (
	"context"
	"fmt"

	"github.com/oklog/ulid/v2"

	"github.com/trackpoint/trackpoint/internal/model"
)

// ErrorEventRepository maintains error_events: one row per JavaScript error
// reported by the page.
type ErrorEventRepository struct {
	repo *Repository
}

// NewErrorEventRepository creates a new ErrorEventRepository.
func NewErrorEventRepository(repo *Repository) *ErrorEventRepository {
	return &ErrorEventRepository{repo: repo}
}

// Write inserts the error projection of a stored event.
func (r *ErrorEventRepository) Write(ctx context.Context, stored model.StoredEvent, event *model.Event) error {
	detail := event.ErrorDetail()
	ts, _ := event.Timestamp()

	query := `
		INSERT INTO error_events (
			id, event_id, error_message, error_stack, error_filename,
			error_line, error_column, session_id, user_id, page_url,
			timestamp, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
	`

	_, err := r.repo.pool.Exec(ctx, query,
		ulid.Make().String(),
		stored.ID,
		nullableString(detail.Message),
		nullableString(detail.Stack),
		nullableString(detail.Filename),
		detail.Line,
		detail.Column,
		event.SessionID(),
		event.UserID(),
		event.PageURL(),
		int64(ts),
	)
	if err != nil {
		return fmt.Errorf("insert error event: %w", err)
	}
	return nil
}
