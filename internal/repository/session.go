package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/trackpoint/trackpoint/internal/model"
)

// SessionRepository maintains sessions_dim, the per-session dimension table.
// Each page_load upserts its session row; repeated loads of the same session
// win last-write on the device attributes while first_seen_at is preserved.
type SessionRepository struct {
	repo *Repository
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(repo *Repository) *SessionRepository {
	return &SessionRepository{repo: repo}
}

// Write upserts the session dimension row for a stored page_load event.
func (r *SessionRepository) Write(ctx context.Context, stored model.StoredEvent, event *model.Event) error {
	attrs := event.SessionAttrs()

	query := `
		INSERT INTO sessions_dim (
			session_id, user_id, tracking_mode, first_page_url, user_agent,
			viewport_width, viewport_height, screen_width, screen_height,
			language, timezone_offset, first_seen_at, last_seen_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
		ON CONFLICT (session_id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			tracking_mode = EXCLUDED.tracking_mode,
			user_agent = EXCLUDED.user_agent,
			viewport_width = EXCLUDED.viewport_width,
			viewport_height = EXCLUDED.viewport_height,
			screen_width = EXCLUDED.screen_width,
			screen_height = EXCLUDED.screen_height,
			language = EXCLUDED.language,
			timezone_offset = EXCLUDED.timezone_offset,
			last_seen_at = NOW()
	`

	_, err := r.repo.pool.Exec(ctx, query,
		event.SessionID(),
		event.UserID(),
		event.TrackingMode(),
		event.PageURL(),
		nullableString(attrs.UserAgent),
		attrs.ViewportWidth,
		attrs.ViewportHeight,
		attrs.ScreenWidth,
		attrs.ScreenHeight,
		nullableString(attrs.Language),
		attrs.TimezoneOffset,
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

// GetSessions lists known sessions, most recently active first.
func (r *SessionRepository) GetSessions(ctx context.Context, limit int) ([]*model.Session, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	query := `
		SELECT session_id, user_id, tracking_mode, first_page_url,
			   COALESCE(user_agent, ''), viewport_width, viewport_height,
			   screen_width, screen_height, COALESCE(language, ''),
			   timezone_offset, first_seen_at, last_seen_at
		FROM sessions_dim
		ORDER BY last_seen_at DESC
		LIMIT $1
	`

	rows, err := r.repo.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*model.Session
	for rows.Next() {
		var s model.Session
		err := rows.Scan(
			&s.SessionID,
			&s.UserID,
			&s.TrackingMode,
			&s.FirstPageURL,
			&s.UserAgent,
			&s.ViewportWidth,
			&s.ViewportHeight,
			&s.ScreenWidth,
			&s.ScreenHeight,
			&s.Language,
			&s.TimezoneOffset,
			&s.FirstSeenAt,
			&s.LastSeenAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, &s)
	}

	return sessions, rows.Err()
}

// CountSessionsSince returns the number of sessions active since the cutoff.
func (r *SessionRepository) CountSessionsSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	err := r.repo.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM sessions_dim WHERE last_seen_at >= $1", since,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return count, nil
}
