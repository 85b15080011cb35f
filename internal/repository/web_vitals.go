package repository

import (
	"context"
	"fmt"

	"github.com/oklog/ulid/v2"

	"github.com/trackpoint/trackpoint/internal/model"
)

// WebVitalsRepository maintains web_vitals_raw: one row per performance
// measurement reported by the page.
type WebVitalsRepository struct {
	repo *Repository
}

// NewWebVitalsRepository creates a new WebVitalsRepository.
func NewWebVitalsRepository(repo *Repository) *WebVitalsRepository {
	return &WebVitalsRepository{repo: repo}
}

// Write inserts the web-vitals projection of a stored event.
func (r *WebVitalsRepository) Write(ctx context.Context, stored model.StoredEvent, event *model.Event) error {
	vitals := event.WebVitals()
	ts, _ := event.Timestamp()

	query := `
		INSERT INTO web_vitals_raw (
			id, event_id, metric_name, metric_value, metric_rating,
			session_id, user_id, page_url, timestamp, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
	`

	_, err := r.repo.pool.Exec(ctx, query,
		ulid.Make().String(),
		stored.ID,
		nullableString(vitals.MetricName),
		vitals.MetricValue,
		nullableString(vitals.MetricRating),
		event.SessionID(),
		event.UserID(),
		event.PageURL(),
		int64(ts),
	)
	if err != nil {
		return fmt.Errorf("insert web vitals: %w", err)
	}
	return nil
}
