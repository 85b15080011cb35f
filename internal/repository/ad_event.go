package repository

import (
	"context"
	"fmt"

	"github.com/oklog/ulid/v2"

	"github.com/trackpoint/trackpoint/internal/model"
)

// AdEventRepository maintains the ad_events secondary table: one row per ad
// view or click, keyed back to the raw event. Other ad events stay raw-only.
type AdEventRepository struct {
	repo *Repository
}

// NewAdEventRepository creates a new AdEventRepository.
func NewAdEventRepository(repo *Repository) *AdEventRepository {
	return &AdEventRepository{repo: repo}
}

// Write inserts the ad-specific projection of a stored event.
func (r *AdEventRepository) Write(ctx context.Context, stored model.StoredEvent, event *model.Event) error {
	ad := event.AdInteraction()
	ts, _ := event.Timestamp()

	query := `
		INSERT INTO ad_events (
			id, event_id, event_type, ad_id, ad_type,
			viewport_percentage, click_x, click_y,
			session_id, user_id, timestamp, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
	`

	_, err := r.repo.pool.Exec(ctx, query,
		ulid.Make().String(),
		stored.ID,
		event.Type(),
		nullableString(ad.AdID),
		nullableString(ad.AdType),
		ad.ViewportPercentage,
		ad.ClickX,
		ad.ClickY,
		event.SessionID(),
		event.UserID(),
		int64(ts),
	)
	if err != nil {
		return fmt.Errorf("insert ad event: %w", err)
	}
	return nil
}
