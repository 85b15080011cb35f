package client

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/trackpoint/trackpoint/internal/model"
)

// Store keys for client-side durable state.
const (
	keyUserID       = "adtech_user_id"
	keyFingerprint  = "adtech_fingerprint_id"
	keyTrackingMode = "adtech_tracking_mode"
	keyCCPAOptOut   = "ccpa_opt_out"
	keyFailedEvents = "failed_events"
)

// cookieTTL is the lifetime of the cookie-mode identity.
const cookieTTL = 365 * 24 * time.Hour

// DeviceSignals is the fixed tuple of device/browser signals the cookieless
// fingerprint is derived from. Unchanged signals must hash to the same id.
type DeviceSignals struct {
	UserAgent         string
	Language          string
	ScreenResolution  string
	TimezoneOffsetMin int
	RenderFingerprint string
}

// Identity derives the (session_id, user_id, tracking_mode) triple and keeps
// it consistent across mode switches. Nothing here is fatal: if the store is
// unavailable every page load synthesizes a fresh identity.
type Identity struct {
	store     Store
	signals   DeviceSignals
	logger    *slog.Logger
	sessionID string
	mode      string
	userID    string
}

// NewIdentity creates identity state for one page load. The tracking-mode
// preference is restored from the store (defaulting to cookie mode) and the
// session id is regenerated, never persisted.
func NewIdentity(ctx context.Context, store Store, signals DeviceSignals, logger *slog.Logger) *Identity {
	id := &Identity{
		store:     store,
		signals:   signals,
		logger:    logger.With("component", "client.identity"),
		sessionID: newSessionID(),
		mode:      model.TrackingModeCookie,
	}

	if mode, ok, err := store.Get(ctx, keyTrackingMode); err == nil && ok {
		if mode == model.TrackingModeCookie || mode == model.TrackingModeCookieless {
			id.mode = mode
		}
	}

	id.userID = id.deriveUserID(ctx)
	return id
}

// SessionID returns the per-load session identifier.
func (id *Identity) SessionID() string { return id.sessionID }

// UserID returns the current user identifier.
func (id *Identity) UserID() string { return id.userID }

// Mode returns the current tracking mode.
func (id *Identity) Mode() string { return id.mode }

// SetMode switches the tracking mode and regenerates the user id under the
// new strategy immediately. Already-sent events keep the old identity.
func (id *Identity) SetMode(ctx context.Context, mode string) {
	if mode != model.TrackingModeCookie && mode != model.TrackingModeCookieless {
		return
	}
	id.mode = mode
	if err := id.store.Set(ctx, keyTrackingMode, mode, 0); err != nil {
		id.logger.Warn("failed to persist tracking mode", "error", err)
	}
	id.userID = id.deriveUserID(ctx)
}

func (id *Identity) deriveUserID(ctx context.Context) string {
	if id.mode == model.TrackingModeCookie {
		return id.cookieUserID(ctx)
	}
	return id.fingerprintUserID(ctx)
}

// cookieUserID reads the long-lived identity from the store, creating and
// writing one back when absent.
func (id *Identity) cookieUserID(ctx context.Context) string {
	if existing, ok, err := id.store.Get(ctx, keyUserID); err == nil && ok {
		return existing
	} else if err != nil {
		id.logger.Warn("cookie store unavailable, synthesizing identity", "error", err)
	}

	userID := fmt.Sprintf("user_%d_%s", time.Now().UnixMilli(), randomSuffix())
	if err := id.store.Set(ctx, keyUserID, userID, cookieTTL); err != nil {
		id.logger.Warn("failed to persist cookie identity", "error", err)
	}
	return userID
}

// fingerprintUserID hashes the fixed device-signal tuple into a short stable
// id. The store copy is a session-level cache only; recomputation is
// idempotent for unchanged signals.
func (id *Identity) fingerprintUserID(ctx context.Context) string {
	fingerprint := strings.Join([]string{
		id.signals.UserAgent,
		id.signals.Language,
		id.signals.ScreenResolution,
		fmt.Sprintf("%d", id.signals.TimezoneOffsetMin),
		id.signals.RenderFingerprint,
	}, "|")

	sum := sha256.Sum256([]byte(fingerprint))
	userID := "fp_" + hex.EncodeToString(sum[:])[:12]

	if err := id.store.Set(ctx, keyFingerprint, userID, 0); err != nil {
		id.logger.Warn("failed to cache fingerprint id", "error", err)
	}
	return userID
}

// newSessionID builds a time-prefixed random session id, unique per page
// load and never reused across loads.
func newSessionID() string {
	return fmt.Sprintf("sess_%d_%s", time.Now().UnixMilli(), randomSuffix())
}

func randomSuffix() string {
	s := ulid.Make().String()
	return strings.ToLower(s[len(s)-9:])
}
