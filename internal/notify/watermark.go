package notify

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

const watermarkKey = "last_attendance_sync"

// WatermarkStore persists the boundary up to which scans have been processed.
type WatermarkStore interface {
	Watermark(ctx context.Context) (time.Time, error)
	SetWatermark(ctx context.Context, t time.Time) error
}

// SettingsWatermark stores the watermark as a row in the settings key/value
// table, formatted as a local-time timestamp string.
type SettingsWatermark struct {
	db  *sql.DB
	loc *time.Location
}

// NewSettingsWatermark creates a watermark store; timestamps are interpreted
// in the given location.
func NewSettingsWatermark(db *sql.DB, loc *time.Location) *SettingsWatermark {
	if loc == nil {
		loc = time.UTC
	}
	return &SettingsWatermark{db: db, loc: loc}
}

const watermarkLayout = "2006-01-02 15:04:05"

// Watermark returns the persisted boundary, or the start of the current local
// day when no row exists yet.
func (w *SettingsWatermark) Watermark(ctx context.Context) (time.Time, error) {
	var value string
	err := w.db.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = $1`, watermarkKey).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		now := time.Now().In(w.loc)
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, w.loc), nil
	}
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.ParseInLocation(watermarkLayout, value, w.loc)
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}

// SetWatermark upserts the boundary. The syncer only calls this with values
// at or past the current one, so the row never moves backward.
func (w *SettingsWatermark) SetWatermark(ctx context.Context, t time.Time) error {
	_, err := w.db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`, watermarkKey, t.In(w.loc).Format(watermarkLayout))
	return err
}
