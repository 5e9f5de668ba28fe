package notify

import (
	"context"
	"database/sql"
	"strconv"
	"time"
)

// NotificationLog records one row per attempted delivery.
type NotificationLog interface {
	Append(ctx context.Context, rec NotificationRecord) error
}

// DBNotificationLog persists notification outcomes in the notification_logs
// table. Rows are append-only; nothing updates them after creation.
type DBNotificationLog struct {
	db *sql.DB
}

// NewDBNotificationLog creates the log writer.
func NewDBNotificationLog(db *sql.DB) *DBNotificationLog {
	return &DBNotificationLog{db: db}
}

// Append inserts one outcome row.
func (l *DBNotificationLog) Append(ctx context.Context, rec NotificationRecord) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO notification_logs
			(session_id, student_id, parent_phone, event_type, scan_date,
			 message_content, status, wablas_response, sent_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW(),NOW())
	`, rec.SessionID, rec.StudentID, rec.ParentPhone, rec.EventType, rec.ScanDate,
		rec.Message, rec.Status, rec.RawResponse, rec.SentAt)
	return err
}

// ListRecent returns the newest log rows for the audit endpoint, optionally
// restricted to a single scan date.
func (l *DBNotificationLog) ListRecent(ctx context.Context, date *time.Time, limit int) ([]NotificationRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	query := `
		SELECT session_id, student_id, parent_phone, event_type, scan_date,
		       message_content, status, wablas_response, sent_at, created_at
		FROM notification_logs
	`
	args := []any{}
	if date != nil {
		query += ` WHERE scan_date >= $1 AND scan_date < $1 + interval '1 day'`
		args = append(args, *date)
	}
	query += ` ORDER BY created_at DESC LIMIT $` + strconv.Itoa(len(args)+1)
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []NotificationRecord
	for rows.Next() {
		var rec NotificationRecord
		if err := rows.Scan(&rec.SessionID, &rec.StudentID, &rec.ParentPhone,
			&rec.EventType, &rec.ScanDate, &rec.Message, &rec.Status,
			&rec.RawResponse, &rec.SentAt, &rec.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}
