package notify

import (
	"context"
	"database/sql"
	"time"
)

// SourceReader pulls new scanner rows newer than a watermark.
type SourceReader interface {
	FetchSince(ctx context.Context, since time.Time, limit int) ([]ScanRecord, error)
}

// AttendanceSource reads the raw fingerprint-scanner log joined with student
// and guardian contact data. The underlying view is read-only.
type AttendanceSource struct {
	db *sql.DB
}

// NewAttendanceSource creates a reader over the scanner log view.
func NewAttendanceSource(db *sql.DB) *AttendanceSource {
	return &AttendanceSource{db: db}
}

// FetchSince returns rows with scan_date strictly after since, ascending, so
// replays are deterministic. limit <= 0 means no limit. Rows with a missing
// student id or phone are returned as-is; the syncer decides to skip them.
func (s *AttendanceSource) FetchSince(ctx context.Context, since time.Time, limit int) ([]ScanRecord, error) {
	query := `
		SELECT record_id, COALESCE(student_id, ''), scan_date, inoutmode,
		       COALESCE(firstname, ''), COALESCE(lastname, ''),
		       COALESCE(parent_name, ''), COALESCE(parent_phone, '')
		FROM att_log_view
		WHERE scan_date > $1
		ORDER BY scan_date ASC
	`
	args := []any{since}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []ScanRecord
	for rows.Next() {
		var rec ScanRecord
		var inOut sql.NullInt64
		if err := rows.Scan(&rec.RecordID, &rec.StudentID, &rec.ScanDate, &inOut,
			&rec.FirstName, &rec.LastName, &rec.ParentName, &rec.Phone); err != nil {
			return nil, err
		}
		if inOut.Valid {
			mode := int(inOut.Int64)
			rec.InOutMode = &mode
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}
