package notify

import "time"

// Direction classifies a scan as an arrival or a departure.
type Direction int

const (
	DirectionIn Direction = iota
	DirectionOut
)

// EventType returns the value stored in the notification log.
func (d Direction) EventType() string {
	if d == DirectionOut {
		return "departure"
	}
	return "arrival"
}

// DirectionOf resolves the direction of a scan. The scanner's explicit
// inoutmode flag (0 = in, anything else = out) wins when the row carries one;
// the hour heuristic (before noon = arrival) applies only when it does not.
func DirectionOf(scanDate time.Time, inOutMode *int) Direction {
	if inOutMode != nil {
		if *inOutMode == 0 {
			return DirectionIn
		}
		return DirectionOut
	}
	if scanDate.Hour() < 12 {
		return DirectionIn
	}
	return DirectionOut
}

// Notification delivery statuses.
const (
	StatusSent    = "sent"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// ScanRecord is one fingerprint-terminal attendance row joined with student
// and guardian contact data. Immutable once read from the source.
type ScanRecord struct {
	RecordID   string
	StudentID  string
	ScanDate   time.Time
	InOutMode  *int // nil when the source row has no explicit flag
	FirstName  string
	LastName   string
	ParentName string
	Phone      string
}

// FullName joins the student name parts, tolerating a missing last name.
func (r ScanRecord) FullName() string {
	if r.LastName == "" {
		return r.FirstName
	}
	if r.FirstName == "" {
		return r.LastName
	}
	return r.FirstName + " " + r.LastName
}

// Deliverable reports whether the record carries enough contact data to send.
// Records failing this check are logged as skipped, never errored.
func (r ScanRecord) Deliverable() bool {
	return r.StudentID != "" && r.Phone != ""
}

// NotificationRecord is one append-only audit row per attempted delivery.
type NotificationRecord struct {
	SessionID   string
	StudentID   string
	ParentPhone string
	EventType   string
	ScanDate    time.Time
	Message     string
	Status      string
	RawResponse []byte // opaque provider payload, stored verbatim
	SentAt      *time.Time
	CreatedAt   time.Time
}
