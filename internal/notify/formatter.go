package notify

import (
	"errors"
	"fmt"
	"time"
)

var indonesianMonths = [...]string{
	"Januari", "Februari", "Maret", "April", "Mei", "Juni",
	"Juli", "Agustus", "September", "Oktober", "November", "Desember",
}

// Formatter renders the parent-facing WhatsApp message for a scan record.
// Rendering is deterministic: the same record always yields the same text.
type Formatter struct {
	loc     *time.Location
	tzLabel string
}

// NewFormatter builds a formatter rendering times in the given location.
// The zone label shown to parents is fixed to WIB, matching the school's
// western-Indonesia deployments.
func NewFormatter(loc *time.Location) *Formatter {
	if loc == nil {
		loc = time.UTC
	}
	return &Formatter{loc: loc, tzLabel: "WIB"}
}

// Direction classifies a record in the formatter's location, so the hour
// heuristic for flag-less scans sees the same wall clock the parent does.
func (f *Formatter) Direction(rec ScanRecord) Direction {
	return DirectionOf(rec.ScanDate.In(f.loc), rec.InOutMode)
}

// Format renders the arrival or departure message for one record.
// A zero scan date or a fully empty student name is a data inconsistency and
// returns an error rather than producing a garbled message.
func (f *Formatter) Format(rec ScanRecord) (string, error) {
	if rec.ScanDate.IsZero() {
		return "", errors.New("scan date missing")
	}
	name := rec.FullName()
	if name == "" {
		return "", errors.New("student name missing")
	}

	guardian := rec.ParentName
	if guardian == "" {
		guardian = "Bapak/Ibu Wali"
	}

	local := rec.ScanDate.In(f.loc)
	date := fmt.Sprintf("%02d %s %d", local.Day(), indonesianMonths[local.Month()-1], local.Year())
	clock := local.Format("15:04")

	switch f.Direction(rec) {
	case DirectionOut:
		return fmt.Sprintf(
			"Yth. %s,\n\nAnanda %s telah PULANG dari sekolah pada %s pukul %s %s.\n\nTerima kasih.",
			guardian, name, date, clock, f.tzLabel), nil
	default:
		return fmt.Sprintf(
			"Yth. %s,\n\nAnanda %s telah TIBA di sekolah pada %s pukul %s %s.\n\nTerima kasih.",
			guardian, name, date, clock, f.tzLabel), nil
	}
}
