package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/roniwahyu/studentfinger-sub005/internal/runlock"
	"github.com/roniwahyu/studentfinger-sub005/internal/wablas"
)

// Sender delivers one message; implemented by the wablas client.
type Sender interface {
	Send(ctx context.Context, phone, message string) wablas.Delivery
}

// Result summarizes one sync run.
type Result struct {
	Success   bool   `json:"success"`
	Processed int    `json:"processed"`
	Sent      int    `json:"sent"`
	Failed    int    `json:"failed"`
	Skipped   int    `json:"skipped"`
	Message   string `json:"message"`
}

// Syncer orchestrates one relay run: read watermark, fetch new scans, notify
// per scan, advance watermark. All collaborators come in through interfaces.
type Syncer struct {
	source    SourceReader
	marks     WatermarkStore
	log       NotificationLog
	sender    Sender
	lock      runlock.Locker
	formatter *Formatter
	logger    *zap.Logger

	batchSize  int
	logEnabled bool
}

// NewSyncer wires the orchestrator. batchSize <= 0 fetches without limit;
// logEnabled=false suppresses audit rows (delivery still happens).
func NewSyncer(source SourceReader, marks WatermarkStore, log NotificationLog,
	sender Sender, lock runlock.Locker, formatter *Formatter,
	logger *zap.Logger, batchSize int, logEnabled bool) *Syncer {
	if lock == nil {
		lock = runlock.NewLocal()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Syncer{
		source:     source,
		marks:      marks,
		log:        log,
		sender:     sender,
		lock:       lock,
		formatter:  formatter,
		logger:     logger,
		batchSize:  batchSize,
		logEnabled: logEnabled,
	}
}

// Run executes one sync. A non-nil error means the run itself could not
// complete (lease held, source unreachable); per-scan delivery failures are
// folded into the counts and never abort the batch. The watermark is only
// advanced after the fetched batch has been fully drained, so a failed run
// retries the same window next time.
func (s *Syncer) Run(ctx context.Context) (Result, error) {
	release, err := s.lock.Acquire(ctx)
	if err != nil {
		if err == runlock.ErrHeld {
			return Result{Message: "sync already running"}, err
		}
		return Result{Message: err.Error()}, fmt.Errorf("acquire run lock: %w", err)
	}
	defer release()

	start := time.Now()
	res, err := s.run(ctx)
	syncDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		syncRuns.WithLabelValues("error").Inc()
		return res, err
	}
	syncRuns.WithLabelValues("ok").Inc()
	return res, nil
}

func (s *Syncer) run(ctx context.Context) (Result, error) {
	since, err := s.marks.Watermark(ctx)
	if err != nil {
		return Result{Message: err.Error()}, fmt.Errorf("read watermark: %w", err)
	}

	records, err := s.source.FetchSince(ctx, since, s.batchSize)
	if err != nil {
		return Result{Message: err.Error()}, fmt.Errorf("fetch attendance records: %w", err)
	}
	if len(records) == 0 {
		s.logger.Debug("no new attendance records", zap.Time("since", since))
		return Result{Success: true, Message: "no new records"}, nil
	}

	sessionID := uuid.NewString()
	s.logger.Info("processing attendance batch",
		zap.String("session_id", sessionID),
		zap.Int("records", len(records)),
		zap.Time("since", since))

	res := Result{Success: true}
	for _, rec := range records {
		s.process(ctx, sessionID, rec, &res)
		res.Processed++
	}

	// The boundary moves to the last record read, not the last that succeeded:
	// failed and skipped scans are audit-logged, never replayed.
	last := records[len(records)-1].ScanDate
	if last.After(since) {
		if err := s.marks.SetWatermark(ctx, last); err != nil {
			res.Success = false
			res.Message = err.Error()
			return res, fmt.Errorf("advance watermark: %w", err)
		}
	}

	res.Message = fmt.Sprintf("processed %d records", res.Processed)
	return res, nil
}

func (s *Syncer) process(ctx context.Context, sessionID string, rec ScanRecord, res *Result) {
	now := time.Now()
	out := NotificationRecord{
		SessionID:   sessionID,
		StudentID:   rec.StudentID,
		ParentPhone: rec.Phone,
		EventType:   s.formatter.Direction(rec).EventType(),
		ScanDate:    rec.ScanDate,
	}

	switch {
	case !rec.Deliverable():
		out.Status = StatusSkipped
		res.Skipped++
		s.logger.Warn("skipping record without contact data",
			zap.String("record_id", rec.RecordID),
			zap.String("student_id", rec.StudentID))

	default:
		message, err := s.formatter.Format(rec)
		if err != nil {
			out.Status = StatusFailed
			out.Message = err.Error()
			res.Failed++
			s.logger.Error("formatting failed",
				zap.String("record_id", rec.RecordID), zap.Error(err))
			break
		}
		out.Message = message

		delivery := s.sender.Send(ctx, rec.Phone, message)
		out.RawResponse = delivery.RawResponse
		if delivery.Status == wablas.StatusSent {
			out.Status = StatusSent
			out.SentAt = &now
			res.Sent++
		} else {
			out.Status = StatusFailed
			res.Failed++
			s.logger.Error("delivery failed",
				zap.String("record_id", rec.RecordID),
				zap.String("phone", rec.Phone),
				zap.Error(delivery.Err))
		}
	}

	notifications.WithLabelValues(out.Status).Inc()
	if s.logEnabled {
		if err := s.log.Append(ctx, out); err != nil {
			s.logger.Error("notification log append failed",
				zap.String("record_id", rec.RecordID), zap.Error(err))
		}
	}
}
