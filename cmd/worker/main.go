package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/roniwahyu/studentfinger-sub005/internal/config"
	"github.com/roniwahyu/studentfinger-sub005/internal/notify"
	"github.com/roniwahyu/studentfinger-sub005/internal/queue"
	"github.com/roniwahyu/studentfinger-sub005/internal/runlock"
	"github.com/roniwahyu/studentfinger-sub005/internal/store"
	"github.com/roniwahyu/studentfinger-sub005/internal/wablas"
)

// Worker runs the relay on a fixed interval inside the configured daily
// window and also drains sync jobs queued by the API.
func main() {
	cfg := config.Load()

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
	}()

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("db connect failed", zap.Error(err))
	}
	defer func() { _ = db.Close() }()

	redisClient := store.NewRedis(cfg.RedisAddr)

	gateway, err := wablas.New(wablas.Config{
		BaseURL:    cfg.WablasBaseURL,
		Token:      cfg.WablasToken,
		Secret:     cfg.WablasSecret,
		Timeout:    cfg.WablasTimeout,
		VerifySSL:  cfg.WablasVerifySSL,
		SendDelay:  cfg.SendDelay,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Skip:       cfg.WablasSkip,
	})
	if err != nil {
		logger.Fatal("wablas client init failed", zap.Error(err))
	}

	loc := cfg.Location()
	source := notify.NewAttendanceSource(db.Client)
	marks := notify.NewSettingsWatermark(db.Client, loc)
	notifLog := notify.NewDBNotificationLog(db.Client)
	lock := runlock.NewRedisLock(redisClient.Client, "", 10*time.Minute)
	syncer := notify.NewSyncer(source, marks, notifLog, gateway, lock,
		notify.NewFormatter(loc), logger, cfg.QueueBatchSize, cfg.LogNotifications)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "")
	}

	jobs, err := q.Consume(ctx)
	if err != nil {
		logger.Fatal("queue consume init failed", zap.Error(err))
	}

	ticker := time.NewTicker(cfg.SyncInterval)
	defer ticker.Stop()

	logger.Info("worker started",
		zap.Duration("interval", cfg.SyncInterval),
		zap.Int("window_start", cfg.SyncWindowStart),
		zap.Int("window_end", cfg.SyncWindowEnd))

	for {
		select {
		case <-ctx.Done():
			logger.Info("worker stopped")
			return

		case <-ticker.C:
			if !inWindow(time.Now().In(loc), cfg.SyncWindowStart, cfg.SyncWindowEnd) {
				continue
			}
			runSync(ctx, syncer, logger, "schedule")

		case job, ok := <-jobs:
			if !ok {
				logger.Info("worker stopped")
				return
			}
			if job.Kind != queue.KindSync {
				continue
			}
			runSync(ctx, syncer, logger, "queue")
		}
	}
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "production" || env == "prod" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// inWindow reports whether hour(now) lies in [start, end). start==end means
// always on.
func inWindow(now time.Time, start, end int) bool {
	if start == end {
		return true
	}
	h := now.Hour()
	if start < end {
		return h >= start && h < end
	}
	// window wraps midnight
	return h >= start || h < end
}

func runSync(ctx context.Context, syncer *notify.Syncer, logger *zap.Logger, trigger string) {
	res, err := syncer.Run(ctx)
	switch {
	case errors.Is(err, runlock.ErrHeld):
		logger.Info("sync already running", zap.String("trigger", trigger))
	case err != nil:
		logger.Error("sync failed", zap.String("trigger", trigger), zap.Error(err))
	default:
		logger.Info("sync complete",
			zap.String("trigger", trigger),
			zap.Int("processed", res.Processed),
			zap.Int("sent", res.Sent),
			zap.Int("failed", res.Failed),
			zap.Int("skipped", res.Skipped))
	}
}
