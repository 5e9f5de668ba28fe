package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/roniwahyu/studentfinger-sub005/internal/config"
	"github.com/roniwahyu/studentfinger-sub005/internal/httpmiddleware"
	"github.com/roniwahyu/studentfinger-sub005/internal/notify"
	"github.com/roniwahyu/studentfinger-sub005/internal/queue"
	"github.com/roniwahyu/studentfinger-sub005/internal/runlock"
	"github.com/roniwahyu/studentfinger-sub005/internal/store"
	"github.com/roniwahyu/studentfinger-sub005/internal/wablas"
)

func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := runHTTP(cfg, logger); err != nil {
		logger.Fatal("http server failed", zap.Error(err))
	}
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "production" || env == "prod" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func runHTTP(cfg config.App, logger *zap.Logger) error {
	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		return err
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
		return err
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

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		dbHealthy := db.Client.PingContext(c.Request.Context()) == nil
		code, status := healthStatus(dbHealthy, redisHealthy)
		c.JSON(code, gin.H{"status": status, "redis": redisHealthy, "db": dbHealthy})
	})

	r.POST("/v1/sync", func(c *gin.Context) {
		if cfg.QueueEnabled {
			job := queue.Job{Kind: queue.KindSync, EnqueuedAt: time.Now()}
			if err := q.Publish(c.Request.Context(), job); err != nil {
				logger.Error("queue publish failed", zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "enqueue failed"})
				return
			}
			c.JSON(http.StatusAccepted, gin.H{"success": true, "message": "sync queued"})
			return
		}

		res, err := syncer.Run(c.Request.Context())
		switch {
		case errors.Is(err, runlock.ErrHeld):
			c.JSON(http.StatusConflict, res)
		case err != nil:
			logger.Error("sync failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, res)
		default:
			c.JSON(http.StatusOK, res)
		}
	})

	r.GET("/v1/notifications", func(c *gin.Context) {
		var date *time.Time
		if v := c.Query("date"); v != "" {
			parsed, err := time.ParseInLocation("2006-01-02", v, loc)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
				return
			}
			date = &parsed
		}
		limit := 50
		if v := c.Query("limit"); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				limit = parsed
			}
		}
		records, err := notifLog.ListRecent(c.Request.Context(), date, limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"notifications": records})
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute, // inline sync runs can take a while
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting server", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server forced shutdown", zap.Error(err))
	}

	logger.Info("server exited")
	return nil
}

// healthStatus maps component health to the response code and status field.
func healthStatus(dbHealthy, redisHealthy bool) (int, string) {
	if dbHealthy && redisHealthy {
		return http.StatusOK, "ok"
	}
	return http.StatusServiceUnavailable, "degraded"
}

// CORS middleware for the admin UI calling the trigger endpoint.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Security headers middleware.
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		// Only add HSTS in production
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
