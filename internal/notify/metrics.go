package notify

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	syncRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_sync_runs_total",
		Help: "Sync runs by outcome.",
	}, []string{"result"})

	syncDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "attendance_sync_duration_seconds",
		Help:    "Wall time of one sync run.",
		Buckets: prometheus.DefBuckets,
	})

	notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_notifications_total",
		Help: "Notification outcomes by delivery status.",
	}, []string{"status"})
)
