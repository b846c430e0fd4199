package metrics

import (
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// BackupJobsTotal counts finished backup jobs by engine, destination kind and status.
	BackupJobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pilot_backup_jobs_total",
			Help: "Total number of backup jobs finished by status",
		},
		[]string{"engine", "destination", "status"},
	)

	BackupDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pilot_backup_duration_seconds",
			Help:    "Backup job duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 14),
		},
		[]string{"engine"},
	)

	BackupLastSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pilot_backup_last_size_bytes",
			Help: "Size of the most recent successful artifact per database",
		},
		[]string{"database"},
	)

	BackupsRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pilot_backups_running",
			Help: "Number of backup jobs currently running",
		},
	)

	// DatabaseReachable is 1 when the last connectivity probe succeeded.
	DatabaseReachable = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pilot_database_reachable",
			Help: "Result of the last connectivity probe per database (1 reachable, 0 not)",
		},
		[]string{"database", "engine"},
	)

	ScheduledTimers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pilot_scheduled_timers",
			Help: "Number of registered schedule timers",
		},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pilot_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

var (
	numericPathSegment = regexp.MustCompile(`/[0-9]+(/|$)`)
	initOnce           sync.Once
)

func init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			BackupJobsTotal,
			BackupDuration,
			BackupLastSize,
			BackupsRunning,
			DatabaseReachable,
			ScheduledTimers,
			RequestDuration,
		)
	})
}

// ObserveBackup records one finished job.
func ObserveBackup(database, engine, destination string, success bool, duration time.Duration, size int64) {
	status := "failed"
	if success {
		status = "success"
		BackupLastSize.WithLabelValues(database).Set(float64(size))
	}
	BackupJobsTotal.WithLabelValues(engine, destination, status).Inc()
	BackupDuration.WithLabelValues(engine).Observe(duration.Seconds())
}

func SetReachable(database, engine string, reachable bool) {
	v := 0.0
	if reachable {
		v = 1
	}
	DatabaseReachable.WithLabelValues(database, engine).Set(v)
}

// NormalizePath replaces numeric path segments with {id}.
func NormalizePath(path string) string {
	return numericPathSegment.ReplaceAllString(path, "/{id}$1")
}

func RecordRequest(method, path string, statusCode int, duration time.Duration) {
	RequestDuration.WithLabelValues(method, NormalizePath(path), strconv.Itoa(statusCode)).Observe(duration.Seconds())
}
