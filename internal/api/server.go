package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/semmidev/backuppilot/internal/domain"
	"github.com/semmidev/backuppilot/internal/infrastructure/monitor"
	"github.com/semmidev/backuppilot/internal/infrastructure/scheduler"
	"github.com/semmidev/backuppilot/internal/usecase"
)

type BackupService interface {
	RunBackup(ctx context.Context, req usecase.BackupRequest) usecase.JobResult
	TriggerSchedule(ctx context.Context, scheduleID uint) (*usecase.TriggerReport, error)
	ListJobs(ctx context.Context, filter domain.JobFilter) ([]domain.Job, error)
	DestinationHealth(ctx context.Context, destinationID uint) usecase.HealthReport
	LocalArtifact(ctx context.Context, jobID uint) (*usecase.ArtifactFile, error)
}

type SchedulerService interface {
	Status() scheduler.Status
	ReconcileAll(ctx context.Context) error
	ReconcileOne(ctx context.Context, id uint) error
}

type MonitorService interface {
	Start(interval time.Duration) error
	Stop()
	IsRunning() bool
	CheckOnce(ctx context.Context) []monitor.Reachability
	LastResults() []monitor.Reachability
}

type Server struct {
	backups         BackupService
	scheduler       SchedulerService
	monitor         MonitorService
	monitorInterval time.Duration
	logger          usecase.Logger
	http            *http.Server
}

func NewServer(backups BackupService, sched SchedulerService, mon MonitorService, monitorInterval time.Duration, logger usecase.Logger) *Server {
	return &Server{
		backups:         backups,
		scheduler:       sched,
		monitor:         mon,
		monitorInterval: monitorInterval,
		logger:          logger,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(requestLog(s.logger))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/backups/manual", s.manualBackup)
		r.Get("/backups", s.listBackups)
		r.Get("/backups/{jobId}/download", s.downloadBackup)
		r.Post("/backups/{jobId}/restore", s.restoreBackup)

		r.Post("/scheduler/trigger", s.triggerSchedule)
		r.Get("/scheduler/status", s.schedulerStatus)
		r.Post("/scheduler/status", s.refreshScheduler)
		r.Post("/schedules/{id}/reconcile", s.reconcileSchedule)
		r.Get("/schedules/next", s.nextRun)

		r.Get("/database-monitor", s.monitorStatus)
		r.Post("/database-monitor", s.monitorControl)

		r.Get("/storage/{id}/test", s.testStorage)
	})
	return r
}

func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		s.logger.Infof("HTTP API listening on %s", addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Errorf("HTTP server error: %v", err)
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	if err := s.http.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	return nil
}
