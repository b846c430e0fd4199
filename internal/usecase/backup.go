package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/semmidev/backuppilot/internal/domain"
	"github.com/semmidev/backuppilot/internal/infrastructure/metrics"
)

type BackupOptions struct {
	Compress bool
	TempDir  string
}

// Backup runs the job pipeline for one target: create row, dump, store,
// finalize row. It takes no per-target lock; overlapping runs for the same
// target proceed independently.
type Backup struct {
	store      Store
	dumpers    DumperProvider
	storages   StorageOpener
	compressor domain.Compressor
	notifier   domain.Notifier
	logger     Logger
	opts       BackupOptions
	now        func() time.Time
}

func NewBackup(
	store Store,
	dumpers DumperProvider,
	storages StorageOpener,
	compressor domain.Compressor,
	notifier domain.Notifier,
	logger Logger,
	opts BackupOptions,
) *Backup {
	if opts.TempDir == "" {
		opts.TempDir = filepath.Join(os.TempDir(), "backuppilot")
	}
	return &Backup{
		store:      store,
		dumpers:    dumpers,
		storages:   storages,
		compressor: compressor,
		notifier:   notifier,
		logger:     logger,
		opts:       opts,
		now:        time.Now,
	}
}

type BackupRequest struct {
	TargetID uint
	// DestinationID overrides the target's bound destination.
	DestinationID *uint
}

type JobResult struct {
	JobID       uint
	TargetID    uint
	TargetName  string
	Success     bool
	Placeholder bool
	Location    string
	Size        int64
	Duration    time.Duration
	Err         error
}

// BackupFilename is <sanitized name>_<YYYYMMDD_HHMMSS>_job<id>.sql.
func BackupFilename(target *domain.DatabaseTarget, at time.Time, jobID uint) string {
	return fmt.Sprintf("%s_%s_job%d.sql", domain.SanitizeName(target.Name), at.UTC().Format("20060102_150405"), jobID)
}

// RunBackup runs one job to completion. Cancelling ctx does not abort the job:
// once started it always reaches SUCCESS or FAILED, so the context only
// carries values.
func (uc *Backup) RunBackup(ctx context.Context, req BackupRequest) JobResult {
	ctx = context.WithoutCancel(ctx)
	start := uc.now()
	result := JobResult{TargetID: req.TargetID}

	target, err := uc.store.GetTarget(ctx, req.TargetID)
	if err != nil {
		result.Err = err
		return result
	}
	result.TargetName = target.Name

	dest, err := uc.resolveDestination(ctx, target, req.DestinationID)
	if err != nil {
		uc.logger.Errorf("[%s] %v", target.Name, err)
		result.Err = err
		return result
	}

	job := &domain.Job{DatabaseID: target.ID, DestinationID: dest.ID, StartedAt: start}
	if err := uc.store.CreateJob(ctx, job); err != nil {
		if !domain.IsKind(err, domain.KindMetadataStoreUnwritable) {
			err = domain.WrapError(domain.KindMetadataStoreUnwritable, "failed to record backup job", err)
		}
		uc.logger.Errorf("[%s] %v", target.Name, err)
		result.Err = err
		return result
	}
	result.JobID = job.ID

	metrics.BackupsRunning.Inc()
	defer metrics.BackupsRunning.Dec()

	uc.logger.Infof("[%s] Starting backup job %d to %s (%s)", target.Name, job.ID, dest.Name, dest.Kind)

	var jobLog strings.Builder
	artifact, placeholder, err := uc.execute(ctx, target, dest, job, &jobLog)
	result.Duration = uc.now().Sub(start)

	if err != nil {
		job.Status = domain.JobFailed
		fmt.Fprintf(&jobLog, "error: %v\n", err)
		result.Err = err
		uc.logger.Errorf("[%s] Backup job %d failed: %v", target.Name, job.ID, err)
	} else {
		job.Status = domain.JobSuccess
		job.Location = artifact.Location
		job.Size = artifact.Size
		result.Success = true
		result.Placeholder = placeholder
		result.Location = artifact.Location
		result.Size = artifact.Size
		uc.logger.Infof("[%s] Backup job %d completed in %s: %s (%s)",
			target.Name, job.ID, result.Duration.Round(time.Millisecond), artifact.Location, humanize.Bytes(uint64(artifact.Size)))
	}

	finished := uc.now()
	job.FinishedAt = &finished
	job.Log = jobLog.String()
	if err := uc.store.FinishJob(ctx, job); err != nil {
		// The artifact may already be stored; the result stands.
		uc.logger.Errorf("[%s] Failed to finalize job %d: %v", target.Name, job.ID, err)
	}

	metrics.ObserveBackup(target.Name, string(target.Engine), string(dest.Kind), result.Success, result.Duration, result.Size)
	uc.notify(ctx, job, target, result)

	return result
}

func (uc *Backup) resolveDestination(ctx context.Context, target *domain.DatabaseTarget, override *uint) (*domain.Destination, error) {
	if override != nil {
		return uc.store.GetDestination(ctx, *override)
	}
	if target.DestinationID == nil {
		return nil, domain.Errorf(domain.KindMisconfigured, "database %s has no backup destination", target.Name).
			WithRemediation("Bind a destination to the database or pass one explicitly.")
	}
	dest, err := uc.store.GetDestination(ctx, *target.DestinationID)
	if domain.IsKind(err, domain.KindNotFound) {
		return nil, domain.WrapError(domain.KindMisconfigured,
			fmt.Sprintf("database %s is bound to a missing destination", target.Name), err)
	}
	return dest, err
}

func (uc *Backup) execute(ctx context.Context, target *domain.DatabaseTarget, dest *domain.Destination, job *domain.Job, jobLog *strings.Builder) (*domain.StoredArtifact, bool, error) {
	storage, err := uc.storages.Open(ctx, dest)
	if err != nil {
		return nil, false, err
	}

	dumper, err := uc.dumpers.For(target.Engine)
	if err != nil {
		return nil, false, err
	}

	placeholder := false
	payload, err := dumper.Dump(ctx, target)
	switch {
	case errors.Is(err, domain.ErrEmptyDatabase):
		uc.logger.Warnf("[%s] Database is empty, storing placeholder", target.Name)
		payload = uc.dumpers.Placeholder(target, uc.now())
		placeholder = true
		jobLog.WriteString("database is empty; placeholder stored\n")
	case err != nil:
		if domain.KindOf(err) == domain.KindUnknown {
			err = domain.WrapError(domain.KindDumpFailed, fmt.Sprintf("dump of %s failed", target.Name), err)
		}
		return nil, false, err
	default:
		fmt.Fprintf(jobLog, "dump: %s\n", humanize.Bytes(uint64(len(payload))))
	}

	filename := BackupFilename(target, job.StartedAt, job.ID)
	if uc.opts.Compress && uc.compressor != nil {
		payload, filename, err = uc.compress(target, payload, filename)
		if err != nil {
			return nil, false, err
		}
		fmt.Fprintf(jobLog, "compressed: %s\n", humanize.Bytes(uint64(len(payload))))
	}

	artifact, err := storage.Store(ctx, filename, payload, target.Namespace())
	if err != nil {
		if domain.KindOf(err) == domain.KindUnknown {
			err = domain.WrapError(domain.KindStorageFailed, fmt.Sprintf("failed to store %s", filename), err)
		}
		return nil, false, err
	}
	if artifact.Size == 0 {
		artifact.Size = int64(len(payload))
	}
	fmt.Fprintf(jobLog, "stored: %s\n", artifact.Location)

	return artifact, placeholder, nil
}

// compress runs the compressor in a per-attempt temp directory that is
// removed afterwards whatever the outcome.
func (uc *Backup) compress(target *domain.DatabaseTarget, payload []byte, filename string) ([]byte, string, error) {
	dir := filepath.Join(uc.opts.TempDir, target.Namespace(), uuid.NewString())
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, "", fmt.Errorf("create temp dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			uc.logger.Warnf("[%s] Failed to remove temp dir %s: %v", target.Name, dir, err)
		}
	}()

	rawPath := filepath.Join(dir, filename)
	if err := os.WriteFile(rawPath, payload, 0600); err != nil {
		return nil, "", fmt.Errorf("write temp dump: %w", err)
	}

	compressedName := filename + uc.compressor.Extension()
	compressedPath := filepath.Join(dir, compressedName)
	if err := uc.compressor.Compress(rawPath, compressedPath); err != nil {
		return nil, "", fmt.Errorf("compression: %w", err)
	}

	compressed, err := os.ReadFile(compressedPath)
	if err != nil {
		return nil, "", fmt.Errorf("read compressed dump: %w", err)
	}

	if len(payload) > 0 {
		uc.logger.Infof("[%s] Compression complete, size: %s (%.1f%% of original)",
			target.Name, humanize.Bytes(uint64(len(compressed))), float64(len(compressed))/float64(len(payload))*100)
	}
	return compressed, compressedName, nil
}

func (uc *Backup) notify(ctx context.Context, job *domain.Job, target *domain.DatabaseTarget, result JobResult) {
	if uc.notifier == nil {
		return
	}
	event := domain.BackupEvent{
		JobID:      job.ID,
		TargetName: target.Name,
		Success:    result.Success,
		Location:   result.Location,
		Size:       result.Size,
		Duration:   result.Duration,
	}
	if result.Err != nil {
		event.Error = result.Err.Error()
	}
	if err := uc.notifier.Notify(ctx, event); err != nil {
		uc.logger.Warnf("[%s] Failed to send notification: %v", target.Name, err)
	}
}

// RunTargets backs up each target in order and keeps going past failures.
func (uc *Backup) RunTargets(ctx context.Context, targets []domain.DatabaseTarget) []JobResult {
	results := make([]JobResult, 0, len(targets))
	for _, t := range targets {
		results = append(results, uc.RunBackup(ctx, BackupRequest{TargetID: t.ID}))
	}
	return results
}

func (uc *Backup) ListJobs(ctx context.Context, filter domain.JobFilter) ([]domain.Job, error) {
	return uc.store.ListJobs(ctx, filter)
}
