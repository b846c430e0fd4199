package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/semmidev/backuppilot/internal/domain"
)

// CreateJob inserts a RUNNING job row and sets job.ID.
func (s *Store) CreateJob(ctx context.Context, job *domain.Job) error {
	rec := BackupJob{
		DatabaseID:    job.DatabaseID,
		DestinationID: job.DestinationID,
		Status:        string(domain.JobRunning),
		StartedAt:     job.StartedAt,
		Log:           job.Log,
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now()
	}
	rec.StartedAt = rec.StartedAt.UTC()

	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return classify(err, "failed to create backup job")
	}

	job.ID = rec.ID
	job.Status = domain.JobRunning
	job.StartedAt = rec.StartedAt
	return nil
}

// FinishJob moves a RUNNING job to its terminal status. The update is
// conditional so a finished job is never rewritten.
func (s *Store) FinishJob(ctx context.Context, job *domain.Job) error {
	if !job.Status.Terminal() {
		return domain.Errorf(domain.KindMisconfigured, "job %d cannot finish with status %s", job.ID, job.Status)
	}
	finished := time.Now().UTC()
	if job.FinishedAt != nil {
		finished = job.FinishedAt.UTC()
	}

	res := s.db.WithContext(ctx).Model(&BackupJob{}).
		Where("id = ? AND status = ?", job.ID, string(domain.JobRunning)).
		Updates(map[string]interface{}{
			"status":      string(job.Status),
			"finished_at": finished,
			"location":    job.Location,
			"size":        job.Size,
			"log":         job.Log,
		})
	if res.Error != nil {
		return classify(res.Error, "failed to finish backup job %d", job.ID)
	}
	if res.RowsAffected == 0 {
		return domain.Errorf(domain.KindNotFound, "backup job %d is not running", job.ID)
	}

	job.FinishedAt = &finished
	return nil
}

func (s *Store) GetJob(ctx context.Context, id uint) (*domain.Job, error) {
	var rec BackupJob
	if err := s.db.WithContext(ctx).First(&rec, id).Error; err != nil {
		return nil, classify(err, "backup job %d not found", id)
	}
	j := rec.toDomain()
	return &j, nil
}

// ListJobs returns jobs newest first.
func (s *Store) ListJobs(ctx context.Context, f domain.JobFilter) ([]domain.Job, error) {
	q := s.db.WithContext(ctx).Model(&BackupJob{})
	if f.DatabaseID != nil {
		q = q.Where("database_id = ?", *f.DatabaseID)
	}
	if f.DestinationID != nil {
		q = q.Where("destination_id = ?", *f.DestinationID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", string(f.Status))
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	var recs []BackupJob
	if err := q.Order("started_at DESC").Order("id DESC").Find(&recs).Error; err != nil {
		return nil, classify(err, "failed to list backup jobs")
	}

	jobs := make([]domain.Job, 0, len(recs))
	for i := range recs {
		jobs = append(jobs, recs[i].toDomain())
	}
	return jobs, nil
}

// LatestSuccessfulJob returns the newest SUCCESS job for a destination that
// finished after since, or nil when there is none.
func (s *Store) LatestSuccessfulJob(ctx context.Context, destinationID uint, since time.Time) (*domain.Job, error) {
	var rec BackupJob
	err := s.db.WithContext(ctx).
		Where("destination_id = ? AND status = ? AND finished_at >= ?", destinationID, string(domain.JobSuccess), since.UTC()).
		Order("finished_at DESC").
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(err, "failed to query job history")
	}
	j := rec.toDomain()
	return &j, nil
}
