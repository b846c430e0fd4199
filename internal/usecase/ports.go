package usecase

import (
	"context"
	"time"

	"github.com/semmidev/backuppilot/internal/domain"
)

type Logger interface {
	Debugf(template string, args ...interface{})
	Infof(template string, args ...interface{})
	Warnf(template string, args ...interface{})
	Errorf(template string, args ...interface{})
}

// Store is the slice of the metadata store the engine uses. Apart from job
// rows it is read-only.
type Store interface {
	GetTarget(ctx context.Context, id uint) (*domain.DatabaseTarget, error)
	GetDestination(ctx context.Context, id uint) (*domain.Destination, error)
	GetSchedule(ctx context.Context, id uint) (*domain.Schedule, error)
	CreateJob(ctx context.Context, job *domain.Job) error
	FinishJob(ctx context.Context, job *domain.Job) error
	GetJob(ctx context.Context, id uint) (*domain.Job, error)
	ListJobs(ctx context.Context, filter domain.JobFilter) ([]domain.Job, error)
	LatestSuccessfulJob(ctx context.Context, destinationID uint, since time.Time) (*domain.Job, error)
}

type DumperProvider interface {
	For(engine domain.EngineType) (domain.Dumper, error)
	Placeholder(target *domain.DatabaseTarget, now time.Time) []byte
}

type StorageOpener interface {
	Open(ctx context.Context, dest *domain.Destination) (domain.Storage, error)
}
