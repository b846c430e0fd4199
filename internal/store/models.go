package store

import (
	"time"

	"github.com/semmidev/backuppilot/internal/domain"
)

// Database is a configured source. Job rows reference it by id without a
// foreign key so history survives its deletion.
type Database struct {
	ID            uint `gorm:"primaryKey"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
	Name          string `gorm:"uniqueIndex;not null"`
	Type          string `gorm:"not null"`
	Host          string
	Port          int
	Username      string
	Password      string
	DatabaseName  string
	Path          string
	ScheduleID    *uint
	DestinationID *uint
	BackupEnabled bool `gorm:"not null"`
}

type Destination struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time
	Name      string `gorm:"uniqueIndex;not null"`
	Type      string `gorm:"not null"`
	Config    string `gorm:"type:text;not null"`
	// LocalPath is set only for LOCAL destinations; NULLs do not collide.
	LocalPath *string `gorm:"uniqueIndex"`
}

type Schedule struct {
	ID            uint `gorm:"primaryKey"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
	Name          string `gorm:"uniqueIndex;not null"`
	Cron          string `gorm:"not null"`
	RetentionDays int
	Enabled       bool       `gorm:"not null"`
	Databases     []Database `gorm:"many2many:schedule_databases;"`
}

type BackupJob struct {
	ID            uint      `gorm:"primaryKey"`
	DatabaseID    uint      `gorm:"index;not null"`
	DestinationID uint      `gorm:"index;not null"`
	Status        string    `gorm:"index;not null"`
	StartedAt     time.Time `gorm:"index;not null"`
	FinishedAt    *time.Time
	Location      string
	Size          int64
	Log           string `gorm:"type:text"`
}

func (d *Database) toDomain() domain.DatabaseTarget {
	return domain.DatabaseTarget{
		ID:            d.ID,
		Name:          d.Name,
		Engine:        domain.EngineType(d.Type),
		Host:          d.Host,
		Port:          d.Port,
		Username:      d.Username,
		Password:      d.Password,
		DatabaseName:  d.DatabaseName,
		Path:          d.Path,
		ScheduleID:    d.ScheduleID,
		DestinationID: d.DestinationID,
		BackupEnabled: d.BackupEnabled,
	}
}

func databaseFromDomain(t *domain.DatabaseTarget) Database {
	return Database{
		ID:            t.ID,
		Name:          t.Name,
		Type:          string(t.Engine),
		Host:          t.Host,
		Port:          t.Port,
		Username:      t.Username,
		Password:      t.Password,
		DatabaseName:  t.DatabaseName,
		Path:          t.Path,
		ScheduleID:    t.ScheduleID,
		DestinationID: t.DestinationID,
		BackupEnabled: t.BackupEnabled,
	}
}

func (d *Destination) toDomain() (*domain.Destination, error) {
	cfg, err := domain.UnmarshalDestinationConfig(d.Config)
	if err != nil {
		return nil, err
	}
	return &domain.Destination{
		ID:     d.ID,
		Name:   d.Name,
		Kind:   domain.DestinationKind(d.Type),
		Config: cfg,
	}, nil
}

func (s *Schedule) toDomain() domain.Schedule {
	targets := make([]domain.DatabaseTarget, 0, len(s.Databases))
	for i := range s.Databases {
		targets = append(targets, s.Databases[i].toDomain())
	}
	return domain.Schedule{
		ID:            s.ID,
		Name:          s.Name,
		Cron:          s.Cron,
		RetentionDays: s.RetentionDays,
		Enabled:       s.Enabled,
		Targets:       targets,
	}
}

func (j *BackupJob) toDomain() domain.Job {
	return domain.Job{
		ID:            j.ID,
		DatabaseID:    j.DatabaseID,
		DestinationID: j.DestinationID,
		Status:        domain.JobStatus(j.Status),
		StartedAt:     j.StartedAt,
		FinishedAt:    j.FinishedAt,
		Location:      j.Location,
		Size:          j.Size,
		Log:           j.Log,
	}
}
