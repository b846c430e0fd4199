package domain

import (
	"context"
	"time"
)

type JobStatus string

const (
	JobRunning JobStatus = "RUNNING"
	JobSuccess JobStatus = "SUCCESS"
	JobFailed  JobStatus = "FAILED"
)

func (s JobStatus) Terminal() bool {
	return s == JobSuccess || s == JobFailed
}

// Job is one backup attempt for one target. It is created RUNNING and
// finalized exactly once.
type Job struct {
	ID            uint
	DatabaseID    uint
	DestinationID uint
	Status        JobStatus
	StartedAt     time.Time
	FinishedAt    *time.Time
	Location      string
	Size          int64
	Log           string
}

func (j *Job) Duration() time.Duration {
	if j.FinishedAt == nil {
		return 0
	}
	return j.FinishedAt.Sub(j.StartedAt)
}

type JobFilter struct {
	DatabaseID    *uint
	DestinationID *uint
	Status        JobStatus
	Limit         int
}

type Schedule struct {
	ID            uint
	Name          string
	Cron          string
	RetentionDays int
	Enabled       bool
	Targets       []DatabaseTarget
}

func (s *Schedule) TargetNames() []string {
	names := make([]string, 0, len(s.Targets))
	for _, t := range s.Targets {
		names = append(names, t.Name)
	}
	return names
}

// BackupEvent summarizes a finished job for notifiers.
type BackupEvent struct {
	JobID      uint
	TargetName string
	Success    bool
	Location   string
	Size       int64
	Duration   time.Duration
	Error      string
}

type Notifier interface {
	Notify(ctx context.Context, event BackupEvent) error
}
