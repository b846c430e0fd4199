package usecase

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/semmidev/backuppilot/internal/domain"
)

var filenameTimestamp = regexp.MustCompile(`(\d{8})_(\d{6})`)

type PruneReport struct {
	ScheduleID uint
	Cutoff     time.Time
	Deleted    []string
	Failed     int
}

// Prune deletes artifacts older than the schedule's retention from the
// namespaces of its bound targets. It only runs on request.
func (uc *Backup) Prune(ctx context.Context, scheduleID uint) (*PruneReport, error) {
	schedule, err := uc.store.GetSchedule(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	if schedule.RetentionDays <= 0 {
		return nil, domain.Errorf(domain.KindMisconfigured, "schedule %s has no retention configured", schedule.Name)
	}

	cutoff := uc.now().AddDate(0, 0, -schedule.RetentionDays)
	report := &PruneReport{ScheduleID: schedule.ID, Cutoff: cutoff}

	uc.logger.Infof("Starting prune for schedule %s, retention: %d days", schedule.Name, schedule.RetentionDays)

	for i := range schedule.Targets {
		target := &schedule.Targets[i]
		if target.DestinationID == nil {
			continue
		}
		if err := uc.pruneTarget(ctx, target, *target.DestinationID, cutoff, report); err != nil {
			uc.logger.Errorf("[%s] Prune failed: %v", target.Name, err)
			report.Failed++
		}
	}

	uc.logger.Infof("Prune completed, deleted %d old backup(s)", len(report.Deleted))
	return report, nil
}

func (uc *Backup) pruneTarget(ctx context.Context, target *domain.DatabaseTarget, destinationID uint, cutoff time.Time, report *PruneReport) error {
	dest, err := uc.store.GetDestination(ctx, destinationID)
	if err != nil {
		return err
	}
	storage, err := uc.storages.Open(ctx, dest)
	if err != nil {
		return err
	}
	pruner, ok := storage.(domain.Pruner)
	if !ok {
		uc.logger.Infof("[%s] Destination %s (%s) does not support pruning", target.Name, dest.Name, dest.Kind)
		return nil
	}

	ns := target.Namespace()
	files, err := pruner.GetOldFiles(ctx, ns, cutoff)
	if err != nil {
		files, err = uc.fallbackListFiles(ctx, pruner, ns, cutoff)
		if err != nil {
			return err
		}
	}

	for _, filename := range files {
		uc.logger.Infof("[%s] Deleting old backup from %s: %s", target.Name, dest.Name, filename)
		if err := pruner.Delete(ctx, ns, filename); err != nil {
			uc.logger.Errorf("[%s] Failed to delete %s from %s: %v", target.Name, filename, dest.Name, err)
			report.Failed++
			continue
		}
		report.Deleted = append(report.Deleted, ns+"/"+filename)
	}
	return nil
}

func (uc *Backup) fallbackListFiles(ctx context.Context, pruner domain.Pruner, namespace string, cutoff time.Time) ([]string, error) {
	files, err := pruner.List(ctx, namespace)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}

	old := make([]string, 0)
	for _, filename := range files {
		ts, err := extractTimestamp(filename)
		if err != nil {
			uc.logger.Warnf("Could not parse timestamp from %s: %v", filename, err)
			continue
		}
		if ts.Before(cutoff) {
			old = append(old, filename)
		}
	}
	return old, nil
}

func extractTimestamp(filename string) (time.Time, error) {
	m := filenameTimestamp.FindStringSubmatch(filename)
	if len(m) < 3 {
		return time.Time{}, fmt.Errorf("invalid filename format: no timestamp found")
	}
	return time.Parse("20060102_150405", m[1]+"_"+m[2])
}
