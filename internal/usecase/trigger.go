package usecase

import (
	"context"
	"fmt"

	"github.com/semmidev/backuppilot/internal/domain"
)

type TriggerReport struct {
	ScheduleID   uint
	ScheduleName string
	Results      []JobResult
	Successful   int
	Total        int
	Message      string
}

// TriggerSchedule runs every target bound to an enabled schedule right now.
// Manual runs ignore the per-target BackupEnabled flag.
func (uc *Backup) TriggerSchedule(ctx context.Context, scheduleID uint) (*TriggerReport, error) {
	schedule, err := uc.store.GetSchedule(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	if !schedule.Enabled {
		return nil, domain.Errorf(domain.KindMisconfigured, "schedule %s is disabled", schedule.Name).
			WithRemediation("Enable the schedule before triggering it.")
	}

	uc.logger.Infof("Manual trigger of schedule %s (%d targets)", schedule.Name, len(schedule.Targets))

	results := uc.RunTargets(ctx, schedule.Targets)
	report := &TriggerReport{
		ScheduleID:   schedule.ID,
		ScheduleName: schedule.Name,
		Results:      results,
		Total:        len(results),
	}
	for _, r := range results {
		if r.Success {
			report.Successful++
		}
	}
	report.Message = fmt.Sprintf("Manual backup completed: %d/%d successful", report.Successful, report.Total)
	uc.logger.Infof("[%s] %s", schedule.Name, report.Message)

	return report, nil
}
