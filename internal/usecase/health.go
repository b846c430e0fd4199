package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/semmidev/backuppilot/internal/domain"
)

const HealthHistoryWindow = 24 * time.Hour

type HealthReport struct {
	DestinationID uint
	Name          string
	Kind          domain.DestinationKind
	Connected     bool
	// Method is "live" for a real probe, "history" when inferred from jobs.
	Method string
	Detail string
	Err    error
}

// DestinationHealth reports whether a destination is usable. Destinations
// that skip live probing are considered connected if a job stored to them
// successfully within the last 24 hours.
func (uc *Backup) DestinationHealth(ctx context.Context, destinationID uint) HealthReport {
	report := HealthReport{DestinationID: destinationID, Method: "live"}

	dest, err := uc.store.GetDestination(ctx, destinationID)
	if err != nil {
		report.Err = err
		return report
	}
	report.Name = dest.Name
	report.Kind = dest.Kind

	storage, err := uc.storages.Open(ctx, dest)
	if err != nil {
		report.Err = err
		return report
	}

	if prober, ok := storage.(domain.LiveProber); ok && !prober.LiveProbe() {
		report.Method = "history"
		job, err := uc.store.LatestSuccessfulJob(ctx, dest.ID, uc.now().Add(-HealthHistoryWindow))
		if err != nil {
			report.Err = err
			return report
		}
		if job == nil {
			report.Detail = "no successful backup in the last 24 hours"
			return report
		}
		report.Connected = true
		report.Detail = fmt.Sprintf("last successful backup at %s", job.FinishedAt.UTC().Format(time.RFC3339))
		return report
	}

	res := storage.TestConnection(ctx)
	report.Connected = res.Success
	report.Detail = res.Detail
	report.Err = res.Err
	if !res.Success {
		uc.logger.Warnf("Destination %s failed connectivity test: %v", dest.Name, res.Err)
	}
	return report
}
