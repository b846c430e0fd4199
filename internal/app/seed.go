package app

import (
	"context"
	"fmt"

	"github.com/semmidev/backuppilot/internal/config"
	"github.com/semmidev/backuppilot/internal/domain"
	"github.com/semmidev/backuppilot/internal/usecase"
)

// SeedStore is the administrative write side of the metadata store.
type SeedStore interface {
	SaveDestination(ctx context.Context, d *domain.Destination) error
	SaveTarget(ctx context.Context, t *domain.DatabaseTarget) error
	SaveSchedule(ctx context.Context, s *domain.Schedule) error
}

type SeedReport struct {
	Destinations int
	Databases    int
	Schedules    int
}

// Seed upserts the destinations, databases and schedules listed in the
// config, matched by name. Entries already in the store but absent from the
// config are left alone.
func Seed(ctx context.Context, st SeedStore, cfg *config.Config, log usecase.Logger) (SeedReport, error) {
	var report SeedReport

	destIDs := make(map[string]uint, len(cfg.Destinations))
	for _, dc := range cfg.Destinations {
		dest, err := dc.Destination()
		if err != nil {
			return report, fmt.Errorf("failed to seed destination %s: %w", dc.Name, err)
		}
		if err := st.SaveDestination(ctx, dest); err != nil {
			return report, fmt.Errorf("failed to seed destination %s: %w", dc.Name, err)
		}
		destIDs[dc.Name] = dest.ID
		report.Destinations++
		log.Infof("✓ Destination %s (%s)", dest.Name, dest.Kind)
	}

	targets := make(map[string]domain.DatabaseTarget, len(cfg.Databases))
	for _, dbc := range cfg.Databases {
		target, err := dbc.Target()
		if err != nil {
			return report, fmt.Errorf("failed to seed database %s: %w", dbc.Name, err)
		}
		if dbc.Destination != "" {
			id, ok := destIDs[dbc.Destination]
			if !ok {
				return report, fmt.Errorf("database %s references unknown destination %q", dbc.Name, dbc.Destination)
			}
			target.DestinationID = &id
		}
		if err := st.SaveTarget(ctx, target); err != nil {
			return report, fmt.Errorf("failed to seed database %s: %w", dbc.Name, err)
		}
		targets[dbc.Name] = *target
		report.Databases++
		log.Infof("✓ Database %s", target)
	}

	for _, sc := range cfg.Schedules {
		sch := &domain.Schedule{
			Name:          sc.Name,
			Cron:          sc.Cron,
			RetentionDays: sc.RetentionDays,
			Enabled:       sc.Enabled,
		}
		for _, name := range sc.Databases {
			t, ok := targets[name]
			if !ok {
				return report, fmt.Errorf("schedule %s references unknown database %q", sc.Name, name)
			}
			sch.Targets = append(sch.Targets, t)
		}
		if err := st.SaveSchedule(ctx, sch); err != nil {
			return report, fmt.Errorf("failed to seed schedule %s: %w", sc.Name, err)
		}
		report.Schedules++
		log.Infof("✓ Schedule %s: %s (%d database(s))", sch.Name, sch.Cron, len(sch.Targets))
	}

	return report, nil
}
