package store

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/semmidev/backuppilot/internal/domain"
)

func (s *Store) GetSchedule(ctx context.Context, id uint) (*domain.Schedule, error) {
	var rec Schedule
	if err := s.db.WithContext(ctx).Preload("Databases").First(&rec, id).Error; err != nil {
		return nil, classify(err, "schedule %d not found", id)
	}
	sch := rec.toDomain()
	return &sch, nil
}

func (s *Store) ListSchedules(ctx context.Context) ([]domain.Schedule, error) {
	return s.listSchedules(ctx, s.db.WithContext(ctx))
}

func (s *Store) ListEnabledSchedules(ctx context.Context) ([]domain.Schedule, error) {
	return s.listSchedules(ctx, s.db.WithContext(ctx).Where("enabled = ?", true))
}

func (s *Store) listSchedules(ctx context.Context, q *gorm.DB) ([]domain.Schedule, error) {
	var recs []Schedule
	if err := q.Preload("Databases").Order("id").Find(&recs).Error; err != nil {
		return nil, classify(err, "failed to list schedules")
	}

	schedules := make([]domain.Schedule, 0, len(recs))
	for i := range recs {
		schedules = append(schedules, recs[i].toDomain())
	}
	return schedules, nil
}

// SaveSchedule upserts by name and replaces the bound target set with
// sch.Targets (matched by id).
func (s *Store) SaveSchedule(ctx context.Context, sch *domain.Schedule) error {
	if strings.TrimSpace(sch.Name) == "" {
		return domain.NewError(domain.KindMisconfigured, "schedule name is required")
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec := Schedule{
			Name:          sch.Name,
			Cron:          sch.Cron,
			RetentionDays: sch.RetentionDays,
			Enabled:       sch.Enabled,
		}

		var existing Schedule
		err := tx.Where("name = ?", sch.Name).First(&existing).Error
		switch {
		case err == nil:
			rec.ID = existing.ID
			rec.CreatedAt = existing.CreatedAt
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return classify(err, "failed to look up schedule %s", sch.Name)
		}

		if err := tx.Omit("Databases").Save(&rec).Error; err != nil {
			return classify(err, "failed to save schedule %s", sch.Name)
		}

		ids := make([]uint, 0, len(sch.Targets))
		for _, t := range sch.Targets {
			ids = append(ids, t.ID)
		}
		var dbs []Database
		if len(ids) > 0 {
			if err := tx.Where("id IN ?", ids).Find(&dbs).Error; err != nil {
				return classify(err, "failed to load databases for schedule %s", sch.Name)
			}
			if len(dbs) != len(ids) {
				return domain.Errorf(domain.KindNotFound, "schedule %s references unknown databases", sch.Name)
			}
		}
		if err := tx.Model(&rec).Association("Databases").Replace(dbs); err != nil {
			return classify(err, "failed to bind databases to schedule %s", sch.Name)
		}

		sch.ID = rec.ID
		return nil
	})
}
