package store

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/semmidev/backuppilot/internal/domain"
)

func (s *Store) GetTarget(ctx context.Context, id uint) (*domain.DatabaseTarget, error) {
	var rec Database
	if err := s.db.WithContext(ctx).First(&rec, id).Error; err != nil {
		return nil, classify(err, "database target %d not found", id)
	}
	t := rec.toDomain()
	return &t, nil
}

func (s *Store) ListTargets(ctx context.Context) ([]domain.DatabaseTarget, error) {
	var recs []Database
	if err := s.db.WithContext(ctx).Order("id").Find(&recs).Error; err != nil {
		return nil, classify(err, "failed to list database targets")
	}

	targets := make([]domain.DatabaseTarget, 0, len(recs))
	for i := range recs {
		targets = append(targets, recs[i].toDomain())
	}
	return targets, nil
}

// SaveTarget inserts or updates a target keyed by name and sets t.ID.
func (s *Store) SaveTarget(ctx context.Context, t *domain.DatabaseTarget) error {
	if strings.TrimSpace(t.Name) == "" {
		return domain.NewError(domain.KindMisconfigured, "database name is required")
	}
	if _, err := domain.ParseEngine(string(t.Engine)); err != nil {
		return err
	}

	rec := databaseFromDomain(t)
	var existing Database
	err := s.db.WithContext(ctx).Where("name = ?", t.Name).First(&existing).Error
	switch {
	case err == nil:
		rec.ID = existing.ID
		rec.CreatedAt = existing.CreatedAt
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return classify(err, "failed to look up database %s", t.Name)
	}

	if err := s.db.WithContext(ctx).Save(&rec).Error; err != nil {
		return classify(err, "failed to save database %s", t.Name)
	}
	t.ID = rec.ID
	return nil
}

// DeleteTarget removes the target and its schedule bindings. Job history
// is kept.
func (s *Store) DeleteTarget(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM schedule_databases WHERE database_id = ?", id).Error; err != nil {
			return classify(err, "failed to unbind database %d", id)
		}
		res := tx.Delete(&Database{}, id)
		if res.Error != nil {
			return classify(res.Error, "failed to delete database %d", id)
		}
		if res.RowsAffected == 0 {
			return domain.Errorf(domain.KindNotFound, "database target %d not found", id)
		}
		return nil
	})
}
