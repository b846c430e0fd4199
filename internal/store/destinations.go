package store

import (
	"context"
	"errors"
	"path/filepath"

	"gorm.io/gorm"

	"github.com/semmidev/backuppilot/internal/domain"
)

func (s *Store) GetDestination(ctx context.Context, id uint) (*domain.Destination, error) {
	var rec Destination
	if err := s.db.WithContext(ctx).First(&rec, id).Error; err != nil {
		return nil, classify(err, "destination %d not found", id)
	}
	return rec.toDomain()
}

func (s *Store) ListDestinations(ctx context.Context) ([]domain.Destination, error) {
	var recs []Destination
	if err := s.db.WithContext(ctx).Order("id").Find(&recs).Error; err != nil {
		return nil, classify(err, "failed to list destinations")
	}

	dests := make([]domain.Destination, 0, len(recs))
	for i := range recs {
		d, err := recs[i].toDomain()
		if err != nil {
			return nil, err
		}
		dests = append(dests, *d)
	}
	return dests, nil
}

// SaveDestination validates the config, enforces one LOCAL destination per
// filesystem path, and upserts by name.
func (s *Store) SaveDestination(ctx context.Context, d *domain.Destination) error {
	if err := d.Validate(); err != nil {
		return err
	}

	raw, err := d.Config.Marshal()
	if err != nil {
		return domain.WrapError(domain.KindMisconfigured, "failed to encode destination config", err)
	}
	rec := Destination{Name: d.Name, Type: string(d.Kind), Config: raw}

	var existing Destination
	err = s.db.WithContext(ctx).Where("name = ?", d.Name).First(&existing).Error
	switch {
	case err == nil:
		rec.ID = existing.ID
		rec.CreatedAt = existing.CreatedAt
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return classify(err, "failed to look up destination %s", d.Name)
	}

	if d.Kind == domain.KindLocal {
		path := filepath.Clean(d.Config.Local.Path)
		var clash Destination
		err := s.db.WithContext(ctx).Where("local_path = ? AND id <> ?", path, rec.ID).First(&clash).Error
		if err == nil {
			return domain.Errorf(domain.KindMisconfigured, "local path %s is already used by destination %q", path, clash.Name)
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return classify(err, "failed to check local path %s", path)
		}
		rec.LocalPath = &path
	}

	if err := s.db.WithContext(ctx).Save(&rec).Error; err != nil {
		return classify(err, "failed to save destination %s", d.Name)
	}
	d.ID = rec.ID
	return nil
}
