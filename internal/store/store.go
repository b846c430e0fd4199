package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/semmidev/backuppilot/internal/domain"
)

// Store is the gorm backed metadata store. The backup engine only reads
// targets, destinations and schedules, and only writes job rows.
type Store struct {
	db *gorm.DB
}

type options struct {
	readOnly bool
}

type Option func(*options)

// ReadOnly opens the database with query_only set and skips migration.
func ReadOnly() Option {
	return func(o *options) { o.readOnly = true }
}

func Open(path string, opts ...Option) (*Store, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if dir := filepath.Dir(path); dir != "" && !o.readOnly {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create metadata directory: %w", err)
		}
	}

	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	if o.readOnly {
		dsn += "&_pragma=query_only(1)"
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	if !o.readOnly {
		if err := db.AutoMigrate(&Database{}, &Destination{}, &Schedule{}, &BackupJob{}); err != nil {
			return nil, fmt.Errorf("failed to migrate: %w", err)
		}
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func isReadOnly(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "readonly database") ||
		strings.Contains(msg, "read-only") ||
		strings.Contains(msg, "read only")
}

// classify maps gorm and sqlite failures onto the domain taxonomy.
func classify(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	msg := fmt.Sprintf(format, args...)

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.NewError(domain.KindNotFound, msg)
	}
	if isReadOnly(err) {
		return domain.WrapError(domain.KindMetadataStoreUnwritable, msg, err).
			WithRemediation("The metadata database is read-only. Check file permissions and free disk space.")
	}
	return fmt.Errorf("%s: %w", msg, err)
}
