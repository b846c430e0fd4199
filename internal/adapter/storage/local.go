package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/semmidev/backuppilot/internal/domain"
)

type LocalStorage struct {
	basePath string
}

// NewLocal does not touch the filesystem; directories are created on the
// first Store so an unwritable root surfaces through TestConnection.
func NewLocal(basePath string) *LocalStorage {
	return &LocalStorage{basePath: filepath.Clean(basePath)}
}

func (l *LocalStorage) Kind() domain.DestinationKind {
	return domain.KindLocal
}

func (l *LocalStorage) Store(ctx context.Context, filename string, data []byte, namespace string) (*domain.StoredArtifact, error) {
	dir := filepath.Join(l.basePath, namespace)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, domain.WrapError(domain.KindPathNotWritable,
			fmt.Sprintf("failed to create backup directory %s", dir), err)
	}

	destPath := l.GetPath(namespace, filename)
	if err := os.WriteFile(destPath, data, 0644); err != nil {
		return nil, domain.WrapError(domain.KindPathNotWritable,
			fmt.Sprintf("failed to write %s", destPath), err)
	}

	return &domain.StoredArtifact{Location: destPath, Size: int64(len(data))}, nil
}

// TestConnection creates and removes a probe file in the root.
func (l *LocalStorage) TestConnection(ctx context.Context) domain.ConnectionResult {
	if err := os.MkdirAll(l.basePath, 0755); err != nil {
		return domain.ConnectionFailed(l.notWritable(err))
	}

	probe, err := os.CreateTemp(l.basePath, ".pilot-probe-*")
	if err != nil {
		return domain.ConnectionFailed(l.notWritable(err))
	}
	name := probe.Name()
	probe.Close()

	if err := os.Remove(name); err != nil {
		return domain.ConnectionFailed(l.notWritable(err))
	}
	return domain.ConnectionOK(fmt.Sprintf("%s is writable", l.basePath))
}

func (l *LocalStorage) notWritable(err error) error {
	return domain.WrapError(domain.KindPathNotWritable, fmt.Sprintf("backup path %s is not writable", l.basePath), err).
		WithRemediation("Check that the directory exists and that the backup process user has write permission.")
}

func (l *LocalStorage) List(ctx context.Context, namespace string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(l.basePath, namespace))
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() {
			files = append(files, entry.Name())
		}
	}

	return files, nil
}

func (l *LocalStorage) Delete(ctx context.Context, namespace, name string) error {
	filePath := filepath.Join(l.basePath, namespace, name)
	if err := os.Remove(filePath); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

func (l *LocalStorage) GetOldFiles(ctx context.Context, namespace string, cutoffTime time.Time) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(l.basePath, namespace))
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	var oldFiles []string
	for _, entry := range entries {
		if !entry.IsDir() {
			info, err := entry.Info()
			if err != nil {
				return nil, fmt.Errorf("failed to get file info for %s: %w", entry.Name(), err)
			}
			if info.ModTime().Before(cutoffTime) {
				oldFiles = append(oldFiles, entry.Name())
			}
		}
	}

	return oldFiles, nil
}

func (l *LocalStorage) GetPath(namespace, filename string) string {
	return filepath.Join(l.basePath, namespace, filename)
}
