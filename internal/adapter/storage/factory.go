package storage

import (
	"context"

	"github.com/semmidev/backuppilot/internal/domain"
	"github.com/semmidev/backuppilot/internal/infrastructure/shell"
)

// Factory opens the adapter for a destination record.
type Factory struct {
	runner  shell.Runner
	tempDir string
}

func NewFactory(runner shell.Runner, tempDir string) *Factory {
	return &Factory{runner: runner, tempDir: tempDir}
}

func (f *Factory) Open(ctx context.Context, dest *domain.Destination) (domain.Storage, error) {
	if err := dest.Validate(); err != nil {
		return nil, err
	}

	switch dest.Kind {
	case domain.KindLocal:
		return NewLocal(dest.Config.Local.Path), nil
	case domain.KindObjectStore:
		return NewS3(ctx, dest.Config.ObjectStore)
	case domain.KindSecureCopy:
		return NewSCP(f.runner, dest.Config.SecureCopy, f.tempDir), nil
	case domain.KindCloudDrive:
		return NewGDrive(ctx, dest.Config.CloudDrive)
	case domain.KindBlobStore:
		return NewAzureBlob(dest.Config.BlobStore)
	}
	return nil, domain.Errorf(domain.KindUnsupportedKind, "unsupported destination type %q", dest.Kind)
}
