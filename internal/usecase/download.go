package usecase

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/semmidev/backuppilot/internal/domain"
)

// ArtifactFile is a stored dump on local disk, ready to be streamed.
type ArtifactFile struct {
	JobID   uint
	Name    string
	Path    string
	Size    int64
	ModTime time.Time
}

// LocalArtifact resolves the file written by a successful job to a LOCAL
// destination. Artifacts on remote destinations are fetched from there.
func (uc *Backup) LocalArtifact(ctx context.Context, jobID uint) (*ArtifactFile, error) {
	job, err := uc.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != domain.JobSuccess || job.Location == "" {
		return nil, domain.Errorf(domain.KindMisconfigured, "backup job %d has no file available (status %s)", jobID, job.Status)
	}

	dest, err := uc.store.GetDestination(ctx, job.DestinationID)
	if err != nil {
		return nil, err
	}
	if dest.Kind != domain.KindLocal || dest.Config.Local == nil {
		return nil, domain.Errorf(domain.KindUnsupportedKind, "backup job %d was stored on %s destination %s", jobID, dest.Kind, dest.Name).
			WithRemediation(fmt.Sprintf("Only LOCAL artifacts can be downloaded; fetch %s from the destination directly.", job.Location))
	}

	path, err := withinRoot(dest.Config.Local.Path, job.Location)
	if err != nil {
		return nil, domain.WrapError(domain.KindMisconfigured, fmt.Sprintf("backup job %d points outside destination %s", jobID, dest.Name), err)
	}

	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist) || (err == nil && info.IsDir()):
		return nil, domain.Errorf(domain.KindNotFound, "backup file %s not found on disk", job.Location).
			WithRemediation("The file may have been removed by retention pruning.")
	case err != nil:
		return nil, domain.WrapError(domain.KindStorageFailed, fmt.Sprintf("failed to read %s", job.Location), err)
	}

	return &ArtifactFile{
		JobID:   job.ID,
		Name:    filepath.Base(path),
		Path:    path,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}, nil
}

func withinRoot(root, location string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(location)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(absRoot, abs)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is not under %s", location, root)
	}
	return abs, nil
}
