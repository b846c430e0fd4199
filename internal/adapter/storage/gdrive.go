package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/semmidev/backuppilot/internal/domain"
)

const folderMimeType = "application/vnd.google-apps.folder"

const reauthorizeHint = "Run `pilot auth gdrive` to obtain a new refresh token and update the destination config."

type GDriveStorage struct {
	service   *drive.Service
	folderID  string
	liveProbe bool

	mu      sync.Mutex
	folders map[string]string
}

// NewGDrive builds a Drive client from the stored OAuth client and refresh
// token. The token source refreshes the access token as needed.
func NewGDrive(ctx context.Context, cfg *domain.CloudDriveConfig) (*GDriveStorage, error) {
	oauthCfg := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{drive.DriveFileScope},
	}
	token := &oauth2.Token{
		AccessToken:  cfg.AccessToken,
		RefreshToken: cfg.RefreshToken,
		TokenType:    "Bearer",
	}

	service, err := drive.NewService(ctx, option.WithTokenSource(oauthCfg.TokenSource(ctx, token)))
	if err != nil {
		return nil, domain.WrapError(domain.KindMisconfigured, "failed to create drive service", err)
	}

	return newGDriveWithService(service, cfg.FolderID, cfg.LiveProbe), nil
}

func newGDriveWithService(service *drive.Service, folderID string, liveProbe bool) *GDriveStorage {
	if folderID == "" {
		folderID = "root"
	}
	return &GDriveStorage{
		service:   service,
		folderID:  folderID,
		liveProbe: liveProbe,
		folders:   make(map[string]string),
	}
}

func (g *GDriveStorage) Kind() domain.DestinationKind {
	return domain.KindCloudDrive
}

func (g *GDriveStorage) LiveProbe() bool {
	return g.liveProbe
}

func (g *GDriveStorage) Store(ctx context.Context, filename string, data []byte, namespace string) (*domain.StoredArtifact, error) {
	parentID, err := g.ensureFolder(ctx, namespace)
	if err != nil {
		return nil, g.classify("failed to prepare drive folder", err)
	}

	fileMetadata := &drive.File{
		Name:    filename,
		Parents: []string{parentID},
	}

	created, err := g.service.Files.Create(fileMetadata).
		Media(bytes.NewReader(data), googleapi.ContentType("application/sql")).
		Fields("id, size").
		Context(ctx).
		Do()
	if err != nil {
		return nil, g.classify("failed to upload to gdrive", err)
	}

	return &domain.StoredArtifact{
		Location: "gdrive://" + created.Id,
		Size:     int64(len(data)),
	}, nil
}

func (g *GDriveStorage) TestConnection(ctx context.Context) domain.ConnectionResult {
	about, err := g.service.About.Get().Fields("user").Context(ctx).Do()
	if err != nil {
		return domain.ConnectionFailed(g.classify("cannot reach Google Drive", err))
	}

	detail := "connected to Google Drive"
	if about.User != nil && about.User.EmailAddress != "" {
		detail = fmt.Sprintf("connected to Google Drive as %s", about.User.EmailAddress)
	}
	return domain.ConnectionOK(detail)
}

func (g *GDriveStorage) classify(msg string, err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return domain.WrapError(domain.KindAuthenticationFailed, msg, errors.New(retrieveErr.ErrorCode)).
			WithRemediation(reauthorizeHint)
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusUnauthorized, http.StatusForbidden:
			return domain.WrapError(domain.KindAuthenticationFailed, msg, err).WithRemediation(reauthorizeHint)
		case http.StatusNotFound:
			return domain.WrapError(domain.KindMisconfigured, msg, err).
				WithRemediation("Check the folder id of the Google Drive destination.")
		}
	}

	return domain.WrapError(domain.KindStorageFailed, msg, err)
}

// ensureFolder returns the id of the namespace folder under the configured
// root folder, creating it on first use.
func (g *GDriveStorage) ensureFolder(ctx context.Context, namespace string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if id, ok := g.folders[namespace]; ok {
		return id, nil
	}

	id, err := g.findFolder(ctx, namespace)
	if err != nil {
		return "", err
	}
	if id == "" {
		created, err := g.service.Files.Create(&drive.File{
			Name:     namespace,
			MimeType: folderMimeType,
			Parents:  []string{g.folderID},
		}).Fields("id").Context(ctx).Do()
		if err != nil {
			return "", fmt.Errorf("failed to create folder %s: %w", namespace, err)
		}
		id = created.Id
	}

	g.folders[namespace] = id
	return id, nil
}

func (g *GDriveStorage) findFolder(ctx context.Context, name string) (string, error) {
	q := fmt.Sprintf("name='%s' and '%s' in parents and mimeType='%s' and trashed=false",
		escapeQuery(name), escapeQuery(g.folderID), folderMimeType)

	list, err := g.service.Files.List().Q(q).Fields("files(id)").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to find folder %s: %w", name, err)
	}
	if len(list.Files) == 0 {
		return "", nil
	}
	return list.Files[0].Id, nil
}

func (g *GDriveStorage) listFiles(ctx context.Context, namespace, extra string) ([]*drive.File, error) {
	parentID, err := g.findFolder(ctx, namespace)
	if err != nil || parentID == "" {
		return nil, err
	}

	q := fmt.Sprintf("'%s' in parents and mimeType!='%s' and trashed=false", escapeQuery(parentID), folderMimeType)
	if extra != "" {
		q += " and " + extra
	}

	var files []*drive.File
	err = g.service.Files.List().
		Q(q).
		Fields("nextPageToken, files(id, name, createdTime)").
		Context(ctx).
		Pages(ctx, func(page *drive.FileList) error {
			files = append(files, page.Files...)
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	return files, nil
}

func (g *GDriveStorage) List(ctx context.Context, namespace string) ([]string, error) {
	files, err := g.listFiles(ctx, namespace, "")
	if err != nil {
		return nil, err
	}
	return fileNames(files), nil
}

func (g *GDriveStorage) Delete(ctx context.Context, namespace, name string) error {
	files, err := g.listFiles(ctx, namespace, fmt.Sprintf("name='%s'", escapeQuery(name)))
	if err != nil {
		return fmt.Errorf("failed to find file: %w", err)
	}

	if len(files) == 0 {
		return fmt.Errorf("file not found: %s", name)
	}

	if err := g.service.Files.Delete(files[0].Id).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}

	return nil
}

func (g *GDriveStorage) GetOldFiles(ctx context.Context, namespace string, cutoffTime time.Time) ([]string, error) {
	files, err := g.listFiles(ctx, namespace, fmt.Sprintf("createdTime < '%s'", cutoffTime.UTC().Format(time.RFC3339)))
	if err != nil {
		return nil, fmt.Errorf("failed to list old files: %w", err)
	}
	return fileNames(files), nil
}

func fileNames(files []*drive.File) []string {
	names := make([]string, 0, len(files))
	for _, file := range files {
		names = append(names, file.Name)
	}
	return names
}

func escapeQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}
