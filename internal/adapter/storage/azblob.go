package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"

	"github.com/semmidev/backuppilot/internal/domain"
)

type blobAPI interface {
	CreateContainer(ctx context.Context, containerName string, o *azblob.CreateContainerOptions) (azblob.CreateContainerResponse, error)
	UploadBuffer(ctx context.Context, containerName string, blobName string, buffer []byte, o *azblob.UploadBufferOptions) (azblob.UploadBufferResponse, error)
	NewListBlobsFlatPager(containerName string, o *azblob.ListBlobsFlatOptions) *runtime.Pager[azblob.ListBlobsFlatResponse]
	DeleteBlob(ctx context.Context, containerName string, blobName string, o *azblob.DeleteBlobOptions) (azblob.DeleteBlobResponse, error)
}

type AzureBlobStorage struct {
	client    blobAPI
	container string
	prefix    string
	liveProbe bool

	mu      sync.Mutex
	created bool
}

// NewAzureBlob authenticates with the connection string when one is set,
// otherwise with the account's shared key.
func NewAzureBlob(cfg *domain.BlobStoreConfig) (*AzureBlobStorage, error) {
	var (
		client *azblob.Client
		err    error
	)
	if cfg.ConnectionString != "" {
		client, err = azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
	} else {
		var cred *azblob.SharedKeyCredential
		cred, err = azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
		if err == nil {
			serviceURL := cfg.ServiceURL
			if serviceURL == "" {
				serviceURL = fmt.Sprintf("https://%s.blob.core.windows.net/", cfg.AccountName)
			}
			client, err = azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
		}
	}
	if err != nil {
		return nil, domain.WrapError(domain.KindMisconfigured, "failed to create Azure Blob client", err).
			WithRemediation("Check the connection string or the account name and key of the Azure Blob destination.")
	}

	return newAzureBlobWithClient(client, cfg), nil
}

func newAzureBlobWithClient(client blobAPI, cfg *domain.BlobStoreConfig) *AzureBlobStorage {
	return &AzureBlobStorage{
		client:    client,
		container: cfg.Container,
		prefix:    strings.Trim(cfg.BlobPrefix, "/"),
		liveProbe: cfg.LiveProbe,
	}
}

func (a *AzureBlobStorage) Kind() domain.DestinationKind {
	return domain.KindBlobStore
}

func (a *AzureBlobStorage) LiveProbe() bool {
	return a.liveProbe
}

func (a *AzureBlobStorage) blobName(namespace, name string) string {
	return path.Join(a.prefix, namespace, name)
}

func (a *AzureBlobStorage) namespacePrefix(namespace string) string {
	return path.Join(a.prefix, namespace) + "/"
}

// ensureContainer creates the container on first use. An existing container
// is fine.
func (a *AzureBlobStorage) ensureContainer(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.created {
		return nil
	}

	_, err := a.client.CreateContainer(ctx, a.container, nil)
	if err != nil && !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
		return err
	}
	a.created = true
	return nil
}

func (a *AzureBlobStorage) Store(ctx context.Context, filename string, data []byte, namespace string) (*domain.StoredArtifact, error) {
	if err := a.ensureContainer(ctx); err != nil {
		return nil, a.classify(fmt.Sprintf("failed to prepare Azure container %s", a.container), err)
	}

	name := a.blobName(namespace, filename)
	contentType := "application/sql"
	_, err := a.client.UploadBuffer(ctx, a.container, name, data, &azblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &contentType},
	})
	if err != nil {
		return nil, a.classify(fmt.Sprintf("failed to upload to Azure container %s", a.container), err)
	}

	return &domain.StoredArtifact{
		Location: fmt.Sprintf("azure://%s/%s", a.container, name),
		Size:     int64(len(data)),
	}, nil
}

// TestConnection lists at most one blob, which needs valid credentials and
// an existing container.
func (a *AzureBlobStorage) TestConnection(ctx context.Context) domain.ConnectionResult {
	limit := int32(1)
	pager := a.client.NewListBlobsFlatPager(a.container, &azblob.ListBlobsFlatOptions{MaxResults: &limit})
	if _, err := pager.NextPage(ctx); err != nil {
		return domain.ConnectionFailed(a.classify(fmt.Sprintf("cannot access Azure container %s", a.container), err))
	}
	return domain.ConnectionOK(fmt.Sprintf("container %s is reachable", a.container))
}

func (a *AzureBlobStorage) classify(msg string, err error) error {
	if bloberror.HasCode(err, bloberror.ContainerNotFound, bloberror.ContainerBeingDeleted) {
		return domain.WrapError(domain.KindMisconfigured, msg, err).
			WithRemediation("Check the container name of the Azure Blob destination.")
	}

	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return domain.WrapError(domain.KindAuthenticationFailed, msg, err).
				WithRemediation("Check the account key or connection string of the Azure Blob destination.")
		}
	}

	return domain.WrapError(domain.KindStorageFailed, msg, err)
}

func (a *AzureBlobStorage) list(ctx context.Context, namespace string, keep func(*container.BlobItem) bool) ([]string, error) {
	prefix := a.namespacePrefix(namespace)
	pager := a.client.NewListBlobsFlatPager(a.container, &azblob.ListBlobsFlatOptions{Prefix: &prefix})

	files := []string{}
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list Azure blobs: %w", err)
		}
		if page.Segment == nil {
			continue
		}
		for _, item := range page.Segment.BlobItems {
			if item == nil || item.Name == nil {
				continue
			}
			name := strings.TrimPrefix(*item.Name, prefix)
			if name != "" && !strings.Contains(name, "/") && keep(item) {
				files = append(files, name)
			}
		}
	}
	return files, nil
}

func (a *AzureBlobStorage) List(ctx context.Context, namespace string) ([]string, error) {
	return a.list(ctx, namespace, func(*container.BlobItem) bool { return true })
}

func (a *AzureBlobStorage) Delete(ctx context.Context, namespace, name string) error {
	if _, err := a.client.DeleteBlob(ctx, a.container, a.blobName(namespace, name), nil); err != nil {
		return fmt.Errorf("failed to delete from Azure: %w", err)
	}
	return nil
}

// GetOldFiles returns blobs last modified before cutoffTime.
func (a *AzureBlobStorage) GetOldFiles(ctx context.Context, namespace string, cutoffTime time.Time) ([]string, error) {
	return a.list(ctx, namespace, func(item *container.BlobItem) bool {
		return item.Properties != nil && item.Properties.LastModified != nil && item.Properties.LastModified.Before(cutoffTime)
	})
}
