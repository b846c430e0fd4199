package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type DestinationKind string

const (
	KindLocal       DestinationKind = "LOCAL"
	KindObjectStore DestinationKind = "S3"
	KindSecureCopy  DestinationKind = "SFTP"
	KindCloudDrive  DestinationKind = "GOOGLE_DRIVE"
	KindBlobStore   DestinationKind = "AZURE_BLOB"
)

func ParseDestinationKind(s string) (DestinationKind, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LOCAL":
		return KindLocal, nil
	case "S3", "OBJECT_STORE":
		return KindObjectStore, nil
	case "SFTP", "SCP", "SECURE_COPY":
		return KindSecureCopy, nil
	case "GOOGLE_DRIVE", "GDRIVE":
		return KindCloudDrive, nil
	case "AZURE_BLOB", "AZURE":
		return KindBlobStore, nil
	}
	return "", Errorf(KindUnsupportedKind, "unsupported destination type %q", s)
}

type LocalConfig struct {
	Path string `json:"path"`
}

type ObjectStoreConfig struct {
	Region          string `json:"region"`
	Endpoint        string `json:"endpoint,omitempty"`
	Bucket          string `json:"bucket"`
	AccessKeyID     string `json:"accessKeyId"`
	SecretAccessKey string `json:"secretAccessKey"`
	KeyPrefix       string `json:"keyPrefix,omitempty"`
	ForcePathStyle  bool   `json:"forcePathStyle,omitempty"`
	LiveProbe       bool   `json:"liveProbe,omitempty"`
}

type SecureCopyConfig struct {
	Host       string `json:"host"`
	Port       int    `json:"port,omitempty"`
	Username   string `json:"username"`
	Password   string `json:"password,omitempty"`
	RemotePath string `json:"remotePath,omitempty"`
}

type CloudDriveConfig struct {
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
	RefreshToken string `json:"refreshToken"`
	AccessToken  string `json:"accessToken,omitempty"`
	FolderID     string `json:"folderId,omitempty"`
	LiveProbe    bool   `json:"liveProbe,omitempty"`
}

// BlobStoreConfig addresses an Azure Blob Storage container. Either a
// connection string or an account name and key is required.
type BlobStoreConfig struct {
	ConnectionString string `json:"connectionString,omitempty"`
	AccountName      string `json:"accountName,omitempty"`
	AccountKey       string `json:"accountKey,omitempty"`
	ServiceURL       string `json:"serviceUrl,omitempty"`
	Container        string `json:"containerName"`
	BlobPrefix       string `json:"blobPrefix,omitempty"`
	LiveProbe        bool   `json:"liveProbe,omitempty"`
}

// DestinationConfig is a closed union: exactly the variant matching the
// destination kind is set.
type DestinationConfig struct {
	Local       *LocalConfig       `json:"local,omitempty"`
	ObjectStore *ObjectStoreConfig `json:"s3,omitempty"`
	SecureCopy  *SecureCopyConfig  `json:"sftp,omitempty"`
	CloudDrive  *CloudDriveConfig  `json:"googleDrive,omitempty"`
	BlobStore   *BlobStoreConfig   `json:"azureBlob,omitempty"`
}

func (c DestinationConfig) variants() int {
	n := 0
	if c.Local != nil {
		n++
	}
	if c.ObjectStore != nil {
		n++
	}
	if c.SecureCopy != nil {
		n++
	}
	if c.CloudDrive != nil {
		n++
	}
	if c.BlobStore != nil {
		n++
	}
	return n
}

func (c DestinationConfig) Marshal() (string, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to marshal destination config: %w", err)
	}
	return string(b), nil
}

func UnmarshalDestinationConfig(raw string) (DestinationConfig, error) {
	var c DestinationConfig
	if strings.TrimSpace(raw) == "" {
		return c, nil
	}
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return c, WrapError(KindMisconfigured, "malformed destination config", err)
	}
	return c, nil
}

type Destination struct {
	ID     uint
	Name   string
	Kind   DestinationKind
	Config DestinationConfig
}

// Validate checks that the config variant matches the kind and carries the
// fields the adapter needs.
func (d *Destination) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return NewError(KindMisconfigured, "destination name is required")
	}
	if d.Config.variants() != 1 {
		return Errorf(KindMisconfigured, "destination %q must carry exactly one %s config", d.Name, d.Kind)
	}

	switch d.Kind {
	case KindLocal:
		if d.Config.Local == nil {
			return Errorf(KindMisconfigured, "destination %q: local config missing", d.Name)
		}
		if strings.TrimSpace(d.Config.Local.Path) == "" {
			return Errorf(KindMisconfigured, "destination %q: local path is required", d.Name)
		}
	case KindObjectStore:
		c := d.Config.ObjectStore
		if c == nil {
			return Errorf(KindMisconfigured, "destination %q: s3 config missing", d.Name)
		}
		if c.Bucket == "" || c.AccessKeyID == "" || c.SecretAccessKey == "" {
			return Errorf(KindMisconfigured, "destination %q: S3 credentials or bucket name not configured", d.Name)
		}
	case KindSecureCopy:
		c := d.Config.SecureCopy
		if c == nil {
			return Errorf(KindMisconfigured, "destination %q: sftp config missing", d.Name)
		}
		if c.Host == "" || c.Username == "" {
			return Errorf(KindMisconfigured, "destination %q: SFTP host and username not configured", d.Name)
		}
		if c.Port < 0 || c.Port > 65535 {
			return Errorf(KindMisconfigured, "destination %q: invalid port %d", d.Name, c.Port)
		}
	case KindCloudDrive:
		c := d.Config.CloudDrive
		if c == nil {
			return Errorf(KindMisconfigured, "destination %q: google drive config missing", d.Name)
		}
		if c.RefreshToken == "" && c.AccessToken == "" {
			return Errorf(KindMisconfigured, "destination %q: Google Drive not authenticated", d.Name).
				WithRemediation("Run `pilot auth gdrive` and store the refresh token in the destination config.")
		}
	case KindBlobStore:
		c := d.Config.BlobStore
		if c == nil {
			return Errorf(KindMisconfigured, "destination %q: azure blob config missing", d.Name)
		}
		if c.Container == "" || (c.ConnectionString == "" && (c.AccountName == "" || c.AccountKey == "")) {
			return Errorf(KindMisconfigured, "destination %q: Azure Blob Storage connection string or container name not configured", d.Name).
				WithRemediation("Set connection_string, or account_name and account_key, plus container on the destination.")
		}
	default:
		return Errorf(KindUnsupportedKind, "unsupported destination type %q", d.Kind)
	}
	return nil
}

// StoredArtifact is what a destination reports after a successful write.
type StoredArtifact struct {
	Location string
	Size     int64
}

// ConnectionResult is the outcome of a destination connectivity probe.
type ConnectionResult struct {
	Success bool
	Detail  string
	Err     error
}

func ConnectionOK(detail string) ConnectionResult {
	return ConnectionResult{Success: true, Detail: detail}
}

func ConnectionFailed(err error) ConnectionResult {
	return ConnectionResult{Success: false, Err: err}
}

type Storage interface {
	Store(ctx context.Context, filename string, data []byte, namespace string) (*StoredArtifact, error)
	TestConnection(ctx context.Context) ConnectionResult
	Kind() DestinationKind
}

// Pruner is implemented by destinations that can enumerate and remove old
// artifacts inside a namespace.
type Pruner interface {
	List(ctx context.Context, namespace string) ([]string, error)
	Delete(ctx context.Context, namespace, name string) error
	GetOldFiles(ctx context.Context, namespace string, cutoffTime time.Time) ([]string, error)
}

// LiveProber reports whether TestConnection makes a live authenticated call.
// Destinations that return false have their health inferred from job history.
type LiveProber interface {
	LiveProbe() bool
}
