package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	s3manager "github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/semmidev/backuppilot/internal/domain"
)

type s3API interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type s3Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error)
}

type S3Storage struct {
	client    s3API
	uploader  s3Uploader
	bucket    string
	prefix    string
	liveProbe bool
}

// NewS3 creates a new S3Storage instance using AWS SDK v2. A custom
// endpoint makes it usable with any S3 compatible service.
func NewS3(ctx context.Context, cfg *domain.ObjectStoreConfig) (*S3Storage, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		),
	)
	if err != nil {
		return nil, domain.WrapError(domain.KindMisconfigured, "failed to load AWS config", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})

	return &S3Storage{
		client:    client,
		uploader:  s3manager.NewUploader(client),
		bucket:    cfg.Bucket,
		prefix:    strings.Trim(cfg.KeyPrefix, "/"),
		liveProbe: cfg.LiveProbe,
	}, nil
}

func (s *S3Storage) Kind() domain.DestinationKind {
	return domain.KindObjectStore
}

func (s *S3Storage) LiveProbe() bool {
	return s.liveProbe
}

func (s *S3Storage) key(namespace, name string) string {
	return path.Join(s.prefix, namespace, name)
}

func (s *S3Storage) namespacePrefix(namespace string) string {
	return path.Join(s.prefix, namespace) + "/"
}

// Store uploads the payload with server side encryption.
func (s *S3Storage) Store(ctx context.Context, filename string, data []byte, namespace string) (*domain.StoredArtifact, error) {
	key := s.key(namespace, filename)

	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(s.bucket),
		Key:                  aws.String(key),
		Body:                 bytes.NewReader(data),
		ContentType:          aws.String("application/sql"),
		ServerSideEncryption: types.ServerSideEncryptionAes256,
	})
	if err != nil {
		return nil, s.classify(fmt.Sprintf("failed to upload to S3 bucket %s", s.bucket), err)
	}

	return &domain.StoredArtifact{
		Location: fmt.Sprintf("s3://%s/%s", s.bucket, key),
		Size:     int64(len(data)),
	}, nil
}

func (s *S3Storage) TestConnection(ctx context.Context) domain.ConnectionResult {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		return domain.ConnectionFailed(s.classify(fmt.Sprintf("cannot access S3 bucket %s", s.bucket), err))
	}
	return domain.ConnectionOK(fmt.Sprintf("bucket %s is reachable", s.bucket))
}

func (s *S3Storage) classify(msg string, err error) error {
	var notFound *types.NotFound
	var noBucket *types.NoSuchBucket
	if errors.As(err, &notFound) || errors.As(err, &noBucket) {
		return domain.WrapError(domain.KindMisconfigured, msg, err).
			WithRemediation("Check the bucket name and region of the S3 destination.")
	}

	var status interface{ HTTPStatusCode() int }
	if errors.As(err, &status) {
		switch status.HTTPStatusCode() {
		case http.StatusUnauthorized, http.StatusForbidden:
			return domain.WrapError(domain.KindAuthenticationFailed, msg, err).
				WithRemediation("Check the access key, secret key and bucket policy of the S3 destination.")
		}
	}

	return domain.WrapError(domain.KindStorageFailed, msg, err)
}

func (s *S3Storage) list(ctx context.Context, namespace string, keep func(types.Object) bool) ([]string, error) {
	prefix := s.namespacePrefix(namespace)
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})

	files := []string{}
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list S3 objects: %w", err)
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), prefix)
			if name != "" && !strings.Contains(name, "/") && keep(obj) {
				files = append(files, name)
			}
		}
	}
	return files, nil
}

// List returns all files in the namespace
func (s *S3Storage) List(ctx context.Context, namespace string) ([]string, error) {
	return s.list(ctx, namespace, func(types.Object) bool { return true })
}

// Delete removes a file from S3
func (s *S3Storage) Delete(ctx context.Context, namespace, name string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(namespace, name)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete from S3: %w", err)
	}

	return nil
}

// GetOldFiles returns files older than a given time
func (s *S3Storage) GetOldFiles(ctx context.Context, namespace string, cutoffTime time.Time) ([]string, error) {
	return s.list(ctx, namespace, func(obj types.Object) bool {
		return obj.LastModified != nil && obj.LastModified.Before(cutoffTime)
	})
}
