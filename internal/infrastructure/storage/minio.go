package storage

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/url"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hszk-dev/emoteclip/internal/domain/repository"
)

const (
	// clipCacheControl is set on every upload; a clip key always maps to the same bytes.
	clipCacheControl = "public, max-age=31536000, immutable"

	codeNoSuchKey = "NoSuchKey"
)

// objectReader is the part of *minio.Object the store reads through.
type objectReader interface {
	io.ReadCloser
	Stat() (minio.ObjectInfo, error)
}

// minioClient is the subset of the MinIO API used by ClipStore.
type minioClient interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expiry time.Duration, reqParams url.Values) (*url.URL, error)
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (objectReader, error)
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
}

// sdkClient embeds *minio.Client and narrows GetObject to objectReader.
type sdkClient struct {
	*minio.Client
}

func (c sdkClient) GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (objectReader, error) {
	return c.Client.GetObject(ctx, bucketName, objectName, opts)
}

// Config holds the MinIO connection settings.
type Config struct {
	Endpoint string
	// PublicEndpoint, when set, is the host presigned URLs are signed for.
	PublicEndpoint string
	AccessKey      string
	SecretKey      string
	Bucket         string
	UseSSL         bool
	// CreateBucket makes the bucket on startup instead of failing when it is missing.
	CreateBucket bool
}

func (cfg Config) dial(endpoint string) (sdkClient, error) {
	c, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return sdkClient{}, fmt.Errorf("failed to create minio client for %s: %w", endpoint, err)
	}
	return sdkClient{Client: c}, nil
}

// ClipStore keeps converted clips in a MinIO bucket.
type ClipStore struct {
	api    minioClient
	signer minioClient
	bucket string
}

var _ repository.ObjectStorage = (*ClipStore)(nil)

// NewClipStore connects to MinIO and verifies the bucket, creating it when
// cfg.CreateBucket is set.
func NewClipStore(ctx context.Context, cfg Config) (*ClipStore, error) {
	api, err := cfg.dial(cfg.Endpoint)
	if err != nil {
		return nil, err
	}

	signer := api
	if cfg.PublicEndpoint != "" {
		if signer, err = cfg.dial(cfg.PublicEndpoint); err != nil {
			return nil, err
		}
	}

	return newClipStore(ctx, api, signer, cfg.Bucket, cfg.CreateBucket)
}

func newClipStore(ctx context.Context, api, signer minioClient, bucket string, create bool) (*ClipStore, error) {
	exists, err := api.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}
	switch {
	case exists:
	case !create:
		return nil, fmt.Errorf("%w: %s", repository.ErrBucketNotFound, bucket)
	default:
		if err := api.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", bucket, err)
		}
	}

	return &ClipStore{api: api, signer: signer, bucket: bucket}, nil
}

// GeneratePresignedDownloadURL signs a GET for key that downloads as an
// attachment named after the object.
func (s *ClipStore) GeneratePresignedDownloadURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	params := url.Values{}
	params.Set("response-content-disposition",
		mime.FormatMediaType("attachment", map[string]string{"filename": path.Base(key)}))

	u, err := s.signer.PresignedGetObject(ctx, s.bucket, key, expiry, params)
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned download URL: %w", err)
	}
	return u.String(), nil
}

func (s *ClipStore) Upload(ctx context.Context, key string, reader io.Reader, contentType string) error {
	opts := minio.PutObjectOptions{ContentType: contentType, CacheControl: clipCacheControl}
	if _, err := s.api.PutObject(ctx, s.bucket, key, reader, -1, opts); err != nil {
		return fmt.Errorf("failed to upload object: %w", err)
	}
	return nil
}

// Download opens key for reading. The caller closes the reader.
func (s *ClipStore) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.api.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object: %w", err)
	}

	// GetObject is lazy; Stat surfaces a missing key before the caller reads.
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		if isNoSuchKey(err) {
			return nil, repository.ErrObjectNotFound
		}
		return nil, fmt.Errorf("failed to stat object: %w", err)
	}
	return obj, nil
}

func (s *ClipStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.api.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	switch {
	case err == nil:
		return true, nil
	case isNoSuchKey(err):
		return false, nil
	default:
		return false, fmt.Errorf("failed to check object existence: %w", err)
	}
}

// Ping checks the bucket is still reachable.
func (s *ClipStore) Ping(ctx context.Context) error {
	if _, err := s.api.BucketExists(ctx, s.bucket); err != nil {
		return fmt.Errorf("failed to ping minio: %w", err)
	}
	return nil
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == codeNoSuchKey
}
