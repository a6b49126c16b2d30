package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/DINO060/mediasink/pkg/logger"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var log = logger.Get("ObjectStore")

type (
	Config struct {
		Endpoint  string `yaml:"endpoint" env:"STORAGE_ENDPOINT" env-required:"true"`
		AccessKey string `yaml:"access_key" env:"STORAGE_ACCESS_KEY" env-required:"true"`
		SecretKey string `yaml:"secret_key" env:"STORAGE_SECRET_KEY" env-required:"true"`
		Bucket    string `yaml:"bucket" env:"STORAGE_BUCKET" env-required:"true"`
		UseSSL    bool   `yaml:"use_ssl" env:"STORAGE_USE_SSL" env-default:"true"`

		// CDNBaseURL, when set, is prefixed to object keys to form
		// public URLs instead of presigning against the store.
		CDNBaseURL string `yaml:"cdn_base_url" env:"STORAGE_CDN_BASE_URL"`

		// RetentionPeriod bounds how long stored artifacts are kept
		// before the maintenance sweep removes them. Zero disables
		// cleanup entirely.
		RetentionPeriod time.Duration `yaml:"retention_period" env:"STORAGE_RETENTION_PERIOD" env-default:"720h"`

		// CleanupInterval controls how often the maintenance sweep
		// runs.
		CleanupInterval time.Duration `yaml:"cleanup_interval" env:"STORAGE_CLEANUP_INTERVAL" env-default:"1h"`
	}

	minioStore struct {
		client *minio.Client
		config Config
		now    func() time.Time
	}
)

var _ Store = (*minioStore)(nil)

// NewMinioStore connects to the configured S3-compatible endpoint and
// verifies the bucket exists. A missing bucket is a fatal
// configuration error - the store refuses to construct rather than
// failing per-request later.
func NewMinioStore(ctx context.Context, config Config) (*minioStore, error) {
	client, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKey, config.SecretKey, ""),
		Secure: config.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to construct object store client: %w", err)
	}

	exists, err := client.BucketExists(ctx, config.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket '%s': %w", config.Bucket, err)
	}
	if !exists {
		return nil, fmt.Errorf("bucket '%s' does not exist - refusing to start", config.Bucket)
	}

	log.Emit(logger.SUCCESS, "Object store connected (bucket '%s')\n", config.Bucket)
	return &minioStore{client: client, config: config, now: time.Now}, nil
}

func (store *minioStore) Upload(ctx context.Context, localPath string, mediaKind string) (string, error) {
	contentHash, err := HashFile(localPath)
	if err != nil {
		return "", err
	}

	key := ObjectKey(mediaKind, store.now(), contentHash)
	if _, err := store.client.FPutObject(ctx, store.config.Bucket, key, localPath, minio.PutObjectOptions{}); err != nil {
		return "", fmt.Errorf("failed to upload '%s' as '%s': %w", localPath, key, err)
	}

	log.Emit(logger.NEW, "Uploaded '%s' as '%s'\n", filepath.Base(localPath), key)
	return key, nil
}

func (store *minioStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := store.client.StatObject(ctx, store.config.Bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat object '%s': %w", key, err)
	}

	return true, nil
}

func (store *minioStore) Retrieve(ctx context.Context, key string, destDir string) (string, error) {
	exists, err := store.Exists(ctx, key)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", fmt.Errorf("object '%s' does not exist", key)
	}

	localPath := filepath.Join(destDir, filepath.Base(key))
	if err := store.client.FGetObject(ctx, store.config.Bucket, key, localPath, minio.GetObjectOptions{}); err != nil {
		return "", fmt.Errorf("failed to retrieve object '%s': %w", key, err)
	}

	return localPath, nil
}

func (store *minioStore) Delete(ctx context.Context, key string) (bool, error) {
	exists, err := store.Exists(ctx, key)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, nil
	}

	if err := store.client.RemoveObject(ctx, store.config.Bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return false, fmt.Errorf("failed to delete object '%s': %w", key, err)
	}

	return true, nil
}

func (store *minioStore) TemporaryAccessURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	presigned, err := store.client.PresignedGetObject(ctx, store.config.Bucket, key, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("failed to presign object '%s': %w", key, err)
	}

	return presigned.String(), nil
}

func (store *minioStore) PublicURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if store.config.CDNBaseURL != "" {
		return strings.TrimSuffix(store.config.CDNBaseURL, "/") + "/" + key, nil
	}

	return store.TemporaryAccessURL(ctx, key, expiry)
}

// CleanupExpired removes objects last modified before the cutoff.
// Intended to be driven by a periodic maintenance job; returns the
// number of objects removed.
func (store *minioStore) CleanupExpired(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := store.now().Add(-olderThan)
	removed := 0

	for object := range store.client.ListObjects(ctx, store.config.Bucket, minio.ListObjectsOptions{Recursive: true}) {
		if object.Err != nil {
			return removed, fmt.Errorf("object listing failed: %w", object.Err)
		}
		if !object.LastModified.Before(cutoff) {
			continue
		}

		if err := store.client.RemoveObject(ctx, store.config.Bucket, object.Key, minio.RemoveObjectOptions{}); err != nil {
			log.Emit(logger.WARNING, "Failed to remove expired object '%s': %v\n", object.Key, err)
			continue
		}
		removed++
	}

	if removed > 0 {
		log.Emit(logger.REMOVE, "Cleaned up %d expired objects\n", removed)
	}
	return removed, nil
}

func isNotFound(err error) bool {
	var response minio.ErrorResponse
	if errors.As(err, &response) {
		return response.Code == "NoSuchKey" || response.Code == "NotFound"
	}

	return false
}
