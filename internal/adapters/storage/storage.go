// Package storage is the MinIO adapter for damage photos. Clients upload
// photos through presigned URLs; the analysis engine reads them back by
// object key.
package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"garagecall_backend/platform/apperr"
	"garagecall_backend/platform/config"
)

const (
	// PresignedURLTTL is the expiration time for presigned upload URLs.
	PresignedURLTTL = 15 * time.Minute

	maxPhotoSize = 10 << 20 // 10 MiB
)

var allowedContentTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/heic": true,
}

// PresignedURL is an upload grant for one photo.
type PresignedURL struct {
	URL       string    `json:"url"`
	FileKey   string    `json:"fileKey"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// PhotoStore stores and retrieves damage photos in a MinIO bucket.
type PhotoStore struct {
	client *minio.Client
	bucket string
}

// NewPhotoStore creates a PhotoStore from configuration. Returns an error
// when MinIO is not configured; callers treat photo storage as optional.
func NewPhotoStore(cfg config.StorageConfig) (*PhotoStore, error) {
	if !cfg.IsMinIOEnabled() {
		return nil, fmt.Errorf("MinIO is not configured")
	}

	client, err := minio.New(cfg.GetMinIOEndpoint(), &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.GetMinIOAccessKey(), cfg.GetMinIOSecretKey(), ""),
		Secure: cfg.GetMinIOUseSSL(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	return &PhotoStore{
		client: client,
		bucket: cfg.GetMinioBucketDamagePhotos(),
	}, nil
}

// EnsureBucketExists creates the photo bucket if it doesn't exist.
func (s *PhotoStore) EnsureBucketExists(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", s.bucket, err)
		}
	}
	return nil
}

// GenerateUploadURL creates a presigned PUT URL for one damage photo.
func (s *PhotoStore) GenerateUploadURL(ctx context.Context, fileName, contentType string, sizeBytes int64) (*PresignedURL, error) {
	if !allowedContentTypes[strings.ToLower(contentType)] {
		return nil, apperr.Validation(fmt.Sprintf("content type %s is not allowed for damage photos", contentType))
	}
	if sizeBytes <= 0 || sizeBytes > maxPhotoSize {
		return nil, apperr.Validation(fmt.Sprintf("photo size must be between 1 byte and %d bytes", maxPhotoSize))
	}

	ext := path.Ext(fileName)
	baseName := strings.TrimSuffix(fileName, ext)
	uniqueFileName := fmt.Sprintf("%s_%s%s", baseName, uuid.New().String()[:8], ext)
	fileKey := filepath.ToSlash(filepath.Join("damage-photos", uniqueFileName))

	presignedURL, err := s.client.PresignedPutObject(ctx, s.bucket, fileKey, PresignedURLTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to generate presigned upload URL: %w", err)
	}

	return &PresignedURL{
		URL:       presignedURL.String(),
		FileKey:   fileKey,
		ExpiresAt: time.Now().Add(PresignedURLTTL),
	}, nil
}

// Fetch reads one photo by object key and returns its bytes and content
// type. Implements the analysis engine's PhotoFetcher.
func (s *PhotoStore) Fetch(ctx context.Context, key string) ([]byte, string, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, "", fmt.Errorf("failed to open photo %s: %w", key, err)
	}
	defer obj.Close()

	stat, err := obj.Stat()
	if err != nil {
		return nil, "", fmt.Errorf("failed to stat photo %s: %w", key, err)
	}
	if stat.Size > maxPhotoSize {
		return nil, "", fmt.Errorf("photo %s exceeds size limit", key)
	}

	data, err := io.ReadAll(io.LimitReader(obj, maxPhotoSize))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read photo %s: %w", key, err)
	}

	contentType := stat.ContentType
	if contentType == "" {
		contentType = "image/jpeg"
	}
	return data, contentType, nil
}
