// Package storage mirrors finished bundles to MinIO object storage. The
// local workspace stays the source of truth; the mirror exists so bundles
// survive workspace cleanup and can be served from a CDN-fronted bucket.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"stemdesk/config"
	"stemdesk/logger"
)

// BundleMirror copies bundle archives into one MinIO bucket.
type BundleMirror struct {
	client *minio.Client
	bucket string
}

// NewBundleMirror connects to MinIO and ensures the configured bucket
// exists.
func NewBundleMirror(cfg *config.Config) (*BundleMirror, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
		Region: cfg.MinioRegion,
	})
	if err != nil {
		return nil, fmt.Errorf("create MinIO client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.MinioBucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.MinioBucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.MinioBucket, minio.MakeBucketOptions{Region: cfg.MinioRegion}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.MinioBucket, err)
		}
		logger.Info("created bundle mirror bucket", logger.String("bucket", cfg.MinioBucket))
	}

	return &BundleMirror{client: client, bucket: cfg.MinioBucket}, nil
}

// MirrorBundle uploads a finished local bundle under objectName.
func (m *BundleMirror) MirrorBundle(ctx context.Context, localPath, objectName string) error {
	info, err := m.client.FPutObject(ctx, m.bucket, objectName, localPath, minio.PutObjectOptions{
		ContentType: "application/zip",
	})
	if err != nil {
		return fmt.Errorf("upload bundle %s: %w", objectName, err)
	}
	logger.Info("bundle mirrored",
		logger.String("object", objectName),
		logger.Int64("size", info.Size))
	return nil
}
