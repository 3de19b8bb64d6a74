// Package artifact mirrors completed structure files to object storage.
// Mirroring is off the correctness path: the local output dir remains the
// artifact source served over HTTP.
package artifact

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// MinIOSink uploads structure files under <bucket>/<jobID>/<filename>.
type MinIOSink struct {
	client *minio.Client
	bucket string
	logger *slog.Logger
}

func NewMinIOSink(cfg MinIOConfig, logger *slog.Logger) (*MinIOSink, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	if cfg.Bucket == "" {
		cfg.Bucket = "tenbio-structures"
	}
	return &MinIOSink{client: client, bucket: cfg.Bucket, logger: logger}, nil
}

func (s *MinIOSink) Store(ctx context.Context, jobID, structurePath string) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("bucket check: %w", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("make bucket: %w", err)
		}
	}

	objectName := jobID + "/" + filepath.Base(structurePath)
	contentType := "chemical/x-mmcif"
	if filepath.Ext(structurePath) == ".pdb" {
		contentType = "chemical/x-pdb"
	}
	if _, err := s.client.FPutObject(ctx, s.bucket, objectName, structurePath,
		minio.PutObjectOptions{ContentType: contentType}); err != nil {
		return fmt.Errorf("upload %s: %w", objectName, err)
	}
	s.logger.Info("structure mirrored", "job_id", jobID, "bucket", s.bucket, "object", objectName)
	return nil
}
