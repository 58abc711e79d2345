// Package archive optionally copies a release's raw downloaded archives to
// MinIO-compatible cold storage before the pipeline's cleanup step deletes
// them from local disk.
package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/vision-digital/cnpj-ingestd/internal/config"
	"github.com/vision-digital/cnpj-ingestd/internal/logger"
)

// Archiver uploads raw release files to a bucket, keyed by
// cnpj/<release>/<filename>.
type Archiver struct {
	client *minio.Client
	bucket string
}

// New builds an Archiver from the resolved archive configuration, or returns
// nil, nil if archiving is disabled. Ensures the target bucket exists.
func New(ctx context.Context, cfg config.ArchiveConfig) (*Archiver, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create archive storage client: %v", err)
	}

	a := &Archiver{client: client, bucket: cfg.Bucket}
	if err := a.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Archiver) ensureBucket(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("failed to check archive bucket existence: %v", err)
	}
	if !exists {
		if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create archive bucket: %v", err)
		}
	}
	return nil
}

// key builds the archive object key for one release file: cnpj/<release>/<filename>.
func key(release, filename string) string {
	return fmt.Sprintf("cnpj/%s/%s", release, filename)
}

// UploadRelease uploads every local file path to the bucket under the
// release's key prefix. Safe to call on a nil *Archiver: it's a no-op, so
// callers don't need to branch on whether archiving is enabled.
func (a *Archiver) UploadRelease(ctx context.Context, release string, paths []string) error {
	if a == nil {
		return nil
	}
	for _, path := range paths {
		if err := a.uploadFile(ctx, release, path); err != nil {
			return err
		}
	}
	return nil
}

func (a *Archiver) uploadFile(ctx context.Context, release, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat %s for archiving: %v", path, err)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s for archiving: %v", path, err)
	}
	defer f.Close()

	objectKey := key(release, filepath.Base(path))
	_, err = a.client.PutObject(ctx, a.bucket, objectKey, f, info.Size(), minio.PutObjectOptions{
		ContentType: "application/zip",
	})
	if err != nil {
		return fmt.Errorf("failed to archive %s: %v", objectKey, err)
	}
	logger.Logger.Info().
		Str("release", release).
		Str("key", objectKey).
		Int64("bytes", info.Size()).
		Msg("archived raw file to cold storage")
	return nil
}
