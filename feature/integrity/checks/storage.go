package checks

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"card-inventory/core/storage"

	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"
)

// probeObject is written and removed again to prove the bucket is writable.
const probeObject = ".integrity-probe"

// StorageReport is the result of a bucket check.
type StorageReport struct {
	Bucket   string `json:"bucket"`
	Exists   bool   `json:"exists"`
	Writable bool   `json:"writable"`
	Fixed    bool   `json:"fixed,omitempty"`
	Error    string `json:"error,omitempty"`
}

// CheckStorage verifies the bucket exists and accepts writes under prefix. With
// fix set, a missing bucket is created first.
func CheckStorage(ctx context.Context, client storage.Client, bucket, prefix string, fix bool, logger *zap.Logger) (*StorageReport, error) {
	if client == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	report := &StorageReport{Bucket: bucket}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists && fix {
		logger.Info("Creating missing bucket", zap.String("bucket", bucket))
		if err := storage.EnsureBucket(ctx, client, bucket); err != nil {
			return nil, err
		}
		exists = true
		report.Fixed = true
	}
	report.Exists = exists
	if !exists {
		return report, nil
	}

	key := path.Join(prefix, probeObject)
	if _, err := client.PutObject(ctx, bucket, key, bytes.NewReader(nil), 0, minio.PutObjectOptions{}); err != nil {
		report.Error = err.Error()
		return report, nil
	}
	report.Writable = true
	if err := client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{}); err != nil {
		logger.Warn("Failed to remove probe object", zap.String("key", key), zap.Error(err))
	}
	return report, nil
}
