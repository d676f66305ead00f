package storage

import (
	"context"
	"io"
	"time"
)

// PartSize is the buffer used for each multipart chunk. S3 requires at
// least 5 MiB for every part except the last.
const PartSize = 8 * 1024 * 1024

// StorageInterface defines the archive sink used by the archiver
type StorageInterface interface {
	BucketName() string
	UploadStream(ctx context.Context, key string, data io.Reader, contentType string, metadata map[string]string) (int64, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	GeneratePresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)
	Ping(ctx context.Context) error
}

// CompletedPart represents a completed multipart upload part
type CompletedPart struct {
	ETag       *string
	PartNumber *int32
}
