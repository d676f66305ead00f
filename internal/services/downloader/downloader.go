// Package downloader archives resolved media into object storage by pulling
// it through the streaming relay.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/denisAlshanov/mediarelay/internal/config"
	"github.com/denisAlshanov/mediarelay/internal/models"
	"github.com/denisAlshanov/mediarelay/internal/services/storage"
	"github.com/denisAlshanov/mediarelay/internal/services/streamer"
	"github.com/denisAlshanov/mediarelay/internal/utils"
)

// StreamOpener is satisfied by *streamer.Streamer.
type StreamOpener interface {
	Open(ctx context.Context, target string) (*streamer.Stream, error)
}

type Archiver struct {
	streams   StreamOpener
	storage   storage.StorageInterface
	config    *config.S3Config
	semaphore chan struct{}
	now       func() time.Time
}

// NewArchiver returns an archiver. storage may be nil, in which case every
// call fails with StorageUnavailable.
func NewArchiver(streams StreamOpener, store storage.StorageInterface, cfg *config.S3Config) *Archiver {
	limit := cfg.MaxConcurrent
	if limit <= 0 {
		limit = 4
	}
	return &Archiver{
		streams:   streams,
		storage:   store,
		config:    cfg,
		semaphore: make(chan struct{}, limit),
		now:       time.Now,
	}
}

// Enabled reports whether an archive sink is configured.
func (a *Archiver) Enabled() bool {
	return a.storage != nil
}

// Archive streams req.Target into the bucket and returns a presigned link.
func (a *Archiver) Archive(ctx context.Context, req models.ArchiveRequest) (*models.ArchiveResponse, error) {
	if a.storage == nil {
		return nil, utils.NewStorageUnavailableError()
	}

	// Acquire semaphore
	select {
	case a.semaphore <- struct{}{}:
		defer func() { <-a.semaphore }()
	case <-ctx.Done():
		return nil, utils.NewTimeoutError("waiting for an archive slot")
	}

	stream, err := a.streams.Open(ctx, req.Target)
	if err != nil {
		var blocked *streamer.BlockedError
		if errors.As(err, &blocked) {
			return nil, utils.NewUpstreamBlockedError(blocked.LastStatus, len(blocked.Attempts))
		}
		return nil, utils.AsAppError(err, "fetching media for archive")
	}
	defer stream.Close()

	contentType := stream.ContentType
	ext := utils.ExtensionFor(contentType, req.Target)
	if contentType == "" || strings.HasPrefix(contentType, "application/octet-stream") {
		contentType = utils.ContentTypeForExt(ext)
	}

	key := a.objectKey(req.Title, contentType, req.Target)
	metadata := map[string]string{
		"source-url": req.Target,
		"identity":   stream.Identity.Name,
	}
	if req.Title != "" {
		// header values must be ASCII
		metadata["title"] = url.QueryEscape(utils.SanitizeFileName(req.Title))
	}
	if req.Size != nil {
		metadata["declared-size"] = strconv.FormatUint(*req.Size, 10)
	}

	utils.LogInfo(ctx, "Archiving media", logrus.Fields{
		"bucket":         a.storage.BucketName(),
		"key":            key,
		"content_type":   contentType,
		"content_length": stream.ContentLength,
		"identity":       stream.Identity.Name,
	})

	written, err := a.storage.UploadStream(ctx, key, stream, contentType, metadata)
	if err != nil {
		utils.LogError(ctx, "Archive upload failed", err, logrus.Fields{"key": key, "bytes": written})
		return nil, utils.AsAppError(err, "uploading media to archive")
	}
	if stream.ContentLength > 0 && written != stream.ContentLength {
		_ = a.storage.Delete(context.WithoutCancel(ctx), key)
		return nil, utils.AsAppError(fmt.Errorf("short upstream body: got %d of %d bytes", written, stream.ContentLength), "archiving media")
	}

	stored, err := a.storage.Exists(ctx, key)
	if err != nil || !stored {
		utils.LogError(ctx, "Archived object is not visible in the bucket", err, logrus.Fields{
			"bucket": a.storage.BucketName(),
			"key":    key,
		})
		return nil, utils.NewInternalError()
	}

	expiry := a.config.PresignExpiry
	if expiry <= 0 {
		expiry = time.Hour
	}
	link, err := a.storage.GeneratePresignedURL(ctx, key, expiry)
	if err != nil {
		utils.LogError(ctx, "Failed to presign archive link", err, logrus.Fields{"key": key})
		return nil, utils.NewInternalError()
	}

	utils.LogInfo(ctx, "Media archived", logrus.Fields{"bucket": a.storage.BucketName(), "key": key, "bytes": written})

	return &models.ArchiveResponse{
		Bucket:    a.storage.BucketName(),
		Key:       key,
		Bytes:     written,
		URL:       link,
		ExpiresAt: a.now().Add(expiry),
	}, nil
}

// objectKey lays archives out as <prefix>/<yyyy>/<mm>/<dd>/<uuid>-<name>.<ext>.
func (a *Archiver) objectKey(title, contentType, target string) string {
	now := a.now().UTC()
	name := strings.ReplaceAll(utils.AttachmentFileName(title, contentType, target), " ", "_")
	return path.Join(
		strings.Trim(a.config.KeyPrefix, "/"),
		now.Format("2006"),
		now.Format("01"),
		now.Format("02"),
		uuid.New().String()+"-"+name,
	)
}
