package storage

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/denisAlshanov/mediarelay/internal/config"
	"github.com/denisAlshanov/mediarelay/internal/utils"
)

// NewStorage creates the S3 archive sink, or returns nil when no bucket is
// configured.
func NewStorage(cfg *config.S3Config) (StorageInterface, error) {
	if !cfg.Enabled() {
		utils.GetLogger().Info("S3 archive disabled (no bucket configured)")
		return nil, nil
	}

	utils.GetLogger().WithFields(logrus.Fields{
		"bucket":   cfg.BucketName,
		"endpoint": cfg.EndpointURL,
		"region":   cfg.Region,
	}).Info("Creating S3 archive storage")

	storage, err := NewS3Storage(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 storage: %w", err)
	}

	return storage, nil
}
