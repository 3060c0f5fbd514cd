package storage

import (
	"strings"

	"github.com/timmy/lenscat/internal/config"
)

// NewStorage creates an ObjectStorage instance based on the configuration.
// Parameters:
//   - cfg: storage section of the service configuration.
// Returns:
//   - ObjectStorage: initialized storage client, nil when storage is disabled.
//   - error: non-nil if the storage client cannot be created.
func NewStorage(cfg *config.StorageConfig) (ObjectStorage, error) {
	if !cfg.Enabled || cfg.Bucket == "" {
		return nil, nil
	}

	storeType := StorageType(cfg.Type)
	// Auto-detect storage type if not specified
	if storeType == "" {
		storeType = detectStorageType(cfg.Endpoint)
	}

	return NewS3Storage(&S3Config{
		Type:      storeType,
		Endpoint:  cfg.Endpoint,
		AccessKey: cfg.AccessKey,
		SecretKey: cfg.SecretKey,
		UseSSL:    cfg.UseSSL,
		Bucket:    cfg.Bucket,
		Region:    cfg.Region,
	})
}

// detectStorageType attempts to detect the storage type from the endpoint
func detectStorageType(endpoint string) StorageType {
	endpoint = strings.ToLower(endpoint)

	switch {
	case endpoint == "", strings.Contains(endpoint, "amazonaws.com"):
		return StorageTypeS3
	case strings.Contains(endpoint, "r2.cloudflarestorage.com"):
		return StorageTypeR2
	default:
		return StorageTypeS3Compatible
	}
}
