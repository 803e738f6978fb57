package blobstore

import (
	"context"
	"fmt"
)

// Backend selects a payload store implementation.
type Backend string

const (
	BackendFile Backend = "file"
	BackendS3   Backend = "s3"
	BackendGCS  Backend = "gcs"
)

// FactoryConfig is the union of backend configurations.
type FactoryConfig struct {
	Backend Backend
	BaseDir string // file
	Bucket  string // s3, gcs
	Region  string // s3
	Prefix  string // s3, gcs
}

// New creates the configured payload store.
func New(ctx context.Context, cfg FactoryConfig) (Store, error) {
	switch cfg.Backend {
	case BackendFile, "":
		return NewFileStore(cfg.BaseDir)
	case BackendS3:
		return NewS3Store(ctx, S3StoreConfig{
			Bucket: cfg.Bucket,
			Region: cfg.Region,
			Prefix: cfg.Prefix,
		})
	case BackendGCS:
		return newGCSStore(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown blobstore backend: %s", cfg.Backend)
	}
}
