//go:build gcp

package blobstore

import "context"

func newGCSStore(ctx context.Context, cfg FactoryConfig) (Store, error) {
	return NewGCSStore(ctx, GCSStoreConfig{Bucket: cfg.Bucket, Prefix: cfg.Prefix})
}
