//go:build !gcp

package blobstore

import (
	"context"
	"errors"
)

func newGCSStore(_ context.Context, _ FactoryConfig) (Store, error) {
	return nil, errors.New("gcs backend requires building with -tags gcp")
}
