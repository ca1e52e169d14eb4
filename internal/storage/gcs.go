package storage

import (
	"context"
	"fmt"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/gcsblob" // GCS driver
)

// NewGCSStore creates a lake store backed by Google Cloud Storage.
func NewGCSStore(bucketName, prefix string) (LakeStore, error) {
	ctx := context.Background()

	bucket, err := blob.OpenBucket(ctx, fmt.Sprintf("gs://%s", bucketName))
	if err != nil {
		return nil, fmt.Errorf("open GCS bucket %s: %w", bucketName, err)
	}

	return &bucketStore{
		bucket: bucket,
		scheme: "gs",
		name:   bucketName,
		prefix: prefix,
	}, nil
}
