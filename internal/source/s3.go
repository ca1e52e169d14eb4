package source

import (
	"context"
	"fmt"
	"net/url"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/s3blob" // S3 driver
)

// NewS3Source creates a source over S3-compatible storage. Works with AWS S3,
// Backblaze B2, Cloudflare R2, and MinIO. endpoint can be empty for AWS S3.
func NewS3Source(bucketName, prefix, endpoint, region string) (LineSource, error) {
	ctx := context.Background()

	bucketURL := fmt.Sprintf("s3://%s", bucketName)
	params := url.Values{}
	if region != "" {
		params.Set("region", region)
	}
	if endpoint != "" {
		params.Set("endpoint", endpoint)
		// Custom endpoints usually require path-style addressing.
		params.Set("s3ForcePathStyle", "true")
	}
	if len(params) > 0 {
		bucketURL = bucketURL + "?" + params.Encode()
	}

	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("open S3 bucket %s: %w", bucketName, err)
	}

	return newBucketSource(bucket, "s3", bucketName, prefix), nil
}
