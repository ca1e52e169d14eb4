package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"gocloud.dev/blob"
)

// bucketSource streams NDJSON lines from an object-storage bucket via
// gocloud.dev. Both the S3 and GCS sources share this implementation; only
// bucket opening differs.
type bucketSource struct {
	bucket *blob.Bucket
	scheme string
	name   string
	prefix string
	log    *slog.Logger
}

func newBucketSource(bucket *blob.Bucket, scheme, name, prefix string) *bucketSource {
	return &bucketSource{
		bucket: bucket,
		scheme: scheme,
		name:   name,
		prefix: prefix,
		log:    slog.With("component", "source", "backend", scheme),
	}
}

// Stream implements LineSource.Stream for object storage.
func (s *bucketSource) Stream(ctx context.Context) (<-chan Line, <-chan error) {
	lineCh := make(chan Line, 256)
	errCh := make(chan error, 1)

	go func() {
		defer close(lineCh)
		defer close(errCh)

		iter := s.bucket.List(&blob.ListOptions{Prefix: s.prefix})
		count := 0
		for {
			obj, err := iter.Next(ctx)
			if err == io.EOF {
				break
			}
			if err != nil {
				errCh <- fmt.Errorf("list %s: %w", s.uri(s.prefix), err)
				return
			}
			if obj.IsDir || !IsDataFile(obj.Key) {
				continue
			}

			count++
			if err := s.streamObject(ctx, obj.Key, lineCh); err != nil {
				errCh <- err
				return
			}
		}

		s.log.Info("stream complete", "prefix", s.prefix, "objects", count)
	}()

	return lineCh, errCh
}

// Close releases the bucket connection.
func (s *bucketSource) Close() error {
	if s.bucket != nil {
		return s.bucket.Close()
	}
	return nil
}

func (s *bucketSource) streamObject(ctx context.Context, key string, out chan<- Line) error {
	r, err := s.bucket.NewReader(ctx, key, nil)
	if err != nil {
		return fmt.Errorf("open %s: %w", s.uri(key), err)
	}
	defer r.Close()

	dr, closer, err := OpenReader(key, r)
	if err != nil {
		return err
	}
	defer closer.Close()

	return streamLines(ctx, s.uri(key), dr, out)
}

func (s *bucketSource) uri(key string) string {
	return fmt.Sprintf("%s://%s/%s", s.scheme, s.name, key)
}
