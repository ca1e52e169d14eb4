package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"
)

// bucketStore implements LakeStore over a gocloud.dev bucket. The GCS and S3
// stores share this implementation; only bucket opening differs.
type bucketStore struct {
	bucket *blob.Bucket
	scheme string
	name   string
	prefix string
}

// Write writes data directly to its final key.
func (s *bucketStore) Write(ctx context.Context, key string, data []byte) error {
	return s.writeObject(ctx, s.prefix+key, data)
}

// WriteTemp writes data to a temporary key derived from key.
func (s *bucketStore) WriteTemp(ctx context.Context, key string, data []byte) (string, error) {
	tempKey := key + ".tmp." + uuid.New().String()
	if err := s.writeObject(ctx, s.prefix+tempKey, data); err != nil {
		return "", err
	}
	return tempKey, nil
}

// Promote copies a temp object to its final key and deletes the temp.
func (s *bucketStore) Promote(ctx context.Context, tempKey, finalKey string) error {
	src := s.prefix + tempKey
	dst := s.prefix + finalKey

	r, err := s.bucket.NewReader(ctx, src, nil)
	if err != nil {
		return fmt.Errorf("open source %s: %w", src, err)
	}
	defer r.Close()

	w, err := s.bucket.NewWriter(ctx, dst, nil)
	if err != nil {
		return fmt.Errorf("create destination %s: %w", dst, err)
	}
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return fmt.Errorf("copy to %s: %w", dst, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close writer for %s: %w", dst, err)
	}

	s.bucket.Delete(ctx, src) // ignore errors; temp cleanup is best effort
	return nil
}

// Abort removes temporary objects without publishing.
func (s *bucketStore) Abort(ctx context.Context, tempKeys []string) error {
	var lastErr error
	for _, key := range tempKeys {
		if err := s.bucket.Delete(ctx, s.prefix+key); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// List returns all keys with the given prefix.
func (s *bucketStore) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := s.bucket.List(&blob.ListOptions{Prefix: s.prefix + prefix})
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, err)
		}
		if obj.IsDir {
			continue
		}
		keys = append(keys, obj.Key[len(s.prefix):])
	}
	return keys, nil
}

// Delete removes a single object.
func (s *bucketStore) Delete(ctx context.Context, key string) error {
	err := s.bucket.Delete(ctx, s.prefix+key)
	if err != nil && gcerrors.Code(err) != gcerrors.NotFound {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// URI returns the canonical URI for the given key.
func (s *bucketStore) URI(key string) string {
	return fmt.Sprintf("%s://%s/%s%s", s.scheme, s.name, s.prefix, key)
}

// Close releases the bucket connection.
func (s *bucketStore) Close() error {
	if s.bucket != nil {
		return s.bucket.Close()
	}
	return nil
}

func (s *bucketStore) writeObject(ctx context.Context, key string, data []byte) error {
	w, err := s.bucket.NewWriter(ctx, key, nil)
	if err != nil {
		return fmt.Errorf("create writer for %s: %w", key, err)
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("write data to %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close writer for %s: %w", key, err)
	}
	return nil
}
