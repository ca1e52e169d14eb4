// Package storage persists star-schema tables as partitioned parquet
// datasets on local disk, S3, or GCS, with full-overwrite publish semantics.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// LakeStore abstracts the object layer under a dataset root. Keys are
// slash-separated paths relative to the store prefix.
type LakeStore interface {
	// Write writes data directly to its final key.
	Write(ctx context.Context, key string, data []byte) error

	// WriteTemp writes data to a temporary key derived from key.
	// The returned temp key can be passed to Promote or Abort.
	WriteTemp(ctx context.Context, key string, data []byte) (tempKey string, err error)

	// Promote moves a temp object to its final key. For local storage this
	// is a rename; for object stores it is copy+delete.
	Promote(ctx context.Context, tempKey, finalKey string) error

	// Abort removes temporary objects without publishing.
	Abort(ctx context.Context, tempKeys []string) error

	// List returns all keys with the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes a single object. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// URI returns the canonical URI for the given key.
	// Local: file:///path, GCS: gs://bucket/path, S3: s3://bucket/path.
	URI(key string) string

	// Close releases any resources.
	Close() error
}

// Manifest describes a published dataset.
type Manifest struct {
	Dataset     string       `json:"dataset"`
	PartitionBy []string     `json:"partition_by,omitempty"`
	RowCount    int64        `json:"row_count"`
	Files       []FileInfo   `json:"files"`
	Producer    ProducerInfo `json:"producer"`
	CreatedAt   time.Time    `json:"created_at"`
}

// FileInfo describes a single parquet file within the dataset.
type FileInfo struct {
	Key      string `json:"key"`
	RowCount int64  `json:"row_count"`
	ByteSize int64  `json:"byte_size"`
	Checksum string `json:"checksum"`
}

// ProducerInfo describes the software that produced the dataset.
type ProducerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	GitSHA  string `json:"git_sha,omitempty"`
}

// Encode returns the manifest as indented JSON.
func (m *Manifest) Encode() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

// StorageConfig configures the storage backend.
type StorageConfig struct {
	Backend string // "local" | "gcs" | "s3"

	// Local filesystem
	LocalDir string

	// GCS
	GCSBucket string

	// S3 (also works for B2, R2, MinIO)
	S3Bucket   string
	S3Endpoint string
	S3Region   string

	// Common path prefix within the bucket or local dir.
	Prefix string
}

// ErrUnknownBackend is returned for an unrecognized storage backend.
var ErrUnknownBackend = errors.New("unknown storage backend")

// NewLakeStore creates a storage backend based on configuration.
func NewLakeStore(cfg StorageConfig) (LakeStore, error) {
	switch cfg.Backend {
	case "local":
		if cfg.LocalDir == "" {
			return nil, fmt.Errorf("LocalDir required for local backend")
		}
		return NewLocalStore(cfg.LocalDir, cfg.Prefix)
	case "gcs":
		if cfg.GCSBucket == "" {
			return nil, fmt.Errorf("GCSBucket required for gcs backend")
		}
		return NewGCSStore(cfg.GCSBucket, cfg.Prefix)
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("S3Bucket required for s3 backend")
		}
		return NewS3Store(cfg.S3Bucket, cfg.Prefix, cfg.S3Endpoint, cfg.S3Region)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, cfg.Backend)
	}
}
