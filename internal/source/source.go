// Package source reads newline-delimited JSON event files from local disk or
// object storage and streams their lines to the decode stage.
package source

import (
	"context"
	"errors"
)

// Line is a single NDJSON line together with its origin, for error reporting.
type Line struct {
	Path   string
	Number int // 1-based line number within Path
	Data   []byte
}

// LineSource streams raw NDJSON lines from every data file under a prefix.
// The error channel carries at most one terminal error; both channels are
// closed when the stream ends.
type LineSource interface {
	Stream(ctx context.Context) (<-chan Line, <-chan error)
	Close() error
}

// Config selects and configures a source backend.
type Config struct {
	Backend string // "local" | "s3" | "gcs"

	// Local filesystem
	LocalDir string

	// Object storage
	Bucket     string
	S3Endpoint string // custom endpoint for B2/MinIO/R2
	S3Region   string

	// Prefix narrows the stream to one input collection,
	// e.g. "song_data/" or "log_data/".
	Prefix string
}

// ErrInvalidBackend is returned for an unknown source backend.
var ErrInvalidBackend = errors.New("invalid source backend")

// New constructs a line source based on the configured backend.
func New(cfg Config) (LineSource, error) {
	switch cfg.Backend {
	case "local":
		return NewLocalSource(cfg.LocalDir, cfg.Prefix)
	case "s3":
		return NewS3Source(cfg.Bucket, cfg.Prefix, cfg.S3Endpoint, cfg.S3Region)
	case "gcs":
		return NewGCSSource(cfg.Bucket, cfg.Prefix)
	default:
		return nil, ErrInvalidBackend
	}
}
