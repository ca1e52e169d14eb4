package source

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
)

// LocalSource reads NDJSON files from the local filesystem.
type LocalSource struct {
	basePath string
	prefix   string
	log      *slog.Logger
}

// NewLocalSource creates a source rooted at basePath, restricted to files
// under prefix.
func NewLocalSource(basePath, prefix string) (*LocalSource, error) {
	info, err := os.Stat(basePath)
	if err != nil {
		return nil, fmt.Errorf("invalid local path %s: %w", basePath, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("local path %s is not a directory", basePath)
	}

	return &LocalSource{
		basePath: basePath,
		prefix:   prefix,
		log:      slog.With("component", "source", "backend", "local"),
	}, nil
}

// Stream implements LineSource.Stream for local files.
func (s *LocalSource) Stream(ctx context.Context) (<-chan Line, <-chan error) {
	lineCh := make(chan Line, 256)
	errCh := make(chan error, 1)

	go func() {
		defer close(lineCh)
		defer close(errCh)

		files, err := s.listFiles()
		if err != nil {
			errCh <- fmt.Errorf("list files: %w", err)
			return
		}

		s.log.Info("streaming input files", "prefix", s.prefix, "files", len(files))

		for _, path := range files {
			select {
			case <-ctx.Done():
				return
			default:
			}

			if err := s.streamFile(ctx, path, lineCh); err != nil {
				errCh <- err
				return
			}
		}
	}()

	return lineCh, errCh
}

// Close is a no-op for local sources.
func (s *LocalSource) Close() error { return nil }

// listFiles walks the prefix directory and returns data files in a stable
// lexical order.
func (s *LocalSource) listFiles() ([]string, error) {
	root := filepath.Join(s.basePath, filepath.FromSlash(s.prefix))
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return nil, nil
	}

	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !IsDataFile(path) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}

	sort.Strings(files)
	return files, nil
}

func (s *LocalSource) streamFile(ctx context.Context, path string, out chan<- Line) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r, closer, err := OpenReader(path, f)
	if err != nil {
		return err
	}
	defer closer.Close()

	return streamLines(ctx, path, r, out)
}
