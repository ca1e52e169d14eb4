package storage

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// LocalStore writes datasets to the local filesystem.
type LocalStore struct {
	baseDir string
	prefix  string
}

// NewLocalStore creates a new local filesystem store.
func NewLocalStore(baseDir, prefix string) (*LocalStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("create base directory %s: %w", baseDir, err)
	}

	return &LocalStore{
		baseDir: baseDir,
		prefix:  prefix,
	}, nil
}

func (s *LocalStore) fullPath(key string) string {
	return filepath.Join(s.baseDir, filepath.FromSlash(s.prefix+key))
}

// Write writes data atomically to its final key using temp file + rename.
func (s *LocalStore) Write(ctx context.Context, key string, data []byte) error {
	tempKey, err := s.WriteTemp(ctx, key, data)
	if err != nil {
		return err
	}
	return s.Promote(ctx, tempKey, key)
}

// WriteTemp writes data to a temporary sibling of key.
func (s *LocalStore) WriteTemp(ctx context.Context, key string, data []byte) (string, error) {
	tempKey := key + ".tmp." + uuid.New().String()
	p := s.fullPath(tempKey)

	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return "", fmt.Errorf("create directory %s: %w", filepath.Dir(p), err)
	}
	if err := os.WriteFile(p, data, 0644); err != nil {
		return "", fmt.Errorf("write temp file %s: %w", p, err)
	}
	return tempKey, nil
}

// Promote renames a temp file to its final key.
func (s *LocalStore) Promote(ctx context.Context, tempKey, finalKey string) error {
	src := s.fullPath(tempKey)
	dst := s.fullPath(finalKey)

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("create directory %s: %w", filepath.Dir(dst), err)
	}
	if err := os.Rename(src, dst); err != nil {
		os.Remove(src)
		return fmt.Errorf("rename %s to %s: %w", src, dst, err)
	}
	return nil
}

// Abort removes temporary files.
func (s *LocalStore) Abort(ctx context.Context, tempKeys []string) error {
	var lastErr error
	for _, key := range tempKeys {
		if err := os.Remove(s.fullPath(key)); err != nil && !os.IsNotExist(err) {
			lastErr = err
		}
	}
	return lastErr
}

// List returns all keys under the given prefix.
func (s *LocalStore) List(ctx context.Context, prefix string) ([]string, error) {
	root := filepath.Join(s.baseDir, filepath.FromSlash(s.prefix+prefix))
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return nil, nil
	}

	var keys []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.baseDir, p)
		if err != nil {
			return err
		}
		key := strings.TrimPrefix(filepath.ToSlash(rel), s.prefix)
		keys = append(keys, key)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}

	sort.Strings(keys)
	return keys, nil
}

// Delete removes a single file and prunes empty parent directories so stale
// partition dirs don't survive an overwrite.
func (s *LocalStore) Delete(ctx context.Context, key string) error {
	p := s.fullPath(key)
	if err := os.Remove(p); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("remove %s: %w", p, err)
	}

	// Prune now-empty directories up to the store root.
	dir := filepath.Dir(p)
	for dir != s.baseDir && strings.HasPrefix(dir, s.baseDir) {
		if err := os.Remove(dir); err != nil {
			break
		}
		dir = filepath.Dir(dir)
	}
	return nil
}

// URI returns the canonical file:// URI for the given key.
func (s *LocalStore) URI(key string) string {
	absPath, err := filepath.Abs(s.fullPath(key))
	if err != nil {
		absPath = s.fullPath(key)
	}
	return "file://" + path.Clean(filepath.ToSlash(absPath))
}

// Close is a no-op for local storage.
func (s *LocalStore) Close() error { return nil }
