package blobstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/42ByteLabs/konarr-core/internal/ports"
)

var _ ports.BlobStore = (*LocalStore)(nil)

// LocalStore implements ports.BlobStore against a directory on disk, the
// default backend when no S3Config is configured.
type LocalStore struct {
	root string
}

// NewLocalStore builds a LocalStore rooted at dir, creating it if absent.
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("blobstore: create root dir: %w", err)
	}
	return &LocalStore{root: dir}, nil
}

// Put writes body to key under the store's root, per ports.BlobStore.
func (l *LocalStore) Put(ctx context.Context, key string, body io.Reader) error {
	path, err := l.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("blobstore: create parent dir for %s: %w", key, err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("blobstore: create %s: %w", key, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, body); err != nil {
		return fmt.Errorf("blobstore: write %s: %w", key, err)
	}
	return nil
}

// Get opens key for reading, per ports.BlobStore.
func (l *LocalStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	path, err := l.resolve(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("blobstore: open %s: %w", key, err)
	}
	return f, nil
}

// Delete removes key, per ports.BlobStore. Deleting an absent key is not an
// error, matching the idempotent-retry expectations of the migration path
// that drives this store.
func (l *LocalStore) Delete(ctx context.Context, key string) error {
	path, err := l.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("blobstore: delete %s: %w", key, err)
	}
	return nil
}

// resolve joins key onto the store root, rejecting any key that would
// escape it via ".." traversal — the same path-traversal guard
// internal/sync applies when unpacking archives.
func (l *LocalStore) resolve(key string) (string, error) {
	for _, part := range strings.Split(key, "/") {
		if part == ".." {
			return "", fmt.Errorf("blobstore: key %q escapes store root", key)
		}
	}
	path := filepath.Join(l.root, filepath.Clean("/"+key))
	return path, nil
}
