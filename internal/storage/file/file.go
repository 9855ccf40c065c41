// Package file stores blobs as files in a local directory and can watch
// them for changes made by other processes.
package file

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/steveyegge/vos/internal/logging"
)

const blobExt = ".blob"

// BlobStorage implements storage.Store on top of a directory.
type BlobStorage struct {
	dir string

	mu sync.Mutex
	// last content hash this process saved or loaded, per key
	known map[string][sha256.Size]byte

	// DebounceInterval is how long Watch waits for writes to settle.
	DebounceInterval time.Duration
}

// New creates the directory if needed.
func New(dir string) (*BlobStorage, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create blob directory: %w", err)
	}
	return &BlobStorage{
		dir:              dir,
		known:            make(map[string][sha256.Size]byte),
		DebounceInterval: 200 * time.Millisecond,
	}, nil
}

// pathFor maps a key such as "vfs/root" to dir/vfs/root.blob.
func (s *BlobStorage) pathFor(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if key == "" || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid blob key %q", key)
	}
	return filepath.Join(s.dir, clean+blobExt), nil
}

// Load reads the blob file for key.
func (s *BlobStorage) Load(_ context.Context, key string) ([]byte, error) {
	p, err := s.pathFor(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("blob %q: %w", key, fs.ErrNotExist)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read blob %q: %w", key, err)
	}
	s.remember(key, data)
	return data, nil
}

// Save writes the blob atomically (temp file + rename).
func (s *BlobStorage) Save(_ context.Context, key string, data []byte) error {
	p, err := s.pathFor(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return fmt.Errorf("failed to create blob directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(p), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write blob %q: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close blob %q: %w", key, err)
	}

	s.remember(key, data)
	if err := os.Rename(tmpName, p); err != nil {
		return fmt.Errorf("failed to replace blob %q: %w", key, err)
	}
	return nil
}

// Close implements storage.Store.
func (s *BlobStorage) Close() error {
	return nil
}

func (s *BlobStorage) remember(key string, data []byte) {
	sum := sha256.Sum256(data)
	s.mu.Lock()
	s.known[key] = sum
	s.mu.Unlock()
}

// changedExternally reports whether the file for key differs from what this
// process last saved or loaded.
func (s *BlobStorage) changedExternally(key, path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	sum := sha256.Sum256(data)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.known[key] != sum
}

// Watch blocks until ctx is done, calling fn whenever another process
// replaces the blob for key. Writes made through this BlobStorage are ignored.
func (s *BlobStorage) Watch(ctx context.Context, key string, fn func()) error {
	p, err := s.pathFor(key)
	if err != nil {
		return err
	}
	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create blob directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: Save renames over the file, which replaces the inode.
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	logging.Debug("watching blob", logging.String("path", p))

	var (
		pending  bool
		debounce = time.NewTimer(time.Hour)
	)
	debounce.Stop()
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != p {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			pending = true
			debounce.Reset(s.DebounceInterval)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.Warn("blob watcher error", logging.String("path", p), logging.Err(err))

		case <-debounce.C:
			if !pending {
				continue
			}
			pending = false
			if s.changedExternally(key, p) {
				logging.Info("blob changed externally", logging.String("key", key))
				fn()
			}
		}
	}
}
