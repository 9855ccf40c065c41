// Package storage persists opaque blobs under string keys. The VFS stores
// its whole serialized tree as one blob; backends only move bytes.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/steveyegge/vos/internal/logging"
	"github.com/steveyegge/vos/internal/metrics"
	"github.com/steveyegge/vos/internal/storage/file"
	"github.com/steveyegge/vos/internal/storage/postgres"
	"github.com/steveyegge/vos/internal/storage/s3"
	"github.com/steveyegge/vos/internal/storage/sqlite"
)

// ErrNotFound is returned by Load when nothing is stored under a key.
// Backends wrap fs.ErrNotExist, so errors.Is works without importing this package.
var ErrNotFound = fs.ErrNotExist

// Store defines the interface for blob storage backends
type Store interface {
	// Load returns the blob stored under key, or an error wrapping ErrNotFound.
	Load(ctx context.Context, key string) ([]byte, error)
	// Save replaces the blob stored under key.
	Save(ctx context.Context, key string, data []byte) error
	// Close releases backend resources.
	Close() error
}

// Watcher is implemented by backends that can report external changes to a key.
// Watch blocks until ctx is done, calling fn after another writer replaced the blob.
type Watcher interface {
	Watch(ctx context.Context, key string, fn func()) error
}

// Backend names a storage implementation.
type Backend string

const (
	BackendMemory   Backend = "memory"
	BackendFile     Backend = "file"
	BackendSQLite   Backend = "sqlite"
	BackendPostgres Backend = "postgres"
	BackendS3       Backend = "s3"
)

// Config holds storage configuration
type Config struct {
	// Backend selects the implementation. Default: sqlite
	Backend Backend `yaml:"backend"`
	// Path is the SQLite database file or the file backend directory.
	// Special value ":memory:" gives an in-memory SQLite database (useful for tests).
	Path string `yaml:"path"`
	// DSN is the PostgreSQL connection string (postgres backend)
	DSN string `yaml:"dsn"`
	// S3 configures the s3 backend
	S3 s3.Config `yaml:"s3"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Backend: BackendSQLite,
		Path:    filepath.Join(DataDirName, "vos.db"),
	}
}

// Validate checks that the selected backend has what it needs.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendMemory:
	case BackendFile, BackendSQLite:
		if c.Path == "" {
			return fmt.Errorf("storage.path is required for the %s backend", c.Backend)
		}
	case BackendPostgres:
		if c.DSN == "" {
			return fmt.Errorf("storage.dsn is required for the postgres backend")
		}
	case BackendS3:
		if c.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q (want memory, file, sqlite, postgres, or s3)", c.Backend)
	}
	return nil
}

// NewStorage creates the configured storage backend, instrumented with metrics.
func NewStorage(ctx context.Context, cfg *Config) (Store, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Backend == "" {
		cfg.Backend = BackendSQLite
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		store Store
		err   error
	)
	switch cfg.Backend {
	case BackendMemory:
		store = NewMemory()
	case BackendFile:
		store, err = file.New(cfg.Path)
	case BackendSQLite:
		store, err = sqlite.New(ctx, cfg.Path)
	case BackendPostgres:
		store, err = postgres.New(ctx, cfg.DSN)
	case BackendS3:
		store, err = s3.New(ctx, cfg.S3)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s storage: %w", cfg.Backend, err)
	}

	logging.Debug("storage opened",
		logging.String("backend", string(cfg.Backend)),
		logging.String("path", cfg.Path))
	return Instrument(store, string(cfg.Backend)), nil
}

// Instrument wraps store so every call records metrics under backend.
// The result still implements Watcher when store does.
func Instrument(store Store, backend string) Store {
	inst := &instrumented{Store: store, backend: backend}
	if w, ok := store.(Watcher); ok {
		return &instrumentedWatcher{instrumented: inst, watcher: w}
	}
	return inst
}

type instrumented struct {
	Store
	backend string
}

func (s *instrumented) Load(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	data, err := s.Store.Load(ctx, key)
	// A missing key is an expected answer, not a failure.
	metrics.RecordStorageOperation(s.backend, "load", time.Since(start), err == nil || errors.Is(err, ErrNotFound))
	return data, err
}

func (s *instrumented) Save(ctx context.Context, key string, data []byte) error {
	start := time.Now()
	err := s.Store.Save(ctx, key, data)
	metrics.RecordStorageOperation(s.backend, "save", time.Since(start), err == nil)
	if err != nil {
		logging.Warn("storage save failed",
			logging.String("backend", s.backend),
			logging.String("key", key),
			logging.Err(err))
	}
	return err
}

type instrumentedWatcher struct {
	*instrumented
	watcher Watcher
}

func (s *instrumentedWatcher) Watch(ctx context.Context, key string, fn func()) error {
	return s.watcher.Watch(ctx, key, fn)
}
