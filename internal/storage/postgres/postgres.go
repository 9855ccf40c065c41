// Package postgres stores blobs in PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// BlobStorage implements storage.Store using PostgreSQL
type BlobStorage struct {
	pool *pgxpool.Pool
}

// PoolConfig tunes the connection pool.
type PoolConfig struct {
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	HealthCheck     time.Duration
}

// DefaultPoolConfig returns pool settings for a single-writer workload.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxConns:        4,
		MinConns:        1,
		MaxConnLifetime: 1 * time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
		HealthCheck:     1 * time.Minute,
	}
}

// New connects to dsn with default pool settings and creates the schema.
func New(ctx context.Context, dsn string) (*BlobStorage, error) {
	return NewWithPool(ctx, dsn, DefaultPoolConfig())
}

// NewWithPool connects to dsn and creates the schema.
func NewWithPool(ctx context.Context, dsn string, pc PoolConfig) (*BlobStorage, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	poolConfig.MaxConns = pc.MaxConns
	poolConfig.MinConns = pc.MinConns
	poolConfig.MaxConnLifetime = pc.MaxConnLifetime
	poolConfig.MaxConnIdleTime = pc.MaxConnIdleTime
	poolConfig.HealthCheckPeriod = pc.HealthCheck

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &BlobStorage{pool: pool}, nil
}

// Load returns the blob stored under key.
func (s *BlobStorage) Load(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM vos_blobs WHERE key = $1`, key).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("blob %q: %w", key, fs.ErrNotExist)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load blob %q: %w", key, err)
	}
	return data, nil
}

// Save upserts the blob stored under key.
func (s *BlobStorage) Save(ctx context.Context, key string, data []byte) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO vos_blobs (key, data, size, updated_at) VALUES ($1, $2, $3, NOW())
		ON CONFLICT (key) DO UPDATE SET
			data = EXCLUDED.data,
			size = EXCLUDED.size,
			updated_at = EXCLUDED.updated_at
	`, key, data, len(data))
	if err != nil {
		return fmt.Errorf("failed to save blob %q: %w", key, err)
	}
	return nil
}

// Close closes the connection pool.
func (s *BlobStorage) Close() error {
	s.pool.Close()
	return nil
}
