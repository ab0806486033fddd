// Package objectstore holds file contents under opaque keys.
package objectstore

import (
	"context"
	"fmt"
	"io"

	"github.com/PhilHem/secureone/backend/config"
	"github.com/PhilHem/secureone/backend/logger"
)

// Store is a blob backend. Get returns apperr.ErrNotFound for a missing key;
// Delete of a missing key succeeds.
type Store interface {
	Put(ctx context.Context, key string, data io.Reader, size int64) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// New builds the backend selected by cfg, wrapped in a breaker and per-call
// timeout.
func New(ctx context.Context, cfg config.StorageConfig, log logger.Logger) (Store, error) {
	var store Store
	switch cfg.Backend {
	case "filesystem":
		fs := NewFileSystemStore(cfg.Path)
		if err := fs.EnsureDir(); err != nil {
			return nil, err
		}
		store = fs
	case "s3":
		s3store, err := NewS3Store(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		store = s3store
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
	return NewGuarded(store, cfg.Timeout, cfg.Breaker, log), nil
}
