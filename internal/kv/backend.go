package kv

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/nhle/paddledesk/internal/model"
)

// Backend opens tabs on one shared storage.
type Backend interface {
	Open() *Tab
	Close() error
}

// OpenBackend creates the backend selected by cfg.
func OpenBackend(cfg model.StorageConfig) (Backend, error) {
	switch cfg.Backend {
	case "memory":
		return NewMemory(), nil
	case "redis":
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("storage backend redis: redis_url is empty")
		}
		return NewRedis(cfg.RedisURL, cfg.Namespace)
	case "sqlite", "":
		if dir := filepath.Dir(cfg.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating storage directory %s: %w", dir, err)
			}
		}
		return NewSQLite(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
