// Package store persists fetched JSON documents for the cache-aside fetcher.
// Three backends share one interface: a directory of files, SQLite and Postgres.
package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/devmap/devmap/internal/config"
)

// ErrInvalidKey is returned for keys that cannot address a cache entry.
var ErrInvalidKey = eris.New("store: invalid cache key")

// Cache stores raw JSON documents by key. Get returns (nil, nil) on a miss.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, data []byte) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open builds the cache backend selected by cfg.Driver and migrates it.
func Open(ctx context.Context, cfg config.CacheConfig) (Cache, error) {
	var (
		c   Cache
		err error
	)
	switch cfg.Driver {
	case "", "file":
		c, err = NewFileCache(cfg.Dir)
	case "sqlite":
		dsn := cfg.DatabaseURL
		if dsn == "" {
			if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
				return nil, eris.Wrap(err, "store: create cache dir")
			}
			dsn = filepath.Join(cfg.Dir, "cache.db")
		}
		c, err = NewSQLite(dsn)
	case "postgres":
		c, err = NewPostgres(ctx, cfg.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("store: unsupported cache driver: %s", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := c.Migrate(ctx); err != nil {
		c.Close() //nolint:errcheck
		return nil, err
	}
	zap.L().Info("cache opened", zap.String("driver", cfg.Driver))
	return c, nil
}

func validateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return eris.Wrap(ErrInvalidKey, "empty key")
	}
	return nil
}
