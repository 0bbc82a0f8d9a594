package store

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// FileCache keeps one file per key under a directory.
type FileCache struct {
	dir string
}

// NewFileCache returns a FileCache rooted at dir. The directory is created
// by Migrate.
func NewFileCache(dir string) (*FileCache, error) {
	if dir == "" {
		return nil, eris.New("file cache: directory is required")
	}
	return &FileCache{dir: dir}, nil
}

// Dir returns the cache directory.
func (c *FileCache) Dir() string { return c.dir }

func (c *FileCache) Migrate(_ context.Context) error {
	return eris.Wrap(os.MkdirAll(c.dir, 0o755), "file cache: create dir")
}

func (c *FileCache) Close() error { return nil }

func (c *FileCache) Get(_ context.Context, key string) ([]byte, error) {
	path, err := c.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "file cache: read %s", key)
	}
	return data, nil
}

// Set writes through a temp file and renames it so readers never see a
// partial document.
func (c *FileCache) Set(_ context.Context, key string, data []byte) error {
	path, err := c.path(key)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(c.dir, ".tmp-*")
	if err != nil {
		return eris.Wrap(err, "file cache: create temp")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrapf(err, "file cache: write %s", key)
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrapf(err, "file cache: close %s", key)
	}
	return eris.Wrapf(os.Rename(tmp.Name(), path), "file cache: rename %s", key)
}

func (c *FileCache) path(key string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	name := sanitizeKey(key)
	if name == "." || name == ".." {
		return "", eris.Wrapf(ErrInvalidKey, "key %q", key)
	}
	return filepath.Join(c.dir, name), nil
}

// sanitizeKey maps a key onto a single safe file name.
func sanitizeKey(key string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, strings.TrimSpace(key))
}
