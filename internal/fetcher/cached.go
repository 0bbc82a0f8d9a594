package fetcher

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrInvalidJSON is returned when an upstream body is not valid JSON.
var ErrInvalidJSON = eris.New("fetcher: upstream returned invalid JSON")

// Cache persists raw JSON documents by key. Get returns (nil, nil) on a miss.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, data []byte) error
}

// Validator decides whether a fetched document may be persisted.
type Validator func(body []byte) error

// CachedOptions configures a CachedFetcher.
type CachedOptions struct {
	BaseURL  string
	Cooldown time.Duration
}

// CachedFetcher serves JSON documents from a Cache and falls back to the
// network on a miss. After a 429 it refuses live fetches until the cooldown
// has elapsed; cached documents are still served.
type CachedFetcher struct {
	fetcher  Fetcher
	cache    Cache
	baseURL  string
	cooldown time.Duration
	now      func() time.Time

	mu        sync.Mutex
	coolUntil time.Time
}

// NewCachedFetcher wraps f with cache-aside reads through c.
func NewCachedFetcher(f Fetcher, c Cache, opts CachedOptions) *CachedFetcher {
	if opts.Cooldown == 0 {
		opts.Cooldown = time.Minute
	}
	return &CachedFetcher{
		fetcher:  f,
		cache:    c,
		baseURL:  opts.BaseURL,
		cooldown: opts.Cooldown,
		now:      time.Now,
	}
}

// CoolingDown reports whether live fetches are suspended and for how long.
func (c *CachedFetcher) CoolingDown() (bool, time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	left := c.coolUntil.Sub(c.now())
	if left <= 0 {
		return false, 0
	}
	return true, left
}

func (c *CachedFetcher) startCooldown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.coolUntil = c.now().Add(c.cooldown)
	zap.L().Warn("upstream rate limited, suspending live fetches",
		zap.Duration("cooldown", c.cooldown),
	)
}

// FetchJSON returns the document stored under key, fetching baseURL+path on
// a miss. Fetched bodies must be valid JSON; they are persisted only when
// validate is nil or accepts them.
func (c *CachedFetcher) FetchJSON(ctx context.Context, path, key string, validate Validator) ([]byte, error) {
	log := zap.L().With(zap.String("cache_key", key))

	if c.cache != nil {
		data, err := c.cache.Get(ctx, key)
		switch {
		case err != nil:
			log.Warn("cache read failed, fetching live", zap.Error(err))
		case data != nil:
			log.Debug("cache hit")
			return data, nil
		}
	}

	if cooling, left := c.CoolingDown(); cooling {
		return nil, eris.Wrapf(ErrRateLimited, "cooling down for %s", left.Round(time.Second))
	}

	body, err := c.fetcher.Download(ctx, c.url(path))
	if err != nil {
		if eris.Is(err, ErrRateLimited) {
			c.startCooldown()
		}
		return nil, eris.Wrap(err, "fetch json")
	}
	defer body.Close() //nolint:errcheck

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, eris.Wrap(err, "fetch json: read body")
	}
	if !json.Valid(data) {
		return nil, eris.Wrapf(ErrInvalidJSON, "key %s", key)
	}

	if validate != nil {
		if err := validate(data); err != nil {
			log.Debug("payload not cached", zap.Error(err))
			return data, nil
		}
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, key, data); err != nil {
			log.Warn("cache write failed", zap.Error(err))
		}
	}
	return data, nil
}

func (c *CachedFetcher) url(path string) string {
	if c.baseURL == "" {
		return path
	}
	return strings.TrimSuffix(c.baseURL, "/") + "/" + strings.TrimPrefix(path, "/")
}
