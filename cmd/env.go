package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/devmap/devmap/internal/fetcher"
	"github.com/devmap/devmap/internal/library"
	"github.com/devmap/devmap/internal/resolve"
	"github.com/devmap/devmap/internal/steam"
	"github.com/devmap/devmap/internal/store"
)

// appEnv holds the services shared by the serve and library commands.
type appEnv struct {
	Index   *resolve.Index
	Matcher *resolve.Matcher
	Cache   store.Cache
	Steam   steam.Client
	Library *library.Service
}

// Close releases the cache backend.
func (e *appEnv) Close() {
	if e.Cache != nil {
		if err := e.Cache.Close(); err != nil {
			zap.L().Warn("close cache", zap.Error(err))
		}
	}
}

// initMatcher loads the reference dataset and builds the matcher. A missing
// or unreadable dataset is fatal.
func initMatcher(ctx context.Context) (*resolve.Index, *resolve.Matcher, error) {
	n := resolve.NewNormalizer(cfg.Matcher.ExtraLegalSuffixes, cfg.Matcher.ExtraGenericTrailing)
	idx, err := resolve.LoadIndexFile(ctx, cfg.Reference.Path, resolve.LoadOptions{
		HasHeader:  cfg.Reference.HasHeader,
		Normalizer: n,
	})
	if err != nil {
		return nil, nil, eris.Wrap(err, "load reference dataset")
	}

	m, err := resolve.NewMatcher(idx, resolve.WithMinScore(cfg.Matcher.MinScore))
	if err != nil {
		return nil, nil, eris.Wrap(err, "build matcher")
	}
	return idx, m, nil
}

// initEnv wires the matcher, cache, Steam client and library locator.
func initEnv(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	idx, m, err := initMatcher(ctx)
	if err != nil {
		return nil, err
	}

	cache, err := store.Open(ctx, cfg.Cache)
	if err != nil {
		return nil, eris.Wrap(err, "open cache")
	}

	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		Timeout:    time.Duration(cfg.Steam.TimeoutSecs) * time.Second,
		MaxRetries: cfg.Steam.MaxRetries,
		RatePerSec: cfg.Steam.RatePerSec,
	})
	client := steam.NewClient(cfg.Steam.APIKey, f, cache,
		steam.WithAPIBaseURL(cfg.Steam.APIBaseURL),
		steam.WithStoreBaseURL(cfg.Steam.StoreBaseURL),
		steam.WithCooldown(time.Duration(cfg.Steam.CooldownSecs)*time.Second),
	)
	if cfg.Steam.APIKey == "" {
		zap.L().Warn("STEAM_API_KEY not set, Web API lookups disabled")
	}

	return &appEnv{
		Index:   idx,
		Matcher: m,
		Cache:   cache,
		Steam:   client,
		Library: library.NewService(client, m, library.Options{MaxConcurrent: cfg.Steam.MaxConcurrent}),
	}, nil
}
