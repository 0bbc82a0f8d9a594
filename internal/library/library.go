// Package library turns a Steam library into per-country developer counts.
package library

import (
	"cmp"
	"context"
	"slices"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/devmap/devmap/internal/resolve"
	"github.com/devmap/devmap/internal/steam"
)

// Source is the Steam surface the locator reads from.
type Source interface {
	OwnedGames(ctx context.Context, steamID string) ([]steam.OwnedGame, error)
	AppDetails(ctx context.Context, appID string) (*steam.AppDetails, error)
}

// Resolver maps a developer name to a reference entry.
type Resolver interface {
	Match(name string) (resolve.MatchResult, error)
}

// GameLocation is one owned game with its developer's resolved country.
type GameLocation struct {
	AppID        int           `json:"appid" yaml:"appid"`
	Name         string        `json:"name" yaml:"name"`
	CapsuleImage string        `json:"capsule_image,omitempty" yaml:"capsule_image,omitempty"`
	Developer    string        `json:"developer" yaml:"developer"`
	CountryCode  string        `json:"iso2,omitempty" yaml:"iso2,omitempty"`
	MatchedName  string        `json:"matched_name,omitempty" yaml:"matched_name,omitempty"`
	Stage        resolve.Stage `json:"stage" yaml:"stage"`
	Score        float64       `json:"score" yaml:"score"`
}

// Located reports whether a country was resolved.
func (g GameLocation) Located() bool { return g.CountryCode != "" }

// CountryCount is the number of owned games developed in one country.
type CountryCount struct {
	CountryCode string `json:"iso2" yaml:"iso2"`
	Count       int    `json:"count" yaml:"count"`
}

// Report is the per-country breakdown of a player's library.
type Report struct {
	SteamID     string         `json:"steamid" yaml:"steamid"`
	GameCount   int            `json:"game_count" yaml:"game_count"`
	Games       []GameLocation `json:"games" yaml:"games"`
	Countries   []CountryCount `json:"countries" yaml:"countries"`
	Unresolved  []string       `json:"unresolved" yaml:"unresolved"`
	Unavailable []int          `json:"unavailable" yaml:"unavailable"`
}

// Options configures a Service.
type Options struct {
	MaxConcurrent int
}

// Service locates the developers of a player's games.
type Service struct {
	src           Source
	resolver      Resolver
	maxConcurrent int
}

// NewService creates a Service. MaxConcurrent defaults to 4.
func NewService(src Source, resolver Resolver, opts Options) *Service {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 4
	}
	return &Service{src: src, resolver: resolver, maxConcurrent: opts.MaxConcurrent}
}

type appResult struct {
	game        GameLocation
	unavailable bool
}

// Locate fetches the player's library, looks up every game's first developer
// and resolves it to a country. Per-game failures are recorded in the report;
// only library, resolver and context errors fail the call.
func (s *Service) Locate(ctx context.Context, steamID string) (*Report, error) {
	log := zap.L().With(zap.String("steamid", steamID))

	owned, err := s.src.OwnedGames(ctx, steamID)
	if err != nil {
		return nil, eris.Wrap(err, "library: owned games")
	}
	log.Debug("locating library", zap.Int("games", len(owned)))

	results := make([]appResult, len(owned))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxConcurrent)

	for i, game := range owned {
		g.Go(func() error {
			details, err := s.src.AppDetails(gctx, strconv.Itoa(game.AppID))
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				log.Debug("app details unavailable", zap.Int("appid", game.AppID), zap.Error(err))
				results[i] = appResult{game: GameLocation{AppID: game.AppID}, unavailable: true}
				return nil
			}

			loc := GameLocation{
				AppID:        game.AppID,
				Name:         details.Name,
				CapsuleImage: details.CapsuleImage,
				Developer:    details.FirstDeveloper(),
				Stage:        resolve.StageNone,
			}
			res, err := s.resolver.Match(loc.Developer)
			if err != nil {
				return eris.Wrapf(err, "library: resolve %q", loc.Developer)
			}
			if res.Matched() {
				loc.CountryCode = res.CountryCode()
				loc.MatchedName = res.Entry.RawName
				loc.Stage = res.Stage
				loc.Score = res.Score
			}
			results[i] = appResult{game: loc}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "library: locate")
	}

	report := buildReport(steamID, results)
	log.Info("library located",
		zap.Int("games", report.GameCount),
		zap.Int("countries", len(report.Countries)),
		zap.Int("unresolved", len(report.Unresolved)),
		zap.Int("unavailable", len(report.Unavailable)),
	)
	return report, nil
}

func buildReport(steamID string, results []appResult) *Report {
	r := &Report{
		SteamID:     steamID,
		GameCount:   len(results),
		Games:       []GameLocation{},
		Countries:   []CountryCount{},
		Unresolved:  []string{},
		Unavailable: []int{},
	}

	counts := map[string]int{}
	unresolved := map[string]struct{}{}
	for _, res := range results {
		if res.unavailable {
			r.Unavailable = append(r.Unavailable, res.game.AppID)
			continue
		}
		r.Games = append(r.Games, res.game)
		switch {
		case res.game.Located():
			counts[res.game.CountryCode]++
		case res.game.Developer != "":
			unresolved[res.game.Developer] = struct{}{}
		}
	}

	for code, n := range counts {
		r.Countries = append(r.Countries, CountryCount{CountryCode: code, Count: n})
	}
	slices.SortFunc(r.Countries, func(a, b CountryCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.CountryCode, b.CountryCode)
	})

	for dev := range unresolved {
		r.Unresolved = append(r.Unresolved, dev)
	}
	slices.Sort(r.Unresolved)
	slices.SortFunc(r.Games, func(a, b GameLocation) int { return cmp.Compare(a.AppID, b.AppID) })
	slices.Sort(r.Unavailable)
	return r
}

// CountryCounts is a convenience for callers that only need the map feed.
func (r *Report) CountryCounts() map[string]int {
	out := make(map[string]int, len(r.Countries))
	for _, c := range r.Countries {
		out[c.CountryCode] = c.Count
	}
	return out
}
