// Package steam provides a client for the Steam Web API and the store API.
package steam

import (
	"context"
	"encoding/json"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/devmap/devmap/internal/fetcher"
)

var (
	// ErrPlayerNotFound is returned when a vanity name or id has no profile.
	ErrPlayerNotFound = eris.New("steam: no player found, try the steam ID instead")
	// ErrPrivateLibrary is returned when the owned-games list is withheld.
	ErrPrivateLibrary = eris.New("steam: no games found, the library may be private")
	// ErrAppUnavailable is returned when the store has no details for an app.
	ErrAppUnavailable = eris.New("steam: app details unavailable")
	// ErrInvalidAppID is returned for app ids that are not positive integers.
	ErrInvalidAppID = eris.New("steam: invalid app id")
	// ErrInvalidPath is returned when a proxy path leaves the Web API host.
	ErrInvalidPath = eris.New("steam: invalid api path")
	// ErrMissingAPIKey is returned by Web API calls when no key is configured.
	ErrMissingAPIKey = eris.New("steam: api key not configured")
)

// Client defines the Steam operations used by devmap.
type Client interface {
	// ResolvePlayer accepts a SteamID64, a vanity name or a community
	// profile URL and returns the SteamID64.
	ResolvePlayer(ctx context.Context, input string) (string, error)
	ResolveVanityURL(ctx context.Context, vanity string) (string, error)
	PlayerSummary(ctx context.Context, steamID string) (*PlayerSummary, error)
	OwnedGames(ctx context.Context, steamID string) ([]OwnedGame, error)
	// AppDetails returns store metadata for one app, served from the cache
	// when present. Only successful lookups are cached.
	AppDetails(ctx context.Context, appID string) (*AppDetails, error)
	// Proxy performs a raw Web API GET with the API key injected.
	Proxy(ctx context.Context, path string, query url.Values) (json.RawMessage, error)
}

// Option configures the Steam client.
type Option func(*httpClient)

// WithAPIBaseURL sets a custom Web API base URL (for testing).
func WithAPIBaseURL(u string) Option {
	return func(c *httpClient) {
		c.apiBaseURL = u
	}
}

// WithStoreBaseURL sets a custom store API base URL (for testing).
func WithStoreBaseURL(u string) Option {
	return func(c *httpClient) {
		c.storeBaseURL = u
	}
}

// WithCooldown sets how long live fetches pause after a 429.
func WithCooldown(d time.Duration) Option {
	return func(c *httpClient) {
		c.cooldown = d
	}
}

type httpClient struct {
	apiKey       string
	apiBaseURL   string
	storeBaseURL string
	cooldown     time.Duration

	api   *fetcher.CachedFetcher
	store *fetcher.CachedFetcher
}

// NewClient creates a Steam client. Web API responses are never cached;
// store app details are cached in cache, which may be nil.
func NewClient(apiKey string, f fetcher.Fetcher, cache fetcher.Cache, opts ...Option) Client {
	c := &httpClient{
		apiKey:       apiKey,
		apiBaseURL:   "https://api.steampowered.com/",
		storeBaseURL: "https://store.steampowered.com/api/",
		cooldown:     time.Minute,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.api = fetcher.NewCachedFetcher(f, nil, fetcher.CachedOptions{
		BaseURL:  c.apiBaseURL,
		Cooldown: c.cooldown,
	})
	c.store = fetcher.NewCachedFetcher(f, cache, fetcher.CachedOptions{
		BaseURL:  c.storeBaseURL,
		Cooldown: c.cooldown,
	})
	return c
}

var (
	steamID64Re  = regexp.MustCompile(`^7656119\d{10}$`)
	profileURLRe = regexp.MustCompile(`^(?:https?://)?steamcommunity\.com/(id|profiles)/([^/?#]+)`)
)

func (c *httpClient) ResolvePlayer(ctx context.Context, input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", eris.Wrap(ErrPlayerNotFound, "empty player name")
	}

	if m := profileURLRe.FindStringSubmatch(input); m != nil {
		if m[1] == "profiles" && steamID64Re.MatchString(m[2]) {
			return m[2], nil
		}
		input = m[2]
	}
	if steamID64Re.MatchString(input) {
		return input, nil
	}
	return c.ResolveVanityURL(ctx, input)
}

func (c *httpClient) ResolveVanityURL(ctx context.Context, vanity string) (string, error) {
	var resp resolveVanityResponse
	if err := c.getAPI(ctx, "ISteamUser/ResolveVanityURL/v0001/", url.Values{"vanityurl": {vanity}}, &resp); err != nil {
		return "", err
	}
	if resp.Response.Success != 1 || resp.Response.SteamID == "" {
		return "", eris.Wrapf(ErrPlayerNotFound, "vanity %q", vanity)
	}
	return resp.Response.SteamID, nil
}

func (c *httpClient) PlayerSummary(ctx context.Context, steamID string) (*PlayerSummary, error) {
	var resp playerSummariesResponse
	if err := c.getAPI(ctx, "ISteamUser/GetPlayerSummaries/v0002/", url.Values{"steamids": {steamID}}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Response.Players) == 0 {
		return nil, eris.Wrapf(ErrPlayerNotFound, "steamid %s", steamID)
	}
	return &resp.Response.Players[0], nil
}

func (c *httpClient) OwnedGames(ctx context.Context, steamID string) ([]OwnedGame, error) {
	q := url.Values{
		"steamid":                   {steamID},
		"format":                    {"json"},
		"include_appinfo":           {"0"},
		"include_played_free_games": {"1"},
	}
	var resp ownedGamesResponse
	if err := c.getAPI(ctx, "IPlayerService/GetOwnedGames/v0001/", q, &resp); err != nil {
		return nil, err
	}
	if resp.Response.Games == nil {
		return nil, eris.Wrapf(ErrPrivateLibrary, "steamid %s", steamID)
	}
	return resp.Response.Games, nil
}

func (c *httpClient) AppDetails(ctx context.Context, appID string) (*AppDetails, error) {
	id, err := parseAppID(appID)
	if err != nil {
		return nil, err
	}

	q := url.Values{"appids": {id}}
	data, err := c.store.FetchJSON(ctx, "appdetails?"+q.Encode(), id+".json", successValidator(id))
	if err != nil {
		return nil, eris.Wrapf(err, "steam: app details %s", id)
	}

	entry, err := decodeAppEntry(data, id)
	if err != nil {
		return nil, err
	}
	if !entry.Success || entry.Data == nil {
		return nil, eris.Wrapf(ErrAppUnavailable, "app %s", id)
	}
	return entry.Data, nil
}

func (c *httpClient) Proxy(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	path = strings.TrimPrefix(path, "/")
	if path == "" || strings.Contains(path, "..") || strings.Contains(path, "://") {
		return nil, eris.Wrapf(ErrInvalidPath, "path %q", path)
	}

	q := url.Values{}
	for k, v := range query {
		q[k] = append([]string(nil), v...)
	}
	if c.apiKey != "" {
		q.Set("key", c.apiKey)
	}
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	data, err := c.api.FetchJSON(ctx, path, path, nil)
	if err != nil {
		return nil, eris.Wrap(err, "steam: proxy")
	}
	return json.RawMessage(data), nil
}

func (c *httpClient) getAPI(ctx context.Context, path string, q url.Values, out any) error {
	if c.apiKey == "" {
		return ErrMissingAPIKey
	}
	q.Set("key", c.apiKey)

	data, err := c.api.FetchJSON(ctx, path+"?"+q.Encode(), path, nil)
	if err != nil {
		return eris.Wrapf(err, "steam: get %s", path)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return eris.Wrapf(err, "steam: decode %s", path)
	}
	zap.L().Debug("steam api call", zap.String("path", path))
	return nil
}

func parseAppID(appID string) (string, error) {
	appID = strings.TrimSpace(appID)
	n, err := strconv.ParseUint(appID, 10, 32)
	if err != nil || n == 0 {
		return "", eris.Wrapf(ErrInvalidAppID, "%q", appID)
	}
	return strconv.FormatUint(n, 10), nil
}

func decodeAppEntry(data []byte, id string) (AppDetailsEntry, error) {
	var resp map[string]AppDetailsEntry
	if err := json.Unmarshal(data, &resp); err != nil {
		return AppDetailsEntry{}, eris.Wrapf(err, "steam: decode app details %s", id)
	}
	return resp[id], nil
}

// successValidator accepts only responses whose entry for id reports success.
func successValidator(id string) fetcher.Validator {
	return func(body []byte) error {
		entry, err := decodeAppEntry(body, id)
		if err != nil {
			return err
		}
		if !entry.Success || entry.Data == nil {
			return eris.Wrapf(ErrAppUnavailable, "app %s", id)
		}
		return nil
	}
}
