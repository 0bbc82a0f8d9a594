package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devmap/devmap/internal/fetcher"
	"github.com/devmap/devmap/internal/library"
	"github.com/devmap/devmap/internal/resolve"
	"github.com/devmap/devmap/internal/steam"
)

const testReference = `Valve Corporation,US
CD Projekt Red,PL
Remedy Entertainment,FI
Paradox Interactive,SE
`

func newTestMatcher(t *testing.T) *resolve.Matcher {
	t.Helper()
	idx, err := resolve.LoadIndex(context.Background(), strings.NewReader(testReference), resolve.LoadOptions{})
	require.NoError(t, err)
	m, err := resolve.NewMatcher(idx)
	require.NoError(t, err)
	return m
}

type fakeSteam struct {
	players map[string]string
	owned   map[string][]steam.OwnedGame
	apps    map[string]*steam.AppDetails
	appErr  error
	proxy   json.RawMessage
	err     error

	mu         sync.Mutex
	proxyPath  string
	proxyQuery url.Values
}

func (f *fakeSteam) ResolvePlayer(_ context.Context, input string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if id, ok := f.players[input]; ok {
		return id, nil
	}
	return "", eris.Wrapf(steam.ErrPlayerNotFound, "vanity %q", input)
}

func (f *fakeSteam) ResolveVanityURL(ctx context.Context, vanity string) (string, error) {
	return f.ResolvePlayer(ctx, vanity)
}

func (f *fakeSteam) PlayerSummary(_ context.Context, steamID string) (*steam.PlayerSummary, error) {
	return &steam.PlayerSummary{SteamID: steamID, PersonaName: "gabe"}, nil
}

func (f *fakeSteam) OwnedGames(_ context.Context, steamID string) ([]steam.OwnedGame, error) {
	games, ok := f.owned[steamID]
	if !ok {
		return nil, eris.Wrapf(steam.ErrPrivateLibrary, "steamid %s", steamID)
	}
	return games, nil
}

func (f *fakeSteam) AppDetails(_ context.Context, appID string) (*steam.AppDetails, error) {
	if f.appErr != nil {
		return nil, f.appErr
	}
	d, ok := f.apps[appID]
	if !ok {
		return nil, eris.Wrapf(steam.ErrAppUnavailable, "app %s", appID)
	}
	return d, nil
}

func (f *fakeSteam) Proxy(_ context.Context, path string, query url.Values) (json.RawMessage, error) {
	f.mu.Lock()
	f.proxyPath, f.proxyQuery = path, query
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if path == "" {
		return nil, steam.ErrInvalidPath
	}
	return f.proxy, nil
}

const gabe = "76561197960287930"

func newFakeSteam() *fakeSteam {
	return &fakeSteam{
		players: map[string]string{"gabelogannewell": gabe, gabe: gabe},
		owned: map[string][]steam.OwnedGame{
			gabe: {{AppID: 10}, {AppID: 292030}, {AppID: 440}, {AppID: 5}},
		},
		apps: map[string]*steam.AppDetails{
			"10":     {Name: "Counter-Strike", SteamAppID: 10, Developers: []string{"Valve"}},
			"440":    {Name: "Team Fortress 2", SteamAppID: 440, Developers: []string{"Valve Corporation"}},
			"292030": {Name: "The Witcher 3", SteamAppID: 292030, Developers: []string{"CD PROJEKT RED"}},
		},
		proxy: json.RawMessage(`{"response":{"ok":true}}`),
	}
}

func newTestRouter(t *testing.T, s *fakeSteam) http.Handler {
	t.Helper()
	m := newTestMatcher(t)
	return newRouter(m, s, library.NewService(s, m, library.Options{}), routerOptions{})
}

func do(t *testing.T, h http.Handler, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRouter_Health(t *testing.T) {
	rr := do(t, newTestRouter(t, newFakeSteam()), http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestRouter_DevIso2(t *testing.T) {
	h := newTestRouter(t, newFakeSteam())

	tests := []struct {
		name  string
		query string
		want  string
	}{
		{"exact", "developerName=Valve+Corporation", `{"iso2":"US"}`},
		{"legal suffix dropped", "developerName=Valve", `{"iso2":"US"}`},
		{"case folded", "developerName=CD+PROJEKT+RED", `{"iso2":"PL"}`},
		{"unknown", "developerName=Nobody+Knows+Studio", `{"iso2":null}`},
		{"empty", "developerName=", `{"iso2":null}`},
		{"missing", "", `{"iso2":null}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, h, http.MethodGet, "/devIso2?"+tt.query, nil)
			assert.Equal(t, http.StatusOK, rr.Code)
			assert.JSONEq(t, tt.want, rr.Body.String())
		})
	}
}

func TestRouter_DevIso2Explain(t *testing.T) {
	h := newTestRouter(t, newFakeSteam())

	rr := do(t, h, http.MethodGet, "/devIso2?developerName=Valve+Corporation&explain=true", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "US", body["iso2"])
	assert.Equal(t, "Valve Corporation", body["matched_name"])
	assert.Equal(t, string(resolve.StageExactRaw), body["stage"])
	assert.Contains(t, body, "score")

	rr = do(t, h, http.MethodGet, "/devIso2?developerName=Nobody&explain=1", nil)
	body = nil
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Nil(t, body["iso2"])
	assert.Equal(t, string(resolve.StageNone), body["stage"])
}

func TestRouter_CORSAndRequestID(t *testing.T) {
	h := newTestRouter(t, newFakeSteam())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, "req-123", rr.Header().Get("X-Request-ID"))
}

func TestRouter_Player(t *testing.T) {
	h := newTestRouter(t, newFakeSteam())

	rr := do(t, h, http.MethodGet, "/player/gabelogannewell", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		SteamID string              `json:"steamid"`
		Player  steam.PlayerSummary `json:"player"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, gabe, body.SteamID)
	assert.Equal(t, "gabe", body.Player.PersonaName)

	rr = do(t, h, http.MethodGet, "/player/nobody", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), "no player found")
}

func TestRouter_LibraryCountries(t *testing.T) {
	s := newFakeSteam()
	s.players["private"] = "76561197960287931"
	h := newTestRouter(t, s)

	rr := do(t, h, http.MethodGet, "/library/gabelogannewell/countries", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var report library.Report
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &report))
	assert.Equal(t, gabe, report.SteamID)
	assert.Equal(t, 4, report.GameCount)
	assert.Equal(t, []library.CountryCount{
		{CountryCode: "US", Count: 2},
		{CountryCode: "PL", Count: 1},
	}, report.Countries)
	assert.Equal(t, []int{5}, report.Unavailable)

	rr = do(t, h, http.MethodGet, "/library/private/countries", nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Contains(t, rr.Body.String(), "private")
}

func TestRouter_AppDetailsBatch(t *testing.T) {
	h := newTestRouter(t, newFakeSteam())

	rr := do(t, h, http.MethodPost, "/store/api/appdetails", []byte(`[10, "440", 5, "abc"]`))
	require.Equal(t, http.StatusOK, rr.Code)

	var body []map[string]steam.AppDetailsEntry
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body, 4)

	assert.True(t, body[0]["10"].Success)
	assert.Equal(t, "Counter-Strike", body[0]["10"].Data.Name)
	assert.True(t, body[1]["440"].Success)
	assert.Equal(t, []string{"Valve Corporation"}, body[1]["440"].Data.Developers)
	assert.False(t, body[2]["5"].Success)
	assert.Nil(t, body[2]["5"].Data)
	assert.False(t, body[3]["abc"].Success)
}

func TestRouter_AppDetailsBatch_FailedLookupShape(t *testing.T) {
	h := newTestRouter(t, newFakeSteam())

	rr := do(t, h, http.MethodPost, "/store/api/appdetails", []byte(`[5]`))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[{"5":{"success":false}}]`, rr.Body.String())
}

func TestRouter_AppDetailsBatch_BadRequests(t *testing.T) {
	h := newTestRouter(t, newFakeSteam())

	tests := []struct {
		name string
		body string
		want string
	}{
		{"empty array", `[]`, "appIds required"},
		{"not an array", `{"appIds":[10]}`, "invalid request body"},
		{"garbage", `not json`, "invalid request body"},
		{"too many", "[" + strings.Repeat("1,", maxAppIDs) + "1]", "at most"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, h, http.MethodPost, "/store/api/appdetails", []byte(tt.body))
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Contains(t, rr.Body.String(), tt.want)
		})
	}
}

func TestRouter_AppDetailsBatch_RateLimited(t *testing.T) {
	s := newFakeSteam()
	s.appErr = eris.Wrap(fetcher.ErrRateLimited, "cooling down")
	h := newTestRouter(t, s)

	rr := do(t, h, http.MethodPost, "/store/api/appdetails", []byte(`[10]`))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[{"10":{"success":false}}]`, rr.Body.String())
}

func TestRouter_SteamProxy(t *testing.T) {
	s := newFakeSteam()
	h := newTestRouter(t, s)

	rr := do(t, h, http.MethodGet, "/steam/ISteamUser/GetPlayerSummaries/v0002/?steamids=1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"response":{"ok":true}}`, rr.Body.String())

	s.mu.Lock()
	assert.Equal(t, "ISteamUser/GetPlayerSummaries/v0002/", s.proxyPath)
	assert.Equal(t, "1", s.proxyQuery.Get("steamids"))
	s.mu.Unlock()
}

func TestRouter_SteamProxyErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"rate limited", eris.Wrap(fetcher.ErrRateLimited, "cooling down"), http.StatusTooManyRequests},
		{"invalid path", eris.Wrap(steam.ErrInvalidPath, "path"), http.StatusBadRequest},
		{"missing key", steam.ErrMissingAPIKey, http.StatusServiceUnavailable},
		{"upstream status", eris.Wrap(&fetcher.StatusError{StatusCode: 403, URL: "x"}, "steam: proxy"), http.StatusBadGateway},
		{"other", eris.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newFakeSteam()
			s.err = tt.err
			rr := do(t, newTestRouter(t, s), http.MethodGet, "/steam/IFoo/Bar/v1/", nil)
			assert.Equal(t, tt.want, rr.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestRouter_NilServices(t *testing.T) {
	h := newRouter(nil, nil, nil, routerOptions{})

	for _, target := range []string{"/devIso2?developerName=x", "/player/x", "/library/x/countries", "/steam/IFoo/Bar/v1/"} {
		rr := do(t, h, http.MethodGet, target, nil)
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code, target)
	}
	rr := do(t, h, http.MethodPost, "/store/api/appdetails", []byte(`[10]`))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	rr = do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestAppIDText(t *testing.T) {
	assert.Equal(t, "10", appIDText(json.RawMessage(`10`)))
	assert.Equal(t, "440", appIDText(json.RawMessage(`" 440 "`)))
	assert.Equal(t, "", appIDText(json.RawMessage(`null`)))
}

func TestRouter_ServerErrorsHideUpstreamDetail(t *testing.T) {
	s := newFakeSteam()
	s.err = eris.Wrap(&url.Error{Op: "Get", URL: "http://api/x?key=SECRETKEY123", Err: eris.New("connection refused")}, "steam: proxy")
	h := newTestRouter(t, s)

	for _, target := range []string{"/steam/IFoo/Bar/v1/", "/player/gabelogannewell", "/library/gabelogannewell/countries"} {
		rr := do(t, h, http.MethodGet, target, nil)
		assert.Equal(t, http.StatusInternalServerError, rr.Code, target)
		assert.NotContains(t, rr.Body.String(), "SECRETKEY123", target)
		assert.JSONEq(t, `{"error":"internal server error"}`, rr.Body.String(), target)
	}
}
