package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/devmap/devmap/internal/fetcher"
	"github.com/devmap/devmap/internal/library"
	"github.com/devmap/devmap/internal/resolve"
	"github.com/devmap/devmap/internal/steam"
)

var servePort int

// maxAppIDs bounds a single batch appdetails request.
const maxAppIDs = 100

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the developer lookup and Steam proxy server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(env.Matcher, env.Steam, env.Library, routerOptions{CORSOrigins: cfg.Server.CORSOrigins, MaxConcurrent: cfg.Steam.MaxConcurrent}),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("server shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("starting server",
			zap.Int("port", port),
			zap.Int("reference_entries", env.Index.Len()),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// locator produces a library report for a player.
type locator interface {
	Locate(ctx context.Context, steamID string) (*library.Report, error)
}

type routerOptions struct {
	CORSOrigins   []string
	MaxConcurrent int
}

type server struct {
	resolver      library.Resolver
	steam         steam.Client
	locator       locator
	maxConcurrent int
}

// newRouter builds the HTTP handler. Any of the services may be nil, in
// which case the routes that need it answer 503.
func newRouter(resolver library.Resolver, client steam.Client, loc locator, opts routerOptions) http.Handler {
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 4
	}
	s := &server{resolver: resolver, steam: client, locator: loc, maxConcurrent: opts.MaxConcurrent}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(exposeRequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders: []string{middleware.RequestIDHeader},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/devIso2", s.handleDevIso2)
	r.Get("/player/{name}", s.handlePlayer)
	r.Get("/library/{steamid}/countries", s.handleLibrary)
	r.Post("/store/api/appdetails", s.handleAppDetails)
	r.Get("/steam/*", s.handleSteamProxy)

	return r
}

type devIso2Response struct {
	ISO2        *string        `json:"iso2"`
	MatchedName string         `json:"matched_name,omitempty"`
	Score       *float64       `json:"score,omitempty"`
	Stage       *resolve.Stage `json:"stage,omitempty"`
}

func (s *server) handleDevIso2(w http.ResponseWriter, r *http.Request) {
	if s.resolver == nil {
		writeError(w, http.StatusServiceUnavailable, "resolver unavailable")
		return
	}

	name := r.URL.Query().Get("developerName")
	res, err := s.resolver.Match(name)
	if err != nil {
		zap.L().Error("resolve developer", zap.String("name", name), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "resolver unavailable")
		return
	}

	var resp devIso2Response
	if res.Matched() {
		code := res.CountryCode()
		resp.ISO2 = &code
	}
	if explain, _ := strconv.ParseBool(r.URL.Query().Get("explain")); explain {
		score, stage := res.Score, res.Stage
		resp.Score = &score
		resp.Stage = &stage
		if res.Matched() {
			resp.MatchedName = res.Entry.RawName
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handlePlayer(w http.ResponseWriter, r *http.Request) {
	if s.steam == nil {
		writeError(w, http.StatusServiceUnavailable, "steam client unavailable")
		return
	}

	name := chi.URLParam(r, "name")
	steamID, err := s.steam.ResolvePlayer(r.Context(), name)
	if err != nil {
		writeSteamError(w, err)
		return
	}
	summary, err := s.steam.PlayerSummary(r.Context(), steamID)
	if err != nil {
		writeSteamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"steamid": steamID,
		"player":  summary,
	})
}

func (s *server) handleLibrary(w http.ResponseWriter, r *http.Request) {
	if s.steam == nil || s.locator == nil {
		writeError(w, http.StatusServiceUnavailable, "steam client unavailable")
		return
	}

	steamID, err := s.steam.ResolvePlayer(r.Context(), chi.URLParam(r, "steamid"))
	if err != nil {
		writeSteamError(w, err)
		return
	}
	report, err := s.locator.Locate(r.Context(), steamID)
	if err != nil {
		writeSteamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// appDetailsResult is one element of the batch response, keyed by app id.
type appDetailsResult map[string]steam.AppDetailsEntry

func (s *server) handleAppDetails(w http.ResponseWriter, r *http.Request) {
	if s.steam == nil {
		writeError(w, http.StatusServiceUnavailable, "steam client unavailable")
		return
	}

	var raw []json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(raw) == 0 {
		writeError(w, http.StatusBadRequest, "appIds required")
		return
	}
	if len(raw) > maxAppIDs {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("at most %d appIds per request", maxAppIDs))
		return
	}

	results := make([]appDetailsResult, len(raw))
	g, gctx := errgroup.WithContext(r.Context())
	g.SetLimit(s.maxConcurrent)

	for i, msg := range raw {
		id := appIDText(msg)
		g.Go(func() error {
			details, err := s.steam.AppDetails(gctx, id)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				zap.L().Debug("app details lookup failed", zap.String("appid", id), zap.Error(err))
				results[i] = appDetailsResult{id: {Success: false}}
				return nil
			}
			results[i] = appDetailsResult{id: {Success: true, Data: details}}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		writeError(w, http.StatusServiceUnavailable, "request cancelled")
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// appIDText accepts an id given either as a JSON number or a JSON string.
func appIDText(msg json.RawMessage) string {
	var s string
	if err := json.Unmarshal(msg, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return string(bytes.TrimSpace(msg))
}

func (s *server) handleSteamProxy(w http.ResponseWriter, r *http.Request) {
	if s.steam == nil {
		writeError(w, http.StatusServiceUnavailable, "steam client unavailable")
		return
	}

	data, err := s.steam.Proxy(r.Context(), chi.URLParam(r, "*"), r.URL.Query())
	if err != nil {
		writeSteamError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// steamErrorStatus maps Steam and fetcher errors to an HTTP status.
func steamErrorStatus(err error) int {
	var statusErr *fetcher.StatusError
	switch {
	case errors.Is(err, steam.ErrPlayerNotFound):
		return http.StatusNotFound
	case errors.Is(err, steam.ErrPrivateLibrary):
		return http.StatusForbidden
	case errors.Is(err, steam.ErrInvalidAppID), errors.Is(err, steam.ErrInvalidPath):
		return http.StatusBadRequest
	case errors.Is(err, steam.ErrMissingAPIKey):
		return http.StatusServiceUnavailable
	case errors.Is(err, fetcher.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &statusErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeSteamError answers with the error text for client errors only.
// Server-side failures get the status text so upstream details stay in the logs.
func writeSteamError(w http.ResponseWriter, err error) {
	status := steamErrorStatus(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		zap.L().Error("steam request failed", zap.Int("status", status), zap.Error(err))
		msg = strings.ToLower(http.StatusText(status))
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("encode response", zap.Error(err))
	}
}

// exposeRequestID echoes the id assigned by middleware.RequestID.
func exposeRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(middleware.RequestIDHeader, middleware.GetReqID(r.Context()))
		next.ServeHTTP(w, r)
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		fields := []zap.Field{
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("latency", time.Since(start)),
		}
		if status >= http.StatusInternalServerError {
			zap.L().Warn("http request", fields...)
			return
		}
		zap.L().Debug("http request", fields...)
	})
}
