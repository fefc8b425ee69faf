// Package main provides the main entry point for the media analyzer service.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"mediaanalyzer/analyzer"
	"mediaanalyzer/cache"
	"mediaanalyzer/config"
	"mediaanalyzer/database"
	"mediaanalyzer/jobs"
	"mediaanalyzer/logger"
	"mediaanalyzer/middleware"
	"mediaanalyzer/models"
	"mediaanalyzer/repository"
	"mediaanalyzer/services"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 200
	shutdownTimeout     = 10 * time.Second
)

// App represents the application with its dependencies
type App struct {
	analyzer   *analyzer.Service
	eventRepo  *repository.RefreshEventRepository
	jobManager *jobs.JobManager
}

func main() {
	cfg, warnings, err := config.Load()
	logger.Configure(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	log := logger.WithComponent("main")
	for _, w := range warnings {
		log.Warn().Msg(w)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	if err := run(cfg); err != nil {
		log.Fatal().Err(err).Msg("server exited with error")
	}
}

func run(cfg config.Config) error {
	log := logger.WithComponent("main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := database.NewDB(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close database")
		}
	}()

	if err := db.InitSchema(); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	store, closeStore, err := openStore(ctx, cfg, db)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			log.Error().Err(err).Msg("failed to close cache store")
		}
	}()

	eventRepo := repository.NewRefreshEventRepository(db)
	jellyfin := services.NewJellyfinService(cfg.JellyfinURL, cfg.APIKey, services.WithTimeout(cfg.UpstreamTimeout))
	svc := analyzer.NewService(jellyfin, store, analyzer.WithEventRecorder(eventRepo))
	// Runs after the server and jobs stop, before the store and db close
	defer func() {
		waitCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := svc.Wait(waitCtx); err != nil {
			log.Warn().Err(err).Msg("rebuild still running at shutdown")
		}
	}()

	jobManager, err := jobs.NewJobManager(svc, jobs.Config{
		Schedule:       cfg.RefreshSchedule,
		WarmOnStart:    cfg.WarmOnStart,
		EventRetention: cfg.EventRetention,
		Pruner:         eventRepo,
	})
	if err != nil {
		return err
	}
	jobManager.Start()
	defer jobManager.Stop()

	app := &App{
		analyzer:   svc,
		eventRepo:  eventRepo,
		jobManager: jobManager,
	}

	// No write timeout: /api/media may run a full rebuild synchronously
	server := &http.Server{
		Addr:        cfg.Addr(),
		Handler:     newRouter(app, cfg),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Str("cache_backend", store.Name()).
			Str("jellyfin_url", cfg.JellyfinURL).
			Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}

// openStore builds the configured snapshot backend. The returned func releases
// whatever connection the backend holds.
func openStore(ctx context.Context, cfg config.Config, db *database.DB) (cache.Store, func() error, error) {
	noop := func() error { return nil }

	switch cfg.CacheBackend {
	case config.CacheBackendMemory:
		return cache.NewMemoryStore(), noop, nil
	case config.CacheBackendSQLite:
		return cache.NewSQLiteStore(repository.NewSnapshotRepository(db), cache.DefaultSnapshotKey), noop, nil
	case config.CacheBackendRedis:
		client, err := cache.DialRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, nil, err
		}
		return cache.NewRedisStore(client, cfg.RedisKey), client.Close, nil
	default:
		return cache.NewOSFileStore(cfg.CacheFile), noop, nil
	}
}

func newRouter(app *App, cfg config.Config) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.RequestID, middleware.AccessLog, middleware.Metrics, middleware.CORS(cfg.CORSOrigins))

	// Health check endpoint
	r.HandleFunc("/health", healthHandler).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	// API routes
	api := r.PathPrefix("/api").Subrouter()
	api.Use(middleware.RefreshRateLimit(cfg.RefreshRateLimit))
	api.HandleFunc("/media", app.getMediaHandler).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/stats", app.getStatsHandler).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/refresh", app.triggerRefreshHandler).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/refreshes", app.getRefreshesHandler).Methods(http.MethodGet, http.MethodOptions)

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		logger.FromContext(r.Context()).Error().Err(err).Msg("failed to write response")
	}
}

// getMediaHandler serves the normalized collection, rebuilding it when
// refresh=true or when nothing is cached yet
func (app *App) getMediaHandler(w http.ResponseWriter, r *http.Request) {
	records, err := app.analyzer.Media(r.Context(), wantsRefresh(r))
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, r, http.StatusOK, analyzer.ApplyFilters(records, parseFilter(r)))
}

func (app *App) getStatsHandler(w http.ResponseWriter, r *http.Request) {
	records, err := app.analyzer.Media(r.Context(), wantsRefresh(r))
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, r, http.StatusOK, analyzer.Summarize(analyzer.ApplyFilters(records, parseFilter(r))))
}

func (app *App) triggerRefreshHandler(w http.ResponseWriter, r *http.Request) {
	if app.jobManager == nil || !app.jobManager.TriggerRefresh() {
		writeError(w, r, http.StatusServiceUnavailable, errors.New("background refresh is not available"))
		return
	}

	writeJSON(w, r, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (app *App) getRefreshesHandler(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, r, http.StatusBadRequest, fmt.Errorf("invalid limit %q", v))
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	resp := models.RefreshHistoryResponse{
		Events:     []models.RefreshEvent{},
		Statistics: &models.RefreshStats{},
	}
	if app.eventRepo != nil {
		events, err := app.eventRepo.GetRecent(limit)
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, fmt.Errorf("failed to get refresh events: %w", err))
			return
		}
		if events != nil {
			resp.Events = events
		}

		stats, err := app.eventRepo.GetStatistics()
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, fmt.Errorf("failed to get refresh statistics: %w", err))
			return
		}
		resp.Statistics = stats
	}

	writeJSON(w, r, http.StatusOK, resp)
}

// wantsRefresh reports whether the caller forced a rebuild; only "true" in any case counts
func wantsRefresh(r *http.Request) bool {
	return strings.EqualFold(r.URL.Query().Get("refresh"), "true")
}

func parseFilter(r *http.Request) analyzer.Filter {
	q := r.URL.Query()
	return analyzer.Filter{
		Search:           strings.TrimSpace(q.Get("q")),
		VideoCodecs:      listParam(q["video_codec"]),
		ResolutionGroups: listParam(q["resolution_group"]),
		Types:            listParam(q["type"]),
	}
}

// listParam accepts both repeated parameters and comma-separated values
func listParam(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.FromContext(r.Context()).Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	logger.FromContext(r.Context()).Error().Err(err).Int("status", status).Msg("request failed")
	writeJSON(w, r, status, map[string]string{"error": err.Error()})
}
