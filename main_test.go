package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"mediaanalyzer/analyzer"
	"mediaanalyzer/cache"
	"mediaanalyzer/config"
	"mediaanalyzer/database"
	"mediaanalyzer/jobs"
	"mediaanalyzer/models"
	"mediaanalyzer/repository"
	"mediaanalyzer/services"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

// fakeJellyfin serves /Users and a single page of /Items
type fakeJellyfin struct {
	users     []services.User
	items     []services.CatalogItem
	userCalls atomic.Int32
	itemCalls atomic.Int32
	failItems bool
}

func (f *fakeJellyfin) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/Users":
		f.userCalls.Add(1)
		_ = json.NewEncoder(w).Encode(f.users)
	case "/Items":
		f.itemCalls.Add(1)
		if f.failItems {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(services.ItemsResponse{Items: f.items, TotalRecordCount: len(f.items)})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func sampleLibrary() []services.CatalogItem {
	return []services.CatalogItem{
		{
			Name:         "Arrival",
			Type:         "Video",
			Path:         "/media/movies/arrival.mkv",
			LocationType: "FileSystem",
			RunTimeTicks: ptr(int64(36_000_000_000)),
			MediaSources: []services.MediaSource{{Container: ptr("mkv"), Size: ptr(int64(1_073_741_824))}},
			MediaStreams: []services.MediaStream{
				{Type: "Video", Codec: ptr("h264"), Width: ptr(1920), Height: ptr(1080), IsInterlaced: ptr(false)},
				{Type: "Audio", Codec: ptr("aac"), Channels: ptr(2), BitRate: ptr(int64(128_000)), SampleRate: ptr(48000)},
			},
		},
		{
			Name:         "Pilot",
			Type:         "Episode",
			SeriesName:   "Severance",
			SeasonName:   "Season 1",
			IndexNumber:  ptr(1),
			Path:         "/media/tv/severance/s01e01.mp4",
			LocationType: "FileSystem",
			RunTimeTicks: ptr(int64(18_000_000_000)),
			MediaSources: []services.MediaSource{{Container: ptr("mp4"), Size: ptr(int64(2_147_483_648))}},
			MediaStreams: []services.MediaStream{
				{Type: "Video", Codec: ptr("hevc"), Width: ptr(3840), Height: ptr(2160), VideoRangeType: ptr("HDR10")},
			},
		},
		{Name: "Collection", Type: "BoxSet", Path: "/media/boxsets/c", LocationType: "FileSystem"},
		{Name: "Remote", Type: "Movie", Path: "/remote/x.mkv", LocationType: "Remote"},
	}
}

// testEnv wires the real service stack against a fake upstream and an in-memory cache
type testEnv struct {
	app    *App
	router http.Handler
	store  cache.Store
	fs     afero.Fs
}

func setupTestApp(t *testing.T, upstream *fakeJellyfin) *testEnv {
	t.Helper()

	testDB, err := database.NewDB(":memory:")
	require.NoError(t, err)
	require.NoError(t, testDB.InitSchema())

	srv := httptest.NewServer(upstream)
	fsys := afero.NewMemMapFs()
	store := cache.NewFileStore(fsys, "media_cache.json")
	eventRepo := repository.NewRefreshEventRepository(testDB)
	svc := analyzer.NewService(
		services.NewJellyfinService(srv.URL, "test-key"),
		store,
		analyzer.WithEventRecorder(eventRepo),
	)

	jobManager, err := jobs.NewJobManager(svc, jobs.Config{})
	require.NoError(t, err)
	jobManager.Start()

	t.Cleanup(func() {
		jobManager.Stop()
		srv.Close()
		if err := testDB.Close(); err != nil {
			t.Logf("Failed to close test database: %v", err)
		}
	})

	app := &App{
		analyzer:   svc,
		eventRepo:  eventRepo,
		jobManager: jobManager,
	}
	return &testEnv{app: app, router: newRouter(app, config.Default()), store: store, fs: fsys}
}

func doRequest(t *testing.T, handler http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func decodeCollection(t *testing.T, rr *httptest.ResponseRecorder) models.Collection {
	t.Helper()
	var records models.Collection
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &records))
	return records
}

func TestHealthHandler(t *testing.T) {
	env := setupTestApp(t, &fakeJellyfin{})

	rr := doRequest(t, env.router, http.MethodGet, "/health")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "OK", rr.Body.String())
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
}

func TestGetMediaHandler_EmptyCacheBuildsCollection(t *testing.T) {
	upstream := &fakeJellyfin{users: []services.User{{ID: "u1"}}, items: sampleLibrary()}
	env := setupTestApp(t, upstream)

	rr := doRequest(t, env.router, http.MethodGet, "/api/media")

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	records := decodeCollection(t, rr)
	require.Len(t, records, 2)

	movie := records[0]
	assert.Equal(t, "Arrival", movie.Name)
	assert.Equal(t, models.MediaTypeMovie, movie.Type)
	assert.Equal(t, "mkv", movie.Container)
	assert.Equal(t, 1024.0, movie.SizeMB)
	assert.Equal(t, 60.0, movie.DurationMin)
	assert.Equal(t, "1920x1080", movie.Resolution)
	assert.Equal(t, models.ScanProgressive, movie.ScanType)
	assert.Equal(t, 1024.0, movie.EfficiencyMBPerHour)

	episode := records[1]
	assert.Equal(t, models.MediaTypeEpisode, episode.Type)
	assert.Equal(t, "Severance", episode.SeriesName)
	require.NotNil(t, episode.EpisodeNumber)
	assert.Equal(t, 1, *episode.EpisodeNumber)

	// the rebuilt collection was persisted
	stored, err := env.store.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestGetMediaHandler_CacheHitSkipsUpstream(t *testing.T) {
	upstream := &fakeJellyfin{users: []services.User{{ID: "u1"}}, items: sampleLibrary()}
	env := setupTestApp(t, upstream)
	require.NoError(t, env.store.Save(context.Background(), models.Collection{{Name: "Cached", Type: models.MediaTypeMovie}}))

	rr := doRequest(t, env.router, http.MethodGet, "/api/media?refresh=false")

	require.Equal(t, http.StatusOK, rr.Code)
	records := decodeCollection(t, rr)
	require.Len(t, records, 1)
	assert.Equal(t, "Cached", records[0].Name)
	assert.Equal(t, int32(0), upstream.userCalls.Load())
	assert.Equal(t, int32(0), upstream.itemCalls.Load())
}

func TestGetMediaHandler_RefreshIsCaseInsensitive(t *testing.T) {
	upstream := &fakeJellyfin{users: []services.User{{ID: "u1"}}, items: sampleLibrary()}
	env := setupTestApp(t, upstream)
	require.NoError(t, env.store.Save(context.Background(), models.Collection{{Name: "Stale"}}))

	rr := doRequest(t, env.router, http.MethodGet, "/api/media?refresh=TRUE")

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decodeCollection(t, rr), 2)
	assert.Equal(t, int32(1), upstream.itemCalls.Load())
}

func TestGetMediaHandler_EmptyLibraryReturnsEmptyArray(t *testing.T) {
	upstream := &fakeJellyfin{users: []services.User{{ID: "u1"}}}
	env := setupTestApp(t, upstream)

	rr := doRequest(t, env.router, http.MethodGet, "/api/media")

	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, "[]", rr.Body.String())
}

func TestGetMediaHandler_Errors(t *testing.T) {
	tests := []struct {
		name        string
		upstream    *fakeJellyfin
		corrupt     bool
		wantMessage string
		wantItems   int32
	}{
		{
			name:        "corrupt cache",
			upstream:    &fakeJellyfin{users: []services.User{{ID: "u1"}}, items: sampleLibrary()},
			corrupt:     true,
			wantMessage: "cache read failed",
		},
		{
			name:        "no users",
			upstream:    &fakeJellyfin{items: sampleLibrary()},
			wantMessage: "user lookup",
		},
		{
			name:        "items unavailable",
			upstream:    &fakeJellyfin{users: []services.User{{ID: "u1"}}, failItems: true},
			wantMessage: "catalog fetch failed",
			wantItems:   1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestApp(t, tt.upstream)
			if tt.corrupt {
				require.NoError(t, afero.WriteFile(env.fs, "media_cache.json", []byte("{not json"), 0o644))
			}

			rr := doRequest(t, env.router, http.MethodGet, "/api/media")

			assert.Equal(t, http.StatusInternalServerError, rr.Code)
			var body map[string]string
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			assert.Contains(t, body["error"], tt.wantMessage)
			assert.Equal(t, tt.wantItems, tt.upstream.itemCalls.Load())
		})
	}
}

func TestGetMediaHandler_Filters(t *testing.T) {
	upstream := &fakeJellyfin{users: []services.User{{ID: "u1"}}, items: sampleLibrary()}
	env := setupTestApp(t, upstream)

	tests := []struct {
		query string
		want  []string
	}{
		{query: "", want: []string{"Arrival", "Pilot"}},
		{query: "q=severance", want: []string{"Pilot"}},
		{query: "type=Movie", want: []string{"Arrival"}},
		{query: "video_codec=HEVC,H264", want: []string{"Arrival", "Pilot"}},
		{query: "resolution_group=" + url.QueryEscape(analyzer.Res4K), want: []string{"Pilot"}},
		{query: "type=Episode&video_codec=H264", want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rr := doRequest(t, env.router, http.MethodGet, "/api/media?"+tt.query)
			require.Equal(t, http.StatusOK, rr.Code)

			names := []string{}
			for _, rec := range decodeCollection(t, rr) {
				names = append(names, rec.Name)
			}
			assert.Equal(t, tt.want, names)
		})
	}
	assert.Equal(t, int32(1), upstream.itemCalls.Load())
}

func TestGetStatsHandler(t *testing.T) {
	upstream := &fakeJellyfin{users: []services.User{{ID: "u1"}}, items: sampleLibrary()}
	env := setupTestApp(t, upstream)

	rr := doRequest(t, env.router, http.MethodGet, "/api/stats")

	require.Equal(t, http.StatusOK, rr.Code)
	var summary models.LibrarySummary
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &summary))
	assert.Equal(t, 2, summary.TotalItems)
	assert.Equal(t, 3.0, summary.TotalSizeGiB)
	assert.Equal(t, 90.0, summary.TotalMinutes)
	assert.Equal(t, 1, summary.ByType["Movie"])
	assert.Equal(t, 1, summary.ByType["Episode"])
	assert.Equal(t, 1, summary.ByResolution[analyzer.Res4K])
	assert.Equal(t, 1, summary.ByResolution[analyzer.Res1080p])
	assert.Equal(t, []string{analyzer.Res4K, analyzer.Res1080p}, summary.ResolutionOrder)
	assert.Equal(t, 1, summary.ByHDR["HDR10"])
}

func TestTriggerRefreshHandler(t *testing.T) {
	upstream := &fakeJellyfin{users: []services.User{{ID: "u1"}}, items: sampleLibrary()}
	env := setupTestApp(t, upstream)

	rr := doRequest(t, env.router, http.MethodPost, "/api/refresh")

	assert.Equal(t, http.StatusAccepted, rr.Code)
	assert.JSONEq(t, `{"status":"accepted"}`, rr.Body.String())
	assert.Eventually(t, func() bool {
		ok, err := env.app.analyzer.HasSnapshot(context.Background())
		return err == nil && ok
	}, 5*time.Second, 10*time.Millisecond)
}

func TestTriggerRefreshHandler_JobsStopped(t *testing.T) {
	env := setupTestApp(t, &fakeJellyfin{})
	env.app.jobManager.Stop()

	rr := doRequest(t, env.router, http.MethodPost, "/api/refresh")

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestGetRefreshesHandler(t *testing.T) {
	upstream := &fakeJellyfin{users: []services.User{{ID: "u1"}}, items: sampleLibrary()}
	env := setupTestApp(t, upstream)

	require.Equal(t, http.StatusOK, doRequest(t, env.router, http.MethodGet, "/api/media").Code)

	rr := doRequest(t, env.router, http.MethodGet, "/api/refreshes?limit=10")

	require.Equal(t, http.StatusOK, rr.Code)
	var resp models.RefreshHistoryResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Events, 2)
	assert.Equal(t, models.EventRefreshCompleted, resp.Events[0].Type)
	assert.Equal(t, models.EventRefreshStarted, resp.Events[1].Type)
	require.NotNil(t, resp.Statistics)
	assert.Equal(t, 1, resp.Statistics.TotalRefreshes)
	assert.Equal(t, 2, resp.Statistics.LastRecordCount)
}

func TestGetRefreshesHandler_InvalidLimit(t *testing.T) {
	env := setupTestApp(t, &fakeJellyfin{})

	for _, limit := range []string{"abc", "0", "-3"} {
		rr := doRequest(t, env.router, http.MethodGet, "/api/refreshes?limit="+limit)
		assert.Equal(t, http.StatusBadRequest, rr.Code, "limit=%s", limit)
	}
}

func TestRouter_CORSAndMetrics(t *testing.T) {
	upstream := &fakeJellyfin{users: []services.User{{ID: "u1"}}}
	env := setupTestApp(t, upstream)

	req := httptest.NewRequest(http.MethodGet, "/api/media", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))

	preflight := httptest.NewRequest(http.MethodOptions, "/api/refresh", nil)
	preflight.Header.Set("Origin", "http://localhost:5173")
	rr = httptest.NewRecorder()
	env.router.ServeHTTP(rr, preflight)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = doRequest(t, env.router, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.Contains(rr.Body.String(), "mediaanalyzer_http_request_duration_seconds"))
}

func TestListParam(t *testing.T) {
	assert.Nil(t, listParam(nil))
	assert.Equal(t, []string{"H264", "HEVC", "AV1"}, listParam([]string{"H264, HEVC", "", "AV1,"}))
}

func TestOpenStore(t *testing.T) {
	testDB, err := database.NewDB(":memory:")
	require.NoError(t, err)
	require.NoError(t, testDB.InitSchema())
	defer func() {
		if err := testDB.Close(); err != nil {
			t.Logf("Failed to close test database: %v", err)
		}
	}()

	tests := []struct {
		backend string
		want    string
	}{
		{backend: config.CacheBackendFile, want: "file"},
		{backend: config.CacheBackendMemory, want: "memory"},
		{backend: config.CacheBackendSQLite, want: "sqlite"},
	}
	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			cfg := config.Default()
			cfg.CacheBackend = tt.backend
			cfg.CacheFile = t.TempDir() + "/media_cache.json"

			store, closeStore, err := openStore(context.Background(), cfg, testDB)
			require.NoError(t, err)
			defer func() { assert.NoError(t, closeStore()) }()
			assert.Equal(t, tt.want, store.Name())
		})
	}
}
