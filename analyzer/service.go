package analyzer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"mediaanalyzer/cache"
	"mediaanalyzer/logger"
	"mediaanalyzer/metrics"
	"mediaanalyzer/models"
	"mediaanalyzer/services"
)

// Catalog is the upstream media server as seen by the analyzer
type Catalog interface {
	ResolveUserID(ctx context.Context) (string, error)
	FetchAllItems(ctx context.Context, q services.ItemQuery) ([]services.CatalogItem, error)
}

// EventRecorder stores refresh history entries
type EventRecorder interface {
	Create(eventType models.RefreshEventType, message string, details interface{}) error
}

// Stage errors returned to callers. Each wraps the underlying cause.
var (
	ErrCacheRead    = errors.New("cache read failed")
	ErrUserLookup   = errors.New("user lookup failed")
	ErrCatalogFetch = errors.New("catalog fetch failed")
)

// rebuildKey collapses concurrent rebuilds into one flight
const rebuildKey = "rebuild"

// Service answers media queries from the cache, rebuilding from the catalog
// when asked to or when no snapshot exists yet.
type Service struct {
	catalog Catalog
	store   cache.Store
	events  EventRecorder
	group   singleflight.Group
	flights sync.WaitGroup
	logger  zerolog.Logger
}

// ServiceOption configures a Service
type ServiceOption func(*Service)

// WithEventRecorder records refresh history through r
func WithEventRecorder(r EventRecorder) ServiceOption {
	return func(s *Service) { s.events = r }
}

// NewService creates a new analyzer service
func NewService(catalog Catalog, store cache.Store, opts ...ServiceOption) *Service {
	s := &Service{
		catalog: catalog,
		store:   store,
		logger:  logger.WithComponent("analyzer"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Media returns the normalized collection. Without refresh a stored snapshot
// is served as is; an unreadable snapshot is an error, never a reason to rebuild.
func (s *Service) Media(ctx context.Context, refresh bool) (models.Collection, error) {
	log := logger.FromContext(ctx)

	if !refresh {
		c, err := s.store.Load(ctx)
		switch {
		case err == nil:
			metrics.IncCacheLookup(s.store.Name(), "hit")
			log.Debug().Int("records", len(c)).Msg("serving cached snapshot")
			return c, nil
		case errors.Is(err, cache.ErrNotFound):
			metrics.IncCacheLookup(s.store.Name(), "miss")
			log.Info().Msg("no cached snapshot, rebuilding")
		case errors.Is(err, cache.ErrCorrupt):
			metrics.IncCacheLookup(s.store.Name(), "corrupt")
			log.Error().Err(err).Msg("cached snapshot is corrupt")
			return nil, fmt.Errorf("%w: %w", ErrCacheRead, err)
		default:
			metrics.IncCacheLookup(s.store.Name(), "error")
			log.Error().Err(err).Msg("failed to read cached snapshot")
			return nil, fmt.Errorf("%w: %w", ErrCacheRead, err)
		}
	}

	return s.Rebuild(ctx)
}

// HasSnapshot reports whether a readable snapshot is stored
func (s *Service) HasSnapshot(ctx context.Context) (bool, error) {
	_, err := s.store.Load(ctx)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, cache.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// Rebuild fetches the whole catalog and replaces the snapshot. Concurrent
// callers share one rebuild; a caller whose context ends stops waiting but
// does not cancel the rebuild for the others.
func (s *Service) Rebuild(ctx context.Context) (models.Collection, error) {
	ch := s.group.DoChan(rebuildKey, func() (interface{}, error) {
		s.flights.Add(1)
		defer s.flights.Done()
		return s.rebuild(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			logger.FromContext(ctx).Debug().Msg("joined in-flight rebuild")
		}
		return res.Val.(models.Collection), nil
	}
}

// Wait blocks until no rebuild is running or ctx ends. Rebuilds outlive the
// callers that started them, so call it before closing the store.
func (s *Service) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.flights.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) rebuild(ctx context.Context) (models.Collection, error) {
	start := time.Now()
	s.recordEvent(models.EventRefreshStarted, "Catalog rebuild started", nil)

	records, fetched, err := s.compute(ctx)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		metrics.RecordRefresh(false, elapsed)
		s.logger.Error().Err(err).Float64("duration_seconds", elapsed).Msg("catalog rebuild failed")
		s.recordEvent(models.EventRefreshFailed, "Catalog rebuild failed", map[string]interface{}{
			"error":            err.Error(),
			"duration_seconds": elapsed,
		})
		return nil, err
	}

	if err := s.store.Save(ctx, records); err != nil {
		// the fresh collection is still served
		metrics.IncCacheWriteFailure(s.store.Name())
		s.logger.Warn().Err(err).Str("backend", s.store.Name()).Msg("cache write failed")
		s.recordEvent(models.EventCacheWriteFailed, "Cache write failed", map[string]interface{}{
			"error":   err.Error(),
			"backend": s.store.Name(),
		})
	}

	elapsed = time.Since(start).Seconds()
	metrics.RecordRefresh(true, elapsed)
	s.logger.Info().
		Int("items_fetched", fetched).
		Int("records", len(records)).
		Float64("duration_seconds", elapsed).
		Msg("catalog rebuild completed")
	s.recordEvent(models.EventRefreshCompleted, "Catalog rebuild completed", map[string]interface{}{
		"records":          len(records),
		"items_fetched":    fetched,
		"duration_seconds": elapsed,
	})
	return records, nil
}

// compute runs identity resolution, the paged fetch, filtering and normalization
func (s *Service) compute(ctx context.Context) (models.Collection, int, error) {
	userID, err := s.catalog.ResolveUserID(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrUserLookup, err)
	}

	items, err := s.catalog.FetchAllItems(ctx, services.MediaItemQuery(userID))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrCatalogFetch, err)
	}
	metrics.RecordItemsFetched(len(items))

	records := NormalizeAll(FilterItems(items))
	metrics.RecordRecordsProduced(len(records))
	return records, len(items), nil
}

func (s *Service) recordEvent(eventType models.RefreshEventType, message string, details interface{}) {
	if s.events == nil {
		return
	}
	if err := s.events.Create(eventType, message, details); err != nil {
		s.logger.Warn().Err(err).Str("event_type", string(eventType)).Msg("failed to record refresh event")
	}
}
