// Package jobs provides background job processing functionality.
package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"mediaanalyzer/logger"
	"mediaanalyzer/models"
)

// Refresher rebuilds the cached catalog snapshot
type Refresher interface {
	Rebuild(ctx context.Context) (models.Collection, error)
	HasSnapshot(ctx context.Context) (bool, error)
}

// EventPruner removes old refresh history
type EventPruner interface {
	DeleteOldEvents(olderThan time.Duration) error
}

// Config controls which background jobs run
type Config struct {
	// Schedule is a standard cron expression for periodic rebuilds; empty disables them
	Schedule string
	// WarmOnStart builds a snapshot at startup when none is stored
	WarmOnStart bool
	// EventRetention is how long refresh events are kept; zero keeps them forever
	EventRetention time.Duration
	// Pruner deletes expired refresh events; nil disables pruning
	Pruner EventPruner
}

const pruneSchedule = "@daily"

// JobManager handles background job execution
type JobManager struct {
	refresher Refresher
	cfg       Config
	cron      *cron.Cron
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	running   bool
	mu        sync.RWMutex
	logger    zerolog.Logger
}

// NewJobManager creates a new job manager. The cron schedule is validated up front.
func NewJobManager(refresher Refresher, cfg Config) (*JobManager, error) {
	if cfg.Schedule != "" {
		if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
			return nil, fmt.Errorf("invalid refresh schedule %q: %w", cfg.Schedule, err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &JobManager{
		refresher: refresher,
		cfg:       cfg,
		ctx:       ctx,
		cancel:    cancel,
		running:   false,
		logger:    logger.WithComponent("jobs"),
	}, nil
}

// Start begins the job manager background processing
func (jm *JobManager) Start() {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	if jm.running {
		jm.logger.Info().Msg("job manager is already running")
		return
	}
	if jm.ctx.Err() != nil {
		// restarted after Stop
		jm.ctx, jm.cancel = context.WithCancel(context.Background())
	}
	ctx := jm.ctx

	jm.running = true
	jm.logger.Info().
		Str("schedule", jm.cfg.Schedule).
		Bool("warm_on_start", jm.cfg.WarmOnStart).
		Msg("starting job manager")

	if jm.cfg.WarmOnStart {
		jm.wg.Add(1)
		go jm.warmCache(ctx)
	}

	jm.cron = cron.New()
	if jm.cfg.Schedule != "" {
		// validated in NewJobManager
		_, _ = jm.cron.AddFunc(jm.cfg.Schedule, func() { jm.runRefresh(ctx, "scheduled") })
	}
	if jm.cfg.Pruner != nil && jm.cfg.EventRetention > 0 {
		_, _ = jm.cron.AddFunc(pruneSchedule, jm.pruneEvents)
	}
	jm.cron.Start()
}

// Stop stops the job manager and waits for its jobs to return. A job waiting
// on a rebuild stops waiting, but the rebuild itself is shared with HTTP
// callers and keeps running; see analyzer.Service.Wait.
func (jm *JobManager) Stop() {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	if !jm.running {
		return
	}

	jm.logger.Info().Msg("stopping job manager")
	jm.cancel()
	jm.running = false

	// Wait for cron-triggered jobs, then the rest
	<-jm.cron.Stop().Done()
	jm.wg.Wait()
	jm.logger.Info().Msg("job manager stopped")
}

// IsRunning returns whether the job manager is currently running
func (jm *JobManager) IsRunning() bool {
	jm.mu.RLock()
	defer jm.mu.RUnlock()
	return jm.running
}

// TriggerRefresh starts one rebuild in the background. It reports false when
// the manager is not running.
func (jm *JobManager) TriggerRefresh() bool {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	if !jm.running {
		jm.logger.Warn().Msg("cannot trigger refresh: job manager is not running")
		return false
	}

	ctx := jm.ctx
	jm.wg.Add(1)
	go func() {
		defer jm.wg.Done()
		jm.runRefresh(ctx, "manual")
	}()
	return true
}

// warmCache builds the first snapshot when none is stored yet
func (jm *JobManager) warmCache(ctx context.Context) {
	defer jm.wg.Done()

	ok, err := jm.refresher.HasSnapshot(ctx)
	if err != nil {
		// a corrupt snapshot is left for an explicit refresh to replace
		jm.logger.Warn().Err(err).Msg("skipping cache warm-up: snapshot unreadable")
		return
	}
	if ok {
		jm.logger.Debug().Msg("snapshot present, skipping cache warm-up")
		return
	}
	jm.runRefresh(ctx, "warm-up")
}

func (jm *JobManager) runRefresh(ctx context.Context, trigger string) {
	if ctx.Err() != nil {
		return
	}

	start := time.Now()
	records, err := jm.refresher.Rebuild(ctx)
	if err != nil {
		jm.logger.Error().Err(err).Str("trigger", trigger).Msg("background refresh failed")
		return
	}
	jm.logger.Info().
		Str("trigger", trigger).
		Int("records", len(records)).
		Dur("duration", time.Since(start)).
		Msg("background refresh completed")
}

func (jm *JobManager) pruneEvents() {
	if err := jm.cfg.Pruner.DeleteOldEvents(jm.cfg.EventRetention); err != nil {
		jm.logger.Error().Err(err).Msg("failed to prune refresh events")
		return
	}
	jm.logger.Debug().Dur("retention", jm.cfg.EventRetention).Msg("pruned refresh events")
}
