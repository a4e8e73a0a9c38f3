package app

import (
	"context"
	"errors"
	"fmt"
	"log"

	"driver-scheduler/internal/config"
	"driver-scheduler/internal/database"
	"driver-scheduler/internal/distance"
	"driver-scheduler/internal/models"
	"driver-scheduler/internal/postgres"
	"driver-scheduler/internal/publish"
	"driver-scheduler/internal/rediscache"
	"driver-scheduler/internal/scheduling"
	"driver-scheduler/internal/sqlite"
)

// Publisher receives every finished run
type Publisher interface {
	Publish(ctx context.Context, result *models.ScheduleResult) error
	Close() error
}

// App holds the scheduling stack shared by the HTTP server and the batch CLI
type App struct {
	cfg       config.Config
	cache     database.DistanceCacheRepository
	store     *sqlite.Store
	runs      database.RunRepository
	provider  *distance.OSRMProvider
	scheduler scheduling.Scheduler
	publisher Publisher
	closers   []func() error
}

// New opens the configured cache backend and optional run history and
// publisher, then builds the provider and scheduler on top of them
func New(ctx context.Context, cfg config.Config) (*App, error) {
	a := &App{cfg: cfg}

	if cfg.CacheBackend == config.CacheBackendSQLite || cfg.RunHistory {
		if err := a.openStore(); err != nil {
			return nil, err
		}
		if cfg.RunHistory {
			a.runs = a.store.Runs()
		}
	}

	cache, err := a.openCache(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.cache = cache

	if len(cfg.KafkaBrokers) > 0 {
		a.publisher = publish.NewResultPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		a.closers = append(a.closers, a.publisher.Close)
	}

	a.provider = distance.NewOSRMProvider(cache, distance.Options{
		BaseURL:     cfg.OSRMBaseURL,
		Timeout:     cfg.OSRMTimeout,
		MinInterval: cfg.ProviderMinInterval,
	})
	a.scheduler = scheduling.NewGreedyScheduler(a.provider, cfg.Scheduler)

	n, err := cache.Len(ctx)
	if err != nil {
		log.Printf("[APP] Could not count cache entries: %v", err)
	}
	log.Printf("[APP] Ready: cache_backend=%s cached_segments=%d osrm=%s run_history=%t kafka=%t",
		cfg.CacheBackend, n, cfg.OSRMBaseURL, cfg.RunHistory, a.publisher != nil)

	return a, nil
}

func (a *App) openStore() error {
	path := a.cfg.SQLitePath
	if path == "" {
		var err error
		path, err = database.GetDefaultDBPath()
		if err != nil {
			return fmt.Errorf("failed to resolve database path: %w", err)
		}
	}
	store, err := sqlite.New(path)
	if err != nil {
		return fmt.Errorf("failed to open sqlite store: %w", err)
	}
	a.store = store
	a.closers = append(a.closers, store.Close)
	return nil
}

func (a *App) openCache(ctx context.Context) (database.DistanceCacheRepository, error) {
	switch a.cfg.CacheBackend {
	case config.CacheBackendFile:
		cache, err := database.NewFileDistanceCache(a.cfg.CacheFile)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize distance cache: %w", err)
		}
		a.closers = append(a.closers, cache.Close)
		return cache, nil

	case config.CacheBackendSQLite:
		return a.store.DistanceCache(), nil

	case config.CacheBackendRedis:
		cache, err := rediscache.New(ctx, a.cfg.RedisAddr, a.cfg.RedisPassword, a.cfg.RedisCacheKey)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize redis cache: %w", err)
		}
		a.closers = append(a.closers, cache.Close)
		return cache, nil

	case config.CacheBackendPostgres:
		db, err := postgres.Open(ctx, a.cfg.PGDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		cache, err := postgres.NewDistanceCache(ctx, db)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize postgres cache: %w", err)
		}
		return cache, nil
	}
	return nil, fmt.Errorf("unknown cache backend %q", a.cfg.CacheBackend)
}

// Run schedules one request under the configured run timeout. The result is
// stored and published when those are enabled; failures there are logged and
// do not affect the returned result.
func (a *App) Run(ctx context.Context, req *scheduling.ScheduleRequest) (*models.ScheduleResult, error) {
	runCtx, cancel := context.WithTimeout(ctx, a.cfg.RunTimeout)
	defer cancel()

	result, err := a.scheduler.Optimize(runCtx, req)
	if err != nil {
		return nil, err
	}

	// Bookkeeping must survive a run that ended on its deadline
	after := context.WithoutCancel(ctx)

	if err := a.cache.Flush(after); err != nil {
		log.Printf("[ERROR] Failed to flush distance cache: run_id=%s err=%v", result.RunID, err)
	}

	if a.runs != nil {
		if err := a.runs.Save(after, result); err != nil {
			log.Printf("[ERROR] Failed to save run history: run_id=%s err=%v", result.RunID, err)
		}
	}

	if a.publisher != nil {
		if err := a.publisher.Publish(after, result); err != nil {
			log.Printf("[ERROR] %v", err)
		}
	}

	return result, nil
}

// Runs returns the run history, or nil when it is disabled
func (a *App) Runs() database.RunRepository {
	return a.runs
}

// HealthCheck reports whether the backing stores respond
func (a *App) HealthCheck(ctx context.Context) error {
	if a.store != nil {
		if err := a.store.HealthCheck(ctx); err != nil {
			return fmt.Errorf("sqlite: %w", err)
		}
	}
	if _, err := a.cache.Len(ctx); err != nil {
		return fmt.Errorf("distance cache: %w", err)
	}
	return nil
}

// ProviderCalls returns the total number of routing requests made so far
func (a *App) ProviderCalls() int64 {
	return a.provider.APICalls()
}

// CacheBackend names the active distance cache backend
func (a *App) CacheBackend() string {
	return a.cfg.CacheBackend
}

// Close releases resources in reverse order of acquisition
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
