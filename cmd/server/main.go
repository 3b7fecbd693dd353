// Command server runs the school administration API: it loads the shared
// store from the configured backend, serves it over HTTP and persists every
// change in the background.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/schoolhub/schoolhub/config"
	"github.com/schoolhub/schoolhub/internal/application/store"
	"github.com/schoolhub/schoolhub/internal/domain/billing"
	"github.com/schoolhub/schoolhub/internal/domain/persistence"
	"github.com/schoolhub/schoolhub/internal/domain/shared"
	"github.com/schoolhub/schoolhub/internal/infrastructure/messaging"
	badgerstore "github.com/schoolhub/schoolhub/internal/infrastructure/persistence/badger"
	"github.com/schoolhub/schoolhub/internal/infrastructure/persistence/postgres"
	"github.com/schoolhub/schoolhub/internal/infrastructure/persistence/redis"
	"github.com/schoolhub/schoolhub/internal/infrastructure/scheduler"
	"github.com/schoolhub/schoolhub/internal/infrastructure/scheduler/jobs"
	apihttp "github.com/schoolhub/schoolhub/internal/interface/http"
	"github.com/schoolhub/schoolhub/internal/interface/http/handlers"
	"github.com/schoolhub/schoolhub/pkg/circuitbreaker"
	"github.com/schoolhub/schoolhub/pkg/logger"
	"github.com/schoolhub/schoolhub/pkg/retry"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIG & LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(logger.Options{
		Level:     logger.ParseLevel(cfg.Observability.LogLevel),
		AddCaller: cfg.App.Debug,
	}).With(logger.String("app", cfg.App.Name), logger.String("version", version))

	log.Info("starting",
		logger.String("env", string(cfg.App.Environment)),
		logger.Backend(string(cfg.Backend)),
		logger.String("timezone", cfg.App.Timezone),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. BACKEND
	// ─────────────────────────────────────────────────────────────────────────
	backend, err := openBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := backend.Close(); err != nil {
			log.Error("backend close failed", logger.Err(err))
		}
	}()

	health := handlers.NewCompositeHealthChecker(version)
	if p, ok := backend.(handlers.Pinger); ok {
		health.AddCheck(backend.Name(), handlers.NewPingCheck(p))
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. EVENT BUS & KPI CACHE
	// ─────────────────────────────────────────────────────────────────────────
	bus := messaging.NewInMemoryEventBus(messaging.Config{
		AsyncMode: true,
		QueueSize: cfg.Store.QueueSize,
		Logger:    log,
	})
	defer bus.Close()

	var cachedKPIs apihttp.KPIReader
	if !cfg.Redis.Disabled {
		cache, err := redis.NewCache(redisConfig(cfg.Redis))
		if err != nil {
			log.Warn("redis unavailable, KPI cache disabled", logger.Err(err))
		} else {
			defer cache.Close()
			kpiCache := redis.NewKPICache(cache, cfg.Redis.Timeout, log)
			if err := bus.Subscribe(shared.EventKPIsRecomputed, kpiCache.Handle); err != nil {
				return fmt.Errorf("subscribe kpi cache: %w", err)
			}
			health.AddCheck("redis", handlers.NewPingCheck(cache))
			cachedKPIs = kpiCache
			log.Info("KPI cache enabled", logger.String("addr", redisConfig(cfg.Redis).Addr()))
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. STORE
	// ─────────────────────────────────────────────────────────────────────────
	classifier := billing.NewClassifier(billing.Calendar{
		Periods: cfg.Academic.Periods,
		Pinned:  cfg.Academic.CurrentPeriod,
		Grace:   cfg.Academic.GracePeriods,
	}, nil)

	st, err := store.New(backend,
		store.WithLogger(log),
		store.WithClassifier(classifier),
		store.WithPublisher(bus),
		store.WithQueueSize(cfg.Store.QueueSize),
		store.WithWriteTimeout(cfg.Store.WriteTimeout),
		store.WithRetrier(retry.New(
			retry.WithMaxAttempts(cfg.Store.RetryAttempts),
			retry.WithInitialDelay(50*time.Millisecond),
			retry.WithMaxDelay(time.Second),
			retry.WithRetryIf(shared.IsRetryable),
		)),
		store.WithBreaker(circuitbreaker.BackendBreaker(backend.Name(), shared.IsRetryable,
			func(name string, from, to circuitbreaker.State) {
				log.Warn("backend breaker state changed",
					logger.Backend(name),
					logger.String("from", from.String()),
					logger.String("to", to.String()),
				)
			})),
	)
	if err != nil {
		return fmt.Errorf("create store: %w", err)
	}
	health.AddReadinessCheck("store", handlers.NewLoadingCheck(st.Loading))

	// the API serves (empty, loading) while the first load runs
	go func() {
		if err := st.Load(ctx); err != nil {
			log.Warn("initial load abandoned", logger.Err(err))
		}
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 5. BACKGROUND JOBS
	// ─────────────────────────────────────────────────────────────────────────
	sched := scheduler.New(scheduler.Config{Logger: log, Timezone: cfg.App.Location})
	if err := sched.Register(jobs.NewReportWriteStatsJob(st, log), scheduler.NewIntervalSchedule(time.Minute)); err != nil {
		return fmt.Errorf("register job: %w", err)
	}
	if err := sched.Register(jobs.NewReclassifyStudentsJob(st, log), scheduler.NewIntervalSchedule(time.Hour)); err != nil {
		return fmt.Errorf("register job: %w", err)
	}
	if cfg.Store.RefreshInterval > 0 {
		refresh := jobs.NewRefreshStoreJob(st, cfg.Store.RefreshInterval, log)
		if err := sched.Register(refresh, scheduler.NewIntervalSchedule(cfg.Store.RefreshInterval)); err != nil {
			return fmt.Errorf("register job: %w", err)
		}
	}
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. HTTP
	// ─────────────────────────────────────────────────────────────────────────
	httpCfg := apihttp.DefaultConfig()
	httpCfg.Host = cfg.HTTP.Host
	httpCfg.Port = cfg.HTTP.Port
	httpCfg.ReadTimeout = cfg.HTTP.ReadTimeout
	httpCfg.WriteTimeout = cfg.HTTP.WriteTimeout
	httpCfg.AllowedOrigins = []string{cfg.HTTP.CORSOrigin}

	server := apihttp.NewServer(httpCfg, apihttp.Dependencies{
		Store:         st,
		Logger:        log,
		HealthChecker: health,
		CachedKPIs:    cachedKPIs,
		Jobs:          sched,
	})
	serverErr := server.StartAsync()

	// ─────────────────────────────────────────────────────────────────────────
	// 7. WAIT & SHUT DOWN
	// ─────────────────────────────────────────────────────────────────────────
	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serverErr:
		runErr = err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", logger.Err(err))
	}
	if err := sched.Stop(); err != nil && !errors.Is(err, scheduler.ErrSchedulerNotRunning) {
		log.Error("scheduler stop failed", logger.Err(err))
	}
	if err := st.Close(shutdownCtx); err != nil {
		log.Error("pending writes not flushed", logger.Err(err))
	}

	stats := st.WriteStats()
	log.Info("stopped",
		logger.Int64("writes_succeeded", int64(stats.Succeeded)),
		logger.Int64("writes_failed", int64(stats.Failed)),
		logger.Int64("writes_dropped", int64(stats.Dropped)),
	)
	return runErr
}

func openBackend(ctx context.Context, cfg *config.Config, log *logger.Logger) (persistence.Backend, error) {
	switch cfg.Backend {
	case config.BackendRemote:
		pgCfg := postgres.DefaultConfig(cfg.Database.URL)
		pgCfg.MaxConns = int32(cfg.Database.MaxConns)
		pgCfg.MinConns = int32(cfg.Database.MinConns)
		pgCfg.MaxConnLifetime = cfg.Database.ConnMaxLifetime
		pgCfg.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime

		b, err := postgres.Open(ctx, pgCfg, log)
		if err != nil {
			return nil, fmt.Errorf("open postgres backend: %w", err)
		}
		return b, nil

	default:
		b, err := badgerstore.Open(badgerstore.Config{
			Dir:      cfg.Local.Dir,
			InMemory: cfg.Local.InMemory,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("open local backend: %w", err)
		}
		return b, nil
	}
}

func redisConfig(c config.RedisConfig) redis.Config {
	rc := redis.DefaultConfig()
	rc.Host = c.Host
	rc.Port = c.Port
	rc.Password = c.Password
	rc.DB = c.DB
	if c.PoolSize > 0 {
		rc.PoolSize = c.PoolSize
	}
	if c.Timeout > 0 {
		rc.ReadTimeout = c.Timeout
		rc.WriteTimeout = c.Timeout
	}
	return rc
}
