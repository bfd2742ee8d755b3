// Package main is the entry point for the progression engine API server.
//
// The server exposes the ingest endpoint and the read-side queries. Reward
// dispatch and the other background jobs run in the worker binary, sharing
// the same PostgreSQL store and reward outbox.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/tastebook/progression-engine/config"
	"github.com/tastebook/progression-engine/internal/application/command"
	"github.com/tastebook/progression-engine/internal/application/eventhandler"
	"github.com/tastebook/progression-engine/internal/application/query"
	"github.com/tastebook/progression-engine/internal/domain/achievement"
	"github.com/tastebook/progression-engine/internal/domain/shared"
	"github.com/tastebook/progression-engine/internal/infrastructure/messaging"
	"github.com/tastebook/progression-engine/internal/infrastructure/persistence/postgres"
	"github.com/tastebook/progression-engine/internal/infrastructure/persistence/redis"
	httpapi "github.com/tastebook/progression-engine/internal/interface/http"
	"github.com/tastebook/progression-engine/internal/interface/http/handlers"
	"github.com/tastebook/progression-engine/pkg/logger"
	"github.com/tastebook/progression-engine/pkg/retry"
	"github.com/tastebook/progression-engine/pkg/timeutil"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. Configuration
	// ─────────────────────────────────────────────────────────────────────────
	_ = godotenv.Load() // .env is optional; real deployments use the environment

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. Logging and the canonical day boundary
	// ─────────────────────────────────────────────────────────────────────────
	log := newLogger(cfg)
	log.Info("starting progression engine API",
		logger.String("environment", string(cfg.App.Environment)),
		logger.String("version", cfg.App.Version),
		logger.String("day_boundary_tz", cfg.App.DayBoundaryTZ))

	timeutil.SetCanonicalZone(cfg.App.Location)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. PostgreSQL
	// ─────────────────────────────────────────────────────────────────────────
	if cfg.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	dbConn, err := postgres.NewConnectionFromURL(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer dbConn.Close()

	if err := postgres.NewMigrator(dbConn).Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Info("database connected and migrated")

	// ─────────────────────────────────────────────────────────────────────────
	// 4. Redis (dedup index + summary cache)
	// ─────────────────────────────────────────────────────────────────────────
	cache, err := newCache(cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer cache.Close()
	log.Info("redis connected")

	dedup := redis.NewDedupIndex(cache)
	summaries := redis.NewSummaryCache(cache)

	// ─────────────────────────────────────────────────────────────────────────
	// 5. Achievement catalog
	// ─────────────────────────────────────────────────────────────────────────
	catalog, err := loadCatalog(cfg)
	if err != nil {
		return fmt.Errorf("failed to load achievement catalog: %w", err)
	}
	log.Info("achievement catalog loaded", logger.Int("definitions", catalog.Len()))

	// ─────────────────────────────────────────────────────────────────────────
	// 6. Event bus
	// ─────────────────────────────────────────────────────────────────────────
	localBus := messaging.NewInMemoryEventBus(0, log)

	var bus shared.EventBus = localBus
	if cfg.Redis.EnableEventBus {
		redisBus := messaging.NewRedisEventBus(cache, localBus, cfg.Redis.EventChannel, log)
		if err := redisBus.Start(); err != nil {
			return fmt.Errorf("failed to start redis event bus: %w", err)
		}
		bus = redisBus
		log.Info("redis event bus enabled", logger.String("channel", cfg.Redis.EventChannel))
	}
	defer bus.Close()

	// ─────────────────────────────────────────────────────────────────────────
	// 7. Repositories and application handlers
	// ─────────────────────────────────────────────────────────────────────────
	progressRepo := postgres.NewProgressRepo(dbConn)
	streakRepo := postgres.NewStreakRepo(dbConn)
	ledgerRepo := postgres.NewLedgerRepo(dbConn)
	outboxRepo := postgres.NewOutboxRepo(dbConn)

	trackStreak := command.NewTrackStreakHandler(streakRepo, outboxRepo, bus, log)
	evaluate := command.NewEvaluateAchievementsHandler(catalog, progressRepo, outboxRepo, bus, log)
	submitEvent := command.NewSubmitEventHandler(dedup, trackStreak, evaluate, log, command.SubmitEventConfig{
		DedupTTL:      cfg.Gateway.DedupTTL,
		MaxFutureSkew: cfg.Gateway.MaxFutureSkew,
	})

	getAchievements := query.NewGetAchievementsHandler(catalog, progressRepo)
	getStreakInfo := query.NewGetStreakInfoHandler(streakRepo)
	getStats := query.NewGetStatsHandler(catalog, progressRepo, ledgerRepo)

	dispatcher := messaging.NewDispatcher(bus, log,
		messaging.RecoveryMiddleware(),
		messaging.LoggingMiddleware(log))

	// Apply rewards as soon as the unlock or milestone event lands. The
	// worker's outbox drain re-dispatches anything that slips through here;
	// the ledger's idempotency key makes the overlap a no-op.
	dispatchReward := command.NewDispatchRewardHandler(
		catalog, ledgerRepo, bus, log, command.DefaultMilestonePoints())
	rewardFeeds := []messaging.HandlerRegistration{
		{
			Name:      "reward_dispatch_unlock",
			EventType: shared.EventAchievementUnlocked,
			Handler:   dispatchReward.HandleUnlockEvent,
			Retrier:   retry.DispatchRetrier(),
		},
		{
			Name:      "reward_dispatch_milestone",
			EventType: shared.EventMilestoneCrossed,
			Handler:   dispatchReward.HandleMilestoneEvent,
			Retrier:   retry.DispatchRetrier(),
		},
	}
	for _, reg := range rewardFeeds {
		if err := dispatcher.Register(reg); err != nil {
			return fmt.Errorf("failed to register reward dispatch: %w", err)
		}
	}

	// Drop cached summaries as soon as a progression event lands.
	invalidator := eventhandler.NewInvalidateSummaryHandler(summaries, log)
	for _, et := range invalidator.EventTypes() {
		if err := dispatcher.Register(messaging.HandlerRegistration{
			Name:      "invalidate_summary",
			EventType: et,
			Handler:   invalidator.Handle,
		}); err != nil {
			return fmt.Errorf("failed to register summary invalidator: %w", err)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 8. Health checks and metrics
	// ─────────────────────────────────────────────────────────────────────────
	health := handlers.NewCompositeHealthChecker(cfg.App.Version)
	health.AddCheck("postgres", handlers.NewPingCheck(dbConn))
	health.AddCheck("redis", handlers.NewPingCheck(cache))

	metrics := func() map[string]map[string]int64 {
		return map[string]map[string]int64{
			"event_bus":  localBus.Metrics(),
			"dispatcher": dispatcher.Metrics(),
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 9. HTTP server
	// ─────────────────────────────────────────────────────────────────────────
	serverCfg := httpapi.DefaultConfig()
	serverCfg.Host = cfg.HTTP.Host
	serverCfg.Port = cfg.HTTP.Port
	serverCfg.ReadTimeout = cfg.HTTP.ReadTimeout
	serverCfg.WriteTimeout = cfg.HTTP.WriteTimeout
	serverCfg.IdleTimeout = cfg.HTTP.IdleTimeout
	serverCfg.EnableCORS = cfg.HTTP.EnableCORS
	serverCfg.AllowedOrigins = cfg.HTTP.AllowedOrigins
	serverCfg.EnableMetrics = cfg.HTTP.EnableMetrics
	serverCfg.RateLimitPerMinute = cfg.HTTP.RateLimitPerMinute
	serverCfg.APIKeys = cfg.HTTP.APIKeys

	server := httpapi.NewServer(serverCfg, httpapi.Dependencies{
		SubmitEvent:     submitEvent,
		TrackStreak:     trackStreak,
		GetAchievements: getAchievements,
		GetStreakInfo:   getStreakInfo,
		GetStats:        getStats,
		SummaryCache:    summaries,
		HealthChecker:   health,
		Metrics:         metrics,
		Logger:          log,
	})

	errCh := server.StartAsync()
	log.Info("HTTP server started", logger.String("address", server.Address()))

	// ─────────────────────────────────────────────────────────────────────────
	// 10. Wait for shutdown
	// ─────────────────────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	select {
	case sig := <-sigCh:
		log.Info("shutdown signal received", logger.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", logger.Err(err))
		return err
	}

	log.Info("progression engine API stopped")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// BOOTSTRAP HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func newLogger(cfg *config.Config) *logger.Logger {
	return logger.New(logger.Options{
		Output:    os.Stdout,
		Level:     logger.ParseLevel(cfg.Observability.LogLevel),
		AddCaller: cfg.App.Debug,
	})
}

func newCache(cfg *config.Config) (*redis.Cache, error) {
	redisCfg := redis.DefaultConfig()
	if cfg.Redis.URL != "" {
		parsed, err := redis.ConfigFromURL(cfg.Redis.URL)
		if err != nil {
			return nil, err
		}
		redisCfg = parsed
	} else {
		redisCfg.Host = cfg.Redis.Host
		redisCfg.Port = cfg.Redis.Port
		redisCfg.Password = cfg.Redis.Password
		redisCfg.DB = cfg.Redis.DB
	}
	redisCfg.PoolSize = cfg.Redis.PoolSize
	redisCfg.MinIdleConns = cfg.Redis.MinIdleConns
	redisCfg.DialTimeout = cfg.Redis.DialTimeout
	redisCfg.ReadTimeout = cfg.Redis.ReadTimeout
	redisCfg.WriteTimeout = cfg.Redis.WriteTimeout

	return redis.NewCache(redisCfg)
}

func loadCatalog(cfg *config.Config) (*achievement.Catalog, error) {
	if cfg.Catalog.File != "" {
		return achievement.LoadCatalogFile(cfg.Catalog.File)
	}
	return achievement.DefaultCatalog(), nil
}
