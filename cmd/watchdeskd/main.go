// watchdeskd ingests the token launch feed, maintains the watch-set,
// and evaluates trigger groups against streaming metrics.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"token-watchdesk/internal/config"
	"token-watchdesk/internal/domain"
	"token-watchdesk/internal/feed"
	"token-watchdesk/internal/ingest"
	"token-watchdesk/internal/logging"
	"token-watchdesk/internal/metrics"
	"token-watchdesk/internal/observability"
	"token-watchdesk/internal/oracle"
	"token-watchdesk/internal/storage"
	"token-watchdesk/internal/storage/memory"
	"token-watchdesk/internal/storage/migrations"
	pgstore "token-watchdesk/internal/storage/postgres"
	"token-watchdesk/internal/trigger"
	"token-watchdesk/internal/watchlist"
)

// deferredEnqueuer breaks the construction cycle between the ingestor,
// the feed client, and the subscription manager. Enqueues before the
// manager is bound are dropped; the durable subscription row written in
// the same transaction covers them on the next restore.
type deferredEnqueuer struct {
	m *feed.SubManager
}

func (d *deferredEnqueuer) Enqueue(mint string, action domain.SubscriptionAction) {
	if d.m != nil {
		d.m.Enqueue(mint, action)
	}
}

func main() {
	configPath := flag.String("config", "", "Path to YAML config file (defaults and WATCHDESK_* env apply without one)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger, logLevel, err := logging.New(cfg.Logging.Level, cfg.App.DetailedLogging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger, logLevel); err != nil {
		logger.Fatal("watchdeskd failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger, logLevel zap.AtomicLevel) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Persistence sink.
	var db storage.DB
	switch cfg.Storage.Driver {
	case "postgres":
		pool, err := pgstore.NewPool(ctx, cfg.Storage.DSN)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer pool.Close()
		if err := migrations.RunPostgres(ctx, pool); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
		db = pgstore.NewDB(pool)
		logger.Info("using postgres storage")
	default:
		db = memory.NewDB()
		logger.Info("using in-memory storage")
	}

	if _, err := loadOrSeedSettings(ctx, db, cfg); err != nil {
		return err
	}

	// Runtime toggles live in the settings row; re-apply the logging
	// level periodically so dbtool edits take effect without a restart.
	go watchLogLevel(ctx, db.Settings(), logLevel, logging.BaseLevel(cfg.Logging.Level), logger)

	// Metrics exposition plus on-demand per-token aggregates.
	calculator := metrics.NewCalculator(db.Trades())
	metricsSrv := &http.Server{Addr: cfg.Metrics.ListenAddr, Handler: metricsMux(calculator, logger)}
	go func() {
		logger.Info("metrics server listening", zap.String("addr", cfg.Metrics.ListenAddr))
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()

	// Core pipeline.
	registry := watchlist.NewRegistry(db, logger)
	if err := registry.Load(ctx); err != nil {
		return err
	}

	enqueuer := &deferredEnqueuer{}
	ingestor := ingest.New(db, enqueuer, logger)
	ingestor.Notify(registry.Absorb)

	client := feed.NewClient(feed.Config{
		Endpoint:             cfg.Feed.Endpoint,
		ReconnectBase:        cfg.Feed.ReconnectBase,
		MaxReconnectAttempts: cfg.Feed.MaxReconnectAttempts,
		HandshakeTimeout:     cfg.Feed.HandshakeTimeout,
		WriteTimeout:         cfg.Feed.WriteTimeout,
	}, ingestor, logger)

	subManager := feed.NewSubManager(client, db.Subscriptions(), cfg.Subscriptions.DrainInterval, logger)
	enqueuer.m = subManager

	evaluator := trigger.NewEvaluator(db.Tokens(), registry, nil, cfg.Trigger.TickInterval, logger)
	if err := evaluator.LoadGroups(ctx, db.TriggerGroups()); err != nil {
		return fmt.Errorf("load trigger groups: %w", err)
	}

	client.AddSubscriber(evaluator.OnEvent)
	client.AddSubscriber(func(event domain.Event) {
		trade, ok := event.(*domain.TradeEvent)
		if !ok {
			return
		}
		if err := registry.ObserveTrade(context.Background(), trade); err != nil {
			logger.Warn("watch metrics update failed",
				zap.String("mint", trade.Mint), zap.Error(err))
		}
	})

	// The auto-resubscribe flag is read on every open, so toggling it
	// through dbtool applies to the next reconnect.
	client.OnOpen(func() {
		if err := subManager.RestoreIfEnabled(context.Background(), db.Settings()); err != nil {
			logger.Error("subscription restore failed", zap.Error(err))
		}
	})

	pruner := watchlist.NewPruner(registry, db.Settings(), logger)

	priceOracle := oracle.New(logger,
		oracle.WithURL(cfg.Oracle.URL),
		oracle.WithCooldown(cfg.Oracle.Cooldown))
	go func() {
		if usd, err := priceOracle.GetPrice(ctx); err != nil {
			logger.Warn("initial sol price fetch failed", zap.Error(err))
		} else {
			logger.Info("sol price", zap.Float64("usd", usd))
		}
	}()

	subManager.Start()
	evaluator.Start()
	pruner.Start()

	if err := client.Connect(ctx); err != nil {
		// Connect failures arm the backoff timer; not fatal.
		logger.Warn("initial feed connect failed", zap.Error(err))
	}

	// Block until a shutdown signal.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))

	client.Close()
	subManager.Stop()
	evaluator.Stop()
	pruner.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Shutdown(shutdownCtx)

	logger.Info("shutdown complete")
	return nil
}

// watchLogLevel re-applies the detailed-logging toggle from the
// settings row on a fixed interval.
func watchLogLevel(ctx context.Context, settings storage.SettingsStore, logLevel zap.AtomicLevel, base zapcore.Level, logger *zap.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s, err := settings.Get(ctx)
			if err != nil {
				if !errors.Is(err, storage.ErrNotFound) {
					logger.Warn("read settings for log level", zap.Error(err))
				}
				continue
			}
			logging.ApplyDetailed(logLevel, base, s.DetailedLogging)
		}
	}
}

func metricsMux(calculator *metrics.Calculator, logger *zap.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	mux.Handle("/aggregates", metrics.NewHandler(calculator, logger))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return mux
}

// loadOrSeedSettings returns the persisted settings row, creating it
// from the config file on first start. The row, not the file, is the
// source of truth afterward.
func loadOrSeedSettings(ctx context.Context, db storage.DB, cfg *config.Config) (*domain.Settings, error) {
	settings, err := db.Settings().Get(ctx)
	if err == nil {
		return settings, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	settings = &domain.Settings{
		AutoResubscribe:       cfg.App.AutoResubscribe,
		DetailedLogging:       cfg.App.DetailedLogging,
		PruneThresholdMinutes: cfg.App.PruneThresholdMinutes,
	}
	if err := db.Settings().Put(ctx, settings); err != nil {
		return nil, fmt.Errorf("seed settings: %w", err)
	}
	return settings, nil
}
