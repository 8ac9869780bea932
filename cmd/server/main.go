package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/portfolio-risk/internal/cache"
	"github.com/aristath/portfolio-risk/internal/clients/yahoo"
	"github.com/aristath/portfolio-risk/internal/config"
	"github.com/aristath/portfolio-risk/internal/database"
	"github.com/aristath/portfolio-risk/internal/modules/analysis"
	"github.com/aristath/portfolio-risk/internal/modules/history"
	"github.com/aristath/portfolio-risk/internal/modules/proxies"
	"github.com/aristath/portfolio-risk/internal/scheduler"
	"github.com/aristath/portfolio-risk/internal/server"
	"github.com/aristath/portfolio-risk/pkg/logger"
)

func main() {
	// Initialize logger
	log := logger.New(logger.Config{
		Level:  "info",
		Pretty: true,
	})

	log.Info().Msg("Starting portfolio risk engine")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// history.db - monthly closes and yield-curve levels
	historyDB, err := database.New(database.Config{
		Path:    cfg.DataDir + "/history.db",
		Profile: database.ProfileStandard,
		Name:    "history",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize history database")
	}
	defer historyDB.Close()

	// cache.db - content-addressed analysis results
	cacheDB, err := database.New(database.Config{
		Path:    cfg.DataDir + "/cache.db",
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize cache database")
	}
	defer cacheDB.Close()

	for _, db := range []*database.DB{historyDB, cacheDB} {
		if err := db.Migrate(); err != nil {
			log.Fatal().Err(err).Str("database", db.Name()).Msg("Failed to migrate database")
		}
	}

	// Core services
	historyStore := history.NewStore(historyDB, log)
	resultCache := cache.NewStore(cacheDB, time.Duration(cfg.CacheTTLMinutes)*time.Minute, log)
	resolver := proxies.NewResolver(cfg.ProxyTickers, log)
	analysisService := analysis.NewService(cfg.Analysis, log)
	yahooClient := yahoo.NewClient(log)

	// Background jobs
	sched := scheduler.New(log)

	syncJob := scheduler.NewHistorySyncJob(scheduler.HistorySyncConfig{
		Fetcher: yahooClient,
		Store:   historyStore,
		Symbols: func() ([]string, error) {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			stored, err := historyStore.Tickers(ctx)
			if err != nil {
				return nil, err
			}
			// Always refresh the factor proxies alongside stored holdings.
			seen := make(map[string]bool, len(stored))
			symbols := make([]string, 0, len(stored)+3)
			for _, t := range stored {
				seen[t] = true
				symbols = append(symbols, t)
			}
			for _, proxy := range resolver.Tickers() {
				if !seen[proxy] {
					symbols = append(symbols, proxy)
				}
			}
			return symbols, nil
		},
		Period: cfg.SyncPeriod,
		Log:    log,
	})

	// Early each month (days 1-3, 06:00), after month-end bars settle
	if err := sched.AddJob("0 0 6 1-3 * *", syncJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to register history sync job")
	}

	purgeJob := scheduler.NewCachePurgeJob(resultCache, log)
	if err := sched.AddJob("0 0 3 * * *", purgeJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to register cache purge job")
	}

	sched.Start()
	defer sched.Stop()

	// HTTP server
	srv := server.New(server.Config{
		Log:       log,
		HistoryDB: historyDB,
		CacheDB:   cacheDB,
		Config:    cfg,
		Port:      cfg.Port,
		DevMode:   cfg.DevMode,
		Scheduler: sched,
		Analysis:  analysisService,
		History:   historyStore,
		Cache:     resultCache,
		Proxies:   resolver,
	})
	srv.SetSyncJob(syncJob)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	// Graceful shutdown on SIGINT/SIGTERM
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatal().Err(err).Msg("Server failed")
		}
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("Forced shutdown")
		}
	}

	log.Info().Msg("Stopped")
}
