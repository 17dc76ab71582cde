package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/yieldpilot/vrm/internal/config"
	"github.com/yieldpilot/vrm/internal/datasource"
	"github.com/yieldpilot/vrm/internal/executor"
	"github.com/yieldpilot/vrm/internal/logger"
	"github.com/yieldpilot/vrm/internal/orchestrator"
	"github.com/yieldpilot/vrm/internal/scheduler"
	"github.com/yieldpilot/vrm/internal/state"
	"github.com/yieldpilot/vrm/internal/web"
)

const SHUTDOWN_GRACE = 15 * time.Second

// main is the entry point for the vault rebalance manager.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Initialize(cfg.LogLevel)
	log.Info().Msg("Vault Rebalance Manager Starting...")

	store, err := state.New(state.DBConfig{
		Host: cfg.DBHost, Port: cfg.DBPort,
		User: cfg.DBUser, Password: cfg.DBPassword,
		DBName: cfg.DBName, SSLMode: cfg.DBSSLMode,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer store.Close()
	if err := store.EnsureSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure database schema")
	}

	registry, err := config.LoadRegistry(cfg.RegistryPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.RegistryPath).Msg("Failed to load vault registry")
	}

	morpho, err := datasource.NewMorphoClient(cfg.MorphoEndpoint, cfg.MorphoMaxRequestsPerMinute)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Morpho client")
	}

	txExecutor, err := executor.NewAgentExecutor(executor.NewHTTPAgent(cfg.AgentEndpoint))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create transaction executor")
	}

	// --- 2. Wiring Phase ---
	orch, err := orchestrator.New(orchestrator.Config{
		Store:                      store,
		DataSource:                 morpho,
		Executor:                   txExecutor,
		Registry:                   registry,
		MaxRebalanceFrequencyHours: cfg.MaxRebalanceFrequencyHours,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create orchestrator")
	}

	sched, err := scheduler.New(scheduler.Config{
		DailySchedule:      cfg.DailySchedule,
		DriftCheckSchedule: cfg.DriftCheckSchedule,
		SyncSchedule:       cfg.SyncSchedule,
	}, orch)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create scheduler")
	}

	webServer := web.NewWebServer(cfg.WebPort, store, orch, orch)
	httpServer := webServer.Server()

	// --- 3. Run Phase ---
	// Prime the snapshot store so the first scheduled run has data to work with.
	syncCtx, cancelSync := context.WithTimeout(context.Background(), 10*time.Minute)
	if err := orch.SyncVaultData(syncCtx); err != nil {
		log.Error().Err(err).Msg("Initial vault data sync failed; continuing with stored data")
	}
	cancelSync()

	sched.Start()

	go func() {
		log.Info().Str("port", cfg.WebPort).Msg("Starting operator API")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Operator API server failed")
		}
	}()

	// --- 4. Shutdown Phase ---
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	sig := <-stop
	log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")

	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), SHUTDOWN_GRACE)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Operator API shutdown failed")
	}

	log.Info().Msg("Vault Rebalance Manager stopped")
}
