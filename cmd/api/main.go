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

	"listinglens/internal/adapter/repo"
	"listinglens/internal/cache"
	"listinglens/internal/coordinator"
	"listinglens/internal/enhance"
	"listinglens/internal/http/handlers"
	"listinglens/internal/http/httpapi"
	"listinglens/internal/infra"
	"listinglens/internal/ledger"
	"listinglens/internal/queue"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer pool.Close()

	pgLedger := ledger.NewPostgres(pool)
	if err := pgLedger.EnsureSchema(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to ensure ledger schema")
	}

	rdb, err := infra.NewRedisClient(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect redis")
	}
	if rdb == nil {
		logger.Info().Msg("redis not configured, status cache disabled")
	}

	// One admission queue per process, injected everywhere it is needed.
	admission, err := queue.New(queue.Config{
		MaxConcurrent:     cfg.MaxConcurrent,
		MaxQueueSize:      cfg.MaxQueueSize,
		ProcessingTimeout: cfg.ProcessingTimeout,
		PriorityBoost:     cfg.PriorityBoost(),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build admission queue")
	}
	defer admission.Close()

	coord := coordinator.New(admission, pgLedger, newEnhancer(cfg, logger), logger)

	app := &handlers.App{
		Config:      cfg,
		Logger:      logger,
		Coordinator: coord,
		Queue:       admission,
		Works:       repo.NewWorkRepository(pool),
		StatusCache: cache.NewStatusCache(rdb),
	}

	server := infra.NewHTTPServer(cfg, httpapi.NewRouter(app))

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}

func newEnhancer(cfg *infra.Config, logger infra.Logger) enhance.Enhancer {
	switch cfg.EnhanceProvider {
	case "synthetic":
		logger.Warn().Msg("using synthetic enhancement provider")
		return enhance.NewSynthetic(1500 * time.Millisecond)
	default:
		return enhance.NewClient(enhance.Options{
			BaseURL: cfg.EnhanceBaseURL,
			APIKey:  cfg.EnhanceAPIKey,
			Model:   cfg.EnhanceModel,
			Timeout: cfg.EnhanceTimeout,
		})
	}
}
