package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"imagine/internal/adapter/repo"
	"imagine/internal/cache"
	"imagine/internal/engine"
	"imagine/internal/http/handlers"
	"imagine/internal/http/httpapi"
	"imagine/internal/infra"
	"imagine/internal/providers/image"
	"imagine/internal/providers/midjourney"
	"imagine/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()

	taskRepo := repo.NewTaskRepository(dbpool)

	// Redis is optional: without it the read path just always hits the DB.
	var statusCache *cache.StatusCache
	if cfg.RedisAddr != "" {
		redisClient, err := infra.NewRedis(cfg.RedisAddr)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, status cache disabled")
		} else {
			defer redisClient.Close()
			statusCache = cache.NewStatusCache(redisClient)
		}
	}

	storagePath := cfg.StoragePath
	if !filepath.IsAbs(storagePath) {
		if abs, err := filepath.Abs(storagePath); err == nil {
			storagePath = abs
		}
	}
	fileStore, err := storage.NewFileStore(storagePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure storage")
	}

	svc := engine.New(engine.Options{
		Repo:      taskRepo,
		Artifacts: fileStore,
		Midjourney: midjourney.NewClient(midjourney.Options{
			BaseURL: cfg.MidjourneyBaseURL,
			APIKey:  cfg.MidjourneyAPIKey,
			Logger:  &logger,
		}),
		OpenAI: image.NewOpenAI(image.OpenAIOptions{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Logger:  &logger,
		}),
		Stability: image.NewStability(image.StabilityOptions{
			APIKey:  cfg.StabilityAPIKey,
			BaseURL: cfg.StabilityBaseURL,
			Logger:  &logger,
		}),
		NotifyURL:   cfg.NotifyURL,
		DrawTimeout: cfg.DrawTimeout,
		Workers:     cfg.WorkerCount,
		Logger:      &logger,
	})

	app := handlers.NewApp(svc, taskRepo, statusCache, logger)
	router := httpapi.NewRouter(app, logger)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	// Let in-flight generations record their outcome before exit.
	svc.Wait()
	logger.Info().Msg("server stopped")
}
