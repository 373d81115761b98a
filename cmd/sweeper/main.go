package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"imagine/internal/adapter/repo"
	"imagine/internal/engine"
	"imagine/internal/infra"
	"imagine/internal/providers/midjourney"
	"imagine/internal/storage"
)

// The sweeper polls the midjourney proxy for every in-progress task and
// merges progress into the store. It covers deployments where the notify
// hook cannot reach the API, and backstops lost webhooks everywhere else.
func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("sweeper: db connection failed")
	}
	defer dbpool.Close()

	storagePath := cfg.StoragePath
	if !filepath.IsAbs(storagePath) {
		if abs, err := filepath.Abs(storagePath); err == nil {
			storagePath = abs
		}
	}
	fileStore, err := storage.NewFileStore(storagePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("sweeper: failed to configure storage")
	}

	svc := engine.New(engine.Options{
		Repo:      repo.NewTaskRepository(dbpool),
		Artifacts: fileStore,
		Midjourney: midjourney.NewClient(midjourney.Options{
			BaseURL: cfg.MidjourneyBaseURL,
			APIKey:  cfg.MidjourneyAPIKey,
			Logger:  &logger,
		}),
		NotifyURL: cfg.NotifyURL,
		Logger:    &logger,
	})

	logger.Info().Dur("interval", cfg.SweepInterval).Msg("sweeper: started")
	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("sweeper: stopped")
			return
		case <-ticker.C:
			merged, err := svc.Sweep(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					continue
				}
				logger.Error().Err(err).Msg("sweeper: sweep failed")
				continue
			}
			if merged > 0 {
				logger.Info().Int("merged", merged).Msg("sweeper: progress merged")
			}
		}
	}
}
