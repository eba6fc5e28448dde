package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AmberYZ/investing-agent/internal/cli"
	"github.com/AmberYZ/investing-agent/internal/config"
	"github.com/AmberYZ/investing-agent/internal/db"
	"github.com/AmberYZ/investing-agent/internal/logging"
	"github.com/AmberYZ/investing-agent/internal/storage"
	"github.com/AmberYZ/investing-agent/internal/worker"
)

func runWorker(args []string) int {
	fs := flag.NewFlagSet("worker", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	maxWorkers := fs.Int("max-workers", 0, "Concurrent ingest jobs (defaults to WORKER_MAX_JOBS)")
	pollInterval := fs.Duration("poll-interval", 0, "Queue poll interval (defaults to WORKER_POLL_SECONDS)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if envLoader != nil {
		if _, err := envLoader.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}

	dbCtx, dbCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer dbCancel()

	pool, err := db.NewPool(dbCtx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("worker failed to connect to database")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	blobs, err := storage.NewLocal(cfg.StorageDir)
	if err != nil {
		logger.Error().Err(err).Msg("worker failed to open blob storage")
		fmt.Fprintf(os.Stderr, "Failed to open blob storage: %v\n", err)
		return 1
	}

	embedder, err := buildEmbedder(cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("worker failed to configure embeddings")
		fmt.Fprintf(os.Stderr, "Failed to configure embeddings: %v\n", err)
		return 1
	}

	extractor, err := buildExtractor(cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("worker failed to configure extraction")
		fmt.Fprintf(os.Stderr, "Failed to configure extraction: %v\n", err)
		return 1
	}

	resolver := buildResolver(pool, embedder, cfg, logger)

	workers := *maxWorkers
	if workers <= 0 {
		workers = cfg.WorkerMaxJobs
	}
	poll := *pollInterval
	if poll <= 0 {
		poll = time.Duration(cfg.WorkerPollSeconds) * time.Second
	}

	ingestPool := worker.NewPool(pool, blobs, extractor, resolver, worker.Config{
		MaxWorkers:     workers,
		PollInterval:   poll,
		LLMConcurrency: int64(cfg.LLMMaxConcurrent),
	}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		<-sigCh
		logger.Info().Msg("shutdown signal received")
		cancel()
	}()

	if err := ingestPool.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("worker pool failed")
		fmt.Fprintf(os.Stderr, "Worker pool failed: %v\n", err)
		return 1
	}

	logger.Info().Msg("worker pool stopped")
	return 0
}
