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
	"github.com/AmberYZ/investing-agent/internal/httpapi"
	"github.com/AmberYZ/investing-agent/internal/logging"
	"github.com/AmberYZ/investing-agent/internal/merge"
	"github.com/AmberYZ/investing-agent/internal/storage"
)

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	host := fs.String("host", "0.0.0.0", "Host interface to bind")
	port := fs.Int("port", 8090, "HTTP port")
	readTimeout := fs.Duration("read-timeout", 10*time.Second, "HTTP read timeout")
	writeTimeout := fs.Duration("write-timeout", 60*time.Second, "HTTP write timeout")
	shutdownTimeout := fs.Duration("shutdown-timeout", 10*time.Second, "Graceful shutdown timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if *port <= 0 || *port > 65535 {
		fmt.Fprintln(os.Stderr, "--port must be between 1 and 65535")
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
		logger.Error().Err(err).Msg("serve failed to connect to database")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	blobs, err := storage.NewLocal(cfg.StorageDir)
	if err != nil {
		logger.Error().Err(err).Msg("serve failed to open blob storage")
		fmt.Fprintf(os.Stderr, "Failed to open blob storage: %v\n", err)
		return 1
	}

	embedder, err := buildEmbedder(cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("serve failed to configure embeddings")
		fmt.Fprintf(os.Stderr, "Failed to configure embeddings: %v\n", err)
		return 1
	}

	finder, err := buildMergeFinder(pool, embedder, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("serve failed to configure merge discovery")
		fmt.Fprintf(os.Stderr, "Failed to configure merge discovery: %v\n", err)
		return 1
	}
	executor := merge.NewExecutor(pool, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		<-sigCh
		cancel()
	}()

	srv := httpapi.NewServer(pool, blobs, finder, executor, logger, httpapi.Options{
		Host:            *host,
		Port:            *port,
		ReadTimeout:     *readTimeout,
		WriteTimeout:    *writeTimeout,
		ShutdownTimeout: *shutdownTimeout,
		MaxQueuedJobs:   cfg.MaxQueuedIngestJobs,
	})

	if err := srv.Start(ctx); err != nil {
		logger.Error().Err(err).Str("host", *host).Int("port", *port).Msg("server failed")
		fmt.Fprintf(os.Stderr, "Server failed: %v\n", err)
		return 1
	}

	return 0
}
