package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/sparkifydata/sparkify-etl/internal/config"
	"github.com/sparkifydata/sparkify-etl/internal/etl"
	"github.com/sparkifydata/sparkify-etl/internal/logging"
	"github.com/sparkifydata/sparkify-etl/internal/metrics"
	"github.com/sparkifydata/sparkify-etl/internal/source"
	"github.com/sparkifydata/sparkify-etl/internal/storage"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "path to YAML config file")
	flag.Parse()

	cfg := config.MustLoad(*configPath)

	logging.Setup(logging.Config{
		Format: cfg.Logging.Format,
		Level:  cfg.Logging.Level,
	})
	slog.Info("sparkify-etl starting", "version", etl.Version, "git_sha", etl.GitSHA)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown handler
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		sig := <-ch
		slog.Info("received signal, shutting down", "signal", sig.String())
		cancel()
	}()

	if cfg.Metrics.Enabled {
		metrics.Init("sparkify_etl")
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Address); err != nil {
				slog.Error("metrics listener failed", "error", err)
			}
		}()
	}

	songSrc, err := source.New(source.Config{
		Backend:    cfg.Input.Backend,
		LocalDir:   cfg.Input.LocalDir,
		Bucket:     cfg.Input.Bucket,
		S3Endpoint: cfg.Input.S3Endpoint,
		S3Region:   cfg.Input.S3Region,
		Prefix:     cfg.Input.SongPrefix,
	})
	if err != nil {
		slog.Error("failed to create song source", "error", err)
		os.Exit(1)
	}
	defer songSrc.Close()

	logSrc, err := source.New(source.Config{
		Backend:    cfg.Input.Backend,
		LocalDir:   cfg.Input.LocalDir,
		Bucket:     cfg.Input.Bucket,
		S3Endpoint: cfg.Input.S3Endpoint,
		S3Region:   cfg.Input.S3Region,
		Prefix:     cfg.Input.LogPrefix,
	})
	if err != nil {
		slog.Error("failed to create log source", "error", err)
		os.Exit(1)
	}
	defer logSrc.Close()

	store, err := storage.NewLakeStore(storage.StorageConfig{
		Backend:    cfg.Output.Backend,
		LocalDir:   cfg.Output.LocalDir,
		GCSBucket:  cfg.Output.Bucket,
		S3Bucket:   cfg.Output.Bucket,
		S3Endpoint: cfg.Output.S3Endpoint,
		S3Region:   cfg.Output.S3Region,
		Prefix:     cfg.Output.Prefix,
	})
	if err != nil {
		slog.Error("failed to create lake store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	pipeline, err := etl.New(cfg, songSrc, logSrc, store)
	if err != nil {
		slog.Error("failed to create pipeline", "error", err)
		os.Exit(1)
	}

	if _, err := pipeline.Run(ctx); err != nil {
		if m := metrics.Get(); m != nil {
			m.RunsTotal.WithLabelValues("failed").Inc()
		}
		if ctx.Err() != nil {
			slog.Info("shutdown complete")
			return
		}
		slog.Error("etl run failed", "error", err)
		os.Exit(1)
	}

	if m := metrics.Get(); m != nil {
		m.RunsTotal.WithLabelValues("succeeded").Inc()
	}
	slog.Info("sparkify-etl finished cleanly")
}
