package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/inkstamp/paperless-stamp/config"
	"github.com/inkstamp/paperless-stamp/handler"
	"github.com/inkstamp/paperless-stamp/pkg/logger"
	"github.com/inkstamp/paperless-stamp/service"
	"github.com/inkstamp/paperless-stamp/store"
	"github.com/inkstamp/paperless-stamp/worker"
)

const defaultConfigPath = "config.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to the YAML configuration file")
	flag.Parse()

	if err := run(*configPath, explicitFlag("config")); err != nil {
		slog.Error("paperless-stamp exited with error", "error", err)
		os.Exit(1)
	}
}

func explicitFlag(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

func run(configPath string, explicit bool) error {
	// Load configuration; the default path may be absent in env-only deployments
	load := config.LoadOptional
	if explicit {
		load = config.Load
	}
	cfg, err := load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := config.ApplyEnv(cfg, os.Environ()); err != nil {
		return fmt.Errorf("failed to apply environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger.Init(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	slog.Info("configuration loaded successfully",
		"paperless_url", cfg.Paperless.URL,
		"store", cfg.Store.Driver,
		"poll_interval", cfg.Stamp.PollInterval,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores, err := store.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() {
		if err := stores.Close(); err != nil {
			slog.Warn("failed to close store", "error", err)
		}
	}()

	resolver := config.NewResolver(cfg.StampSettings(), stores.Settings)

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)
	defer func() { _ = provider.Shutdown(context.Background()) }()

	metrics, err := worker.NewMetrics(otel.Meter(worker.MeterName))
	if err != nil {
		return err
	}

	var (
		archive   worker.Archiver
		presigner handler.Presigner
	)
	if cfg.Minio.Enabled {
		archiveSvc, err := service.NewArchiveService(&cfg.Minio)
		if err != nil {
			return fmt.Errorf("failed to initialize MINIO archive: %w", err)
		}
		if err := archiveSvc.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("failed to ensure MINIO bucket: %w", err)
		}
		archive, presigner = archiveSvc, archiveSvc
		slog.Info("archiving stamped documents", "endpoint", cfg.Minio.Endpoint, "bucket", cfg.Minio.Bucket)
	}

	stampWorker, err := worker.New(worker.Config{
		Client:       service.NewPaperlessService(&cfg.Paperless),
		Journal:      stores.Journal,
		History:      stores.History,
		Resolver:     resolver,
		Archive:      archive,
		Metrics:      metrics,
		SlowDocument: time.Duration(cfg.Worker.SlowDocumentMS) * time.Millisecond,
	})
	if err != nil {
		return err
	}

	var srv *http.Server
	if !cfg.Server.Disabled {
		gin.SetMode(gin.ReleaseMode)
		srv = &http.Server{
			Addr: fmt.Sprintf(":%d", cfg.Server.Port),
			Handler: handler.NewRouter(handler.Deps{
				History:   stores.History,
				Settings:  stores.Settings,
				Resolver:  resolver,
				Worker:    stampWorker,
				Metrics:   reader,
				Archive:   presigner,
				RateLimit: cfg.Server.RateLimit,
			}),
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  120 * time.Second,
		}

		go func() {
			slog.Info("server starting", "port", cfg.Server.Port)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("failed to start server", "error", err)
				stop()
			}
		}()
	}

	// The first cycle runs immediately and reconciles claims left by a
	// previous process before discovering new work.
	done := make(chan error, 1)
	go func() { done <- stampWorker.Run(ctx) }()

	<-ctx.Done()
	slog.Info("shutting down, waiting for the document in flight...")

	timeout := time.Duration(cfg.Worker.ShutdownTimeoutSeconds) * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server forced to shutdown", "error", err)
		}
	}

	select {
	case err := <-done:
		if err != nil {
			return err
		}
	case <-shutdownCtx.Done():
		slog.Warn("worker did not stop in time, abandoning the document in flight", "timeout", timeout)
	}

	slog.Info("paperless-stamp exited gracefully")
	return nil
}
