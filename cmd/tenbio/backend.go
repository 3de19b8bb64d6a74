package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/robertftenbosch/tenbio/internal/artifact"
	"github.com/robertftenbosch/tenbio/internal/backend"
	"github.com/robertftenbosch/tenbio/internal/catalog"
	"github.com/robertftenbosch/tenbio/internal/config"
	"github.com/robertftenbosch/tenbio/internal/jobs"
	"github.com/robertftenbosch/tenbio/internal/observability"
	"github.com/robertftenbosch/tenbio/internal/predict"
	"github.com/robertftenbosch/tenbio/internal/worker"
)

var backendCmd = &cobra.Command{
	Use:   "backend",
	Short: "Run one prediction backend service",
	RunE: func(cmd *cobra.Command, _ []string) error {
		logger := newLogger()
		cfg, err := config.LoadBackend()
		if err != nil {
			return fmt.Errorf("load backend config: %w", err)
		}

		shutdownTracing, err := observability.InitTracingFromEnv("backend-" + cfg.Kind)
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}

		cat, err := catalog.ForKind(cfg.Kind, cfg.CatalogFile)
		if err != nil {
			return err
		}

		var queue jobs.Queue
		var redisQueue *jobs.RedisQueue
		if cfg.QueueBackend == "redis" {
			redisQueue = jobs.NewRedisQueue(jobs.RedisQueueConfig{
				Addr:     cfg.RedisAddr,
				Password: cfg.RedisPassword,
				DB:       cfg.RedisDB,
				Key:      cfg.RedisKey,
			})
			queue = redisQueue
		} else {
			queue = jobs.NewMemoryQueue()
		}

		var sink worker.ArtifactSink
		if cfg.MinIOEndpoint != "" {
			minioSink, err := artifact.NewMinIOSink(artifact.MinIOConfig{
				Endpoint:  cfg.MinIOEndpoint,
				AccessKey: cfg.MinIOAccessKey,
				SecretKey: cfg.MinIOSecretKey,
				Bucket:    cfg.MinIOBucket,
				UseSSL:    cfg.MinIOUseSSL,
			}, logger)
			if err != nil {
				return fmt.Errorf("artifact sink: %w", err)
			}
			sink = minioSink
		}

		service, err := backend.NewService(backend.ServiceConfig{
			Kind:      cfg.Kind,
			Catalog:   cat,
			Queue:     queue,
			Loader:    predict.NewCommandLoader(cfg.RunnerCommand, logger),
			Predictor: predict.NewCommandPredictor(cfg.RunnerCommand, nil, logger),
			Sink:      sink,
			OutputDir: cfg.OutputDir,
			Logger:    logger,
		})
		if err != nil {
			return err
		}
		service.Start()
		service.StartupPreload(cfg.PreloadModel)

		server := backend.NewServer(service, nil, logger)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		httpServer := &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Port),
			Handler: server.Handler(),
		}
		errc := make(chan error, 1)
		go func() {
			logger.Info("backend listening", "kind", cfg.Kind, "port", cfg.Port, "queue", cfg.QueueBackend)
			errc <- httpServer.ListenAndServe()
		}()

		select {
		case err := <-errc:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
		case <-ctx.Done():
			logger.Info("shutting down backend, waiting for current job")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
		service.Stop()
		if redisQueue != nil {
			_ = redisQueue.Close()
		}
		_ = shutdownTracing(shutdownCtx)
		return nil
	},
}
