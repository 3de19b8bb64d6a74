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

	"github.com/robertftenbosch/tenbio/internal/config"
	"github.com/robertftenbosch/tenbio/internal/gateway"
	"github.com/robertftenbosch/tenbio/internal/observability"
)

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Run the structure-prediction gateway",
	RunE: func(cmd *cobra.Command, _ []string) error {
		logger := newLogger()
		cfg, err := config.LoadGateway()
		if err != nil {
			return fmt.Errorf("load gateway config: %w", err)
		}

		shutdownTracing, err := observability.InitTracingFromEnv("gateway")
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}

		backends := make([]gateway.Backend, 0, len(cfg.Backends))
		for _, b := range cfg.Backends {
			backends = append(backends, gateway.Backend{
				Name:        b.Name,
				BaseURL:     b.BaseURL,
				Prefixes:    b.Prefixes,
				DisplayName: b.DisplayName,
			})
		}
		router, err := gateway.NewRouter(backends, cfg.RequestTimeout, logger)
		if err != nil {
			return err
		}
		server := gateway.NewServer(router, logger)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		httpServer := &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Port),
			Handler: server.Handler(),
		}
		errc := make(chan error, 1)
		go func() {
			logger.Info("gateway listening", "port", cfg.Port, "backends", len(backends))
			errc <- httpServer.ListenAndServe()
		}()

		select {
		case err := <-errc:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
		case <-ctx.Done():
			logger.Info("shutting down gateway")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
		_ = shutdownTracing(shutdownCtx)
		return nil
	},
}
