package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/topoagent/internal/metrics"
	"github.com/kailas-cloud/topoagent/internal/orchestrator"
	chiTransport "github.com/kailas-cloud/topoagent/internal/transport/chi"
	healthuc "github.com/kailas-cloud/topoagent/internal/usecase/health"
	"github.com/kailas-cloud/topoagent/internal/version"
)

func newServeCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the retrieval HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, flags)
		},
	}
}

func serve(ctx context.Context, flags *globalFlags) error {
	a, err := newApp(ctx, flags, prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	defer a.close()

	logger := a.logger
	cfg := a.cfg
	logger.Info("Starting topoagent",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", a.env),
		zap.Int("port", cfg.HTTP.Port),
		zap.Int("top_k", a.node.TopK()),
	)

	tools := orchestrator.NewToolNode(metrics.NewOrchestrator(prometheus.DefaultRegisterer), a.node)
	health := healthuc.New(a.store, a.embedder)

	server := chiTransport.NewServer(chiTransport.Config{
		Tools:            tools,
		Tool:             a.node.Name(),
		Health:           health,
		Gatherer:         prometheus.DefaultGatherer,
		Metrics:          metrics.NewHTTP(prometheus.DefaultRegisterer),
		Logger:           logger,
		APIPrefix:        cfg.HTTP.APIPrefix,
		CORSAllowOrigins: cfg.HTTP.CORSAllowOrigins,
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      server.Router(),
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
		BaseContext:  func(_ net.Listener) context.Context { return a.baseContext(context.Background()) },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
		return err
	}
	logger.Info("Server exited")
	return nil
}
