package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recalld/internal/config"
	"github.com/fyrsmithlabs/recalld/internal/embeddings"
	"github.com/fyrsmithlabs/recalld/internal/extraction"
	"github.com/fyrsmithlabs/recalld/internal/llm"
	"github.com/fyrsmithlabs/recalld/internal/logging"
	"github.com/fyrsmithlabs/recalld/internal/memory"
	"github.com/fyrsmithlabs/recalld/internal/reconcile"
	"github.com/fyrsmithlabs/recalld/internal/server"
	"github.com/fyrsmithlabs/recalld/internal/telemetry"
	"github.com/fyrsmithlabs/recalld/internal/vectorstore"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the recalld HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func runServe(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadWithFile(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := buildLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()
	zapLogger := logger.Underlying()

	logger.Info(ctx, "starting recalld",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("vectorstore", cfg.VectorStore.Provider),
		zap.String("embeddings", cfg.Embeddings.Provider),
		zap.String("llm", cfg.LLM.Provider))

	tel, err := telemetry.New(ctx, buildTelemetryConfig(cfg.Telemetry))
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			logger.Warn(ctx, "telemetry shutdown failed", zap.Error(err))
		}
	}()

	store, err := vectorstore.NewStore(cfg.VectorStore)
	if err != nil {
		return fmt.Errorf("failed to initialize vector store: %w", err)
	}
	defer store.Close()

	embedder, err := embeddings.NewProvider(cfg.Embeddings)
	if err != nil {
		return fmt.Errorf("failed to initialize embeddings provider: %w", err)
	}
	defer embedder.Close()

	provider, err := llm.NewProvider(cfg.LLM)
	if err != nil {
		return fmt.Errorf("failed to initialize llm provider: %w", err)
	}
	defer provider.Close()

	extractor := extraction.NewExtractor(provider, zapLogger)
	if cfg.Memory.CustomPrompt != "" {
		extractor = extractor.WithCustomPrompt(cfg.Memory.CustomPrompt)
	}

	engine := reconcile.NewEngine(store, embedder, provider, cfg.Memory, zapLogger)
	svc := memory.NewService(store, embedder, extractor, engine, nil, zapLogger)

	srv, err := server.NewServer(svc, zapLogger, cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info(ctx, "shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown failed: %w", err)
	}

	logger.Info(ctx, "shutdown complete")
	return nil
}

// buildLogger maps the flat logging section onto the logging package config.
func buildLogger(cfg config.LoggingConfig) (*logging.Logger, error) {
	logCfg := logging.NewDefaultConfig()
	if cfg.Level != "" {
		level, err := logging.LevelFromString(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		logCfg.Level = level
	}
	if cfg.Format != "" {
		logCfg.Format = cfg.Format
	}
	for k, v := range cfg.Fields {
		logCfg.Fields[k] = v
	}
	return logging.NewLogger(logCfg)
}

// buildTelemetryConfig maps the telemetry section onto the telemetry
// package config.
func buildTelemetryConfig(cfg config.TelemetryConfig) *telemetry.Config {
	telCfg := telemetry.NewDefaultConfig()
	telCfg.Enabled = cfg.Enabled
	telCfg.ServiceVersion = version
	if cfg.ServiceName != "" {
		telCfg.ServiceName = cfg.ServiceName
	}
	if cfg.Endpoint != "" {
		telCfg.Endpoint = cfg.Endpoint
	}
	telCfg.Insecure = cfg.Insecure
	if cfg.Interval.Duration() > 0 {
		telCfg.ExportInterval = cfg.Interval
	}
	return telCfg
}
