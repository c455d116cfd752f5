// Package main provides the entry point for the evidence service HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/researchgpt/evidence-service/internal/aggregate"
	"github.com/researchgpt/evidence-service/internal/config"
	"github.com/researchgpt/evidence-service/internal/database"
	"github.com/researchgpt/evidence-service/internal/eventlog"
	"github.com/researchgpt/evidence-service/internal/llm"
	"github.com/researchgpt/evidence-service/internal/observability"
	"github.com/researchgpt/evidence-service/internal/repository"
	"github.com/researchgpt/evidence-service/internal/scout"
	httpserver "github.com/researchgpt/evidence-service/internal/server/http"
	"github.com/researchgpt/evidence-service/internal/sources/crossref"
	"github.com/researchgpt/evidence-service/internal/sources/openalex"
	"github.com/researchgpt/evidence-service/internal/sources/semanticscholar"
	"github.com/researchgpt/evidence-service/internal/sources/tavily"
	"github.com/researchgpt/evidence-service/internal/sources/unpaywall"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Set up structured logging.
	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	logger = logger.With().Str("component", "server").Logger()
	logger.Info().Msg("evidence-service server starting")

	// Set up context with graceful shutdown via OS signals.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to PostgreSQL.
	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()
	logger.Info().Msg("database connection established")

	// Run migrations if configured.
	if cfg.Database.MigrationAutoRun {
		migrator, err := database.NewMigrator(db, cfg.Database.MigrationPath, logger)
		if err != nil {
			return fmt.Errorf("create migrator: %w", err)
		}
		defer func() {
			if closeErr := migrator.Close(); closeErr != nil {
				logger.Error().Err(closeErr).Msg("failed to close migrator")
			}
		}()

		if err := migrator.Up(); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
	}

	// Set up Prometheus metrics if configured. A nil Metrics disables
	// recording throughout the service.
	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics("evidence_service")
	}

	// Create repositories.
	runRepo := repository.NewPgRunRepository(db)
	eventRepo := repository.NewPgEventRepository(db)
	artifactRepo := repository.NewPgArtifactRepository(db, metrics)

	// Create the event log, with an optional Kafka mirror.
	var mirror eventlog.Mirror
	if cfg.Kafka.Enabled {
		kafkaMirror := eventlog.NewKafkaMirror(eventlog.KafkaMirrorConfig{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.Topic,
			WriteTimeout: cfg.Kafka.WriteTimeout,
		})
		defer func() {
			if closeErr := kafkaMirror.Close(); closeErr != nil {
				logger.Error().Err(closeErr).Msg("failed to close kafka mirror")
			}
		}()
		mirror = kafkaMirror
		logger.Info().
			Strs("brokers", cfg.Kafka.Brokers).
			Str("topic", cfg.Kafka.Topic).
			Msg("kafka event mirror enabled")
	}
	eventLog := eventlog.New(eventRepo, mirror, metrics, logger)

	// Create the provider clients.
	openAlexClient := openalex.New(openalex.Config{
		BaseURL:   cfg.Sources.OpenAlex.BaseURL,
		Email:     cfg.Sources.OpenAlex.Email,
		Timeout:   cfg.Sources.OpenAlex.Timeout,
		RateLimit: cfg.Sources.OpenAlex.RateLimit,
		BurstSize: cfg.Sources.OpenAlex.BurstSize,
		Enabled:   cfg.Sources.OpenAlex.Enabled,
		Metrics:   metrics,
	}, nil)

	semanticScholarClient := semanticscholar.New(semanticscholar.Config{
		BaseURL:   cfg.Sources.SemanticScholar.BaseURL,
		APIKey:    cfg.Sources.SemanticScholar.APIKey,
		Timeout:   cfg.Sources.SemanticScholar.Timeout,
		RateLimit: cfg.Sources.SemanticScholar.RateLimit,
		BurstSize: cfg.Sources.SemanticScholar.BurstSize,
		Enabled:   cfg.Sources.SemanticScholar.Enabled,
		Metrics:   metrics,
	}, nil)

	crossrefClient := crossref.New(crossref.Config{
		BaseURL:   cfg.Sources.Crossref.BaseURL,
		Email:     cfg.Sources.Crossref.Email,
		Timeout:   cfg.Sources.Crossref.Timeout,
		RateLimit: cfg.Sources.Crossref.RateLimit,
		BurstSize: cfg.Sources.Crossref.BurstSize,
		Metrics:   metrics,
	}, nil)

	unpaywallClient := unpaywall.New(unpaywall.Config{
		BaseURL:   cfg.Sources.Unpaywall.BaseURL,
		Email:     cfg.Sources.Unpaywall.Email,
		Timeout:   cfg.Sources.Unpaywall.Timeout,
		RateLimit: cfg.Sources.Unpaywall.RateLimit,
		BurstSize: cfg.Sources.Unpaywall.BurstSize,
		Metrics:   metrics,
	}, nil)

	tavilyClient := tavily.New(tavily.Config{
		BaseURL:   cfg.Sources.Tavily.BaseURL,
		APIKey:    cfg.Sources.Tavily.APIKey,
		Timeout:   cfg.Sources.Tavily.Timeout,
		RateLimit: cfg.Sources.Tavily.RateLimit,
		BurstSize: cfg.Sources.Tavily.BurstSize,
		Metrics:   metrics,
	}, nil)

	// Create the aggregation orchestrator over the providers.
	orchestrator := aggregate.New(
		openAlexClient,
		semanticScholarClient,
		crossrefClient,
		unpaywallClient,
		tavilyClient,
		aggregate.Config{
			PaperLimit:            cfg.Discovery.PaperLimit,
			WebResultsPerQuery:    cfg.Discovery.WebResultsPerQuery,
			MaxEnrichmentLookups:  cfg.Discovery.MaxEnrichmentLookups,
			EnrichmentConcurrency: cfg.Discovery.EnrichmentConcurrency,
			Metrics:               metrics,
		},
		logger,
	)

	// Create the LLM client.
	groqClient := llm.NewGroqClient(llm.GroqConfig{
		APIKey:      cfg.LLM.GroqAPIKey,
		Model:       cfg.LLM.Model,
		BaseURL:     cfg.LLM.BaseURL,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
		MaxRetries:  cfg.LLM.MaxRetries,
		Metrics:     metrics,
	})

	// Create the discovery job driver. Run outcomes are recorded by
	// wrapping it.
	jobDriver := scout.New(groqClient, orchestrator, runRepo, artifactRepo, eventLog, metrics, logger)

	var driver httpserver.JobDriver = jobDriver
	var metricsServer *http.Server
	if metrics != nil {
		driver = &instrumentedDriver{next: jobDriver, metrics: metrics}

		metricsMux := http.NewServeMux()
		metricsMux.Handle(cfg.Metrics.Path, promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress(),
			Handler:      metricsMux,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: 30 * time.Second,
		}
	}

	// Create the HTTP REST API server.
	httpCfg := httpserver.Config{
		Address:         cfg.Server.HTTPAddress(),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout, // Zero keeps SSE streams open.
		IdleTimeout:     cfg.Server.IdleTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}

	httpSrv := httpserver.NewServer(
		httpCfg,
		runRepo,
		artifactRepo,
		eventLog,
		driver,
		db,
		logger,
	)

	// Channel to collect server errors.
	errCh := make(chan error, 2)

	// Start HTTP REST API server in background.
	go func() {
		logger.Info().
			Str("address", httpCfg.Address).
			Msg("HTTP REST API server starting")
		if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// Start metrics server if configured.
	if metricsServer != nil {
		go func() {
			logger.Info().
				Str("address", metricsServer.Addr).
				Msg("metrics server starting")
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server error: %w", err)
			}
		}()
	}

	readyLog := logger.Info().Str("http_address", httpCfg.Address)
	if metricsServer != nil {
		readyLog = readyLog.Str("metrics_address", metricsServer.Addr)
	}
	readyLog.Msg("evidence-service is ready")

	// Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
		logger.Info().Msg("received shutdown signal")
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		return err
	}

	// Graceful shutdown.
	logger.Info().Msg("shutting down evidence-service")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("metrics server shutdown error")
		}
	}

	// Close any live event stream subscribers.
	eventLog.Close()

	logger.Info().Msg("evidence-service shutdown complete")
	return nil
}

// instrumentedDriver wraps the discovery job driver with run outcome metrics.
type instrumentedDriver struct {
	next    httpserver.JobDriver
	metrics *observability.Metrics
}

func (d *instrumentedDriver) Run(ctx context.Context, runID uuid.UUID, req scout.DiscoveryRequest) error {
	d.metrics.RecordRunStarted()
	start := time.Now()

	err := d.next.Run(ctx, runID, req)

	duration := time.Since(start).Seconds()
	if err != nil {
		d.metrics.RecordRunFailed(duration)
		return err
	}
	d.metrics.RecordRunCompleted(duration)
	return nil
}
