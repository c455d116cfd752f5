// Package observability provides logging, metrics, and tracing support for
// the evidence service.
//
// # Overview
//
// The observability package provides:
//
//   - Structured logging with zerolog
//   - Prometheus metrics for runs, searches, providers, the event log, and LLM calls
//   - Context helpers for propagating observability data
//
// # Logging
//
// Create a logger from configuration:
//
//	cfg := observability.LoggingConfig{
//	    Level:     "info",
//	    Format:    "json",
//	    Output:    "stdout",
//	    AddSource: true,
//	}
//
//	logger := observability.NewLogger(cfg)
//	logger.Info().Str("run_id", runID).Msg("discovery started")
//
// Add run context to logger:
//
//	logger = observability.WithRunContext(logger, runID, correlationID)
//
// # Metrics
//
// Initialize metrics:
//
//	metrics := observability.NewMetrics("evidence_service")
//
// Record metrics:
//
//	metrics.RecordRunStarted()
//	metrics.RecordSearchCompleted("openalex", 42, 1.8)
//	metrics.RecordEventAppended("thinking")
//
// # Context Helpers
//
// Store and retrieve request context:
//
//	ctx = observability.WithCorrelationID(ctx, correlationID)
//	ctx = observability.WithRunID(ctx, runID)
//
//	correlationID := observability.CorrelationIDFromContext(ctx)
//	runID := observability.RunIDFromContext(ctx)
//
// # Standard Fields
//
// Common fields used across the service:
//
//   - correlation_id: Request correlation identifier
//   - run_id: Discovery run identifier
//   - provider: Evidence provider (openalex, semanticscholar, crossref, unpaywall, tavily)
//   - query: Search query or keyword
//   - doi: Canonical record DOI
//   - trace_id: Distributed trace identifier
//
// # Thread Safety
//
// All components are safe for concurrent use from multiple goroutines.
package observability
