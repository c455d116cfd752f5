package sources

import (
	"context"

	"github.com/researchgpt/evidence-service/internal/domain"
)

// PaperSearcher is the interface for bibliographic search providers.
// Implementations normalize provider-specific responses into
// domain.PaperRecord, preserving every field the merge engine depends on.
//
// Ordinary provider failures (timeouts, 5xx after retries, malformed
// bodies) surface as errors; the aggregation orchestrator absorbs them and
// treats the provider's contribution as empty. A search error never aborts
// the pipeline.
type PaperSearcher interface {
	// Search queries the provider for papers matching the query string.
	Search(ctx context.Context, query string, limit int) ([]domain.PaperRecord, error)

	// Name returns a human-readable name for this provider.
	Name() string

	// IsEnabled returns whether this provider is configured and available.
	IsEnabled() bool
}

// DOIVerifier is the interface for identifier-verification providers.
// A nil record with a nil error means the DOI could not be verified.
type DOIVerifier interface {
	// VerifyDOI looks up a DOI and returns cleaned metadata for it.
	VerifyDOI(ctx context.Context, doi string) (*domain.PaperRecord, error)

	// Name returns a human-readable name for this provider.
	Name() string
}

// PDFResolver is the interface for open-access resolution providers.
// An empty URL with a nil error means no open-access copy was found.
type PDFResolver interface {
	// ResolvePDF looks up the best open-access PDF URL for a DOI.
	ResolvePDF(ctx context.Context, doi string) (string, error)

	// Name returns a human-readable name for this provider.
	Name() string

	// IsEnabled returns whether this provider is configured and available.
	IsEnabled() bool
}

// WebSearcher is the interface for general web search providers.
type WebSearcher interface {
	// Search queries the provider and returns raw web hits.
	Search(ctx context.Context, query string, maxResults int) ([]domain.WebHit, error)

	// Name returns a human-readable name for this provider.
	Name() string

	// IsEnabled returns whether this provider is configured and available.
	IsEnabled() bool
}
