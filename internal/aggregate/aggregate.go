// Package aggregate orchestrates the concurrent fan-out to the evidence
// providers and folds their results into one canonical result set. A
// failing provider never fails an aggregation; it contributes nothing and
// leaves a warning.
package aggregate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/researchgpt/evidence-service/internal/domain"
	"github.com/researchgpt/evidence-service/internal/merge"
	"github.com/researchgpt/evidence-service/internal/observability"
	"github.com/researchgpt/evidence-service/internal/sources"
)

const (
	// DefaultPaperLimit is the default per-provider paper result limit.
	DefaultPaperLimit = 10

	// DefaultWebResultsPerQuery is the default per-query web result limit.
	DefaultWebResultsPerQuery = 5

	// DefaultMaxEnrichmentLookups caps how many merged DOIs are verified
	// and resolved per aggregation.
	DefaultMaxEnrichmentLookups = 15

	// DefaultEnrichmentConcurrency bounds concurrent enrichment lookups.
	DefaultEnrichmentConcurrency = 5

	// openAlexQueryKeywords and semanticScholarQueryKeywords are how many
	// leading keywords each search provider receives.
	openAlexQueryKeywords        = 5
	semanticScholarQueryKeywords = 3
)

// QuerySpec describes one aggregation request.
type QuerySpec struct {
	// Topic is the full research topic title.
	Topic string

	// Keywords are the generated search keywords, most relevant first.
	Keywords []string

	// ApproachLabel is the research approach label used in tool queries.
	ApproachLabel string
}

// ProviderWarning records a provider-level failure that was absorbed.
type ProviderWarning struct {
	Source  string `json:"source"`
	Message string `json:"message"`
}

// Result is the output of one aggregation: merged canonical papers, the
// three deduplicated web hit categories, and bookkeeping counts.
type Result struct {
	Papers       []domain.CanonicalRecord
	DatasetHits  []domain.WebHit
	LearningHits []domain.WebHit
	ToolHits     []domain.WebHit
	Warnings     []ProviderWarning

	OpenAlexCount        int
	SemanticScholarCount int
	VerifiedDOIs         int
	OpenAccessPDFs       int
}

// Config tunes the orchestrator's fan-out behavior.
type Config struct {
	PaperLimit            int
	WebResultsPerQuery    int
	MaxEnrichmentLookups  int
	EnrichmentConcurrency int

	// Metrics receives search and enrichment counters. Optional.
	Metrics *observability.Metrics
}

// applyDefaults sets default values for unset configuration fields.
func (c *Config) applyDefaults() {
	if c.PaperLimit <= 0 {
		c.PaperLimit = DefaultPaperLimit
	}
	if c.WebResultsPerQuery <= 0 {
		c.WebResultsPerQuery = DefaultWebResultsPerQuery
	}
	if c.MaxEnrichmentLookups <= 0 {
		c.MaxEnrichmentLookups = DefaultMaxEnrichmentLookups
	}
	if c.EnrichmentConcurrency <= 0 {
		c.EnrichmentConcurrency = DefaultEnrichmentConcurrency
	}
}

// Orchestrator coordinates the provider fan-out for one aggregation.
type Orchestrator struct {
	openAlex        sources.PaperSearcher
	semanticScholar sources.PaperSearcher
	verifier        sources.DOIVerifier
	pdfResolver     sources.PDFResolver
	webSearcher     sources.WebSearcher
	config          Config
	logger          zerolog.Logger
}

// New creates an orchestrator over the given providers. Any provider may
// be nil or disabled; it then contributes nothing.
func New(
	openAlex sources.PaperSearcher,
	semanticScholar sources.PaperSearcher,
	verifier sources.DOIVerifier,
	pdfResolver sources.PDFResolver,
	webSearcher sources.WebSearcher,
	cfg Config,
	logger zerolog.Logger,
) *Orchestrator {
	cfg.applyDefaults()
	return &Orchestrator{
		openAlex:        openAlex,
		semanticScholar: semanticScholar,
		verifier:        verifier,
		pdfResolver:     pdfResolver,
		webSearcher:     webSearcher,
		config:          cfg,
		logger:          logger,
	}
}

// Aggregate runs the full provider fan-out for one query: concurrent paper
// search, merge, DOI enrichment, and web discovery. Provider failures are
// absorbed into Warnings; the returned error is non-nil only when the
// context is canceled.
func (o *Orchestrator) Aggregate(ctx context.Context, spec QuerySpec) (*Result, error) {
	result := &Result{}

	primary, secondary := o.searchPapers(ctx, spec, result)
	result.OpenAlexCount = len(primary)
	result.SemanticScholarCount = len(secondary)

	result.Papers = merge.Merge(primary, secondary)
	if o.config.Metrics != nil {
		duplicates := len(primary) + len(secondary) - len(result.Papers)
		if duplicates < 0 {
			duplicates = 0
		}
		o.config.Metrics.RecordRecordsMerged(len(result.Papers), duplicates)
	}
	o.logger.Debug().
		Int("openalex", len(primary)).
		Int("semantic_scholar", len(secondary)).
		Int("merged", len(result.Papers)).
		Msg("merged provider results")

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	o.enrich(ctx, result)
	o.searchWeb(ctx, spec, result)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// searchPapers fans out to both search providers concurrently and waits
// for both outcomes. A failed or disabled provider yields an empty list.
func (o *Orchestrator) searchPapers(ctx context.Context, spec QuerySpec, result *Result) (primary, secondary []domain.PaperRecord) {
	var wg sync.WaitGroup
	var warnings [2]*ProviderWarning

	run := func(searcher sources.PaperSearcher, query string, out *[]domain.PaperRecord, slot int) {
		defer wg.Done()
		if searcher == nil || !searcher.IsEnabled() {
			return
		}
		start := o.recordSearchStarted(searcher.Name())
		records, err := searcher.Search(ctx, query, o.config.PaperLimit)
		if err != nil {
			o.recordSearchFailed(searcher.Name(), start)
			warnings[slot] = &ProviderWarning{
				Source:  searcher.Name(),
				Message: fmt.Sprintf("search failed: %s", truncateError(err)),
			}
			o.logger.Warn().Err(err).Str("source", searcher.Name()).Msg("paper search failed")
			return
		}
		o.recordSearchCompleted(searcher.Name(), len(records), start)
		*out = records
	}

	wg.Add(2)
	go run(o.openAlex, paperSearchQuery(spec.Topic, spec.Keywords, openAlexQueryKeywords), &primary, 0)
	go run(o.semanticScholar, paperSearchQuery(spec.Topic, spec.Keywords, semanticScholarQueryKeywords), &secondary, 1)
	wg.Wait()

	for _, w := range warnings {
		if w != nil {
			result.Warnings = append(result.Warnings, *w)
		}
	}
	return primary, secondary
}

// enrich verifies merged DOIs via Crossref and resolves open access PDFs
// via Unpaywall, capped at MaxEnrichmentLookups in merged order. Lookup
// failures are silent per-DOI; the record simply stays unenriched.
func (o *Orchestrator) enrich(ctx context.Context, result *Result) {
	if o.verifier == nil && (o.pdfResolver == nil || !o.pdfResolver.IsEnabled()) {
		return
	}

	dois := make([]string, 0, o.config.MaxEnrichmentLookups)
	for _, record := range result.Papers {
		if record.DOI == "" {
			continue
		}
		dois = append(dois, record.DOI)
		if len(dois) == o.config.MaxEnrichmentLookups {
			break
		}
	}
	if len(dois) == 0 {
		return
	}

	var mu sync.Mutex
	verified := make(map[string]*domain.PaperRecord)
	pdfLinks := make(map[string]string)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(o.config.EnrichmentConcurrency)

	for _, doi := range dois {
		doi := doi
		if o.verifier != nil {
			group.Go(func() error {
				record, err := o.verifier.VerifyDOI(groupCtx, doi)
				if err != nil {
					o.logger.Debug().Err(err).Str("doi", doi).Msg("doi verification failed")
					return nil
				}
				mu.Lock()
				verified[domain.NormalizeDOI(doi)] = record
				mu.Unlock()
				return nil
			})
		}
		if o.pdfResolver != nil && o.pdfResolver.IsEnabled() {
			group.Go(func() error {
				pdfURL, err := o.pdfResolver.ResolvePDF(groupCtx, doi)
				if err != nil || pdfURL == "" {
					return nil
				}
				mu.Lock()
				pdfLinks[domain.NormalizeDOI(doi)] = pdfURL
				mu.Unlock()
				return nil
			})
		}
	}
	// Tasks never return errors; Wait only observes context cancellation.
	_ = group.Wait()

	for i := range result.Papers {
		key := domain.NormalizeDOI(result.Papers[i].DOI)
		if key == "" {
			continue
		}
		if cr, ok := verified[key]; ok {
			if result.Papers[i].Venue == "" && cr.Venue != "" {
				result.Papers[i].Venue = cr.Venue
			}
			if result.Papers[i].Year == 0 && cr.Year != 0 {
				result.Papers[i].Year = cr.Year
			}
			if result.Papers[i].URL == "" && cr.URL != "" {
				result.Papers[i].URL = cr.URL
			}
		}
		if pdfURL, ok := pdfLinks[key]; ok {
			result.Papers[i].PDFURL = pdfURL
		}
	}
	result.VerifiedDOIs = len(verified)
	result.OpenAccessPDFs = len(pdfLinks)
	if o.config.Metrics != nil {
		o.config.Metrics.RecordDOIsVerified(len(verified))
		o.config.Metrics.RecordPDFsResolved(len(pdfLinks))
	}
}

// searchWeb fans out all dataset, learning-resource, and tool queries
// concurrently, then flattens and URL-dedups the hits with a single seen
// set shared across the categories in that order.
func (o *Orchestrator) searchWeb(ctx context.Context, spec QuerySpec, result *Result) {
	if o.webSearcher == nil || !o.webSearcher.IsEnabled() {
		return
	}

	dsQueries := datasetQueries(spec.Topic, spec.Keywords)
	lrQueries := learningQueries(spec.Topic)
	tQueries := toolQueries(spec.Topic, spec.ApproachLabel, spec.Keywords)

	queries := make([]string, 0, len(dsQueries)+len(lrQueries)+len(tQueries))
	queries = append(queries, dsQueries...)
	queries = append(queries, lrQueries...)
	queries = append(queries, tQueries...)

	hitsByQuery := make([][]domain.WebHit, len(queries))
	warnings := make([]*ProviderWarning, len(queries))

	var wg sync.WaitGroup
	for i, query := range queries {
		wg.Add(1)
		go func(i int, query string) {
			defer wg.Done()
			start := o.recordSearchStarted(o.webSearcher.Name())
			hits, err := o.webSearcher.Search(ctx, query, o.config.WebResultsPerQuery)
			if err != nil {
				o.recordSearchFailed(o.webSearcher.Name(), start)
				warnings[i] = &ProviderWarning{
					Source:  o.webSearcher.Name(),
					Message: fmt.Sprintf("web search %q failed: %s", query, truncateError(err)),
				}
				o.logger.Warn().Err(err).Str("query", query).Msg("web search failed")
				return
			}
			o.recordSearchCompleted(o.webSearcher.Name(), len(hits), start)
			hitsByQuery[i] = hits
		}(i, query)
	}
	wg.Wait()

	for _, w := range warnings {
		if w != nil {
			result.Warnings = append(result.Warnings, *w)
		}
	}

	flatten := func(from, to int) []domain.WebHit {
		var flat []domain.WebHit
		for _, hits := range hitsByQuery[from:to] {
			flat = append(flat, hits...)
		}
		return flat
	}

	nDS := len(dsQueries)
	nLR := len(lrQueries)
	groups := merge.DedupHitsByURL(
		flatten(0, nDS),
		flatten(nDS, nDS+nLR),
		flatten(nDS+nLR, len(queries)),
	)
	result.DatasetHits = groups[0]
	result.LearningHits = groups[1]
	result.ToolHits = groups[2]
}

// recordSearchStarted marks the start of one provider search and returns
// the start time for the matching completion or failure record.
func (o *Orchestrator) recordSearchStarted(provider string) time.Time {
	if o.config.Metrics != nil {
		o.config.Metrics.RecordSearchStarted(provider)
	}
	return time.Now()
}

func (o *Orchestrator) recordSearchCompleted(provider string, count int, start time.Time) {
	if o.config.Metrics != nil {
		o.config.Metrics.RecordSearchCompleted(provider, count, time.Since(start).Seconds())
		o.config.Metrics.RecordRecordsByProvider(provider, count)
	}
}

func (o *Orchestrator) recordSearchFailed(provider string, start time.Time) {
	if o.config.Metrics != nil {
		o.config.Metrics.RecordSearchFailed(provider, time.Since(start).Seconds())
	}
}

// truncateError bounds the error text carried into a warning message.
func truncateError(err error) string {
	const max = 100
	msg := err.Error()
	if len(msg) > max {
		return msg[:max]
	}
	return msg
}
