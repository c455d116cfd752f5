package openalex

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/researchgpt/evidence-service/internal/domain"
	"github.com/researchgpt/evidence-service/internal/observability"
	"github.com/researchgpt/evidence-service/internal/sources"
)

const (
	// DefaultBaseURL is the default OpenAlex API base URL.
	DefaultBaseURL = "https://api.openalex.org"

	// DefaultRateLimit is the default rate limit for requests per second.
	// The polite pool (with email) allows higher rates.
	DefaultRateLimit = 10.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 10

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 15 * time.Second

	// DefaultMaxResults is the default maximum results per search.
	DefaultMaxResults = 10

	// doiPrefix is the URL prefix OpenAlex uses for DOIs.
	doiPrefix = "https://doi.org/"

	// maxResponseBytes bounds the response body size.
	maxResponseBytes = 10 << 20

	// sourceName is the human-readable name for this provider.
	sourceName = "OpenAlex"
)

// Config holds configuration for the OpenAlex client.
type Config struct {
	// BaseURL is the OpenAlex API base URL. Defaults to DefaultBaseURL.
	BaseURL string

	// Email is the contact email for the polite pool. Providing an email
	// grants access to higher rate limits.
	Email string

	// Timeout is the request timeout. Defaults to DefaultTimeout.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	BurstSize int

	// Enabled indicates whether this provider is enabled for searches.
	Enabled bool

	// Metrics receives provider request metrics. Optional.
	Metrics *observability.Metrics
}

// applyDefaults sets default values for unset configuration fields.
func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RateLimit == 0 {
		c.RateLimit = DefaultRateLimit
	}
	if c.BurstSize == 0 {
		c.BurstSize = DefaultBurstSize
	}
}

// Client implements the sources.PaperSearcher interface for OpenAlex.
type Client struct {
	config     Config
	httpClient *sources.HTTPClient
}

// Ensure Client implements PaperSearcher.
var _ sources.PaperSearcher = (*Client)(nil)

// New creates a new OpenAlex client with the given configuration.
// If httpClient is nil, one is created from the configuration settings.
func New(cfg Config, httpClient *sources.HTTPClient) *Client {
	cfg.applyDefaults()

	if httpClient == nil {
		httpClient = sources.NewHTTPClient(sources.HTTPClientConfig{
			Timeout:    cfg.Timeout,
			RateLimit:  cfg.RateLimit,
			BurstSize:  cfg.BurstSize,
			SourceName: sourceName,
			Metrics:    cfg.Metrics,
		})
	}

	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// Search queries OpenAlex for works matching the query, sorted by citation
// count descending on the provider side.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]domain.PaperRecord, error) {
	if limit <= 0 {
		limit = DefaultMaxResults
	}

	params := url.Values{}
	params.Set("search", query)
	params.Set("per_page", strconv.Itoa(limit))
	params.Set("sort", "cited_by_count:desc")
	if c.config.Email != "" {
		params.Set("mailto", c.config.Email)
	}

	searchURL := fmt.Sprintf("%s/works?%s", c.config.BaseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	var works WorksResponse
	if err := json.Unmarshal(body, &works); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	records := make([]domain.PaperRecord, 0, len(works.Results))
	for _, work := range works.Results {
		records = append(records, normalizeWork(work))
	}
	return records, nil
}

// Name returns the human-readable name of this provider.
func (c *Client) Name() string {
	return sourceName
}

// IsEnabled returns whether this provider is enabled.
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// normalizeWork converts an OpenAlex work to the canonical record shape.
func normalizeWork(work Work) domain.PaperRecord {
	authors := make([]string, 0, len(work.Authorships))
	for _, authorship := range work.Authorships {
		if name := authorship.Author.DisplayName; name != "" {
			authors = append(authors, name)
		}
	}

	// OpenAlex returns DOIs in URL form; the canonical field carries the
	// bare DOI while the URL field keeps the resolvable form.
	doi := ""
	if work.DOI != "" {
		doi = strings.TrimSpace(strings.TrimPrefix(work.DOI, doiPrefix))
	}

	recordURL := work.DOI
	if recordURL == "" {
		recordURL = work.ID
	}

	var pdfURL string
	if work.OpenAccess != nil {
		pdfURL = work.OpenAccess.OAURL
	}

	var venue string
	if work.PrimaryLocation != nil && work.PrimaryLocation.Source != nil {
		venue = work.PrimaryLocation.Source.DisplayName
	}

	return domain.PaperRecord{
		Title:         work.DisplayName,
		Authors:       authors,
		Year:          work.PublicationYear,
		Venue:         venue,
		DOI:           doi,
		URL:           recordURL,
		PDFURL:        pdfURL,
		CitationCount: work.CitedByCount,
	}
}
