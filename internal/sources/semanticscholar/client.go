package semanticscholar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/researchgpt/evidence-service/internal/domain"
	"github.com/researchgpt/evidence-service/internal/observability"
	"github.com/researchgpt/evidence-service/internal/sources"
)

const (
	// DefaultBaseURL is the default base URL for the Graph API.
	DefaultBaseURL = "https://api.semanticscholar.org/graph/v1"

	// DefaultRateLimit is the default rate limit for unauthenticated
	// requests. With an API key this can be raised.
	DefaultRateLimit = 10.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 10

	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 15 * time.Second

	// DefaultMaxResults is the default maximum results per search.
	DefaultMaxResults = 10

	// apiKeyHeader is the header name for the API key.
	apiKeyHeader = "x-api-key"

	// paperFields is the list of fields requested from the API.
	paperFields = "title,authors,year,venue,citationCount,influentialCitationCount,abstract,externalIds,url,openAccessPdf"

	// maxResponseBytes bounds the response body size.
	maxResponseBytes = 10 << 20

	// sourceName is the human-readable name for this provider.
	sourceName = "Semantic Scholar"
)

// Config contains configuration options for the Semantic Scholar client.
type Config struct {
	// BaseURL is the base URL for the API. Defaults to DefaultBaseURL.
	BaseURL string

	// APIKey is the optional API key for authenticated requests.
	APIKey string

	// Timeout is the HTTP request timeout.
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

// Client implements the sources.PaperSearcher interface for Semantic Scholar.
type Client struct {
	config     Config
	httpClient *sources.HTTPClient
}

// Ensure Client implements PaperSearcher.
var _ sources.PaperSearcher = (*Client)(nil)

// New creates a new Semantic Scholar client with the given configuration.
// If httpClient is nil, one is created from the configuration settings.
func New(cfg Config, httpClient *sources.HTTPClient) *Client {
	cfg.applyDefaults()

	if httpClient == nil {
		httpClient = sources.NewHTTPClient(sources.HTTPClientConfig{
			Timeout:      cfg.Timeout,
			RateLimit:    cfg.RateLimit,
			BurstSize:    cfg.BurstSize,
			APIKey:       cfg.APIKey,
			APIKeyHeader: apiKeyHeader,
			SourceName:   sourceName,
			Metrics:      cfg.Metrics,
		})
	}

	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// Search queries Semantic Scholar for papers matching the query.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]domain.PaperRecord, error) {
	if limit <= 0 {
		limit = DefaultMaxResults
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("limit", strconv.Itoa(limit))
	params.Set("fields", paperFields)

	searchURL := fmt.Sprintf("%s/paper/search?%s", c.config.BaseURL, params.Encode())

	var response SearchResponse
	if err := c.getJSON(ctx, searchURL, &response); err != nil {
		return nil, err
	}

	records := make([]domain.PaperRecord, 0, len(response.Data))
	for _, paper := range response.Data {
		records = append(records, normalizePaper(paper))
	}
	return records, nil
}

// GetPaper retrieves a single paper by Semantic Scholar ID or DOI.
// Returns nil with a nil error if the paper response cannot be decoded.
func (c *Client) GetPaper(ctx context.Context, paperID string) (*domain.PaperRecord, error) {
	params := url.Values{}
	params.Set("fields", paperFields)

	lookupURL := fmt.Sprintf("%s/paper/%s?%s", c.config.BaseURL, url.PathEscape(paperID), params.Encode())

	var paper PaperResult
	if err := c.getJSON(ctx, lookupURL, &paper); err != nil {
		return nil, err
	}

	record := normalizePaper(paper)
	return &record, nil
}

// Name returns the human-readable name of this provider.
func (c *Client) Name() string {
	return sourceName
}

// IsEnabled returns whether this provider is enabled.
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// getJSON performs a GET request and decodes the JSON response into out.
func (c *Client) getJSON(ctx context.Context, requestURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// normalizePaper converts a Semantic Scholar paper to the canonical record shape.
func normalizePaper(paper PaperResult) domain.PaperRecord {
	authors := make([]string, 0, len(paper.Authors))
	for _, a := range paper.Authors {
		if a.Name != "" {
			authors = append(authors, a.Name)
		}
	}

	var doi string
	if paper.ExternalIDs != nil {
		doi = paper.ExternalIDs.DOI
	}

	var pdfURL string
	if paper.OpenAccessPDF != nil {
		pdfURL = paper.OpenAccessPDF.URL
	}

	return domain.PaperRecord{
		Title:                    paper.Title,
		Authors:                  authors,
		Year:                     paper.Year,
		Venue:                    paper.Venue,
		DOI:                      doi,
		URL:                      paper.URL,
		PDFURL:                   pdfURL,
		CitationCount:            paper.CitationCount,
		InfluentialCitationCount: paper.InfluentialCitationCount,
		Abstract:                 paper.Abstract,
	}
}
