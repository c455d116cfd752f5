package tavily

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/researchgpt/evidence-service/internal/domain"
	"github.com/researchgpt/evidence-service/internal/observability"
	"github.com/researchgpt/evidence-service/internal/sources"
)

const (
	// DefaultBaseURL is the default Tavily API base URL.
	DefaultBaseURL = "https://api.tavily.com"

	// DefaultRateLimit is the default rate limit for requests per second.
	DefaultRateLimit = 2.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 4

	// DefaultTimeout is the default request timeout. Web searches take
	// longer than metadata lookups.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxResults is the default maximum results per search.
	DefaultMaxResults = 5

	// maxResponseBytes bounds the response body size.
	maxResponseBytes = 10 << 20

	// sourceName is the human-readable name for this provider.
	sourceName = "Tavily"
)

// Config holds configuration for the Tavily client.
type Config struct {
	// BaseURL is the Tavily API base URL. Defaults to DefaultBaseURL.
	BaseURL string

	// APIKey authenticates requests. The client is disabled without it.
	APIKey string

	// Timeout is the request timeout. Defaults to DefaultTimeout.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	BurstSize int

	// SearchDepth is the Tavily search depth, "basic" or "advanced".
	SearchDepth string

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

// Client implements the sources.WebSearcher interface for Tavily.
type Client struct {
	config     Config
	httpClient *sources.HTTPClient
}

// Ensure Client implements WebSearcher.
var _ sources.WebSearcher = (*Client)(nil)

// New creates a new Tavily client with the given configuration.
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

// Search runs a web search and returns the raw hits in provider order.
func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]domain.WebHit, error) {
	if c.config.APIKey == "" {
		return nil, domain.NewValidationError("api_key", "required by the Tavily API")
	}
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}

	payload, err := json.Marshal(SearchRequest{
		APIKey:      c.config.APIKey,
		Query:       query,
		MaxResults:  maxResults,
		SearchDepth: c.config.SearchDepth,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	searchURL := c.config.BaseURL + "/search"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, searchURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	var response SearchResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	hits := make([]domain.WebHit, 0, len(response.Results))
	for _, result := range response.Results {
		hits = append(hits, domain.WebHit{
			Title:   result.Title,
			URL:     result.URL,
			Snippet: result.Content,
			Domain:  hostOf(result.URL),
		})
	}
	return hits, nil
}

// Name returns the human-readable name of this provider.
func (c *Client) Name() string {
	return sourceName
}

// IsEnabled returns whether this provider can be used. Tavily requires an
// API key, so the client is disabled without one.
func (c *Client) IsEnabled() bool {
	return c.config.APIKey != ""
}

// hostOf extracts the bare host from a URL, dropping any www prefix.
func hostOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return ""
	}
	return strings.TrimPrefix(parsed.Hostname(), "www.")
}
