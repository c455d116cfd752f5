package unpaywall

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/researchgpt/evidence-service/internal/domain"
	"github.com/researchgpt/evidence-service/internal/observability"
	"github.com/researchgpt/evidence-service/internal/sources"
)

const (
	// DefaultBaseURL is the default Unpaywall API base URL.
	DefaultBaseURL = "https://api.unpaywall.org/v2"

	// DefaultRateLimit is the default rate limit for requests per second.
	DefaultRateLimit = 5.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 5

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 15 * time.Second

	// maxResponseBytes bounds the response body size.
	maxResponseBytes = 10 << 20

	// sourceName is the human-readable name for this provider.
	sourceName = "Unpaywall"
)

// Config holds configuration for the Unpaywall client.
type Config struct {
	// BaseURL is the Unpaywall API base URL. Defaults to DefaultBaseURL.
	BaseURL string

	// Email is the contact email. Unpaywall requires it on every request,
	// so the client is disabled when it is empty.
	Email string

	// Timeout is the request timeout. Defaults to DefaultTimeout.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	BurstSize int

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

// Client implements the sources.PDFResolver interface for Unpaywall.
type Client struct {
	config     Config
	httpClient *sources.HTTPClient
}

// Ensure Client implements PDFResolver.
var _ sources.PDFResolver = (*Client)(nil)

// New creates a new Unpaywall client with the given configuration.
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

// ResolvePDF looks up the best open access PDF URL for a DOI. It returns
// an empty string with a nil error when no open access copy is known.
func (c *Client) ResolvePDF(ctx context.Context, doi string) (string, error) {
	normalized := domain.NormalizeDOI(doi)
	if normalized == "" {
		return "", domain.NewValidationError("doi", "must not be empty")
	}
	if c.config.Email == "" {
		return "", domain.NewValidationError("email", "required by the Unpaywall API")
	}

	params := url.Values{}
	params.Set("email", c.config.Email)

	lookupURL := fmt.Sprintf("%s/%s?%s", c.config.BaseURL, url.PathEscape(normalized), params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, lookupURL, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	var response DOIResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}

	return bestPDFURL(response), nil
}

// Name returns the human-readable name of this provider.
func (c *Client) Name() string {
	return sourceName
}

// IsEnabled returns whether this provider can be used. Unpaywall requires
// a contact email, so the client is disabled without one.
func (c *Client) IsEnabled() bool {
	return c.config.Email != ""
}

// bestPDFURL picks the best available link: the best location's direct PDF
// link, then its landing URL, then the first usable fallback location.
func bestPDFURL(response DOIResponse) string {
	if loc := response.BestOALocation; loc != nil {
		if loc.URLForPDF != "" {
			return loc.URLForPDF
		}
		if loc.URL != "" {
			return loc.URL
		}
	}
	for _, loc := range response.OALocations {
		if loc.URLForPDF != "" {
			return loc.URLForPDF
		}
		if loc.URL != "" {
			return loc.URL
		}
	}
	return ""
}
