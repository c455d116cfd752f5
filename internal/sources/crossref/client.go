package crossref

import (
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
	// DefaultBaseURL is the default Crossref API base URL.
	DefaultBaseURL = "https://api.crossref.org"

	// DefaultRateLimit is the default rate limit for requests per second.
	// Crossref's polite pool (with mailto) tolerates sustained traffic.
	DefaultRateLimit = 5.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 5

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 15 * time.Second

	// doiOrgPrefix is the resolvable DOI URL prefix.
	doiOrgPrefix = "https://doi.org/"

	// maxResponseBytes bounds the response body size.
	maxResponseBytes = 10 << 20

	// sourceName is the human-readable name for this provider.
	sourceName = "Crossref"
)

// Config holds configuration for the Crossref client.
type Config struct {
	// BaseURL is the Crossref API base URL. Defaults to DefaultBaseURL.
	BaseURL string

	// Email is the contact email appended as mailto for the polite pool.
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

// Client implements the sources.DOIVerifier interface for Crossref.
type Client struct {
	config     Config
	httpClient *sources.HTTPClient
}

// Ensure Client implements DOIVerifier.
var _ sources.DOIVerifier = (*Client)(nil)

// New creates a new Crossref client with the given configuration.
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

// VerifyDOI looks up a DOI against the Crossref registry and returns the
// registered work metadata. The DOI may be given in bare or URL form.
func (c *Client) VerifyDOI(ctx context.Context, doi string) (*domain.PaperRecord, error) {
	normalized := domain.NormalizeDOI(doi)
	if normalized == "" {
		return nil, domain.NewValidationError("doi", "must not be empty")
	}

	params := url.Values{}
	if c.config.Email != "" {
		params.Set("mailto", c.config.Email)
	}

	lookupURL := fmt.Sprintf("%s/works/%s", c.config.BaseURL, url.PathEscape(normalized))
	if encoded := params.Encode(); encoded != "" {
		lookupURL += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, lookupURL, nil)
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

	var response WorkResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	record := normalizeWork(response.Message)
	return &record, nil
}

// Name returns the human-readable name of this provider.
func (c *Client) Name() string {
	return sourceName
}

// normalizeWork converts a Crossref work to the canonical record shape.
func normalizeWork(work Work) domain.PaperRecord {
	authors := make([]string, 0, len(work.Author))
	for _, a := range work.Author {
		name := strings.TrimSpace(strings.TrimSpace(a.Given) + " " + strings.TrimSpace(a.Family))
		if name != "" {
			authors = append(authors, name)
		}
	}

	var title string
	if len(work.Title) > 0 {
		title = work.Title[0]
	}

	var venue string
	if len(work.ContainerTitle) > 0 {
		venue = work.ContainerTitle[0]
	}

	// Crossref splits publication dates across fields; prefer the print
	// date, then online, then the registration date.
	year := work.PublishedPrint.Year()
	if year == 0 {
		year = work.PublishedOnline.Year()
	}
	if year == 0 {
		year = work.Created.Year()
	}

	recordURL := work.URL
	if recordURL == "" && work.DOI != "" {
		recordURL = doiOrgPrefix + work.DOI
	}

	return domain.PaperRecord{
		Title:         title,
		Authors:       authors,
		Year:          year,
		Venue:         venue,
		DOI:           work.DOI,
		URL:           recordURL,
		CitationCount: work.IsReferencedByCount,
	}
}
