// Package tavily provides a client for the Tavily web search API.
//
// Tavily is a search API oriented at retrieval pipelines. This package
// implements the sources.WebSearcher interface, normalizing search hits
// into domain.WebHit.
//
// API Documentation: https://docs.tavily.com/
package tavily

// SearchRequest is the request body for the search endpoint.
type SearchRequest struct {
	// APIKey authenticates the request. Tavily accepts it in the body.
	APIKey string `json:"api_key"`

	// Query is the search query text.
	Query string `json:"query"`

	// MaxResults caps the number of results returned.
	MaxResults int `json:"max_results"`

	// SearchDepth is "basic" or "advanced".
	SearchDepth string `json:"search_depth,omitempty"`

	// IncludeAnswer requests a synthesized answer alongside the hits.
	IncludeAnswer bool `json:"include_answer,omitempty"`
}

// SearchResponse is the response body from the search endpoint.
type SearchResponse struct {
	// Query echoes the query text.
	Query string `json:"query"`

	// Results contains the search hits.
	Results []SearchResult `json:"results"`

	// ResponseTime is the server-side processing time in seconds.
	ResponseTime float64 `json:"response_time"`
}

// SearchResult is a single web search hit.
type SearchResult struct {
	// Title is the page title.
	Title string `json:"title"`

	// URL is the page URL.
	URL string `json:"url"`

	// Content is the extracted page content snippet.
	Content string `json:"content"`

	// Score is Tavily's relevance score for the hit.
	Score float64 `json:"score"`
}
