// Package semanticscholar provides a client for the Semantic Scholar
// Graph API.
//
// This package implements the sources.PaperSearcher interface for paper
// search and a single-paper lookup, normalizing responses into
// domain.PaperRecord.
//
// API Documentation: https://api.semanticscholar.org/api-docs/
package semanticscholar

// SearchResponse represents the response from the paper search endpoint.
type SearchResponse struct {
	// Total is the total number of papers matching the query.
	Total int `json:"total"`

	// Offset is the current offset in the result set.
	Offset int `json:"offset"`

	// Data contains the papers returned by the search.
	Data []PaperResult `json:"data"`
}

// PaperResult represents a single paper in the API response.
type PaperResult struct {
	// PaperID is the Semantic Scholar unique identifier.
	PaperID string `json:"paperId"`

	// Title is the paper title.
	Title string `json:"title"`

	// Abstract is the paper's abstract text.
	Abstract string `json:"abstract"`

	// Year is the publication year.
	Year int `json:"year"`

	// Venue is the publication venue.
	Venue string `json:"venue"`

	// URL is the Semantic Scholar page for the paper.
	URL string `json:"url"`

	// Authors is the ordered list of paper authors.
	Authors []Author `json:"authors"`

	// CitationCount is the number of citations received.
	CitationCount int `json:"citationCount"`

	// InfluentialCitationCount is the number of influential citations.
	InfluentialCitationCount int `json:"influentialCitationCount"`

	// OpenAccessPDF contains the open access PDF link if available.
	OpenAccessPDF *OpenAccessPDF `json:"openAccessPdf,omitempty"`

	// ExternalIDs contains external identifiers (DOI, ArXiv, ...).
	ExternalIDs *ExternalIDs `json:"externalIds,omitempty"`
}

// Author identifies one paper author.
type Author struct {
	AuthorID string `json:"authorId"`
	Name     string `json:"name"`
}

// OpenAccessPDF contains the open access PDF location.
type OpenAccessPDF struct {
	URL    string `json:"url"`
	Status string `json:"status"`
}

// ExternalIDs contains external identifiers for a paper.
type ExternalIDs struct {
	DOI   string `json:"DOI,omitempty"`
	ArXiv string `json:"ArXiv,omitempty"`
}
