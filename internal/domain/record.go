// Package domain defines the core entities of the evidence service:
// provider records, canonical merged records, result bundles, runs,
// events, and artifacts.
package domain

import "time"

// Provenance identifies which provider(s) contributed to a record.
type Provenance string

const (
	// ProvenanceOpenAlex marks a record contributed only by OpenAlex.
	ProvenanceOpenAlex Provenance = "openalex"

	// ProvenanceSemanticScholar marks a record contributed only by Semantic Scholar.
	ProvenanceSemanticScholar Provenance = "semantic_scholar"

	// ProvenanceBoth marks a record merged from both search providers.
	ProvenanceBoth Provenance = "both"
)

// Label returns the human-readable provenance label attached to curated
// records. Unknown provenance falls back to a generic label.
func (p Provenance) Label() string {
	switch p {
	case ProvenanceOpenAlex:
		return "OpenAlex"
	case ProvenanceSemanticScholar:
		return "Semantic Scholar"
	case ProvenanceBoth:
		return "OpenAlex + Semantic Scholar"
	default:
		return "Academic Database"
	}
}

// PaperRecord is a record returned by one provider, normalized to the
// canonical field shape but not yet deduplicated. It exists only within a
// single aggregation request.
type PaperRecord struct {
	Title                    string   `json:"title"`
	Authors                  []string `json:"authors"`
	Year                     int      `json:"year,omitempty"`
	Venue                    string   `json:"venue,omitempty"`
	DOI                      string   `json:"doi,omitempty"`
	URL                      string   `json:"url,omitempty"`
	PDFURL                   string   `json:"pdf_url,omitempty"`
	CitationCount            int      `json:"cited_by_count,omitempty"`
	InfluentialCitationCount int      `json:"influential_citation_count,omitempty"`
	Abstract                 string   `json:"abstract,omitempty"`
}

// Key returns the record's dedup key (normalized DOI, else title key).
func (r PaperRecord) Key() string {
	return DedupKey(r.DOI, r.Title)
}

// CanonicalRecord is the merged, deduplicated form of one or more
// PaperRecords sharing a dedup key, tagged with provenance.
type CanonicalRecord struct {
	PaperRecord
	Source Provenance `json:"source"`
}

// WebHit is one raw general web search result, before curation.
type WebHit struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
	Domain  string `json:"domain,omitempty"`
}

// CuratedPaper is a paper annotated by the curation collaborator.
type CuratedPaper struct {
	Title            string   `json:"title"`
	Authors          []string `json:"authors,omitempty"`
	Year             int      `json:"year,omitempty"`
	Venue            string   `json:"venue,omitempty"`
	DOI              string   `json:"doi,omitempty"`
	URL              string   `json:"url,omitempty"`
	PDFURL           string   `json:"pdf_url,omitempty"`
	CitationCount    int      `json:"cited_by_count,omitempty"`
	WhyRelevant      string   `json:"why_relevant,omitempty"`
	CredibilityNotes string   `json:"credibility_notes,omitempty"`
	Source           string   `json:"source,omitempty"`
}

// Dataset is a curated dataset entry in a result bundle.
type Dataset struct {
	Name        string `json:"name"`
	Domain      string `json:"domain,omitempty"`
	URL         string `json:"url"`
	WhyRelevant string `json:"why_relevant,omitempty"`
	License     string `json:"license,omitempty"`
}

// Tool is a curated software tool entry in a result bundle.
type Tool struct {
	Name      string `json:"name"`
	Type      string `json:"type,omitempty"`
	URL       string `json:"url"`
	WhyUseful string `json:"why_useful,omitempty"`
}

// LearningResource is a curated learning resource entry in a result bundle.
type LearningResource struct {
	Name      string `json:"name"`
	URL       string `json:"url"`
	WhyUseful string `json:"why_useful,omitempty"`
	Source    string `json:"source,omitempty"`
}

// BundleMetadata describes how and when a result bundle was produced.
type BundleMetadata struct {
	CreatedAt      time.Time `json:"created_at"`
	SearchKeywords []string  `json:"search_keywords"`
	Providers      []string  `json:"source_providers"`
}

// ResultBundle is the full output of one aggregation request: four disjoint
// ordered categories plus metadata. Immutable once created; persisted as a
// new artifact version.
type ResultBundle struct {
	Metadata          BundleMetadata     `json:"metadata"`
	Papers            []CuratedPaper     `json:"papers"`
	Datasets          []Dataset          `json:"datasets"`
	Tools             []Tool             `json:"tools"`
	LearningResources []LearningResource `json:"learning_resources"`
}

// TotalResources returns the number of entries across all categories.
func (b *ResultBundle) TotalResources() int {
	return len(b.Papers) + len(b.Datasets) + len(b.Tools) + len(b.LearningResources)
}
