// Package crossref provides a client for the Crossref REST API.
//
// Crossref is the DOI registration agency for scholarly publishing. This
// package implements the sources.DOIVerifier interface, resolving DOIs to
// registered work metadata.
//
// API Documentation: https://api.crossref.org/swagger-ui/index.html
package crossref

// WorkResponse represents the envelope around a single work lookup.
type WorkResponse struct {
	// Status is "ok" for successful lookups.
	Status string `json:"status"`

	// Message contains the work metadata.
	Message Work `json:"message"`
}

// Work represents a registered work in the Crossref response.
type Work struct {
	// DOI is the registered DOI, in bare form.
	DOI string `json:"DOI"`

	// Title holds the work's titles. Crossref returns titles as a list;
	// the first entry is the primary title.
	Title []string `json:"title"`

	// ContainerTitle holds the venue titles (journal, proceedings).
	ContainerTitle []string `json:"container-title"`

	// Author lists the work's authors.
	Author []Author `json:"author"`

	// PublishedPrint is the print publication date.
	PublishedPrint *DateParts `json:"published-print"`

	// PublishedOnline is the online publication date.
	PublishedOnline *DateParts `json:"published-online"`

	// Created is the DOI registration date.
	Created *DateParts `json:"created"`

	// URL is the resolvable DOI URL.
	URL string `json:"URL"`

	// IsReferencedByCount is the number of works referencing this one.
	IsReferencedByCount int `json:"is-referenced-by-count"`
}

// Author identifies one work author by name parts.
type Author struct {
	Given  string `json:"given"`
	Family string `json:"family"`
}

// DateParts holds a Crossref date as nested [[year, month, day]] parts.
type DateParts struct {
	DateParts [][]int `json:"date-parts"`
}

// Year returns the year component, or zero when absent.
func (d *DateParts) Year() int {
	if d == nil || len(d.DateParts) == 0 || len(d.DateParts[0]) == 0 {
		return 0
	}
	return d.DateParts[0][0]
}
