// Package unpaywall provides a client for the Unpaywall REST API.
//
// Unpaywall indexes legal open access locations for DOI-registered works.
// This package implements the sources.PDFResolver interface, resolving a
// DOI to a direct PDF link where one exists.
//
// API Documentation: https://unpaywall.org/products/api
package unpaywall

// DOIResponse represents the response for a single DOI lookup.
type DOIResponse struct {
	// DOI is the looked-up DOI in bare form.
	DOI string `json:"doi"`

	// IsOA indicates whether any open access location is known.
	IsOA bool `json:"is_oa"`

	// BestOALocation is Unpaywall's ranked best open access location.
	BestOALocation *OALocation `json:"best_oa_location"`

	// OALocations lists all known open access locations.
	OALocations []OALocation `json:"oa_locations"`
}

// OALocation describes one open access copy of a work.
type OALocation struct {
	// URL is the landing page or file URL for this location.
	URL string `json:"url"`

	// URLForPDF is the direct PDF URL, when known.
	URLForPDF string `json:"url_for_pdf"`

	// HostType is "publisher" or "repository".
	HostType string `json:"host_type"`

	// Version is the manuscript version hosted at this location.
	Version string `json:"version"`
}
