// Package openalex provides a client for the OpenAlex works API.
//
// OpenAlex is an open catalog of scholarly works. This package implements
// the sources.PaperSearcher interface, normalizing OpenAlex works into
// domain.PaperRecord.
//
// API Documentation: https://docs.openalex.org/
package openalex

// WorksResponse represents the response from the OpenAlex works endpoint.
type WorksResponse struct {
	// Meta contains pagination metadata for the result set.
	Meta Meta `json:"meta"`

	// Results contains the works returned by the search.
	Results []Work `json:"results"`
}

// Meta contains result set metadata.
type Meta struct {
	Count   int `json:"count"`
	PerPage int `json:"per_page"`
	Page    int `json:"page"`
}

// Work represents a single scholarly work in the OpenAlex response.
type Work struct {
	// ID is the OpenAlex work URL identifier.
	ID string `json:"id"`

	// DOI is the DOI in URL form (https://doi.org/...).
	DOI string `json:"doi"`

	// DisplayName is the work's title.
	DisplayName string `json:"display_name"`

	// PublicationYear is the year of publication.
	PublicationYear int `json:"publication_year"`

	// CitedByCount is the number of works citing this one.
	CitedByCount int `json:"cited_by_count"`

	// Authorships lists the work's authors in order.
	Authorships []Authorship `json:"authorships"`

	// OpenAccess contains open access information.
	OpenAccess *OpenAccess `json:"open_access"`

	// PrimaryLocation is the work's primary hosting location.
	PrimaryLocation *Location `json:"primary_location"`
}

// Authorship links a work to one author.
type Authorship struct {
	Author Author `json:"author"`
}

// Author identifies one work author.
type Author struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// OpenAccess contains open access information for a work.
type OpenAccess struct {
	IsOA  bool   `json:"is_oa"`
	OAURL string `json:"oa_url"`
}

// Location describes where a work is hosted.
type Location struct {
	Source *LocationSource `json:"source"`
}

// LocationSource identifies the venue hosting a work.
type LocationSource struct {
	DisplayName string `json:"display_name"`
}
