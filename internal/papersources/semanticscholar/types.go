// Package semanticscholar implements the Semantic Scholar Graph API provider
// and the citation count lookup used by enrichment.
//
// API Documentation: https://api.semanticscholar.org/api-docs/
package semanticscholar

// BulkSearchResponse represents the response from the bulk paper search
// endpoint. Token is empty on the last page.
type BulkSearchResponse struct {
	Total int           `json:"total"`
	Token string        `json:"token"`
	Data  []PaperResult `json:"data"`
}

// PaperResult represents a single paper in the Semantic Scholar API response.
type PaperResult struct {
	// PaperID is the Semantic Scholar unique identifier for the paper.
	PaperID string `json:"paperId"`

	Title    string `json:"title"`
	Abstract string `json:"abstract"`
	URL      string `json:"url"`

	// PublicationDate is the full publication date in YYYY-MM-DD format.
	// Some papers only carry Year.
	PublicationDate string `json:"publicationDate"`
	Year            int    `json:"year"`

	Venue   string   `json:"venue"`
	Authors []Author `json:"authors"`

	// CitationCount is absent when the fields parameter omits it.
	CitationCount *int `json:"citationCount"`

	IsOpenAccess bool `json:"isOpenAccess"`

	FieldsOfStudy    []string       `json:"fieldsOfStudy"`
	S2FieldsOfStudy  []FieldOfStudy `json:"s2FieldsOfStudy"`
	PublicationTypes []string       `json:"publicationTypes"`
	ExternalIDs      *ExternalIDs   `json:"externalIds,omitempty"`
}

// FieldOfStudy is one entry of s2FieldsOfStudy.
type FieldOfStudy struct {
	Category string `json:"category"`
	Source   string `json:"source"`
}

// ExternalIDs contains external identifiers for a paper.
type ExternalIDs struct {
	DOI   string `json:"DOI,omitempty"`
	ArXiv string `json:"ArXiv,omitempty"`
}

// Author represents a paper author in the Semantic Scholar API.
type Author struct {
	AuthorID string `json:"authorId,omitempty"`
	Name     string `json:"name"`
}

// ErrorResponse represents an error response from the Semantic Scholar API.
type ErrorResponse struct {
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}
