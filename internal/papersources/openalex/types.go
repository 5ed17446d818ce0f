// Package openalex implements the OpenAlex works API provider.
//
// OpenAlex is a free, open catalog of scholarly works. Works are fetched by
// publication date with cursor pagination and carry native citation counts.
//
// API Documentation: https://docs.openalex.org/
package openalex

// SearchResponse represents the top-level response from the OpenAlex works endpoint.
type SearchResponse struct {
	Meta    Meta   `json:"meta"`
	Results []Work `json:"results"`
}

// Meta contains metadata about the result set including the next cursor.
type Meta struct {
	Count      int    `json:"count"`
	PerPage    int    `json:"per_page"`
	NextCursor string `json:"next_cursor"`
}

// Work represents an academic work in OpenAlex.
type Work struct {
	ID              string       `json:"id"`
	DOI             string       `json:"doi"`
	Title           string       `json:"title"`
	DisplayName     string       `json:"display_name"`
	PublicationDate string       `json:"publication_date"`
	UpdatedDate     string       `json:"updated_date"`
	Type            string       `json:"type"`
	CitedByCount    *int         `json:"cited_by_count"`
	OpenAccess      *OpenAccess  `json:"open_access"`
	Authorships     []Authorship `json:"authorships"`
	PrimaryLocation *Location    `json:"primary_location"`
	Concepts        []Concept    `json:"concepts"`

	// Abstract is stored as an inverted index and reconstructed on conversion.
	AbstractInvertedIndex map[string][]int `json:"abstract_inverted_index"`
}

// OpenAccess contains open access information for a work.
type OpenAccess struct {
	IsOA  bool   `json:"is_oa"`
	OAURL string `json:"oa_url"`
}

// Authorship represents an author's contribution to a work.
type Authorship struct {
	Author AuthorInfo `json:"author"`
}

// AuthorInfo contains basic author information.
type AuthorInfo struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// Location represents where a work is available.
type Location struct {
	LandingPageURL string  `json:"landing_page_url"`
	Source         *Source `json:"source"`
}

// Source represents a publication venue.
type Source struct {
	DisplayName string `json:"display_name"`
	Type        string `json:"type"`
}

// Concept is an OpenAlex subject tag with its hierarchy level and score.
type Concept struct {
	DisplayName string  `json:"display_name"`
	Level       int     `json:"level"`
	Score       float64 `json:"score"`
}
