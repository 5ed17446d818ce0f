// Package europepmc implements the Europe PMC REST search provider. It is
// used for bioRxiv and medRxiv preprints, which Europe PMC indexes under the
// PPR source.
//
// API Documentation: https://europepmc.org/RestfulWebService
package europepmc

// SearchResponse represents the top-level Europe PMC search API response.
type SearchResponse struct {
	HitCount       int        `json:"hitCount"`
	NextCursorMark string     `json:"nextCursorMark"`
	ResultList     ResultList `json:"resultList"`
}

// ResultList wraps the array of article results.
type ResultList struct {
	Result []Article `json:"result"`
}

// Article represents a single article in the Europe PMC response.
type Article struct {
	ID                   string `json:"id"`
	Source               string `json:"source"` // "PPR"
	DOI                  string `json:"doi"`
	Title                string `json:"title"`
	AuthorString         string `json:"authorString"` // "Author A, Author B"
	AbstractText         string `json:"abstractText"`
	IsOpenAccess         string `json:"isOpenAccess"` // "Y"/"N"
	CitedByCount         *int   `json:"citedByCount"`
	FirstPublicationDate string `json:"firstPublicationDate"` // "2024-01-15"
	FirstIndexDate       string `json:"firstIndexDate"`
	PublisherName        string `json:"publisherName"` // "bioRxiv" or "medRxiv"

	KeywordList *KeywordList `json:"keywordList,omitempty"`
}

// KeywordList holds author-supplied keywords.
type KeywordList struct {
	Keyword []string `json:"keyword"`
}
