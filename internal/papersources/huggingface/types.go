// Package huggingface implements the Hugging Face daily papers provider and
// the paper lookup helpers of the Hugging Face Hub API.
//
// Daily papers are arXiv papers curated on huggingface.co/papers. Their
// native identifier is the arXiv ID.
package huggingface

import "encoding/json"

// DailyPaper is one entry of /api/daily_papers.
type DailyPaper struct {
	Paper       Paper  `json:"paper"`
	PublishedAt string `json:"publishedAt"`
	Title       string `json:"title"`
	NumComments int    `json:"numComments"`
}

// Paper is the Hub's paper metadata.
type Paper struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Summary     string   `json:"summary"`
	Authors     []Author `json:"authors"`
	PublishedAt string   `json:"publishedAt"`
	Upvotes     int      `json:"upvotes"`
	AIKeywords  []string `json:"ai_keywords"`
}

// Author accepts both the object form ({"name": "..."}) returned by the
// papers endpoints and a bare string.
type Author struct {
	Name string `json:"name"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (a *Author) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		a.Name = name
		return nil
	}
	type plain Author
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*a = Author(p)
	return nil
}

// hubRepo is a list entry of the /models, /datasets and /spaces endpoints.
type hubRepo struct {
	ID          string `json:"id"`
	ModelID     string `json:"modelId"`
	Downloads   int    `json:"downloads"`
	Likes       int    `json:"likes"`
	PipelineTag string `json:"pipeline_tag"`
	SDK         string `json:"sdk"`
}

// ArtifactKind is the Hub repository type of a related artifact.
type ArtifactKind string

const (
	ArtifactModel   ArtifactKind = "model"
	ArtifactDataset ArtifactKind = "dataset"
	ArtifactSpace   ArtifactKind = "space"
)

// Artifact is a Hub repository that cites a paper.
type Artifact struct {
	ID          string       `json:"id"`
	Kind        ArtifactKind `json:"kind"`
	Downloads   int          `json:"downloads,omitempty"`
	Likes       int          `json:"likes,omitempty"`
	PipelineTag string       `json:"pipeline_tag,omitempty"`
	SDK         string       `json:"sdk,omitempty"`
}

// Artifacts groups the models, datasets and Spaces that reference a paper.
type Artifacts struct {
	Models   []Artifact `json:"models"`
	Datasets []Artifact `json:"datasets"`
	Spaces   []Artifact `json:"spaces"`
}

// Total returns the number of artifacts across all kinds.
func (a Artifacts) Total() int {
	return len(a.Models) + len(a.Datasets) + len(a.Spaces)
}
