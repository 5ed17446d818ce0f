package httpserver

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/helixir/paper-ingest-service/internal/domain"
	"github.com/helixir/paper-ingest-service/internal/papersources/huggingface"
)

func TestLookupPaper(t *testing.T) {
	published := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	lookup := &mockLookup{
		lookupFn: func(_ context.Context, arxivID string) (domain.Record, error) {
			if arxivID != "2401.01234" {
				return domain.Record{}, domain.NewNotFoundError("paper", arxivID)
			}
			rec := testRecord("Mixture of depths", published)
			rec.ProviderIDs = map[domain.SourceType]string{domain.SourceTypeHuggingFace: arxivID}
			return rec, nil
		},
		artifactsFn: func(_ context.Context, _ string) (huggingface.Artifacts, error) {
			return huggingface.Artifacts{
				Models: []huggingface.Artifact{{ID: "org/model", Kind: huggingface.ArtifactModel, Downloads: 12}},
			}, nil
		},
	}
	s := newTestServer(&mockEngine{}, WithPaperLookup(lookup))

	t.Run("found", func(t *testing.T) {
		rr := doRequest(t, s, http.MethodGet, "/api/v1/papers/2401.01234")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
		}
		var resp paperLookupResponse
		decodeBody(t, rr, &resp)
		if resp.Paper.Title != "Mixture of depths" {
			t.Errorf("unexpected title %q", resp.Paper.Title)
		}
		if resp.Artifacts != nil {
			t.Error("artifacts should be omitted unless requested")
		}
	})

	t.Run("with artifacts", func(t *testing.T) {
		rr := doRequest(t, s, http.MethodGet, "/api/v1/papers/2401.01234?artifacts=true")
		var resp paperLookupResponse
		decodeBody(t, rr, &resp)
		if resp.Artifacts == nil || resp.Artifacts.Total() != 1 {
			t.Fatalf("expected one artifact, got %+v", resp.Artifacts)
		}
	})

	t.Run("not found", func(t *testing.T) {
		rr := doRequest(t, s, http.MethodGet, "/api/v1/papers/2401.99999")
		if rr.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rr.Code)
		}
	})

	t.Run("upstream failure", func(t *testing.T) {
		failing := newTestServer(&mockEngine{}, WithPaperLookup(&mockLookup{
			lookupFn: func(context.Context, string) (domain.Record, error) {
				return domain.Record{}, errors.New("hub returned 502")
			},
		}))
		rr := doRequest(t, failing, http.MethodGet, "/api/v1/papers/2401.01234")
		if rr.Code != http.StatusInternalServerError {
			t.Fatalf("expected 500, got %d", rr.Code)
		}
	})
}

func TestPaperArtifacts(t *testing.T) {
	lookup := &mockLookup{
		artifactsFn: func(_ context.Context, arxivID string) (huggingface.Artifacts, error) {
			return huggingface.Artifacts{
				Datasets: []huggingface.Artifact{{ID: "org/data", Kind: huggingface.ArtifactDataset}},
				Spaces:   []huggingface.Artifact{{ID: "org/demo", Kind: huggingface.ArtifactSpace, SDK: "gradio"}},
			}, nil
		},
	}
	rr := doRequest(t, newTestServer(&mockEngine{}, WithPaperLookup(lookup)), http.MethodGet, "/api/v1/papers/arXiv:2401.01234v2/artifacts")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp huggingface.Artifacts
	decodeBody(t, rr, &resp)
	if len(resp.Datasets) != 1 || len(resp.Spaces) != 1 {
		t.Errorf("unexpected artifacts: %+v", resp)
	}
}

func TestArxivIDParam(t *testing.T) {
	s := newTestServer(&mockEngine{}, WithPaperLookup(&mockLookup{}))

	valid := []string{"2401.01234", "2401.0123", "2401.01234v3", "arxiv:2401.01234", "hep-th/9901001", "math.GT/0309136"}
	for _, id := range valid {
		t.Run("valid "+id, func(t *testing.T) {
			rr := doRequest(t, s, http.MethodGet, "/api/v1/papers/"+id+"/artifacts")
			if rr.Code != http.StatusOK {
				t.Errorf("expected 200 for %s, got %d", id, rr.Code)
			}
		})
	}

	invalid := []string{"not-an-id", "2401", "2401.1", "%27%3B%20DROP"}
	for _, id := range invalid {
		t.Run("invalid "+id, func(t *testing.T) {
			rr := doRequest(t, s, http.MethodGet, "/api/v1/papers/"+id)
			if rr.Code != http.StatusBadRequest {
				t.Errorf("expected 400 for %s, got %d", id, rr.Code)
			}
		})
	}
}

func TestLookupPaper_OldStyleID(t *testing.T) {
	var got []string
	lookup := &mockLookup{
		lookupFn: func(_ context.Context, arxivID string) (domain.Record, error) {
			got = append(got, arxivID)
			return domain.Record{Title: "Old paper"}, nil
		},
	}
	s := newTestServer(&mockEngine{}, WithPaperLookup(lookup))

	for _, path := range []string{"/api/v1/papers/hep-th/9901001", "/api/v1/papers/hep-th%2F9901001"} {
		rr := doRequest(t, s, http.MethodGet, path)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200 for %s, got %d: %s", path, rr.Code, rr.Body.String())
		}
	}
	if len(got) != 2 || got[0] != "hep-th/9901001" || got[1] != "hep-th/9901001" {
		t.Errorf("lookup received %v", got)
	}
}

func TestLookupDisabled(t *testing.T) {
	rr := doRequest(t, newTestServer(&mockEngine{}), http.MethodGet, "/api/v1/papers/2401.01234")
	if rr.Code != http.StatusNotImplemented {
		t.Fatalf("expected 501, got %d", rr.Code)
	}
}
