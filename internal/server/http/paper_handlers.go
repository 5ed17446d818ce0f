package httpserver

import (
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
)

// arxivIDPattern accepts new-style (2401.01234, optional version) and
// old-style (hep-th/9901001) identifiers, with or without an "arXiv:" prefix.
var arxivIDPattern = regexp.MustCompile(`^(?i:arxiv:)?([0-9]{4}\.[0-9]{4,5}|[a-z\-]+(\.[A-Z]{2})?/[0-9]{7})(v[0-9]+)?$`)

// getPaper routes GET /api/v1/papers/* to the paper or artifacts handler.
// The id is taken from a wildcard since old-style ids contain a slash.
func (s *Server) getPaper(w http.ResponseWriter, r *http.Request) {
	rest := chi.URLParam(r, "*")
	if id, ok := strings.CutSuffix(rest, "/artifacts"); ok {
		s.paperArtifacts(w, r, id)
		return
	}
	s.lookupPaper(w, r, rest)
}

// lookupPaper handles GET /api/v1/papers/{arxivID}. With artifacts=true the
// related Hub models, datasets and Spaces are included.
func (s *Server) lookupPaper(w http.ResponseWriter, r *http.Request, rawID string) {
	arxivID, ok := s.arxivIDParam(w, rawID)
	if !ok {
		return
	}

	withArtifacts := false
	if raw := r.URL.Query().Get("artifacts"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "artifacts must be a boolean")
			return
		}
		withArtifacts = v
	}

	rec, err := s.lookup.LookupPaper(r.Context(), arxivID)
	if err != nil {
		s.logger.Debug().Err(err).Str("arxiv_id", arxivID).Msg("paper lookup failed")
		writeDomainError(w, err)
		return
	}

	resp := paperLookupResponse{Paper: recordToResponse(rec)}
	if withArtifacts {
		artifacts, err := s.lookup.RelatedArtifacts(r.Context(), arxivID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		resp.Artifacts = &artifacts
	}
	writeJSON(w, http.StatusOK, resp)
}

// paperArtifacts handles GET /api/v1/papers/{arxivID}/artifacts.
func (s *Server) paperArtifacts(w http.ResponseWriter, r *http.Request, rawID string) {
	arxivID, ok := s.arxivIDParam(w, rawID)
	if !ok {
		return
	}

	artifacts, err := s.lookup.RelatedArtifacts(r.Context(), arxivID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, artifacts)
}

// arxivIDParam validates the path id and that lookups are enabled. An
// escaped slash (hep-th%2F9901001) is accepted as well.
func (s *Server) arxivIDParam(w http.ResponseWriter, rawID string) (string, bool) {
	if s.lookup == nil {
		writeError(w, http.StatusNotImplemented, "paper lookup is not enabled")
		return "", false
	}
	arxivID, err := url.PathUnescape(rawID)
	if err != nil || !arxivIDPattern.MatchString(arxivID) {
		writeError(w, http.StatusBadRequest, "invalid arxiv_id")
		return "", false
	}
	return arxivID, true
}
