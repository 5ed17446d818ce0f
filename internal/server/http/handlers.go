package httpserver

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/helixir/paper-ingest-service/internal/corpus"
	"github.com/helixir/paper-ingest-service/internal/domain"
	"github.com/helixir/paper-ingest-service/internal/ingest"
	"github.com/helixir/paper-ingest-service/internal/papersources"
)

// Query parameter bounds.
const (
	maxQueryLength = 512
	maxParamLength = 256
)

// listRecords handles GET /api/v1/records.
func (s *Server) listRecords(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err == nil {
		err = f.Validate()
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}

	page, err := s.engine.GetCorpusSnapshot(f)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := listRecordsResponse{
		Records:    make([]recordResponse, 0, len(page.Records)),
		TotalCount: page.Total,
		Limit:      f.Limit,
		Offset:     f.Offset,
	}
	for _, rec := range page.Records {
		resp.Records = append(resp.Records, recordToResponse(rec))
	}
	writeJSON(w, http.StatusOK, resp)
}

// getStats handles GET /api/v1/stats.
func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	snap := s.engine.Snapshot()
	writeJSON(w, http.StatusOK, statsResponse{
		CorpusSize:  len(snap.Records),
		Categories:  sortedCategories(snap.CategoryStats),
		EngineState: string(s.engine.State()),
	})
}

// getWatermark handles GET /api/v1/watermark.
func (s *Server) getWatermark(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, watermarkToResponse(s.engine.Snapshot()))
}

// runIngest handles POST /api/v1/ingest/run. With wait=true the cycle runs
// in the request and its result is returned; otherwise the cycle starts in
// the background and 202 is returned.
func (s *Server) runIngest(w http.ResponseWriter, r *http.Request) {
	wait, ok := parseWait(w, r)
	if !ok {
		return
	}

	if !wait {
		if s.engine.State() != domain.CycleStateIdle {
			writeDomainError(w, domain.ErrCycleInProgress)
			return
		}
		s.runInBackground("ingest", func() error {
			_, err := s.engine.RunCycle(s.baseCtx, ingest.TriggerHTTP)
			return err
		})
		writeJSON(w, http.StatusAccepted, runResponse{Status: "accepted"})
		return
	}

	result, err := s.engine.RunCycle(r.Context(), ingest.TriggerHTTP)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, runResponse{Status: "completed", Cycle: &result})
}

// runBackfill handles POST /api/v1/backfill/run with the same wait
// semantics as runIngest.
func (s *Server) runBackfill(w http.ResponseWriter, r *http.Request) {
	wait, ok := parseWait(w, r)
	if !ok {
		return
	}

	if !wait {
		if s.engine.State() != domain.CycleStateIdle {
			writeDomainError(w, domain.ErrCycleInProgress)
			return
		}
		s.runInBackground("backfill", func() error {
			_, err := s.engine.RunBackfill(s.baseCtx, ingest.TriggerHTTP)
			return err
		})
		writeJSON(w, http.StatusAccepted, runResponse{Status: "accepted"})
		return
	}

	result, err := s.engine.RunBackfill(r.Context(), ingest.TriggerHTTP)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, runResponse{Status: "completed", Backfill: backfillToResponse(result)})
}

func (s *Server) runInBackground(kind string, run func() error) {
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		err := run()
		switch {
		case errors.Is(err, domain.ErrCycleInProgress):
			s.logger.Info().Str("kind", kind).Msg("requested run skipped, cycle already running")
		case err != nil:
			s.logger.Error().Err(err).Str("kind", kind).Msg("requested run failed")
		}
	}()
}

func parseWait(w http.ResponseWriter, r *http.Request) (bool, bool) {
	raw := r.URL.Query().Get("wait")
	if raw == "" {
		return false, true
	}
	wait, err := strconv.ParseBool(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "wait must be a boolean")
		return false, false
	}
	return wait, true
}

// parseFilter builds a corpus filter from query parameters. Range checks
// are left to Filter.Validate.
func parseFilter(r *http.Request) (corpus.Filter, error) {
	q := r.URL.Query()

	var f corpus.Filter
	f.Provider = domain.SourceType(strings.TrimSpace(q.Get("provider")))
	if f.Provider != "" && !domain.IsValidSourceType(f.Provider) {
		return f, domain.NewValidationError("provider", fmt.Sprintf("unsupported source: %s", f.Provider))
	}
	f.Category = strings.TrimSpace(q.Get("category"))
	f.Tag = strings.TrimSpace(q.Get("tag"))
	f.Query = strings.TrimSpace(q.Get("q"))
	if len(f.Category) > maxParamLength || len(f.Tag) > maxParamLength {
		return f, domain.NewValidationError("category", fmt.Sprintf("must be at most %d characters", maxParamLength))
	}
	if len(f.Query) > maxQueryLength {
		return f, domain.NewValidationError("q", fmt.Sprintf("must be at most %d characters", maxQueryLength))
	}

	var err error
	if f.Since, err = parseTimeParam(q.Get("since"), "since"); err != nil {
		return f, err
	}
	if f.Until, err = parseTimeParam(q.Get("until"), "until"); err != nil {
		return f, err
	}
	if f.Limit, err = parseIntParam(q.Get("limit"), "limit"); err != nil {
		return f, err
	}
	if f.Offset, err = parseIntParam(q.Get("offset"), "offset"); err != nil {
		return f, err
	}
	return f, nil
}

func parseTimeParam(raw, field string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	t := papersources.ParseTimestamp(raw)
	if t.IsZero() {
		return time.Time{}, domain.NewValidationError(field, "unrecognised date")
	}
	return t, nil
}

func parseIntParam(raw, field string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.NewValidationError(field, "must be an integer")
	}
	return n, nil
}

// writeDomainError maps domain errors to HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "resource not found")
	case errors.Is(err, domain.ErrInvalidInput):
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			writeError(w, http.StatusBadRequest, ve.Error())
		} else {
			writeError(w, http.StatusBadRequest, "invalid input")
		}
	case errors.Is(err, domain.ErrCycleInProgress):
		writeError(w, http.StatusConflict, "ingestion cycle already in progress")
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "rate limited")
	case errors.Is(err, domain.ErrServiceUnavailable):
		writeError(w, http.StatusServiceUnavailable, "service unavailable")
	case errors.Is(err, domain.ErrCancelled):
		writeError(w, http.StatusConflict, "operation cancelled")
	case errors.Is(err, domain.ErrPersistence):
		writeError(w, http.StatusServiceUnavailable, "snapshot store unavailable")
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
