package api

import (
	"net/http"
	"time"

	"github.com/sanjeevni-ai/sanjeevni/internal/usage"
)

// UsageResponse aggregates recorded token usage over a window.
type UsageResponse struct {
	Since   string                    `json:"since"`
	Until   string                    `json:"until"`
	Total   *usage.Summary            `json:"total"`
	ByModel map[string]*usage.Summary `json:"by_model"`
}

// handleUsage reports usage since the "since" query parameter (RFC3339),
// defaulting to the last 24 hours.
func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	if s.usage == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "usage tracking not configured")
		return
	}

	until := time.Now().UTC()
	since := until.Add(-24 * time.Hour)
	if v := r.URL.Query().Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			s.errorResponse(w, http.StatusBadRequest, "since must be an RFC3339 timestamp")
			return
		}
		since = t
	}

	total, err := s.usage.Summary(r.Context(), since, until)
	if err != nil {
		s.logger.Error("usage summary failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to query usage")
		return
	}
	byModel, err := s.usage.SummaryByModel(r.Context(), since, until)
	if err != nil {
		s.logger.Error("usage by model failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to query usage")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, UsageResponse{
		Since:   since.UTC().Format(time.RFC3339),
		Until:   until.Format(time.RFC3339),
		Total:   total,
		ByModel: byModel,
	}, s.logger)
}
