package server

import (
	"net/http"

	"github.com/sixfold/sixfold/jobs"
)

// HandleJobs handles GET /api/jobs: queue stats plus recent jobs,
// optionally filtered by ?status=
func (s *Server) HandleJobs(w http.ResponseWriter, r *http.Request) {
	if !requireMethods(w, r, http.MethodGet) {
		return
	}

	queue := s.daemon.Queue()

	var status *jobs.Status
	if raw := r.URL.Query().Get("status"); raw != "" {
		parsed := jobs.Status(raw)
		if !jobs.IsValidStatus(raw) {
			writeError(w, http.StatusBadRequest, "Invalid job status: "+raw)
			return
		}
		status = &parsed
	}

	list, err := queue.ListJobs(r.Context(), status, parseIntQueryParam(r, "limit", defaultListLimit, 1, maxListLimit))
	if err != nil {
		handleError(w, s.logger, err, "failed to list jobs")
		return
	}

	stats, err := queue.GetStats(r.Context())
	if err != nil {
		handleError(w, s.logger, err, "failed to read queue stats")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  list,
		"stats": stats,
	})
}

// HandleJob handles GET /api/jobs/{job}
func (s *Server) HandleJob(w http.ResponseWriter, r *http.Request) {
	if !requireMethods(w, r, http.MethodGet) {
		return
	}

	job, err := s.daemon.Queue().GetJob(r.Context(), r.PathValue("job"))
	if err != nil {
		handleError(w, s.logger, err, "failed to get job")
		return
	}
	writeJSON(w, http.StatusOK, job)
}
