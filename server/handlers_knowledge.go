package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/sixfold/sixfold/ontology"
)

// HandleEvents handles /api/groups/{id}/events
// GET: list the audit trail, POST: append a custom event
func (s *Server) HandleEvents(w http.ResponseWriter, r *http.Request) {
	groupID := r.PathValue("id")

	switch r.Method {
	case http.MethodGet:
		filter := ontology.EventFilter{
			Actor:        r.URL.Query().Get("actor"),
			Verb:         r.URL.Query().Get("verb"),
			SubjectThing: r.URL.Query().Get("subject"),
			Limit:        parseIntQueryParam(r, "limit", defaultListLimit, 1, maxListLimit),
			Offset:       parseIntQueryParam(r, "offset", 0, 0, 1<<30),
		}
		events, err := s.ontology.Events.ListEvents(r.Context(), groupID, filter)
		if err != nil {
			handleError(w, s.logger, err, "failed to list events")
			return
		}
		writeJSON(w, http.StatusOK, events)

	case http.MethodPost:
		var req struct {
			Verb         string          `json:"verb"`
			SubjectThing string          `json:"subject_thing"`
			Payload      json.RawMessage `json:"payload"`
		}
		if readJSON(w, r, &req) != nil {
			return
		}
		event, err := s.ontology.Events.Append(r.Context(), groupID, actorID(r), req.Verb, req.SubjectThing, req.Payload)
		if err != nil {
			handleError(w, s.logger, err, "failed to append event")
			return
		}
		writeJSON(w, http.StatusCreated, event)

	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

type knowledgeRequest struct {
	ThingID string `json:"thing_id"`
	Label   string `json:"label"`
	Content string `json:"content"`
}

// HandleKnowledge handles /api/groups/{id}/knowledge
func (s *Server) HandleKnowledge(w http.ResponseWriter, r *http.Request) {
	groupID := r.PathValue("id")

	switch r.Method {
	case http.MethodGet:
		chunks, err := s.ontology.Knowledge.ListKnowledge(r.Context(), groupID, r.URL.Query().Get("thing_id"))
		if err != nil {
			handleError(w, s.logger, err, "failed to list knowledge")
			return
		}
		writeJSON(w, http.StatusOK, chunks)

	case http.MethodPost:
		var req knowledgeRequest
		if readJSON(w, r, &req) != nil {
			return
		}
		chunk, err := s.ontology.SaveKnowledge(r.Context(), groupID, actorID(r), req.ThingID, req.Label, req.Content)
		if err != nil {
			handleError(w, s.logger, err, "failed to save knowledge")
			return
		}
		writeJSON(w, http.StatusCreated, chunk)

	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// HandleKnowledgeChunk handles /api/groups/{id}/knowledge/{chunk}
func (s *Server) HandleKnowledgeChunk(w http.ResponseWriter, r *http.Request) {
	groupID := r.PathValue("id")
	chunkID := r.PathValue("chunk")

	switch r.Method {
	case http.MethodGet:
		chunk, err := s.ontology.Knowledge.GetKnowledge(r.Context(), groupID, chunkID)
		if err != nil {
			handleError(w, s.logger, err, "failed to get knowledge")
			return
		}
		writeJSON(w, http.StatusOK, chunk)

	case http.MethodDelete:
		if err := s.ontology.DeleteKnowledge(r.Context(), groupID, actorID(r), chunkID); err != nil {
			handleError(w, s.logger, err, "failed to delete knowledge")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"deleted": chunkID})

	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// HandleKnowledgeSearch handles GET /api/groups/{id}/knowledge/search.
// Returns 503 when no embedding provider is configured.
func (s *Server) HandleKnowledgeSearch(w http.ResponseWriter, r *http.Request) {
	if !requireMethods(w, r, http.MethodGet) {
		return
	}
	groupID := r.PathValue("id")

	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "Missing query parameter q")
		return
	}

	threshold := 0.0
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid threshold")
			return
		}
		threshold = parsed
	}

	matches, err := s.ontology.Knowledge.Search(r.Context(), groupID, query,
		parseIntQueryParam(r, "limit", 10, 1, 100), threshold)
	if err != nil {
		handleError(w, s.logger, err, "failed to search knowledge")
		return
	}
	writeJSON(w, http.StatusOK, matches)
}
