package server

import (
	"encoding/json"
	"net/http"

	"github.com/sixfold/sixfold/auth"
	"github.com/sixfold/sixfold/ontology"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

type thingRequest struct {
	Type       string          `json:"type"`
	Name       string          `json:"name"`
	Properties json.RawMessage `json:"properties"`
}

func actorID(r *http.Request) string {
	if claims := auth.UserFromContext(r.Context()); claims != nil {
		return claims.UserID
	}
	return ""
}

// HandleThings handles /api/groups/{id}/things
// GET: list with type/status filters, POST: create (starts as draft)
func (s *Server) HandleThings(w http.ResponseWriter, r *http.Request) {
	groupID := r.PathValue("id")

	switch r.Method {
	case http.MethodGet:
		filter := ontology.ThingFilter{
			Type:   r.URL.Query().Get("type"),
			Status: ontology.ThingStatus(r.URL.Query().Get("status")),
			Limit:  parseIntQueryParam(r, "limit", defaultListLimit, 1, maxListLimit),
			Offset: parseIntQueryParam(r, "offset", 0, 0, 1<<30),
		}
		things, err := s.ontology.Things.ListThings(r.Context(), groupID, filter)
		if err != nil {
			handleError(w, s.logger, err, "failed to list things")
			return
		}
		writeJSON(w, http.StatusOK, things)

	case http.MethodPost:
		var req thingRequest
		if readJSON(w, r, &req) != nil {
			return
		}
		thing, err := s.ontology.CreateThing(r.Context(), groupID, actorID(r), req.Type, req.Name, req.Properties)
		if err != nil {
			handleError(w, s.logger, err, "failed to create thing")
			return
		}
		writeJSON(w, http.StatusCreated, thing)

	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// HandleThing handles /api/groups/{id}/things/{thing}
func (s *Server) HandleThing(w http.ResponseWriter, r *http.Request) {
	groupID := r.PathValue("id")
	thingID := r.PathValue("thing")

	switch r.Method {
	case http.MethodGet:
		thing, err := s.ontology.Things.GetThing(r.Context(), groupID, thingID)
		if err != nil {
			handleError(w, s.logger, err, "failed to get thing")
			return
		}
		writeJSON(w, http.StatusOK, thing)

	case http.MethodPatch:
		var req thingRequest
		if readJSON(w, r, &req) != nil {
			return
		}
		thing, err := s.ontology.UpdateThing(r.Context(), groupID, actorID(r), thingID, req.Name, req.Properties)
		if err != nil {
			handleError(w, s.logger, err, "failed to update thing")
			return
		}
		writeJSON(w, http.StatusOK, thing)

	case http.MethodDelete:
		if err := s.ontology.DeleteThing(r.Context(), groupID, actorID(r), thingID); err != nil {
			handleError(w, s.logger, err, "failed to delete thing")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"deleted": thingID})

	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// HandleThingStatus handles POST /api/groups/{id}/things/{thing}/status.
// Transitions move forward only; archive is reachable from any status.
func (s *Server) HandleThingStatus(w http.ResponseWriter, r *http.Request) {
	if !requireMethods(w, r, http.MethodPost) {
		return
	}
	groupID := r.PathValue("id")
	thingID := r.PathValue("thing")

	var req struct {
		Status string `json:"status"`
	}
	if readJSON(w, r, &req) != nil {
		return
	}

	thing, err := s.ontology.TransitionThing(r.Context(), groupID, actorID(r), thingID, ontology.ThingStatus(req.Status))
	if err != nil {
		handleError(w, s.logger, err, "failed to transition thing")
		return
	}
	writeJSON(w, http.StatusOK, thing)
}

// HandleThingNeighbors handles GET /api/groups/{id}/things/{thing}/neighbors
func (s *Server) HandleThingNeighbors(w http.ResponseWriter, r *http.Request) {
	if !requireMethods(w, r, http.MethodGet) {
		return
	}
	groupID := r.PathValue("id")
	thingID := r.PathValue("thing")

	direction := ontology.Direction(r.URL.Query().Get("direction"))
	if direction == "" {
		direction = ontology.DirectionBoth
	}

	connections, err := s.ontology.Connections.ListNeighbors(r.Context(), groupID, thingID, direction)
	if err != nil {
		handleError(w, s.logger, err, "failed to list neighbors")
		return
	}
	writeJSON(w, http.StatusOK, connections)
}

// HandlePeople handles /api/groups/{id}/people
// People are things of type "person" with a typed surface.
func (s *Server) HandlePeople(w http.ResponseWriter, r *http.Request) {
	groupID := r.PathValue("id")

	switch r.Method {
	case http.MethodGet:
		people, err := s.ontology.ListPeople(r.Context(), groupID,
			parseIntQueryParam(r, "limit", defaultListLimit, 1, maxListLimit),
			parseIntQueryParam(r, "offset", 0, 0, 1<<30))
		if err != nil {
			handleError(w, s.logger, err, "failed to list people")
			return
		}
		writeJSON(w, http.StatusOK, people)

	case http.MethodPost:
		var req thingRequest
		if readJSON(w, r, &req) != nil {
			return
		}
		person, err := s.ontology.CreatePerson(r.Context(), groupID, actorID(r), req.Name, req.Properties)
		if err != nil {
			handleError(w, s.logger, err, "failed to create person")
			return
		}
		writeJSON(w, http.StatusCreated, person)

	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// HandlePerson handles GET /api/groups/{id}/people/{person}
func (s *Server) HandlePerson(w http.ResponseWriter, r *http.Request) {
	if !requireMethods(w, r, http.MethodGet) {
		return
	}
	person, err := s.ontology.GetPerson(r.Context(), r.PathValue("id"), r.PathValue("person"))
	if err != nil {
		handleError(w, s.logger, err, "failed to get person")
		return
	}
	writeJSON(w, http.StatusOK, person)
}

type connectionRequest struct {
	FromThing string          `json:"from_thing"`
	ToThing   string          `json:"to_thing"`
	Type      string          `json:"type"`
	Metadata  json.RawMessage `json:"metadata"`
}

// HandleConnections handles /api/groups/{id}/connections
func (s *Server) HandleConnections(w http.ResponseWriter, r *http.Request) {
	groupID := r.PathValue("id")

	switch r.Method {
	case http.MethodGet:
		connections, err := s.ontology.Connections.ListConnections(r.Context(), groupID, r.URL.Query().Get("type"))
		if err != nil {
			handleError(w, s.logger, err, "failed to list connections")
			return
		}
		writeJSON(w, http.StatusOK, connections)

	case http.MethodPost:
		var req connectionRequest
		if readJSON(w, r, &req) != nil {
			return
		}
		conn, err := s.ontology.CreateConnection(r.Context(), groupID, actorID(r), req.FromThing, req.ToThing, req.Type, req.Metadata)
		if err != nil {
			handleError(w, s.logger, err, "failed to create connection")
			return
		}
		writeJSON(w, http.StatusCreated, conn)

	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// HandleConnection handles /api/groups/{id}/connections/{conn}
func (s *Server) HandleConnection(w http.ResponseWriter, r *http.Request) {
	groupID := r.PathValue("id")
	connID := r.PathValue("conn")

	switch r.Method {
	case http.MethodGet:
		conn, err := s.ontology.Connections.GetConnection(r.Context(), groupID, connID)
		if err != nil {
			handleError(w, s.logger, err, "failed to get connection")
			return
		}
		writeJSON(w, http.StatusOK, conn)

	case http.MethodDelete:
		if err := s.ontology.DeleteConnection(r.Context(), groupID, actorID(r), connID); err != nil {
			handleError(w, s.logger, err, "failed to delete connection")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"deleted": connID})

	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}
