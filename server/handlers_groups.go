package server

import (
	"encoding/json"
	"net/http"

	"github.com/sixfold/sixfold/auth"
)

type groupRequest struct {
	Slug     string          `json:"slug"`
	Name     string          `json:"name"`
	Settings json.RawMessage `json:"settings"`
}

// HandleGroups handles /api/groups
// GET: list groups, POST: create a group (caller becomes owner)
func (s *Server) HandleGroups(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		groups, err := s.ontology.Groups.ListGroups(r.Context())
		if err != nil {
			handleError(w, s.logger, err, "failed to list groups")
			return
		}
		writeJSON(w, http.StatusOK, groups)

	case http.MethodPost:
		var req groupRequest
		if readJSON(w, r, &req) != nil {
			return
		}

		group, err := s.ontology.Groups.CreateGroup(r.Context(), req.Slug, req.Name, req.Settings)
		if err != nil {
			handleError(w, s.logger, err, "failed to create group")
			return
		}

		claims := auth.UserFromContext(r.Context())
		if err := s.authSvc.Store().AddGroupMember(r.Context(), group.ID, claims.UserID, "owner"); err != nil {
			handleError(w, s.logger, err, "failed to add group owner")
			return
		}

		s.logger.Infow("Group created", "group_id", group.ID, "slug", group.Slug)
		writeJSON(w, http.StatusCreated, group)

	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// HandleGroup handles /api/groups/{id}
// GET: fetch, PATCH: rename/update settings, DELETE: remove with all contents
func (s *Server) HandleGroup(w http.ResponseWriter, r *http.Request) {
	groupID := r.PathValue("id")

	switch r.Method {
	case http.MethodGet:
		group, err := s.ontology.Groups.GetGroup(r.Context(), groupID)
		if err != nil {
			handleError(w, s.logger, err, "failed to get group")
			return
		}
		writeJSON(w, http.StatusOK, group)

	case http.MethodPatch:
		var req groupRequest
		if readJSON(w, r, &req) != nil {
			return
		}
		group, err := s.ontology.Groups.UpdateGroup(r.Context(), groupID, req.Name, req.Settings)
		if err != nil {
			handleError(w, s.logger, err, "failed to update group")
			return
		}
		writeJSON(w, http.StatusOK, group)

	case http.MethodDelete:
		if err := s.ontology.Groups.DeleteGroup(r.Context(), groupID); err != nil {
			handleError(w, s.logger, err, "failed to delete group")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"deleted": groupID})

	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}
