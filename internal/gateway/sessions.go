package gateway

import (
	"errors"
	"net/http"

	"github.com/stagehand-ai/stagehand/internal/sessions"
	"github.com/stagehand-ai/stagehand/pkg/models"
)

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	list := s.sessions.List()
	s.respond(w, http.StatusOK, map[string]any{
		"sessions": list,
		"count":    len(list),
	})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
		Role   string `json:"role"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, "%v", err)
		return
	}

	role := models.RoleReadonly
	if req.Role != "" {
		parsed, err := models.ParseRole(req.Role)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "%v", err)
			return
		}
		role = parsed
	}

	session := s.sessions.Create(req.UserID, role)
	s.respond(w, http.StatusCreated, session)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	summary, err := s.sessions.Summary(r.PathValue("id"))
	if errors.Is(err, sessions.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, "session not found")
		return
	}
	s.respond(w, http.StatusOK, summary)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.sessions.Clear(id)
	s.respond(w, http.StatusOK, map[string]any{"deleted": id})
}
