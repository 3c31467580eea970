package gateway

import (
	"net/http"

	"github.com/stagehand-ai/stagehand/pkg/models"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := s.llm.CheckHealth(r.Context())
	status := "degraded"
	if health.Available {
		status = "ok"
	}
	s.respond(w, http.StatusOK, map[string]any{
		"status": status,
		"llm":    health,
	})
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	role := roleFromRequest(r)
	specs := s.registry.ForRole(role, s.cfg.SafeMode)
	federated := s.mcp.Tools()
	s.respond(w, http.StatusOK, map[string]any{
		"role":            role,
		"tools":           specs,
		"federated_tools": federated,
		"count":           len(specs) + len(federated),
	})
}

func (s *Server) handlePermissions(w http.ResponseWriter, r *http.Request) {
	role, err := models.ParseRole(r.PathValue("role"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "%v", err)
		return
	}

	allowed := make([]string, 0)
	allowedSet := make(map[string]bool)
	for _, spec := range s.registry.ForRole(role, s.cfg.SafeMode) {
		allowed = append(allowed, spec.Name)
		allowedSet[spec.Name] = true
	}

	blocked := make([]string, 0)
	for _, name := range s.registry.Names() {
		if !allowedSet[name] {
			blocked = append(blocked, name)
		}
	}

	s.respond(w, http.StatusOK, map[string]any{
		"role":    role,
		"allowed": allowed,
		"blocked": blocked,
	})
}

func (s *Server) handleGetMetrics(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, s.metrics.Snapshot())
}

func (s *Server) handleResetMetrics(w http.ResponseWriter, r *http.Request) {
	s.metrics.Reset()
	s.logger.Info("metrics reset")
	s.respond(w, http.StatusOK, map[string]any{"reset": true})
}
