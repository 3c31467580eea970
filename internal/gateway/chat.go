package gateway

import (
	"net/http"
	"strings"

	"github.com/stagehand-ai/stagehand/internal/agent"
	"github.com/stagehand-ai/stagehand/pkg/models"
)

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	Role      string `json:"role"`
	Mode      string `json:"mode"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, "%v", err)
		return
	}

	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		s.respondError(w, http.StatusBadRequest, "message is required")
		return
	}

	mode := req.Mode
	if mode == "" {
		mode = "single"
	}
	if mode != "single" && mode != "multi" {
		s.respondError(w, http.StatusBadRequest, "invalid mode %q: must be \"single\" or \"multi\"", req.Mode)
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

	// Existing sessions keep their original role; the request role only
	// applies when a new session is created here.
	session := s.sessions.GetOrCreate(req.SessionID, req.UserID, role)

	// One run at a time per session, so concurrent requests append to
	// history in whole user/assistant pairs.
	unlock := s.sessions.Lock(session.ID)
	defer unlock()

	s.metrics.RecordRequest()
	s.logger.Info("chat request", "session", session.ID, "mode", mode, "role", session.Role)

	runReq := agent.RunRequest{
		SessionID:  session.ID,
		UserPrompt: req.Message,
		Role:       session.Role,
	}

	if mode == "multi" {
		result := s.orchestrator.Run(r.Context(), runReq)
		s.respond(w, http.StatusOK, map[string]any{
			"session_id": session.ID,
			"response":   result.FinalResponse,
			"timeline":   result.Timeline,
			"plan":       result.Plan,
			"review":     result.Review,
			"agent_logs": result.AgentLogs,
			"mode":       mode,
		})
		return
	}

	timeline := s.agent.Run(r.Context(), runReq)
	s.respond(w, http.StatusOK, map[string]any{
		"session_id": session.ID,
		"response":   timeline.FinalResponse,
		"timeline":   timeline,
		"mode":       mode,
	})
}
