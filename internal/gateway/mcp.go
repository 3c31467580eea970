package gateway

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/stagehand-ai/stagehand/internal/mcp"
)

func (s *Server) handleListServers(w http.ResponseWriter, r *http.Request) {
	servers := s.mcp.Status()
	s.respond(w, http.StatusOK, map[string]any{
		"servers": servers,
		"count":   len(servers),
	})
}

func (s *Server) handleAddServer(w http.ResponseWriter, r *http.Request) {
	var cfg mcp.ServerConfig
	if err := decodeBody(r, &cfg); err != nil {
		s.respondError(w, http.StatusBadRequest, "%v", err)
		return
	}
	if cfg.ID == "" {
		cfg.ID = "srv-" + uuid.NewString()[:8]
	}

	if err := s.mcp.Add(cfg); err != nil {
		s.respondError(w, http.StatusBadRequest, "%v", err)
		return
	}

	if cfg.Enabled {
		if err := s.mcp.Reconnect(r.Context(), cfg.ID); err != nil {
			s.logger.Error("tool server connect failed", "server", cfg.ID, "error", err)
		}
	}
	s.respond(w, http.StatusCreated, cfg)
}

// serverPatch distinguishes absent fields from zero values so a PATCH
// only touches what the caller sent.
type serverPatch struct {
	Name        *string            `json:"name"`
	Description *string            `json:"description"`
	Command     *string            `json:"command"`
	Args        *[]string          `json:"args"`
	Env         *map[string]string `json:"env"`
	Enabled     *bool              `json:"enabled"`
}

func (s *Server) handlePatchServer(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	cfg, ok := s.serverConfig(id)
	if !ok {
		s.respondError(w, http.StatusNotFound, "server %q not registered", id)
		return
	}

	var patch serverPatch
	if err := decodeBody(r, &patch); err != nil {
		s.respondError(w, http.StatusBadRequest, "%v", err)
		return
	}

	if patch.Name != nil {
		cfg.Name = *patch.Name
	}
	if patch.Description != nil {
		cfg.Description = *patch.Description
	}
	if patch.Command != nil {
		cfg.Command = *patch.Command
	}
	if patch.Args != nil {
		cfg.Args = *patch.Args
	}
	if patch.Env != nil {
		cfg.Env = *patch.Env
	}
	if patch.Enabled != nil {
		cfg.Enabled = *patch.Enabled
	}

	if err := s.mcp.Update(id, cfg); err != nil {
		s.respondError(w, http.StatusBadRequest, "%v", err)
		return
	}

	// Toggling enabled takes effect immediately; other edits apply on
	// the next reconnect.
	if patch.Enabled != nil {
		if cfg.Enabled {
			if err := s.mcp.Reconnect(r.Context(), id); err != nil {
				s.logger.Error("tool server connect failed", "server", id, "error", err)
			}
		} else {
			s.mcp.Disconnect(id)
		}
	}
	s.respond(w, http.StatusOK, cfg)
}

func (s *Server) handleDeleteServer(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := s.serverConfig(id); !ok {
		s.respondError(w, http.StatusNotFound, "server %q not registered", id)
		return
	}
	if err := s.mcp.Remove(id); err != nil {
		s.respondError(w, http.StatusInternalServerError, "%v", err)
		return
	}
	s.respond(w, http.StatusOK, map[string]any{"deleted": id})
}

func (s *Server) handleReconnectServer(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := s.serverConfig(id); !ok {
		s.respondError(w, http.StatusNotFound, "server %q not registered", id)
		return
	}
	if err := s.mcp.Reconnect(r.Context(), id); err != nil {
		s.respondError(w, http.StatusBadGateway, "%v", err)
		return
	}
	s.respond(w, http.StatusOK, map[string]any{"reconnected": id})
}

func (s *Server) handleFederatedTools(w http.ResponseWriter, r *http.Request) {
	list := s.mcp.Tools()
	s.respond(w, http.StatusOK, map[string]any{
		"tools": list,
		"count": len(list),
	})
}

func (s *Server) serverConfig(id string) (mcp.ServerConfig, bool) {
	for _, cfg := range s.mcp.Configs() {
		if cfg.ID == id {
			return cfg, true
		}
	}
	return mcp.ServerConfig{}, false
}
