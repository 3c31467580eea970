package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	openai "github.com/sashabaranov/go-openai"

	"github.com/stagehand-ai/stagehand/internal/agent"
	"github.com/stagehand-ai/stagehand/internal/events"
	"github.com/stagehand-ai/stagehand/internal/llm"
	"github.com/stagehand-ai/stagehand/internal/mcp"
	"github.com/stagehand-ai/stagehand/internal/metrics"
	"github.com/stagehand-ai/stagehand/internal/sessions"
	"github.com/stagehand-ai/stagehand/internal/tools"
	"github.com/stagehand-ai/stagehand/pkg/models"
)

// scriptedLLM returns canned responses in order, repeating the last one
// when the script runs out.
type scriptedLLM struct {
	mu        sync.Mutex
	responses []*llm.ChatResponse
	calls     int
}

func (s *scriptedLLM) Chat(_ context.Context, _ []llm.Message, _ []openai.Tool) (*llm.ChatResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	if i >= len(s.responses) {
		i = len(s.responses) - 1
	}
	return s.responses[i], nil
}

func textResponse(content string) *llm.ChatResponse {
	return &llm.ChatResponse{Message: llm.Message{Role: "assistant", Content: content}}
}

type fakeHealth struct {
	health llm.Health
}

func (f fakeHealth) CheckHealth(context.Context) llm.Health { return f.health }

type fixture struct {
	server *Server
	ts     *httptest.Server
	store  *sessions.Store
	bus    *events.Bus
	mcp    *mcp.Manager
}

func newFixture(t *testing.T, client agent.LLMClient) *fixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	registry := tools.NewRegistry()
	registry.MustRegister(
		tools.New(tools.Spec{
			Name:              "echo",
			Description:       "Echo text back.",
			InputSchema:       json.RawMessage(`{"type":"object","properties":{"text":{"type":"string"}},"required":["text"]}`),
			RequiredRoles:     tools.RolesAtLeast(models.RoleReadonly),
			SafeForProduction: true,
		}, func(_ context.Context, args map[string]any) (any, error) {
			return map[string]any{"echoed": args["text"]}, nil
		}),
		tools.New(tools.Spec{
			Name:          "wipe",
			Description:   "Destroy everything.",
			InputSchema:   json.RawMessage(`{"type":"object"}`),
			RequiredRoles: []models.Role{models.RoleAdmin},
		}, func(context.Context, map[string]any) (any, error) {
			return "wiped", nil
		}),
	)

	store := sessions.NewStore()
	bus := events.NewBus()
	met := metrics.NewStore(prometheus.NewRegistry())
	manager := mcp.NewManager(filepath.Join(t.TempDir(), "servers.json"), logger)
	executor := tools.NewExecutor(registry, manager, met, false, logger)

	ag := agent.New(agent.Config{
		LLM:          client,
		Registry:     registry,
		Executor:     executor,
		Federated:    manager,
		Sessions:     store,
		Bus:          bus,
		SystemPrompt: "You are a test agent.",
		Logger:       logger,
	})
	orch := agent.NewOrchestrator(
		agent.NewPlanner(client, logger),
		ag,
		agent.NewReviewer(client, logger),
		bus,
	)

	server := NewServer(Config{}, Deps{
		LLM:          fakeHealth{health: llm.Health{Available: true, Models: []string{"llama3.1"}}},
		Registry:     registry,
		Agent:        ag,
		Orchestrator: orch,
		Sessions:     store,
		Bus:          bus,
		Metrics:      met,
		MCP:          manager,
		Logger:       logger,
	})

	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)

	return &fixture{server: server, ts: ts, store: store, bus: bus, mcp: manager}
}

type testEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func (f *fixture) do(t *testing.T, method, path string, body any, token string) (*http.Response, testEnvelope) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, f.ts.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var env testEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode envelope for %s %s: %v", method, path, err)
	}
	return resp, env
}

func unmarshalData(t *testing.T, env testEnvelope, into any) {
	t.Helper()
	if err := json.Unmarshal(env.Data, into); err != nil {
		t.Fatalf("decode data: %v", err)
	}
}

func TestHealth(t *testing.T) {
	fx := newFixture(t, &scriptedLLM{responses: []*llm.ChatResponse{textResponse("hi")}})

	resp, env := fx.do(t, http.MethodGet, "/health", nil, "")
	if resp.StatusCode != http.StatusOK || !env.Success {
		t.Fatalf("status = %d, env = %+v", resp.StatusCode, env)
	}

	var data struct {
		Status string     `json:"status"`
		LLM    llm.Health `json:"llm"`
	}
	unmarshalData(t, env, &data)
	if data.Status != "ok" || !data.LLM.Available || len(data.LLM.Models) != 1 {
		t.Fatalf("data = %+v", data)
	}
}

func TestListToolsRoleGating(t *testing.T) {
	fx := newFixture(t, &scriptedLLM{responses: []*llm.ChatResponse{textResponse("hi")}})

	names := func(token string) map[string]bool {
		_, env := fx.do(t, http.MethodGet, "/api/tools", nil, token)
		var data struct {
			Tools []tools.Spec `json:"tools"`
		}
		unmarshalData(t, env, &data)
		out := make(map[string]bool)
		for _, spec := range data.Tools {
			out[spec.Name] = true
		}
		return out
	}

	anonymous := names("")
	if !anonymous["echo"] || anonymous["wipe"] {
		t.Fatalf("anonymous tools = %v", anonymous)
	}

	admin := names("admin-token-123")
	if !admin["echo"] || !admin["wipe"] {
		t.Fatalf("admin tools = %v", admin)
	}

	bogus := names("no-such-token")
	if bogus["wipe"] {
		t.Fatalf("bogus token got admin tools: %v", bogus)
	}
}

func TestPermissions(t *testing.T) {
	fx := newFixture(t, &scriptedLLM{responses: []*llm.ChatResponse{textResponse("hi")}})

	_, env := fx.do(t, http.MethodGet, "/api/permissions/readonly", nil, "")
	var data struct {
		Role    models.Role `json:"role"`
		Allowed []string    `json:"allowed"`
		Blocked []string    `json:"blocked"`
	}
	unmarshalData(t, env, &data)

	if data.Role != models.RoleReadonly {
		t.Fatalf("role = %s", data.Role)
	}
	if len(data.Allowed) != 1 || data.Allowed[0] != "echo" {
		t.Fatalf("allowed = %v", data.Allowed)
	}
	if len(data.Blocked) != 1 || data.Blocked[0] != "wipe" {
		t.Fatalf("blocked = %v", data.Blocked)
	}

	resp, env := fx.do(t, http.MethodGet, "/api/permissions/superuser", nil, "")
	if resp.StatusCode != http.StatusBadRequest || env.Error == "" {
		t.Fatalf("invalid role: status = %d, env = %+v", resp.StatusCode, env)
	}
}

func TestSessionLifecycle(t *testing.T) {
	fx := newFixture(t, &scriptedLLM{responses: []*llm.ChatResponse{textResponse("hi")}})

	resp, env := fx.do(t, http.MethodPost, "/api/sessions",
		map[string]any{"user_id": "u1", "role": "dev"}, "")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	var session models.Session
	unmarshalData(t, env, &session)
	if session.ID == "" || session.Role != models.RoleDev {
		t.Fatalf("session = %+v", session)
	}

	_, env = fx.do(t, http.MethodGet, "/api/sessions/"+session.ID, nil, "")
	var summary models.SessionSummary
	unmarshalData(t, env, &summary)
	if summary.SessionID != session.ID || summary.MessageCount != 0 {
		t.Fatalf("summary = %+v", summary)
	}

	_, env = fx.do(t, http.MethodGet, "/api/sessions", nil, "")
	var list struct {
		Count int `json:"count"`
	}
	unmarshalData(t, env, &list)
	if list.Count != 1 {
		t.Fatalf("count = %d", list.Count)
	}

	fx.do(t, http.MethodDelete, "/api/sessions/"+session.ID, nil, "")
	resp, _ = fx.do(t, http.MethodGet, "/api/sessions/"+session.ID, nil, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("after delete: status = %d", resp.StatusCode)
	}

	resp, env = fx.do(t, http.MethodPost, "/api/sessions",
		map[string]any{"role": "superuser"}, "")
	if resp.StatusCode != http.StatusBadRequest || env.Error == "" {
		t.Fatalf("invalid role: status = %d", resp.StatusCode)
	}
}

func TestChatSingleMode(t *testing.T) {
	fx := newFixture(t, &scriptedLLM{responses: []*llm.ChatResponse{textResponse("Hello there")}})

	resp, env := fx.do(t, http.MethodPost, "/api/chat",
		map[string]any{"message": "hi", "user_id": "u1", "role": "dev"}, "")
	if resp.StatusCode != http.StatusOK || !env.Success {
		t.Fatalf("status = %d, env = %+v", resp.StatusCode, env)
	}

	var data struct {
		SessionID string           `json:"session_id"`
		Response  string           `json:"response"`
		Timeline  *models.Timeline `json:"timeline"`
		Mode      string           `json:"mode"`
	}
	unmarshalData(t, env, &data)
	if data.SessionID == "" || data.Response != "Hello there" || data.Mode != "single" {
		t.Fatalf("data = %+v", data)
	}
	if data.Timeline == nil || data.Timeline.FinalResponse != "Hello there" {
		t.Fatalf("timeline = %+v", data.Timeline)
	}

	// The run appended a user/assistant pair and counted one request.
	_, env = fx.do(t, http.MethodGet, "/api/sessions/"+data.SessionID, nil, "")
	var summary models.SessionSummary
	unmarshalData(t, env, &summary)
	if summary.MessageCount != 2 {
		t.Fatalf("message count = %d", summary.MessageCount)
	}

	_, env = fx.do(t, http.MethodGet, "/api/metrics", nil, "")
	var snap metrics.SystemMetrics
	unmarshalData(t, env, &snap)
	if snap.TotalRequests != 1 {
		t.Fatalf("total requests = %d", snap.TotalRequests)
	}
}

func TestChatReusesSession(t *testing.T) {
	fx := newFixture(t, &scriptedLLM{responses: []*llm.ChatResponse{textResponse("ok")}})

	session := fx.store.Create("u1", models.RoleDev)
	for i := 0; i < 2; i++ {
		_, env := fx.do(t, http.MethodPost, "/api/chat",
			map[string]any{"message": "hi", "session_id": session.ID}, "")
		var data struct {
			SessionID string `json:"session_id"`
		}
		unmarshalData(t, env, &data)
		if data.SessionID != session.ID {
			t.Fatalf("session id = %s, want %s", data.SessionID, session.ID)
		}
	}

	history, err := fx.store.History(session.ID, 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 4 {
		t.Fatalf("history length = %d", len(history))
	}
}

func TestChatValidation(t *testing.T) {
	fx := newFixture(t, &scriptedLLM{responses: []*llm.ChatResponse{textResponse("hi")}})

	cases := []struct {
		name string
		body map[string]any
	}{
		{"empty message", map[string]any{"message": "  "}},
		{"bad mode", map[string]any{"message": "hi", "mode": "triple"}},
		{"bad role", map[string]any{"message": "hi", "role": "root"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, env := fx.do(t, http.MethodPost, "/api/chat", tc.body, "")
			if resp.StatusCode != http.StatusBadRequest || env.Error == "" {
				t.Fatalf("status = %d, env = %+v", resp.StatusCode, env)
			}
		})
	}
}

func TestChatMultiMode(t *testing.T) {
	client := &scriptedLLM{responses: []*llm.ChatResponse{
		textResponse(`{"goal":"answer","complexity":"simple","steps":[{"description":"respond"}]}`),
		textResponse("final answer"),
		textResponse(`{"passed":true,"score":9,"feedback":"good"}`),
	}}
	fx := newFixture(t, client)

	_, env := fx.do(t, http.MethodPost, "/api/chat",
		map[string]any{"message": "hi", "mode": "multi"}, "")

	var data struct {
		Response string            `json:"response"`
		Plan     *models.Plan      `json:"plan"`
		Review   *models.Review    `json:"review"`
		Logs     []models.AgentLog `json:"agent_logs"`
	}
	unmarshalData(t, env, &data)
	if data.Response != "final answer" {
		t.Fatalf("response = %q", data.Response)
	}
	if data.Plan == nil || data.Plan.Goal != "answer" {
		t.Fatalf("plan = %+v", data.Plan)
	}
	if data.Review == nil || data.Review.Score != 9 {
		t.Fatalf("review = %+v", data.Review)
	}
	if len(data.Logs) != 3 {
		t.Fatalf("agent logs = %+v", data.Logs)
	}
}

func TestMetricsReset(t *testing.T) {
	fx := newFixture(t, &scriptedLLM{responses: []*llm.ChatResponse{textResponse("hi")}})

	fx.do(t, http.MethodPost, "/api/chat", map[string]any{"message": "hi"}, "")
	fx.do(t, http.MethodDelete, "/api/metrics", nil, "")

	_, env := fx.do(t, http.MethodGet, "/api/metrics", nil, "")
	var snap metrics.SystemMetrics
	unmarshalData(t, env, &snap)
	if snap.TotalRequests != 0 || snap.TotalToolCalls != 0 {
		t.Fatalf("snapshot after reset = %+v", snap)
	}
}

func TestMCPServerRegistry(t *testing.T) {
	fx := newFixture(t, &scriptedLLM{responses: []*llm.ChatResponse{textResponse("hi")}})

	resp, env := fx.do(t, http.MethodPost, "/api/mcp/servers",
		map[string]any{"name": "files", "command": "/usr/bin/files-server"}, "")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("add status = %d, env = %+v", resp.StatusCode, env)
	}
	var cfg mcp.ServerConfig
	unmarshalData(t, env, &cfg)
	if cfg.ID == "" || cfg.Name != "files" {
		t.Fatalf("config = %+v", cfg)
	}

	_, env = fx.do(t, http.MethodGet, "/api/mcp/servers", nil, "")
	var list struct {
		Count int `json:"count"`
	}
	unmarshalData(t, env, &list)
	if list.Count != 1 {
		t.Fatalf("server count = %d", list.Count)
	}

	_, env = fx.do(t, http.MethodPatch, "/api/mcp/servers/"+cfg.ID,
		map[string]any{"name": "file tools"}, "")
	var updated mcp.ServerConfig
	unmarshalData(t, env, &updated)
	if updated.Name != "file tools" || updated.Command != cfg.Command {
		t.Fatalf("updated = %+v", updated)
	}

	resp, _ = fx.do(t, http.MethodPatch, "/api/mcp/servers/nope", map[string]any{"name": "x"}, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("patch unknown: status = %d", resp.StatusCode)
	}

	resp, _ = fx.do(t, http.MethodPost, "/api/mcp/servers/nope/reconnect", nil, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("reconnect unknown: status = %d", resp.StatusCode)
	}

	_, env = fx.do(t, http.MethodGet, "/api/mcp/tools", nil, "")
	var toolsData struct {
		Count int `json:"count"`
	}
	unmarshalData(t, env, &toolsData)
	if toolsData.Count != 0 {
		t.Fatalf("federated tool count = %d", toolsData.Count)
	}

	fx.do(t, http.MethodDelete, "/api/mcp/servers/"+cfg.ID, nil, "")
	_, env = fx.do(t, http.MethodGet, "/api/mcp/servers", nil, "")
	unmarshalData(t, env, &list)
	if list.Count != 0 {
		t.Fatalf("server count after delete = %d", list.Count)
	}
}
