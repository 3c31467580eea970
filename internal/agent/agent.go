package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"

	"github.com/stagehand-ai/stagehand/internal/events"
	"github.com/stagehand-ai/stagehand/internal/llm"
	"github.com/stagehand-ai/stagehand/internal/sessions"
	"github.com/stagehand-ai/stagehand/internal/tools"
	"github.com/stagehand-ai/stagehand/pkg/models"
)

const (
	// DefaultMaxIterations caps the reasoning loop.
	DefaultMaxIterations = 6

	// historyWindow is how many prior session messages are replayed to
	// the model each turn. The stored history itself is unbounded.
	historyWindow = 8
)

// LLMClient is the chat surface the agents consume.
type LLMClient interface {
	Chat(ctx context.Context, messages []llm.Message, tools []openai.Tool) (*llm.ChatResponse, error)
}

// FederatedCatalog lists tools discovered on external servers.
type FederatedCatalog interface {
	Tools() []tools.Descriptor
}

// Agent drives the bounded reasoning loop: model turns alternating with
// sequential tool execution until the model answers without tools or the
// iteration cap is hit.
type Agent struct {
	llm       LLMClient
	registry  *tools.Registry
	executor  *tools.Executor
	federated FederatedCatalog
	sessions  *sessions.Store
	bus       *events.Bus
	safeMode  bool
	prompt    string
	logger    *slog.Logger
}

// Config wires an Agent. Federated may be nil when no external servers
// are configured.
type Config struct {
	LLM          LLMClient
	Registry     *tools.Registry
	Executor     *tools.Executor
	Federated    FederatedCatalog
	Sessions     *sessions.Store
	Bus          *events.Bus
	SafeMode     bool
	SystemPrompt string
	Logger       *slog.Logger
}

// New creates an Agent.
func New(cfg Config) *Agent {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{
		llm:       cfg.LLM,
		registry:  cfg.Registry,
		executor:  cfg.Executor,
		federated: cfg.Federated,
		sessions:  cfg.Sessions,
		bus:       cfg.Bus,
		safeMode:  cfg.SafeMode,
		prompt:    cfg.SystemPrompt,
		logger:    logger.With("component", "agent"),
	}
}

// RunRequest describes one reasoning run against a session.
type RunRequest struct {
	SessionID     string
	UserPrompt    string
	Role          models.Role
	AllowedTools  []string
	MaxIterations int
	OnToken       func(string)

	// Quiet suppresses the start/done/error lifecycle events; the
	// orchestrator emits its own phase sequence instead. Tool events are
	// always emitted.
	Quiet bool
}

// Run executes the reasoning loop. It always returns a finalized
// timeline; run-level failures surface in FinalResponse, never as a Go
// error.
func (a *Agent) Run(ctx context.Context, req RunRequest) *models.Timeline {
	maxIter := req.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}

	timeline := &models.Timeline{
		SessionID:  req.SessionID,
		UserPrompt: req.UserPrompt,
		ToolCalls:  []*models.ToolCall{},
		StartedAt:  time.Now(),
	}

	if !req.Quiet {
		a.publish(req.SessionID, events.AgentStart, map[string]any{"prompt": req.UserPrompt})
	}

	modelTools := a.modelTools(req.Role, req.AllowedTools)
	messages := a.buildMessages(req)

	if err := a.sessions.AppendMessage(req.SessionID, models.AgentMessage{
		Role:    models.MessageRoleUser,
		Content: req.UserPrompt,
	}); err != nil {
		a.logger.Error("append user message failed", "session", req.SessionID, "error", err)
	}

	var (
		final     string
		finished  bool
		requested []models.ToolCallRequest
	)

loop:
	for i := 0; i < maxIter; i++ {
		resp, err := a.llm.Chat(ctx, messages, modelTools)
		if err != nil {
			a.logger.Warn("model call failed", "session", req.SessionID, "iteration", i, "error", err)
			final = "AI Error: " + err.Error()
			finished = true
			if !req.Quiet {
				a.publish(req.SessionID, events.AgentError, map[string]any{"error": err.Error()})
			}
			break loop
		}

		// A tool-less turn is the final response, even when the model
		// returned empty content.
		if len(resp.Message.ToolCalls) == 0 {
			final = resp.Message.Content
			finished = true
			a.streamTokens(req.OnToken, final)
			break loop
		}

		messages = append(messages, resp.Message)

		// Sequential execution in emission order; the model may chain
		// results across calls.
		for _, call := range resp.Message.ToolCalls {
			requested = append(requested, models.ToolCallRequest{
				ID:   uuid.NewString(),
				Name: call.Function.Name,
				Args: call.Function.Arguments,
			})

			rec := a.executor.Execute(ctx, req.SessionID, call.Function.Name, call.Function.Arguments, req.Role)
			timeline.ToolCalls = append(timeline.ToolCalls, rec)
			a.publish(req.SessionID, events.ToolExecuted, rec)

			messages = append(messages, llm.Message{
				Role:     string(models.MessageRoleTool),
				ToolName: rec.ToolName,
				Content:  toolMessageContent(rec),
			})
		}
	}

	if !finished {
		final = fmt.Sprintf("Completed %d tool operations. Check the execution timeline for details.", len(timeline.ToolCalls))
	}

	timeline.FinalResponse = final
	timeline.Finish()

	if err := a.sessions.AppendMessage(req.SessionID, models.AgentMessage{
		Role:      models.MessageRoleAssistant,
		Content:   final,
		ToolCalls: requested,
	}); err != nil {
		a.logger.Error("append assistant message failed", "session", req.SessionID, "error", err)
	}

	if !req.Quiet {
		a.publish(req.SessionID, events.AgentDone, map[string]any{
			"response":   final,
			"tool_calls": len(timeline.ToolCalls),
		})
	}
	return timeline
}

// modelTools assembles the tool definitions offered to the model: the
// role-filtered built-in catalog plus every federated tool.
func (a *Agent) modelTools(role models.Role, allowed []string) []openai.Tool {
	specs := a.registry.ForRole(role, a.safeMode)
	if len(allowed) > 0 {
		allowedSet := make(map[string]bool, len(allowed))
		for _, name := range allowed {
			allowedSet[name] = true
		}
		kept := specs[:0]
		for _, s := range specs {
			if allowedSet[s.Name] {
				kept = append(kept, s)
			}
		}
		specs = kept
	}

	var federated []tools.Descriptor
	if a.federated != nil {
		federated = a.federated.Tools()
	}
	return tools.ToModelTools(specs, federated)
}

// buildMessages assembles the turn's context: operating prompt, the last
// few session messages, then the new user prompt.
func (a *Agent) buildMessages(req RunRequest) []llm.Message {
	history, err := a.sessions.History(req.SessionID, historyWindow)
	if err != nil && err != sessions.ErrNotFound {
		a.logger.Error("load history failed", "session", req.SessionID, "error", err)
	}

	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{
		Role:    string(models.MessageRoleSystem),
		Content: a.prompt,
	})
	for _, m := range history {
		messages = append(messages, llm.Message{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}
	return append(messages, llm.Message{
		Role:    string(models.MessageRoleUser),
		Content: req.UserPrompt,
	})
}

// streamTokens replays the final content through the optional token
// callback, one character at a time.
func (a *Agent) streamTokens(onToken func(string), content string) {
	if onToken == nil {
		return
	}
	for _, r := range content {
		onToken(string(r))
	}
}

// toolMessageContent renders an executed call for the model: the result
// pretty-printed on success, the error string otherwise.
func toolMessageContent(rec *models.ToolCall) string {
	if rec.Status != models.ToolCallSuccess {
		return "ERROR: " + rec.Error
	}
	pretty, err := json.MarshalIndent(rec.Result, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", rec.Result)
	}
	return string(pretty)
}

func (a *Agent) publish(sessionID, name string, data any) {
	if a.bus != nil {
		a.bus.Publish(sessionID, name, data)
	}
}
