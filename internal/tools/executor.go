package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/stagehand-ai/stagehand/internal/metrics"
	"github.com/stagehand-ai/stagehand/pkg/models"
)

// FederatedExecutor routes a fully-qualified federated tool name
// (mcp__<server_id>__<tool_name>) to its external server.
type FederatedExecutor interface {
	Execute(ctx context.Context, fullName string, args map[string]any) (any, error)
}

// placeholderRe matches an unresolved template literal like {price}
// inside SQL. Models occasionally inline these instead of binding a real
// parameter; such statements must never reach the database.
var placeholderRe = regexp.MustCompile(`\{[A-Za-z_][A-Za-z0-9_]*\}`)

// Executor validates, gates, and dispatches tool calls. Every call
// produces a ToolCall record regardless of outcome.
type Executor struct {
	registry  *Registry
	federated FederatedExecutor
	metrics   *metrics.Store
	safeMode  bool
	logger    *slog.Logger
}

// NewExecutor creates an executor over the built-in registry. federated
// and store may be nil.
func NewExecutor(registry *Registry, federated FederatedExecutor, store *metrics.Store, safeMode bool, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		registry:  registry,
		federated: federated,
		metrics:   store,
		safeMode:  safeMode,
		logger:    logger.With("component", "executor"),
	}
}

// Execute runs one tool call on behalf of a session. Errors never
// propagate as Go errors: they land in the returned record so the
// reasoning loop can relay them to the model.
func (e *Executor) Execute(ctx context.Context, sessionID, name string, args map[string]any, role models.Role) *models.ToolCall {
	tc := &models.ToolCall{
		ID:        uuid.NewString(),
		ToolName:  name,
		Args:      args,
		Status:    models.ToolCallPending,
		StartedAt: time.Now(),
	}
	defer func() {
		if tc.FinishedAt == nil {
			tc.Finish()
		}
		e.record(sessionID, tc)
	}()

	if IsFederatedName(name) {
		e.executeFederated(ctx, tc)
		return tc
	}

	tool, ok := e.registry.Get(name)
	if !ok {
		e.fail(tc, fmt.Sprintf("Unknown tool: %s", name))
		return tc
	}
	spec := tool.Spec()

	if !spec.AllowsRole(role) {
		e.fail(tc, fmt.Sprintf("Permission denied: role '%s' cannot use tool '%s'", role, name))
		tc.Finish()
		tc.DurationMS = 0
		return tc
	}
	if e.safeMode && !spec.SafeForProduction {
		e.fail(tc, fmt.Sprintf("Permission denied: tool '%s' is disabled in production safe mode", name))
		tc.Finish()
		tc.DurationMS = 0
		return tc
	}

	if err := checkSQLPlaceholders(args); err != nil {
		e.fail(tc, err.Error())
		return tc
	}

	if schema, ok := e.registry.Schema(name); ok {
		if err := schema.Validate(normalizeArgs(args)); err != nil {
			e.fail(tc, fmt.Sprintf("Invalid arguments for %s: %v", name, err))
			return tc
		}
	}

	tc.Status = models.ToolCallRunning
	result, err := tool.Invoke(ctx, args)
	if err != nil {
		e.fail(tc, err.Error())
		return tc
	}
	tc.Status = models.ToolCallSuccess
	tc.Result = result
	return tc
}

func (e *Executor) executeFederated(ctx context.Context, tc *models.ToolCall) {
	if e.federated == nil {
		e.fail(tc, "no external tool servers configured")
		return
	}
	tc.Status = models.ToolCallRunning
	result, err := e.federated.Execute(ctx, tc.ToolName, tc.Args)
	if err != nil {
		e.fail(tc, err.Error())
		return
	}
	tc.Status = models.ToolCallSuccess
	tc.Result = result
}

func (e *Executor) fail(tc *models.ToolCall, msg string) {
	tc.Status = models.ToolCallError
	tc.Error = msg
	e.logger.Debug("tool call failed", "tool", tc.ToolName, "error", msg)
}

func (e *Executor) record(sessionID string, tc *models.ToolCall) {
	if e.metrics == nil {
		return
	}
	e.metrics.RecordToolCall(sessionID, tc.ToolName,
		tc.Status == models.ToolCallSuccess,
		time.Duration(tc.DurationMS)*time.Millisecond)
}

// checkSQLPlaceholders rejects SQL bodies carrying an unresolved
// template placeholder.
func checkSQLPlaceholders(args map[string]any) error {
	sql, ok := args["sql"].(string)
	if !ok {
		return nil
	}
	if m := placeholderRe.FindString(sql); m != "" {
		return fmt.Errorf("SQL contains unresolved placeholder %s: use query parameters instead of template literals", m)
	}
	return nil
}

// normalizeArgs round-trips values that may carry non-JSON Go types (for
// example json.Number or typed slices from decoded requests) into the
// plain shapes the schema validator expects.
func normalizeArgs(args map[string]any) any {
	if args == nil {
		return map[string]any{}
	}
	data, err := json.Marshal(args)
	if err != nil {
		return args
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return args
	}
	return out
}
