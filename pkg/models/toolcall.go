package models

import "time"

// ToolCallStatus tracks the lifecycle of a tool execution.
type ToolCallStatus string

const (
	ToolCallPending ToolCallStatus = "pending"
	ToolCallRunning ToolCallStatus = "running"
	ToolCallSuccess ToolCallStatus = "success"
	ToolCallError   ToolCallStatus = "error"
	ToolCallSkipped ToolCallStatus = "skipped"
)

// ToolCall records one tool execution from allocation to completion.
// It is mutated only by the executor that created it; once FinishedAt
// is set the record is immutable.
type ToolCall struct {
	ID         string         `json:"id"`
	ToolName   string         `json:"tool_name"`
	Args       map[string]any `json:"args"`
	Status     ToolCallStatus `json:"status"`
	Result     any            `json:"result,omitempty"`
	Error      string         `json:"error,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
	DurationMS int64          `json:"duration_ms"`
}

// Finish stamps the completion time and duration.
func (tc *ToolCall) Finish() {
	now := time.Now()
	tc.FinishedAt = &now
	tc.DurationMS = now.Sub(tc.StartedAt).Milliseconds()
}

// ToolCallRequest is a tool invocation as requested by the model: a tool
// name plus the arguments the model chose. Distinct from ToolCall, which
// records what actually happened when the executor ran it.
type ToolCallRequest struct {
	ID   string         `json:"id,omitempty"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}
