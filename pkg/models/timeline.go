package models

import "time"

// Timeline is the append-only record of one agent run.
type Timeline struct {
	SessionID       string      `json:"session_id"`
	UserPrompt      string      `json:"user_prompt"`
	ToolCalls       []*ToolCall `json:"tool_calls"`
	FinalResponse   string      `json:"final_response"`
	StartedAt       time.Time   `json:"started_at"`
	FinishedAt      *time.Time  `json:"finished_at,omitempty"`
	TotalDurationMS int64       `json:"total_duration_ms"`
}

// Finish stamps the completion time and total duration.
func (t *Timeline) Finish() {
	now := time.Now()
	t.FinishedAt = &now
	t.TotalDurationMS = now.Sub(t.StartedAt).Milliseconds()
}

// AgentLog is one phase entry in a multi-agent run.
type AgentLog struct {
	Agent     string    `json:"agent"`
	Summary   string    `json:"summary"`
	Timestamp time.Time `json:"timestamp"`
}

// MultiAgentTimeline augments a run timeline with the plan, the review,
// and per-phase log entries from the orchestrator.
type MultiAgentTimeline struct {
	*Timeline
	Plan      *Plan      `json:"plan,omitempty"`
	Review    *Review    `json:"review,omitempty"`
	AgentLogs []AgentLog `json:"agent_logs"`
}
