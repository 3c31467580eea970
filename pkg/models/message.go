package models

import "time"

// MessageRole identifies the author of a conversation message.
type MessageRole string

const (
	MessageRoleSystem    MessageRole = "system"
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
	MessageRoleTool      MessageRole = "tool"
)

// AgentMessage is one entry in a session's conversation history.
type AgentMessage struct {
	Role      MessageRole       `json:"role"`
	Content   string            `json:"content"`
	ToolCalls []ToolCallRequest `json:"tool_calls,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Session is the in-process memory bound to a session id. Messages are
// strictly append-only and Role is immutable after creation.
type Session struct {
	ID        string         `json:"session_id"`
	UserID    string         `json:"user_id"`
	Role      Role           `json:"role"`
	Messages  []AgentMessage `json:"messages"`
	Variables map[string]any `json:"variables"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// SessionSummary is the compact view returned by session listings.
type SessionSummary struct {
	SessionID     string    `json:"session_id"`
	UserID        string    `json:"user_id"`
	Role          Role      `json:"role"`
	MessageCount  int       `json:"message_count"`
	ToolCallCount int       `json:"tool_call_count"`
	VariableCount int       `json:"variable_count"`
	LastActivity  time.Time `json:"last_activity"`
}
