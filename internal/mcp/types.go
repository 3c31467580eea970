// Package mcp federates external tool servers into the agent over the
// Model Context Protocol: each server is a child process speaking
// line-delimited JSON-RPC 2.0 on stdio.
package mcp

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// protocolVersion is the MCP revision sent during the initialize
// handshake.
const protocolVersion = "2024-11-05"

// federatedPrefix marks a tool name as belonging to an external server.
const federatedPrefix = "mcp__"

var serverIDRe = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)

// ServerConfig describes one external tool server: the command to spawn
// and whether it participates in startup.
type ServerConfig struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Command     string            `json:"command"`
	Args        []string          `json:"args,omitempty"`
	Env         map[string]string `json:"env,omitempty"`
	Enabled     bool              `json:"enabled"`
}

// Validate checks the fields a server needs before it can be spawned.
// IDs must not contain "__" since it delimits the federated tool name.
func (c *ServerConfig) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("server id is required")
	}
	if !serverIDRe.MatchString(c.ID) || strings.Contains(c.ID, "__") {
		return fmt.Errorf("invalid server id %q: must match [a-z][a-z0-9_-]* without double underscores", c.ID)
	}
	if c.Command == "" {
		return fmt.Errorf("command is required for server %s", c.ID)
	}
	return nil
}

// FederatedName builds the fully-qualified name a model uses to address
// a tool on an external server.
func FederatedName(serverID, toolName string) string {
	return federatedPrefix + serverID + "__" + toolName
}

// SplitFederatedName parses mcp__<server_id>__<tool_name>. The tool name
// may itself contain "__", so only the first separator after the prefix
// delimits the server id.
func SplitFederatedName(fullName string) (serverID, toolName string, err error) {
	rest, ok := strings.CutPrefix(fullName, federatedPrefix)
	if !ok {
		return "", "", fmt.Errorf("not a federated tool name: %s", fullName)
	}
	idx := strings.Index(rest, "__")
	if idx <= 0 || idx+2 >= len(rest) {
		return "", "", fmt.Errorf("malformed federated tool name: %s", fullName)
	}
	return rest[:idx], rest[idx+2:], nil
}

// ToolInfo is a tool definition advertised by an external server.
type ToolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// ServerInfo identifies the remote implementation, from the initialize
// response.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ServerStatus is the externally visible state of one configured server.
type ServerStatus struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Enabled     bool       `json:"enabled"`
	Connected   bool       `json:"connected"`
	Server      ServerInfo `json:"server,omitempty"`
	Tools       int        `json:"tools"`
}

// JSON-RPC 2.0 wire types.

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type rpcNotification struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

type initializeResult struct {
	ProtocolVersion string     `json:"protocolVersion"`
	ServerInfo      ServerInfo `json:"serverInfo"`
}

type listToolsResult struct {
	Tools []ToolInfo `json:"tools"`
}

type callToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

type toolCallResult struct {
	Content json.RawMessage `json:"content"`
	IsError bool            `json:"isError,omitempty"`
}

type toolResultContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}
