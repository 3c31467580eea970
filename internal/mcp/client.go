package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
)

// Client drives one external tool server: it spawns the configured
// command, performs the MCP handshake over stdio, and exposes the
// server's tools.
type Client struct {
	cfg    ServerConfig
	logger *slog.Logger

	mu        sync.RWMutex
	process   *exec.Cmd
	transport *transport
	info      ServerInfo
	tools     []ToolInfo
	connected bool
}

// NewClient creates a client for one configured server. Connect must be
// called before any tool call.
func NewClient(cfg ServerConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		logger: logger.With("mcp_server", cfg.ID),
	}
}

// Connect spawns the server process and runs the handshake: initialize,
// the initialized notification, then tools/list. On any failure the
// process is torn down.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.cfg.Validate(); err != nil {
		return err
	}

	cmd := exec.Command(c.cfg.Command, c.cfg.Args...)
	cmd.Env = os.Environ()
	for k, v := range c.cfg.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, _ := cmd.StderrPipe()

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", c.cfg.Command, err)
	}
	c.logger.Info("started tool server process", "command", c.cfg.Command, "pid", cmd.Process.Pid)

	if stderr != nil {
		go c.logStderr(stderr)
	}

	tr := newTransport(stdin, stdout, 0, c.logger)
	info, tools, err := handshake(ctx, tr)
	if err != nil {
		tr.close()
		cmd.Process.Kill()
		cmd.Wait()
		return err
	}

	c.mu.Lock()
	c.process = cmd
	c.transport = tr
	c.info = info
	c.tools = tools
	c.connected = true
	c.mu.Unlock()

	c.logger.Info("connected to tool server",
		"name", info.Name, "version", info.Version, "tools", len(tools))
	return nil
}

// handshake performs the protocol negotiation over an established
// transport and returns the server identity and its tool list.
func handshake(ctx context.Context, tr *transport) (ServerInfo, []ToolInfo, error) {
	result, err := tr.call(ctx, "initialize", map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo": map[string]any{
			"name":    "stagehand",
			"version": "1.0.0",
		},
	})
	if err != nil {
		return ServerInfo{}, nil, fmt.Errorf("initialize: %w", err)
	}
	var init initializeResult
	if err := json.Unmarshal(result, &init); err != nil {
		return ServerInfo{}, nil, fmt.Errorf("parse initialize result: %w", err)
	}

	if err := tr.notify("notifications/initialized", nil); err != nil {
		return ServerInfo{}, nil, fmt.Errorf("initialized notification: %w", err)
	}

	result, err = tr.call(ctx, "tools/list", nil)
	if err != nil {
		return ServerInfo{}, nil, fmt.Errorf("tools/list: %w", err)
	}
	var list listToolsResult
	if err := json.Unmarshal(result, &list); err != nil {
		return ServerInfo{}, nil, fmt.Errorf("parse tools/list result: %w", err)
	}

	return init.ServerInfo, list.Tools, nil
}

// Disconnect tears down the transport and the child process. In-flight
// calls fail with ErrDisconnected.
func (c *Client) Disconnect() {
	c.mu.Lock()
	tr, proc := c.transport, c.process
	c.transport = nil
	c.process = nil
	c.connected = false
	c.mu.Unlock()

	if tr != nil {
		tr.close()
	}
	if proc != nil && proc.Process != nil {
		proc.Process.Kill()
		proc.Wait()
	}
}

// Connected reports whether the handshake completed and the transport is
// still up.
func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.connected || c.transport == nil {
		return false
	}
	select {
	case <-c.transport.closed:
		return false
	default:
		return true
	}
}

// Config returns the server configuration.
func (c *Client) Config() ServerConfig {
	return c.cfg
}

// ServerInfo returns the identity reported during the handshake.
func (c *Client) ServerInfo() ServerInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.info
}

// Tools returns the tool list cached at connect time.
func (c *Client) Tools() []ToolInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]ToolInfo, len(c.tools))
	copy(out, c.tools)
	return out
}

// CallTool invokes a tool on the server and flattens the result content
// to text. A result flagged as an error comes back as a Go error.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	c.mu.RLock()
	tr := c.transport
	c.mu.RUnlock()
	if tr == nil {
		return "", ErrDisconnected
	}

	params := callToolParams{Name: name}
	if args != nil {
		raw, err := json.Marshal(args)
		if err != nil {
			return "", fmt.Errorf("marshal arguments: %w", err)
		}
		params.Arguments = raw
	}

	result, err := tr.call(ctx, "tools/call", params)
	if err != nil {
		return "", err
	}
	var call toolCallResult
	if err := json.Unmarshal(result, &call); err != nil {
		return "", fmt.Errorf("parse tools/call result: %w", err)
	}

	text := flattenContent(call.Content)
	if call.IsError {
		return "", fmt.Errorf("tool %s failed: %s", name, text)
	}
	return text, nil
}

// flattenContent renders a tools/call result content field. The common
// shape is an array of typed items: text items contribute their text,
// anything else stays JSON-serialized, newline-joined. A plain string
// passes through, and any other shape comes back as raw JSON.
func flattenContent(raw json.RawMessage) string {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err == nil {
		var parts []string
		for _, item := range items {
			var typed toolResultContent
			if json.Unmarshal(item, &typed) == nil && typed.Type == "text" {
				if typed.Text != "" {
					parts = append(parts, typed.Text)
				}
				continue
			}
			parts = append(parts, string(item))
		}
		return strings.Join(parts, "\n")
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}
	return strings.TrimSpace(string(raw))
}

func (c *Client) logStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			c.logger.Debug("server stderr", "message", line)
		}
	}
}
