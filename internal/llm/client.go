// Package llm provides the chat client for the local model backend.
//
// The backend speaks the Ollama /api/chat protocol: a single JSON
// round-trip when stream is false, NDJSON fragments when true. Tool
// definitions ride along in the OpenAI function-calling shape.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// Message is one chat message in the backend's wire shape.
type Message struct {
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	ToolName  string     `json:"tool_name,omitempty"`
}

// ToolCall is a model-requested tool invocation on the wire.
type ToolCall struct {
	Function ToolFunction `json:"function"`
}

// ToolFunction carries the tool name and chosen arguments.
type ToolFunction struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ChatResponse is the result of one synchronous chat round-trip.
type ChatResponse struct {
	Message    Message
	DoneReason string
}

// Health reports backend availability and the models it serves.
type Health struct {
	Available bool     `json:"available"`
	Models    []string `json:"models"`
}

// Config configures the client. Temperature and context length apply to
// every call; they are not per-call parameters.
type Config struct {
	BaseURL       string
	Model         string
	Temperature   float64
	ContextLength int
	Timeout       time.Duration
}

// Client is a chat client for a single local model backend. It never
// retries; callers decide retry policy.
type Client struct {
	http        *http.Client
	baseURL     string
	model       string
	temperature float64
	contextLen  int
}

// New creates a client from config, applying defaults for unset fields.
func New(cfg Config) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		http:        &http.Client{Timeout: timeout},
		baseURL:     baseURL,
		model:       strings.TrimSpace(cfg.Model),
		temperature: cfg.Temperature,
		contextLen:  cfg.ContextLength,
	}
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Tools    []openai.Tool  `json:"tools,omitempty"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatResponseBody struct {
	Message    *Message `json:"message"`
	Done       bool     `json:"done"`
	DoneReason string   `json:"done_reason"`
	Error      string   `json:"error"`
}

// Chat performs one synchronous round-trip with optional tool definitions.
func (c *Client) Chat(ctx context.Context, messages []Message, tools []openai.Tool) (*ChatResponse, error) {
	body, err := c.post(ctx, chatRequest{
		Model:    c.model,
		Messages: messages,
		Tools:    tools,
		Stream:   false,
		Options:  c.options(),
	})
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var resp chatResponseBody
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return nil, &TransportError{Err: fmt.Errorf("decode response: %w", err)}
	}
	if resp.Error != "" {
		return nil, &ServerError{Message: resp.Error}
	}
	if resp.Message == nil {
		return nil, &ServerError{Message: "response missing message"}
	}
	return &ChatResponse{Message: *resp.Message, DoneReason: resp.DoneReason}, nil
}

// ChatStream performs a streaming round-trip, invoking onToken for each
// content fragment as it arrives, and returns the aggregated content.
// The streaming path never carries tool calls.
func (c *Client) ChatStream(ctx context.Context, messages []Message, tools []openai.Tool, onToken func(string)) (string, error) {
	body, err := c.post(ctx, chatRequest{
		Model:    c.model,
		Messages: messages,
		Tools:    tools,
		Stream:   true,
		Options:  c.options(),
	})
	if err != nil {
		return "", err
	}
	defer body.Close()

	var full strings.Builder
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var resp chatResponseBody
		if err := json.Unmarshal([]byte(line), &resp); err != nil {
			return full.String(), &TransportError{Err: fmt.Errorf("decode fragment: %w", err)}
		}
		if resp.Error != "" {
			return full.String(), &ServerError{Message: resp.Error}
		}
		if resp.Message != nil && resp.Message.Content != "" {
			full.WriteString(resp.Message.Content)
			if onToken != nil {
				onToken(resp.Message.Content)
			}
		}
		if resp.Done {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return full.String(), &TransportError{Err: err}
	}
	return full.String(), nil
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// CheckHealth probes the backend and lists available models.
func (c *Client) CheckHealth(ctx context.Context) Health {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return Health{}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return Health{}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Health{}
	}

	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return Health{}
	}
	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		names = append(names, m.Name)
	}
	return Health{Available: true, Models: names}
}

func (c *Client) options() map[string]any {
	opts := map[string]any{"temperature": c.temperature}
	if c.contextLen > 0 {
		opts["num_ctx"] = c.contextLen
	}
	return opts
}

func (c *Client) post(ctx context.Context, payload chatRequest) (io.ReadCloser, error) {
	if payload.Model == "" {
		return nil, &ServerError{Message: "model is required"}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &TransportError{Err: fmt.Errorf("marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	if resp.StatusCode >= http.StatusBadRequest {
		defer resp.Body.Close()
		errBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		if readErr != nil {
			errBody = []byte("(unreadable body)")
		}
		return nil, &ServerError{Status: resp.StatusCode, Message: strings.TrimSpace(string(errBody))}
	}
	return resp.Body, nil
}

// IsTransport reports whether err is a transport-level failure.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
