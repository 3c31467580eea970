// Package tools provides the built-in tool catalog and the executor that
// validates, gates, and dispatches tool calls.
package tools

import (
	"context"
	"encoding/json"

	openai "github.com/sashabaranov/go-openai"

	"github.com/stagehand-ai/stagehand/pkg/models"
)

// Spec describes one tool: its model-facing schema plus the access rules
// the executor enforces.
type Spec struct {
	Name              string          `json:"name"`
	Description       string          `json:"description"`
	InputSchema       json.RawMessage `json:"input_schema"`
	RequiredRoles     []models.Role   `json:"required_roles"`
	SafeForProduction bool            `json:"safe_for_production"`
}

// AllowsRole reports whether the role may call the tool.
func (s Spec) AllowsRole(role models.Role) bool {
	for _, r := range s.RequiredRoles {
		if r == role {
			return true
		}
	}
	return false
}

// Tool pairs a spec with its invoker.
type Tool interface {
	Spec() Spec
	Invoke(ctx context.Context, args map[string]any) (any, error)
}

// Func is a tool invoker.
type Func func(ctx context.Context, args map[string]any) (any, error)

type funcTool struct {
	spec Spec
	fn   Func
}

func (t *funcTool) Spec() Spec { return t.spec }

func (t *funcTool) Invoke(ctx context.Context, args map[string]any) (any, error) {
	return t.fn(ctx, args)
}

// New builds a tool from a spec and an invoker.
func New(spec Spec, fn Func) Tool {
	return &funcTool{spec: spec, fn: fn}
}

// RolesAtLeast expands a minimum role into the set of roles that satisfy it.
func RolesAtLeast(min models.Role) []models.Role {
	var out []models.Role
	for _, r := range models.AllRoles() {
		if r.AtLeast(min) {
			out = append(out, r)
		}
	}
	return out
}

// Descriptor holds a tool definition plus its schema for federated tools
// that are not part of the built-in catalog.
type Descriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// ToModelTools projects specs into the function-calling shape the model
// backend expects.
func ToModelTools(specs []Spec, federated []Descriptor) []openai.Tool {
	out := make([]openai.Tool, 0, len(specs)+len(federated))
	for _, s := range specs {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        s.Name,
				Description: s.Description,
				Parameters:  s.InputSchema,
			},
		})
	}
	for _, d := range federated {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  d.InputSchema,
			},
		})
	}
	return out
}
