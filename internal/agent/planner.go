package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/stagehand-ai/stagehand/internal/llm"
	"github.com/stagehand-ai/stagehand/pkg/models"
)

const plannerPrompt = `You are a planning assistant. Given a user request and the available tool names, produce a short execution plan.

Respond with ONLY a JSON object, no prose:
{
  "goal": "<one sentence restating the objective>",
  "complexity": "simple" | "medium" | "complex",
  "estimated_tools": ["<tool names likely needed>"],
  "steps": [{"step_no": 1, "description": "<what to do>", "tool_hint": "<tool name or empty>"}]
}`

// Planner turns a user prompt into a structured plan with one LLM call.
// Malformed model output degrades to a deterministic single-step plan.
type Planner struct {
	llm    LLMClient
	logger *slog.Logger
}

// NewPlanner creates a planner.
func NewPlanner(client LLMClient, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{llm: client, logger: logger.With("component", "planner")}
}

// Plan produces a plan for the prompt. knownTools bounds estimated_tools;
// unknown names are dropped.
func (p *Planner) Plan(ctx context.Context, userPrompt string, knownTools []string) *models.Plan {
	messages := []llm.Message{
		{Role: "system", Content: plannerPrompt + "\n\nAvailable tools: " + strings.Join(knownTools, ", ")},
		{Role: "user", Content: userPrompt},
	}

	resp, err := p.llm.Chat(ctx, messages, nil)
	if err != nil {
		p.logger.Warn("planner model call failed, using fallback", "error", err)
		return fallbackPlan(userPrompt)
	}

	var plan models.Plan
	if err := json.Unmarshal([]byte(stripCodeFences(resp.Message.Content)), &plan); err != nil {
		p.logger.Warn("planner output unparseable, using fallback", "error", err)
		return fallbackPlan(userPrompt)
	}
	if plan.Goal == "" || len(plan.Steps) == 0 {
		return fallbackPlan(userPrompt)
	}

	normalizePlan(&plan, knownTools)
	return &plan
}

// fallbackPlan is the deterministic plan used whenever the model's
// output cannot be trusted.
func fallbackPlan(userPrompt string) *models.Plan {
	return &models.Plan{
		Goal:           userPrompt,
		Complexity:     models.ComplexitySimple,
		EstimatedTools: []string{},
		Steps: []models.PlanStep{
			{StepNo: 1, Description: "Respond to the request directly", Status: models.StepPending},
		},
	}
}

func normalizePlan(plan *models.Plan, knownTools []string) {
	switch plan.Complexity {
	case models.ComplexitySimple, models.ComplexityMedium, models.ComplexityComplex:
	default:
		plan.Complexity = models.ComplexitySimple
	}

	known := make(map[string]bool, len(knownTools))
	for _, name := range knownTools {
		known[name] = true
	}
	kept := plan.EstimatedTools[:0]
	for _, name := range plan.EstimatedTools {
		if known[name] {
			kept = append(kept, name)
		}
	}
	plan.EstimatedTools = kept
	if plan.EstimatedTools == nil {
		plan.EstimatedTools = []string{}
	}

	for i := range plan.Steps {
		plan.Steps[i].StepNo = i + 1
		if plan.Steps[i].Status == "" {
			plan.Steps[i].Status = models.StepPending
		}
	}
}

// stripCodeFences removes a surrounding markdown fence, with or without
// a language tag, from model output.
func stripCodeFences(content string) string {
	s := strings.TrimSpace(content)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx >= 0 {
		// Drop the language tag line ("json", "JSON", ...).
		first := strings.TrimSpace(s[:idx])
		if len(first) <= 10 && !strings.ContainsAny(first, "{[") {
			s = s[idx+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// summarizePlan renders the one-line log entry for the orchestrator.
func summarizePlan(plan *models.Plan) string {
	return fmt.Sprintf("Planned %d step(s), complexity %s", len(plan.Steps), plan.Complexity)
}
