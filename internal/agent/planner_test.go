package agent

import (
	"context"
	"testing"

	"github.com/stagehand-ai/stagehand/internal/llm"
	"github.com/stagehand-ai/stagehand/pkg/models"
)

func TestPlanParsesModelOutput(t *testing.T) {
	client := &scriptedLLM{responses: []*llm.ChatResponse{textResponse(`{
		"goal": "Fetch the price and store it",
		"complexity": "medium",
		"estimated_tools": ["web_fetch_json", "db_query", "made_up_tool"],
		"steps": [
			{"step_no": 5, "description": "Fetch the price", "tool_hint": "web_fetch_json"},
			{"step_no": 9, "description": "Insert the row", "tool_hint": "db_query"}
		]
	}`)}}
	planner := NewPlanner(client, nil)

	plan := planner.Plan(context.Background(), "look up price and record it",
		[]string{"web_fetch_json", "db_query"})

	if plan.Goal != "Fetch the price and store it" || plan.Complexity != models.ComplexityMedium {
		t.Fatalf("plan = %+v", plan)
	}
	// Unknown tools are dropped, steps renumbered, statuses defaulted.
	if len(plan.EstimatedTools) != 2 {
		t.Fatalf("estimated tools = %v", plan.EstimatedTools)
	}
	for i, step := range plan.Steps {
		if step.StepNo != i+1 {
			t.Fatalf("step %d numbered %d", i, step.StepNo)
		}
		if step.Status != models.StepPending {
			t.Fatalf("step %d status = %s", i, step.Status)
		}
	}
}

func TestPlanStripsCodeFences(t *testing.T) {
	client := &scriptedLLM{responses: []*llm.ChatResponse{textResponse(
		"```json\n{\"goal\":\"g\",\"complexity\":\"simple\",\"steps\":[{\"description\":\"do it\"}]}\n```",
	)}}
	planner := NewPlanner(client, nil)

	plan := planner.Plan(context.Background(), "prompt", nil)
	if plan.Goal != "g" {
		t.Fatalf("fenced output not parsed: %+v", plan)
	}
}

func TestPlanFallbackOnUnparseableOutput(t *testing.T) {
	for _, content := range []string{
		"I think we should first...",
		`{"goal": "g"}`,
		`{"steps": [{"description": "d"}]}`,
		"",
	} {
		client := &scriptedLLM{responses: []*llm.ChatResponse{textResponse(content)}}
		planner := NewPlanner(client, nil)

		plan := planner.Plan(context.Background(), "original prompt", []string{"echo"})
		if plan.Goal != "original prompt" {
			t.Fatalf("content %q: fallback goal = %q", content, plan.Goal)
		}
		if plan.Complexity != models.ComplexitySimple || len(plan.Steps) != 1 {
			t.Fatalf("content %q: fallback plan = %+v", content, plan)
		}
	}
}

func TestPlanFallbackOnModelFailure(t *testing.T) {
	client := &scriptedLLM{
		responses: []*llm.ChatResponse{nil},
		errs:      []error{&llm.TransportError{Err: context.DeadlineExceeded}},
	}
	planner := NewPlanner(client, nil)

	plan := planner.Plan(context.Background(), "prompt", nil)
	if plan.Goal != "prompt" || plan.Complexity != models.ComplexitySimple {
		t.Fatalf("fallback plan = %+v", plan)
	}
}

func TestPlanInvalidComplexityDefaultsToSimple(t *testing.T) {
	client := &scriptedLLM{responses: []*llm.ChatResponse{textResponse(
		`{"goal":"g","complexity":"extreme","steps":[{"description":"d"}]}`,
	)}}
	planner := NewPlanner(client, nil)

	plan := planner.Plan(context.Background(), "prompt", nil)
	if plan.Complexity != models.ComplexitySimple {
		t.Fatalf("complexity = %s", plan.Complexity)
	}
}

func TestStripCodeFences(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"bare", `{"a":1}`, `{"a":1}`},
		{"fenced", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"fenced with tag", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"leading whitespace", "  ```json\n{\"a\":1}\n```  ", `{"a":1}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := stripCodeFences(tc.in); got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}
