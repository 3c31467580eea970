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

const reviewerPrompt = `You are a quality reviewer. Given a user request, the tool calls that were executed, and the final response, rate the execution.

Respond with ONLY a JSON object, no prose:
{
  "passed": true | false,
  "score": <integer 0-10>,
  "feedback": "<one or two sentences>",
  "issues": ["<problems found>"],
  "suggestions": ["<improvements>"]
}`

// Reviewer rates a finished run with one LLM call. Malformed model
// output degrades to a deterministic verdict computed from the tool
// call outcomes.
type Reviewer struct {
	llm    LLMClient
	logger *slog.Logger
}

// NewReviewer creates a reviewer.
func NewReviewer(client LLMClient, logger *slog.Logger) *Reviewer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reviewer{llm: client, logger: logger.With("component", "reviewer")}
}

// Review rates the execution recorded in the timeline.
func (r *Reviewer) Review(ctx context.Context, userPrompt string, timeline *models.Timeline) *models.Review {
	successes, errors := countOutcomes(timeline)

	messages := []llm.Message{
		{Role: "system", Content: reviewerPrompt},
		{Role: "user", Content: reviewInput(userPrompt, timeline)},
	}

	resp, err := r.llm.Chat(ctx, messages, nil)
	if err != nil {
		r.logger.Warn("reviewer model call failed, using fallback", "error", err)
		return fallbackReview(successes, errors)
	}

	var review models.Review
	if err := json.Unmarshal([]byte(stripCodeFences(resp.Message.Content)), &review); err != nil {
		r.logger.Warn("reviewer output unparseable, using fallback", "error", err)
		return fallbackReview(successes, errors)
	}
	if review.Feedback == "" {
		return fallbackReview(successes, errors)
	}

	review.Score = clampScore(review.Score)
	if review.Issues == nil {
		review.Issues = []string{}
	}
	if review.Suggestions == nil {
		review.Suggestions = []string{}
	}
	return &review
}

// fallbackReview is the deterministic verdict: pass unless failures
// outnumber successes.
func fallbackReview(successes, errors int) *models.Review {
	score := 8
	switch {
	case errors == 0:
	case successes > 0:
		score = 6
	default:
		score = 4
	}
	return &models.Review{
		Passed:      errors == 0 || successes > errors,
		Score:       score,
		Feedback:    fmt.Sprintf("Automatic review: %d tool call(s) succeeded, %d failed.", successes, errors),
		Issues:      []string{},
		Suggestions: []string{},
	}
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 10 {
		return 10
	}
	return score
}

func countOutcomes(timeline *models.Timeline) (successes, errors int) {
	for _, tc := range timeline.ToolCalls {
		switch tc.Status {
		case models.ToolCallSuccess:
			successes++
		case models.ToolCallError:
			errors++
		}
	}
	return successes, errors
}

// reviewInput renders the run for the reviewer model.
func reviewInput(userPrompt string, timeline *models.Timeline) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Request: %s\n\nTool calls:\n", userPrompt)
	if len(timeline.ToolCalls) == 0 {
		b.WriteString("(none)\n")
	}
	for i, tc := range timeline.ToolCalls {
		fmt.Fprintf(&b, "%d. %s -> %s", i+1, tc.ToolName, tc.Status)
		if tc.Error != "" {
			fmt.Fprintf(&b, " (%s)", tc.Error)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\nFinal response: %s\n", timeline.FinalResponse)
	return b.String()
}

// summarizeReview renders the one-line log entry for the orchestrator.
func summarizeReview(review *models.Review) string {
	verdict := "failed"
	if review.Passed {
		verdict = "passed"
	}
	return fmt.Sprintf("Review %s with score %d/10", verdict, review.Score)
}
