package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/stagehand-ai/stagehand/internal/events"
	"github.com/stagehand-ai/stagehand/pkg/models"
)

// Orchestrator sequences the multi-agent pipeline: plan, execute,
// review. Each phase is announced on the event bus.
type Orchestrator struct {
	planner  *Planner
	agent    *Agent
	reviewer *Reviewer
	bus      *events.Bus
}

// NewOrchestrator composes the three agents over a shared bus.
func NewOrchestrator(planner *Planner, agent *Agent, reviewer *Reviewer, bus *events.Bus) *Orchestrator {
	return &Orchestrator{planner: planner, agent: agent, reviewer: reviewer, bus: bus}
}

// Run drives one plan/execute/review cycle. Like Agent.Run it always
// returns a finalized timeline; failures surface inside it.
func (o *Orchestrator) Run(ctx context.Context, req RunRequest) *models.MultiAgentTimeline {
	logs := make([]models.AgentLog, 0, 3)
	knownTools := o.agent.registry.Names()

	o.publish(req.SessionID, events.AgentPlanning, map[string]any{"prompt": req.UserPrompt})
	plan := o.planner.Plan(ctx, req.UserPrompt, knownTools)
	o.publish(req.SessionID, events.AgentPlanReady, plan)
	logs = appendLog(logs, "planner", summarizePlan(plan))

	o.publish(req.SessionID, events.AgentExecuting, nil)
	req.Quiet = true
	timeline := o.agent.Run(ctx, req)
	logs = appendLog(logs, "executor", fmt.Sprintf("Executed %d tool call(s)", len(timeline.ToolCalls)))

	o.publish(req.SessionID, events.AgentReviewing, nil)
	review := o.reviewer.Review(ctx, req.UserPrompt, timeline)
	o.publish(req.SessionID, events.AgentReviewDone, review)
	logs = appendLog(logs, "reviewer", summarizeReview(review))

	o.publish(req.SessionID, events.AgentDone, map[string]any{
		"response": timeline.FinalResponse,
		"score":    review.Score,
	})

	return &models.MultiAgentTimeline{
		Timeline:  timeline,
		Plan:      plan,
		Review:    review,
		AgentLogs: logs,
	}
}

func appendLog(logs []models.AgentLog, agent, summary string) []models.AgentLog {
	return append(logs, models.AgentLog{
		Agent:     agent,
		Summary:   summary,
		Timestamp: time.Now(),
	})
}

func (o *Orchestrator) publish(sessionID, name string, data any) {
	if o.bus != nil {
		o.bus.Publish(sessionID, name, data)
	}
}
