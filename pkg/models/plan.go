package models

// PlanComplexity rates how involved a plan is expected to be.
type PlanComplexity string

const (
	ComplexitySimple  PlanComplexity = "simple"
	ComplexityMedium  PlanComplexity = "medium"
	ComplexityComplex PlanComplexity = "complex"
)

// StepStatus tracks a plan step through execution.
type StepStatus string

const (
	StepPending StepStatus = "pending"
	StepRunning StepStatus = "running"
	StepDone    StepStatus = "done"
	StepSkipped StepStatus = "skipped"
)

// PlanStep is one ordered step of an execution plan.
type PlanStep struct {
	StepNo      int        `json:"step_no"`
	Description string     `json:"description"`
	ToolHint    string     `json:"tool_hint,omitempty"`
	Status      StepStatus `json:"status"`
}

// Plan is the planner's structured output for a user prompt.
type Plan struct {
	Goal           string         `json:"goal"`
	Complexity     PlanComplexity `json:"complexity"`
	EstimatedTools []string       `json:"estimated_tools"`
	Steps          []PlanStep     `json:"steps"`
}

// Review is the reviewer's structured rating of an execution.
type Review struct {
	Passed      bool     `json:"passed"`
	Score       int      `json:"score"`
	Feedback    string   `json:"feedback"`
	Issues      []string `json:"issues"`
	Suggestions []string `json:"suggestions"`
}
