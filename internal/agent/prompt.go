// Package agent implements the reasoning loop, the planner and reviewer
// sub-agents, and the orchestrator that sequences them.
package agent

import (
	"fmt"
	"runtime"
	"strings"
)

// PromptContext fills the environment slots of the operating prompt.
type PromptContext struct {
	WorkDir   string
	FSRoot    string
	DBHost    string
	DBName    string
	RedisAddr string
	SafeMode  bool
}

// SystemPrompt renders the operating prompt sent as the first message of
// every run: environment context, tool-use rules, and SQL rules.
func SystemPrompt(pc PromptContext) string {
	var b strings.Builder

	b.WriteString("You are an operations assistant with access to tools for databases, caches, files, git, and the web.\n")
	b.WriteString("Answer in the user's language. Be concise and factual; never invent tool results.\n\n")

	b.WriteString("Environment:\n")
	fmt.Fprintf(&b, "- Operating system: %s\n", runtime.GOOS)
	fmt.Fprintf(&b, "- Working directory: %s\n", pc.WorkDir)
	fmt.Fprintf(&b, "- Filesystem access is restricted to: %s\n", pc.FSRoot)
	fmt.Fprintf(&b, "- Database: postgres://%s/%s\n", pc.DBHost, pc.DBName)
	fmt.Fprintf(&b, "- Cache/queue: redis://%s\n", pc.RedisAddr)
	fmt.Fprintf(&b, "- Production safe mode: %t\n\n", pc.SafeMode)

	b.WriteString("Tool rules:\n")
	b.WriteString("- Call one tool at a time when a later call depends on an earlier result. Never paste the output of one tool as a literal argument of another tool in the same turn; wait for the result, then issue the next call.\n")
	b.WriteString("- When no tool is needed, answer directly.\n\n")

	b.WriteString("SQL rules:\n")
	b.WriteString("- Use $1, $2 placeholders with the params array for every value. Never interpolate values or template literals like {name} into the SQL text.\n")
	b.WriteString("- Prefer db_query for reads; db_execute only for writes you were asked to perform.\n")

	return b.String()
}
