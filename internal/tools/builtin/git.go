package builtin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/stagehand-ai/stagehand/internal/tools"
	"github.com/stagehand-ai/stagehand/pkg/models"
)

// GitTools returns read-only git tools. The repo_path argument falls
// back to fallbackDir when missing or not a usable repository.
func GitTools(fallbackDir string) []tools.Tool {
	repoPathSchema := json.RawMessage(`{
		"type": "object",
		"properties": {
			"repo_path": {"type": "string", "description": "Repository path, defaults to the working directory"},
			"limit": {"type": "integer", "minimum": 1, "maximum": 100}
		}
	}`)

	return []tools.Tool{
		tools.New(tools.Spec{
			Name:              "git_status",
			Description:       "Show the working-tree status of a git repository.",
			InputSchema:       repoPathSchema,
			RequiredRoles:     tools.RolesAtLeast(models.RoleDev),
			SafeForProduction: true,
		}, func(ctx context.Context, args map[string]any) (any, error) {
			repo := resolveRepoPath(args, fallbackDir)
			out, err := runGit(ctx, repo, "status", "--porcelain=v1", "--branch")
			if err != nil {
				return nil, err
			}
			return map[string]any{"repo_path": repo, "status": out}, nil
		}),

		tools.New(tools.Spec{
			Name:              "git_log",
			Description:       "Show recent commits of a git repository (hash, author, date, subject).",
			InputSchema:       repoPathSchema,
			RequiredRoles:     tools.RolesAtLeast(models.RoleDev),
			SafeForProduction: true,
		}, func(ctx context.Context, args map[string]any) (any, error) {
			repo := resolveRepoPath(args, fallbackDir)
			limit := optIntArg(args, "limit", 10)
			out, err := runGit(ctx, repo, "log", fmt.Sprintf("-%d", limit), "--pretty=format:%h|%an|%ad|%s", "--date=short")
			if err != nil {
				return nil, err
			}
			var commits []map[string]string
			for _, line := range strings.Split(out, "\n") {
				parts := strings.SplitN(line, "|", 4)
				if len(parts) != 4 {
					continue
				}
				commits = append(commits, map[string]string{
					"hash": parts[0], "author": parts[1], "date": parts[2], "subject": parts[3],
				})
			}
			return map[string]any{"repo_path": repo, "commits": commits}, nil
		}),

		tools.New(tools.Spec{
			Name:              "git_diff",
			Description:       "Show uncommitted changes in a git repository.",
			InputSchema:       repoPathSchema,
			RequiredRoles:     tools.RolesAtLeast(models.RoleDev),
			SafeForProduction: true,
		}, func(ctx context.Context, args map[string]any) (any, error) {
			repo := resolveRepoPath(args, fallbackDir)
			out, err := runGit(ctx, repo, "diff", "--stat", "HEAD")
			if err != nil {
				return nil, err
			}
			return map[string]any{"repo_path": repo, "diff": out}, nil
		}),
	}
}

// resolveRepoPath returns the repo_path argument when it points at a
// git repository, otherwise the fallback directory.
func resolveRepoPath(args map[string]any, fallback string) string {
	raw, _ := args["repo_path"].(string)
	if raw == "" {
		return fallback
	}
	info, err := os.Stat(raw)
	if err != nil || !info.IsDir() {
		return fallback
	}
	if _, err := os.Stat(filepath.Join(raw, ".git")); err != nil {
		return fallback
	}
	return raw
}

func runGit(ctx context.Context, repo string, gitArgs ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", repo}, gitArgs...)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("git %s: %s", gitArgs[0], msg)
	}
	return strings.TrimSpace(stdout.String()), nil
}
