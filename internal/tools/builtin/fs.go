package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/stagehand-ai/stagehand/internal/tools"
	"github.com/stagehand-ai/stagehand/pkg/models"
)

// maxFileReadBytes caps file content returned to the model.
const maxFileReadBytes = 256 * 1024

// FSTools returns the filesystem tool family rooted at root. Every path
// argument is resolved inside root; escapes are rejected.
func FSTools(root string) []tools.Tool {
	return []tools.Tool{
		tools.New(tools.Spec{
			Name:        "fs_read",
			Description: "Read a text file under the allowed filesystem root.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {"path": {"type": "string", "description": "Path relative to the allowed root"}},
				"required": ["path"]
			}`),
			RequiredRoles:     tools.RolesAtLeast(models.RoleReadonly),
			SafeForProduction: true,
		}, func(ctx context.Context, args map[string]any) (any, error) {
			path, err := resolvePath(root, args)
			if err != nil {
				return nil, err
			}
			info, err := os.Stat(path)
			if err != nil {
				return nil, err
			}
			if info.Size() > maxFileReadBytes {
				return nil, fmt.Errorf("file too large: %d bytes (limit %d)", info.Size(), maxFileReadBytes)
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, err
			}
			return map[string]any{"path": path, "content": string(data), "size": info.Size()}, nil
		}),

		tools.New(tools.Spec{
			Name:        "fs_list",
			Description: "List directory entries under the allowed filesystem root.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {"path": {"type": "string", "description": "Directory path, defaults to the root"}}
			}`),
			RequiredRoles:     tools.RolesAtLeast(models.RoleReadonly),
			SafeForProduction: true,
		}, func(ctx context.Context, args map[string]any) (any, error) {
			if _, ok := args["path"]; !ok {
				args = map[string]any{"path": "."}
			}
			path, err := resolvePath(root, args)
			if err != nil {
				return nil, err
			}
			entries, err := os.ReadDir(path)
			if err != nil {
				return nil, err
			}
			out := make([]map[string]any, 0, len(entries))
			for _, e := range entries {
				item := map[string]any{"name": e.Name(), "dir": e.IsDir()}
				if info, err := e.Info(); err == nil && !e.IsDir() {
					item["size"] = info.Size()
				}
				out = append(out, item)
			}
			return map[string]any{"path": path, "entries": out}, nil
		}),

		tools.New(tools.Spec{
			Name:        "fs_write",
			Description: "Write a text file under the allowed filesystem root, creating parent directories as needed.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"path": {"type": "string"},
					"content": {"type": "string"}
				},
				"required": ["path", "content"]
			}`),
			RequiredRoles:     tools.RolesAtLeast(models.RoleOperator),
			SafeForProduction: false,
		}, func(ctx context.Context, args map[string]any) (any, error) {
			path, err := resolvePath(root, args)
			if err != nil {
				return nil, err
			}
			content, err := stringArg(args, "content")
			if err != nil {
				return nil, err
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return nil, err
			}
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				return nil, err
			}
			return map[string]any{"path": path, "bytes_written": len(content)}, nil
		}),

		tools.New(tools.Spec{
			Name:        "fs_delete",
			Description: "Delete a single file under the allowed filesystem root. Directories are refused.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {"path": {"type": "string"}},
				"required": ["path"]
			}`),
			RequiredRoles:     tools.RolesAtLeast(models.RoleOperator),
			SafeForProduction: false,
		}, func(ctx context.Context, args map[string]any) (any, error) {
			path, err := resolvePath(root, args)
			if err != nil {
				return nil, err
			}
			info, err := os.Stat(path)
			if err != nil {
				return nil, err
			}
			if info.IsDir() {
				return nil, fmt.Errorf("refusing to delete directory: %s", path)
			}
			if err := os.Remove(path); err != nil {
				return nil, err
			}
			return map[string]any{"path": path, "deleted": true}, nil
		}),
	}
}

// resolvePath joins the path argument onto root and verifies the result
// stays inside it.
func resolvePath(root string, args map[string]any) (string, error) {
	raw, err := stringArg(args, "path")
	if err != nil {
		return "", err
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}

	candidate := raw
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(absRoot, candidate)
	}
	candidate = filepath.Clean(candidate)

	rel, err := filepath.Rel(absRoot, candidate)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes allowed root: %s", raw)
	}
	return candidate, nil
}
