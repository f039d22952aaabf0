// cmd/snapsafe/tools.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// workspaceTools is the builtin tool executor: it applies file and shell
// steps directly to the workspace. Paths are resolved against the root so a
// plan cannot silently write outside it with a relative path.
type workspaceTools struct {
	root string
}

func newWorkspaceTools(root string) *workspaceTools {
	return &workspaceTools{root: root}
}

func (w *workspaceTools) Execute(ctx context.Context, toolName string, args map[string]any) (string, error) {
	switch toolName {
	case "read_file":
		data, err := os.ReadFile(w.resolve(stringArg(args, "file_path")))
		if err != nil {
			return "", err
		}
		return string(data), nil

	case "write_file", "edit_file":
		path := w.resolve(stringArg(args, "file_path"))
		if path == w.root {
			return "", fmt.Errorf("missing file_path argument")
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return "", err
		}
		content := stringArg(args, "content")
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			return "", err
		}
		return fmt.Sprintf("Wrote %d bytes to %s", len(content), path), nil

	case "delete_file":
		path := w.resolve(stringArg(args, "file_path"))
		if path == w.root {
			return "", fmt.Errorf("missing file_path argument")
		}
		if err := os.Remove(path); err != nil {
			return "", err
		}
		return fmt.Sprintf("Deleted %s", path), nil

	case "create_directory":
		path := w.resolve(stringArg(args, "path"))
		if err := os.MkdirAll(path, 0755); err != nil {
			return "", err
		}
		return fmt.Sprintf("Created %s", path), nil

	case "bash":
		command := stringArg(args, "command")
		if command == "" {
			return "", fmt.Errorf("missing command argument")
		}
		cmd := exec.CommandContext(ctx, "sh", "-c", command)
		cmd.Dir = w.root
		out, err := cmd.CombinedOutput()
		if err != nil {
			return "", fmt.Errorf("%s: %w", strings.TrimSpace(string(out)), err)
		}
		return strings.TrimSpace(string(out)), nil

	default:
		return "", fmt.Errorf("unknown tool %q", toolName)
	}
}

func (w *workspaceTools) resolve(path string) string {
	if path == "" {
		return w.root
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(w.root, path)
}

func stringArg(args map[string]any, key string) string {
	value, _ := args[key].(string)
	return value
}
