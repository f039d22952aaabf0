// internal/workspace/workspace.go
package workspace

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Directories never worth snapshotting or scanning.
var ignoredDirs = map[string]bool{
	".git":         true,
	".snapsafe":    true,
	"node_modules": true,
	"__pycache__":  true,
	".venv":        true,
	"venv":         true,
	"dist":         true,
	"build":        true,
	".idea":        true,
	".vscode":      true,
}

// Inspector answers questions about one workspace root: which files exist,
// which are worth tracking, and what state version control is in.
type Inspector struct {
	root   string
	logger *slog.Logger
}

// New creates an inspector for the given root.
func New(root string, logger *slog.Logger) *Inspector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Inspector{root: root, logger: logger}
}

// Root returns the workspace root.
func (i *Inspector) Root() string { return i.root }

// FilterExisting resolves paths against the root and keeps only those that
// exist as regular files. The transaction checkpoint only wants files that
// are actually on disk right now.
func (i *Inspector) FilterExisting(paths []string) []string {
	var out []string
	for _, p := range paths {
		resolved := p
		if !filepath.IsAbs(resolved) {
			resolved = filepath.Join(i.root, resolved)
		}
		info, err := os.Stat(resolved)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		out = append(out, resolved)
	}
	return out
}

// ListFiles walks the root and returns every regular file outside ignored
// directories, sorted. Used by whole-workspace checkpoints.
func (i *Inspector) ListFiles() ([]string, error) {
	var files []string
	err := filepath.WalkDir(i.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}
		if d.IsDir() {
			if path != i.root && (ignoredDirs[d.Name()] || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}
