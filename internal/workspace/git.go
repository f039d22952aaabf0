// internal/workspace/git.go
package workspace

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-git/go-git/v5"
)

// FileStatus is the state of one file in the repository.
type FileStatus struct {
	Path   string
	Status string
}

// GitState is a point-in-time view of the workspace repository. A directory
// that is not a repository yields a zero-value state with Present=false.
type GitState struct {
	Present   bool
	Branch    string
	Clean     bool
	Modified  []FileStatus
	Staged    []FileStatus
	Untracked []FileStatus
}

// IsRepo reports whether the workspace root is a git repository.
func (s *GitState) IsRepo() bool { return s != nil && s.Present }

// Dirty reports uncommitted work: modified, staged, or untracked files.
func (s *GitState) Dirty() bool { return s.IsRepo() && !s.Clean }

// GitState inspects the repository at the workspace root. Status failures on
// an open repository are real errors; a missing repository is not.
func (i *Inspector) GitState() (*GitState, error) {
	repo, err := git.PlainOpen(i.root)
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return &GitState{}, nil
		}
		return nil, fmt.Errorf("open git repository: %w", err)
	}

	state := &GitState{Present: true}

	if head, err := repo.Head(); err == nil {
		state.Branch = head.Name().Short()
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("get worktree: %w", err)
	}
	status, err := worktree.Status()
	if err != nil {
		return nil, fmt.Errorf("get status: %w", err)
	}

	state.Clean = status.IsClean()
	for path, fileStatus := range status {
		fs := FileStatus{Path: path}

		if fileStatus.Staging != git.Unmodified && fileStatus.Staging != git.Untracked {
			fs.Status = mapStatusCode(fileStatus.Staging)
			state.Staged = append(state.Staged, fs)
		}

		if fileStatus.Worktree == git.Untracked {
			fs.Status = "untracked"
			state.Untracked = append(state.Untracked, fs)
		} else if fileStatus.Worktree != git.Unmodified {
			fs.Status = mapStatusCode(fileStatus.Worktree)
			state.Modified = append(state.Modified, fs)
		}
	}

	i.logger.Debug("inspected git state",
		slog.String("branch", state.Branch),
		slog.Bool("clean", state.Clean),
	)

	return state, nil
}

func mapStatusCode(code git.StatusCode) string {
	switch code {
	case git.Unmodified:
		return "unmodified"
	case git.Untracked:
		return "untracked"
	case git.Modified:
		return "modified"
	case git.Added:
		return "added"
	case git.Deleted:
		return "deleted"
	case git.Renamed:
		return "renamed"
	case git.Copied:
		return "copied"
	case git.UpdatedButUnmerged:
		return "updated-but-unmerged"
	default:
		return "unknown"
	}
}
