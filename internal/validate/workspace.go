package validate

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// ErrStaleCommit reports that the triggering commit no longer exists in the
// repository — the diagnosis is stale and its patch has nothing to apply to.
var ErrStaleCommit = errors.New("stale commit")

// GitRunner provides git commands. Interface for testing.
type GitRunner interface {
	Run(ctx context.Context, dir string, args ...string) (string, error)
}

// ExecGit implements GitRunner using exec.CommandContext.
type ExecGit struct{}

func (g *ExecGit) Run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		return strings.TrimSpace(string(out)), fmt.Errorf("git %s: %s: %w", strings.Join(args, " "), strings.TrimSpace(string(out)), err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Manager materializes isolated detached worktrees of the target
// repository. Each pipeline run gets its own workspace, never shared, and
// releases it on every exit path.
type Manager struct {
	git     GitRunner
	repoDir string // git repo root
	baseDir string // where workspaces are created
}

// NewManager creates a workspace manager.
func NewManager(git GitRunner, repoDir string, baseDir string) *Manager {
	return &Manager{git: git, repoDir: repoDir, baseDir: baseDir}
}

var shaRe = regexp.MustCompile(`^[0-9a-fA-F]{7,40}$`)

// Acquire creates a detached worktree at the given commit. The workspace
// directory name carries a random suffix so concurrent runs for the same
// key never collide. Returns ErrStaleCommit when the commit is unknown even
// after fetching.
func (m *Manager) Acquire(ctx context.Context, key string, commit string) (*Workspace, error) {
	if !shaRe.MatchString(commit) {
		return nil, fmt.Errorf("invalid commit %q", commit)
	}

	// Best-effort fetch so recently pushed commits resolve.
	m.git.Run(ctx, m.repoDir, "fetch", "origin")

	if _, err := m.git.Run(ctx, m.repoDir, "cat-file", "-e", commit+"^{commit}"); err != nil {
		return nil, fmt.Errorf("commit %s not found: %w", commit, ErrStaleCommit)
	}

	path := filepath.Join(m.baseDir, fmt.Sprintf("%s-%s", key, uuid.New().String()[:8]))
	if _, err := m.git.Run(ctx, m.repoDir, "worktree", "add", "--detach", path, commit); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}

	return &Workspace{Path: path, mgr: m}, nil
}

// Workspace is one disposable materialized copy of the repository.
type Workspace struct {
	Path string
	mgr  *Manager
}

// Dir returns the workspace directory.
func (w *Workspace) Dir() string {
	return w.Path
}

// ApplyCheck verifies the patch at patchFile would apply cleanly.
func (w *Workspace) ApplyCheck(ctx context.Context, patchFile string) (string, error) {
	return w.mgr.git.Run(ctx, w.Path, "apply", "--check", patchFile)
}

// Apply applies the patch at patchFile to the workspace.
func (w *Workspace) Apply(ctx context.Context, patchFile string) (string, error) {
	return w.mgr.git.Run(ctx, w.Path, "apply", patchFile)
}

// Commit stages everything and commits with the given message.
func (w *Workspace) Commit(ctx context.Context, message string) error {
	if _, err := w.mgr.git.Run(ctx, w.Path, "add", "-A"); err != nil {
		return fmt.Errorf("stage changes: %w", err)
	}
	if _, err := w.mgr.git.Run(ctx, w.Path, "commit", "-m", message); err != nil {
		return fmt.Errorf("commit changes: %w", err)
	}
	return nil
}

// Branch creates a branch at the workspace HEAD.
func (w *Workspace) Branch(ctx context.Context, name string) error {
	if strings.HasPrefix(name, "-") {
		return fmt.Errorf("invalid branch name %q: must not start with -", name)
	}
	if _, err := w.mgr.git.Run(ctx, w.Path, "checkout", "-b", name); err != nil {
		return fmt.Errorf("create branch %q: %w", name, err)
	}
	return nil
}

// Release removes the worktree. Safe to call after the run's context is
// cancelled; callers pass a fresh context so cleanup still happens on
// timeout paths.
func (w *Workspace) Release(ctx context.Context) error {
	if _, err := w.mgr.git.Run(ctx, w.mgr.repoDir, "worktree", "remove", "--force", w.Path); err != nil {
		return fmt.Errorf("remove workspace: %w", err)
	}
	return nil
}
