package validate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

type gitCall struct {
	Dir  string
	Args []string
}

type mockGit struct {
	calls   []gitCall
	results []mockGitResult
	idx     int
}

type mockGitResult struct {
	Output string
	Err    error
}

func (m *mockGit) Run(_ context.Context, dir string, args ...string) (string, error) {
	m.calls = append(m.calls, gitCall{Dir: dir, Args: args})
	if m.idx >= len(m.results) {
		return "", nil
	}
	r := m.results[m.idx]
	m.idx++
	return r.Output, r.Err
}

func (m *mockGit) argsOf(i int) string {
	return strings.Join(m.calls[i].Args, " ")
}

func TestAcquire_HappyPath(t *testing.T) {
	git := &mockGit{results: []mockGitResult{
		{}, // fetch origin
		{}, // cat-file
		{}, // worktree add
	}}
	m := NewManager(git, "/repo", "/repo/.fixloop-ws")

	ws, err := m.Acquire(context.Background(), "pr42-a1b2c3d4e5f6-test", "a1b2c3d4e5f6")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(ws.Path, "/repo/.fixloop-ws/pr42-a1b2c3d4e5f6-test-") {
		t.Errorf("unexpected workspace path %q", ws.Path)
	}

	if len(git.calls) != 3 {
		t.Fatalf("expected 3 git calls, got %d", len(git.calls))
	}
	if git.argsOf(0) != "fetch origin" {
		t.Errorf("first call should fetch, got %q", git.argsOf(0))
	}
	if git.argsOf(1) != "cat-file -e a1b2c3d4e5f6^{commit}" {
		t.Errorf("second call should check commit, got %q", git.argsOf(1))
	}
	if !strings.HasPrefix(git.argsOf(2), "worktree add --detach ") {
		t.Errorf("third call should add worktree, got %q", git.argsOf(2))
	}
	if !strings.HasSuffix(git.argsOf(2), " a1b2c3d4e5f6") {
		t.Errorf("worktree add should target the commit, got %q", git.argsOf(2))
	}
}

func TestAcquire_UniquePaths(t *testing.T) {
	git := &mockGit{}
	m := NewManager(git, "/repo", "/ws")

	a, err := m.Acquire(context.Background(), "key", "a1b2c3d4e5f6")
	if err != nil {
		t.Fatalf("acquire a: %v", err)
	}
	b, err := m.Acquire(context.Background(), "key", "a1b2c3d4e5f6")
	if err != nil {
		t.Fatalf("acquire b: %v", err)
	}
	if a.Path == b.Path {
		t.Errorf("concurrent workspaces for one key must not share a path: %q", a.Path)
	}
}

func TestAcquire_StaleCommit(t *testing.T) {
	git := &mockGit{results: []mockGitResult{
		{}, // fetch origin
		{Err: fmt.Errorf("fatal: not a valid object name")}, // cat-file
	}}
	m := NewManager(git, "/repo", "/ws")

	_, err := m.Acquire(context.Background(), "key", "a1b2c3d4e5f6")
	if !errors.Is(err, ErrStaleCommit) {
		t.Fatalf("expected ErrStaleCommit, got %v", err)
	}
}

func TestAcquire_InvalidCommit(t *testing.T) {
	m := NewManager(&mockGit{}, "/repo", "/ws")
	if _, err := m.Acquire(context.Background(), "key", "not-a-sha"); err == nil {
		t.Fatal("expected error for invalid commit")
	}
}

func TestRelease(t *testing.T) {
	git := &mockGit{}
	m := NewManager(git, "/repo", "/ws")
	ws, err := m.Acquire(context.Background(), "key", "a1b2c3d4e5f6")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	if err := ws.Release(context.Background()); err != nil {
		t.Fatalf("release: %v", err)
	}

	last := git.calls[len(git.calls)-1]
	if last.Dir != "/repo" {
		t.Errorf("release should run from repo root, got %q", last.Dir)
	}
	want := fmt.Sprintf("worktree remove --force %s", ws.Path)
	if strings.Join(last.Args, " ") != want {
		t.Errorf("expected %q, got %q", want, strings.Join(last.Args, " "))
	}
}

func TestBranch_RejectsFlagInjection(t *testing.T) {
	git := &mockGit{}
	m := NewManager(git, "/repo", "/ws")
	ws, _ := m.Acquire(context.Background(), "key", "a1b2c3d4e5f6")

	if err := ws.Branch(context.Background(), "--force"); err == nil {
		t.Fatal("expected error for branch starting with -")
	}
}
