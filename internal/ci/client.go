package ci

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
)

// CmdRunner provides gh command execution. Interface for testing.
type CmdRunner interface {
	Run(ctx context.Context, args ...string) (string, error)
}

// GitRunner provides git command execution. Interface for testing.
type GitRunner interface {
	RunGit(ctx context.Context, dir string, args ...string) (string, error)
}

// ExecRunner runs gh and git commands via exec.
type ExecRunner struct{}

func (r *ExecRunner) Run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "gh", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return strings.TrimSpace(string(out)), fmt.Errorf("gh %s: %s: %w", strings.Join(args, " "), strings.TrimSpace(string(out)), err)
	}
	return strings.TrimSpace(string(out)), nil
}

// RunGit implements GitRunner using exec.CommandContext.
func (r *ExecRunner) RunGit(ctx context.Context, dir string, args ...string) (string, error) {
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

// Client provides the CI/version-control host operations the pipeline
// consumes: run and job discovery, log and diff fetch, comments, and fix
// pull requests. All code changes go through new PRs; the only mutation of
// an originating PR is adding comments.
type Client struct {
	cmd CmdRunner
	git GitRunner
}

// NewClient creates a host client. If cmd also implements GitRunner, it
// will be used for git operations (e.g., PushBranch).
func NewClient(cmd CmdRunner) *Client {
	c := &Client{cmd: cmd}
	if git, ok := cmd.(GitRunner); ok {
		c.git = git
	}
	return c
}

// NewClientWithGit creates a host client with a separate git runner.
func NewClientWithGit(cmd CmdRunner, git GitRunner) *Client {
	return &Client{cmd: cmd, git: git}
}

// PullRequest represents an open pull request head.
type PullRequest struct {
	Number      int    `json:"number"`
	Title       string `json:"title"`
	HeadRefName string `json:"headRefName"`
	HeadSHA     string `json:"headRefOid"`
}

// WorkflowRun represents a CI workflow run.
type WorkflowRun struct {
	ID           int64  `json:"databaseId"`
	WorkflowName string `json:"workflowName"`
	HeadSHA      string `json:"headSha"`
	Conclusion   string `json:"conclusion"`
}

// Job represents a single job within a workflow run.
type Job struct {
	ID         int64  `json:"databaseId"`
	Name       string `json:"name"`
	Conclusion string `json:"conclusion"`
}

// ListOpenPRs returns the open pull requests with their head commits.
func (c *Client) ListOpenPRs(ctx context.Context) ([]PullRequest, error) {
	out, err := c.cmd.Run(ctx, "pr", "list", "--state", "open", "--json", "number,title,headRefName,headRefOid")
	if err != nil {
		return nil, fmt.Errorf("list open PRs: %w", err)
	}
	var prs []PullRequest
	if err := json.Unmarshal([]byte(out), &prs); err != nil {
		return nil, fmt.Errorf("parse PR list JSON: %w", err)
	}
	return prs, nil
}

// ListFailedRuns returns the failed workflow runs for a commit.
func (c *Client) ListFailedRuns(ctx context.Context, sha string) ([]WorkflowRun, error) {
	if sha == "" {
		return nil, fmt.Errorf("missing commit sha")
	}
	out, err := c.cmd.Run(ctx, "run", "list", "--commit", sha, "--status", "failure",
		"--json", "databaseId,workflowName,headSha,conclusion")
	if err != nil {
		return nil, fmt.Errorf("list failed runs for %s: %w", sha, err)
	}
	var runs []WorkflowRun
	if err := json.Unmarshal([]byte(out), &runs); err != nil {
		return nil, fmt.Errorf("parse run list JSON: %w", err)
	}
	return runs, nil
}

// FailedJobs returns the jobs of a run that concluded with failure.
func (c *Client) FailedJobs(ctx context.Context, runID int64) ([]Job, error) {
	out, err := c.cmd.Run(ctx, "run", "view", fmt.Sprintf("%d", runID), "--json", "jobs")
	if err != nil {
		return nil, fmt.Errorf("view run %d: %w", runID, err)
	}
	var view struct {
		Jobs []Job `json:"jobs"`
	}
	if err := json.Unmarshal([]byte(out), &view); err != nil {
		return nil, fmt.Errorf("parse run view JSON: %w", err)
	}
	var failed []Job
	for _, j := range view.Jobs {
		if j.Conclusion == "failure" {
			failed = append(failed, j)
		}
	}
	return failed, nil
}

// FailedRunLog fetches the log of the failed steps of a run.
func (c *Client) FailedRunLog(ctx context.Context, runID int64) (string, error) {
	out, err := c.cmd.Run(ctx, "run", "view", fmt.Sprintf("%d", runID), "--log-failed")
	if err != nil {
		return "", fmt.Errorf("fetch log for run %d: %w", runID, err)
	}
	return out, nil
}

// Diff fetches the diff of a pull request against its merge base.
func (c *Client) Diff(ctx context.Context, pr int) (string, error) {
	if pr <= 0 {
		return "", fmt.Errorf("invalid PR number %d: must be positive", pr)
	}
	out, err := c.cmd.Run(ctx, "pr", "diff", fmt.Sprintf("%d", pr))
	if err != nil {
		return "", fmt.Errorf("fetch diff for PR %d: %w", pr, err)
	}
	return out, nil
}

// PostComment posts a comment on a pull request and returns the comment URL.
func (c *Client) PostComment(ctx context.Context, pr int, body string) (string, error) {
	if pr <= 0 {
		return "", fmt.Errorf("invalid PR number %d: must be positive", pr)
	}
	out, err := c.cmd.Run(ctx, "pr", "comment", fmt.Sprintf("%d", pr), "--body", body)
	if err != nil {
		return "", fmt.Errorf("comment on PR %d: %w", pr, err)
	}
	return out, nil
}

// PRCreateOpts holds options for creating a PR.
type PRCreateOpts struct {
	Title  string
	Body   string
	Branch string
	Base   string
}

// PRCreateResult holds the result of creating a PR.
type PRCreateResult struct {
	URL string
}

// CreatePR creates a pull request.
func (c *Client) CreatePR(ctx context.Context, opts PRCreateOpts) (*PRCreateResult, error) {
	args := []string{"pr", "create", "--title", opts.Title, "--body", opts.Body, "--head", opts.Branch}
	if opts.Base != "" {
		args = append(args, "--base", opts.Base)
	}

	out, err := c.cmd.Run(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("create PR: %w", err)
	}
	return &PRCreateResult{URL: out}, nil
}

// FindPRByBranch checks if a PR already exists for a given branch.
// Returns the PR result if found, nil if none exist.
func (c *Client) FindPRByBranch(ctx context.Context, branch string) (*PRCreateResult, error) {
	out, err := c.cmd.Run(ctx, "pr", "list", "--head", branch, "--json", "url", "--limit", "1")
	if err != nil {
		return nil, fmt.Errorf("find PR by branch: %w", err)
	}

	var prs []struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal([]byte(out), &prs); err != nil {
		return nil, fmt.Errorf("parse PR list JSON: %w", err)
	}
	if len(prs) == 0 {
		return nil, nil
	}
	return &PRCreateResult{URL: prs[0].URL}, nil
}

// PushBranch pushes a branch to the remote.
func (c *Client) PushBranch(ctx context.Context, dir string, branch string) error {
	if c.git == nil {
		return fmt.Errorf("git runner not configured")
	}
	if strings.HasPrefix(branch, "-") {
		return fmt.Errorf("invalid branch name %q: must not start with -", branch)
	}
	_, err := c.git.RunGit(ctx, dir, "push", "-u", "origin", branch)
	if err != nil {
		return fmt.Errorf("push branch: %w", err)
	}
	return nil
}

// RepoMeta holds repository identity metadata.
type RepoMeta struct {
	Owner         string
	Name          string
	DefaultBranch string
}

// RepoInfo fetches the repository owner, name, and default branch.
func (c *Client) RepoInfo(ctx context.Context) (*RepoMeta, error) {
	out, err := c.cmd.Run(ctx, "repo", "view", "--json", "owner,name,defaultBranchRef")
	if err != nil {
		return nil, fmt.Errorf("view repo: %w", err)
	}
	var view struct {
		Owner struct {
			Login string `json:"login"`
		} `json:"owner"`
		Name             string `json:"name"`
		DefaultBranchRef struct {
			Name string `json:"name"`
		} `json:"defaultBranchRef"`
	}
	if err := json.Unmarshal([]byte(out), &view); err != nil {
		return nil, fmt.Errorf("parse repo view JSON: %w", err)
	}
	return &RepoMeta{Owner: view.Owner.Login, Name: view.Name, DefaultBranch: view.DefaultBranchRef.Name}, nil
}
