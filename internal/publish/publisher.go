package publish

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/lucasnoah/fixloop/internal/ci"
	"github.com/lucasnoah/fixloop/internal/remedy"
	"github.com/lucasnoah/fixloop/internal/validate"
)

// HostClient is the subset of the CI host client the publisher needs.
type HostClient interface {
	PostComment(ctx context.Context, pr int, body string) (string, error)
	CreatePR(ctx context.Context, opts ci.PRCreateOpts) (*ci.PRCreateResult, error)
	FindPRByBranch(ctx context.Context, branch string) (*ci.PRCreateResult, error)
	PushBranch(ctx context.Context, dir string, branch string) error
}

// Workspace is a disposable repository copy used to materialize the fix
// branch.
type Workspace interface {
	Dir() string
	Apply(ctx context.Context, patchFile string) (string, error)
	Commit(ctx context.Context, message string) error
	Branch(ctx context.Context, name string) error
	Release(ctx context.Context) error
}

// Workspaces acquires workspaces.
type Workspaces interface {
	Acquire(ctx context.Context, key string, commit string) (Workspace, error)
}

// managerWorkspaces adapts *validate.Manager to the Workspaces interface.
type managerWorkspaces struct {
	m *validate.Manager
}

func (a managerWorkspaces) Acquire(ctx context.Context, key string, commit string) (Workspace, error) {
	ws, err := a.m.Acquire(ctx, key, commit)
	if err != nil {
		return nil, err
	}
	return ws, nil
}

// NewWorkspaces wraps a validate.Manager for publisher use.
func NewWorkspaces(m *validate.Manager) Workspaces {
	return managerWorkspaces{m: m}
}

// Publisher surfaces the diagnosis and the validated fix back to the
// originating change. The diagnosis narrative is always posted as a
// comment; a fix PR is opened if and only if validation passed.
type Publisher struct {
	host         HostClient
	workspaces   Workspaces
	branchPrefix string
	base         string // base branch for fix PRs
}

// DefaultBranchPrefix prefixes fix branches.
const DefaultBranchPrefix = "fixloop/"

// NewPublisher creates a Publisher. base is the branch fix PRs target
// (usually the repository default branch).
func NewPublisher(host HostClient, workspaces Workspaces, branchPrefix string, base string) *Publisher {
	if branchPrefix == "" {
		branchPrefix = DefaultBranchPrefix
	}
	return &Publisher{host: host, workspaces: workspaces, branchPrefix: branchPrefix, base: base}
}

// Publish runs the publish sequence for a record: diagnosis comment, then
// (when validation passed) fix branch, fix PR, and follow-up comment.
//
// Publishing is idempotent per record: each completed side effect stamps a
// URL onto the record and is persisted via save before the next one, so a
// crash-and-resume skips everything already done. A record already in
// phase published is never re-published.
func (p *Publisher) Publish(ctx context.Context, rec *remedy.Record, save func(*remedy.Record) error) error {
	if rec.Phase == remedy.PhasePublished {
		return nil
	}
	if err := p.PublishDiagnosis(ctx, rec, save); err != nil {
		return err
	}
	if !rec.ValidationPassed || rec.Patch == "" {
		return nil
	}

	// A branch stamped before this call means a prior attempt got at least
	// that far; it may also have opened the PR without living to record it.
	resumedBranch := rec.FixBranch != ""

	if rec.FixBranch == "" {
		branch, err := p.materializeFixBranch(ctx, rec)
		if err != nil {
			return err
		}
		rec.FixBranch = branch
		if err := save(rec); err != nil {
			return err
		}
	}

	if rec.FixPRURL == "" && resumedBranch {
		existing, err := p.host.FindPRByBranch(ctx, rec.FixBranch)
		if err != nil {
			return remedy.FailErr(remedy.KindPublishError, err, "look up fix PR for %s", rec.FixBranch)
		}
		if existing != nil {
			rec.FixPRURL = existing.URL
			if err := save(rec); err != nil {
				return err
			}
		}
	}

	if rec.FixPRURL == "" {
		result, err := p.host.CreatePR(ctx, ci.PRCreateOpts{
			Title:  fmt.Sprintf("fix: automated remediation for #%d (%s)", rec.PR, rec.Job),
			Body:   fixPRBody(rec),
			Branch: rec.FixBranch,
			Base:   p.base,
		})
		if err != nil {
			return remedy.FailErr(remedy.KindPublishError, err, "open fix PR")
		}
		rec.FixPRURL = result.URL
		if err := save(rec); err != nil {
			return err
		}
	}

	if rec.FixCommentURL == "" {
		url, err := p.host.PostComment(ctx, rec.PR, followUpComment(rec))
		if err != nil {
			return remedy.FailErr(remedy.KindPublishError, err, "post follow-up comment")
		}
		rec.FixCommentURL = url
		if err := save(rec); err != nil {
			return err
		}
	}

	return nil
}

// PublishDiagnosis posts only the narrative comment. The coordinator also
// calls this best-effort when an event fails after diagnosis, so the
// analysis is not withheld by a downstream failure.
func (p *Publisher) PublishDiagnosis(ctx context.Context, rec *remedy.Record, save func(*remedy.Record) error) error {
	if rec.Narrative == "" {
		return fmt.Errorf("record %s has no narrative to publish", rec.Key)
	}
	if rec.CommentURL != "" {
		return nil
	}
	url, err := p.host.PostComment(ctx, rec.PR, diagnosisComment(rec))
	if err != nil {
		return remedy.FailErr(remedy.KindPublishError, err, "post diagnosis comment")
	}
	rec.CommentURL = url
	return save(rec)
}

// materializeFixBranch applies the validated patch in a fresh workspace,
// commits it, and pushes a branch. Validation already ran in its own
// workspace; the published branch is built from a clean copy, never from
// the validation workspace.
func (p *Publisher) materializeFixBranch(ctx context.Context, rec *remedy.Record) (string, error) {
	ws, err := p.workspaces.Acquire(ctx, rec.Key, rec.Commit)
	if err != nil {
		return "", remedy.FailErr(remedy.KindPublishError, err, "acquire publish workspace")
	}
	defer func() {
		releaseCtx, releaseCancel := context.WithTimeout(context.Background(), time.Minute)
		defer releaseCancel()
		_ = ws.Release(releaseCtx)
	}()

	patchFile, err := validate.WritePatchFile(rec.Patch)
	if err != nil {
		return "", err
	}
	defer os.Remove(patchFile)

	if out, err := ws.Apply(ctx, patchFile); err != nil {
		return "", remedy.FailErr(remedy.KindPublishError, err, "apply validated patch: %s", out)
	}
	if err := ws.Commit(ctx, fmt.Sprintf("Fix CI failure on #%d: %s", rec.PR, rec.Job)); err != nil {
		return "", remedy.FailErr(remedy.KindPublishError, err, "commit fix")
	}

	branch := p.branchPrefix + rec.Key
	if err := ws.Branch(ctx, branch); err != nil {
		return "", remedy.FailErr(remedy.KindPublishError, err, "create fix branch")
	}
	if err := p.host.PushBranch(ctx, ws.Dir(), branch); err != nil {
		return "", remedy.FailErr(remedy.KindPublishError, err, "push fix branch")
	}
	return branch, nil
}

// diagnosisComment renders the narrative comment posted on the
// originating PR.
func diagnosisComment(rec *remedy.Record) string {
	var b strings.Builder
	b.WriteString("## Automated CI diagnosis\n\n")
	b.WriteString(rec.Narrative)
	b.WriteString("\n\n")
	if rec.FailureKind == remedy.KindChecksStillFailing {
		b.WriteString("A candidate patch was produced but did not make the failing checks pass, so no fix PR was opened.\n\n")
	}
	b.WriteString(fmt.Sprintf("---\n_Analysis of job `%s` on commit `%s` (run %d, record `%s`)._\n",
		rec.Job, rec.Commit, rec.RunID, rec.Key))
	return b.String()
}

// followUpComment renders the comment linking the fix PR.
func followUpComment(rec *remedy.Record) string {
	return fmt.Sprintf("Opened %s with a validated fix for the `%s` failure on commit `%s`.",
		rec.FixPRURL, rec.Job, rec.Commit)
}

// fixPRBody renders the body of the fix PR.
func fixPRBody(rec *remedy.Record) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Automated fix for the failing `%s` job on #%d (commit `%s`).\n\n", rec.Job, rec.PR, rec.Commit))
	b.WriteString("The patch was validated by re-applying it at the triggering commit in an isolated workspace and re-running the failing checks, which now pass.\n\n")
	b.WriteString(fmt.Sprintf("Remediation record: `%s`\n", rec.Key))
	return b.String()
}
