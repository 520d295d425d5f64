package collect

import (
	"context"

	"github.com/lucasnoah/fixloop/internal/remedy"
)

// HostClient is the subset of the CI host client the collector needs.
type HostClient interface {
	FailedRunLog(ctx context.Context, runID int64) (string, error)
	Diff(ctx context.Context, pr int) (string, error)
}

// Collector assembles the bounded diagnostic context for a remediation
// event: the failing run's log tail plus the full PR diff.
type Collector struct {
	host      HostClient
	owner     string
	repo      string
	maxBytes  int
	tailLines int
}

// DefaultMaxContextBytes bounds the combined size of log tail and diff.
const DefaultMaxContextBytes = 96 * 1024

// DefaultLogTailLines is how many trailing log lines are preserved.
const DefaultLogTailLines = 400

// NewCollector creates a Collector for the given repository.
func NewCollector(host HostClient, owner, repo string, maxBytes, tailLines int) *Collector {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxContextBytes
	}
	if tailLines <= 0 {
		tailLines = DefaultLogTailLines
	}
	return &Collector{host: host, owner: owner, repo: repo, maxBytes: maxBytes, tailLines: tailLines}
}

// Collect fetches the failing job's log and the PR diff and bounds them to
// the configured ceiling. Logs are tail-truncated; diffs never are — a diff
// that alone exceeds the ceiling is a terminal too-large failure, since a
// partial diff would silently degrade the diagnosis.
func (c *Collector) Collect(ctx context.Context, ev remedy.Event) (*remedy.DiagnosticContext, error) {
	log, err := c.host.FailedRunLog(ctx, ev.RunID)
	if err != nil {
		return nil, remedy.FailErr(remedy.KindFetchError, err, "fetch log for run %d", ev.RunID)
	}

	diff, err := c.host.Diff(ctx, ev.PR)
	if err != nil {
		return nil, remedy.FailErr(remedy.KindFetchError, err, "fetch diff for PR %d", ev.PR)
	}

	if len(diff) > c.maxBytes {
		return nil, remedy.Failf(remedy.KindTooLarge,
			"context-too-large: diff is %d bytes, ceiling is %d", len(diff), c.maxBytes)
	}

	tail, truncated := TailTruncate(log, c.tailLines, c.maxBytes-len(diff))

	return &remedy.DiagnosticContext{
		Owner:        c.owner,
		Repo:         c.repo,
		LogTail:      tail,
		LogTruncated: truncated,
		Diff:         diff,
	}, nil
}
