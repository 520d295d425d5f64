package listener

import (
	"context"
	"time"

	"github.com/chainguard-dev/clog"

	"github.com/lucasnoah/fixloop/internal/ci"
	"github.com/lucasnoah/fixloop/internal/remedy"
)

// HostClient is the subset of the CI host client the listener needs.
type HostClient interface {
	ListOpenPRs(ctx context.Context) ([]ci.PullRequest, error)
	ListFailedRuns(ctx context.Context, sha string) ([]ci.WorkflowRun, error)
	FailedJobs(ctx context.Context, runID int64) ([]ci.Job, error)
}

// RecordLookup answers whether an event key already has a record.
// *record.Store satisfies it.
type RecordLookup interface {
	Get(key string) (*remedy.Record, error)
}

// Finding is one failing job the listener discovered, together with the
// branch it failed on.
type Finding struct {
	Event  remedy.Event
	Branch string
}

// Listener polls the CI host for failing runs on the head commits of open
// pull requests. Known keys are skipped, so a failure already being worked
// on (or already resolved) produces no second event.
type Listener struct {
	host    HostClient
	records RecordLookup
}

// DefaultPollInterval is how often the host is polled.
const DefaultPollInterval = time.Minute

// NewListener creates a Listener.
func NewListener(host HostClient, records RecordLookup) *Listener {
	return &Listener{host: host, records: records}
}

// Poll performs one discovery sweep and returns the new findings, deduped
// by idempotency key. A failing run on a non-head commit never appears:
// runs are listed per head commit, so superseded failures age out on their
// own. Per-PR errors are logged and skipped; only the PR listing itself is
// fatal to the sweep.
func (l *Listener) Poll(ctx context.Context) ([]Finding, error) {
	log := clog.FromContext(ctx)

	prs, err := l.host.ListOpenPRs(ctx)
	if err != nil {
		return nil, remedy.FailErr(remedy.KindFetchError, err, "list open PRs")
	}

	var findings []Finding
	seen := make(map[string]bool)
	for _, pr := range prs {
		runs, err := l.host.ListFailedRuns(ctx, pr.HeadSHA)
		if err != nil {
			log.Warnf("skipping PR #%d: list failed runs: %v", pr.Number, err)
			continue
		}
		for _, run := range runs {
			jobs, err := l.host.FailedJobs(ctx, run.ID)
			if err != nil {
				log.Warnf("skipping run %d on PR #%d: list jobs: %v", run.ID, pr.Number, err)
				continue
			}
			for _, job := range jobs {
				ev := remedy.Event{
					PR:        pr.Number,
					Commit:    pr.HeadSHA,
					RunID:     run.ID,
					Job:       job.Name,
					CreatedAt: time.Now().UTC(),
				}
				if err := ev.Validate(); err != nil {
					log.Warnf("dropping malformed event on PR #%d: %v", pr.Number, err)
					continue
				}
				key := ev.Key()
				if seen[key] {
					continue
				}
				seen[key] = true

				existing, err := l.records.Get(key)
				if err != nil {
					log.Warnf("skipping %s: record lookup: %v", key, err)
					continue
				}
				if existing != nil {
					continue
				}
				findings = append(findings, Finding{Event: ev, Branch: pr.HeadRefName})
			}
		}
	}
	return findings, nil
}

// Run polls in a loop until the context is cancelled, passing each new
// finding to submit. The first sweep happens immediately.
func (l *Listener) Run(ctx context.Context, interval time.Duration, submit func(Finding)) error {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	log := clog.FromContext(ctx)

	sweep := func() {
		findings, err := l.Poll(ctx)
		if err != nil {
			log.Warnf("poll failed: %v", err)
			return
		}
		for _, f := range findings {
			log.Infof("detected failing job %q on PR #%d (commit %s)", f.Event.Job, f.Event.PR, f.Event.Commit)
			submit(f)
		}
	}

	sweep()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			sweep()
		}
	}
}
