package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chainguard-dev/clog"

	"github.com/lucasnoah/fixloop/internal/record"
	"github.com/lucasnoah/fixloop/internal/remedy"
	"github.com/lucasnoah/fixloop/internal/validate"
)

// Collector assembles the diagnostic context for an event.
type Collector interface {
	Collect(ctx context.Context, ev remedy.Event) (*remedy.DiagnosticContext, error)
}

// Diagnoser produces a diagnosis from the collected context.
type Diagnoser interface {
	Diagnose(ctx context.Context, ev remedy.Event, dc *remedy.DiagnosticContext) (*remedy.Diagnosis, error)
}

// Validator re-runs the failing checks with the patch applied.
type Validator interface {
	Validate(ctx context.Context, ev remedy.Event, patch string, checks []validate.CheckConfig) (*remedy.ValidationOutcome, error)
}

// Publisher posts results back to the originating pull request.
type Publisher interface {
	Publish(ctx context.Context, rec *remedy.Record, save func(*remedy.Record) error) error
	PublishDiagnosis(ctx context.Context, rec *remedy.Record, save func(*remedy.Record) error) error
}

// Auditor receives phase-transition audit rows. *db.DB satisfies it.
type Auditor interface {
	LogEvent(key string, event string, phase string, attempt int, detail string) error
}

// Options configures a Coordinator.
type Options struct {
	Owner string
	Repo  string

	// ChecksFor maps a failing job name to the checks validation re-runs.
	ChecksFor func(job string) []validate.CheckConfig

	// Workers bounds concurrent pipeline runs.
	Workers int

	// CollectTimeout is the wall-clock limit for one context-collection
	// attempt. Diagnosis and validation carry their own timeouts.
	CollectTimeout time.Duration

	// PublishTimeout is the wall-clock limit for one publish attempt.
	PublishTimeout time.Duration

	Retry RetryConfig
}

// DefaultWorkers bounds concurrent pipeline runs.
const DefaultWorkers = 4

// DefaultCollectTimeout limits one context-collection attempt.
const DefaultCollectTimeout = 2 * time.Minute

// DefaultPublishTimeout limits one publish attempt.
const DefaultPublishTimeout = 5 * time.Minute

// Coordinator drives each remediation event through the pipeline phases,
// persisting the record after every transition. Each event runs on one
// worker at a time; a second notification for an in-flight or finished key
// is discarded. Transient failures retry with backoff, terminal ones fail
// the event immediately.
type Coordinator struct {
	records   *record.Store
	collector Collector
	diagnoser Diagnoser
	validator Validator
	publisher Publisher
	audit     Auditor // may be nil
	opts      Options

	queue chan string

	mu       sync.Mutex
	inflight map[string]bool

	wg sync.WaitGroup
}

// New creates a Coordinator.
func New(records *record.Store, collector Collector, diagnoser Diagnoser, validator Validator, publisher Publisher, audit Auditor, opts Options) *Coordinator {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.CollectTimeout <= 0 {
		opts.CollectTimeout = DefaultCollectTimeout
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = DefaultPublishTimeout
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = DefaultRetryConfig()
	}
	if opts.ChecksFor == nil {
		opts.ChecksFor = func(string) []validate.CheckConfig { return nil }
	}
	return &Coordinator{
		records:   records,
		collector: collector,
		diagnoser: diagnoser,
		validator: validator,
		publisher: publisher,
		audit:     audit,
		opts:      opts,
		queue:     make(chan string, 128),
		inflight:  make(map[string]bool),
	}
}

// Start launches the worker pool. Workers drain the queue until the context
// is cancelled; Wait blocks until they finish.
func (c *Coordinator) Start(ctx context.Context) {
	for i := 0; i < c.opts.Workers; i++ {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case key := <-c.queue:
					if !c.claim(key) {
						continue
					}
					if err := c.Process(ctx, key); err != nil {
						clog.FromContext(ctx).Warnf("pipeline for %s: %v", key, err)
					}
					c.release(key)
				}
			}
		}()
	}
}

// Wait blocks until all workers have exited.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// Submit registers an event and queues it for processing. The first
// notification for a key creates its record; subsequent ones for a key that
// is terminal, in flight, or already queued change nothing.
func (c *Coordinator) Submit(ctx context.Context, ev remedy.Event, branch string) error {
	if err := ev.Validate(); err != nil {
		return fmt.Errorf("reject event: %w", err)
	}
	key := ev.Key()

	existing, err := c.records.Get(key)
	if err != nil {
		return err
	}
	if existing == nil {
		rec := remedy.NewRecord(ev)
		rec.Branch = branch
		if err := c.records.Create(rec); err != nil {
			return err
		}
		c.logEvent(key, "received", remedy.PhaseReceived, "")
	} else if existing.Terminal() {
		return nil
	} else if branch != "" && existing.Branch == "" {
		// A recovered or manually submitted record may predate branch
		// discovery; a later sweep fills it in.
		if _, err := c.records.Update(key, func(r *remedy.Record) { r.Branch = branch }); err != nil {
			return err
		}
	}

	c.enqueue(ctx, key)
	return nil
}

// ProcessOnce claims the key, runs the pipeline, and releases the claim.
// Used by synchronous callers so a one-shot run cannot race a worker that
// dequeued the same key.
func (c *Coordinator) ProcessOnce(ctx context.Context, key string) error {
	if !c.claim(key) {
		return fmt.Errorf("remediation %s is already in progress", key)
	}
	defer c.release(key)
	return c.Process(ctx, key)
}

// Recover queues every non-terminal record, resuming work interrupted by a
// restart from its last durable phase.
func (c *Coordinator) Recover(ctx context.Context) error {
	recs, err := c.records.ListNonTerminal()
	if err != nil {
		return fmt.Errorf("list non-terminal records: %w", err)
	}
	for _, rec := range recs {
		clog.FromContext(ctx).Infof("recovering %s from phase %s", rec.Key, rec.Phase)
		c.enqueue(ctx, rec.Key)
	}
	return nil
}

func (c *Coordinator) enqueue(ctx context.Context, key string) {
	select {
	case c.queue <- key:
	default:
		// The listener re-polls; a dropped key comes back next sweep.
		clog.FromContext(ctx).Warnf("queue full, dropping %s", key)
	}
}

func (c *Coordinator) claim(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inflight[key] {
		return false
	}
	c.inflight[key] = true
	return true
}

func (c *Coordinator) release(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inflight, key)
}

// Process runs the pipeline for one record from its current phase to a
// terminal phase. Safe to call on a resumed record: completed phases are
// never re-run, and publish sub-steps already stamped on the record are
// skipped inside the publisher.
func (c *Coordinator) Process(ctx context.Context, key string) error {
	rec, err := c.records.Get(key)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("record %s not found", key)
	}

	for !rec.Terminal() {
		var stepErr error
		switch rec.Phase {
		case remedy.PhaseReceived:
			stepErr = c.collect(ctx, rec)
		case remedy.PhaseContextCollected:
			stepErr = c.diagnose(ctx, rec)
		case remedy.PhaseDiagnosed:
			stepErr = c.validate(ctx, rec)
		case remedy.PhaseValidated:
			stepErr = c.publish(ctx, rec)
		default:
			return fmt.Errorf("record %s in unknown phase %q", key, rec.Phase)
		}
		if stepErr != nil {
			// Shutdown is not a pipeline failure: leave the record at
			// its last durable phase so the recovery sweep resumes it.
			if ctx.Err() != nil || errors.Is(stepErr, context.Canceled) {
				return stepErr
			}
			return c.fail(ctx, rec, stepErr)
		}
	}
	return nil
}

func (c *Coordinator) collect(ctx context.Context, rec *remedy.Record) error {
	dc, err := retryTransient(ctx, c.opts.Retry, "collect-context", func() (*remedy.DiagnosticContext, error) {
		cctx, cancel := context.WithTimeout(ctx, c.opts.CollectTimeout)
		defer cancel()
		return c.collector.Collect(cctx, rec.Event())
	})
	if err != nil {
		return err
	}

	rec.LogTail = dc.LogTail
	rec.LogTruncated = dc.LogTruncated
	rec.Diff = dc.Diff
	rec.Phase = remedy.PhaseContextCollected
	if err := c.records.Upsert(rec); err != nil {
		return err
	}
	c.logEvent(rec.Key, "context-collected", rec.Phase, fmt.Sprintf("log=%dB diff=%dB truncated=%t", len(dc.LogTail), len(dc.Diff), dc.LogTruncated))
	return nil
}

func (c *Coordinator) diagnose(ctx context.Context, rec *remedy.Record) error {
	dc := &remedy.DiagnosticContext{
		Owner:        c.opts.Owner,
		Repo:         c.opts.Repo,
		Branch:       rec.Branch,
		LogTail:      rec.LogTail,
		LogTruncated: rec.LogTruncated,
		Diff:         rec.Diff,
	}
	diag, err := retryTransient(ctx, c.opts.Retry, "diagnose", func() (*remedy.Diagnosis, error) {
		return c.diagnoser.Diagnose(ctx, rec.Event(), dc)
	})
	if err != nil {
		return err
	}

	rec.Narrative = diag.Narrative
	rec.Patch = diag.Patch
	rec.Phase = remedy.PhaseDiagnosed
	if err := c.records.Upsert(rec); err != nil {
		return err
	}
	c.logEvent(rec.Key, "diagnosed", rec.Phase, fmt.Sprintf("patch=%t", diag.HasPatch()))
	return nil
}

func (c *Coordinator) validate(ctx context.Context, rec *remedy.Record) error {
	if rec.Patch == "" {
		// Nothing to validate; the narrative alone gets published.
		rec.ValidationPassed = false
		rec.Phase = remedy.PhaseValidated
		if err := c.records.Upsert(rec); err != nil {
			return err
		}
		c.logEvent(rec.Key, "validation-skipped", rec.Phase, "no patch proposed")
		return nil
	}

	outcome, err := retryTransient(ctx, c.opts.Retry, "validate", func() (*remedy.ValidationOutcome, error) {
		return c.validator.Validate(ctx, rec.Event(), rec.Patch, c.opts.ChecksFor(rec.Job))
	})
	if err != nil {
		return err
	}

	rec.ValidationLogs = outcome.CheckLogs
	if !outcome.Passed {
		return remedy.Failf(outcome.Kind, "validation failed")
	}

	rec.ValidationPassed = true
	rec.Phase = remedy.PhaseValidated
	if err := c.records.Upsert(rec); err != nil {
		return err
	}
	c.logEvent(rec.Key, "validated", rec.Phase, "checks pass with patch applied")
	return nil
}

func (c *Coordinator) publish(ctx context.Context, rec *remedy.Record) error {
	_, err := retryTransient(ctx, c.opts.Retry, "publish", func() (struct{}, error) {
		pctx, cancel := context.WithTimeout(ctx, c.opts.PublishTimeout)
		defer cancel()
		return struct{}{}, c.publisher.Publish(pctx, rec, c.records.Upsert)
	})
	if err != nil {
		return err
	}

	rec.Phase = remedy.PhasePublished
	if err := c.records.Upsert(rec); err != nil {
		return err
	}
	c.logEvent(rec.Key, "published", rec.Phase, rec.FixPRURL)
	if err := c.records.Archive(rec.Key); err != nil {
		clog.FromContext(ctx).Warnf("archive %s: %v", rec.Key, err)
	}
	return nil
}

// fail moves the record to the failed phase, recording the failure kind.
// A diagnosis that was already produced still gets posted, best-effort, so
// a late failure does not swallow the analysis.
func (c *Coordinator) fail(ctx context.Context, rec *remedy.Record, cause error) error {
	rec.FailureKind = remedy.KindOf(cause)
	rec.FailureDetail = cause.Error()
	rec.Phase = remedy.PhaseFailed

	if rec.Narrative != "" && rec.CommentURL == "" {
		pctx, cancel := context.WithTimeout(context.Background(), c.opts.PublishTimeout)
		if err := c.publisher.PublishDiagnosis(pctx, rec, c.records.Upsert); err != nil {
			clog.FromContext(ctx).Warnf("best-effort diagnosis comment for %s: %v", rec.Key, err)
		}
		cancel()
	}

	if err := c.records.Upsert(rec); err != nil {
		return fmt.Errorf("persist failure for %s: %w (cause: %v)", rec.Key, err, cause)
	}
	c.logEvent(rec.Key, "failed", rec.Phase, rec.FailureDetail)
	if err := c.records.Archive(rec.Key); err != nil {
		clog.FromContext(ctx).Warnf("archive %s: %v", rec.Key, err)
	}
	return cause
}

// logEvent writes an audit row. Audit failures never block the pipeline.
func (c *Coordinator) logEvent(key string, event string, phase remedy.Phase, detail string) {
	if c.audit == nil {
		return
	}
	_ = c.audit.LogEvent(key, event, string(phase), 1, detail)
}
