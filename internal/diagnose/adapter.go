package diagnose

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lucasnoah/fixloop/internal/remedy"
)

const systemPrompt = `You are a CI failure analyst. You are given the failing log tail and
the diff of the change under review. Identify the root cause of the failure
and, when you are confident in a minimal fix, propose it as a patch.`

// Adapter packages diagnostic context into a bounded engine request and
// parses the response into a validated Diagnosis. The engine is treated as
// unreliable and non-deterministic: calls run under a hard timeout and the
// response is parsed defensively.
type Adapter struct {
	engine  Engine
	timeout time.Duration
}

// DefaultTimeout is the wall-clock limit for one engine call.
const DefaultTimeout = 2 * time.Minute

// NewAdapter creates an Adapter with the given per-call timeout.
func NewAdapter(engine Engine, timeout time.Duration) *Adapter {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Adapter{engine: engine, timeout: timeout}
}

// Diagnose sends the context to the engine and returns a validated
// DiagnosisResult. Timeouts and transport errors are engine-timeout
// (transient, retried by the coordinator); malformed responses are
// engine-invalid-response (terminal).
func (a *Adapter) Diagnose(ctx context.Context, ev remedy.Event, dc *remedy.DiagnosticContext) (*remedy.Diagnosis, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	raw, err := a.engine.Complete(ctx, systemPrompt, buildPrompt(ev, dc))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, remedy.FailErr(remedy.KindEngineTimeout, err, "engine call exceeded %s", a.timeout)
		}
		return nil, remedy.FailErr(remedy.KindEngineTimeout, err, "engine unreachable")
	}

	return ParseResponse(raw)
}

// buildPrompt constructs the user prompt sent to the engine.
func buildPrompt(ev remedy.Event, dc *remedy.DiagnosticContext) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("CI job %q failed on commit %s of %s/%s (PR #%d).\n\n",
		ev.Job, ev.Commit, dc.Owner, dc.Repo, ev.PR))

	b.WriteString("## Failing log tail\n\n")
	if dc.LogTruncated {
		b.WriteString("(older log lines omitted)\n")
	}
	b.WriteString(dc.LogTail)
	b.WriteString("\n\n## Diff under review\n\n")
	b.WriteString(dc.Diff)
	b.WriteString("\n\n---\n")
	b.WriteString("Explain the root cause of the failure in a short narrative.\n")
	b.WriteString(fmt.Sprintf("If you can propose a minimal fix, append exactly one unified diff against commit %s inside a ```diff fence. ", ev.Commit))
	b.WriteString("If you cannot propose a confident fix, write the narrative only — do not guess a patch.\n")
	return b.String()
}
