package remedy

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Phase is the pipeline state of a remediation event.
type Phase string

const (
	PhaseReceived         Phase = "received"
	PhaseContextCollected Phase = "context-collected"
	PhaseDiagnosed        Phase = "diagnosed"
	PhaseValidated        Phase = "validated"
	PhasePublished        Phase = "published"
	PhaseFailed           Phase = "failed"
)

// Terminal reports whether no further automatic transition occurs from p.
func (p Phase) Terminal() bool {
	return p == PhasePublished || p == PhaseFailed
}

// Event identifies one failure-triage attempt: a failing CI run on the head
// commit of an open pull request.
type Event struct {
	PR        int       `json:"pr"`
	Commit    string    `json:"commit"`
	RunID     int64     `json:"run_id"`
	Job       string    `json:"job"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks that the event carries everything the pipeline needs.
func (e Event) Validate() error {
	if e.PR <= 0 {
		return fmt.Errorf("invalid PR number %d: must be positive", e.PR)
	}
	if len(e.Commit) < 7 {
		return fmt.Errorf("invalid commit %q: want a SHA of at least 7 chars", e.Commit)
	}
	if e.RunID <= 0 {
		return fmt.Errorf("invalid run id %d: must be positive", e.RunID)
	}
	if e.Job == "" {
		return fmt.Errorf("missing job name")
	}
	return nil
}

// Key returns the deterministic idempotency key for the (PR, commit, job)
// tuple. Two notifications for the same failing job on the same commit map
// to the same key.
func (e Event) Key() string {
	sha := e.Commit
	if len(sha) > 12 {
		sha = sha[:12]
	}
	return fmt.Sprintf("pr%d-%s-%s", e.PR, sha, slug(e.Job))
}

// DiagnosticContext is the bounded bundle of artifacts assembled for one
// event. Immutable once built.
type DiagnosticContext struct {
	Owner        string `json:"owner"`
	Repo         string `json:"repo"`
	Branch       string `json:"branch"`
	LogTail      string `json:"log_tail"`
	LogTruncated bool   `json:"log_truncated"`
	Diff         string `json:"diff"`
}

// Diagnosis is the parsed output of the reasoning engine: a root-cause
// narrative plus zero or one proposed patch.
type Diagnosis struct {
	Narrative string `json:"narrative"`
	Patch     string `json:"patch,omitempty"` // unified diff, "" when none proposed
}

// HasPatch reports whether the engine proposed a patch.
func (d Diagnosis) HasPatch() bool {
	return d.Patch != ""
}

// ValidationOutcome is the result of applying a proposed patch in an
// isolated workspace and re-running the failing checks.
type ValidationOutcome struct {
	Passed    bool              `json:"passed"`
	Kind      Kind              `json:"kind,omitempty"` // patch-inapplicable or checks-still-failing when !Passed
	CheckLogs map[string]string `json:"check_logs,omitempty"`
}

var nonSlug = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// slug lowercases a job name and squashes everything outside [a-zA-Z0-9_-].
func slug(name string) string {
	s := nonSlug.ReplaceAllString(strings.ToLower(name), "-")
	s = strings.Trim(s, "-")
	if len(s) > 60 {
		s = s[:60]
	}
	if s == "" {
		s = "job"
	}
	return s
}
