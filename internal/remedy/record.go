package remedy

import "time"

// Record is the durable snapshot of a remediation event, keyed by the
// event's idempotency key. It is persisted after every phase transition so
// a restarted process resumes from the last durable phase instead of
// re-running external side effects.
type Record struct {
	Key       string `json:"key"`
	PR        int    `json:"pr"`
	Commit    string `json:"commit"`
	RunID     int64  `json:"run_id"`
	Job       string `json:"job"`
	Phase     Phase  `json:"phase"`

	FailureKind   Kind   `json:"failure_kind,omitempty"`
	FailureDetail string `json:"failure_detail,omitempty"`

	// Accumulated artifacts, filled in as phases complete.
	LogTail      string `json:"log_tail,omitempty"`
	LogTruncated bool   `json:"log_truncated,omitempty"`
	Diff         string `json:"diff,omitempty"`
	Branch       string `json:"branch,omitempty"`
	Narrative    string `json:"narrative,omitempty"`
	Patch        string `json:"patch,omitempty"`

	ValidationPassed bool              `json:"validation_passed"`
	ValidationLogs   map[string]string `json:"validation_logs,omitempty"`

	// Publish side-effect markers. A non-empty value means the side effect
	// already happened and must not be repeated.
	CommentURL    string `json:"comment_url,omitempty"`
	FixBranch     string `json:"fix_branch,omitempty"`
	FixPRURL      string `json:"fix_pr_url,omitempty"`
	FixCommentURL string `json:"fix_comment_url,omitempty"`

	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// NewRecord creates a fresh record in phase received for the given event.
func NewRecord(e Event) *Record {
	now := time.Now().UTC().Format(time.RFC3339)
	return &Record{
		Key:       e.Key(),
		PR:        e.PR,
		Commit:    e.Commit,
		RunID:     e.RunID,
		Job:       e.Job,
		Phase:     PhaseReceived,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Event reconstructs the triggering event from the record.
func (r *Record) Event() Event {
	created, _ := time.Parse(time.RFC3339, r.CreatedAt)
	return Event{PR: r.PR, Commit: r.Commit, RunID: r.RunID, Job: r.Job, CreatedAt: created}
}

// Terminal reports whether the record reached a terminal phase.
func (r *Record) Terminal() bool {
	return r.Phase.Terminal()
}
