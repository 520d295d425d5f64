package collect

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/lucasnoah/fixloop/internal/remedy"
)

type fakeHost struct {
	log     string
	logErr  error
	diff    string
	diffErr error
}

func (f *fakeHost) FailedRunLog(_ context.Context, _ int64) (string, error) {
	return f.log, f.logErr
}

func (f *fakeHost) Diff(_ context.Context, _ int) (string, error) {
	return f.diff, f.diffErr
}

func testEvent() remedy.Event {
	return remedy.Event{PR: 42, Commit: "a1b2c3d4e5f6", RunID: 777, Job: "unit-tests"}
}

func TestCollect_HappyPath(t *testing.T) {
	host := &fakeHost{
		log:  "setup\nAssertionError: expected 4 got 3",
		diff: "diff --git a/calc.py b/calc.py\n-    return a+b\n+    return a-b",
	}
	c := NewCollector(host, "lucasnoah", "calc", 1<<20, 100)

	dc, err := c.Collect(context.Background(), testEvent())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dc.Owner != "lucasnoah" || dc.Repo != "calc" {
		t.Errorf("repo metadata missing: %+v", dc)
	}
	if !strings.Contains(dc.LogTail, "AssertionError") {
		t.Errorf("log tail missing assertion: %q", dc.LogTail)
	}
	if dc.LogTruncated {
		t.Error("small log should not be truncated")
	}
	if !strings.HasPrefix(dc.Diff, "diff --git") {
		t.Errorf("diff missing: %q", dc.Diff)
	}
}

func TestCollect_LogFetchError(t *testing.T) {
	host := &fakeHost{logErr: errors.New("HTTP 502")}
	c := NewCollector(host, "o", "r", 1<<20, 100)

	_, err := c.Collect(context.Background(), testEvent())
	if remedy.KindOf(err) != remedy.KindFetchError {
		t.Fatalf("expected fetch-error, got %v", err)
	}
}

func TestCollect_DiffFetchError(t *testing.T) {
	host := &fakeHost{log: "ok", diffErr: errors.New("HTTP 502")}
	c := NewCollector(host, "o", "r", 1<<20, 100)

	_, err := c.Collect(context.Background(), testEvent())
	if remedy.KindOf(err) != remedy.KindFetchError {
		t.Fatalf("expected fetch-error, got %v", err)
	}
}

func TestCollect_OversizedDiffIsTooLarge(t *testing.T) {
	host := &fakeHost{
		log:  "log",
		diff: strings.Repeat("x", 200),
	}
	c := NewCollector(host, "o", "r", 100, 100)

	_, err := c.Collect(context.Background(), testEvent())
	if remedy.KindOf(err) != remedy.KindTooLarge {
		t.Fatalf("expected too-large, got %v", err)
	}
	if !strings.Contains(err.Error(), "context-too-large") {
		t.Errorf("expected context-too-large detail, got %v", err)
	}
}

func TestCollect_LogTruncatedToRemainingBudget(t *testing.T) {
	diff := strings.Repeat("d", 80)
	var sb strings.Builder
	for i := 0; i < 50; i++ {
		sb.WriteString("log line with some padding text\n")
	}
	sb.WriteString("AssertionError: expected 4 got 3")

	host := &fakeHost{log: sb.String(), diff: diff}
	c := NewCollector(host, "o", "r", 200, 1000)

	dc, err := c.Collect(context.Background(), testEvent())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !dc.LogTruncated {
		t.Error("expected log to be truncated")
	}
	if len(dc.LogTail)+len(dc.Diff) > 200 {
		t.Errorf("context exceeds ceiling: %d bytes", len(dc.LogTail)+len(dc.Diff))
	}
	if !strings.HasSuffix(dc.LogTail, "AssertionError: expected 4 got 3") {
		t.Errorf("truncation lost the final line: %q", dc.LogTail)
	}
}
