package diagnose

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/lucasnoah/fixloop/internal/remedy"
)

type fakeEngine struct {
	response string
	err      error
	delay    time.Duration
	prompts  []string
}

func (f *fakeEngine) Complete(ctx context.Context, _ string, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(f.delay):
		}
	}
	return f.response, f.err
}

func testContext() *remedy.DiagnosticContext {
	return &remedy.DiagnosticContext{
		Owner:   "lucasnoah",
		Repo:    "calc",
		LogTail: "AssertionError: expected 4 got 3",
		Diff:    "diff --git a/calc.py b/calc.py\n-    return a+b\n+    return a-b",
	}
}

func testEvent() remedy.Event {
	return remedy.Event{PR: 42, Commit: "a1b2c3d4e5f6", RunID: 777, Job: "unit-tests"}
}

func TestDiagnose_HappyPath(t *testing.T) {
	engine := &fakeEngine{
		response: "The change flipped the operator from + to -.\n\n```diff\n" + validPatch + "```",
	}
	a := NewAdapter(engine, time.Minute)

	d, err := a.Diagnose(context.Background(), testEvent(), testContext())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.HasPatch() {
		t.Error("expected patch")
	}

	// The prompt must carry the log, the diff, and the commit to patch against.
	if len(engine.prompts) != 1 {
		t.Fatalf("expected 1 engine call, got %d", len(engine.prompts))
	}
	prompt := engine.prompts[0]
	for _, want := range []string{"AssertionError", "diff --git", "a1b2c3d4e5f6", "unit-tests"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestDiagnose_Timeout(t *testing.T) {
	engine := &fakeEngine{delay: time.Second}
	a := NewAdapter(engine, 10*time.Millisecond)

	_, err := a.Diagnose(context.Background(), testEvent(), testContext())
	if remedy.KindOf(err) != remedy.KindEngineTimeout {
		t.Fatalf("expected engine-timeout, got %v", err)
	}
}

func TestDiagnose_TransportError(t *testing.T) {
	engine := &fakeEngine{err: errors.New("connection reset")}
	a := NewAdapter(engine, time.Minute)

	_, err := a.Diagnose(context.Background(), testEvent(), testContext())
	// Transport failures share the transient engine-timeout kind so the
	// coordinator retries them.
	if remedy.KindOf(err) != remedy.KindEngineTimeout {
		t.Fatalf("expected engine-timeout, got %v", err)
	}
}

func TestDiagnose_InvalidResponse(t *testing.T) {
	engine := &fakeEngine{response: ""}
	a := NewAdapter(engine, time.Minute)

	_, err := a.Diagnose(context.Background(), testEvent(), testContext())
	if remedy.KindOf(err) != remedy.KindEngineInvalidResponse {
		t.Fatalf("expected engine-invalid-response, got %v", err)
	}
}
