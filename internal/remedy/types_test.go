package remedy

import (
	"errors"
	"fmt"
	"testing"
)

func TestEventKey_Deterministic(t *testing.T) {
	e := Event{PR: 42, Commit: "a1b2c3d4e5f6789012345678", RunID: 7, Job: "Unit Tests (ubuntu-latest)"}
	k1 := e.Key()
	k2 := e.Key()
	if k1 != k2 {
		t.Fatalf("key not deterministic: %q vs %q", k1, k2)
	}
	if k1 != "pr42-a1b2c3d4e5f6-unit-tests-ubuntu-latest" {
		t.Errorf("unexpected key %q", k1)
	}
}

func TestEventKey_DistinctJobs(t *testing.T) {
	a := Event{PR: 1, Commit: "a1b2c3d4e5f6", RunID: 7, Job: "lint"}
	b := Event{PR: 1, Commit: "a1b2c3d4e5f6", RunID: 7, Job: "test"}
	if a.Key() == b.Key() {
		t.Errorf("different jobs must produce different keys, both %q", a.Key())
	}
}

func TestEventValidate(t *testing.T) {
	tests := []struct {
		name    string
		event   Event
		wantErr bool
	}{
		{"valid", Event{PR: 1, Commit: "a1b2c3d", RunID: 1, Job: "test"}, false},
		{"zero PR", Event{Commit: "a1b2c3d", RunID: 1, Job: "test"}, true},
		{"short commit", Event{PR: 1, Commit: "a1b2", RunID: 1, Job: "test"}, true},
		{"zero run", Event{PR: 1, Commit: "a1b2c3d", Job: "test"}, true},
		{"missing job", Event{PR: 1, Commit: "a1b2c3d", RunID: 1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.event.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestKindTransient(t *testing.T) {
	transient := []Kind{KindFetchError, KindEngineTimeout, KindPublishError}
	terminal := []Kind{KindTooLarge, KindEngineInvalidResponse, KindPatchInapplicable, KindChecksStillFailing}

	for _, k := range transient {
		if !k.Transient() {
			t.Errorf("%s should be transient", k)
		}
	}
	for _, k := range terminal {
		if k.Transient() {
			t.Errorf("%s should not be transient", k)
		}
	}
}

func TestKindOf(t *testing.T) {
	f := Failf(KindTooLarge, "diff is %d bytes", 9000)
	wrapped := fmt.Errorf("collect context: %w", f)
	if got := KindOf(wrapped); got != KindTooLarge {
		t.Errorf("KindOf(wrapped) = %q, want %q", got, KindTooLarge)
	}
	if got := KindOf(errors.New("plain")); got != "" {
		t.Errorf("KindOf(plain) = %q, want empty", got)
	}
}

func TestFailureUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	f := FailErr(KindFetchError, cause, "fetch run log")
	if !errors.Is(f, cause) {
		t.Errorf("Failure should unwrap to its cause")
	}
}

func TestPhaseTerminal(t *testing.T) {
	for _, p := range []Phase{PhaseReceived, PhaseContextCollected, PhaseDiagnosed, PhaseValidated} {
		if p.Terminal() {
			t.Errorf("%s should not be terminal", p)
		}
	}
	for _, p := range []Phase{PhasePublished, PhaseFailed} {
		if !p.Terminal() {
			t.Errorf("%s should be terminal", p)
		}
	}
}
