package validate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/lucasnoah/fixloop/internal/remedy"
)

// CheckRecorder receives per-check audit rows. *db.DB satisfies it.
type CheckRecorder interface {
	LogValidationCheck(key string, checkName string, passed bool, exitCode int, durationMs int, summary string) error
}

// Validator applies a proposed patch in an isolated workspace and re-runs
// the checks that originally failed. This is the correctness gate of the
// pipeline: a patch that does not demonstrably fix the failure is never
// published.
type Validator struct {
	workspaces *Manager
	checks     *CheckRunner
	recorder   CheckRecorder // may be nil
	timeout    time.Duration
}

// DefaultTimeout is the wall-clock limit for one whole validation run.
const DefaultTimeout = 15 * time.Minute

// NewValidator creates a Validator.
func NewValidator(workspaces *Manager, checks *CheckRunner, recorder CheckRecorder, timeout time.Duration) *Validator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Validator{workspaces: workspaces, checks: checks, recorder: recorder, timeout: timeout}
}

// Validate materializes the repository at the triggering commit, applies
// the patch, and re-runs the given checks.
//
// A patch that fails to apply cleanly — including a commit that no longer
// exists — always yields patch-inapplicable, never checks-still-failing:
// the two imply different follow-up (regenerate vs. report residual issue).
func (v *Validator) Validate(ctx context.Context, ev remedy.Event, patch string, checks []CheckConfig) (*remedy.ValidationOutcome, error) {
	if patch == "" {
		return nil, fmt.Errorf("no patch to validate")
	}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	ws, err := v.workspaces.Acquire(ctx, ev.Key(), ev.Commit)
	if err != nil {
		if errors.Is(err, ErrStaleCommit) {
			return &remedy.ValidationOutcome{
				Passed:    false,
				Kind:      remedy.KindPatchInapplicable,
				CheckLogs: map[string]string{"git-apply": err.Error()},
			}, nil
		}
		return nil, remedy.FailErr(remedy.KindFetchError, err, "acquire workspace")
	}
	// Release with a fresh context so cleanup survives run timeout.
	defer func() {
		releaseCtx, releaseCancel := context.WithTimeout(context.Background(), time.Minute)
		defer releaseCancel()
		_ = ws.Release(releaseCtx)
	}()

	patchFile, err := WritePatchFile(patch)
	if err != nil {
		return nil, err
	}
	defer os.Remove(patchFile)

	if out, err := ws.ApplyCheck(ctx, patchFile); err != nil {
		return &remedy.ValidationOutcome{
			Passed:    false,
			Kind:      remedy.KindPatchInapplicable,
			CheckLogs: map[string]string{"git-apply": out},
		}, nil
	}
	if out, err := ws.Apply(ctx, patchFile); err != nil {
		return &remedy.ValidationOutcome{
			Passed:    false,
			Kind:      remedy.KindPatchInapplicable,
			CheckLogs: map[string]string{"git-apply": out},
		}, nil
	}

	logs := make(map[string]string, len(checks))
	allPassed := true
	for _, cfg := range checks {
		result, err := v.checks.Run(ctx, ws.Path, cfg)
		if err != nil {
			return nil, fmt.Errorf("run check %q: %w", cfg.Name, err)
		}
		logs[result.Name] = result.Output
		if v.recorder != nil {
			_ = v.recorder.LogValidationCheck(ev.Key(), result.Name, result.Passed, result.ExitCode, result.DurationMs, firstLine(result.Output))
		}
		if !result.Passed {
			allPassed = false
		}
	}

	if !allPassed {
		return &remedy.ValidationOutcome{
			Passed:    false,
			Kind:      remedy.KindChecksStillFailing,
			CheckLogs: logs,
		}, nil
	}
	return &remedy.ValidationOutcome{Passed: true, CheckLogs: logs}, nil
}

// WritePatchFile writes the patch to a temp file for git apply.
func WritePatchFile(patch string) (string, error) {
	f, err := os.CreateTemp("", "fixloop-*.patch")
	if err != nil {
		return "", fmt.Errorf("create patch file: %w", err)
	}
	if _, err := f.WriteString(patch); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("write patch file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("close patch file: %w", err)
	}
	return filepath.Clean(f.Name()), nil
}

func firstLine(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			return s[:i]
		}
	}
	return s
}
