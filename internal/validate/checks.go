package validate

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// CheckConfig defines one deterministic check the validator re-runs.
type CheckConfig struct {
	Name    string
	Command string
	Timeout time.Duration
}

// CommandRunner abstracts command execution for testability.
type CommandRunner interface {
	Run(ctx context.Context, dir string, command string) (stdout string, stderr string, exitCode int, err error)
}

// ExecRunner implements CommandRunner by shelling out.
type ExecRunner struct{}

func (e *ExecRunner) Run(ctx context.Context, dir string, command string) (string, string, int, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = dir

	var stdoutBuf, stderrBuf strings.Builder
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return stdoutBuf.String(), stderrBuf.String(), -1, fmt.Errorf("exec: %w", err)
		}
	}
	return stdoutBuf.String(), stderrBuf.String(), exitCode, nil
}

// CheckResult holds the outcome of one check run.
type CheckResult struct {
	Name       string
	Passed     bool
	ExitCode   int
	DurationMs int
	Output     string
}

// CheckRunner executes checks inside a workspace.
type CheckRunner struct {
	cmd CommandRunner
}

// NewCheckRunner creates a CheckRunner with the given command runner.
func NewCheckRunner(cmd CommandRunner) *CheckRunner {
	return &CheckRunner{cmd: cmd}
}

// Run executes a single check in the given directory under its timeout.
func (r *CheckRunner) Run(ctx context.Context, dir string, cfg CheckConfig) (*CheckResult, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	stdout, stderr, exitCode, err := r.cmd.Run(ctx, dir, cfg.Command)
	durationMs := int(time.Since(start).Milliseconds())

	output := stdout
	if stderr != "" {
		output = strings.TrimSpace(output + "\n" + stderr)
	}

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return &CheckResult{
				Name:       cfg.Name,
				Passed:     false,
				ExitCode:   -1,
				DurationMs: durationMs,
				Output:     fmt.Sprintf("timeout after %s\n%s", timeout, output),
			}, nil
		}
		return nil, fmt.Errorf("run check %q: %w", cfg.Name, err)
	}

	return &CheckResult{
		Name:       cfg.Name,
		Passed:     exitCode == 0,
		ExitCode:   exitCode,
		DurationMs: durationMs,
		Output:     output,
	}, nil
}
