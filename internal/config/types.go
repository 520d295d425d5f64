package config

import "time"

// Config is the top-level configuration parsed from fixloop YAML, with
// secrets layered in from the environment.
type Config struct {
	Repo       RepoConfig       `yaml:"repo"`
	Poll       PollConfig       `yaml:"poll"`
	Engine     EngineConfig     `yaml:"engine"`
	Context    ContextConfig    `yaml:"context"`
	Validation ValidationConfig `yaml:"validation"`
	Publish    PublishConfig    `yaml:"publish"`

	// Checks are the named commands validation can re-run.
	Checks map[string]Check `yaml:"checks"`

	// Jobs maps a CI job name to the checks that reproduce it locally.
	// Jobs without a mapping fall back to DefaultChecks.
	Jobs          map[string][]string `yaml:"jobs"`
	DefaultChecks []string            `yaml:"default_checks"`
}

// RepoConfig identifies the repository under remediation.
type RepoConfig struct {
	Owner      string `yaml:"owner"`
	Name       string `yaml:"name"`
	Dir        string `yaml:"dir"` // local clone used for workspaces
	BaseBranch string `yaml:"base_branch"`
}

// PollConfig controls failure discovery.
type PollConfig struct {
	Interval string `yaml:"interval"`
	Workers  int    `yaml:"workers"`
}

// EngineConfig controls the reasoning engine. The API key is never read
// from YAML.
type EngineConfig struct {
	Model     string `yaml:"model"`
	MaxTokens int64  `yaml:"max_tokens"`
	Timeout   string `yaml:"timeout"`
	APIKey    string `yaml:"-" env:"ANTHROPIC_API_KEY"`
}

// ContextConfig bounds the diagnostic context.
type ContextConfig struct {
	MaxBytes  int `yaml:"max_bytes"`
	TailLines int `yaml:"tail_lines"`
}

// ValidationConfig controls patch validation.
type ValidationConfig struct {
	Timeout      string `yaml:"timeout"`
	WorkspaceDir string `yaml:"workspace_dir"`
}

// PublishConfig controls how results are posted back.
type PublishConfig struct {
	BranchPrefix string `yaml:"branch_prefix"`
}

// Check is one deterministic command run during validation.
type Check struct {
	Command string `yaml:"command"`
	Timeout string `yaml:"timeout"`
}

// ResolvedCheck is a check with its name attached and timeout parsed.
type ResolvedCheck struct {
	Name    string
	Command string
	Timeout time.Duration
}

// ChecksForJob resolves the checks to re-run for a failing job. Unknown
// jobs get the default checks; names that resolve to no definition are
// skipped (Validate reports them upfront).
func (c *Config) ChecksForJob(job string) []ResolvedCheck {
	names, ok := c.Jobs[job]
	if !ok {
		names = c.DefaultChecks
	}
	var resolved []ResolvedCheck
	for _, name := range names {
		check, ok := c.Checks[name]
		if !ok {
			continue
		}
		timeout, _ := time.ParseDuration(check.Timeout)
		resolved = append(resolved, ResolvedCheck{Name: name, Command: check.Command, Timeout: timeout})
	}
	return resolved
}

// PollInterval parses the poll interval, returning 0 when unset or invalid.
func (c *Config) PollInterval() time.Duration {
	d, _ := time.ParseDuration(c.Poll.Interval)
	return d
}

// EngineTimeout parses the engine timeout, returning 0 when unset or invalid.
func (c *Config) EngineTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Engine.Timeout)
	return d
}

// ValidationTimeout parses the validation timeout, returning 0 when unset
// or invalid.
func (c *Config) ValidationTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Validation.Timeout)
	return d
}
