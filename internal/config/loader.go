package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"
)

// Load reads a configuration from the given YAML file, layers in
// environment variables (secrets are environment-only), and applies
// defaults.
func Load(ctx context.Context, path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("reading config environment: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault searches standard locations and loads the first config
// found. Search order: ./fixloop.yaml, ~/.fixloop/config.yaml
func LoadDefault(ctx context.Context) (*Config, error) {
	candidates := []string{"fixloop.yaml"}

	home, err := os.UserHomeDir()
	if err == nil {
		candidates = append(candidates, filepath.Join(home, ".fixloop", "config.yaml"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return Load(ctx, path)
		}
	}

	return nil, fmt.Errorf("no config found (searched: %v)", candidates)
}

// applyDefaults fills in unset optional fields. Repo.BaseBranch stays
// empty here: the caller resolves it against the host's default branch.
func applyDefaults(cfg *Config) {
	if cfg.Poll.Interval == "" {
		cfg.Poll.Interval = "1m"
	}
	if cfg.Poll.Workers <= 0 {
		cfg.Poll.Workers = 4
	}
	if cfg.Engine.Model == "" {
		cfg.Engine.Model = "claude-sonnet-4-5"
	}
	if cfg.Engine.MaxTokens <= 0 {
		cfg.Engine.MaxTokens = 8192
	}
	if cfg.Engine.Timeout == "" {
		cfg.Engine.Timeout = "2m"
	}
	if cfg.Context.MaxBytes <= 0 {
		cfg.Context.MaxBytes = 96 * 1024
	}
	if cfg.Context.TailLines <= 0 {
		cfg.Context.TailLines = 400
	}
	if cfg.Validation.Timeout == "" {
		cfg.Validation.Timeout = "15m"
	}
	if cfg.Validation.WorkspaceDir == "" && cfg.Repo.Dir != "" {
		cfg.Validation.WorkspaceDir = filepath.Join(cfg.Repo.Dir, ".fixloop-workspaces")
	}
	if cfg.Publish.BranchPrefix == "" {
		cfg.Publish.BranchPrefix = "fixloop/"
	}
	for name, check := range cfg.Checks {
		if check.Timeout == "" {
			check.Timeout = "2m"
			cfg.Checks[name] = check
		}
	}
}
