package config

import (
	"fmt"
	"time"
)

// ValidationError represents a single validation issue with a config.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks a Config for structural and semantic errors. It returns
// all validation errors found (empty if valid).
func Validate(cfg *Config) []ValidationError {
	var errs []ValidationError

	if cfg.Repo.Owner == "" {
		errs = append(errs, ValidationError{Field: "repo.owner", Message: "is required"})
	}
	if cfg.Repo.Name == "" {
		errs = append(errs, ValidationError{Field: "repo.name", Message: "is required"})
	}
	if cfg.Repo.Dir == "" {
		errs = append(errs, ValidationError{Field: "repo.dir", Message: "is required"})
	}
	if cfg.Engine.APIKey == "" {
		errs = append(errs, ValidationError{Field: "engine.api_key", Message: "ANTHROPIC_API_KEY is not set"})
	}
	if len(cfg.Checks) == 0 {
		errs = append(errs, ValidationError{Field: "checks", Message: "at least one check is required"})
	}

	for name, check := range cfg.Checks {
		if check.Command == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("checks.%s.command", name),
				Message: "is required",
			})
		}
		if check.Timeout != "" {
			if _, err := time.ParseDuration(check.Timeout); err != nil {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("checks.%s.timeout", name),
					Message: fmt.Sprintf("invalid duration %q", check.Timeout),
				})
			}
		}
	}

	for _, checkName := range cfg.DefaultChecks {
		if _, ok := cfg.Checks[checkName]; !ok {
			errs = append(errs, ValidationError{
				Field:   "default_checks",
				Message: fmt.Sprintf("references undefined check %q", checkName),
			})
		}
	}
	for job, names := range cfg.Jobs {
		for _, checkName := range names {
			if _, ok := cfg.Checks[checkName]; !ok {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("jobs.%s", job),
					Message: fmt.Sprintf("references undefined check %q", checkName),
				})
			}
		}
	}

	for field, value := range map[string]string{
		"poll.interval":      cfg.Poll.Interval,
		"engine.timeout":     cfg.Engine.Timeout,
		"validation.timeout": cfg.Validation.Timeout,
	} {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("invalid duration %q", value),
			})
		}
	}

	return errs
}
