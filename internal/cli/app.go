package cli

import (
	"context"
	"fmt"

	"github.com/lucasnoah/fixloop/internal/ci"
	"github.com/lucasnoah/fixloop/internal/collect"
	"github.com/lucasnoah/fixloop/internal/config"
	"github.com/lucasnoah/fixloop/internal/coordinator"
	"github.com/lucasnoah/fixloop/internal/db"
	"github.com/lucasnoah/fixloop/internal/diagnose"
	"github.com/lucasnoah/fixloop/internal/listener"
	"github.com/lucasnoah/fixloop/internal/publish"
	"github.com/lucasnoah/fixloop/internal/record"
	"github.com/lucasnoah/fixloop/internal/validate"
)

var configFile string

func loadConfig(ctx context.Context) (*config.Config, error) {
	if configFile != "" {
		return config.Load(ctx, configFile)
	}
	return config.LoadDefault(ctx)
}

// app holds the wired pipeline components shared by serve and run.
type app struct {
	cfg      *config.Config
	database *db.DB
	records  *record.Store
	coord    *coordinator.Coordinator
	listener *listener.Listener
}

// newApp loads and validates the configuration, opens the state stores, and
// wires the pipeline. The returned cleanup closes the database.
func newApp(ctx context.Context) (*app, func(), error) {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return nil, nil, err
	}
	if errs := config.Validate(cfg); len(errs) > 0 {
		for _, e := range errs {
			fmt.Println("  -", e)
		}
		return nil, nil, fmt.Errorf("config has %d validation error(s)", len(errs))
	}

	dbPath, err := db.DefaultDBPath()
	if err != nil {
		return nil, nil, fmt.Errorf("db path: %w", err)
	}
	database, err := db.Open(dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open db: %w", err)
	}
	if err := database.Migrate(); err != nil {
		database.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}

	records, err := record.DefaultStore()
	if err != nil {
		database.Close()
		return nil, nil, fmt.Errorf("record store: %w", err)
	}

	client := ci.NewClient(&ci.ExecRunner{})
	if cfg.Repo.BaseBranch == "" {
		cfg.Repo.BaseBranch = resolveBaseBranch(ctx, client)
	}
	collector := collect.NewCollector(client, cfg.Repo.Owner, cfg.Repo.Name, cfg.Context.MaxBytes, cfg.Context.TailLines)

	engine := diagnose.NewAnthropicEngine(cfg.Engine.APIKey, cfg.Engine.Model, cfg.Engine.MaxTokens)
	adapter := diagnose.NewAdapter(engine, cfg.EngineTimeout())

	workspaces := validate.NewManager(&validate.ExecGit{}, cfg.Repo.Dir, cfg.Validation.WorkspaceDir)
	checks := validate.NewCheckRunner(&validate.ExecRunner{})
	validator := validate.NewValidator(workspaces, checks, database, cfg.ValidationTimeout())

	publisher := publish.NewPublisher(client, publish.NewWorkspaces(workspaces), cfg.Publish.BranchPrefix, cfg.Repo.BaseBranch)

	coord := coordinator.New(records, collector, adapter, validator, publisher, database, coordinator.Options{
		Owner: cfg.Repo.Owner,
		Repo:  cfg.Repo.Name,
		ChecksFor: func(job string) []validate.CheckConfig {
			var out []validate.CheckConfig
			for _, c := range cfg.ChecksForJob(job) {
				out = append(out, validate.CheckConfig{Name: c.Name, Command: c.Command, Timeout: c.Timeout})
			}
			return out
		},
		Workers: cfg.Poll.Workers,
	})

	a := &app{
		cfg:      cfg,
		database: database,
		records:  records,
		coord:    coord,
		listener: listener.NewListener(client, records),
	}
	return a, func() { database.Close() }, nil
}

// resolveBaseBranch asks the host for the repository's default branch,
// falling back to main when the lookup fails.
func resolveBaseBranch(ctx context.Context, client *ci.Client) string {
	meta, err := client.RepoInfo(ctx)
	if err != nil || meta.DefaultBranch == "" {
		return "main"
	}
	return meta.DefaultBranch
}
