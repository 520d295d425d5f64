package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/chainguard-dev/clog"
	"github.com/spf13/cobra"

	"github.com/lucasnoah/fixloop/internal/listener"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the remediation daemon",
	Long: `Poll the repository for failing CI runs on open pull requests and drive
each one through the remediation pipeline.

On startup any remediation interrupted by a previous shutdown is resumed
from its last durable phase. SIGINT or SIGTERM stops polling and waits
for in-flight work to settle.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, cleanup, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		log := clog.FromContext(ctx)
		log.Infof("watching %s/%s (poll every %s, %d workers)",
			a.cfg.Repo.Owner, a.cfg.Repo.Name, a.cfg.PollInterval(), a.cfg.Poll.Workers)

		a.coord.Start(ctx)
		if err := a.coord.Recover(ctx); err != nil {
			log.Warnf("recovery sweep: %v", err)
		}

		err = a.listener.Run(ctx, a.cfg.PollInterval(), func(f listener.Finding) {
			if err := a.coord.Submit(ctx, f.Event, f.Branch); err != nil {
				log.Warnf("submit %s: %v", f.Event.Key(), err)
			}
		})
		a.coord.Wait()

		if err == context.Canceled {
			log.Infof("shutting down")
			return nil
		}
		return err
	},
}
