package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/fixloop/internal/remedy"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pipeline once for a single failing job",
	Long: `Process one failing CI job synchronously instead of waiting for the
poller to find it. Useful for replaying a failure or testing the setup.

The (pr, commit, job) tuple identifies the remediation; running it twice
is a no-op once the first run reaches a terminal phase.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		pr, _ := cmd.Flags().GetInt("pr")
		commit, _ := cmd.Flags().GetString("commit")
		runID, _ := cmd.Flags().GetInt64("run")
		job, _ := cmd.Flags().GetString("job")
		branch, _ := cmd.Flags().GetString("branch")

		ev := remedy.Event{PR: pr, Commit: commit, RunID: runID, Job: job, CreatedAt: time.Now().UTC()}
		if err := ev.Validate(); err != nil {
			return err
		}

		ctx := cmd.Context()
		a, cleanup, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		if err := a.coord.Submit(ctx, ev, branch); err != nil {
			return err
		}
		if err := a.coord.ProcessOnce(ctx, ev.Key()); err != nil {
			return err
		}

		rec, err := a.records.Get(ev.Key())
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "%s: %s\n", rec.Key, rec.Phase)
		if rec.CommentURL != "" {
			fmt.Fprintf(w, "  diagnosis: %s\n", rec.CommentURL)
		}
		if rec.FixPRURL != "" {
			fmt.Fprintf(w, "  fix PR:    %s\n", rec.FixPRURL)
		}
		if rec.FailureKind != "" {
			fmt.Fprintf(w, "  failure:   %s (%s)\n", rec.FailureKind, rec.FailureDetail)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().Int("pr", 0, "pull request number")
	runCmd.Flags().String("commit", "", "head commit SHA the run failed on")
	runCmd.Flags().Int64("run", 0, "workflow run ID")
	runCmd.Flags().String("job", "", "failing job name")
	runCmd.Flags().String("branch", "", "head branch name (optional)")
	runCmd.MarkFlagRequired("pr")
	runCmd.MarkFlagRequired("commit")
	runCmd.MarkFlagRequired("run")
	runCmd.MarkFlagRequired("job")
}
