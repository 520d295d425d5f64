package cli

import (
	"github.com/spf13/cobra"
)

var version = "dev"

func SetVersion(v string) {
	version = v
}

var rootCmd = &cobra.Command{
	Use:   "fixloop",
	Short: "fixloop — self-healing CI for pull requests",
	Long: `fixloop watches the open pull requests of a repository for failing CI
runs, diagnoses each failure with a reasoning engine, validates proposed
patches by re-running the failing checks in an isolated workspace, and
publishes the diagnosis (and, when validation passes, a fix PR) back to
the originating pull request.

All state is stored in ~/.fixloop/ (SQLite for the audit trail, JSON for
remediation records).`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "file", "f", "", "path to config file")
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(dbCmd)
}
