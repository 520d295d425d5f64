package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/fixloop/internal/db"
)

var eventsCmd = &cobra.Command{
	Use:   "events [key]",
	Short: "Show the audit trail, optionally for one remediation",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dbPath, err := db.DefaultDBPath()
		if err != nil {
			return err
		}
		database, err := db.Open(dbPath)
		if err != nil {
			return err
		}
		defer database.Close()

		limit, _ := cmd.Flags().GetInt("limit")

		var events []db.RemediationEvent
		if len(args) == 1 {
			events, err = database.ListEvents(args[0], limit)
		} else {
			events, err = database.RecentEvents(limit)
		}
		if err != nil {
			return err
		}

		if len(events) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No events found.")
			return nil
		}

		w := cmd.OutOrStdout()
		for _, e := range events {
			line := fmt.Sprintf("%s  %-36s %-20s", e.Timestamp, e.Key, e.Event)
			if e.Detail != "" {
				line += "  " + e.Detail
			}
			fmt.Fprintln(w, line)
		}
		return nil
	},
}

func init() {
	eventsCmd.Flags().Int("limit", 50, "Maximum events to show")
}
