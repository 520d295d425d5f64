package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/fixloop/internal/record"
	"github.com/lucasnoah/fixloop/internal/remedy"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show in-flight remediations",
	RunE: func(cmd *cobra.Command, args []string) error {
		records, err := record.DefaultStore()
		if err != nil {
			return err
		}

		phase, _ := cmd.Flags().GetString("phase")
		recs, err := records.List(remedy.Phase(phase))
		if err != nil {
			return err
		}

		format, _ := cmd.Flags().GetString("format")
		if format == "json" {
			data, _ := json.MarshalIndent(recs, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}

		if len(recs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No remediations found.")
			return nil
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "%-6s %-14s %-18s %-6s %-22s %s\n", "PR", "COMMIT", "PHASE", "PATCH", "FAILURE", "JOB")
		fmt.Fprintf(w, "%-6s %-14s %-18s %-6s %-22s %s\n",
			strings.Repeat("-", 6),
			strings.Repeat("-", 14),
			strings.Repeat("-", 18),
			strings.Repeat("-", 6),
			strings.Repeat("-", 22),
			strings.Repeat("-", 5))
		for _, rec := range recs {
			commit := rec.Commit
			if len(commit) > 12 {
				commit = commit[:12]
			}
			patch := ""
			if rec.Patch != "" {
				patch = "yes"
			}
			fmt.Fprintf(w, "%-6d %-14s %-18s %-6s %-22s %s\n",
				rec.PR, commit, rec.Phase, patch, rec.FailureKind, rec.Job)
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().String("format", "text", "Output format: text or json")
	statusCmd.Flags().String("phase", "", "Only show records in this phase")
}
