package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/repro-cli/internal/catalog"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect the run audit trail",
	Long:  "Commands for listing runs and their artifacts from the audit catalog.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List runs with artifact activity",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		cat, err := initCatalog(cmd)
		if err != nil {
			return err
		}
		defer cat.Close() //nolint:errcheck

		limit, _ := cmd.Flags().GetInt("limit")
		activity, err := cat.ListRunActivity(ctx, limit)
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(activity) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, activity)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show every artifact a run wrote",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cat, err := initCatalog(cmd)
		if err != nil {
			return err
		}
		defer cat.Close() //nolint:errcheck

		artifacts, err := cat.ListArtifacts(ctx, catalog.ArtifactFilter{RunID: args[0]})
		if err != nil {
			return eris.Wrap(err, "runs show")
		}
		if len(artifacts) == 0 {
			return eris.Errorf("no artifacts recorded for run %s", args[0])
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(artifacts)
	},
}

func formatRunsList(w io.Writer, activity []catalog.RunActivity) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tEXPERIMENT\tARTIFACTS\tSIMULATED\tLAST WRITE")
	for _, a := range activity {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n",
			a.RunID, a.ExperimentID, a.Artifacts, a.Simulated,
			a.LastWrite.UTC().Format(time.RFC3339),
		)
	}
	tw.Flush() //nolint:errcheck
}

func init() {
	runsListCmd.Flags().Int("limit", 20, "maximum runs to list")
	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	rootCmd.AddCommand(runsCmd)
}
