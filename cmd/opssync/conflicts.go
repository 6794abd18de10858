package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/jerrsapps1/opssync/internal/ui"
	"github.com/spf13/cobra"
)

var conflictsCmd = &cobra.Command{
	Use:   "conflicts",
	Short: "Report duplicate roster entries and archived-but-assigned entities",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		findings, err := api.FindConflicts(context.Background())
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(findings)
			return nil
		}
		if len(findings) == 0 {
			fmt.Println("no conflicts")
			return nil
		}
		style := ui.NewStyler(os.Stdout)
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "KIND\tID\tASSIGNMENT\tREASON")
		for _, f := range findings {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", f.EntityKind, f.EntityID, assignmentLabel(f.Assignment), style.Warn(f.Reason))
		}
		w.Flush()
		fmt.Printf("\n%d conflicts\n", len(findings))
		return nil
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check server health",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := api.Health(context.Background())
		if err != nil {
			return err
		}
		fmt.Println(status)
		return nil
	},
}
