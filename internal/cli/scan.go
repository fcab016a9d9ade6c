package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newScanCmd(ctx *context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Classify running processes without touching anything",
		Long: `Dry run: enumerates processes, classifies each into a safety tier and
prints the report. No confirmation protocol, no checkpoint, no signals.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := ctx.settings(cmd)
			if err != nil {
				return err
			}

			classified, snap, err := ctx.classifiedScan(cmd.Context(), settings)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printScanReport(out, classified, snap.Partial)

			reviewable := 0
			for _, rec := range classified {
				if rec.Reviewable() {
					reviewable++
				}
			}
			fmt.Fprintf(out, "\n%d processes scanned, %d shown, %d eligible for review\n",
				len(snap.Records), len(classified), reviewable)
			return nil
		},
	}
	return cmd
}
