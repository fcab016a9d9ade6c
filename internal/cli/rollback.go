package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fennwick/cull/internal/checkpoint"
	"github.com/fennwick/cull/internal/rollback"
)

func newRollbackCmd(ctx *context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rollback <checkpoint-id>",
		Short: "Relaunch the processes recorded in a checkpoint",
		Long: `Reads a checkpoint and relaunches each recorded process in order,
detached from this invocation. Entries whose port is occupied or whose
working directory is gone are reported and skipped; rollback never
terminates anything.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := ctx.settings(cmd)
			if err != nil {
				return err
			}

			store, err := checkpoint.NewStore(settings.CheckpointDir)
			if err != nil {
				return err
			}

			engine := &rollback.Engine{
				Store:  store,
				Launch: rollback.NewLauncher(filepath.Join(settings.CheckpointDir, "logs")),
			}

			report, err := engine.Rollback(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printRollbackReport(out, report)

			result := "rolled-back"
			if report.Partial() {
				result = "rollback-partial"
			}
			fmt.Fprintf(out, "Result: %s\n", result)
			return nil
		},
	}
	return cmd
}

func newCheckpointsCmd(ctx *context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoints",
		Short: "List stored checkpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := ctx.settings(cmd)
			if err != nil {
				return err
			}

			store, err := checkpoint.NewStore(settings.CheckpointDir)
			if err != nil {
				return err
			}
			summaries, err := store.List()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(summaries) == 0 {
				fmt.Fprintln(out, "No checkpoints stored.")
				return nil
			}
			for _, s := range summaries {
				fmt.Fprintf(out, "%s  %s  %d entries\n",
					s.ID, s.CreatedAt.Local().Format("2006-01-02 15:04:05"), s.Entries)
			}
			return nil
		},
	}
	return cmd
}
