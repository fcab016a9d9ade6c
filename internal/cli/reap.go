package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/fennwick/cull/internal/checkpoint"
	"github.com/fennwick/cull/internal/confirm"
	"github.com/fennwick/cull/internal/terminate"
)

func newReapCmd(ctx *context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reap",
		Short: "Run the full scan, confirm and terminate protocol",
		Long: `Scans and classifies processes, then walks the staged confirmation
protocol: scan report, per-process review, a typed final confirmation,
and a per-process force-kill gate if a target ignores the graceful
signal. The full kill-list is checkpointed durably before the first
signal is sent.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := ctx.settings(cmd)
			if err != nil {
				return err
			}

			// The protocol is strictly human-in-the-loop; refusing a
			// pipe here prevents scripted blanket approvals.
			if stdin, ok := cmd.InOrStdin().(*os.File); ok && !term.IsTerminal(int(stdin.Fd())) {
				return errors.New("reap requires an interactive terminal; use scan for non-interactive inspection")
			}

			classified, snap, err := ctx.classifiedScan(cmd.Context(), settings)
			if err != nil {
				return err
			}
			if snap.Partial {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning: scan incomplete, unlisted processes are not offered")
			}

			prompter := newTerminalPrompter(cmd.InOrStdin(), cmd.OutOrStdout())

			decisions, err := confirm.Run(cmd.Context(), prompter, classified)
			if err != nil {
				return err
			}

			store, err := checkpoint.NewStore(settings.CheckpointDir)
			if err != nil {
				return err
			}

			engine := &terminate.Engine{
				Signals:     terminate.SystemSignaler(),
				Gate:        prompter,
				Store:       store,
				GraceWindow: settings.GraceWindow.Duration,
			}

			summary, err := engine.Execute(cmd.Context(), decisions)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out)
			printOutcomeTable(out, summary)

			result := "completed"
			if summary.Partial() {
				result = "partial"
			}
			fmt.Fprintf(out, "Result: %s\n", result)
			return nil
		},
	}
	return cmd
}
