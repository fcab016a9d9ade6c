package cli

import (
	stdcontext "context"

	"github.com/spf13/cobra"

	"github.com/fennwick/cull/internal/classify"
	"github.com/fennwick/cull/internal/tui"
)

func newTuiCmd(ctx *context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Browse the classified scan interactively",
		Long: `Opens a read-only terminal viewer over the classified scan. Press r
to rescan and q to quit. Termination is only available through reap.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := ctx.settings(cmd)
			if err != nil {
				return err
			}

			refresh := func(c stdcontext.Context) ([]classify.Classified, error) {
				classified, _, err := ctx.classifiedScan(c, settings)
				return classified, err
			}
			return tui.New(refresh).Run(cmd.Context())
		},
	}
	return cmd
}
