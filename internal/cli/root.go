package cli

import (
	stdcontext "context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fennwick/cull/internal/classify"
	"github.com/fennwick/cull/internal/config"
	"github.com/fennwick/cull/internal/confirm"
	"github.com/fennwick/cull/internal/inventory"
	"github.com/fennwick/cull/internal/metrics"
)

// Exit codes surfaced to the caller. Operator cancellation is a normal
// terminal outcome, distinguished from genuine failures.
const (
	exitError   = 1
	exitAborted = 2
)

func NewRootCmd() *cobra.Command {
	root, _ := newRootCommand()
	return root
}

func newRootCommand() (*cobra.Command, *context) {
	ctx := &context{}

	root := &cobra.Command{
		Use:   "cull",
		Short: "Safely find and terminate stray development processes",
		Long: `cull scans the process table, classifies every process into safety
tiers, and walks a staged confirmation protocol before anything is
terminated. Each kill is checkpointed first so it can be rolled back.`,
	}

	root.PersistentFlags().StringVar(&ctx.configFile, "config", "", "Path to settings file")
	root.PersistentFlags().IntVar(&ctx.memoryThresholdMB, "memory-threshold-mb", 500, "Resident-memory candidacy threshold in megabytes")
	root.PersistentFlags().StringVar(&ctx.portRange, "port-range", "3000-9999", "Dev-server port range for candidacy (min-max)")
	root.PersistentFlags().DurationVar(&ctx.grace, "grace", 10*time.Second, "Grace window after the graceful signal")
	root.PersistentFlags().StringArrayVar(&ctx.protect, "protect", nil, "Additional protected process-name patterns (repeatable)")
	root.PersistentFlags().StringVar(&ctx.checkpointDir, "checkpoint-dir", "", "Directory for checkpoint artifacts")

	root.AddCommand(newScanCmd(ctx))
	root.AddCommand(newReapCmd(ctx))
	root.AddCommand(newRollbackCmd(ctx))
	root.AddCommand(newCheckpointsCmd(ctx))
	root.AddCommand(newTuiCmd(ctx))

	root.SilenceUsage = true
	root.SilenceErrors = true

	return root, ctx
}

// Execute runs the CLI entrypoint.
func Execute() {
	ctx, stop := signal.NotifyContext(stdcontext.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCmd()
	root.SetContext(ctx)

	if err := root.ExecuteContext(ctx); err != nil {
		if errors.Is(err, confirm.ErrAborted) {
			fmt.Fprintf(os.Stderr, "aborted-by-operator: %v\n", err)
			os.Exit(exitAborted)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitError)
	}
}

// context carries flag state shared by every subcommand.
type context struct {
	configFile        string
	memoryThresholdMB int
	portRange         string
	grace             time.Duration
	protect           []string
	checkpointDir     string
}

// settings merges the settings file with any flags the operator set
// explicitly. Flags win over the file; defaults fill the rest.
func (c *context) settings(cmd *cobra.Command) (config.Settings, error) {
	s, err := config.Load(c.configFile)
	if err != nil {
		return s, err
	}

	flags := cmd.Flags()
	if flags.Changed("memory-threshold-mb") {
		s.MemoryThresholdMB = c.memoryThresholdMB
	}
	if flags.Changed("port-range") {
		pr, err := config.ParsePortRange(c.portRange)
		if err != nil {
			return s, err
		}
		s.PortRange = pr
	}
	if flags.Changed("grace") {
		s.GraceWindow = config.Duration{Duration: c.grace}
	}
	if flags.Changed("checkpoint-dir") {
		s.CheckpointDir = c.checkpointDir
	}
	// User patterns merge; they never replace the built-in protected set
	// and never touch the untouchable tier.
	s.ProtectedPatterns = append(s.ProtectedPatterns, c.protect...)

	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

const containerLookupTimeout = 2 * time.Second

// classifiedScan runs the inventory and classification stages; shared by
// scan, reap and the tui.
func (c *context) classifiedScan(ctx stdcontext.Context, s config.Settings) ([]classify.Classified, *inventory.Snapshot, error) {
	source := inventory.SystemSource()
	snap, err := inventory.NewScanner(source, s.ScanBudget.Duration).Scan(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("scan processes: %w", err)
	}
	metrics.ObserveScan(len(snap.Records))

	shielded := make(map[int32]struct{})
	for _, pid := range inventory.Ancestry(ctx, source, int32(os.Getpid())) {
		shielded[pid] = struct{}{}
	}

	containerCtx, cancel := stdcontext.WithTimeout(ctx, containerLookupTimeout)
	containerPIDs := classify.ContainerPIDs(containerCtx)
	cancel()

	rules := classify.DefaultRules(classify.Options{
		MemoryFloor:       s.MemoryThresholdBytes(),
		PortMin:           s.PortRange.Min,
		PortMax:           s.PortRange.Max,
		ShieldedPIDs:      shielded,
		ContainerPIDs:     containerPIDs,
		ProtectedPatterns: s.ProtectedPatterns,
	})

	return classify.Partition(snap.Records, rules), snap, nil
}
