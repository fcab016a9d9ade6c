package cli

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	units "github.com/docker/go-units"

	"github.com/fennwick/cull/internal/classify"
	"github.com/fennwick/cull/internal/rollback"
	"github.com/fennwick/cull/internal/terminate"
)

// printScanReport renders the stage-1 classified listing. Untouchable rows
// are included so the operator sees what the tool refuses to offer.
func printScanReport(w io.Writer, records []classify.Classified, partial bool) {
	if partial {
		fmt.Fprintln(w, "note: scan budget exhausted, listing is incomplete")
	}
	if len(records) == 0 {
		fmt.Fprintln(w, "No processes matched any tier.")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PID\tNAME\tTIER\tRULE\tMEMORY\tPORTS")
	for _, rec := range records {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			rec.Record.PID,
			rec.Record.Name,
			rec.Tier,
			rec.Rule,
			formatBytes(rec.Record.MemoryBytes),
			formatPorts(rec.Record.ListenPorts),
		)
	}
	tw.Flush()
}

// printOutcomeTable renders the mandatory per-process outcome table: tier,
// action taken, result. Silent failures are disallowed by design, so every
// target appears here.
func printOutcomeTable(w io.Writer, summary *terminate.Summary) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PID\tNAME\tTIER\tACTION\tRESULT\tDETAIL")
	for _, res := range summary.Results {
		action := "graceful"
		if res.Escalated {
			action = "forced"
		}
		detail := "-"
		if res.Err != nil {
			detail = res.Err.Error()
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			res.Target.Record.PID,
			res.Target.Record.Name,
			res.Target.Tier,
			action,
			res.Status,
			detail,
		)
	}
	tw.Flush()

	fmt.Fprintf(w, "\n%d dead, %d skipped, %d failed; ~%s reclaimed (pre-kill estimate)\n",
		summary.Dead, summary.Skipped, summary.Failed, formatBytes(summary.ReclaimedBytes))
	fmt.Fprintf(w, "Checkpoint: %s\n", summary.CheckpointID)
}

// printRollbackReport renders per-entry rollback detail.
func printRollbackReport(w io.Writer, report *rollback.Report) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tPORT\tRESULT\tDETAIL")
	for _, res := range report.Results {
		detail := res.Detail
		if res.Err != nil {
			detail = res.Err.Error()
		}
		if res.NewPID > 0 {
			detail = fmt.Sprintf("pid %d; %s", res.NewPID, detail)
		}
		port := "-"
		if res.Entry.ListenPort > 0 {
			port = strconv.Itoa(res.Entry.ListenPort)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", res.Entry.Name, port, res.Status, detail)
	}
	tw.Flush()
	fmt.Fprintf(w, "\n%d of %d entries relaunched\n", report.Relaunched, len(report.Results))
}

func formatBytes(b uint64) string {
	if b == 0 {
		return "-"
	}
	return units.BytesSize(float64(b))
}

func formatPorts(ports []int) string {
	if len(ports) == 0 {
		return "-"
	}
	sorted := append([]int(nil), ports...)
	sort.Ints(sorted)
	parts := make([]string, len(sorted))
	for i, p := range sorted {
		parts[i] = strconv.Itoa(p)
	}
	return strings.Join(parts, ",")
}
