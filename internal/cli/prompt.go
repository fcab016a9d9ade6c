package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/fennwick/cull/internal/classify"
	"github.com/fennwick/cull/internal/confirm"
)

// terminalPrompter answers the confirmation protocol from a line-oriented
// stream. It works over any reader/writer pair so tests can script it.
type terminalPrompter struct {
	in  *bufio.Reader
	out io.Writer
}

func newTerminalPrompter(in io.Reader, out io.Writer) *terminalPrompter {
	return &terminalPrompter{in: bufio.NewReader(in), out: out}
}

func (p *terminalPrompter) ShowReport(records []classify.Classified) {
	fmt.Fprintln(p.out, "Scan report:")
	printScanReport(p.out, records, false)
	fmt.Fprintln(p.out)
}

func (p *terminalPrompter) ReviewCandidate(rec classify.Classified) (bool, error) {
	fmt.Fprintf(p.out, "Terminate pid %d (%s, %s, %s)? [y/N] ",
		rec.Record.PID, rec.Record.Name, formatBytes(rec.Record.MemoryBytes), describeCommand(rec))
	line, err := p.readLine()
	if err != nil {
		return false, err
	}
	return isAffirmative(line), nil
}

func (p *terminalPrompter) AcknowledgeOverride(rec classify.Classified) (bool, error) {
	fmt.Fprintf(p.out, "pid %d (%s) is protected (%s). Type 'override' to include it anyway: ",
		rec.Record.PID, rec.Record.Name, rec.Rule)
	line, err := p.readLine()
	if err != nil {
		return false, err
	}
	return line == "override", nil
}

func (p *terminalPrompter) ConfirmKillList(approved int) (string, error) {
	fmt.Fprintf(p.out, "About to terminate %d process(es). Type %s to proceed: ", approved, confirm.Token)
	return p.readLine()
}

func (p *terminalPrompter) ApproveEscalation(rec classify.Classified) (bool, error) {
	fmt.Fprintf(p.out, "pid %d (%s) is still running after the grace window. Force kill? [y/N] ",
		rec.Record.PID, rec.Record.Name)
	line, err := p.readLine()
	if err != nil {
		return false, err
	}
	return isAffirmative(line), nil
}

func (p *terminalPrompter) readLine() (string, error) {
	line, err := p.in.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func isAffirmative(line string) bool {
	switch strings.ToLower(line) {
	case "y", "yes":
		return true
	}
	return false
}

func describeCommand(rec classify.Classified) string {
	cmd := rec.Record.Command
	if cmd == "" {
		return "command unavailable"
	}
	if len(cmd) > 60 {
		cmd = cmd[:57] + "..."
	}
	return cmd
}
