// Package tui provides a read-only interactive viewer over the classified
// process scan. It never mutates anything: the reap protocol is deliberately
// line-oriented and lives in the CLI.
package tui

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	units "github.com/docker/go-units"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/fennwick/cull/internal/classify"
)

const tableTitle = "Classified processes"

// Refresher produces a fresh classified scan on demand.
type Refresher func(ctx context.Context) ([]classify.Classified, error)

// UI coordinates the interactive scan viewer backed by tview.
type UI struct {
	app     *tview.Application
	table   *tview.Table
	status  *tview.TextView
	refresh Refresher
}

// New constructs a UI around the supplied refresher.
func New(refresh Refresher) *UI {
	app := tview.NewApplication()

	table := tview.NewTable().SetFixed(1, 0).SetSelectable(true, false)
	table.SetBorder(true).SetTitle(tableTitle)

	status := tview.NewTextView().SetDynamicColors(true)
	status.SetText("[::b]r[-:-:-] rescan  [::b]q[-:-:-] quit")

	flex := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(table, 0, 1, true).
		AddItem(status, 1, 0, false)

	ui := &UI{app: app, table: table, status: status, refresh: refresh}
	app.SetRoot(flex, true)
	return ui
}

// Run displays the viewer until the operator quits or the context is
// cancelled.
func (u *UI) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	u.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() != tcell.KeyRune {
			return event
		}
		switch event.Rune() {
		case 'q':
			u.app.Stop()
			return nil
		case 'r':
			go u.reload(ctx)
			return nil
		}
		return event
	})

	go func() {
		<-ctx.Done()
		u.app.Stop()
	}()

	if err := u.load(ctx); err != nil {
		return err
	}
	return u.app.Run()
}

func (u *UI) reload(ctx context.Context) {
	records, err := u.refresh(ctx)
	u.app.QueueUpdateDraw(func() {
		if err != nil {
			u.status.SetText(fmt.Sprintf("[red]rescan failed: %v", err))
			return
		}
		u.render(records)
		u.status.SetText("[::b]r[-:-:-] rescan  [::b]q[-:-:-] quit")
	})
}

func (u *UI) load(ctx context.Context) error {
	records, err := u.refresh(ctx)
	if err != nil {
		return err
	}
	u.render(records)
	return nil
}

func (u *UI) render(records []classify.Classified) {
	u.table.Clear()

	headers := []string{"PID", "NAME", "TIER", "RULE", "MEMORY", "PORTS"}
	for col, header := range headers {
		cell := tview.NewTableCell(header).
			SetTextColor(tcell.ColorYellow).
			SetSelectable(false).
			SetAttributes(tcell.AttrBold)
		u.table.SetCell(0, col, cell)
	}

	for row, rec := range records {
		color := tierColor(rec.Tier)
		cells := []string{
			strconv.Itoa(int(rec.Record.PID)),
			rec.Record.Name,
			string(rec.Tier),
			rec.Rule,
			formatMemory(rec.Record.MemoryBytes),
			formatPorts(rec.Record.ListenPorts),
		}
		for col, text := range cells {
			u.table.SetCell(row+1, col, tview.NewTableCell(text).SetTextColor(color))
		}
	}
	u.table.ScrollToBeginning()
}

func tierColor(tier classify.Tier) tcell.Color {
	switch tier {
	case classify.TierUntouchable:
		return tcell.ColorRed
	case classify.TierProtected:
		return tcell.ColorOrange
	case classify.TierSafeCandidate:
		return tcell.ColorGreen
	default:
		return tcell.ColorWhite
	}
}

func formatMemory(b uint64) string {
	if b == 0 {
		return "-"
	}
	return units.BytesSize(float64(b))
}

func formatPorts(ports []int) string {
	if len(ports) == 0 {
		return "-"
	}
	parts := make([]string, len(ports))
	for i, p := range ports {
		parts[i] = strconv.Itoa(p)
	}
	return strings.Join(parts, ",")
}
