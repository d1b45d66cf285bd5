// Package report renders the outcome of a run for people, on the terminal
// and by email.
package report

import (
	"bgprices/internal/annotate"
	"bgprices/internal/pricing"
	"bgprices/internal/snapshot"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/shopspring/decimal"
)

type Options struct {
	// Color highlights classifications and unavailable games with ansi
	// colors, it should only be set when writing to a terminal.
	Color bool
}

func (o Options) newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(w)
	return t
}

func formatTotal(d decimal.NullDecimal) string {
	if !d.Valid {
		return "-"
	}
	return d.Decimal.StringFixed(2)
}

func (o Options) colorize(s string, c text.Colors) string {
	if !o.Color {
		return s
	}
	return c.Sprint(s)
}

func (o Options) priceText(cell snapshot.Cell) string {
	s := formatTotal(cell.Total())
	switch cell.Annotation.Style {
	case annotate.StyleRaised:
		s = o.colorize(s, text.Colors{text.FgRed})
	case annotate.StyleLowered:
		s = o.colorize(s, text.Colors{text.FgGreen})
	}
	if cell.Gap {
		s += "*"
	}
	return s
}

func (o Options) availabilityText(cell snapshot.Cell) string {
	s := cell.Availability.String()
	if cell.Annotation.AvailabilityStyle == annotate.StyleFlagged {
		return o.colorize(s, text.Colors{text.FgRed, text.Bold})
	}
	return s
}

// Snapshot writes every row of a snapshot, gap cells are marked with a star.
func Snapshot(w io.Writer, snap snapshot.Snapshot, opts Options) {
	t := opts.newTable(w)
	if snap.Label != "" {
		t.SetTitle(snap.Label)
	}

	header := table.Row{"Game"}
	for _, src := range snap.Sources {
		header = append(header, src.DisplayName(), "")
	}
	t.AppendHeader(header, table.RowConfig{AutoMerge: true})

	for _, row := range snap.Rows {
		values := table.Row{row.Game}
		for _, src := range snap.Sources {
			cell, _ := row.Cell(src)
			values = append(values, opts.priceText(cell), opts.availabilityText(cell))
		}
		t.AppendRow(values)
	}

	if gaps := snap.GapCount(); gaps > 0 {
		t.AppendFooter(table.Row{fmt.Sprintf("* %d cell(s) carried forward", gaps)})
	}
	t.Render()
}

// Movement is a price that crossed the threshold since the previous snapshot.
type Movement struct {
	Game           string
	Source         pricing.Source
	Old            decimal.NullDecimal
	New            decimal.NullDecimal
	Classification annotate.Classification
	Availability   pricing.Availability
}

// Movements lists the increased and decreased cells of snap in row order.
func Movements(previous, snap snapshot.Snapshot) []Movement {
	var out []Movement
	for i, row := range snap.Rows {
		for _, src := range snap.Sources {
			cell, _ := row.Cell(src)
			c := cell.Annotation.Classification
			if c != annotate.ClassificationIncreased && c != annotate.ClassificationDecreased {
				continue
			}

			m := Movement{
				Game:           row.Game,
				Source:         src,
				New:            cell.Total(),
				Classification: c,
				Availability:   cell.Availability,
			}
			if old, ok, _ := previous.Baseline(i, row.Game); ok {
				oldCell, _ := old.Cell(src)
				m.Old = oldCell.Total()
			}
			out = append(out, m)
		}
	}
	return out
}

// Run writes the price movements and the failures of a run.
func Run(w io.Writer, label string, previous, snap snapshot.Snapshot, rep snapshot.Report, opts Options) {
	fmt.Fprintf(w, "Snapshot %s (run %s): %d games, %d gaps, %d failures\n", label, rep.RunID, rep.Rows, snap.GapCount(), len(rep.Failures))
	if previous.Empty() {
		fmt.Fprintln(w, "No previous snapshot, nothing to compare against.")
	} else {
		fmt.Fprintf(w, "Compared against %s.\n", previous.Label)
	}

	movements := Movements(previous, snap)
	if len(movements) > 0 {
		t := opts.newTable(w)
		t.SetTitle("Price movements")
		t.AppendHeader(table.Row{"Game", "Source", "Previous", "Current", "Change", "Availability"})
		for _, m := range movements {
			change := m.Classification.String()
			if m.Classification == annotate.ClassificationIncreased {
				change = opts.colorize(change, text.Colors{text.FgRed})
			} else {
				change = opts.colorize(change, text.Colors{text.FgGreen})
			}
			t.AppendRow(table.Row{
				m.Game,
				m.Source.DisplayName(),
				formatTotal(m.Old),
				formatTotal(m.New),
				change,
				m.Availability.String(),
			})
		}
		t.Render()
	}

	Failures(w, rep, opts)
}

// Failures writes one line per failed game and source, nothing if the run
// was clean.
func Failures(w io.Writer, rep snapshot.Report, opts Options) {
	if len(rep.Failures) == 0 {
		return
	}
	t := opts.newTable(w)
	t.SetTitle("Failures")
	t.AppendHeader(table.Row{"Game", "Source", "Kind", "Reason"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, WidthMax: 80},
	})
	for _, f := range rep.Failures {
		t.AppendRow(table.Row{f.Game, f.Source.DisplayName(), string(f.Kind), f.Reason()})
	}
	t.Render()
}

// String renders a run without colors, it is used as the email body.
func String(label string, previous, snap snapshot.Snapshot, rep snapshot.Report) string {
	var sb strings.Builder
	Run(&sb, label, previous, snap, rep, Options{})
	return sb.String()
}
